// internal/handlers/server.go
package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/memorygame/internal/game"
	"github.com/jason-s-yu/memorygame/internal/models"
	"github.com/jason-s-yu/memorygame/internal/results"
	"github.com/sirupsen/logrus"
)

// UserStore is the subset of user persistence the handlers need.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ClaimEphemeralUser(ctx context.Context, u *models.User) error
	AuthenticateUser(ctx context.Context, email, password string) (string, error)
}

// DefaultIdleTimeout is how long a session with no socket may sit without play.
const DefaultIdleTimeout = 30 * time.Minute

// GameServer owns the live sessions and the collaborators each new session is wired to.
type GameServer struct {
	GameStore *game.GameStore
	Users     UserStore
	Board     *results.Board

	Results   game.ResultRecorder
	Notifier  game.Notifier
	ActionLog game.ActionPublisher

	// Pacing is the default for new games; POST /game/create may override its delays per game.
	Pacing   game.Pacing
	TokenTTL time.Duration

	// IdleTimeout drops sessions that have no socket and no activity for this long.
	IdleTimeout time.Duration

	Logger *logrus.Logger

	// sessionsMu guards hubs and every attach or drop decision, so a socket can
	// never join a session that is being torn down.
	sessionsMu sync.Mutex
	hubs       map[uuid.UUID]*gameHub
}

func NewGameServer(logger *logrus.Logger) *GameServer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &GameServer{
		GameStore:   game.NewGameStore(),
		Pacing:      game.DefaultPacing(),
		IdleTimeout: DefaultIdleTimeout,
		Logger:      logger,
		hubs:        make(map[uuid.UUID]*gameHub),
	}
}

// NewGame creates a session for playerID, wires its collaborators and stores it.
func (s *GameServer) NewGame(playerID uuid.UUID, pacing game.Pacing) *game.MemoryGame {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	return s.newGameLocked(playerID, pacing)
}

func (s *GameServer) newGameLocked(playerID uuid.UUID, pacing game.Pacing) *game.MemoryGame {
	g := game.NewMemoryGame(playerID)
	g.Pacing = pacing
	g.Results = s.Results
	g.Notifier = s.Notifier
	g.ActionLog = s.ActionLog

	hub := newGameHub()
	logger := s.Logger.WithFields(logrus.Fields{"game_id": g.ID, "player_id": playerID})
	g.BroadcastFn = func(ev game.GameEvent) {
		hub.broadcast(game.EncodeEvent(ev))
	}
	g.OnPersistError = func(err error) {
		logger.WithError(err).Error("game result was not saved")
	}

	s.hubs[g.ID] = hub
	s.GameStore.AddGame(g)
	logger.Info("game created")
	return g
}

// attach finds or creates the session for a socket and registers client with its
// hub. On failure it returns the close code and reason to send.
func (s *GameServer) attach(rawID string, userID uuid.UUID, client *wsClient) (*game.MemoryGame, *gameHub, websocket.StatusCode, string) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	var g *game.MemoryGame
	if rawID == "" {
		g = s.newGameLocked(userID, s.Pacing)
	} else {
		gameID, err := uuid.Parse(rawID)
		if err != nil {
			return nil, nil, InvalidGameIDError, "Invalid game id."
		}
		var ok bool
		if g, ok = s.GameStore.GetGame(gameID); !ok {
			return nil, nil, InvalidGameIDError, "Game not found."
		}
		if g.PlayerID != userID {
			return nil, nil, NotGameOwnerError, "Game belongs to another player."
		}
	}
	hub, ok := s.hubs[g.ID]
	if !ok {
		return nil, nil, InvalidGameIDError, "Game not found."
	}
	hub.add(client)
	return g, hub, 0, ""
}

// detach unregisters client and drops the session if it was the last socket.
func (s *GameServer) detach(g *game.MemoryGame, hub *gameHub, client *wsClient) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	if hub.remove(client) == 0 {
		s.dropLocked(g.ID, "game dropped")
	}
}

// DropGame removes a session and its connection hub.
func (s *GameServer) DropGame(id uuid.UUID) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	s.dropLocked(id, "game dropped")
}

func (s *GameServer) dropLocked(id uuid.UUID, msg string) {
	delete(s.hubs, id)
	s.GameStore.DeleteGame(id)
	s.Logger.WithField("game_id", id).Info(msg)
}

// SweepIdle drops every session with no socket attached whose last activity is
// older than IdleTimeout. It returns the number dropped.
func (s *GameServer) SweepIdle(now time.Time) int {
	if s.IdleTimeout <= 0 {
		return 0
	}
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	dropped := 0
	for _, g := range s.GameStore.Games() {
		if hub, ok := s.hubs[g.ID]; ok && hub.size() > 0 {
			continue
		}
		if now.Sub(g.LastActive()) < s.IdleTimeout {
			continue
		}
		s.dropLocked(g.ID, "idle game dropped")
		dropped++
	}
	return dropped
}

// RunIdleSweeper calls SweepIdle on every tick until ctx is done. A nil factory
// uses real tickers.
func (s *GameServer) RunIdleSweeper(ctx context.Context, every time.Duration, newTicker game.TickerFactory) {
	if newTicker == nil {
		newTicker = game.NewRealTicker
	}
	t := newTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C():
			if n := s.SweepIdle(now); n > 0 {
				s.Logger.WithField("dropped", n).Debug("idle sweep")
			}
		}
	}
}

// gameHub fans one game's events out to its sockets. A player may have the
// same game open in more than one tab.
type gameHub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func newGameHub() *gameHub {
	return &gameHub{clients: make(map[*wsClient]struct{})}
}

func (h *gameHub) add(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *gameHub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// remove returns the number of clients left.
func (h *gameHub) remove(c *wsClient) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	return len(h.clients)
}

// broadcast never blocks; it runs under the game lock.
func (h *gameHub) broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.enqueue(data)
	}
}
