// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/memorygame/internal/game"
	"github.com/jason-s-yu/memorygame/internal/middleware"
	"github.com/jason-s-yu/memorygame/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	wsWriteTimeout = 3 * time.Second
	wsSendBuffer   = 64
)

// GameMessage is a client -> server message on the game socket.
//
//	{"type":"flip","card":{"id":3,"kind":"bug"}}
//	{"type":"reset"}
//	{"type":"state"}
//	{"type":"ping"}
type GameMessage struct {
	Type string       `json:"type"`
	Card *MessageCard `json:"card,omitempty"`
}

// MessageCard names the tile the player clicked. Kind is what the client believes
// is under it and is never trusted.
type MessageCard struct {
	ID   int         `json:"id"`
	Kind models.Kind `json:"kind,omitempty"`
}

type wsMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// wsClient is one socket. All writes go through send so events keep their order.
type wsClient struct {
	conn     *websocket.Conn
	send     chan []byte
	overflow chan struct{}
	once     sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn:     conn,
		send:     make(chan []byte, wsSendBuffer),
		overflow: make(chan struct{}),
	}
}

// enqueue never blocks. A client that cannot keep up is disconnected.
func (c *wsClient) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		c.once.Do(func() { close(c.overflow) })
	}
}

func (c *wsClient) enqueueJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *wsClient) writeLoop(ctx context.Context, logger *logrus.Entry) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.overflow:
			logger.Warn("client too slow, closing socket")
			c.conn.Close(SlowConsumerError, "Too many pending messages.")
			return
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.WithError(err).Debug("write failed")
				return
			}
		}
	}
}

// GameWSHandler plays a game over a websocket. /game/ws/{id} attaches to an
// existing game owned by the caller; /game/ws starts a new one. The socket must
// use the "game" subprotocol. The game is dropped when its last socket closes.
func GameWSHandler(logger *logrus.Logger, s *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Identity is settled before the upgrade so a guest cookie rides on the 101 response.
		userID, authErr := s.EnsureEphemeralUser(w, r)

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"game"},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.WithError(err).Warn("websocket accept error")
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != "game" {
			c.Close(BadSubprotocolError, "Client must use the 'game' subprotocol.")
			return
		}
		if authErr != nil {
			logger.WithError(authErr).Warn("game socket authentication failed")
			if errors.Is(authErr, errInvalidUserID) {
				c.Close(InvalidUserIDError, "Invalid user id.")
			} else {
				c.Close(InvalidAuthTokenError, "Authentication failed.")
			}
			return
		}

		client := newWSClient(c)
		g, hub, code, reason := s.attach(r.PathValue("id"), userID, client)
		if g == nil {
			c.Close(code, reason)
			return
		}

		entry := logger.WithFields(logrus.Fields{"game_id": g.ID, "player_id": userID})
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		ctx, cancel := context.WithCancel(r.Context())
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			client.writeLoop(ctx, entry)
		}()

		g.SyncState()
		readErr := readGameMessages(ctx, c, g, client, entry)

		cancel()
		<-writerDone
		s.detach(g, hub, client)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, readErr)
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// readGameMessages routes client messages into the game until the socket closes.
// A nil return means the client closed normally.
func readGameMessages(ctx context.Context, c *websocket.Conn, g *game.MemoryGame, client *wsClient, logger *logrus.Entry) error {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if msgType != websocket.MessageText {
			logger.Warnf("Ignoring non-text message type %d.", msgType)
			continue
		}

		var msg GameMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			client.enqueueJSON(wsMessage{Type: "error", Message: "Invalid JSON format."})
			continue
		}
		logger.Debugf("Received message %q.", msg.Type)

		var actionErr error
		switch msg.Type {
		case "flip":
			if msg.Card == nil {
				client.enqueueJSON(wsMessage{Type: "error", Message: "flip requires a card"})
				continue
			}
			actionErr = g.HandlePlayerAction(models.GameAction{
				ActionType: models.ActionFlip,
				CardID:     msg.Card.ID,
				Kind:       msg.Card.Kind,
			})
		case "reset":
			actionErr = g.HandlePlayerAction(models.GameAction{ActionType: models.ActionReset})
		case "state":
			g.SyncState()
		case "ping":
			client.enqueueJSON(wsMessage{Type: "pong"})
		default:
			actionErr = game.ErrUnknownAction
		}
		if actionErr != nil {
			client.enqueueJSON(wsMessage{Type: "error", Message: actionErr.Error()})
		}
	}
}
