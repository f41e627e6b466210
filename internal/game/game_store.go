package game

import (
	"sync"

	"github.com/google/uuid"
)

// GameStore keeps live sessions in memory, keyed by game id.
type GameStore struct {
	mu    sync.Mutex
	games map[uuid.UUID]*MemoryGame
}

func NewGameStore() *GameStore {
	return &GameStore{
		games: make(map[uuid.UUID]*MemoryGame),
	}
}

func (s *GameStore) AddGame(game *MemoryGame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[game.ID] = game
}

func (s *GameStore) GetGame(id uuid.UUID) (*MemoryGame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, exists := s.games[id]
	return g, exists
}

// DeleteGame removes the session and releases its clock.
func (s *GameStore) DeleteGame(id uuid.UUID) {
	s.mu.Lock()
	g, exists := s.games[id]
	delete(s.games, id)
	s.mu.Unlock()
	if exists {
		g.Close()
	}
}

// GetGameByPlayerID returns the session owned by playerID, or nil if none is found.
func (s *GameStore) GetGameByPlayerID(playerID uuid.UUID) *MemoryGame {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.games {
		if g.PlayerID == playerID {
			return g
		}
	}
	return nil
}

// Games returns a snapshot of the live sessions.
func (s *GameStore) Games() []*MemoryGame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*MemoryGame, 0, len(s.games))
	for _, g := range s.games {
		out = append(out, g)
	}
	return out
}

// Count returns the number of live sessions.
func (s *GameStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.games)
}
