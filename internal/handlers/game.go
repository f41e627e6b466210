// internal/handlers/game.go
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/memorygame/internal/game"
)

type createGameResponse struct {
	GameID uuid.UUID     `json:"game_id"`
	State  game.Snapshot `json:"state"`
}

// CreateGameHandler starts a session for the caller, creating a guest if needed.
// The optional JSON body overrides pacing for this game only:
//
//	{"revealDelayMs": 500, "winDelayMs": 1000}
//
// The clock period is server configuration and cannot be changed per game.
func CreateGameHandler(s *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var overrides map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&overrides); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		pacing, err := game.ParsePacing(overrides, s.Pacing)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		userID, err := s.EnsureEphemeralUser(w, r)
		if err != nil {
			s.Logger.WithError(err).Warn("could not identify player")
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}

		g := s.NewGame(userID, pacing)
		writeJSON(w, s.Logger, http.StatusCreated, createGameResponse{GameID: g.ID, State: g.Snapshot()})
	}
}

// GetGameHandler returns the current snapshot of one of the caller's games.
func GetGameHandler(s *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := playerFromRequest(r)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		gameID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			http.Error(w, "invalid game id", http.StatusBadRequest)
			return
		}
		g, ok := s.GameStore.GetGame(gameID)
		if !ok {
			http.Error(w, "game not found", http.StatusNotFound)
			return
		}
		if g.PlayerID != userID {
			http.Error(w, "game belongs to another player", http.StatusForbidden)
			return
		}
		writeJSON(w, s.Logger, http.StatusOK, g.Snapshot())
	}
}
