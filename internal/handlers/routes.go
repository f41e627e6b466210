package handlers

import (
	"net/http"

	"github.com/jason-s-yu/memorygame/internal/middleware"
	"github.com/sirupsen/logrus"
)

// NewRouter registers every endpoint behind the request logger.
func NewRouter(logger *logrus.Logger, s *GameServer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})

	// user endpoints
	mux.HandleFunc("POST /user/create", CreateUserHandler(s))
	mux.HandleFunc("POST /user/login", LoginHandler(s))
	mux.HandleFunc("POST /user/claim", ClaimEphemeralHandler(s))

	// game endpoints
	mux.HandleFunc("POST /game/create", CreateGameHandler(s))
	mux.HandleFunc("GET /game/{id}", GetGameHandler(s))
	mux.HandleFunc("GET /game/ws", GameWSHandler(logger, s))
	mux.HandleFunc("GET /game/ws/{id}", GameWSHandler(logger, s))

	// results endpoints
	mux.HandleFunc("GET /results", ResultsHandler(logger, s.Board))
	mux.HandleFunc("GET /results/ws", ResultsWSHandler(logger, s.Board))

	return middleware.LogMiddleware(logger)(mux)
}
