package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/memorygame/internal/middleware"
	"github.com/jason-s-yu/memorygame/internal/models"
	"github.com/jason-s-yu/memorygame/internal/results"
	"github.com/sirupsen/logrus"
)

type resultsMessage struct {
	Type    string             `json:"type"`
	Results []models.ResultRow `json:"results"`
}

// ResultsHandler serves the leaderboard. ?limit=N returns at most N rows, capped
// by the board's own limit.
func ResultsHandler(logger *logrus.Logger, board *results.Board) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = n
		}

		rows, err := board.Rows(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to load results")
			http.Error(w, "results unavailable", http.StatusServiceUnavailable)
			return
		}
		if limit > 0 && limit < len(rows) {
			rows = rows[:limit]
		}
		writeJSON(w, logger, http.StatusOK, rows)
	}
}

// ResultsWSHandler sends the leaderboard on connect and again after every refresh.
// Client messages are ignored.
func ResultsWSHandler(logger *logrus.Logger, board *results.Board) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"results"},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.WithError(err).Warn("websocket accept error")
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		updates, unsubscribe := board.Subscribe()
		defer unsubscribe()

		ctx := c.CloseRead(r.Context())

		rows, err := board.Rows(ctx)
		if err != nil {
			logger.WithError(err).Warn("initial results load failed")
			writeWS(ctx, c, wsMessage{Type: "error", Message: "results unavailable"})
		} else if err := writeWS(ctx, c, resultsMessage{Type: "results", Results: rows}); err != nil {
			middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, err)
			return
		}

		for {
			select {
			case <-ctx.Done():
				middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, nil)
				return
			case rows := <-updates:
				if err := writeWS(ctx, c, resultsMessage{Type: "results", Results: rows}); err != nil {
					middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, err)
					return
				}
			}
		}
	}
}

func writeWS(ctx context.Context, c *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return c.Write(wctx, websocket.MessageText, data)
}
