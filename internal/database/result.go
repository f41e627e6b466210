package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/memorygame/internal/models"
)

const (
	DefaultResultLimit = 50
	MaxResultLimit     = 500
)

// InsertGameResult writes one finished game. Results are append-only.
func InsertGameResult(ctx context.Context, r *models.GameResult) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CompletedOn.IsZero() {
		r.CompletedOn = time.Now().UTC()
	}

	q := `INSERT INTO game_results (id, player_id, seconds, moves, completed_on)
	      VALUES ($1, $2, $3, $4, $5)`
	err := inTx(ctx, func(tx pgx.Tx) error {
		_, e := tx.Exec(ctx, q, r.ID, r.PlayerID, r.Seconds, r.Moves, r.CompletedOn)
		return e
	})
	if err != nil {
		return fmt.Errorf("failed to insert game result: %w", err)
	}
	return nil
}

// ListGameResults returns the leaderboard: fastest time first, then fewest moves,
// then earliest completion. limit is clamped to [1, MaxResultLimit].
func ListGameResults(ctx context.Context, limit int) ([]models.GameResult, error) {
	if limit <= 0 {
		limit = DefaultResultLimit
	}
	if limit > MaxResultLimit {
		limit = MaxResultLimit
	}

	q := `
	SELECT r.id, r.player_id, u.username, r.seconds, r.moves, r.completed_on
	FROM game_results r
	JOIN users u ON u.id = r.player_id
	ORDER BY r.seconds ASC, r.moves ASC, r.completed_on ASC
	LIMIT $1
	`
	rows, err := DB.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query game results: %w", err)
	}
	defer rows.Close()

	var out []models.GameResult
	for rows.Next() {
		var r models.GameResult
		if err := rows.Scan(&r.ID, &r.PlayerID, &r.PlayerName, &r.Seconds, &r.Moves, &r.CompletedOn); err != nil {
			return nil, fmt.Errorf("failed to scan game result: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read game results: %w", err)
	}
	return out, nil
}

// ResultStore binds the result queries to the engine's recorder and the
// results board's lister.
type ResultStore struct{}

func (ResultStore) SaveResult(ctx context.Context, result models.GameResult) error {
	return InsertGameResult(ctx, &result)
}

func (ResultStore) ListResults(ctx context.Context, limit int) ([]models.GameResult, error) {
	return ListGameResults(ctx, limit)
}
