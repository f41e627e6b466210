package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/memorygame/internal/cache"
)

// InsertGameActions writes a batch of action records in a single transaction.
// Replayed records are ignored by the (game_id, action_index) key.
func InsertGameActions(ctx context.Context, records []cache.GameActionRecord) error {
	if len(records) == 0 {
		return nil
	}
	q := `
		INSERT INTO game_actions (
			game_id, action_index, actor_user_id, action_type, action_payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (game_id, action_index) DO NOTHING
	`
	return inTx(ctx, func(tx pgx.Tx) error {
		for _, rec := range records {
			payload, err := json.Marshal(rec.ActionPayload)
			if err != nil {
				return fmt.Errorf("failed to marshal payload for action %d: %w", rec.ActionIndex, err)
			}
			ts := time.UnixMilli(rec.Timestamp).UTC()
			if rec.Timestamp == 0 {
				ts = time.Now().UTC()
			}
			if _, err := tx.Exec(ctx, q,
				rec.GameID, rec.ActionIndex, rec.ActorUserID, rec.ActionType, payload, ts,
			); err != nil {
				return fmt.Errorf("failed to insert action %d: %w", rec.ActionIndex, err)
			}
		}
		return nil
	})
}
