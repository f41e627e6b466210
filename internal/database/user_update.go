package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/memorygame/internal/auth"
	"github.com/jason-s-yu/memorygame/internal/models"
)

// ClaimEphemeralUser turns a guest into a registered player, keeping its id so
// results already recorded stay attached.
func ClaimEphemeralUser(ctx context.Context, u *models.User) error {
	hashed, err := auth.CreateHash(u.Password, auth.Params)
	if err != nil {
		return err
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))

	q := `UPDATE users
	      SET email = $1, password = $2, username = COALESCE(NULLIF($3, ''), username), is_ephemeral = false
	      WHERE id = $4 AND is_ephemeral`
	err = inTx(ctx, func(tx pgx.Tx) error {
		tag, e := tx.Exec(ctx, q, u.Email, hashed, u.Username, u.ID)
		if e != nil {
			return e
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to claim user: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to claim user: %w", err)
	}
	u.Password = hashed
	u.IsEphemeral = false
	return nil
}
