package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/memorygame/internal/auth"
	"github.com/jason-s-yu/memorygame/internal/models"
)

const userColumns = `id, COALESCE(email, ''), COALESCE(password, ''), username, is_ephemeral, is_admin, created_at`

// CreateUser inserts a user, hashing its password when one is set. Ephemeral
// guests have neither email nor password.
func CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate user id: %w", err)
		}
		user.ID = id
	}

	var email, password *string
	if user.Email != "" {
		e := strings.ToLower(strings.TrimSpace(user.Email))
		user.Email = e
		email = &e
	}
	if user.Password != "" {
		hash, err := auth.CreateHash(user.Password, auth.Params)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		user.Password = hash
		password = &hash
	}

	q := `INSERT INTO users (id, email, password, username, is_ephemeral, is_admin)
	      VALUES ($1, $2, $3, $4, $5, $6)
	      RETURNING created_at`

	err := inTx(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, q,
			user.ID, email, password, user.Username,
			user.IsEphemeral, user.IsAdmin,
		).Scan(&user.CreatedAt)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to insert user: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	return scanUser(DB.QueryRow(ctx, q, strings.ToLower(strings.TrimSpace(email))))
}

func GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return scanUser(DB.QueryRow(ctx, q, id))
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Email, &u.Password, &u.Username,
		&u.IsEphemeral, &u.IsAdmin, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// AuthenticateUser checks credentials and returns a signed session token.
func AuthenticateUser(ctx context.Context, email, password string) (string, error) {
	user, err := GetUserByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("user not found or db error: %w", err)
	}
	if user.Password == "" {
		return "", fmt.Errorf("invalid credentials")
	}

	match, err := auth.ComparePasswordAndHash(password, user.Password)
	if err != nil || !match {
		return "", fmt.Errorf("invalid credentials")
	}

	token, err := auth.CreateJWT(user.ID.String())
	if err != nil {
		return "", fmt.Errorf("failed to create jwt: %w", err)
	}

	return token, nil
}

// UserStore exposes the user queries to the HTTP layer.
type UserStore struct{}

func (UserStore) CreateUser(ctx context.Context, u *models.User) error { return CreateUser(ctx, u) }

func (UserStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return GetUserByID(ctx, id)
}

func (UserStore) ClaimEphemeralUser(ctx context.Context, u *models.User) error {
	return ClaimEphemeralUser(ctx, u)
}

func (UserStore) AuthenticateUser(ctx context.Context, email, password string) (string, error) {
	return AuthenticateUser(ctx, email, password)
}
