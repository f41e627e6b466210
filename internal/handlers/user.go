package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/memorygame/internal/auth"
	"github.com/jason-s-yu/memorygame/internal/database"
	"github.com/jason-s-yu/memorygame/internal/models"
)

var errInvalidUserID = errors.New("token subject is not a player id")

// EnsureEphemeralUser returns the caller's player id. Callers without a usable
// token get a fresh guest account and a cookie for it. It must run before any
// response is written.
func (s *GameServer) EnsureEphemeralUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, error) {
	if token := tokenFromRequest(r); token != "" {
		sub, err := auth.AuthenticateJWT(token)
		if err == nil {
			id, parseErr := uuid.Parse(sub)
			if parseErr != nil {
				return uuid.Nil, fmt.Errorf("%w: %v", errInvalidUserID, parseErr)
			}
			_, lookupErr := s.Users.GetUserByID(r.Context(), id)
			if lookupErr == nil {
				return id, nil
			}
			if !errors.Is(lookupErr, pgx.ErrNoRows) {
				return uuid.Nil, fmt.Errorf("failed to look up user: %w", lookupErr)
			}
			s.Logger.WithField("user_id", id).Info("token refers to an unknown user, issuing a new guest")
		}
	}

	guest := models.User{
		ID:          uuid.New(),
		IsEphemeral: true,
	}
	guest.Username = "Guest-" + guest.ID.String()[:8]
	if err := s.Users.CreateUser(context.WithoutCancel(r.Context()), &guest); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create ephemeral user: %w", err)
	}
	token, err := auth.CreateJWT(guest.ID.String())
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create ephemeral JWT: %w", err)
	}
	setAuthCookie(w, token, int(s.TokenTTL.Seconds()))
	s.Logger.WithField("user_id", guest.ID).Info("created guest user")
	return guest.ID, nil
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

func (req credentialsRequest) validate(requireUsername bool) error {
	if strings.TrimSpace(req.Email) == "" || !strings.Contains(req.Email, "@") {
		return errors.New("a valid email is required")
	}
	if len(req.Password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	if requireUsername && strings.TrimSpace(req.Username) == "" {
		return errors.New("username is required")
	}
	return nil
}

// CreateUserHandler registers a player and signs them in.
func CreateUserHandler(s *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if err := req.validate(true); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		user := models.User{
			Email:    req.Email,
			Password: req.Password,
			Username: strings.TrimSpace(req.Username),
		}
		if err := s.Users.CreateUser(r.Context(), &user); err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				http.Error(w, "email already exists", http.StatusConflict)
				return
			}
			s.Logger.WithError(err).Error("failed to create user")
			http.Error(w, "error creating user", http.StatusInternalServerError)
			return
		}

		token, err := auth.CreateJWT(user.ID.String())
		if err != nil {
			s.Logger.WithError(err).Error("failed to sign token for new user")
			http.Error(w, "error creating user", http.StatusInternalServerError)
			return
		}
		setAuthCookie(w, token, int(s.TokenTTL.Seconds()))

		user.Password = ""
		writeJSON(w, s.Logger, http.StatusCreated, user)
	}
}

type loginResponse struct {
	Token string `json:"token"`
}

// LoginHandler exchanges email and password for a session token, returned in
// the body and as the auth cookie.
//
//	POST /user/login {"email": "someone@example.com", "password": "password"}
//	-> {"token": "{jwt}"}
func LoginHandler(s *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request payload", http.StatusBadRequest)
			return
		}

		token, err := s.Users.AuthenticateUser(r.Context(), req.Email, req.Password)
		if err != nil {
			s.Logger.WithError(err).Info("failed to authenticate user")
			http.Error(w, "authentication failed", http.StatusForbidden)
			return
		}

		setAuthCookie(w, token, int(s.TokenTTL.Seconds()))
		writeJSON(w, s.Logger, http.StatusOK, loginResponse{Token: token})
	}
}

// ClaimEphemeralHandler attaches credentials to the caller's guest account.
func ClaimEphemeralHandler(s *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := playerFromRequest(r)
		if err != nil {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}

		u, err := s.Users.GetUserByID(r.Context(), userID)
		if err != nil {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		if !u.IsEphemeral {
			http.Error(w, "user is not ephemeral", http.StatusBadRequest)
			return
		}

		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid claim payload", http.StatusBadRequest)
			return
		}
		if err := req.validate(false); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		u.Email = req.Email
		u.Password = req.Password
		if name := strings.TrimSpace(req.Username); name != "" {
			u.Username = name
		}
		if err := s.Users.ClaimEphemeralUser(r.Context(), u); err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				http.Error(w, "email already exists", http.StatusConflict)
				return
			}
			s.Logger.WithError(err).Error("failed to claim guest user")
			http.Error(w, "failed to finalize ephemeral user", http.StatusInternalServerError)
			return
		}

		u.Password = ""
		writeJSON(w, s.Logger, http.StatusOK, u)
	}
}
