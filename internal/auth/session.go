// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrNotInitialized is returned when tokens are used before Init.
var ErrNotInitialized = errors.New("session keys not initialized")

var (
	keyMu      sync.RWMutex
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// tokenTTL of 0 issues tokens without an exp claim.
	tokenTTL time.Duration
)

// Init generates a fresh ed25519 key pair. Tokens issued before a restart stop
// verifying, which drops guest sessions along with in-memory games.
func Init(ttl time.Duration) error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	setKeys(priv, pub, ttl)
	return nil
}

// InitFromPath reads a raw ed25519 key pair from disk.
func InitFromPath(privatePath, publicPath string, ttl time.Duration) error {
	privData, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}
	pubData, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(privData) != ed25519.PrivateKeySize || len(pubData) != ed25519.PublicKeySize {
		return fmt.Errorf("unexpected ed25519 key sizes %d/%d", len(privData), len(pubData))
	}
	setKeys(ed25519.PrivateKey(privData), ed25519.PublicKey(pubData), ttl)
	return nil
}

func setKeys(priv ed25519.PrivateKey, pub ed25519.PublicKey, ttl time.Duration) {
	keyMu.Lock()
	defer keyMu.Unlock()
	privateKey, publicKey, tokenTTL = priv, pub, ttl
}

// CreateJWT signs a token whose subject is the player's id.
func CreateJWT(userID string) (string, error) {
	keyMu.RLock()
	priv, ttl := privateKey, tokenTTL
	keyMu.RUnlock()
	if priv == nil {
		return "", ErrNotInitialized
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  userID,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(priv)
}

// AuthenticateJWT verifies a token and returns its subject.
func AuthenticateJWT(tokenString string) (string, error) {
	keyMu.RLock()
	pub := publicKey
	keyMu.RUnlock()
	if pub == nil {
		return "", ErrNotInitialized
	}

	claims := &jwt.RegisteredClaims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return pub, nil
	})
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("missing sub in jwt")
	}
	return claims.Subject, nil
}

// PlayerIDFromToken verifies a token and parses its subject as a player id.
func PlayerIDFromToken(tokenString string) (uuid.UUID, error) {
	sub, err := AuthenticateJWT(tokenString)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid subject %q: %w", sub, err)
	}
	return id, nil
}
