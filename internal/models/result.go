package models

import (
	"time"

	"github.com/google/uuid"
)

// GameResult is the record written once per won game. It is never updated.
type GameResult struct {
	ID          uuid.UUID `json:"id"`
	PlayerID    uuid.UUID `json:"player_id"`
	PlayerName  string    `json:"player_name,omitempty"` // filled by list queries only
	Seconds     int       `json:"seconds"`
	Moves       int       `json:"moves"`
	CompletedOn time.Time `json:"completed_on"`
}

// ResultRow is one line of the results table as shown to clients.
type ResultRow struct {
	Player      string `json:"player"`
	Time        string `json:"time"`
	Moves       int    `json:"moves"`
	CompletedOn string `json:"completedOn"`
}
