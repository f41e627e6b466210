// internal/game/snapshot.go
package game

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/memorygame/internal/models"
)

// TileState is the render state of one card. Kind and icon are only revealed for
// cards that are face up or matched; face-down tiles expose nothing but their id.
type TileState struct {
	ID       int         `json:"id"`
	Kind     models.Kind `json:"kind,omitempty"`
	Icon     string      `json:"iconClass,omitempty"`
	FaceUp   bool        `json:"faceUp"`
	Disabled bool        `json:"disabled"`
	Matched  bool        `json:"matched"`
}

// Snapshot is an immutable copy of a session. Renderers are a pure function of it.
type Snapshot struct {
	GameID       uuid.UUID   `json:"game_id"`
	PlayerID     uuid.UUID   `json:"player_id"`
	Phase        Phase       `json:"phase"`
	Moves        int         `json:"moves"`
	Seconds      int         `json:"seconds"`
	Timer        string      `json:"timer"`
	TimerRunning bool        `json:"timerRunning"`
	InputsLocked bool        `json:"inputsLocked"`
	MatchedCount int         `json:"matchedCount"`
	Cards        []TileState `json:"cards"`
}

// Snapshot returns the current state of the session in deck order.
func (g *MemoryGame) Snapshot() Snapshot {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	return g.snapshotLocked()
}

// snapshotLocked assumes the lock is held.
func (g *MemoryGame) snapshotLocked() Snapshot {
	snap := Snapshot{
		GameID:       g.ID,
		PlayerID:     g.PlayerID,
		Phase:        g.phase,
		Moves:        g.moves,
		Seconds:      g.seconds,
		Timer:        FormatElapsed(g.seconds),
		TimerRunning: g.timer.Running(),
		InputsLocked: g.inputsLocked,
		MatchedCount: len(g.matched),
		Cards:        make([]TileState, 0, len(g.Deck)),
	}
	for _, c := range g.Deck {
		tile := g.tiles[c.ID]
		ts := TileState{
			ID:       c.ID,
			FaceUp:   tile.faceUp,
			Disabled: tile.disabled,
			Matched:  tile.matched,
		}
		if tile.faceUp || tile.matched {
			ts.Kind = c.Kind
			ts.Icon = c.Icon
		}
		snap.Cards = append(snap.Cards, ts)
	}
	return snap
}

// SyncState broadcasts a game_state event. Sending it under the game lock keeps
// it ordered with the events around it.
func (g *MemoryGame) SyncState() {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	g.lastActive = time.Now()
	g.fireEvent(GameEvent{Type: EventGameState})
}
