// internal/game/events.go
package game

import "github.com/jason-s-yu/memorygame/internal/models"

// GameEventType is an enum-like type for events pushed to the client.
type GameEventType string

const (
	EventGameState      GameEventType = "game_state"      // full snapshot, sent on connect and on request
	EventCardFlipped    GameEventType = "card_flipped"    // a face-down card was turned up
	EventTurnMatched    GameEventType = "turn_matched"    // second card shares the first card's kind
	EventTurnMismatched GameEventType = "turn_mismatched" // second card differs; both will be hidden
	EventTurnResolved   GameEventType = "turn_resolved"   // reveal pause over, inputs released
	EventTimerTick      GameEventType = "timer_tick"
	EventGameWon        GameEventType = "game_won" // carries the final moves and clock for the win dialog
	EventGameReset      GameEventType = "game_reset"
)

// EventCard identifies a card inside an event payload.
type EventCard struct {
	ID   int         `json:"id"`
	Kind models.Kind `json:"kind,omitempty"`
	Icon string      `json:"iconClass,omitempty"`
}

// GameEvent is the single envelope used for every server -> client message.
type GameEvent struct {
	Type    GameEventType          `json:"type"`
	Card    *EventCard             `json:"card,omitempty"`
	Card1   *EventCard             `json:"card1,omitempty"`
	Card2   *EventCard             `json:"card2,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	State   *Snapshot              `json:"state,omitempty"`
}

func buildEventCard(c models.Card) *EventCard {
	return &EventCard{ID: c.ID, Kind: c.Kind, Icon: c.Icon}
}
