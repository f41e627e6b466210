package models

// GameAction captures one player input routed to a game session.
type GameAction struct {
	ActionType string `json:"action_type"`
	CardID     int    `json:"card_id,omitempty"`
	Kind       Kind   `json:"kind,omitempty"`
}

const (
	ActionFlip  = "action_flip"
	ActionReset = "action_reset"
)
