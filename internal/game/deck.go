// internal/game/deck.go
package game

import (
	"fmt"
	"math/rand/v2"

	"github.com/jason-s-yu/memorygame/internal/models"
)

// DeckSize is the number of cards on the board: two of every kind.
var DeckSize = 2 * len(models.Kinds)

// NewDeck returns the unshuffled catalogue: ids 1..8 carry one card of each kind,
// ids 9..16 carry the twins in the same order.
func NewDeck() []models.Card {
	deck := make([]models.Card, 0, DeckSize)
	for copyIdx := 0; copyIdx < 2; copyIdx++ {
		for i, kind := range models.Kinds {
			deck = append(deck, models.NewCard(copyIdx*len(models.Kinds)+i+1, kind))
		}
	}
	return deck
}

// Shuffle permutes items in place with Fisher-Yates, walking from the last index
// down to 1 and swapping with a uniformly chosen index in [0, i]. The source is
// the auto-seeded math/rand/v2 generator, so every call yields a fresh order.
func Shuffle[T any](items []T) []T {
	for i := len(items) - 1; i > 0; i-- {
		j := rand.IntN(i + 1)
		items[i], items[j] = items[j], items[i]
	}
	return items
}

// ValidateDeck checks that deck holds exactly two cards of every kind and that ids are unique.
func ValidateDeck(deck []models.Card) error {
	if len(deck) != DeckSize {
		return fmt.Errorf("deck has %d cards, want %d", len(deck), DeckSize)
	}
	counts := make(map[models.Kind]int, len(models.Kinds))
	seen := make(map[int]bool, len(deck))
	for _, c := range deck {
		if seen[c.ID] {
			return fmt.Errorf("duplicate card id %d", c.ID)
		}
		seen[c.ID] = true
		if !c.Kind.Valid() {
			return fmt.Errorf("card %d has unknown kind %q", c.ID, c.Kind)
		}
		counts[c.Kind]++
	}
	for _, kind := range models.Kinds {
		if counts[kind] != 2 {
			return fmt.Errorf("kind %q appears %d times, want 2", kind, counts[kind])
		}
	}
	return nil
}
