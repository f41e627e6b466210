// internal/models/card.go
package models

// Kind is the symbol two cards must share to form a matched pair.
type Kind string

const (
	KindBug          Kind = "bug"
	KindBinoculars   Kind = "binoculars"
	KindBirthdayCake Kind = "birthday-cake"
	KindCalculator   Kind = "calculator"
	KindFlask        Kind = "flask"
	KindHourglass    Kind = "hourglass"
	KindHeart        Kind = "heart"
	KindEye          Kind = "eye"
)

// Kinds lists every kind in catalogue order. Card ids 1..8 and 9..16 follow this order.
var Kinds = []Kind{
	KindBug,
	KindBinoculars,
	KindBirthdayCake,
	KindCalculator,
	KindFlask,
	KindHourglass,
	KindHeart,
	KindEye,
}

// iconNames maps a kind to its Font Awesome glyph when the two differ.
var iconNames = map[Kind]string{
	KindHourglass: "hourglass-end",
}

// Icon returns the Font Awesome class list rendered on the card face.
func (k Kind) Icon() string {
	name, ok := iconNames[k]
	if !ok {
		name = string(k)
	}
	return "fa fa-" + name + " fa-2x"
}

// Valid reports whether k is one of the catalogue kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Card is immutable once built; only the order of cards in a deck changes.
type Card struct {
	ID   int    `json:"id"`
	Kind Kind   `json:"kind"`
	Icon string `json:"iconClass"`
}

// NewCard builds a card whose icon is derived from its kind.
func NewCard(id int, kind Kind) Card {
	return Card{ID: id, Kind: kind, Icon: kind.Icon()}
}
