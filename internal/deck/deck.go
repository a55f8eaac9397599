// Package deck holds the card catalog and the three-card draw.
package deck

import (
	"fmt"
	"math/rand/v2"

	"github.com/user/arcana/internal/types"
)

// SpreadSize is the number of cards in a past/present/future spread.
const SpreadSize = 3

// Deck is an immutable card catalog. Draw order carries meaning: the first
// drawn card is the past, the second the present, the third the future.
type Deck struct {
	cards []types.Card
}

// New creates a Deck from the given catalog. A catalog smaller than the
// spread size is a fatal configuration error.
func New(cards []types.Card) (*Deck, error) {
	if len(cards) < SpreadSize {
		return nil, fmt.Errorf("deck has %d cards, need at least %d", len(cards), SpreadSize)
	}
	return &Deck{cards: cards}, nil
}

// Default returns the built-in 36-card catalog.
func Default() *Deck {
	d, err := New(catalog)
	if err != nil {
		// The built-in catalog always satisfies the size precondition.
		panic(err)
	}
	return d
}

// Size returns the number of cards in the catalog.
func (d *Deck) Size() int { return len(d.cards) }

// Draw returns n pairwise-distinct cards drawn without replacement.
// The returned order is the draw order and must not be re-sorted.
func (d *Deck) Draw(n int) ([]types.Card, error) {
	if n > len(d.cards) {
		return nil, fmt.Errorf("cannot draw %d cards from a deck of %d", n, len(d.cards))
	}
	perm := rand.Perm(len(d.cards))
	drawn := make([]types.Card, n)
	for i := 0; i < n; i++ {
		drawn[i] = d.cards[perm[i]]
	}
	return drawn, nil
}

// Names returns just the card names, in the given order.
func Names(cards []types.Card) []string {
	names := make([]string, len(cards))
	for i, c := range cards {
		names[i] = c.Name
	}
	return names
}

// catalog is the full deck: the 22 major arcana plus a selection of minors.
var catalog = []types.Card{
	{Name: "The Fool", Image: "fool.jpg"},
	{Name: "The Magician", Image: "magician.jpg"},
	{Name: "The High Priestess", Image: "high_priestess.jpg"},
	{Name: "The Empress", Image: "empress.jpg"},
	{Name: "The Emperor", Image: "emperor.jpg"},
	{Name: "The Hierophant", Image: "hierophant.jpg"},
	{Name: "The Lovers", Image: "lovers.jpg"},
	{Name: "The Chariot", Image: "chariot.jpg"},
	{Name: "Strength", Image: "strength.jpg"},
	{Name: "The Hermit", Image: "hermit.jpg"},
	{Name: "Wheel of Fortune", Image: "wheel_of_fortune.jpg"},
	{Name: "Justice", Image: "justice.jpg"},
	{Name: "The Hanged Man", Image: "hanged_man.jpg"},
	{Name: "Death", Image: "death.jpg"},
	{Name: "Temperance", Image: "temperance.jpg"},
	{Name: "The Devil", Image: "devil.jpg"},
	{Name: "The Tower", Image: "tower.jpg"},
	{Name: "The Star", Image: "star.jpg"},
	{Name: "The Moon", Image: "moon.jpg"},
	{Name: "The Sun", Image: "sun.jpg"},
	{Name: "Judgement", Image: "judgement.jpg"},
	{Name: "The World", Image: "world.jpg"},

	{Name: "Ace of Cups", Image: "cups_ace.jpg"},
	{Name: "Two of Wands", Image: "wands_two.jpg"},
	{Name: "Three of Swords", Image: "swords_three.jpg"},
	{Name: "Four of Pentacles", Image: "pentacles_four.jpg"},
	{Name: "Five of Wands", Image: "wands_five.jpg"},
	{Name: "Six of Cups", Image: "cups_six.jpg"},
	{Name: "Seven of Swords", Image: "swords_seven.jpg"},
	{Name: "Eight of Pentacles", Image: "pentacles_eight.jpg"},
	{Name: "Nine of Cups", Image: "cups_nine.jpg"},
	{Name: "Ten of Wands", Image: "wands_ten.jpg"},
	{Name: "Page of Cups", Image: "cups_page.jpg"},
	{Name: "Knight of Swords", Image: "swords_knight.jpg"},
	{Name: "Queen of Pentacles", Image: "pentacles_queen.jpg"},
	{Name: "King of Wands", Image: "wands_king.jpg"},
}
