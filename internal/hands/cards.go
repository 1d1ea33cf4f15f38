package hands

import (
	"fmt"

	"github.com/paulhankin/poker"
)

const suitSymbols = "cdhs"

// IntSource supplies uniform integers in [0,n).
type IntSource interface {
	IntN(n int) int
}

// Card is a concrete playing card dealt for a hand class.
type Card struct {
	Rank string `json:"rank"`
	Suit string `json:"suit"`
	card poker.Card
}

// Poker exposes the card in the evaluator representation.
func (c Card) Poker() poker.Card {
	return c.card
}

func (c Card) String() string {
	return c.Rank + c.Suit
}

// DealCards synthesises two cards matching the hand class. Pairs and offsuit
// hands receive two distinct suits drawn without replacement; suited hands share one.
func DealCards(hand Hand, source IntSource) (Card, Card, error) {
	if !hand.Valid() {
		return Card{}, Card{}, fmt.Errorf("%w: %d", ErrInvalidHand, uint8(hand))
	}
	high, low := hand.Ranks()

	firstSuit := source.IntN(len(suitSymbols))
	secondSuit := firstSuit
	if !hand.IsSuited() {
		secondSuit = (firstSuit + 1 + source.IntN(len(suitSymbols)-1)) % len(suitSymbols)
	}

	first, err := newCard(high, firstSuit)
	if err != nil {
		return Card{}, Card{}, err
	}
	second, err := newCard(low, secondSuit)
	if err != nil {
		return Card{}, Card{}, err
	}
	return first, second, nil
}

func newCard(rankSymbol byte, suitIndex int) (Card, error) {
	index := rankIndex(rankSymbol)
	if index < 0 || suitIndex < 0 || suitIndex >= len(suitSymbols) {
		return Card{}, fmt.Errorf("hands: cannot deal rank %q suit %d", rankSymbol, suitIndex)
	}
	// Ace is rank 1 for the evaluator, king 13 down to deuce 2.
	rank := Size + 1 - index
	if index == 0 {
		rank = 1
	}
	card, err := poker.MakeCard(poker.Suit(suitIndex), poker.Rank(rank))
	if err != nil {
		return Card{}, fmt.Errorf("hands: make card: %w", err)
	}
	return Card{
		Rank: string(rankSymbol),
		Suit: string(suitSymbols[suitIndex]),
		card: card,
	}, nil
}
