package hands

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Size is the edge length of the starting-hand matrix.
	Size = 13
	// Count is the number of canonical starting hands.
	Count = Size * Size

	rankSymbols = "AKQJT98765432"
)

var (
	// ErrInvalidHand indicates that a hand notation could not be parsed.
	ErrInvalidHand = errors.New("hands: invalid hand notation")
	// ErrInvalidAction indicates that an action label is not fold, call or raise.
	ErrInvalidAction = errors.New("hands: invalid action")
)

// Hand identifies one of the 169 canonical starting hands by its matrix cell,
// row*Size + col. Pairs sit on the diagonal, suited hands above it and offsuit hands below.
type Hand uint8

// HandAt returns the hand stored at the given matrix cell.
// It panics when the coordinates fall outside [0,Size)x[0,Size).
func HandAt(row, col int) Hand {
	if !InBounds(row, col) {
		panic(fmt.Sprintf("hands: cell (%d,%d) out of range", row, col))
	}
	return Hand(row*Size + col)
}

// PositionOf returns the matrix cell of the hand.
func PositionOf(hand Hand) (int, int) {
	return hand.Position()
}

// InBounds reports whether the coordinates address a matrix cell.
func InBounds(row, col int) bool {
	return row >= 0 && row < Size && col >= 0 && col < Size
}

// All returns every hand in matrix order (row by row).
func All() []Hand {
	all := make([]Hand, Count)
	for index := range all {
		all[index] = Hand(index)
	}
	return all
}

// Position returns the row and column of the hand.
func (h Hand) Position() (int, int) {
	return int(h) / Size, int(h) % Size
}

// Valid reports whether the value addresses one of the 169 hands.
func (h Hand) Valid() bool {
	return int(h) < Count
}

// IsPair reports whether both cards share a rank.
func (h Hand) IsPair() bool {
	row, col := h.Position()
	return row == col
}

// IsSuited reports whether the hand is a suited combination.
func (h Hand) IsSuited() bool {
	row, col := h.Position()
	return row < col
}

// Ranks returns the rank symbols of the hand, higher rank first.
func (h Hand) Ranks() (byte, byte) {
	row, col := h.Position()
	if row > col {
		row, col = col, row
	}
	return rankSymbols[row], rankSymbols[col]
}

// String renders the canonical notation, e.g. "AKs", "77" or "T9o".
func (h Hand) String() string {
	if !h.Valid() {
		return fmt.Sprintf("Hand(%d)", uint8(h))
	}
	high, low := h.Ranks()
	switch {
	case h.IsPair():
		return string([]byte{high, low})
	case h.IsSuited():
		return string([]byte{high, low, 's'})
	default:
		return string([]byte{high, low, 'o'})
	}
}

// MarshalText encodes the hand as its notation.
func (h Hand) MarshalText() ([]byte, error) {
	if !h.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHand, uint8(h))
	}
	return []byte(h.String()), nil
}

// UnmarshalText parses a hand notation.
func (h *Hand) UnmarshalText(text []byte) error {
	parsed, err := ParseHand(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHand parses a notation such as "AKs", "77" or "T9o". Ranks may appear in
// either order; the result is always the canonical hand.
func ParseHand(notation string) (Hand, error) {
	trimmed := strings.TrimSpace(notation)
	if len(trimmed) != 2 && len(trimmed) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidHand, notation)
	}
	first := rankIndex(trimmed[0])
	second := rankIndex(trimmed[1])
	if first < 0 || second < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidHand, notation)
	}

	if first == second {
		if len(trimmed) != 2 {
			return 0, fmt.Errorf("%w: pair with suffix %q", ErrInvalidHand, notation)
		}
		return HandAt(first, first), nil
	}
	if len(trimmed) != 3 {
		return 0, fmt.Errorf("%w: missing suffix %q", ErrInvalidHand, notation)
	}

	high, low := min(first, second), max(first, second)
	switch trimmed[2] {
	case 's', 'S':
		return HandAt(high, low), nil
	case 'o', 'O':
		return HandAt(low, high), nil
	default:
		return 0, fmt.Errorf("%w: unknown suffix %q", ErrInvalidHand, notation)
	}
}

// MustParseHand parses a notation and panics on failure. Intended for tables and tests.
func MustParseHand(notation string) Hand {
	hand, err := ParseHand(notation)
	if err != nil {
		panic(err)
	}
	return hand
}

func rankIndex(symbol byte) int {
	if symbol >= 'a' && symbol <= 'z' {
		symbol -= 'a' - 'A'
	}
	return strings.IndexByte(rankSymbols, symbol)
}
