package hands

import (
	"fmt"
	"strings"
)

// Action is the strategy label assigned to a grid cell.
type Action uint8

const (
	// Fold is the zero value so that an unset cell resolves to fold.
	Fold Action = iota
	Call
	Raise
)

// Actions lists every action in declaration order.
func Actions() []Action {
	return []Action{Fold, Call, Raise}
}

func (a Action) String() string {
	switch a {
	case Fold:
		return "fold"
	case Call:
		return "call"
	case Raise:
		return "raise"
	default:
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
}

// MarshalText encodes the action label.
func (a Action) MarshalText() ([]byte, error) {
	if a > Raise {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAction, uint8(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText parses an action label.
func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAction parses "fold", "call" or "raise" (case-insensitive).
func ParseAction(label string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "fold":
		return Fold, nil
	case "call":
		return Call, nil
	case "raise":
		return Raise, nil
	default:
		return Fold, fmt.Errorf("%w: %q", ErrInvalidAction, label)
	}
}

// Grid assigns an action to every hand. The zero Grid folds everything.
type Grid [Count]Action

// UniformGrid returns a grid with the same action in every cell.
func UniformGrid(action Action) Grid {
	var grid Grid
	for index := range grid {
		grid[index] = action
	}
	return grid
}

// Action returns the action for the hand; anything outside the matrix or
// holding an unknown label resolves to fold.
func (g Grid) Action(hand Hand) Action {
	if !hand.Valid() {
		return Fold
	}
	action := g[hand]
	if action > Raise {
		return Fold
	}
	return action
}

// ActionAt returns the action stored at a matrix cell.
func (g Grid) ActionAt(row, col int) Action {
	return g.Action(HandAt(row, col))
}

// Set assigns an action to a hand.
func (g *Grid) Set(hand Hand, action Action) {
	if hand.Valid() {
		g[hand] = action
	}
}

// Map renders the grid as notation -> action label for storage and transport.
func (g Grid) Map() map[string]string {
	out := make(map[string]string, Count)
	for index := range g {
		hand := Hand(index)
		out[hand.String()] = g.Action(hand).String()
	}
	return out
}

// Count returns the number of hands assigned the given action.
func (g Grid) Count(action Action) int {
	total := 0
	for index := range g {
		if g.Action(Hand(index)) == action {
			total++
		}
	}
	return total
}

// GridFromMap builds a grid from notation -> action labels. Hands absent from
// the map fold; unknown hands or labels are rejected.
func GridFromMap(cells map[string]string) (Grid, error) {
	var grid Grid
	for notation, label := range cells {
		hand, err := ParseHand(notation)
		if err != nil {
			return Grid{}, err
		}
		action, err := ParseAction(label)
		if err != nil {
			return Grid{}, fmt.Errorf("hand %s: %w", hand, err)
		}
		grid[hand] = action
	}
	return grid, nil
}

// LenientGridFromMap builds a grid from stored data, resolving anything it
// cannot interpret to fold.
func LenientGridFromMap(cells map[string]string) Grid {
	var grid Grid
	for notation, label := range cells {
		hand, err := ParseHand(notation)
		if err != nil {
			continue
		}
		action, err := ParseAction(label)
		if err != nil {
			continue
		}
		grid[hand] = action
	}
	return grid
}
