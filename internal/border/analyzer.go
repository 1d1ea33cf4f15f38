package border

import (
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/rangedrill/internal/hands"
)

const (
	// DefaultUnreachable marks hands the propagation never reaches.
	DefaultUnreachable = 99
	// DefaultStorageCap is the largest distance the border-hand cache stores.
	DefaultStorageCap = 255
)

// ErrInvalidAnalyzerConfig indicates a sentinel or cap that cannot be stored.
var ErrInvalidAnalyzerConfig = errors.New("border: invalid analyzer config")

// neighbourOffsets is the Moore neighbourhood of a matrix cell.
var neighbourOffsets = [8][2]int{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

// AnalyzerConfig fixes the distance sentinel and the storage cap.
type AnalyzerConfig struct {
	Unreachable int
	StorageCap  int
}

// DefaultAnalyzerConfig returns the sentinel 99 and the cap 255.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{Unreachable: DefaultUnreachable, StorageCap: DefaultStorageCap}
}

// Analyzer finds decision-boundary cells in a grid and measures how deep every
// other cell sits inside its own action region.
type Analyzer struct {
	cfg AnalyzerConfig
}

// NewAnalyzer validates the configuration and returns an Analyzer.
func NewAnalyzer(cfg AnalyzerConfig) (Analyzer, error) {
	if cfg.StorageCap <= 0 {
		return Analyzer{}, fmt.Errorf("%w: storage cap %d", ErrInvalidAnalyzerConfig, cfg.StorageCap)
	}
	if cfg.Unreachable <= 0 || cfg.Unreachable > cfg.StorageCap {
		return Analyzer{}, fmt.Errorf("%w: unreachable %d outside (0,%d]", ErrInvalidAnalyzerConfig, cfg.Unreachable, cfg.StorageCap)
	}
	return Analyzer{cfg: cfg}, nil
}

// DefaultAnalyzer returns an Analyzer with DefaultAnalyzerConfig.
func DefaultAnalyzer() Analyzer {
	return Analyzer{cfg: DefaultAnalyzerConfig()}
}

// Config returns the configuration the analyzer was built with.
func (a Analyzer) Config() AnalyzerConfig {
	return a.config()
}

// Unreachable returns the sentinel distance.
func (a Analyzer) Unreachable() int {
	return a.config().Unreachable
}

func (a Analyzer) config() AnalyzerConfig {
	if a.cfg.StorageCap == 0 {
		return DefaultAnalyzerConfig()
	}
	return a.cfg
}

// HandSet is a fixed-size membership set over the 169 hands.
type HandSet [hands.Count]bool

// Contains reports whether the hand is in the set.
func (s HandSet) Contains(hand hands.Hand) bool {
	return hand.Valid() && s[hand]
}

// Len returns the number of hands in the set.
func (s HandSet) Len() int {
	total := 0
	for _, member := range s {
		if member {
			total++
		}
	}
	return total
}

// Hands lists the members in matrix order.
func (s HandSet) Hands() []hands.Hand {
	members := make([]hands.Hand, 0, s.Len())
	for index, member := range s {
		if member {
			members = append(members, hands.Hand(index))
		}
	}
	return members
}

// Detect returns every hand with at least one in-bounds neighbour holding a different action.
func (a Analyzer) Detect(grid hands.Grid) HandSet {
	var set HandSet
	for index := range set {
		set[index] = isBorder(grid, hands.Hand(index))
	}
	return set
}

// IsBorder reports whether a single hand borders a different action.
func (a Analyzer) IsBorder(grid hands.Grid, hand hands.Hand) bool {
	return hand.Valid() && isBorder(grid, hand)
}

func isBorder(grid hands.Grid, hand hands.Hand) bool {
	action := grid.Action(hand)
	row, col := hand.Position()
	for _, offset := range neighbourOffsets {
		nextRow, nextCol := row+offset[0], col+offset[1]
		if !hands.InBounds(nextRow, nextCol) {
			continue
		}
		if grid.ActionAt(nextRow, nextCol) != action {
			return true
		}
	}
	return false
}

// Distances runs a multi-source breadth-first search seeded with every border
// hand at distance 0. A step only enters a neighbour holding the same action as
// the cell it leaves. Hands never reached get the Unreachable sentinel.
func (a Analyzer) Distances(grid hands.Grid) [hands.Count]int {
	cfg := a.config()

	var (
		distances [hands.Count]int
		visited   [hands.Count]bool
		queue     [hands.Count]hands.Hand
		head      int
		tail      int
	)
	for index := range distances {
		distances[index] = cfg.Unreachable
	}

	for index := range queue {
		hand := hands.Hand(index)
		if isBorder(grid, hand) {
			distances[hand] = 0
			visited[hand] = true
			queue[tail] = hand
			tail++
		}
	}

	for head < tail {
		current := queue[head]
		head++
		action := grid.Action(current)
		row, col := current.Position()
		for _, offset := range neighbourOffsets {
			nextRow, nextCol := row+offset[0], col+offset[1]
			if !hands.InBounds(nextRow, nextCol) {
				continue
			}
			next := hands.HandAt(nextRow, nextCol)
			if visited[next] || grid.Action(next) != action {
				continue
			}
			visited[next] = true
			distances[next] = distances[current] + 1
			queue[tail] = next
			tail++
		}
	}
	return distances
}

// StorageDistance clamps a distance into the range the cache can hold.
func (a Analyzer) StorageDistance(distance int) int {
	cfg := a.config()
	switch {
	case distance < 0:
		return 0
	case distance > cfg.StorageCap:
		return cfg.StorageCap
	default:
		return distance
	}
}
