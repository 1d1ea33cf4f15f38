package sampler

import (
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/rangedrill/internal/border"
)

// ErrInvalidPolicy indicates a weight or multiplier policy that cannot be applied.
var ErrInvalidPolicy = errors.New("sampler: invalid policy")

// WeightPolicy governs the adaptive per-hand weight kept for every player.
type WeightPolicy struct {
	Min           float64
	Max           float64
	Default       float64
	Correct       float64
	NormalMistake float64
	BorderMistake float64
}

// DefaultWeightPolicy returns bounds [0.1,10] starting at 1.0, with -0.3 for a
// correct answer, +0.5 for an interior mistake and +0.8 for a border mistake.
func DefaultWeightPolicy() WeightPolicy {
	return WeightPolicy{
		Min:           0.1,
		Max:           10.0,
		Default:       1.0,
		Correct:       -0.3,
		NormalMistake: 0.5,
		BorderMistake: 0.8,
	}
}

// Validate checks bounds and step directions.
func (p WeightPolicy) Validate() error {
	if p.Min <= 0 || p.Max < p.Min {
		return fmt.Errorf("%w: weight bounds [%v,%v]", ErrInvalidPolicy, p.Min, p.Max)
	}
	if p.Default < p.Min || p.Default > p.Max {
		return fmt.Errorf("%w: default weight %v outside bounds", ErrInvalidPolicy, p.Default)
	}
	if p.Correct > 0 || p.NormalMistake < 0 || p.BorderMistake < 0 {
		return fmt.Errorf("%w: steps must move toward their bound", ErrInvalidPolicy)
	}
	return nil
}

// Step returns the signed adjustment for an answer outcome.
func (p WeightPolicy) Step(mistake border.MistakeType) float64 {
	switch mistake {
	case border.MistakeBorder:
		return p.BorderMistake
	case border.MistakeNormal:
		return p.NormalMistake
	default:
		return p.Correct
	}
}

// Next applies one answer outcome to the current weight and clamps the result
// into [Min,Max].
func (p WeightPolicy) Next(current float64, mistake border.MistakeType) float64 {
	return p.Clamp(current + p.Step(mistake))
}

// Clamp bounds a weight to [Min,Max].
func (p WeightPolicy) Clamp(weight float64) float64 {
	return min(p.Max, max(p.Min, weight))
}
