package sampler

import "fmt"

// NearDistances is the number of distances with their own multiplier; every
// deeper hand uses the table default.
const NearDistances = 4

// MultiplierPolicy scales hand weights by border distance, escalating focus
// on the boundary as scenario accuracy rises.
type MultiplierPolicy struct {
	Base                 [NearDistances]float64
	BaseDefault          float64
	BorderBoost          float64
	MasteryThreshold     float64
	MasteryScale         [NearDistances]float64
	MasteryDefault       float64
	ProficiencyThreshold float64
	ProficiencyDefault   float64
}

// DefaultMultiplierPolicy returns the three-tier policy used for drills.
func DefaultMultiplierPolicy() MultiplierPolicy {
	return MultiplierPolicy{
		Base:                 [NearDistances]float64{3.0, 2.0, 1.5, 1.2},
		BaseDefault:          1.0,
		BorderBoost:          1.5,
		MasteryThreshold:     90,
		MasteryScale:         [NearDistances]float64{2.5, 2.0, 1.5, 1.2},
		MasteryDefault:       0.35,
		ProficiencyThreshold: 80,
		ProficiencyDefault:   0.5,
	}
}

// Validate rejects negative multipliers and inverted thresholds.
func (p MultiplierPolicy) Validate() error {
	for distance := range NearDistances {
		if p.Base[distance] < 0 || p.MasteryScale[distance] < 0 {
			return fmt.Errorf("%w: negative multiplier at distance %d", ErrInvalidPolicy, distance)
		}
	}
	if p.BaseDefault < 0 || p.BorderBoost < 0 || p.MasteryDefault < 0 || p.ProficiencyDefault < 0 {
		return fmt.Errorf("%w: negative multiplier", ErrInvalidPolicy)
	}
	if p.ProficiencyThreshold > p.MasteryThreshold {
		return fmt.Errorf("%w: proficiency threshold above mastery threshold", ErrInvalidPolicy)
	}
	return nil
}

// MultiplierTable maps a border distance to a weight multiplier.
type MultiplierTable struct {
	Near    [NearDistances]float64
	Default float64
}

// For returns the multiplier for a distance; distances outside [0,NearDistances) use Default.
func (t MultiplierTable) For(distance int) float64 {
	if distance < 0 || distance >= NearDistances {
		return t.Default
	}
	return t.Near[distance]
}

// Table builds the multiplier table for a scenario accuracy percentage.
// Near distances are always boosted; above the mastery threshold they are
// replaced by the scaled base values and interior hands are suppressed, and
// above the proficiency threshold interior hands are partially suppressed.
func (p MultiplierPolicy) Table(accuracy float64) MultiplierTable {
	var table MultiplierTable
	for distance := range NearDistances {
		table.Near[distance] = p.Base[distance] * p.BorderBoost
	}
	table.Default = p.BaseDefault

	switch {
	case accuracy > p.MasteryThreshold:
		for distance := range NearDistances {
			table.Near[distance] = p.Base[distance] * p.MasteryScale[distance]
		}
		table.Default = p.MasteryDefault
	case accuracy > p.ProficiencyThreshold:
		table.Default = p.ProficiencyDefault
	}
	return table
}
