package sampler

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/rangedrill/internal/border"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/hands"
)

const unseenScenarioAccuracy = 50.0

// Config carries every tunable the sampler consults. It is copied at
// construction and never mutated afterwards.
type Config struct {
	Weights     WeightPolicy
	Multipliers MultiplierPolicy
	Analyzer    border.Analyzer
	Source      Source
}

// DefaultConfig returns the production policies with the global random source.
func DefaultConfig() Config {
	return Config{
		Weights:     DefaultWeightPolicy(),
		Multipliers: DefaultMultiplierPolicy(),
		Analyzer:    border.DefaultAnalyzer(),
		Source:      DefaultSource(),
	}
}

// Sampler performs the weighted scenario and hand draws of a drill.
type Sampler struct {
	weights     WeightPolicy
	multipliers MultiplierPolicy
	analyzer    border.Analyzer
	source      Source
	order       [hands.Count]hands.Hand
}

// New validates the configuration and returns a Sampler.
func New(cfg Config) (*Sampler, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Multipliers.Validate(); err != nil {
		return nil, err
	}
	source := cfg.Source
	if source == nil {
		source = DefaultSource()
	}
	return &Sampler{
		weights:     cfg.Weights,
		multipliers: cfg.Multipliers,
		analyzer:    cfg.Analyzer,
		source:      source,
		order:       hands.StrengthOrder(),
	}, nil
}

// WeightPolicy exposes the weight policy so that stores apply the same rules.
func (s *Sampler) WeightPolicy() WeightPolicy {
	return s.weights
}

// Source exposes the random source for uniform picks made alongside weighted draws.
func (s *Sampler) Source() Source {
	return s.source
}

// AccuracyPercent returns correct/total as a percentage, or 0 without attempts.
func AccuracyPercent(correct, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(correct) / float64(total) * 100
}

// ScenarioCandidate is one scenario offered to the global-mode draw.
type ScenarioCandidate struct {
	ScenarioID uint
	Attempts   int64
	Correct    int64
}

// ScenarioWeight favours weaker scenarios: max(1, 101 - accuracy), where a
// scenario without attempts counts as 50% accurate.
func ScenarioWeight(candidate ScenarioCandidate) float64 {
	accuracy := unseenScenarioAccuracy
	if candidate.Attempts > 0 {
		accuracy = AccuracyPercent(candidate.Correct, candidate.Attempts)
	}
	return max(1, 101-accuracy)
}

// DrawScenario picks one scenario id weighted by ScenarioWeight.
func (s *Sampler) DrawScenario(candidates []ScenarioCandidate) (uint, bool) {
	items := make([]Weighted[uint], 0, len(candidates))
	for _, candidate := range candidates {
		items = append(items, Weighted[uint]{Item: candidate.ScenarioID, Weight: ScenarioWeight(candidate)})
	}
	return Pick(items, s.source)
}

// HandInputs is the per-(player, scenario) state a hand draw depends on.
type HandInputs struct {
	Grid hands.Grid
	// Weights holds stored per-hand weights; absent hands use the default weight.
	Weights map[hands.Hand]float64
	// Distances holds cached border distances. When empty the distances are
	// computed from Grid; when present, absent hands are treated as unreachable.
	Distances map[hands.Hand]int
	// Accuracy is the player's scenario accuracy percentage.
	Accuracy float64
}

// HandWeights returns the final weight of every hand in strength order.
func (s *Sampler) HandWeights(inputs HandInputs) []Weighted[hands.Hand] {
	table := s.multipliers.Table(inputs.Accuracy)

	var computed [hands.Count]int
	useComputed := len(inputs.Distances) == 0
	if useComputed {
		computed = s.analyzer.Distances(inputs.Grid)
	}

	weighted := make([]Weighted[hands.Hand], 0, hands.Count)
	for _, hand := range s.order {
		base, ok := inputs.Weights[hand]
		if !ok {
			base = s.weights.Default
		}

		var distance int
		if useComputed {
			distance = computed[hand]
		} else if stored, found := inputs.Distances[hand]; found {
			distance = stored
		} else {
			distance = s.analyzer.Unreachable()
		}

		weighted = append(weighted, Weighted[hands.Hand]{Item: hand, Weight: base * table.For(distance)})
	}
	return weighted
}

// DrawHand draws one hand. The fallback is the strongest hand in the order.
func (s *Sampler) DrawHand(inputs HandInputs) hands.Hand {
	hand, ok := Pick(s.HandWeights(inputs), s.source)
	if !ok {
		return s.order[0]
	}
	return hand
}

// Deal synthesises two concrete cards for the hand.
func (s *Sampler) Deal(hand hands.Hand) (hands.Card, hands.Card, error) {
	first, second, err := hands.DealCards(hand, s.source)
	if err != nil {
		return hands.Card{}, hands.Card{}, fmt.Errorf("sampler: deal %s: %w", hand, err)
	}
	return first, second, nil
}
