package drills

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/rangedrill/internal/apperrors"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/scenarios"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/stats"
)

// SuggestionKind names why a scenario is suggested.
type SuggestionKind string

const (
	// SuggestionDeclining marks a scenario whose recent accuracy dropped.
	SuggestionDeclining SuggestionKind = "declining"
	// SuggestionLow marks a scenario with low overall accuracy.
	SuggestionLow SuggestionKind = "low"
	// SuggestionNew marks a scenario the user created but never drilled.
	SuggestionNew SuggestionKind = "new"
)

const (
	maxSuggestions       = 5
	decliningWindow      = 100
	decliningHalf        = decliningWindow / 2
	decliningMinDrop     = 10
	decliningLimit       = 2
	lowAccuracyAttempts  = 10
	lowAccuracyThreshold = 70.0
	lowAccuracyLimit     = 2
	newScenarioLimit     = 1
)

// SuggestionGroup names a group the suggested scenario belongs to.
type SuggestionGroup struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// Suggestion points the user at a scenario worth drilling next.
type Suggestion struct {
	Kind             SuggestionKind     `json:"type"`
	Scenario         scenarios.Scenario `json:"-"`
	ScenarioID       uint               `json:"scenarioId"`
	ScenarioName     string             `json:"scenarioName"`
	Positions        []string           `json:"positions"`
	StackDepth       int                `json:"stackDepth"`
	Groups           []SuggestionGroup  `json:"groups"`
	Accuracy         *int               `json:"accuracy,omitempty"`
	PreviousAccuracy *int               `json:"previousAccuracy,omitempty"`
	Reason           string             `json:"reason"`
}

type decline struct {
	scenarioID uint
	previous   int
	current    int
}

// Suggestions lists up to five scenarios to practise: those whose recent
// accuracy dropped, those with low accuracy, then one the user created but
// never attempted.
func (s *Service) Suggestions(ctx context.Context, userID string) (suggestions []Suggestion, err error) {
	ctx, span := s.tracer.Start(ctx, opSuggestions)
	defer func() { finishSpan(span, err) }()

	declines, err := s.decliningScenarios(ctx, userID)
	if err != nil {
		return nil, err
	}
	low, err := s.stats.LowAccuracy(ctx, userID, lowAccuracyAttempts, lowAccuracyThreshold, lowAccuracyLimit)
	if err != nil {
		return nil, apperrors.New(opSuggestions, "low_accuracy_failed", err)
	}
	fresh, err := s.unattemptedScenarios(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(declines)+len(low))
	for _, item := range declines {
		ids = append(ids, item.scenarioID)
	}
	for _, stat := range low {
		ids = append(ids, stat.ScenarioID)
	}
	slices.Sort(ids)
	resolved, err := s.catalog.Scenarios(ctx, slices.Compact(ids))
	if err != nil {
		return nil, apperrors.New(opSuggestions, "scenarios_failed", err)
	}
	byID := make(map[uint]scenarios.Scenario, len(resolved))
	for _, scenario := range resolved {
		byID[scenario.ID] = scenario
	}

	suggestions = make([]Suggestion, 0, maxSuggestions)
	for _, item := range declines {
		scenario, ok := byID[item.scenarioID]
		if !ok {
			continue
		}
		current, previous := item.current, item.previous
		suggestions = append(suggestions, newSuggestion(SuggestionDeclining, scenario,
			fmt.Sprintf("%d%% → %d%% (last %d hands)", previous, current, decliningWindow),
			&current, &previous))
	}
	for _, stat := range low {
		scenario, ok := byID[stat.ScenarioID]
		if !ok {
			continue
		}
		accuracy := stats.Percent(stat.CorrectAttempts, stat.TotalAttempts)
		suggestions = append(suggestions, newSuggestion(SuggestionLow, scenario, "Needs practice", &accuracy, nil))
	}
	for _, scenario := range fresh {
		suggestions = append(suggestions, newSuggestion(SuggestionNew, scenario, "Not tried yet", nil, nil))
	}
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}

	suggestedIDs := make([]uint, 0, len(suggestions))
	for _, suggestion := range suggestions {
		suggestedIDs = append(suggestedIDs, suggestion.ScenarioID)
	}
	memberships, err := s.catalog.GroupsOf(ctx, suggestedIDs)
	if err != nil {
		return nil, apperrors.New(opSuggestions, "groups_failed", err)
	}
	for index := range suggestions {
		for _, group := range memberships[suggestions[index].ScenarioID] {
			suggestions[index].Groups = append(suggestions[index].Groups, SuggestionGroup{ID: group.ID, Name: group.Name})
		}
	}
	return suggestions, nil
}

func newSuggestion(kind SuggestionKind, scenario scenarios.Scenario, reason string, accuracy, previous *int) Suggestion {
	return Suggestion{
		Kind:             kind,
		Scenario:         scenario,
		ScenarioID:       scenario.ID,
		ScenarioName:     scenario.Name,
		Positions:        []string(scenario.Positions),
		StackDepth:       scenario.StackDepth,
		Groups:           make([]SuggestionGroup, 0),
		Accuracy:         accuracy,
		PreviousAccuracy: previous,
		Reason:           reason,
	}
}

// decliningScenarios compares the newest fifty answers of each scenario with
// the fifty before them and keeps the largest drops of at least ten points.
func (s *Service) decliningScenarios(ctx context.Context, userID string) ([]decline, error) {
	var scenarioIDs []uint
	if err := s.db.WithContext(ctx).
		Model(&Answer{}).
		Where("user_id = ?", userID).
		Distinct("scenario_id").
		Order("scenario_id ASC").
		Pluck("scenario_id", &scenarioIDs).Error; err != nil {
		s.logError(opSuggestions, "answered_scenarios_failed", err, zap.String("user_id", userID))
		return nil, apperrors.New(opSuggestions, "answered_scenarios_failed", err)
	}

	declines := make([]decline, 0)
	for _, scenarioID := range scenarioIDs {
		var outcomes []bool
		if err := s.db.WithContext(ctx).
			Model(&Answer{}).
			Where("user_id = ? AND scenario_id = ?", userID, scenarioID).
			Order("id DESC").
			Limit(decliningWindow).
			Pluck("is_correct", &outcomes).Error; err != nil {
			s.logError(opSuggestions, "recent_answers_failed", err,
				zap.String("user_id", userID),
				zap.Uint("scenario_id", scenarioID))
			return nil, apperrors.New(opSuggestions, "recent_answers_failed", err)
		}
		if len(outcomes) < decliningWindow {
			continue
		}
		current := percentCorrect(outcomes[:decliningHalf])
		previous := percentCorrect(outcomes[decliningHalf:])
		if previous-current >= decliningMinDrop {
			declines = append(declines, decline{scenarioID: scenarioID, previous: previous, current: current})
		}
	}

	slices.SortStableFunc(declines, func(a, b decline) int {
		return (b.previous - b.current) - (a.previous - a.current)
	})
	if len(declines) > decliningLimit {
		declines = declines[:decliningLimit]
	}
	return declines, nil
}

func (s *Service) unattemptedScenarios(ctx context.Context, userID string) ([]scenarios.Scenario, error) {
	created, err := s.catalog.ScenariosByCreator(ctx, userID)
	if err != nil {
		return nil, apperrors.New(opSuggestions, "created_scenarios_failed", err)
	}
	attempted, err := s.stats.AttemptedScenarioIDs(ctx, userID)
	if err != nil {
		return nil, apperrors.New(opSuggestions, "attempted_scenarios_failed", err)
	}
	result := make([]scenarios.Scenario, 0, newScenarioLimit)
	for _, scenario := range created {
		if len(result) == newScenarioLimit {
			break
		}
		if !slices.Contains(attempted, scenario.ID) {
			result = append(result, scenario)
		}
	}
	return result, nil
}

func percentCorrect(outcomes []bool) int {
	var correct int64
	for _, ok := range outcomes {
		if ok {
			correct++
		}
	}
	return stats.Percent(correct, int64(len(outcomes)))
}
