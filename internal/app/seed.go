package app

import (
	"context"
	"fmt"
	"slices"

	"github.com/MarcoPoloResearchLab/rangedrill/internal/hands"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/scenarios"
)

const (
	sampleScenarioName = "Open Raise"
	sampleGroupName    = "Open Raise 100bb"
	sampleStackDepth   = 100
)

type sampleRange struct {
	position scenarios.Position
	raise    []string
}

var sampleRanges = []sampleRange{
	{
		position: scenarios.PositionUTG1,
		raise: []string{
			"AA", "KK", "QQ", "JJ", "TT", "99", "88", "77", "66", "55",
			"AKs", "AQs", "AJs", "ATs", "A9s", "A8s", "A7s", "A6s", "A5s",
			"KQs", "KJs", "KTs", "QJs", "QTs", "JTs", "T9s",
			"AKo", "AQo", "AJo", "ATo", "KQo",
		},
	},
	{
		position: scenarios.PositionLJ,
		raise: []string{
			"AA", "KK", "QQ", "JJ", "TT", "99", "88", "77", "66", "55", "44",
			"AKs", "AQs", "AJs", "ATs", "A9s", "A8s", "A7s", "A6s", "A5s", "A4s", "A3s", "A2s",
			"KQs", "KJs", "KTs", "K9s", "K8s", "K7s", "K6s", "QJs", "QTs", "Q9s", "JTs", "J9s",
			"T9s", "98s", "87s", "76s",
			"AKo", "AQo", "AJo", "ATo", "KQo", "KJo",
		},
	},
	{
		position: scenarios.PositionHJ,
		raise: []string{
			"AA", "KK", "QQ", "JJ", "TT", "99", "88", "77", "66", "55", "44", "33", "22",
			"AKs", "AQs", "AJs", "ATs", "A9s", "A8s", "A7s", "A6s", "A5s", "A4s", "A3s", "A2s",
			"KQs", "KJs", "KTs", "K9s", "K8s", "K7s", "K6s", "K5s",
			"QJs", "QTs", "Q9s", "Q8s", "JTs", "J9s", "J8s",
			"T9s", "T8s", "98s", "97s", "87s", "86s", "76s", "75s", "65s", "54s",
			"AKo", "AQo", "AJo", "ATo", "KQo", "KJo", "QJo",
		},
	},
}

// SeedResult lists what SeedSamples created.
type SeedResult struct {
	Scenarios []scenarios.Scenario
	Group     scenarios.Group
}

// SeedSamples creates standard 100bb open-raise scenarios owned by creator and
// links them into one active group. Positions the creator already has an
// open-raise scenario for are skipped.
func SeedSamples(ctx context.Context, catalog *scenarios.Service, creator string) (SeedResult, error) {
	existing, err := catalog.ScenariosByCreator(ctx, creator)
	if err != nil {
		return SeedResult{}, err
	}

	var result SeedResult
	for _, sample := range sampleRanges {
		if hasSample(existing, sample.position) {
			continue
		}
		grid, err := sampleGrid(sample.raise)
		if err != nil {
			return SeedResult{}, err
		}
		scenario, err := catalog.CreateScenario(ctx, scenarios.Input{
			Name:        sampleScenarioName,
			Description: fmt.Sprintf("Standard %s open raise range at %dbb", sample.position, sampleStackDepth),
			Positions:   []scenarios.Position{sample.position},
			StackDepth:  sampleStackDepth,
			Grid:        grid,
			CreatedBy:   creator,
		})
		if err != nil {
			return SeedResult{}, err
		}
		result.Scenarios = append(result.Scenarios, scenario)
	}
	if len(result.Scenarios) == 0 {
		return result, nil
	}

	result.Group, err = catalog.CreateGroup(ctx, sampleGroupName, true)
	if err != nil {
		return SeedResult{}, err
	}
	for _, scenario := range result.Scenarios {
		if err := catalog.AddToGroup(ctx, result.Group.ID, scenario.ID); err != nil {
			return SeedResult{}, err
		}
	}
	return result, nil
}

func hasSample(existing []scenarios.Scenario, position scenarios.Position) bool {
	for _, scenario := range existing {
		if scenario.Name == sampleScenarioName && scenario.StackDepth == sampleStackDepth &&
			slices.Equal(scenario.PositionList(), []scenarios.Position{position}) {
			return true
		}
	}
	return false
}

func sampleGrid(raise []string) (hands.Grid, error) {
	var grid hands.Grid
	for _, notation := range raise {
		hand, err := hands.ParseHand(notation)
		if err != nil {
			return hands.Grid{}, err
		}
		grid.Set(hand, hands.Raise)
	}
	return grid, nil
}
