package rangedrill

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/rangedrill/internal/apperrors"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/border"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/hands"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/scenarios"
)

func newTestService(t *testing.T) (*Service, *scenarios.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:rangedrill_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&scenarios.Scenario{}, &scenarios.BorderHand{}, &Attempt{}, &Stat{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := func() time.Time { return time.Unix(1700000000, 0).UTC() }
	catalog, err := scenarios.NewService(scenarios.ServiceConfig{Database: db, Analyzer: border.DefaultAnalyzer(), Clock: clock})
	if err != nil {
		t.Fatalf("failed to construct scenarios service: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db, Catalog: catalog, Clock: clock})
	if err != nil {
		t.Fatalf("failed to construct range drill service: %v", err)
	}
	return service, catalog, db
}

func mustScenario(t *testing.T, catalog *scenarios.Service, name, creator string, cells map[string]string) scenarios.Scenario {
	t.Helper()
	grid, err := hands.GridFromMap(cells)
	if err != nil {
		t.Fatalf("unexpected grid error: %v", err)
	}
	scenario, err := catalog.CreateScenario(context.Background(), scenarios.Input{
		Name:       name,
		Positions:  []scenarios.Position{scenarios.PositionCO},
		StackDepth: 40,
		Grid:       grid,
		CreatedBy:  creator,
	})
	if err != nil {
		t.Fatalf("unexpected scenario error: %v", err)
	}
	return scenario
}

func TestCompareIsCellByCell(t *testing.T) {
	correct, err := hands.GridFromMap(map[string]string{"AA": "raise", "KK": "raise", "22": "call"})
	if err != nil {
		t.Fatalf("unexpected grid error: %v", err)
	}
	submitted, err := hands.GridFromMap(map[string]string{"AA": "raise", "22": "raise", "72o": "call"})
	if err != nil {
		t.Fatalf("unexpected grid error: %v", err)
	}

	count, differences := Compare(submitted, correct)
	if count != hands.Count-3 {
		t.Fatalf("expected %d matching cells, got %d", hands.Count-3, count)
	}
	want := []CellDifference{
		{Hand: "KK", UserAction: "fold", CorrectAction: "raise"},
		{Hand: "22", UserAction: "raise", CorrectAction: "call"},
		{Hand: "72o", UserAction: "call", CorrectAction: "fold"},
	}
	if len(differences) != len(want) {
		t.Fatalf("expected %d differences, got %+v", len(want), differences)
	}
	for index := range want {
		if differences[index] != want[index] {
			t.Fatalf("difference %d: expected %+v, got %+v", index, want[index], differences[index])
		}
	}

	same, none := Compare(correct, correct)
	if same != hands.Count || len(none) != 0 {
		t.Fatalf("expected identical grids to match fully, got %d and %+v", same, none)
	}
}

func TestSubmitGradesAndAggregates(t *testing.T) {
	service, catalog, _ := newTestService(t)
	cells := map[string]string{"AA": "raise", "KK": "raise", "QQ": "raise"}
	scenario := mustScenario(t, catalog, "CO 40bb", "user-1", cells)

	seconds := 42
	first, err := service.Submit(context.Background(), "user-1", Submission{
		ScenarioID:  scenario.ID,
		Grid:        map[string]string{"AA": "raise", "KK": "call", "QQ": "fold"},
		TimeSeconds: &seconds,
	})
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	if first.Accuracy != 98.82 || first.CorrectCount != 167 || first.IncorrectCount != 2 || first.TotalCells != 169 {
		t.Fatalf("unexpected first result: %+v", first)
	}
	if len(first.Differences) != 2 || first.CorrectGrid["KK"] != "raise" {
		t.Fatalf("unexpected first differences: %+v", first.Differences)
	}
	if first.Stats != (Aggregate{TotalAttempts: 1, BestAccuracy: 98.82, AverageAccuracy: 98.82}) {
		t.Fatalf("unexpected first aggregate: %+v", first.Stats)
	}

	second, err := service.Submit(context.Background(), "user-1", Submission{ScenarioID: scenario.ID, Grid: cells})
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	if second.Accuracy != 100 || len(second.Differences) != 0 {
		t.Fatalf("unexpected second result: %+v", second)
	}
	if second.Stats.TotalAttempts != 2 || second.Stats.BestAccuracy != 100 || math.Abs(second.Stats.AverageAccuracy-99.41) > 1e-9 {
		t.Fatalf("unexpected second aggregate: %+v", second.Stats)
	}
	if second.AttemptID == first.AttemptID {
		t.Fatalf("expected distinct attempt ids")
	}
}

func TestSubmitRejectsBadRequests(t *testing.T) {
	service, catalog, _ := newTestService(t)
	owned := mustScenario(t, catalog, "Owned", "user-1", map[string]string{"AA": "raise"})
	foreign := mustScenario(t, catalog, "Foreign", "user-2", map[string]string{"AA": "raise"})
	negative := -1

	tests := []struct {
		name       string
		userID     string
		submission Submission
		kind       error
	}{
		{name: "missing user", userID: "", submission: Submission{ScenarioID: owned.ID}, kind: apperrors.ErrInvalidInput},
		{name: "unknown hand", userID: "user-1", submission: Submission{ScenarioID: owned.ID, Grid: map[string]string{"AX": "raise"}}, kind: apperrors.ErrInvalidInput},
		{name: "unknown action", userID: "user-1", submission: Submission{ScenarioID: owned.ID, Grid: map[string]string{"AA": "shove"}}, kind: apperrors.ErrInvalidInput},
		{name: "negative time", userID: "user-1", submission: Submission{ScenarioID: owned.ID, TimeSeconds: &negative}, kind: apperrors.ErrInvalidInput},
		{name: "missing scenario", userID: "user-1", submission: Submission{ScenarioID: 999}, kind: apperrors.ErrNotFound},
		{name: "foreign scenario", userID: "user-1", submission: Submission{ScenarioID: foreign.ID}, kind: apperrors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Submit(context.Background(), tt.userID, tt.submission)
			if !errors.Is(err, tt.kind) {
				t.Fatalf("expected %v, got %v", tt.kind, err)
			}
		})
	}
}

func TestStatsReport(t *testing.T) {
	service, catalog, _ := newTestService(t)
	first := mustScenario(t, catalog, "First", "user-1", map[string]string{"AA": "raise"})
	second := mustScenario(t, catalog, "Second", "user-1", map[string]string{"AA": "raise", "KK": "raise", "QQ": "raise"})

	submissions := []Submission{
		{ScenarioID: first.ID, Grid: map[string]string{"AA": "raise"}},
		{ScenarioID: first.ID, Grid: map[string]string{"AA": "raise"}},
		{ScenarioID: second.ID, Grid: map[string]string{"AA": "raise"}},
	}
	for _, submission := range submissions {
		if _, err := service.Submit(context.Background(), "user-1", submission); err != nil {
			t.Fatalf("unexpected submit error: %v", err)
		}
	}

	report, err := service.Stats(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected stats error: %v", err)
	}
	if report.Overall.TotalAttempts != 3 || report.Overall.ScenariosAttempted != 2 {
		t.Fatalf("unexpected overall: %+v", report.Overall)
	}
	// Mean of 100 and 98.82.
	if math.Abs(report.Overall.AverageAccuracy-99.41) > 1e-9 {
		t.Fatalf("unexpected overall average: %v", report.Overall.AverageAccuracy)
	}
	if len(report.Scenarios) != 2 || report.Scenarios[0].ScenarioName != "First" || report.Scenarios[0].TotalAttempts != 2 {
		t.Fatalf("unexpected scenarios: %+v", report.Scenarios)
	}

	empty, err := service.Stats(context.Background(), "user-9")
	if err != nil {
		t.Fatalf("unexpected stats error: %v", err)
	}
	if empty.Overall != (Overall{}) || len(empty.Scenarios) != 0 {
		t.Fatalf("expected empty report, got %+v", empty)
	}
}

func TestStartBriefsOwnerOnly(t *testing.T) {
	service, catalog, _ := newTestService(t)
	owned := mustScenario(t, catalog, "CO 40bb", "user-1", map[string]string{"AA": "raise"})

	brief, err := service.Start(context.Background(), "user-1", owned.ID)
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if brief.ScenarioID != owned.ID || brief.Name != "CO 40bb" || brief.StackDepth != 40 {
		t.Fatalf("unexpected brief: %+v", brief)
	}
	if len(brief.Positions) != 1 || brief.Positions[0] != "CO" {
		t.Fatalf("unexpected brief positions: %v", brief.Positions)
	}

	tests := []struct {
		name       string
		userID     string
		scenarioID uint
		kind       error
	}{
		{name: "missing user", userID: "", scenarioID: owned.ID, kind: apperrors.ErrInvalidInput},
		{name: "missing scenario", userID: "user-1", scenarioID: 999, kind: apperrors.ErrNotFound},
		{name: "foreign scenario", userID: "user-2", scenarioID: owned.ID, kind: apperrors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Start(context.Background(), tt.userID, tt.scenarioID)
			if !errors.Is(err, tt.kind) {
				t.Fatalf("expected %v, got %v", tt.kind, err)
			}
		})
	}
}

func TestPurgeScenarioDeletesAttempts(t *testing.T) {
	service, catalog, db := newTestService(t)
	cells := map[string]string{"AA": "raise"}
	purged := mustScenario(t, catalog, "Purged", "user-1", cells)
	kept := mustScenario(t, catalog, "Kept", "user-1", cells)
	for _, scenario := range []scenarios.Scenario{purged, kept} {
		if _, err := service.Submit(context.Background(), "user-1", Submission{ScenarioID: scenario.ID, Grid: cells}); err != nil {
			t.Fatalf("unexpected submit error: %v", err)
		}
	}

	if err := db.Transaction(func(tx *gorm.DB) error { return PurgeScenario(tx, purged.ID) }); err != nil {
		t.Fatalf("unexpected purge error: %v", err)
	}

	var attempts, aggregates int64
	if err := db.Model(&Attempt{}).Where("scenario_id = ?", purged.ID).Count(&attempts).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if err := db.Model(&Stat{}).Where("scenario_id = ?", purged.ID).Count(&aggregates).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if attempts != 0 || aggregates != 0 {
		t.Fatalf("expected purged rows, got %d attempts and %d aggregates", attempts, aggregates)
	}

	report, err := service.Stats(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected stats error: %v", err)
	}
	if report.Overall.TotalAttempts != 1 {
		t.Fatalf("expected the kept scenario to remain, got %+v", report.Overall)
	}
}
