// Package rangedrill grades complete ranges a player builds from memory
// against a scenario grid and keeps per-scenario aggregates.
package rangedrill

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarcoPoloResearchLab/rangedrill/internal/apperrors"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/hands"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/retry"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/scenarios"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingCatalog  = errors.New("scenario catalog is required")
	noOpLogger         = zap.NewNop()
)

const (
	opServiceNew = "rangedrill.service.new"
	opStart      = "rangedrill.start"
	opSubmit     = "rangedrill.submit"
	opStats      = "rangedrill.stats"

	defaultMaxRetries = 5
)

// ScenarioCatalog resolves the scenarios a range is graded against.
type ScenarioCatalog interface {
	Scenario(ctx context.Context, scenarioID uint) (scenarios.Scenario, error)
	Scenarios(ctx context.Context, scenarioIDs []uint) ([]scenarios.Scenario, error)
}

// ServiceConfig wires the range drill.
type ServiceConfig struct {
	Database   *gorm.DB
	Catalog    ScenarioCatalog
	Clock      func() time.Time
	Logger     *zap.Logger
	MaxRetries int
}

// Service grades submitted ranges.
type Service struct {
	db         *gorm.DB
	catalog    ScenarioCatalog
	clock      func() time.Time
	logger     *zap.Logger
	maxRetries int
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperrors.New(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Catalog == nil {
		return nil, apperrors.New(opServiceNew, "missing_catalog", errMissingCatalog)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Service{
		db:         cfg.Database,
		catalog:    cfg.Catalog,
		clock:      clock,
		logger:     logger,
		maxRetries: maxRetries,
	}, nil
}

// Start opens a range drill on one of the user's scenarios. The brief carries
// the table context without the grid the player must rebuild.
func (s *Service) Start(ctx context.Context, userID string, scenarioID uint) (Brief, error) {
	scenario, err := s.ownedScenario(ctx, opStart, userID, scenarioID)
	if err != nil {
		return Brief{}, err
	}
	return Brief{
		ScenarioID:  scenario.ID,
		Name:        scenario.Name,
		Description: scenario.Description,
		Positions:   []string(scenario.Positions),
		StackDepth:  scenario.StackDepth,
		Limpers:     scenario.Limpers,
	}, nil
}

// PurgeScenario deletes every attempt and aggregate recorded for a scenario
// inside the caller's transaction.
func PurgeScenario(tx *gorm.DB, scenarioID uint) error {
	if err := tx.Where("scenario_id = ?", scenarioID).Delete(&Attempt{}).Error; err != nil {
		return err
	}
	return tx.Where("scenario_id = ?", scenarioID).Delete(&Stat{}).Error
}

// Submission is a complete range built by the player. Hands missing from
// Grid count as fold.
type Submission struct {
	ScenarioID  uint
	Grid        map[string]string
	TimeSeconds *int
}

// Compare grades a submitted grid against the correct one cell by cell, in
// hand strength order.
func Compare(submitted, correct hands.Grid) (correctCount int, differences []CellDifference) {
	differences = make([]CellDifference, 0)
	for _, hand := range hands.StrengthOrder() {
		userAction, correctAction := submitted.Action(hand), correct.Action(hand)
		if userAction == correctAction {
			correctCount++
			continue
		}
		differences = append(differences, CellDifference{
			Hand:          hand.String(),
			UserAction:    userAction.String(),
			CorrectAction: correctAction.String(),
		})
	}
	return correctCount, differences
}

// Submit grades the range, stores the attempt and folds it into the user's
// aggregate for the scenario. Only the scenario's author may drill it.
func (s *Service) Submit(ctx context.Context, userID string, submission Submission) (Result, error) {
	if submission.TimeSeconds != nil && *submission.TimeSeconds < 0 {
		return Result{}, apperrors.New(opSubmit, "invalid_time", fmt.Errorf("%w: time must not be negative", apperrors.ErrInvalidInput))
	}
	submitted, err := hands.GridFromMap(submission.Grid)
	if err != nil {
		return Result{}, apperrors.New(opSubmit, "invalid_grid", errors.Join(apperrors.ErrInvalidInput, err))
	}

	userID = strings.TrimSpace(userID)
	scenario, err := s.ownedScenario(ctx, opSubmit, userID, submission.ScenarioID)
	if err != nil {
		return Result{}, err
	}

	correctGrid := scenario.Grid()
	correctCount, differences := Compare(submitted, correctGrid)
	accuracy := roundTo2(float64(correctCount) / float64(hands.Count) * 100)

	fields := []zap.Field{zap.String("user_id", userID), zap.Uint("scenario_id", scenario.ID)}
	var (
		attempt Attempt
		stat    Stat
	)
	err = retry.Do(ctx, s.maxRetries, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			now := s.clock().UTC().Unix()
			attempt = Attempt{
				UserID:           userID,
				ScenarioID:       scenario.ID,
				UserGrid:         datatypes.NewJSONType(submitted.Map()),
				Accuracy:         accuracy,
				CorrectCells:     correctCount,
				IncorrectCells:   hands.Count - correctCount,
				TimeSeconds:      submission.TimeSeconds,
				CreatedAtSeconds: now,
			}
			if err := tx.Create(&attempt).Error; err != nil {
				return err
			}

			seed := Stat{UserID: userID, ScenarioID: scenario.ID, UpdatedAtSeconds: now}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
				return err
			}
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("user_id = ? AND scenario_id = ?", userID, scenario.ID).
				Take(&stat).Error; err != nil {
				return err
			}

			total := stat.TotalAttempts + 1
			stat.AverageAccuracy = roundTo2((stat.AverageAccuracy*float64(stat.TotalAttempts) + accuracy) / float64(total))
			stat.BestAccuracy = math.Max(stat.BestAccuracy, accuracy)
			stat.TotalAttempts = total
			stat.UpdatedAtSeconds = now
			return tx.Model(&Stat{}).
				Where("user_id = ? AND scenario_id = ?", userID, scenario.ID).
				Updates(map[string]any{
					"total_attempts": stat.TotalAttempts,
					"best_accuracy":  stat.BestAccuracy,
					"avg_accuracy":   stat.AverageAccuracy,
					"updated_at_s":   stat.UpdatedAtSeconds,
				}).Error
		})
	})
	if err != nil {
		s.logError(opSubmit, "transaction_failed", err, fields...)
		if retry.IsConflict(err) {
			return Result{}, apperrors.New(opSubmit, "retries_exhausted", errors.Join(apperrors.ErrConflict, err))
		}
		return Result{}, apperrors.New(opSubmit, "transaction_failed", err)
	}

	return Result{
		AttemptID:      attempt.ID,
		Accuracy:       accuracy,
		CorrectCount:   correctCount,
		IncorrectCount: hands.Count - correctCount,
		TotalCells:     hands.Count,
		Differences:    differences,
		CorrectGrid:    correctGrid.Map(),
		Stats:          aggregateOf(stat),
	}, nil
}

// Stats returns the user's aggregate for every scenario they have drilled
// plus an overall average of the per-scenario averages.
func (s *Service) Stats(ctx context.Context, userID string) (Report, error) {
	var rows []Stat
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("scenario_id ASC").
		Find(&rows).Error; err != nil {
		s.logError(opStats, "query_failed", err, zap.String("user_id", userID))
		return Report{}, apperrors.New(opStats, "query_failed", err)
	}

	ids := make([]uint, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ScenarioID)
	}
	found, err := s.catalog.Scenarios(ctx, ids)
	if err != nil {
		return Report{}, apperrors.New(opStats, "scenarios_failed", err)
	}
	byID := make(map[uint]scenarios.Scenario, len(found))
	for _, scenario := range found {
		byID[scenario.ID] = scenario
	}

	report := Report{Scenarios: make([]ScenarioAggregate, 0, len(rows))}
	var averageSum float64
	for _, row := range rows {
		scenario, ok := byID[row.ScenarioID]
		if !ok {
			continue
		}
		report.Scenarios = append(report.Scenarios, ScenarioAggregate{
			ScenarioID:   scenario.ID,
			ScenarioName: scenario.Name,
			Positions:    []string(scenario.Positions),
			StackDepth:   scenario.StackDepth,
			Aggregate:    aggregateOf(row),
		})
		report.Overall.TotalAttempts += row.TotalAttempts
		averageSum += row.AverageAccuracy
	}
	report.Overall.ScenariosAttempted = len(report.Scenarios)
	if report.Overall.ScenariosAttempted > 0 {
		report.Overall.AverageAccuracy = roundTo2(averageSum / float64(report.Overall.ScenariosAttempted))
	}
	return report, nil
}

// ownedScenario loads a scenario the user created. Anyone else sees NotFound.
func (s *Service) ownedScenario(ctx context.Context, operation, userID string, scenarioID uint) (scenarios.Scenario, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return scenarios.Scenario{}, apperrors.New(operation, "missing_user_id", fmt.Errorf("%w: user id is required", apperrors.ErrInvalidInput))
	}
	scenario, err := s.catalog.Scenario(ctx, scenarioID)
	if err != nil {
		return scenarios.Scenario{}, apperrors.New(operation, "scenario_lookup_failed", err)
	}
	if scenario.CreatedBy != userID {
		return scenarios.Scenario{}, apperrors.New(operation, "scenario_not_owned", fmt.Errorf("%w: scenario %d", apperrors.ErrNotFound, scenario.ID))
	}
	return scenario, nil
}

func aggregateOf(stat Stat) Aggregate {
	return Aggregate{
		TotalAttempts:   stat.TotalAttempts,
		BestAccuracy:    stat.BestAccuracy,
		AverageAccuracy: stat.AverageAccuracy,
	}
}

func roundTo2(value float64) float64 {
	return math.Round(value*100) / 100
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("range drill service error", attrs...)
}
