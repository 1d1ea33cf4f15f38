package scenarios

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarcoPoloResearchLab/rangedrill/internal/apperrors"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/border"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/hands"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const (
	opServiceNew         = "scenarios.service.new"
	opCreateScenario     = "scenarios.create_scenario"
	opUpdateGrid         = "scenarios.update_grid"
	opUpdateScenario     = "scenarios.update_scenario"
	opDeleteScenario     = "scenarios.delete_scenario"
	opScenario           = "scenarios.scenario"
	opScenarios          = "scenarios.scenarios"
	opCreateGroup        = "scenarios.create_group"
	opSetGroupActive     = "scenarios.set_group_active"
	opAddToGroup         = "scenarios.add_to_group"
	opActiveScenarioIDs  = "scenarios.active_scenario_ids"
	opGroupScenarioIDs   = "scenarios.group_scenario_ids"
	opComputeBorderHands = "scenarios.compute_border_hands"
	opBorderHands        = "scenarios.border_hands"
	opBorderDistances    = "scenarios.border_distances"

	borderHandBatchSize = 100
)

// CascadeFunc removes rows owned by other stores that reference a scenario
// being deleted. It runs inside the deleting transaction.
type CascadeFunc func(tx *gorm.DB, scenarioID uint) error

// ServiceConfig wires the scenario store.
type ServiceConfig struct {
	Database *gorm.DB
	Analyzer border.Analyzer
	Clock    func() time.Time
	Logger   *zap.Logger
	Cascades []CascadeFunc
}

// Service persists scenarios, groups and the border-hand cache.
type Service struct {
	db       *gorm.DB
	analyzer border.Analyzer
	clock    func() time.Time
	logger   *zap.Logger
	cascades []CascadeFunc
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperrors.New(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:       cfg.Database,
		analyzer: cfg.Analyzer,
		clock:    clock,
		logger:   logger,
		cascades: cfg.Cascades,
	}, nil
}

// Analyzer returns the border analyzer used for the cache.
func (s *Service) Analyzer() border.Analyzer {
	return s.analyzer
}

// CreateScenario stores a scenario and its border-hand cache in one transaction.
func (s *Service) CreateScenario(ctx context.Context, input Input) (Scenario, error) {
	if err := input.validate(); err != nil {
		return Scenario{}, apperrors.New(opCreateScenario, "invalid_input", fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err))
	}

	now := s.clock().UTC().Unix()
	scenario := Scenario{
		Name:             strings.TrimSpace(input.Name),
		Description:      strings.TrimSpace(input.Description),
		Positions:        datatypes.NewJSONSlice(positionLabels(input.Positions)),
		StackDepth:       input.StackDepth,
		Limpers:          input.Limpers,
		GridJSON:         datatypes.NewJSONType(input.Grid.Map()),
		CreatedBy:        strings.TrimSpace(input.CreatedBy),
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&scenario).Error; err != nil {
			s.logError(opCreateScenario, "insert_failed", err, zap.String("name", scenario.Name))
			return apperrors.New(opCreateScenario, "insert_failed", err)
		}
		return s.storeBorderHands(tx, opCreateScenario, scenario.ID, input.Grid)
	})
	if err != nil {
		return Scenario{}, err
	}
	return scenario, nil
}

// UpdateGrid replaces a scenario grid and recomputes its border-hand cache in
// the same transaction.
func (s *Service) UpdateGrid(ctx context.Context, scenarioID uint, grid hands.Grid) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Scenario{}).
			Where("id = ?", scenarioID).
			Updates(map[string]any{
				"grid":         datatypes.NewJSONType(grid.Map()),
				"updated_at_s": s.clock().UTC().Unix(),
			})
		if result.Error != nil {
			s.logError(opUpdateGrid, "update_failed", result.Error, zap.Uint("scenario_id", scenarioID))
			return apperrors.New(opUpdateGrid, "update_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.New(opUpdateGrid, "scenario_missing", scenarioNotFound(scenarioID))
		}
		return s.storeBorderHands(tx, opUpdateGrid, scenarioID, grid)
	})
}

// Update changes scenario metadata. Nil fields keep their stored value.
type Update struct {
	Name        *string
	Description *string
	Positions   []Position
	StackDepth  *int
	Limpers     *int
	Grid        *hands.Grid
}

// UpdateScenario applies an Update and returns the stored scenario. A new
// grid rebuilds the border-hand cache in the same transaction.
func (s *Service) UpdateScenario(ctx context.Context, scenarioID uint, update Update) (Scenario, error) {
	var updated Scenario
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current Scenario
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", scenarioID).Take(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.New(opUpdateScenario, "scenario_missing", scenarioNotFound(scenarioID))
		}
		if err != nil {
			s.logError(opUpdateScenario, "query_failed", err, zap.Uint("scenario_id", scenarioID))
			return apperrors.New(opUpdateScenario, "query_failed", err)
		}

		merged := Input{
			Name:        current.Name,
			Description: current.Description,
			Positions:   current.PositionList(),
			StackDepth:  current.StackDepth,
			Limpers:     current.Limpers,
			Grid:        current.Grid(),
			CreatedBy:   current.CreatedBy,
		}
		if update.Name != nil {
			merged.Name = *update.Name
		}
		if update.Description != nil {
			merged.Description = *update.Description
		}
		if update.Positions != nil {
			merged.Positions = update.Positions
		}
		if update.StackDepth != nil {
			merged.StackDepth = *update.StackDepth
		}
		if update.Limpers != nil {
			merged.Limpers = *update.Limpers
		}
		if update.Grid != nil {
			merged.Grid = *update.Grid
		}
		if err := merged.validate(); err != nil {
			return apperrors.New(opUpdateScenario, "invalid_input", fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err))
		}

		changes := map[string]any{
			"name":         strings.TrimSpace(merged.Name),
			"description":  strings.TrimSpace(merged.Description),
			"positions":    datatypes.NewJSONSlice(positionLabels(merged.Positions)),
			"stack_depth":  merged.StackDepth,
			"limpers":      merged.Limpers,
			"updated_at_s": s.clock().UTC().Unix(),
		}
		if update.Grid != nil {
			changes["grid"] = datatypes.NewJSONType(update.Grid.Map())
		}
		if err := tx.Model(&Scenario{}).Where("id = ?", scenarioID).Updates(changes).Error; err != nil {
			s.logError(opUpdateScenario, "update_failed", err, zap.Uint("scenario_id", scenarioID))
			return apperrors.New(opUpdateScenario, "update_failed", err)
		}
		if update.Grid != nil {
			if err := s.storeBorderHands(tx, opUpdateScenario, scenarioID, *update.Grid); err != nil {
				return err
			}
		}
		if err := tx.Where("id = ?", scenarioID).Take(&updated).Error; err != nil {
			s.logError(opUpdateScenario, "reload_failed", err, zap.Uint("scenario_id", scenarioID))
			return apperrors.New(opUpdateScenario, "reload_failed", err)
		}
		return nil
	})
	if err != nil {
		return Scenario{}, err
	}
	return updated, nil
}

// DeleteScenario removes a scenario with its border hands, its group
// memberships and every row the configured cascades own, in one transaction.
func (s *Service) DeleteScenario(ctx context.Context, scenarioID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &Scenario{}, scenarioID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.New(opDeleteScenario, "scenario_missing", scenarioNotFound(scenarioID))
			}
			s.logError(opDeleteScenario, "query_failed", err, zap.Uint("scenario_id", scenarioID))
			return apperrors.New(opDeleteScenario, "query_failed", err)
		}
		if err := tx.Where("scenario_id = ?", scenarioID).Delete(&GroupScenario{}).Error; err != nil {
			s.logError(opDeleteScenario, "memberships_delete_failed", err, zap.Uint("scenario_id", scenarioID))
			return apperrors.New(opDeleteScenario, "memberships_delete_failed", err)
		}
		if err := tx.Where("scenario_id = ?", scenarioID).Delete(&BorderHand{}).Error; err != nil {
			s.logError(opDeleteScenario, "border_hands_delete_failed", err, zap.Uint("scenario_id", scenarioID))
			return apperrors.New(opDeleteScenario, "border_hands_delete_failed", err)
		}
		for _, cascade := range s.cascades {
			if err := cascade(tx, scenarioID); err != nil {
				s.logError(opDeleteScenario, "cascade_failed", err, zap.Uint("scenario_id", scenarioID))
				return apperrors.New(opDeleteScenario, "cascade_failed", err)
			}
		}
		if err := tx.Where("id = ?", scenarioID).Delete(&Scenario{}).Error; err != nil {
			s.logError(opDeleteScenario, "delete_failed", err, zap.Uint("scenario_id", scenarioID))
			return apperrors.New(opDeleteScenario, "delete_failed", err)
		}
		return nil
	})
}

// Scenario loads one scenario.
func (s *Service) Scenario(ctx context.Context, scenarioID uint) (Scenario, error) {
	var scenario Scenario
	err := s.db.WithContext(ctx).Where("id = ?", scenarioID).Take(&scenario).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Scenario{}, apperrors.New(opScenario, "scenario_missing", scenarioNotFound(scenarioID))
	}
	if err != nil {
		s.logError(opScenario, "query_failed", err, zap.Uint("scenario_id", scenarioID))
		return Scenario{}, apperrors.New(opScenario, "query_failed", err)
	}
	return scenario, nil
}

// Scenarios loads the scenarios with the given ids ordered by id. Unknown ids
// are skipped.
func (s *Service) Scenarios(ctx context.Context, scenarioIDs []uint) ([]Scenario, error) {
	found, err := FindScenarios(s.db.WithContext(ctx), scenarioIDs)
	if err != nil {
		s.logError(opScenarios, "query_failed", err, zap.Int("requested", len(scenarioIDs)))
		return nil, apperrors.New(opScenarios, "query_failed", err)
	}
	return found, nil
}

// FindScenarios reads scenarios by id through db, which may be a transaction.
func FindScenarios(db *gorm.DB, scenarioIDs []uint) ([]Scenario, error) {
	if len(scenarioIDs) == 0 {
		return nil, nil
	}
	var found []Scenario
	if err := db.Where("id IN ?", scenarioIDs).Order("id ASC").Find(&found).Error; err != nil {
		return nil, err
	}
	return found, nil
}

// ScenariosByCreator lists scenarios authored by a user, oldest first.
func (s *Service) ScenariosByCreator(ctx context.Context, userID string) ([]Scenario, error) {
	var found []Scenario
	if err := s.db.WithContext(ctx).
		Where("created_by = ?", userID).
		Order("id ASC").
		Find(&found).Error; err != nil {
		s.logError(opScenarios, "query_failed", err, zap.String("user_id", userID))
		return nil, apperrors.New(opScenarios, "query_failed", err)
	}
	return found, nil
}

// CreateGroup stores a scenario group.
func (s *Service) CreateGroup(ctx context.Context, name string, active bool) (Group, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || len(trimmed) > maxNameLength {
		return Group{}, apperrors.New(opCreateGroup, "invalid_name", apperrors.ErrInvalidInput)
	}
	group := Group{Name: trimmed, IsActive: active, CreatedAtSeconds: s.clock().UTC().Unix()}
	if err := s.db.WithContext(ctx).Create(&group).Error; err != nil {
		s.logError(opCreateGroup, "insert_failed", err, zap.String("name", trimmed))
		return Group{}, apperrors.New(opCreateGroup, "insert_failed", err)
	}
	return group, nil
}

// SetGroupActive toggles whether a group feeds global drills.
func (s *Service) SetGroupActive(ctx context.Context, groupID uint, active bool) error {
	result := s.db.WithContext(ctx).Model(&Group{}).Where("id = ?", groupID).Update("is_active", active)
	if result.Error != nil {
		s.logError(opSetGroupActive, "update_failed", result.Error, zap.Uint("group_id", groupID))
		return apperrors.New(opSetGroupActive, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&Group{}).Where("id = ?", groupID).Count(&count).Error; err != nil {
			return apperrors.New(opSetGroupActive, "query_failed", err)
		}
		if count == 0 {
			return apperrors.New(opSetGroupActive, "group_missing", groupNotFound(groupID))
		}
	}
	return nil
}

// AddToGroup links a scenario to a group. Linking twice is a no-op.
func (s *Service) AddToGroup(ctx context.Context, groupID, scenarioID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &Group{}, groupID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.New(opAddToGroup, "group_missing", groupNotFound(groupID))
			}
			return apperrors.New(opAddToGroup, "query_failed", err)
		}
		if err := requireRow(tx, &Scenario{}, scenarioID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.New(opAddToGroup, "scenario_missing", scenarioNotFound(scenarioID))
			}
			return apperrors.New(opAddToGroup, "query_failed", err)
		}
		link := GroupScenario{GroupID: groupID, ScenarioID: scenarioID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
			s.logError(opAddToGroup, "insert_failed", err,
				zap.Uint("group_id", groupID),
				zap.Uint("scenario_id", scenarioID))
			return apperrors.New(opAddToGroup, "insert_failed", err)
		}
		return nil
	})
}

// ActiveScenarioIDs returns the distinct scenarios belonging to any active group.
func (s *Service) ActiveScenarioIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).
		Model(&GroupScenario{}).
		Joins("JOIN scenario_groups ON scenario_groups.id = group_scenarios.group_id").
		Joins("JOIN scenarios ON scenarios.id = group_scenarios.scenario_id").
		Where("scenario_groups.is_active = ?", true).
		Distinct().
		Order("group_scenarios.scenario_id ASC").
		Pluck("group_scenarios.scenario_id", &ids).Error; err != nil {
		s.logError(opActiveScenarioIDs, "query_failed", err)
		return nil, apperrors.New(opActiveScenarioIDs, "query_failed", err)
	}
	return ids, nil
}

// GroupScenarioIDs returns the scenarios of one group, active or not.
func (s *Service) GroupScenarioIDs(ctx context.Context, groupID uint) ([]uint, error) {
	if err := requireRow(s.db.WithContext(ctx), &Group{}, groupID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(opGroupScenarioIDs, "group_missing", groupNotFound(groupID))
		}
		s.logError(opGroupScenarioIDs, "query_failed", err, zap.Uint("group_id", groupID))
		return nil, apperrors.New(opGroupScenarioIDs, "query_failed", err)
	}

	var ids []uint
	if err := s.db.WithContext(ctx).
		Model(&GroupScenario{}).
		Joins("JOIN scenarios ON scenarios.id = group_scenarios.scenario_id").
		Where("group_scenarios.group_id = ?", groupID).
		Order("group_scenarios.scenario_id ASC").
		Pluck("group_scenarios.scenario_id", &ids).Error; err != nil {
		s.logError(opGroupScenarioIDs, "query_failed", err, zap.Uint("group_id", groupID))
		return nil, apperrors.New(opGroupScenarioIDs, "query_failed", err)
	}
	return ids, nil
}

// ComputeBorderHands rebuilds the border-hand cache of a scenario from its
// current grid. Readers observe either the previous or the new full set.
func (s *Service) ComputeBorderHands(ctx context.Context, scenarioID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var scenario Scenario
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", scenarioID).Take(&scenario).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.New(opComputeBorderHands, "scenario_missing", scenarioNotFound(scenarioID))
		}
		if err != nil {
			s.logError(opComputeBorderHands, "query_failed", err, zap.Uint("scenario_id", scenarioID))
			return apperrors.New(opComputeBorderHands, "query_failed", err)
		}
		return s.storeBorderHands(tx, opComputeBorderHands, scenarioID, scenario.Grid())
	})
}

// BorderHands returns the decision-boundary hands of a scenario in matrix order.
func (s *Service) BorderHands(ctx context.Context, scenarioID uint) ([]hands.Hand, error) {
	distances, err := s.BorderDistances(ctx, scenarioID)
	if err != nil {
		return nil, err
	}
	boundary := make([]hands.Hand, 0)
	for _, hand := range hands.All() {
		if distance, ok := distances[hand]; ok && distance == 0 {
			boundary = append(boundary, hand)
		}
	}
	return boundary, nil
}

// BorderDistances returns the cached distance of every hand in the scenario.
// A scenario whose cache was never built yields an empty map.
func (s *Service) BorderDistances(ctx context.Context, scenarioID uint) (map[hands.Hand]int, error) {
	if err := requireRow(s.db.WithContext(ctx), &Scenario{}, scenarioID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(opBorderDistances, "scenario_missing", scenarioNotFound(scenarioID))
		}
		s.logError(opBorderDistances, "query_failed", err, zap.Uint("scenario_id", scenarioID))
		return nil, apperrors.New(opBorderDistances, "query_failed", err)
	}

	var rows []BorderHand
	if err := s.db.WithContext(ctx).Where("scenario_id = ?", scenarioID).Find(&rows).Error; err != nil {
		s.logError(opBorderDistances, "query_failed", err, zap.Uint("scenario_id", scenarioID))
		return nil, apperrors.New(opBorderDistances, "query_failed", err)
	}

	distances := make(map[hands.Hand]int, len(rows))
	for _, row := range rows {
		hand, err := hands.ParseHand(row.Hand)
		if err != nil {
			s.logger.Warn("skipping unparseable border hand",
				zap.Uint("scenario_id", scenarioID),
				zap.String("hand", row.Hand))
			continue
		}
		distances[hand] = row.BorderDistance
	}
	return distances, nil
}

func (s *Service) storeBorderHands(tx *gorm.DB, operation string, scenarioID uint, grid hands.Grid) error {
	if err := tx.Where("scenario_id = ?", scenarioID).Delete(&BorderHand{}).Error; err != nil {
		s.logError(operation, "border_hands_delete_failed", err, zap.Uint("scenario_id", scenarioID))
		return apperrors.New(operation, "border_hands_delete_failed", err)
	}

	distances := s.analyzer.Distances(grid)
	rows := make([]BorderHand, 0, hands.Count)
	for _, hand := range hands.All() {
		rows = append(rows, BorderHand{
			ScenarioID:     scenarioID,
			Hand:           hand.String(),
			BorderDistance: s.analyzer.StorageDistance(distances[hand]),
		})
	}
	if err := tx.CreateInBatches(rows, borderHandBatchSize).Error; err != nil {
		s.logError(operation, "border_hands_insert_failed", err, zap.Uint("scenario_id", scenarioID))
		return apperrors.New(operation, "border_hands_insert_failed", err)
	}
	return nil
}

func requireRow(db *gorm.DB, model any, id uint) error {
	var count int64
	if err := db.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func scenarioNotFound(scenarioID uint) error {
	return fmt.Errorf("%w: scenario %d", apperrors.ErrNotFound, scenarioID)
}

func groupNotFound(groupID uint) error {
	return fmt.Errorf("%w: group %d", apperrors.ErrNotFound, groupID)
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
	s.logger.Error("scenarios service error", attrs...)
}
