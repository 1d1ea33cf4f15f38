package database

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/rangedrill/internal/border"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/sampler"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/scenarios"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/stats"
)

const (
	migrationClampHandWeights       = "2026-03-02_clamp_hand_weights"
	migrationBackfillBorderDistance = "2026-03-09_backfill_border_distances"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB, *zap.Logger) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationClampHandWeights, apply: clampHandWeights},
		{name: migrationBackfillBorderDistance, apply: backfillBorderDistances},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db, logger); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// clampHandWeights pulls weights written under older policies back into the
// current bounds.
func clampHandWeights(db *gorm.DB, _ *zap.Logger) error {
	policy := sampler.DefaultWeightPolicy()
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&stats.HandStat{}).
			Where("current_weight < ?", policy.Min).
			Update("current_weight", policy.Min).Error; err != nil {
			return err
		}
		return tx.Model(&stats.HandStat{}).
			Where("current_weight > ?", policy.Max).
			Update("current_weight", policy.Max).Error
	})
}

// backfillBorderDistances rebuilds the border cache of scenarios that have
// no cached rows, such as those imported before the cache existed.
func backfillBorderDistances(db *gorm.DB, logger *zap.Logger) error {
	var missing []uint
	if err := db.Model(&scenarios.Scenario{}).
		Where("NOT EXISTS (SELECT 1 FROM scenario_border_hands WHERE scenario_border_hands.scenario_id = scenarios.id)").
		Order("id ASC").
		Pluck("id", &missing).Error; err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}

	service, err := scenarios.NewService(scenarios.ServiceConfig{
		Database: db,
		Analyzer: border.DefaultAnalyzer(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	for _, scenarioID := range missing {
		if err := service.ComputeBorderHands(context.Background(), scenarioID); err != nil {
			return err
		}
	}
	return nil
}
