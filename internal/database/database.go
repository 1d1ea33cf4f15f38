package database

import (
	"fmt"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/rangedrill/internal/drills"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/rangedrill"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/scenarios"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/stats"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/users"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const (
	postgresMaxOpenConns    = 20
	postgresMaxIdleConns    = 5
	postgresConnMaxLifetime = 30 * time.Minute
)

// Config selects the backing store.
type Config struct {
	Driver string
	// Path is the SQLite file; ":memory:" style DSNs are accepted.
	Path string
	// DSN is the Postgres connection string.
	DSN string
}

// Open connects to the configured database and brings the schema up to date.
// SQLite is limited to one connection so that write transactions serialise.
func Open(cfg Config, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		dialector gorm.Dialector
		target    string
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverSQLite, "":
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, fmt.Errorf("database path is required")
		}
		dialector = sqlite.Open(cfg.Path)
		target = cfg.Path
	case DriverPostgres:
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, fmt.Errorf("database dsn is required")
		}
		dialector = postgres.Open(cfg.DSN)
		target = "postgres"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if dialector.Name() == DriverPostgres {
		sqlDB.SetMaxOpenConns(postgresMaxOpenConns)
		sqlDB.SetMaxIdleConns(postgresMaxIdleConns)
		sqlDB.SetConnMaxLifetime(postgresConnMaxLifetime)
	} else {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	logger.Info("database initialized",
		zap.String("driver", dialector.Name()),
		zap.String("target", target))

	return db, nil
}

// Models lists every persisted type in migration order.
func Models() []any {
	return []any{
		&users.Identity{},
		&scenarios.Scenario{},
		&scenarios.Group{},
		&scenarios.GroupScenario{},
		&scenarios.BorderHand{},
		&stats.HandStat{},
		&stats.ScenarioStat{},
		&drills.Session{},
		&drills.Answer{},
		&rangedrill.Attempt{},
		&rangedrill.Stat{},
		&migrationRecord{},
	}
}
