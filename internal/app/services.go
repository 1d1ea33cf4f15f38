// Package app assembles the drill services over one database handle.
package app

import (
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/rangedrill/internal/border"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/drills"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/rangedrill"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/sampler"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/scenarios"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/stats"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/users"
)

var errMissingDatabase = errors.New("app: database handle is required")

// Options tune the assembled services. Zero values select production defaults.
type Options struct {
	Database *gorm.DB
	Logger   *zap.Logger
	Clock    func() time.Time
	// Source overrides the sampler randomness; tests pass a seeded source.
	Source     sampler.Source
	Tracer     trace.Tracer
	MaxRetries int
}

// Services holds every domain service the HTTP layer and CLI consume.
type Services struct {
	Scenarios  *scenarios.Service
	Stats      *stats.Store
	Sampler    *sampler.Sampler
	Drills     *drills.Service
	RangeDrill *rangedrill.Service
	Players    *users.Service
}

// NewServices wires the services in dependency order.
func NewServices(opts Options) (Services, error) {
	if opts.Database == nil {
		return Services{}, errMissingDatabase
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	samplerConfig := sampler.DefaultConfig()
	if opts.Source != nil {
		samplerConfig.Source = opts.Source
	}
	drawer, err := sampler.New(samplerConfig)
	if err != nil {
		return Services{}, err
	}

	catalog, err := scenarios.NewService(scenarios.ServiceConfig{
		Database: opts.Database,
		Analyzer: samplerConfig.Analyzer,
		Clock:    clock,
		Logger:   logger.Named("scenarios"),
		Cascades: []scenarios.CascadeFunc{stats.PurgeScenario, rangedrill.PurgeScenario},
	})
	if err != nil {
		return Services{}, err
	}

	store, err := stats.NewStore(stats.StoreConfig{
		Database: opts.Database,
		Weights:  drawer.WeightPolicy(),
		Clock:    clock,
		Logger:   logger.Named("stats"),
	})
	if err != nil {
		return Services{}, err
	}

	drillService, err := drills.NewService(drills.ServiceConfig{
		Database:   opts.Database,
		Catalog:    catalog,
		Stats:      store,
		Sampler:    drawer,
		Classifier: border.NewClassifier(samplerConfig.Analyzer),
		IDProvider: drills.NewUUIDProvider(),
		Clock:      clock,
		Logger:     logger.Named("drills"),
		Tracer:     opts.Tracer,
		MaxRetries: opts.MaxRetries,
	})
	if err != nil {
		return Services{}, err
	}

	rangeService, err := rangedrill.NewService(rangedrill.ServiceConfig{
		Database:   opts.Database,
		Catalog:    catalog,
		Clock:      clock,
		Logger:     logger.Named("rangedrill"),
		MaxRetries: opts.MaxRetries,
	})
	if err != nil {
		return Services{}, err
	}

	players, err := users.NewService(users.ServiceConfig{
		Database: opts.Database,
		Clock:    clock,
		Logger:   logger.Named("users"),
	})
	if err != nil {
		return Services{}, err
	}

	return Services{
		Scenarios:  catalog,
		Stats:      store,
		Sampler:    drawer,
		Drills:     drillService,
		RangeDrill: rangeService,
		Players:    players,
	}, nil
}
