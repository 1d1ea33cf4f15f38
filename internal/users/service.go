package users

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarcoPoloResearchLab/rangedrill/internal/apperrors"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/auth"
)

const (
	defaultProvider = "default"

	opServiceNew = "users.service.new"
	opResolve    = "users.resolve"
)

var (
	// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
	ErrInvalidIdentity = errors.New("users: invalid identity")

	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceConfig describes the dependencies required for player resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service resolves session claims to canonical player ids.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
	cache  sync.Map
}

// NewService constructs the identity service.
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
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// Resolve returns the player behind the session. The first sighting of a
// provider and subject pair creates the identity row; later sightings only
// refresh profile fields and the last-seen timestamp.
func (s *Service) Resolve(ctx context.Context, claims auth.SessionClaims) (Player, error) {
	provider, subject := deriveProviderSubject(claims)
	if subject == "" {
		return Player{}, ErrInvalidIdentity
	}
	player := Player{
		Email:       normalize(claims.UserEmail),
		DisplayName: normalize(claims.UserDisplayName),
		Roles:       claims.UserRoles,
	}

	cacheKey := provider + ":" + subject
	if cached, ok := s.cache.Load(cacheKey); ok {
		if canonical, ok := cached.(string); ok {
			player.ID = canonical
			return player, nil
		}
	}

	now := s.now().UTC().Unix()
	seed := Identity{
		Provider:          provider,
		Subject:           subject,
		UserID:            subject,
		Email:             player.Email,
		DisplayName:       player.DisplayName,
		LastSeenAtSeconds: now,
		CreatedAtSeconds:  now,
	}
	db := s.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		s.logError(opResolve, "identity_insert_failed", err, zap.String("provider", provider))
		return Player{}, apperrors.New(opResolve, "identity_insert_failed", err)
	}

	var identity Identity
	if err := db.Where("provider = ? AND subject = ?", provider, subject).Take(&identity).Error; err != nil {
		s.logError(opResolve, "identity_select_failed", err, zap.String("provider", provider))
		return Player{}, apperrors.New(opResolve, "identity_select_failed", err)
	}

	updates := map[string]any{"last_seen_at_s": now}
	if player.Email != "" && player.Email != identity.Email {
		updates["user_email"] = player.Email
	}
	if player.DisplayName != "" && player.DisplayName != identity.DisplayName {
		updates["user_display_name"] = player.DisplayName
	}
	if err := db.Model(&Identity{}).
		Where("provider = ? AND subject = ?", provider, subject).
		Updates(updates).Error; err != nil {
		s.logger.Warn("identity refresh failed",
			zap.String("operation", opResolve),
			zap.String("provider", provider),
			zap.Error(err))
	}

	s.cache.Store(cacheKey, identity.UserID)
	player.ID = identity.UserID
	return player, nil
}

func deriveProviderSubject(claims auth.SessionClaims) (string, string) {
	provider := defaultProvider
	subject := normalize(claims.Subject)
	if head, tail, found := strings.Cut(subject, ":"); found && normalize(head) != "" && normalize(tail) != "" {
		provider = normalize(head)
		subject = normalize(tail)
	}
	if subject == "" {
		subject = normalize(claims.UserEmail)
	}
	return provider, subject
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
	s.logger.Error("users service error", attrs...)
}
