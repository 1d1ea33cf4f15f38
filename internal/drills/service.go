package drills

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarcoPoloResearchLab/rangedrill/internal/apperrors"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/border"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/hands"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/retry"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/sampler"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/scenarios"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/stats"
)

const instrumentationName = "github.com/MarcoPoloResearchLab/rangedrill/internal/drills"

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingCatalog    = errors.New("scenario catalog is required")
	errMissingStats      = errors.New("stats store is required")
	errMissingSampler    = errors.New("sampler is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingUserID     = errors.New("user identifier is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew   = "drills.service.new"
	opStart        = "drills.start"
	opNextHand     = "drills.next_hand"
	opSubmitAnswer = "drills.submit_answer"
	opEnd          = "drills.end"
	opSession      = "drills.session"
	opOverview     = "drills.overview"
	opSuggestions  = "drills.suggestions"

	defaultMaxRetries = 5
)

// ScenarioCatalog is the scenario data a drill reads.
type ScenarioCatalog interface {
	Scenario(ctx context.Context, scenarioID uint) (scenarios.Scenario, error)
	Scenarios(ctx context.Context, scenarioIDs []uint) ([]scenarios.Scenario, error)
	ScenariosByCreator(ctx context.Context, userID string) ([]scenarios.Scenario, error)
	ActiveScenarioIDs(ctx context.Context) ([]uint, error)
	GroupScenarioIDs(ctx context.Context, groupID uint) ([]uint, error)
	BorderDistances(ctx context.Context, scenarioID uint) (map[hands.Hand]int, error)
	GroupsOf(ctx context.Context, scenarioIDs []uint) (map[uint][]scenarios.Group, error)
}

// StatsStore is the per-user counter store a drill reads and mutates.
type StatsStore interface {
	RecordAnswer(ctx context.Context, tx *gorm.DB, record stats.AnswerRecord) (stats.HandStat, error)
	HandWeights(ctx context.Context, userID string, scenarioID uint) (map[hands.Hand]float64, error)
	ScenarioTotals(ctx context.Context, userID string, scenarioIDs []uint) (map[uint]stats.Totals, error)
	ScenarioAccuracy(ctx context.Context, userID string, scenarioID uint) (float64, error)
	Snapshot(ctx context.Context, userID string, scenarioIDs []uint) (stats.Snapshot, error)
	SnapshotTx(ctx context.Context, tx *gorm.DB, userID string, scenarioIDs []uint) (stats.Snapshot, error)
	Overview(ctx context.Context, userID string) (stats.Overview, error)
	LowAccuracy(ctx context.Context, userID string, minAttempts int64, belowPercent float64, limit int) ([]stats.ScenarioStat, error)
	AttemptedScenarioIDs(ctx context.Context, userID string) ([]uint, error)
}

// IDProvider issues session identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig wires the drill engine.
type ServiceConfig struct {
	Database   *gorm.DB
	Catalog    ScenarioCatalog
	Stats      StatsStore
	Sampler    *sampler.Sampler
	Classifier border.Classifier
	IDProvider IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
	Tracer     trace.Tracer
	// MaxRetries bounds the attempts of an answer transaction that hits write contention.
	MaxRetries int
}

// Service runs the drill session lifecycle: start, next hand, answer, end.
type Service struct {
	db         *gorm.DB
	catalog    ScenarioCatalog
	stats      StatsStore
	sampler    *sampler.Sampler
	classifier border.Classifier
	idProvider IDProvider
	clock      func() time.Time
	logger     *zap.Logger
	tracer     trace.Tracer
	maxRetries int
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	switch {
	case cfg.Database == nil:
		return nil, apperrors.New(opServiceNew, "missing_database", errMissingDatabase)
	case cfg.Catalog == nil:
		return nil, apperrors.New(opServiceNew, "missing_catalog", errMissingCatalog)
	case cfg.Stats == nil:
		return nil, apperrors.New(opServiceNew, "missing_stats", errMissingStats)
	case cfg.Sampler == nil:
		return nil, apperrors.New(opServiceNew, "missing_sampler", errMissingSampler)
	case cfg.IDProvider == nil:
		return nil, apperrors.New(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	return &Service{
		db:         cfg.Database,
		catalog:    cfg.Catalog,
		stats:      cfg.Stats,
		sampler:    cfg.Sampler,
		classifier: cfg.Classifier,
		idProvider: cfg.IDProvider,
		clock:      clock,
		logger:     logger,
		tracer:     tracer,
		maxRetries: maxRetries,
	}, nil
}

// Start validates the configuration, resolves its scenarios, records a
// snapshot of the user's current accuracy over them and opens a session.
func (s *Service) Start(ctx context.Context, userID string, cfg Config) (session Session, err error) {
	ctx, span := s.tracer.Start(ctx, opStart, trace.WithAttributes(
		attribute.String("drill.type", string(cfg.Type)),
	))
	defer func() { finishSpan(span, err) }()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Session{}, apperrors.New(opStart, "missing_user_id", fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, errMissingUserID))
	}
	if validationErr := cfg.Validate(); validationErr != nil {
		return Session{}, apperrors.New(opStart, "invalid_config", errors.Join(apperrors.ErrInvalidConfig, validationErr))
	}

	scenarioIDs, err := s.resolveScenarioIDs(ctx, cfg, true)
	if err != nil {
		return Session{}, apperrors.New(opStart, "resolve_failed", err)
	}

	snapshot, err := s.stats.Snapshot(ctx, userID, scenarioIDs)
	if err != nil {
		return Session{}, apperrors.New(opStart, "snapshot_failed", err)
	}

	sessionID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opStart, "id_generation_failed", err, zap.String("user_id", userID))
		return Session{}, apperrors.New(opStart, "id_generation_failed", err)
	}

	session = Session{
		ID:               sessionID,
		UserID:           userID,
		ConfigJSON:       datatypes.NewJSONType(cfg),
		ScenarioIDs:      datatypes.NewJSONSlice(scenarioIDs),
		PreDrillStats:    datatypes.NewJSONType(snapshot),
		UseTimer:         cfg.UseTimer,
		StartedAtSeconds: s.clock().UTC().Unix(),
	}
	if cfg.TimerSeconds > 0 {
		timerSeconds := cfg.TimerSeconds
		session.TimerSeconds = &timerSeconds
	}
	if session.ScenarioIDs == nil {
		session.ScenarioIDs = datatypes.JSONSlice[uint]{}
	}

	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		s.logError(opStart, "session_insert_failed", err, zap.String("user_id", userID))
		return Session{}, apperrors.New(opStart, "session_insert_failed", err)
	}
	span.SetAttributes(
		attribute.String("drill.session_id", session.ID),
		attribute.Int("drill.scenario_count", len(scenarioIDs)),
	)
	return session, nil
}

// Session loads a session by id.
func (s *Service) Session(ctx context.Context, sessionID string) (Session, error) {
	return s.loadSession(ctx, s.db.WithContext(ctx), opSession, sessionID)
}

// HandPrompt is the next hand to answer, or Complete when the drill has nothing left.
type HandPrompt struct {
	Complete bool            `json:"complete,omitempty"`
	Hand     *PromptHand     `json:"hand,omitempty"`
	Scenario *PromptScenario `json:"scenario,omitempty"`
}

// PromptHand is the hand class with two concrete cards.
type PromptHand struct {
	Notation string     `json:"notation"`
	Card1    hands.Card `json:"card1"`
	Card2    hands.Card `json:"card2"`
}

// PromptScenario is the table context shown with a hand.
type PromptScenario struct {
	ID          uint     `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Position    string   `json:"position"`
	Positions   []string `json:"positions"`
	StackDepth  int      `json:"stackDepth"`
	Limpers     int      `json:"limpers"`
}

// NextHand draws the next hand. Scenarios are resolved again on every call so
// that group changes apply mid-session; global drills first draw one scenario
// weighted toward the user's weaker ones.
func (s *Service) NextHand(ctx context.Context, sessionID string) (prompt HandPrompt, err error) {
	ctx, span := s.tracer.Start(ctx, opNextHand, trace.WithAttributes(
		attribute.String("drill.session_id", sessionID),
	))
	defer func() { finishSpan(span, err) }()

	session, err := s.loadSession(ctx, s.db.WithContext(ctx), opNextHand, sessionID)
	if err != nil {
		return HandPrompt{}, err
	}
	if session.Ended() {
		return HandPrompt{}, apperrors.New(opNextHand, "session_ended", apperrors.ErrSessionEnded)
	}
	cfg := session.Config()

	if cfg.HandLimit > 0 {
		var answered int64
		if err := s.db.WithContext(ctx).Model(&Answer{}).Where("drill_session_id = ?", session.ID).Count(&answered).Error; err != nil {
			s.logError(opNextHand, "answer_count_failed", err, zap.String("session_id", session.ID))
			return HandPrompt{}, apperrors.New(opNextHand, "answer_count_failed", err)
		}
		if answered >= int64(cfg.HandLimit) {
			return HandPrompt{Complete: true}, nil
		}
	}

	scenarioIDs, err := s.resolveScenarioIDs(ctx, cfg, false)
	if err != nil {
		return HandPrompt{}, apperrors.New(opNextHand, "resolve_failed", err)
	}
	if cfg.Type == TypeGlobal && len(scenarioIDs) > 0 {
		totals, err := s.stats.ScenarioTotals(ctx, session.UserID, scenarioIDs)
		if err != nil {
			return HandPrompt{}, apperrors.New(opNextHand, "totals_failed", err)
		}
		candidates := make([]sampler.ScenarioCandidate, 0, len(scenarioIDs))
		for _, scenarioID := range scenarioIDs {
			total := totals[scenarioID]
			candidates = append(candidates, sampler.ScenarioCandidate{
				ScenarioID: scenarioID,
				Attempts:   total.Attempts,
				Correct:    total.Correct,
			})
		}
		picked, _ := s.sampler.DrawScenario(candidates)
		scenarioIDs = []uint{picked}
	}

	candidates, err := s.catalog.Scenarios(ctx, scenarioIDs)
	if err != nil {
		return HandPrompt{}, apperrors.New(opNextHand, "scenarios_failed", err)
	}
	scenario, ok := sampler.Uniform(candidates, s.sampler.Source())
	if !ok {
		return HandPrompt{Complete: true}, nil
	}

	inputs := sampler.HandInputs{Grid: scenario.Grid()}
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		weights, err := s.stats.HandWeights(groupCtx, session.UserID, scenario.ID)
		inputs.Weights = weights
		return err
	})
	group.Go(func() error {
		distances, err := s.catalog.BorderDistances(groupCtx, scenario.ID)
		inputs.Distances = distances
		return err
	})
	group.Go(func() error {
		accuracy, err := s.stats.ScenarioAccuracy(groupCtx, session.UserID, scenario.ID)
		inputs.Accuracy = accuracy
		return err
	})
	if err := group.Wait(); err != nil {
		return HandPrompt{}, apperrors.New(opNextHand, "inputs_failed", err)
	}

	hand := s.sampler.DrawHand(inputs)
	card1, card2, err := s.sampler.Deal(hand)
	if err != nil {
		s.logError(opNextHand, "deal_failed", err, zap.String("hand", hand.String()))
		return HandPrompt{}, apperrors.New(opNextHand, "deal_failed", err)
	}
	position, _ := sampler.Uniform(scenario.PositionList(), s.sampler.Source())

	span.SetAttributes(
		attribute.Int("drill.scenario_id", int(scenario.ID)),
		attribute.String("drill.hand", hand.String()),
	)
	return HandPrompt{
		Hand: &PromptHand{Notation: hand.String(), Card1: card1, Card2: card2},
		Scenario: &PromptScenario{
			ID:          scenario.ID,
			Name:        scenario.Name,
			Description: scenario.Description,
			Position:    string(position),
			Positions:   []string(scenario.Positions),
			StackDepth:  scenario.StackDepth,
			Limpers:     scenario.Limpers,
		},
	}, nil
}

// Submission is one answer to a presented hand.
type Submission struct {
	Hand       hands.Hand
	ScenarioID uint
	Action     hands.Action
}

// AnswerResult reports how an answer was judged. MistakeType is nil when correct.
type AnswerResult struct {
	Correct       bool                `json:"correct"`
	UserAction    hands.Action        `json:"userAction"`
	CorrectAction hands.Action        `json:"correctAction"`
	MistakeType   *border.MistakeType `json:"mistakeType"`
}

// SubmitAnswer judges an answer against the scenario grid, stores it and
// updates the user's counters in one transaction, retrying on write contention.
func (s *Service) SubmitAnswer(ctx context.Context, sessionID string, submission Submission) (result AnswerResult, err error) {
	ctx, span := s.tracer.Start(ctx, opSubmitAnswer, trace.WithAttributes(
		attribute.String("drill.session_id", sessionID),
		attribute.Int("drill.scenario_id", int(submission.ScenarioID)),
		attribute.String("drill.hand", submission.Hand.String()),
	))
	defer func() { finishSpan(span, err) }()

	if !submission.Hand.Valid() {
		return AnswerResult{}, apperrors.New(opSubmitAnswer, "invalid_hand", fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, hands.ErrInvalidHand))
	}
	if submission.Action > hands.Raise {
		return AnswerResult{}, apperrors.New(opSubmitAnswer, "invalid_action", fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, hands.ErrInvalidAction))
	}

	session, err := s.loadSession(ctx, s.db.WithContext(ctx), opSubmitAnswer, sessionID)
	if err != nil {
		return AnswerResult{}, err
	}
	if session.Ended() {
		return AnswerResult{}, apperrors.New(opSubmitAnswer, "session_ended", apperrors.ErrSessionEnded)
	}

	scenario, err := s.catalog.Scenario(ctx, submission.ScenarioID)
	if err != nil {
		return AnswerResult{}, apperrors.New(opSubmitAnswer, "scenario_lookup_failed", err)
	}

	grid := scenario.Grid()
	correctAction := grid.Action(submission.Hand)
	mistake := border.MistakeNone
	if submission.Action != correctAction {
		mistake = s.classifier.Categorize(submission.Hand, grid)
	}

	err = retry.Do(ctx, s.maxRetries, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			locked, err := s.loadSession(ctx, tx.Clauses(clause.Locking{Strength: "UPDATE"}), opSubmitAnswer, sessionID)
			if err != nil {
				return err
			}
			if locked.Ended() {
				return apperrors.New(opSubmitAnswer, "session_ended", apperrors.ErrSessionEnded)
			}

			answer := Answer{
				SessionID:         session.ID,
				UserID:            session.UserID,
				ScenarioID:        scenario.ID,
				Hand:              submission.Hand.String(),
				UserAction:        submission.Action.String(),
				CorrectAction:     correctAction.String(),
				IsCorrect:         mistake == border.MistakeNone,
				MistakeType:       string(mistake),
				AnsweredAtSeconds: s.clock().UTC().Unix(),
			}
			if err := tx.Create(&answer).Error; err != nil {
				return err
			}

			_, err = s.stats.RecordAnswer(ctx, tx, stats.AnswerRecord{
				UserID:     session.UserID,
				ScenarioID: scenario.ID,
				Hand:       submission.Hand,
				Mistake:    mistake,
			})
			return err
		})
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrSessionEnded) {
			return AnswerResult{}, err
		}
		if retry.IsConflict(err) {
			s.logError(opSubmitAnswer, "retries_exhausted", err,
				zap.String("session_id", sessionID),
				zap.Int("max_retries", s.maxRetries))
			return AnswerResult{}, apperrors.New(opSubmitAnswer, "retries_exhausted", errors.Join(apperrors.ErrConflict, err))
		}
		s.logError(opSubmitAnswer, "transaction_failed", err, zap.String("session_id", sessionID))
		return AnswerResult{}, apperrors.New(opSubmitAnswer, "transaction_failed", err)
	}

	result = AnswerResult{
		Correct:       mistake == border.MistakeNone,
		UserAction:    submission.Action,
		CorrectAction: correctAction,
	}
	if mistake != border.MistakeNone {
		result.MistakeType = &mistake
	}
	span.SetAttributes(attribute.Bool("drill.correct", result.Correct))
	return result, nil
}

// MistakeReview is one wrong answer listed in the end-of-drill report.
type MistakeReview struct {
	Hand          string   `json:"hand"`
	Scenario      string   `json:"scenario"`
	Positions     []string `json:"positions"`
	StackDepth    int      `json:"stackDepth"`
	UserAction    string   `json:"userAction"`
	CorrectAction string   `json:"correctAction"`
	IsBorder      bool     `json:"isBorder"`
}

// Comparison contrasts the user's accuracy before and after the drill over
// the scenarios resolved at start.
type Comparison struct {
	OverallBefore  int   `json:"overallBefore"`
	OverallAfter   int   `json:"overallAfter"`
	Change         int   `json:"change"`
	AttemptsBefore int64 `json:"attemptsBefore"`
	AttemptsAfter  int64 `json:"attemptsAfter"`
}

// Summary is the end-of-drill report.
type Summary struct {
	TotalHands     int64           `json:"totalHands"`
	CorrectCount   int64           `json:"correctCount"`
	IncorrectCount int64           `json:"incorrectCount"`
	Accuracy       int             `json:"accuracy"`
	BorderMistakes int64           `json:"borderMistakes"`
	Mistakes       []MistakeReview `json:"mistakes"`
	Comparison     *Comparison     `json:"comparison,omitempty"`
}

// End closes the session and reports on it. The report is read in the same
// transaction that closes the session, so a failed read leaves it open.
// Ending twice fails with ErrSessionEnded.
func (s *Service) End(ctx context.Context, sessionID string) (summary Summary, err error) {
	ctx, span := s.tracer.Start(ctx, opEnd, trace.WithAttributes(
		attribute.String("drill.session_id", sessionID),
	))
	defer func() { finishSpan(span, err) }()

	var (
		session      Session
		answers      []Answer
		snapshot     stats.Snapshot
		scenarioList []scenarios.Scenario
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = s.loadSession(ctx, tx.Clauses(clause.Locking{Strength: "UPDATE"}), opEnd, sessionID)
		if err != nil {
			return err
		}
		if session.Ended() {
			return apperrors.New(opEnd, "session_ended", apperrors.ErrSessionEnded)
		}

		if err := tx.Where("drill_session_id = ?", session.ID).Order("id ASC").Find(&answers).Error; err != nil {
			s.logError(opEnd, "answers_failed", err, zap.String("session_id", session.ID))
			return apperrors.New(opEnd, "answers_failed", err)
		}
		snapshot, err = s.stats.SnapshotTx(ctx, tx, session.UserID, []uint(session.ScenarioIDs))
		if err != nil {
			return apperrors.New(opEnd, "snapshot_failed", err)
		}
		scenarioList, err = scenarios.FindScenarios(tx, mistakeScenarioIDs(answers))
		if err != nil {
			s.logError(opEnd, "scenarios_failed", err, zap.String("session_id", session.ID))
			return apperrors.New(opEnd, "scenarios_failed", err)
		}

		result := tx.Model(&Session{}).
			Where("id = ? AND ended_at_s IS NULL", session.ID).
			Update("ended_at_s", s.clock().UTC().Unix())
		if result.Error != nil {
			s.logError(opEnd, "session_update_failed", result.Error, zap.String("session_id", session.ID))
			return apperrors.New(opEnd, "session_update_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.New(opEnd, "session_ended", apperrors.ErrSessionEnded)
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	summary = Summary{Mistakes: make([]MistakeReview, 0)}
	for _, answer := range answers {
		summary.TotalHands++
		if answer.IsCorrect {
			summary.CorrectCount++
			continue
		}
		if answer.MistakeType == string(border.MistakeBorder) {
			summary.BorderMistakes++
		}
	}
	summary.IncorrectCount = summary.TotalHands - summary.CorrectCount
	summary.Accuracy = stats.Percent(summary.CorrectCount, summary.TotalHands)

	byID := make(map[uint]scenarios.Scenario, len(scenarioList))
	for _, scenario := range scenarioList {
		byID[scenario.ID] = scenario
	}
	for _, answer := range answers {
		if answer.IsCorrect {
			continue
		}
		scenario := byID[answer.ScenarioID]
		summary.Mistakes = append(summary.Mistakes, MistakeReview{
			Hand:          answer.Hand,
			Scenario:      scenario.Name,
			Positions:     []string(scenario.Positions),
			StackDepth:    scenario.StackDepth,
			UserAction:    answer.UserAction,
			CorrectAction: answer.CorrectAction,
			IsBorder:      answer.MistakeType == string(border.MistakeBorder),
		})
	}

	before := session.PreDrillStats.Data()
	summary.Comparison = &Comparison{
		OverallBefore:  before.Overall,
		OverallAfter:   snapshot.Overall,
		Change:         snapshot.Overall - before.Overall,
		AttemptsBefore: before.TotalAttempts,
		AttemptsAfter:  snapshot.TotalAttempts,
	}
	span.SetAttributes(
		attribute.Int64("drill.total_hands", summary.TotalHands),
		attribute.Int("drill.accuracy", summary.Accuracy),
	)
	return summary, nil
}

func mistakeScenarioIDs(answers []Answer) []uint {
	ids := make([]uint, 0)
	seen := make(map[uint]bool)
	for _, answer := range answers {
		if answer.IsCorrect || seen[answer.ScenarioID] {
			continue
		}
		seen[answer.ScenarioID] = true
		ids = append(ids, answer.ScenarioID)
	}
	return ids
}

// Overview combines the user's stats overview with their session count.
func (s *Service) Overview(ctx context.Context, userID string) (stats.Overview, error) {
	var (
		overview stats.Overview
		sessions int64
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		overview, err = s.stats.Overview(groupCtx, userID)
		return err
	})
	group.Go(func() error {
		return s.db.WithContext(groupCtx).Model(&Session{}).Where("user_id = ?", userID).Count(&sessions).Error
	})
	if err := group.Wait(); err != nil {
		s.logError(opOverview, "query_failed", err, zap.String("user_id", userID))
		return stats.Overview{}, apperrors.New(opOverview, "query_failed", err)
	}
	overview.Sessions = sessions
	return overview, nil
}

func (s *Service) resolveScenarioIDs(ctx context.Context, cfg Config, strict bool) ([]uint, error) {
	var (
		ids []uint
		err error
	)
	switch cfg.Type {
	case TypeScenario:
		if _, err = s.catalog.Scenario(ctx, cfg.ScenarioID); err == nil {
			ids = []uint{cfg.ScenarioID}
		}
	case TypeGroup:
		ids, err = s.catalog.GroupScenarioIDs(ctx, cfg.GroupID)
	case TypeGlobal:
		ids, err = s.catalog.ActiveScenarioIDs(ctx)
	default:
		return nil, fmt.Errorf("%w: unknown drill type %q", apperrors.ErrInvalidConfig, cfg.Type)
	}
	if err != nil && !strict && errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	return ids, err
}

func (s *Service) loadSession(ctx context.Context, db *gorm.DB, operation, sessionID string) (Session, error) {
	var session Session
	err := db.WithContext(ctx).Where("id = ?", sessionID).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Session{}, apperrors.New(operation, "session_missing", fmt.Errorf("%w: session %s", apperrors.ErrNotFound, sessionID))
	}
	if err != nil {
		s.logError(operation, "session_select_failed", err, zap.String("session_id", sessionID))
		return Session{}, apperrors.New(operation, "session_select_failed", err)
	}
	return session, nil
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperrors.Code(err))
	}
	span.End()
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
	s.logger.Error("drills service error", attrs...)
}
