package stats

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarcoPoloResearchLab/rangedrill/internal/apperrors"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/border"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/hands"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/sampler"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/scenarios"
)

var (
	errMissingDatabase    = errors.New("database handle is required")
	errMissingTransaction = errors.New("transaction handle is required")
	noOpLogger            = zap.NewNop()
)

const (
	opStoreNew        = "stats.store.new"
	opRecordAnswer    = "stats.record_answer"
	opHandWeights     = "stats.hand_weights"
	opScenarioTotals  = "stats.scenario_totals"
	opSnapshot        = "stats.snapshot"
	opOverview        = "stats.overview"
	opProblemHands    = "stats.problem_hands"
	opScenarioDetail  = "stats.scenario_detail"
	opScenarioSummary = "stats.scenario_summaries"
	opLowAccuracy     = "stats.low_accuracy"
	opGroupStats      = "stats.group_stats"

	problemHandLimit           = 10
	problemHandMinAttempts     = 5
	scenarioProblemMinAttempts = 3
)

// StoreConfig wires the stats store.
type StoreConfig struct {
	Database *gorm.DB
	Weights  sampler.WeightPolicy
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Store owns the per-user hand and scenario counters.
type Store struct {
	db      *gorm.DB
	weights sampler.WeightPolicy
	clock   func() time.Time
	logger  *zap.Logger
}

// NewStore validates the configuration and returns a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, apperrors.New(opStoreNew, "missing_database", errMissingDatabase)
	}
	if err := cfg.Weights.Validate(); err != nil {
		return nil, apperrors.New(opStoreNew, "invalid_weights", err)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Store{
		db:      cfg.Database,
		weights: cfg.Weights,
		clock:   clock,
		logger:  logger,
	}, nil
}

// AnswerRecord is one answered hand. Mistake is MistakeNone for a correct answer.
type AnswerRecord struct {
	UserID     string
	ScenarioID uint
	Hand       hands.Hand
	Mistake    border.MistakeType
}

// RecordAnswer applies one answer to the hand and scenario counters inside
// the caller's transaction. Rows are created on first use and read under a
// row lock before exactly one outcome counter is incremented.
func (s *Store) RecordAnswer(ctx context.Context, tx *gorm.DB, record AnswerRecord) (HandStat, error) {
	if tx == nil {
		return HandStat{}, apperrors.New(opRecordAnswer, "missing_transaction", errMissingTransaction)
	}
	if !record.Hand.Valid() {
		return HandStat{}, apperrors.New(opRecordAnswer, "invalid_hand", fmt.Errorf("%w: hand %d", apperrors.ErrInvalidInput, uint8(record.Hand)))
	}
	tx = tx.WithContext(ctx)
	fields := []zap.Field{
		zap.String("user_id", record.UserID),
		zap.Uint("scenario_id", record.ScenarioID),
		zap.String("hand", record.Hand.String()),
	}

	scenarioSeed := ScenarioStat{UserID: record.UserID, ScenarioID: record.ScenarioID}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&scenarioSeed).Error; err != nil {
		s.logError(opRecordAnswer, "scenario_stat_insert_failed", err, fields...)
		return HandStat{}, apperrors.New(opRecordAnswer, "scenario_stat_insert_failed", err)
	}
	var scenarioStat ScenarioStat
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND scenario_id = ?", record.UserID, record.ScenarioID).
		Take(&scenarioStat).Error; err != nil {
		s.logError(opRecordAnswer, "scenario_stat_select_failed", err, fields...)
		return HandStat{}, apperrors.New(opRecordAnswer, "scenario_stat_select_failed", err)
	}
	scenarioStat.TotalAttempts++
	if record.Mistake == border.MistakeNone {
		scenarioStat.CorrectAttempts++
	}
	if err := tx.Model(&ScenarioStat{}).
		Where("user_id = ? AND scenario_id = ?", record.UserID, record.ScenarioID).
		Updates(map[string]any{
			"total_attempts":   scenarioStat.TotalAttempts,
			"correct_attempts": scenarioStat.CorrectAttempts,
		}).Error; err != nil {
		s.logError(opRecordAnswer, "scenario_stat_save_failed", err, fields...)
		return HandStat{}, apperrors.New(opRecordAnswer, "scenario_stat_save_failed", err)
	}

	handSeed := HandStat{
		UserID:        record.UserID,
		ScenarioID:    record.ScenarioID,
		Hand:          record.Hand.String(),
		CurrentWeight: s.weights.Default,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&handSeed).Error; err != nil {
		s.logError(opRecordAnswer, "hand_stat_insert_failed", err, fields...)
		return HandStat{}, apperrors.New(opRecordAnswer, "hand_stat_insert_failed", err)
	}
	var handStat HandStat
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND scenario_id = ? AND hand = ?", record.UserID, record.ScenarioID, record.Hand.String()).
		Take(&handStat).Error; err != nil {
		s.logError(opRecordAnswer, "hand_stat_select_failed", err, fields...)
		return HandStat{}, apperrors.New(opRecordAnswer, "hand_stat_select_failed", err)
	}

	handStat.TotalAttempts++
	switch record.Mistake {
	case border.MistakeBorder:
		handStat.BorderMistakes++
	case border.MistakeNormal:
		handStat.NormalMistakes++
	default:
		handStat.CorrectAttempts++
	}
	handStat.CurrentWeight = s.weights.Next(handStat.CurrentWeight, record.Mistake)
	handStat.LastShownAtSeconds = s.clock().UTC().Unix()

	if err := tx.Model(&HandStat{}).
		Where("user_id = ? AND scenario_id = ? AND hand = ?", record.UserID, record.ScenarioID, record.Hand.String()).
		Updates(map[string]any{
			"total_attempts":   handStat.TotalAttempts,
			"correct_attempts": handStat.CorrectAttempts,
			"normal_mistakes":  handStat.NormalMistakes,
			"border_mistakes":  handStat.BorderMistakes,
			"current_weight":   handStat.CurrentWeight,
			"last_shown_at_s":  handStat.LastShownAtSeconds,
		}).Error; err != nil {
		s.logError(opRecordAnswer, "hand_stat_save_failed", err, fields...)
		return HandStat{}, apperrors.New(opRecordAnswer, "hand_stat_save_failed", err)
	}
	return handStat, nil
}

// HandStat loads one hand record; ok is false when the hand was never answered.
func (s *Store) HandStat(ctx context.Context, userID string, scenarioID uint, hand hands.Hand) (HandStat, bool, error) {
	var stat HandStat
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND scenario_id = ? AND hand = ?", userID, scenarioID, hand.String()).
		Take(&stat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return HandStat{}, false, nil
	}
	if err != nil {
		s.logError(opHandWeights, "query_failed", err, zap.String("user_id", userID), zap.Uint("scenario_id", scenarioID))
		return HandStat{}, false, apperrors.New(opHandWeights, "query_failed", err)
	}
	return stat, true, nil
}

// HandWeights returns the stored weight of every answered hand in a scenario.
func (s *Store) HandWeights(ctx context.Context, userID string, scenarioID uint) (map[hands.Hand]float64, error) {
	var rows []HandStat
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND scenario_id = ?", userID, scenarioID).
		Find(&rows).Error; err != nil {
		s.logError(opHandWeights, "query_failed", err, zap.String("user_id", userID), zap.Uint("scenario_id", scenarioID))
		return nil, apperrors.New(opHandWeights, "query_failed", err)
	}
	weights := make(map[hands.Hand]float64, len(rows))
	for _, row := range rows {
		hand, err := hands.ParseHand(row.Hand)
		if err != nil {
			s.logger.Warn("skipping unparseable hand stat",
				zap.String("user_id", userID),
				zap.Uint("scenario_id", scenarioID),
				zap.String("hand", row.Hand))
			continue
		}
		weights[hand] = row.CurrentWeight
	}
	return weights, nil
}

// ScenarioTotals returns the counters of every requested scenario the user
// has answered. Scenarios without attempts are absent.
func (s *Store) ScenarioTotals(ctx context.Context, userID string, scenarioIDs []uint) (map[uint]Totals, error) {
	return s.scenarioTotals(s.db.WithContext(ctx), userID, scenarioIDs)
}

func (s *Store) scenarioTotals(db *gorm.DB, userID string, scenarioIDs []uint) (map[uint]Totals, error) {
	totals := make(map[uint]Totals, len(scenarioIDs))
	if len(scenarioIDs) == 0 {
		return totals, nil
	}
	var rows []ScenarioStat
	if err := db.
		Where("user_id = ? AND scenario_id IN ?", userID, scenarioIDs).
		Find(&rows).Error; err != nil {
		s.logError(opScenarioTotals, "query_failed", err, zap.String("user_id", userID))
		return nil, apperrors.New(opScenarioTotals, "query_failed", err)
	}
	for _, row := range rows {
		totals[row.ScenarioID] = Totals{Attempts: row.TotalAttempts, Correct: row.CorrectAttempts}
	}
	return totals, nil
}

// ScenarioAccuracy returns the unrounded accuracy percentage for one
// scenario, 0 without attempts.
func (s *Store) ScenarioAccuracy(ctx context.Context, userID string, scenarioID uint) (float64, error) {
	totals, err := s.ScenarioTotals(ctx, userID, []uint{scenarioID})
	if err != nil {
		return 0, err
	}
	total := totals[scenarioID]
	return sampler.AccuracyPercent(total.Correct, total.Attempts), nil
}

// Snapshot aggregates the user's counters over a scenario set. An empty set
// yields a zero snapshot.
func (s *Store) Snapshot(ctx context.Context, userID string, scenarioIDs []uint) (Snapshot, error) {
	return s.snapshot(s.db.WithContext(ctx), userID, scenarioIDs)
}

// SnapshotTx is Snapshot read through the caller's transaction.
func (s *Store) SnapshotTx(ctx context.Context, tx *gorm.DB, userID string, scenarioIDs []uint) (Snapshot, error) {
	if tx == nil {
		return Snapshot{}, apperrors.New(opSnapshot, "missing_transaction", errMissingTransaction)
	}
	return s.snapshot(tx.WithContext(ctx), userID, scenarioIDs)
}

func (s *Store) snapshot(db *gorm.DB, userID string, scenarioIDs []uint) (Snapshot, error) {
	snapshot := Snapshot{Scenarios: map[uint]ScenarioSnapshot{}}
	if len(scenarioIDs) == 0 {
		return snapshot, nil
	}
	totals, err := s.scenarioTotals(db, userID, scenarioIDs)
	if err != nil {
		return Snapshot{}, apperrors.New(opSnapshot, "totals_failed", err)
	}
	for scenarioID, total := range totals {
		snapshot.TotalAttempts += total.Attempts
		snapshot.TotalCorrect += total.Correct
		snapshot.Scenarios[scenarioID] = ScenarioSnapshot{
			Total:    total.Attempts,
			Correct:  total.Correct,
			Accuracy: Percent(total.Correct, total.Attempts),
		}
	}
	snapshot.Overall = Percent(snapshot.TotalCorrect, snapshot.TotalAttempts)
	return snapshot, nil
}

type counterSums struct {
	Total   int64
	Correct int64
	Border  int64
}

// Overview summarises every answer the user has given. Sessions is left for
// the caller to fill.
func (s *Store) Overview(ctx context.Context, userID string) (Overview, error) {
	var scenarioSums, handSums counterSums
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return s.db.WithContext(groupCtx).
			Model(&ScenarioStat{}).
			Select("COALESCE(SUM(total_attempts), 0) AS total, COALESCE(SUM(correct_attempts), 0) AS correct").
			Where("user_id = ?", userID).
			Scan(&scenarioSums).Error
	})
	group.Go(func() error {
		return s.db.WithContext(groupCtx).
			Model(&HandStat{}).
			Select("COALESCE(SUM(border_mistakes), 0) AS border").
			Where("user_id = ?", userID).
			Scan(&handSums).Error
	})
	if err := group.Wait(); err != nil {
		s.logError(opOverview, "query_failed", err, zap.String("user_id", userID))
		return Overview{}, apperrors.New(opOverview, "query_failed", err)
	}

	return Overview{
		TotalHands:     scenarioSums.Total,
		Accuracy:       Percent(scenarioSums.Correct, scenarioSums.Total),
		TotalMistakes:  scenarioSums.Total - scenarioSums.Correct,
		BorderMistakes: handSums.Border,
	}, nil
}

// ProblemHands lists the user's weakest hands across all scenarios: at least
// five attempts and one mistake, lowest accuracy first, at most ten.
func (s *Store) ProblemHands(ctx context.Context, userID string) ([]ProblemHand, error) {
	var rows []HandStat
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND total_attempts >= ? AND correct_attempts < total_attempts", userID, problemHandMinAttempts).
		Order("scenario_id ASC, hand ASC").
		Find(&rows).Error; err != nil {
		s.logError(opProblemHands, "query_failed", err, zap.String("user_id", userID))
		return nil, apperrors.New(opProblemHands, "query_failed", err)
	}
	return rankProblemHands(rows, problemHandMinAttempts), nil
}

// ScenarioDetail builds the summary, heatmap and problem hands of one scenario.
func (s *Store) ScenarioDetail(ctx context.Context, userID string, scenarioID uint) (ScenarioDetail, error) {
	var (
		scenarioStat ScenarioStat
		handRows     []HandStat
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := s.db.WithContext(groupCtx).
			Where("user_id = ? AND scenario_id = ?", userID, scenarioID).
			Take(&scenarioStat).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		return s.db.WithContext(groupCtx).
			Where("user_id = ? AND scenario_id = ?", userID, scenarioID).
			Order("hand ASC").
			Find(&handRows).Error
	})
	if err := group.Wait(); err != nil {
		s.logError(opScenarioDetail, "query_failed", err, zap.String("user_id", userID), zap.Uint("scenario_id", scenarioID))
		return ScenarioDetail{}, apperrors.New(opScenarioDetail, "query_failed", err)
	}

	detail := ScenarioDetail{
		Summary: Summary{
			TotalHands:    scenarioStat.TotalAttempts,
			Accuracy:      Percent(scenarioStat.CorrectAttempts, scenarioStat.TotalAttempts),
			TotalMistakes: scenarioStat.TotalAttempts - scenarioStat.CorrectAttempts,
		},
		Heatmap: make(map[string]HeatCell, len(handRows)),
	}
	for _, row := range handRows {
		detail.Summary.BorderMistakes += row.BorderMistakes
		detail.Heatmap[row.Hand] = HeatCell{
			Total:    row.TotalAttempts,
			Correct:  row.CorrectAttempts,
			Accuracy: Percent(row.CorrectAttempts, row.TotalAttempts),
		}
	}
	detail.ProblemHands = rankProblemHands(handRows, scenarioProblemMinAttempts)
	return detail, nil
}

// ScenarioSummaries reports the headline numbers of each requested scenario,
// zero-filled for scenarios never answered.
func (s *Store) ScenarioSummaries(ctx context.Context, userID string, scenarioIDs []uint) (map[uint]Summary, error) {
	summaries := make(map[uint]Summary, len(scenarioIDs))
	for _, scenarioID := range scenarioIDs {
		summaries[scenarioID] = Summary{}
	}
	if len(scenarioIDs) == 0 {
		return summaries, nil
	}

	var (
		totals  map[uint]Totals
		borders []struct {
			ScenarioID uint
			Border     int64
		}
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		totals, err = s.ScenarioTotals(groupCtx, userID, scenarioIDs)
		return err
	})
	group.Go(func() error {
		return s.db.WithContext(groupCtx).
			Model(&HandStat{}).
			Select("scenario_id, COALESCE(SUM(border_mistakes), 0) AS border").
			Where("user_id = ? AND scenario_id IN ?", userID, scenarioIDs).
			Group("scenario_id").
			Scan(&borders).Error
	})
	if err := group.Wait(); err != nil {
		s.logError(opScenarioSummary, "query_failed", err, zap.String("user_id", userID))
		return nil, apperrors.New(opScenarioSummary, "query_failed", err)
	}

	for scenarioID, total := range totals {
		summary := summaries[scenarioID]
		summary.TotalHands = total.Attempts
		summary.Accuracy = Percent(total.Correct, total.Attempts)
		summary.TotalMistakes = total.Attempts - total.Correct
		summaries[scenarioID] = summary
	}
	for _, row := range borders {
		summary := summaries[row.ScenarioID]
		summary.BorderMistakes = row.Border
		summaries[row.ScenarioID] = summary
	}
	return summaries, nil
}

// GroupStats sums the user's counters over the members of each group, in
// the order given. A scenario shared by two groups counts in both.
func (s *Store) GroupStats(ctx context.Context, userID string, groups []scenarios.GroupMembers) ([]GroupSummary, error) {
	scenarioIDs := make([]uint, 0)
	for _, group := range groups {
		for _, scenario := range group.Scenarios {
			scenarioIDs = append(scenarioIDs, scenario.ID)
		}
	}
	summaries, err := s.ScenarioSummaries(ctx, userID, scenarioIDs)
	if err != nil {
		return nil, apperrors.New(opGroupStats, "summaries_failed", err)
	}

	result := make([]GroupSummary, 0, len(groups))
	for _, group := range groups {
		summary := GroupSummary{
			ID:            group.Group.ID,
			Name:          group.Group.Name,
			IsActive:      group.Group.IsActive,
			ScenarioCount: len(group.Scenarios),
			Scenarios:     make([]GroupScenario, 0, len(group.Scenarios)),
		}
		for _, scenario := range group.Scenarios {
			member := summaries[scenario.ID]
			summary.TotalHands += member.TotalHands
			summary.TotalMistakes += member.TotalMistakes
			summary.BorderMistakes += member.BorderMistakes
			summary.Scenarios = append(summary.Scenarios, GroupScenario{
				ID:         scenario.ID,
				Name:       scenario.Name,
				Positions:  []string(scenario.Positions),
				StackDepth: scenario.StackDepth,
				Accuracy:   member.Accuracy,
			})
		}
		summary.Accuracy = Percent(summary.TotalHands-summary.TotalMistakes, summary.TotalHands)
		result = append(result, summary)
	}
	return result, nil
}

// PurgeScenario deletes every hand and scenario counter recorded for a
// scenario inside the caller's transaction.
func PurgeScenario(tx *gorm.DB, scenarioID uint) error {
	if err := tx.Where("scenario_id = ?", scenarioID).Delete(&HandStat{}).Error; err != nil {
		return err
	}
	return tx.Where("scenario_id = ?", scenarioID).Delete(&ScenarioStat{}).Error
}

// LowAccuracy returns scenarios with at least minAttempts answers and an
// accuracy below the percentage, weakest first, at most limit entries.
func (s *Store) LowAccuracy(ctx context.Context, userID string, minAttempts int64, belowPercent float64, limit int) ([]ScenarioStat, error) {
	var rows []ScenarioStat
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND total_attempts >= ? AND total_attempts > 0", userID, minAttempts).
		Where("(correct_attempts * 100.0 / total_attempts) < ?", belowPercent).
		Order("correct_attempts * 1.0 / total_attempts ASC").
		Order("scenario_id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		s.logError(opLowAccuracy, "query_failed", err, zap.String("user_id", userID))
		return nil, apperrors.New(opLowAccuracy, "query_failed", err)
	}
	return rows, nil
}

// AttemptedScenarioIDs lists every scenario the user has answered at least once.
func (s *Store) AttemptedScenarioIDs(ctx context.Context, userID string) ([]uint, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).
		Model(&ScenarioStat{}).
		Where("user_id = ? AND total_attempts > 0", userID).
		Order("scenario_id ASC").
		Pluck("scenario_id", &ids).Error; err != nil {
		s.logError(opScenarioTotals, "query_failed", err, zap.String("user_id", userID))
		return nil, apperrors.New(opScenarioTotals, "query_failed", err)
	}
	return ids, nil
}

func rankProblemHands(rows []HandStat, minAttempts int64) []ProblemHand {
	problems := make([]ProblemHand, 0, len(rows))
	for _, row := range rows {
		if row.TotalAttempts < minAttempts || row.CorrectAttempts >= row.TotalAttempts {
			continue
		}
		problems = append(problems, ProblemHand{
			ScenarioID: row.ScenarioID,
			Hand:       row.Hand,
			Accuracy:   Percent(row.CorrectAttempts, row.TotalAttempts),
			Mistakes:   row.TotalAttempts - row.CorrectAttempts,
			Total:      row.TotalAttempts,
		})
	}
	sort.SliceStable(problems, func(i, j int) bool {
		return problems[i].Accuracy < problems[j].Accuracy
	})
	if len(problems) > problemHandLimit {
		problems = problems[:problemHandLimit]
	}
	return problems
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("stats store error", attrs...)
}
