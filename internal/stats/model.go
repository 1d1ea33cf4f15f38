package stats

import "math"

// HandStat is the adaptive per-(user, scenario, hand) record.
type HandStat struct {
	UserID             string  `gorm:"column:user_id;primaryKey;size:190;not null"`
	ScenarioID         uint    `gorm:"column:scenario_id;primaryKey;autoIncrement:false;not null"`
	Hand               string  `gorm:"column:hand;primaryKey;size:3;not null"`
	TotalAttempts      int64   `gorm:"column:total_attempts;not null"`
	CorrectAttempts    int64   `gorm:"column:correct_attempts;not null"`
	NormalMistakes     int64   `gorm:"column:normal_mistakes;not null"`
	BorderMistakes     int64   `gorm:"column:border_mistakes;not null"`
	CurrentWeight      float64 `gorm:"column:current_weight;not null"`
	LastShownAtSeconds int64   `gorm:"column:last_shown_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (HandStat) TableName() string {
	return "user_hand_stats"
}

// ScenarioStat is the per-(user, scenario) attempt counter.
type ScenarioStat struct {
	UserID          string `gorm:"column:user_id;primaryKey;size:190;not null"`
	ScenarioID      uint   `gorm:"column:scenario_id;primaryKey;autoIncrement:false;not null"`
	TotalAttempts   int64  `gorm:"column:total_attempts;not null"`
	CorrectAttempts int64  `gorm:"column:correct_attempts;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ScenarioStat) TableName() string {
	return "user_scenario_stats"
}

// Totals counts attempts and correct answers.
type Totals struct {
	Attempts int64 `json:"total"`
	Correct  int64 `json:"correct"`
}

// Percent returns correct/total as a whole percentage rounded half up, or 0
// without attempts.
func Percent(correct, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(total) * 100))
}

// ScenarioSnapshot is one scenario inside a Snapshot.
type ScenarioSnapshot struct {
	Total    int64 `json:"total"`
	Correct  int64 `json:"correct"`
	Accuracy int   `json:"accuracy"`
}

// Snapshot aggregates a user's scenario counters over a fixed scenario set.
type Snapshot struct {
	Overall       int                       `json:"overall"`
	TotalAttempts int64                     `json:"totalAttempts"`
	TotalCorrect  int64                     `json:"totalCorrect"`
	Scenarios     map[uint]ScenarioSnapshot `json:"scenarios"`
}

// Overview summarises everything a user has answered.
type Overview struct {
	TotalHands     int64 `json:"totalHands"`
	Accuracy       int   `json:"accuracy"`
	TotalMistakes  int64 `json:"totalMistakes"`
	BorderMistakes int64 `json:"borderMistakes"`
	Sessions       int64 `json:"sessions"`
}

// ProblemHand is a hand the user keeps missing.
type ProblemHand struct {
	ScenarioID uint   `json:"scenarioId"`
	Hand       string `json:"hand"`
	Accuracy   int    `json:"accuracy"`
	Mistakes   int64  `json:"mistakes"`
	Total      int64  `json:"total"`
}

// Summary is the headline block of a scenario report.
type Summary struct {
	TotalHands     int64 `json:"totalHands"`
	Accuracy       int   `json:"accuracy"`
	TotalMistakes  int64 `json:"totalMistakes"`
	BorderMistakes int64 `json:"borderMistakes"`
}

// HeatCell is the per-hand entry of a scenario heatmap.
type HeatCell struct {
	Total    int64 `json:"total"`
	Correct  int64 `json:"correct"`
	Accuracy int   `json:"accuracy"`
}

// ScenarioDetail is the full report for one scenario.
type ScenarioDetail struct {
	Summary      Summary             `json:"summary"`
	Heatmap      map[string]HeatCell `json:"heatmap"`
	ProblemHands []ProblemHand       `json:"problemHands"`
}

// GroupScenario is one member scenario inside a GroupSummary.
type GroupScenario struct {
	ID         uint     `json:"id"`
	Name       string   `json:"name"`
	Positions  []string `json:"positions"`
	StackDepth int      `json:"stackDepth"`
	Accuracy   int      `json:"accuracy"`
}

// GroupSummary sums a user's counters over the scenarios of one group.
type GroupSummary struct {
	ID             uint            `json:"id"`
	Name           string          `json:"name"`
	IsActive       bool            `json:"isActive"`
	ScenarioCount  int             `json:"scenarioCount"`
	TotalHands     int64           `json:"totalHands"`
	Accuracy       int             `json:"accuracy"`
	TotalMistakes  int64           `json:"totalMistakes"`
	BorderMistakes int64           `json:"borderMistakes"`
	Scenarios      []GroupScenario `json:"scenarios"`
}
