package rangedrill

import "gorm.io/datatypes"

// Attempt is one submitted range for a scenario.
type Attempt struct {
	ID               uint                                  `gorm:"column:id;primaryKey;autoIncrement"`
	UserID           string                                `gorm:"column:user_id;size:190;not null;index:idx_range_attempts_user_created,priority:1"`
	ScenarioID       uint                                  `gorm:"column:scenario_id;not null"`
	UserGrid         datatypes.JSONType[map[string]string] `gorm:"column:user_grid;not null"`
	Accuracy         float64                               `gorm:"column:accuracy;not null"`
	CorrectCells     int                                   `gorm:"column:correct_cells;not null"`
	IncorrectCells   int                                   `gorm:"column:incorrect_cells;not null"`
	TimeSeconds      *int                                  `gorm:"column:time_seconds"`
	CreatedAtSeconds int64                                 `gorm:"column:created_at_s;not null;index:idx_range_attempts_user_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Attempt) TableName() string {
	return "range_construction_attempts"
}

// Stat aggregates a user's range attempts on one scenario.
type Stat struct {
	UserID           string  `gorm:"column:user_id;primaryKey;size:190;not null"`
	ScenarioID       uint    `gorm:"column:scenario_id;primaryKey;autoIncrement:false;not null"`
	TotalAttempts    int64   `gorm:"column:total_attempts;not null"`
	BestAccuracy     float64 `gorm:"column:best_accuracy;not null"`
	AverageAccuracy  float64 `gorm:"column:avg_accuracy;not null"`
	UpdatedAtSeconds int64   `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Stat) TableName() string {
	return "user_range_construction_stats"
}

// CellDifference is one cell where the submitted range disagrees with the scenario.
type CellDifference struct {
	Hand          string `json:"hand"`
	UserAction    string `json:"userAction"`
	CorrectAction string `json:"correctAction"`
}

// Aggregate is the public view of a Stat.
type Aggregate struct {
	TotalAttempts   int64   `json:"totalAttempts"`
	BestAccuracy    float64 `json:"bestAccuracy"`
	AverageAccuracy float64 `json:"avgAccuracy"`
}

// Brief is the table context of a range drill, without the answer grid.
type Brief struct {
	ScenarioID  uint     `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Positions   []string `json:"positions"`
	StackDepth  int      `json:"stackDepth"`
	Limpers     int      `json:"limpers"`
}

// Result reports a graded range.
type Result struct {
	AttemptID      uint              `json:"sessionId"`
	Accuracy       float64           `json:"accuracy"`
	CorrectCount   int               `json:"correctCount"`
	IncorrectCount int               `json:"incorrectCount"`
	TotalCells     int               `json:"totalCells"`
	Differences    []CellDifference  `json:"differences"`
	CorrectGrid    map[string]string `json:"correctGrid"`
	Stats          Aggregate         `json:"stats"`
}

// ScenarioAggregate pairs a scenario with the user's aggregate on it.
type ScenarioAggregate struct {
	ScenarioID   uint     `json:"scenarioId"`
	ScenarioName string   `json:"scenarioName"`
	Positions    []string `json:"positions"`
	StackDepth   int      `json:"stackDepth"`
	Aggregate
}

// Overall sums a user's range attempts across scenarios.
type Overall struct {
	TotalAttempts      int64   `json:"totalAttempts"`
	AverageAccuracy    float64 `json:"avgAccuracy"`
	ScenariosAttempted int     `json:"scenariosAttempted"`
}

// Report is the per-user range statistics view.
type Report struct {
	Overall   Overall             `json:"overall"`
	Scenarios []ScenarioAggregate `json:"scenarios"`
}
