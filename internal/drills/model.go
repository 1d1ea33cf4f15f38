package drills

import (
	"gorm.io/datatypes"

	"github.com/MarcoPoloResearchLab/rangedrill/internal/stats"
)

// Session is one practice run.
type Session struct {
	ID               string                             `gorm:"column:id;primaryKey;size:36"`
	UserID           string                             `gorm:"column:user_id;size:190;not null;index:idx_drill_sessions_user"`
	ConfigJSON       datatypes.JSONType[Config]         `gorm:"column:config;not null"`
	ScenarioIDs      datatypes.JSONSlice[uint]          `gorm:"column:scenario_ids;not null"`
	PreDrillStats    datatypes.JSONType[stats.Snapshot] `gorm:"column:pre_drill_stats;not null"`
	UseTimer         bool                               `gorm:"column:use_timer;not null"`
	TimerSeconds     *int                               `gorm:"column:timer_seconds"`
	StartedAtSeconds int64                              `gorm:"column:started_at_s;not null"`
	EndedAtSeconds   *int64                             `gorm:"column:ended_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (Session) TableName() string {
	return "drill_sessions"
}

// Config decodes the stored drill configuration.
func (s Session) Config() Config {
	return s.ConfigJSON.Data()
}

// Ended reports whether the session has been closed.
func (s Session) Ended() bool {
	return s.EndedAtSeconds != nil
}

// Answer is one presented hand and the player's response. Rows are append-only.
type Answer struct {
	ID                uint   `gorm:"column:id;primaryKey;autoIncrement"`
	SessionID         string `gorm:"column:drill_session_id;size:36;not null;index:idx_drill_answers_session"`
	UserID            string `gorm:"column:user_id;size:190;not null;index:idx_drill_answers_user_scenario,priority:1"`
	ScenarioID        uint   `gorm:"column:scenario_id;not null;index:idx_drill_answers_user_scenario,priority:2"`
	Hand              string `gorm:"column:hand;size:3;not null"`
	UserAction        string `gorm:"column:user_action;size:8;not null"`
	CorrectAction     string `gorm:"column:correct_action;size:8;not null"`
	IsCorrect         bool   `gorm:"column:is_correct;not null"`
	MistakeType       string `gorm:"column:mistake_type;size:8;not null;default:''"`
	AnsweredAtSeconds int64  `gorm:"column:answered_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Answer) TableName() string {
	return "drill_answers"
}
