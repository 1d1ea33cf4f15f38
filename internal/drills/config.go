package drills

import (
	"errors"
	"fmt"
)

// Type selects how a drill resolves its scenarios.
type Type string

const (
	// TypeScenario drills a single scenario.
	TypeScenario Type = "scenario"
	// TypeGroup drills every scenario of one group.
	TypeGroup Type = "group"
	// TypeGlobal drills every scenario of every active group.
	TypeGlobal Type = "global"
)

const (
	minTimerSeconds = 1
	maxTimerSeconds = 60
)

// Config is the selection and pacing of a drill session.
type Config struct {
	Type         Type `json:"type"`
	ScenarioID   uint `json:"scenarioId,omitempty"`
	GroupID      uint `json:"groupId,omitempty"`
	UseTimer     bool `json:"useTimer"`
	TimerSeconds int  `json:"timerSeconds,omitempty"`
	// HandLimit ends the drill after that many answers; zero means no limit.
	HandLimit int `json:"handLimit,omitempty"`
}

// Validate checks the shape of the configuration.
func (c Config) Validate() error {
	var problems []error
	switch c.Type {
	case TypeScenario:
		if c.ScenarioID == 0 {
			problems = append(problems, errors.New("scenarioId is required for scenario drills"))
		}
	case TypeGroup:
		if c.GroupID == 0 {
			problems = append(problems, errors.New("groupId is required for group drills"))
		}
	case TypeGlobal:
	default:
		problems = append(problems, fmt.Errorf("unknown drill type %q", c.Type))
	}
	if c.UseTimer && c.TimerSeconds == 0 {
		problems = append(problems, errors.New("timerSeconds is required when the timer is enabled"))
	}
	if c.TimerSeconds != 0 && (c.TimerSeconds < minTimerSeconds || c.TimerSeconds > maxTimerSeconds) {
		problems = append(problems, fmt.Errorf("timerSeconds %d outside [%d,%d]", c.TimerSeconds, minTimerSeconds, maxTimerSeconds))
	}
	if c.HandLimit < 0 {
		problems = append(problems, fmt.Errorf("handLimit %d must not be negative", c.HandLimit))
	}
	return errors.Join(problems...)
}
