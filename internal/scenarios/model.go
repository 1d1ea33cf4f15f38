package scenarios

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"gorm.io/datatypes"

	"github.com/MarcoPoloResearchLab/rangedrill/internal/hands"
)

const (
	minStackDepth     = 1
	maxStackDepth     = 200
	maxLimpers        = 5
	maxNameLength     = 190
	maxCreatorIDChars = 190
)

// ErrInvalidPosition indicates a table position outside the nine-seat enum.
var ErrInvalidPosition = errors.New("scenarios: invalid position")

// Position is a seat at a nine-handed table.
type Position string

const (
	PositionUTG  Position = "UTG"
	PositionUTG1 Position = "UTG+1"
	PositionUTG2 Position = "UTG+2"
	PositionLJ   Position = "LJ"
	PositionHJ   Position = "HJ"
	PositionCO   Position = "CO"
	PositionBTN  Position = "BTN"
	PositionSB   Position = "SB"
	PositionBB   Position = "BB"
)

var positionOrder = []Position{
	PositionUTG, PositionUTG1, PositionUTG2, PositionLJ, PositionHJ,
	PositionCO, PositionBTN, PositionSB, PositionBB,
}

// positionGroups names the seat sets rendered as a single label.
var positionGroups = []struct {
	name      string
	positions []Position
}{
	{name: "Early", positions: []Position{PositionUTG, PositionUTG1}},
	{name: "Middle", positions: []Position{PositionUTG2, PositionLJ}},
	{name: "Late", positions: []Position{PositionHJ, PositionCO, PositionBTN}},
	{name: "Blinds", positions: []Position{PositionSB, PositionBB}},
}

// Positions lists every seat from first to act to big blind.
func Positions() []Position {
	return slices.Clone(positionOrder)
}

// ParsePosition validates a seat label (case-insensitive).
func ParsePosition(raw string) (Position, error) {
	candidate := Position(strings.ToUpper(strings.TrimSpace(raw)))
	if slices.Contains(positionOrder, candidate) {
		return candidate, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPosition, raw)
}

// Scenario is an authored training unit: a strategy grid plus table context.
type Scenario struct {
	ID               uint                                  `gorm:"column:id;primaryKey;autoIncrement"`
	Name             string                                `gorm:"column:name;size:190;not null"`
	Description      string                                `gorm:"column:description;type:text;not null;default:''"`
	Positions        datatypes.JSONSlice[string]           `gorm:"column:positions;not null"`
	StackDepth       int                                   `gorm:"column:stack_depth;not null"`
	Limpers          int                                   `gorm:"column:limpers;not null;default:0"`
	GridJSON         datatypes.JSONType[map[string]string] `gorm:"column:grid;not null"`
	CreatedBy        string                                `gorm:"column:created_by;size:190;not null;index:idx_scenarios_creator"`
	CreatedAtSeconds int64                                 `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64                                 `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Scenario) TableName() string {
	return "scenarios"
}

// Grid decodes the stored grid. Unknown cells resolve to fold.
func (s Scenario) Grid() hands.Grid {
	return hands.LenientGridFromMap(s.GridJSON.Data())
}

// PositionList returns the stored seats, skipping anything unrecognised.
func (s Scenario) PositionList() []Position {
	positions := make([]Position, 0, len(s.Positions))
	for _, raw := range s.Positions {
		if position, err := ParsePosition(raw); err == nil {
			positions = append(positions, position)
		}
	}
	return positions
}

// PositionGroupName renders "Early", "Middle", "Late" or "Blinds" when the
// seats match a whole group, otherwise the seats joined by commas.
func (s Scenario) PositionGroupName() string {
	positions := s.PositionList()
	for _, group := range positionGroups {
		if len(group.positions) != len(positions) {
			continue
		}
		matched := true
		for _, position := range group.positions {
			if !slices.Contains(positions, position) {
				matched = false
				break
			}
		}
		if matched {
			return group.name
		}
	}
	labels := make([]string, len(positions))
	for index, position := range positions {
		labels[index] = string(position)
	}
	return strings.Join(labels, ", ")
}

// Group bundles scenarios; only active groups feed global drills.
type Group struct {
	ID               uint   `gorm:"column:id;primaryKey;autoIncrement"`
	Name             string `gorm:"column:name;size:190;not null"`
	IsActive         bool   `gorm:"column:is_active;not null;index:idx_groups_active"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Group) TableName() string {
	return "scenario_groups"
}

// GroupScenario links a scenario to a group.
type GroupScenario struct {
	GroupID    uint `gorm:"column:group_id;primaryKey;autoIncrement:false"`
	ScenarioID uint `gorm:"column:scenario_id;primaryKey;autoIncrement:false;index:idx_group_scenarios_scenario"`
}

// TableName provides the explicit table binding for GORM.
func (GroupScenario) TableName() string {
	return "group_scenarios"
}

// BorderHand caches the border distance of one hand in one scenario grid.
type BorderHand struct {
	ScenarioID     uint   `gorm:"column:scenario_id;primaryKey;autoIncrement:false"`
	Hand           string `gorm:"column:hand;primaryKey;size:3"`
	BorderDistance int    `gorm:"column:border_distance;not null"`
}

// TableName provides the explicit table binding for GORM.
func (BorderHand) TableName() string {
	return "scenario_border_hands"
}

// Input describes a scenario to create.
type Input struct {
	Name        string
	Description string
	Positions   []Position
	StackDepth  int
	Limpers     int
	Grid        hands.Grid
	CreatedBy   string
}

func (in Input) validate() error {
	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > maxNameLength {
		return errors.New("name must be 1-190 characters")
	}
	if len(in.Positions) == 0 {
		return errors.New("at least one position is required")
	}
	for _, position := range in.Positions {
		if !slices.Contains(positionOrder, position) {
			return fmt.Errorf("%w: %q", ErrInvalidPosition, position)
		}
	}
	if in.StackDepth < minStackDepth || in.StackDepth > maxStackDepth {
		return fmt.Errorf("stack depth %d outside [%d,%d]", in.StackDepth, minStackDepth, maxStackDepth)
	}
	if in.Limpers < 0 || in.Limpers > maxLimpers {
		return fmt.Errorf("limpers %d outside [0,%d]", in.Limpers, maxLimpers)
	}
	creator := strings.TrimSpace(in.CreatedBy)
	if creator == "" || len(creator) > maxCreatorIDChars {
		return errors.New("creator id is required")
	}
	return nil
}

func positionLabels(positions []Position) []string {
	seen := make(map[Position]bool, len(positions))
	labels := make([]string, 0, len(positions))
	for _, position := range positionOrder {
		if slices.Contains(positions, position) && !seen[position] {
			seen[position] = true
			labels = append(labels, string(position))
		}
	}
	return labels
}
