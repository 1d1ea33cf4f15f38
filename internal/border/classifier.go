package border

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/rangedrill/internal/hands"
)

// MistakeType labels an incorrect answer.
type MistakeType string

const (
	// MistakeNone is recorded for correct answers.
	MistakeNone MistakeType = ""
	// MistakeNormal is a wrong answer on an interior hand.
	MistakeNormal MistakeType = "normal"
	// MistakeBorder is a wrong answer on a decision-boundary hand.
	MistakeBorder MistakeType = "border"
)

// ParseMistakeType parses a stored mistake label.
func ParseMistakeType(label string) (MistakeType, error) {
	switch MistakeType(label) {
	case MistakeNone, MistakeNormal, MistakeBorder:
		return MistakeType(label), nil
	default:
		return MistakeNone, fmt.Errorf("border: unknown mistake type %q", label)
	}
}

// Classifier decides whether a mistake happened on the range boundary.
type Classifier struct {
	analyzer Analyzer
}

// NewClassifier binds a classifier to an analyzer.
func NewClassifier(analyzer Analyzer) Classifier {
	return Classifier{analyzer: analyzer}
}

// Categorize returns MistakeBorder when the hand borders a different action, MistakeNormal otherwise.
func (c Classifier) Categorize(hand hands.Hand, grid hands.Grid) MistakeType {
	if c.analyzer.IsBorder(grid, hand) {
		return MistakeBorder
	}
	return MistakeNormal
}
