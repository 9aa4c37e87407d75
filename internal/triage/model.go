package triage

import "unicode/utf8"

// MaxValueLen is the longest question, label or option text accepted, in characters.
const MaxValueLen = 100

// Layout constants. Positions are display only and never affect traversal.
const (
	// OptionSlotHeight is the vertical space reserved per option index.
	OptionSlotHeight = 90

	// OptionOffsetX is the horizontal offset of an option inside its step.
	OptionOffsetX = 5

	// NestedStepOffsetX is how far right of its option a new nested step is placed.
	NestedStepOffsetX = 500

	// NestedStepSlotHeight spreads nested steps of consecutive options apart.
	NestedStepSlotHeight = 220
)

// StepType distinguishes decision steps from terminal label steps.
type StepType string

const (
	// StepTypeStep is a decision point that owns options.
	StepTypeStep StepType = "step"

	// StepTypeLabel is a terminal step carrying a triage classification.
	StepTypeLabel StepType = "label"
)

// Valid reports whether t is a known step type.
func (t StepType) Valid() bool {
	return t == StepTypeStep || t == StepTypeLabel
}

// Label is a triage classification. The zero value means unassigned.
type Label string

const (
	// LabelEmergency requires immediate attention
	LabelEmergency Label = "Emergency"

	// LabelDelayed can wait without risk
	LabelDelayed Label = "Delayed"

	// LabelMinor needs minimal or no treatment
	LabelMinor Label = "Minor"
)

// Labels lists every classification in priority order.
var Labels = []Label{LabelEmergency, LabelDelayed, LabelMinor}

// Valid reports whether l is one of the known classifications.
func (l Label) Valid() bool {
	return l.Priority() > 0
}

// Priority ranks a label for queue ordering, lower is more urgent.
// Unknown labels rank 0.
func (l Label) Priority() int {
	switch l {
	case LabelEmergency:
		return 1
	case LabelDelayed:
		return 2
	case LabelMinor:
		return 3
	default:
		return 0
	}
}

// Position is a 2-D display coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Step is a decision or terminal label node of the triage tree.
type Step struct {
	ID            string
	Value         string
	IsRoot        bool
	StepType      StepType
	AssignedLabel Label
	Position      Position
}

// Option is a labelled choice owned by exactly one Step. Index is its rank
// among siblings and Position is relative to the parent step.
type Option struct {
	ID       string
	ParentID string
	Value    string
	Index    int
	Position Position
}

// Edge connects an Option (Source) to the next Step (Target).
type Edge struct {
	ID     string
	Source string
	Target string
}

// optionPosition is where an option with the given index sits inside its step.
func optionPosition(index int) Position {
	return Position{X: OptionOffsetX, Y: float64(index * OptionSlotHeight)}
}

func valueTooLong(s string) bool {
	return utf8.RuneCountInString(s) > MaxValueLen
}
