package editor

import (
	"fmt"

	"github.com/linnemanlabs/erqueue/internal/triage"
)

// CreateRoot adds a root to an empty tree and returns its id.
func (s *Session) CreateRoot() (string, error) {
	var id string
	err := s.mutate(func(g *triage.Graph) error {
		if _, ok := g.Root(); ok {
			return fmt.Errorf("%w: tree already has a root", triage.ErrValidation)
		}
		id = g.CreateRoot()
		return nil
	})
	return id, err
}

// AddOption appends an option under a question step. Label steps end the
// questionnaire and cannot have options.
func (s *Session) AddOption(stepID string) (string, error) {
	var id string
	err := s.mutate(func(g *triage.Graph) error {
		if st, ok := g.Step(stepID); ok && st.StepType == triage.StepTypeLabel {
			return fmt.Errorf("%w: step %q is a label step", triage.ErrValidation, stepID)
		}
		var err error
		id, err = g.AddOption(stepID)
		return err
	})
	return id, err
}

// AddNestedStep creates a step behind an unconnected option.
func (s *Session) AddNestedStep(optionID string) (string, error) {
	var id string
	err := s.mutate(func(g *triage.Graph) error {
		var err error
		id, err = g.AddNestedStep(optionID)
		return err
	})
	return id, err
}

// Connect links an option to an existing step.
func (s *Session) Connect(optionID, stepID string) (string, error) {
	var id string
	err := s.mutate(func(g *triage.Graph) error {
		var err error
		id, err = g.Connect(optionID, stepID)
		return err
	})
	return id, err
}

// Disconnect removes an edge.
func (s *Session) Disconnect(edgeID string) error {
	return s.mutate(func(g *triage.Graph) error { return g.Disconnect(edgeID) })
}

// UpdateStepValue sets a step's question text.
func (s *Session) UpdateStepValue(stepID, text string) error {
	return s.mutate(func(g *triage.Graph) error { return g.UpdateStepValue(stepID, text) })
}

// UpdateOptionValue sets an option's answer text.
func (s *Session) UpdateOptionValue(optionID, text string) error {
	return s.mutate(func(g *triage.Graph) error { return g.UpdateOptionValue(optionID, text) })
}

// UpdateStepType switches a step between question and label.
func (s *Session) UpdateStepType(stepID string, t triage.StepType) error {
	return s.mutate(func(g *triage.Graph) error { return g.UpdateStepType(stepID, t) })
}

// AssignLabel sets the classification of a label step.
func (s *Session) AssignLabel(stepID string, l triage.Label) error {
	return s.mutate(func(g *triage.Graph) error { return g.AssignLabel(stepID, l) })
}

// MoveNode repositions a step or option.
func (s *Session) MoveNode(id string, p triage.Position) error {
	return s.mutate(func(g *triage.Graph) error { return g.MoveNode(id, p) })
}

// DeleteOption removes an option and everything below it.
func (s *Session) DeleteOption(optionID string) error {
	return s.mutate(func(g *triage.Graph) error { return g.DeleteOption(optionID) })
}

// DeleteStep removes a step and everything below it. Deleting the root
// resets the tree.
func (s *Session) DeleteStep(stepID string) error {
	return s.mutate(func(g *triage.Graph) error { return g.DeleteStep(stepID) })
}

// Reset clears the tree down to an empty root and returns its id.
func (s *Session) Reset() (string, error) {
	var id string
	err := s.mutate(func(g *triage.Graph) error {
		id = g.ResetGraph("")
		return nil
	})
	return id, err
}
