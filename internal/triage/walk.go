package triage

import "fmt"

// StepView is one screen of the patient questionnaire: a question and the
// choices leading out of it.
type StepView struct {
	Step    string       `json:"step"`
	Options []OptionView `json:"options"`
}

// OptionView is a choice of a StepView. An option that leads to another
// question carries NextStep; one that ends the walk carries AssignedLabel.
// An unconnected option carries neither.
type OptionView struct {
	Value         string `json:"value"`
	NextStep      string `json:"nextStep,omitempty"`
	AssignedLabel Label  `json:"assignedLabel,omitempty"`
}

// Walk returns the view of a step, or of the root when stepID is empty.
// Options are ordered by index. The root view of a tree that has no steps
// yet is an empty screen.
func (g *Graph) Walk(stepID string) (*StepView, error) {
	if stepID == "" && g.Empty() {
		return &StepView{Options: make([]OptionView, 0)}, nil
	}
	var (
		step Step
		ok   bool
	)
	if stepID == "" {
		step, ok = g.Root()
	} else {
		step, ok = g.Step(stepID)
	}
	if !ok {
		return nil, fmt.Errorf("%w: step %q", ErrInvalidReference, stepID)
	}

	view := &StepView{Step: step.Value, Options: make([]OptionView, 0)}
	for _, o := range g.Siblings(step.ID) {
		ov := OptionView{Value: o.Value}
		if e, ok := g.outgoing(o.ID); ok {
			if next, ok := g.steps[e.Target]; ok {
				if next.StepType == StepTypeLabel {
					ov.AssignedLabel = next.AssignedLabel
				} else {
					ov.NextStep = next.ID
				}
			}
		}
		view.Options = append(view.Options, ov)
	}
	return view, nil
}
