package triage

import (
	"fmt"
	"slices"

	"github.com/oklog/ulid/v2"
)

// rootPosition is where a fresh root step is placed.
var rootPosition = Position{X: 100, Y: 100}

// Graph is the in-memory triage tree: an arena of steps, options and edges
// keyed by id. Insertion order is kept so serialization is stable.
//
// A Graph is not safe for concurrent use. A failing mutation never changes
// the graph.
type Graph struct {
	steps   map[string]*Step
	options map[string]*Option
	edges   map[string]*Edge

	stepIDs   []string
	optionIDs []string
	edgeIDs   []string

	newID func() string
}

// GraphOption configures a Graph.
type GraphOption func(*Graph)

// WithIDFunc overrides the id generator (ULIDs by default).
func WithIDFunc(fn func() string) GraphOption {
	return func(g *Graph) {
		if fn != nil {
			g.newID = fn
		}
	}
}

// NewGraph returns an empty graph.
func NewGraph(opts ...GraphOption) *Graph {
	g := &Graph{
		newID: func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(g)
	}
	g.clear()
	return g
}

func (g *Graph) clear() {
	g.steps = make(map[string]*Step)
	g.options = make(map[string]*Option)
	g.edges = make(map[string]*Edge)
	g.stepIDs = nil
	g.optionIDs = nil
	g.edgeIDs = nil
}

// Len returns the number of nodes (steps and options).
func (g *Graph) Len() int {
	return len(g.steps) + len(g.options)
}

// Empty reports whether the graph has no nodes.
func (g *Graph) Empty() bool {
	return g.Len() == 0
}

// CreateRoot discards the whole graph and leaves a single empty root step.
func (g *Graph) CreateRoot() string {
	g.clear()
	id := g.newID()
	g.putStep(&Step{
		ID:       id,
		IsRoot:   true,
		StepType: StepTypeStep,
		Position: rootPosition,
	})
	return id
}

// AddOption appends an empty option to the given step, ranked after its
// existing siblings. Callers must not add options to label steps.
func (g *Graph) AddOption(parentStepID string) (string, error) {
	if _, ok := g.steps[parentStepID]; !ok {
		return "", fmt.Errorf("%w: step %q", ErrInvalidReference, parentStepID)
	}

	index := len(g.siblings(parentStepID))
	id := g.newID()
	g.putOption(&Option{
		ID:       id,
		ParentID: parentStepID,
		Index:    index,
		Position: optionPosition(index),
	})
	return id, nil
}

// AddNestedStep creates a new step and connects the option to it. The option
// must not already have an outgoing edge.
func (g *Graph) AddNestedStep(optionID string) (string, error) {
	opt, ok := g.options[optionID]
	if !ok {
		return "", fmt.Errorf("%w: option %q", ErrInvalidReference, optionID)
	}
	if _, connected := g.outgoing(optionID); connected {
		return "", fmt.Errorf("%w: option %q", ErrAlreadyConnected, optionID)
	}

	var origin Position
	if parent, ok := g.steps[opt.ParentID]; ok {
		origin = parent.Position
	}

	step := &Step{
		ID:       g.newID(),
		StepType: StepTypeStep,
		Position: Position{
			X: origin.X + opt.Position.X + NestedStepOffsetX,
			Y: origin.Y + opt.Position.Y + float64(opt.Index*NestedStepSlotHeight),
		},
	}
	g.putStep(step)
	g.putEdge(&Edge{ID: g.newID(), Source: optionID, Target: step.ID})
	return step.ID, nil
}

// Connect adds an edge from an option to an existing step. The option must be
// connectable, the step must not be the root, must not already have a parent
// option, and must not be an ancestor of the option.
func (g *Graph) Connect(optionID, stepID string) (string, error) {
	opt, ok := g.options[optionID]
	if !ok {
		return "", fmt.Errorf("%w: option %q", ErrInvalidReference, optionID)
	}
	step, ok := g.steps[stepID]
	if !ok {
		return "", fmt.Errorf("%w: step %q", ErrInvalidReference, stepID)
	}
	if _, connected := g.outgoing(optionID); connected {
		return "", fmt.Errorf("%w: option %q", ErrAlreadyConnected, optionID)
	}
	if step.IsRoot {
		return "", fmt.Errorf("%w: root step %q cannot have a parent option", ErrValidation, stepID)
	}
	if _, hasParent := g.incoming(stepID); hasParent {
		return "", fmt.Errorf("%w: step %q already has a parent option", ErrValidation, stepID)
	}
	if g.isAncestor(stepID, opt.ParentID) {
		return "", fmt.Errorf("%w: connecting %q to %q would create a cycle", ErrValidation, optionID, stepID)
	}

	id := g.newID()
	g.putEdge(&Edge{ID: id, Source: optionID, Target: stepID})
	return id, nil
}

// Disconnect removes a single edge, leaving both ends in place.
func (g *Graph) Disconnect(edgeID string) error {
	if _, ok := g.edges[edgeID]; !ok {
		return fmt.Errorf("%w: edge %q", ErrInvalidReference, edgeID)
	}
	g.removeEdges(map[string]struct{}{edgeID: {}})
	return nil
}

// UpdateStepValue replaces a step's text.
func (g *Graph) UpdateStepValue(stepID, text string) error {
	step, ok := g.steps[stepID]
	if !ok {
		return fmt.Errorf("%w: step %q", ErrInvalidReference, stepID)
	}
	if valueTooLong(text) {
		return fmt.Errorf("%w: step value exceeds %d characters", ErrValidation, MaxValueLen)
	}
	step.Value = text
	return nil
}

// UpdateOptionValue replaces an option's text.
func (g *Graph) UpdateOptionValue(optionID, text string) error {
	opt, ok := g.options[optionID]
	if !ok {
		return fmt.Errorf("%w: option %q", ErrInvalidReference, optionID)
	}
	if valueTooLong(text) {
		return fmt.Errorf("%w: option value exceeds %d characters", ErrValidation, MaxValueLen)
	}
	opt.Value = text
	return nil
}

// UpdateStepType changes a step's type and clears its assigned label, so a
// label must be assigned again after switching to StepTypeLabel.
func (g *Graph) UpdateStepType(stepID string, t StepType) error {
	step, ok := g.steps[stepID]
	if !ok {
		return fmt.Errorf("%w: step %q", ErrInvalidReference, stepID)
	}
	if !t.Valid() {
		return fmt.Errorf("%w: unknown step type %q", ErrValidation, t)
	}
	step.StepType = t
	step.AssignedLabel = ""
	return nil
}

// AssignLabel sets the classification of a label step.
func (g *Graph) AssignLabel(stepID string, l Label) error {
	step, ok := g.steps[stepID]
	if !ok {
		return fmt.Errorf("%w: step %q", ErrInvalidReference, stepID)
	}
	if step.StepType != StepTypeLabel {
		return fmt.Errorf("%w: step %q is not a label step", ErrValidation, stepID)
	}
	if !l.Valid() {
		return fmt.Errorf("%w: unknown label %q", ErrValidation, l)
	}
	step.AssignedLabel = l
	return nil
}

// MoveNode updates the display position of a step or option.
func (g *Graph) MoveNode(id string, p Position) error {
	if step, ok := g.steps[id]; ok {
		step.Position = p
		return nil
	}
	if opt, ok := g.options[id]; ok {
		opt.Position = p
		return nil
	}
	return fmt.Errorf("%w: node %q", ErrInvalidReference, id)
}

// Step returns a copy of the step with the given id.
func (g *Graph) Step(id string) (Step, bool) {
	s, ok := g.steps[id]
	if !ok {
		return Step{}, false
	}
	return *s, true
}

// Option returns a copy of the option with the given id.
func (g *Graph) Option(id string) (Option, bool) {
	o, ok := g.options[id]
	if !ok {
		return Option{}, false
	}
	return *o, true
}

// Root returns the first step flagged as root.
func (g *Graph) Root() (Step, bool) {
	for _, id := range g.stepIDs {
		if s := g.steps[id]; s.IsRoot {
			return *s, true
		}
	}
	return Step{}, false
}

// Steps returns copies of all steps in insertion order.
func (g *Graph) Steps() []Step {
	out := make([]Step, 0, len(g.stepIDs))
	for _, id := range g.stepIDs {
		out = append(out, *g.steps[id])
	}
	return out
}

// Options returns copies of all options in insertion order.
func (g *Graph) Options() []Option {
	out := make([]Option, 0, len(g.optionIDs))
	for _, id := range g.optionIDs {
		out = append(out, *g.options[id])
	}
	return out
}

// Edges returns copies of all edges in insertion order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edgeIDs))
	for _, id := range g.edgeIDs {
		out = append(out, *g.edges[id])
	}
	return out
}

// Siblings returns the options of a step ordered by index.
func (g *Graph) Siblings(parentStepID string) []Option {
	sibs := g.siblings(parentStepID)
	out := make([]Option, 0, len(sibs))
	for _, o := range sibs {
		out = append(out, *o)
	}
	slices.SortStableFunc(out, func(a, b Option) int { return a.Index - b.Index })
	return out
}

// Outgoing returns the edge leaving an option, if any.
func (g *Graph) Outgoing(optionID string) (Edge, bool) {
	e, ok := g.outgoing(optionID)
	if !ok {
		return Edge{}, false
	}
	return *e, true
}

// Incoming returns the edge entering a step, if any.
func (g *Graph) Incoming(stepID string) (Edge, bool) {
	e, ok := g.incoming(stepID)
	if !ok {
		return Edge{}, false
	}
	return *e, true
}

// Connectable reports whether an option exists and has no outgoing edge.
func (g *Graph) Connectable(optionID string) bool {
	if _, ok := g.options[optionID]; !ok {
		return false
	}
	_, connected := g.outgoing(optionID)
	return !connected
}

func (g *Graph) putStep(s *Step) {
	g.steps[s.ID] = s
	g.stepIDs = append(g.stepIDs, s.ID)
}

func (g *Graph) putOption(o *Option) {
	g.options[o.ID] = o
	g.optionIDs = append(g.optionIDs, o.ID)
}

func (g *Graph) putEdge(e *Edge) {
	g.edges[e.ID] = e
	g.edgeIDs = append(g.edgeIDs, e.ID)
}

// siblings returns the options of a step in insertion order.
func (g *Graph) siblings(parentStepID string) []*Option {
	var out []*Option
	for _, id := range g.optionIDs {
		if o := g.options[id]; o.ParentID == parentStepID {
			out = append(out, o)
		}
	}
	return out
}

func (g *Graph) outgoing(optionID string) (*Edge, bool) {
	for _, id := range g.edgeIDs {
		if e := g.edges[id]; e.Source == optionID {
			return e, true
		}
	}
	return nil, false
}

func (g *Graph) incoming(stepID string) (*Edge, bool) {
	for _, id := range g.edgeIDs {
		if e := g.edges[id]; e.Target == stepID {
			return e, true
		}
	}
	return nil, false
}

// isAncestor reports whether candidate is stepID itself or lies on the path
// from stepID up to the root.
func (g *Graph) isAncestor(candidate, stepID string) bool {
	seen := make(map[string]struct{})
	cur := stepID
	for cur != "" {
		if cur == candidate {
			return true
		}
		if _, loop := seen[cur]; loop {
			return true
		}
		seen[cur] = struct{}{}

		e, ok := g.incoming(cur)
		if !ok {
			return false
		}
		opt, ok := g.options[e.Source]
		if !ok {
			return false
		}
		cur = opt.ParentID
	}
	return false
}
