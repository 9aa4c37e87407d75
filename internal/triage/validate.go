package triage

import (
	"errors"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Validate checks the structural rules of a well-formed triage tree and
// returns every violation joined into one error wrapping ErrValidation.
// Unreachable steps are allowed since they occur while editing. A label
// step must carry a label.
func (g *Graph) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...)))
	}

	var roots []string
	for _, id := range g.stepIDs {
		s := g.steps[id]
		if s.IsRoot {
			roots = append(roots, id)
		}
		if valueTooLong(s.Value) {
			fail("step %q value exceeds %d characters", id, MaxValueLen)
		}
		if !s.StepType.Valid() {
			fail("step %q has unknown type %q", id, s.StepType)
		}
		switch {
		case s.AssignedLabel != "" && !s.AssignedLabel.Valid():
			fail("step %q has unknown label %q", id, s.AssignedLabel)
		case s.StepType == StepTypeLabel && s.AssignedLabel == "":
			fail("label step %q has no label assigned", id)
		}
	}
	switch {
	case len(g.stepIDs) > 0 && len(roots) == 0:
		fail("no root step")
	case len(roots) > 1:
		fail("%d root steps %v", len(roots), roots)
	}

	indices := make(map[string][]int)
	for _, id := range g.optionIDs {
		o := g.options[id]
		if _, ok := g.steps[o.ParentID]; !ok {
			fail("option %q parent %q is not a step", id, o.ParentID)
		}
		if valueTooLong(o.Value) {
			fail("option %q value exceeds %d characters", id, MaxValueLen)
		}
		indices[o.ParentID] = append(indices[o.ParentID], o.Index)
	}
	for _, parent := range g.stepIDs {
		got := indices[parent]
		slices.Sort(got)
		for want, idx := range got {
			if idx != want {
				fail("options of step %q have non-contiguous indices %v", parent, got)
				break
			}
		}
	}

	outgoing := make(map[string]int)
	incoming := make(map[string]int)
	for _, id := range g.edgeIDs {
		e := g.edges[id]
		if _, ok := g.options[e.Source]; !ok {
			fail("edge %q source %q is not an option", id, e.Source)
		}
		if _, ok := g.steps[e.Target]; !ok {
			fail("edge %q target %q is not a step", id, e.Target)
		}
		outgoing[e.Source]++
		incoming[e.Target]++
	}
	for _, id := range g.optionIDs {
		if n := outgoing[id]; n > 1 {
			fail("option %q has %d outgoing edges", id, n)
		}
	}
	for _, id := range g.stepIDs {
		n := incoming[id]
		switch {
		case g.steps[id].IsRoot && n > 0:
			fail("root step %q has an incoming edge", id)
		case n > 1:
			fail("step %q has %d incoming edges", id, n)
		}
	}

	if g.hasCycle() {
		fail("graph contains a cycle")
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// hasCycle builds the step -> option -> step graph and reports whether it
// cannot be topologically ordered. Edges with dangling ends are skipped;
// Validate reports them separately.
func (g *Graph) hasCycle() bool {
	dg := simple.NewDirectedGraph()
	ids := make(map[string]int64, g.Len())
	node := func(id string) simple.Node {
		n, ok := ids[id]
		if !ok {
			n = int64(len(ids))
			ids[id] = n
			dg.AddNode(simple.Node(n))
		}
		return simple.Node(n)
	}

	for _, id := range g.optionIDs {
		o := g.options[id]
		if _, ok := g.steps[o.ParentID]; !ok {
			continue
		}
		dg.SetEdge(dg.NewEdge(node(o.ParentID), node(o.ID)))
	}
	for _, id := range g.edgeIDs {
		e := g.edges[id]
		_, srcOK := g.options[e.Source]
		_, dstOK := g.steps[e.Target]
		if !srcOK || !dstOK {
			continue
		}
		dg.SetEdge(dg.NewEdge(node(e.Source), node(e.Target)))
	}

	_, err := topo.Sort(dg)
	return err != nil
}
