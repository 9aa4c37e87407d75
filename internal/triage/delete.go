package triage

import "fmt"

// DeleteOption removes an option together with everything reachable through
// its outgoing edge (the next step, that step's options, their steps, and so
// on) and every edge touching a removed node. The remaining siblings of the
// option are then re-ranked so their indices stay contiguous.
func (g *Graph) DeleteOption(optionID string) error {
	opt, ok := g.options[optionID]
	if !ok {
		return fmt.Errorf("%w: option %q", ErrInvalidReference, optionID)
	}
	parentID, deletedIndex := opt.ParentID, opt.Index

	g.removeNodes(g.closure([]string{optionID}))

	remaining := make([]Option, 0)
	for _, o := range g.siblings(parentID) {
		remaining = append(remaining, *o)
	}
	for _, patched := range ReindexSiblings(remaining, deletedIndex) {
		*g.options[patched.ID] = patched
	}
	return nil
}

// DeleteStep removes a step. Deleting the root resets the graph to an empty
// root. Deleting any other step removes it, its options and everything below
// them; the option that pointed at it becomes connectable again.
func (g *Graph) DeleteStep(stepID string) error {
	step, ok := g.steps[stepID]
	if !ok {
		return fmt.Errorf("%w: step %q", ErrInvalidReference, stepID)
	}
	if step.IsRoot {
		g.ResetGraph(stepID)
		return nil
	}

	seeds := make([]string, 0)
	for _, o := range g.siblings(stepID) {
		seeds = append(seeds, o.ID)
	}
	removed := g.closure(seeds)
	removed[stepID] = struct{}{}
	g.removeNodes(removed)
	return nil
}

// ReindexSiblings returns the siblings left after deleting the option ranked
// deletedIndex, with every option ranked above it moved up one slot (index
// decremented, y reduced by OptionSlotHeight). Inputs are not modified and
// the result does not depend on the order of siblings.
func ReindexSiblings(siblings []Option, deletedIndex int) []Option {
	out := make([]Option, len(siblings))
	for i, o := range siblings {
		if o.Index > deletedIndex {
			o.Index--
			o.Position.Y -= OptionSlotHeight
		}
		out[i] = o
	}
	return out
}

// ResetGraph removes every node and edge except a single root. rootOverride
// picks the step to keep when it names one; otherwise the existing root is
// kept. The kept step is cleared and becomes the root. When there is nothing
// to keep a fresh root is created. The id of the root is returned.
func (g *Graph) ResetGraph(rootOverride string) string {
	var keep *Step
	if s, ok := g.steps[rootOverride]; ok && rootOverride != "" {
		keep = s
	} else {
		for _, id := range g.stepIDs {
			if s := g.steps[id]; s.IsRoot {
				keep = s
				break
			}
		}
	}
	if keep == nil {
		return g.CreateRoot()
	}

	root := *keep
	root.Value = ""
	root.IsRoot = true
	root.StepType = StepTypeStep
	root.AssignedLabel = ""

	g.clear()
	g.putStep(&root)
	return root.ID
}

// closure collects the given options and everything reachable from them
// through outgoing edges and step ownership. Cycles in loaded data are
// tolerated.
func (g *Graph) closure(optionIDs []string) map[string]struct{} {
	removed := make(map[string]struct{})
	queue := append([]string(nil), optionIDs...)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, seen := removed[id]; seen {
			continue
		}
		removed[id] = struct{}{}

		e, ok := g.outgoing(id)
		if !ok {
			continue
		}
		if _, ok := g.steps[e.Target]; !ok {
			continue
		}
		if _, seen := removed[e.Target]; seen {
			continue
		}
		removed[e.Target] = struct{}{}
		for _, child := range g.siblings(e.Target) {
			queue = append(queue, child.ID)
		}
	}
	return removed
}

// removeNodes deletes the given steps and options and any edge touching them.
func (g *Graph) removeNodes(ids map[string]struct{}) {
	edges := make(map[string]struct{})
	for _, eid := range g.edgeIDs {
		e := g.edges[eid]
		_, src := ids[e.Source]
		_, dst := ids[e.Target]
		if src || dst {
			edges[eid] = struct{}{}
		}
	}
	g.removeEdges(edges)

	g.stepIDs = filterIDs(g.stepIDs, ids)
	g.optionIDs = filterIDs(g.optionIDs, ids)
	for id := range ids {
		delete(g.steps, id)
		delete(g.options, id)
	}
}

func (g *Graph) removeEdges(ids map[string]struct{}) {
	if len(ids) == 0 {
		return
	}
	g.edgeIDs = filterIDs(g.edgeIDs, ids)
	for id := range ids {
		delete(g.edges, id)
	}
}

func filterIDs(order []string, drop map[string]struct{}) []string {
	out := order[:0:0]
	for _, id := range order {
		if _, ok := drop[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
