package triage

import (
	"errors"
	"testing"
)

func TestDeleteOption_CascadesAndReindexes(t *testing.T) {
	t.Parallel()

	g := newTestGraph()
	root := g.CreateRoot()
	a, _ := g.AddOption(root)
	b, _ := g.AddOption(root)
	c, _ := g.AddOption(root)
	s1, _ := g.AddNestedStep(b)
	d, _ := g.AddOption(s1)
	s2, _ := g.AddNestedStep(d)
	e, _ := g.AddOption(s2)

	if err := g.DeleteOption(b); err != nil {
		t.Fatalf("DeleteOption: %v", err)
	}

	for _, id := range []string{b, s1, d, s2, e} {
		if _, ok := g.Step(id); ok {
			t.Errorf("step %s should be removed", id)
		}
		if _, ok := g.Option(id); ok {
			t.Errorf("option %s should be removed", id)
		}
	}
	assertEqual(t, "Len", 3, g.Len())
	assertEqual(t, "Edges", 0, len(g.Edges()))

	oa, _ := g.Option(a)
	oc, _ := g.Option(c)
	assertEqual(t, "a index", 0, oa.Index)
	assertEqual(t, "c index", 1, oc.Index)
	assertEqual(t, "c y", float64(90), oc.Position.Y)

	if err := g.Validate(); err != nil {
		t.Errorf("Validate after delete: %v", err)
	}
}

func TestDeleteOption_KeepsUnrelatedBranches(t *testing.T) {
	t.Parallel()

	g := newTestGraph()
	root := g.CreateRoot()
	a, _ := g.AddOption(root)
	b, _ := g.AddOption(root)
	sa, _ := g.AddNestedStep(a)
	sb, _ := g.AddNestedStep(b)
	_, _ = g.AddOption(sb)

	if err := g.DeleteOption(a); err != nil {
		t.Fatalf("DeleteOption: %v", err)
	}
	if _, ok := g.Step(sa); ok {
		t.Error("branch of deleted option should be removed")
	}
	if _, ok := g.Step(sb); !ok {
		t.Error("sibling branch should survive")
	}
	if in, ok := g.Incoming(sb); !ok || in.Source != b {
		t.Errorf("Incoming(sb) = %+v, %v", in, ok)
	}
	ob, _ := g.Option(b)
	assertEqual(t, "b index", 0, ob.Index)
	assertEqual(t, "Edges", 1, len(g.Edges()))
}

func TestDeleteOption_LastOption(t *testing.T) {
	t.Parallel()

	g := newTestGraph()
	root := g.CreateRoot()
	a, _ := g.AddOption(root)
	b, _ := g.AddOption(root)

	if err := g.DeleteOption(b); err != nil {
		t.Fatalf("DeleteOption: %v", err)
	}
	oa, _ := g.Option(a)
	assertEqual(t, "a index", 0, oa.Index)
	assertEqual(t, "a y", float64(0), oa.Position.Y)
}

func TestDeleteOption_Unknown(t *testing.T) {
	t.Parallel()

	g := newTestGraph()
	root := g.CreateRoot()

	if err := g.DeleteOption(root); !errors.Is(err, ErrInvalidReference) {
		t.Errorf("err = %v, want ErrInvalidReference", err)
	}
	assertEqual(t, "Len", 1, g.Len())
}

func TestDeleteOption_ToleratesCycleInLoadedData(t *testing.T) {
	t.Parallel()

	g, err := Deserialize(DTO{
		Nodes: []StepNode{
			{ID: "r", Data: StepData{IsRoot: true, StepType: StepTypeStep}},
			{ID: "s1", Data: StepData{StepType: StepTypeStep}},
		},
		OptionNodes: []OptionNode{
			{ID: "o1", ParentID: "r", Data: OptionData{Index: 0}},
			{ID: "o2", ParentID: "s1", Data: OptionData{Index: 0}},
		},
		Edges: []EdgeDTO{
			{ID: "e1", Source: "o1", Target: "s1"},
			{ID: "e2", Source: "o2", Target: "s1"},
		},
	})
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}

	if err := g.DeleteOption("o1"); err != nil {
		t.Fatalf("DeleteOption: %v", err)
	}
	assertEqual(t, "Len", 1, g.Len())
	assertEqual(t, "Edges", 0, len(g.Edges()))
}

func TestReindexSiblings(t *testing.T) {
	t.Parallel()

	opt := func(id string, index int) Option {
		return Option{ID: id, ParentID: "p", Index: index, Position: optionPosition(index)}
	}

	tests := []struct {
		name    string
		in      []Option
		deleted int
		want    map[string]int
	}{
		{"first deleted", []Option{opt("b", 1), opt("c", 2)}, 0, map[string]int{"b": 0, "c": 1}},
		{"middle deleted", []Option{opt("a", 0), opt("c", 2), opt("d", 3)}, 1, map[string]int{"a": 0, "c": 1, "d": 2}},
		{"last deleted", []Option{opt("a", 0), opt("b", 1)}, 2, map[string]int{"a": 0, "b": 1}},
		{"unordered input", []Option{opt("d", 3), opt("a", 0), opt("c", 2)}, 1, map[string]int{"a": 0, "c": 1, "d": 2}},
		{"no siblings", nil, 0, map[string]int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ReindexSiblings(tt.in, tt.deleted)
			assertEqual(t, "len", len(tt.want), len(got))
			for _, o := range got {
				assertEqual(t, o.ID+" index", tt.want[o.ID], o.Index)
				assertEqual(t, o.ID+" y", float64(tt.want[o.ID]*OptionSlotHeight), o.Position.Y)
				assertEqual(t, o.ID+" x", float64(OptionOffsetX), o.Position.X)
			}
		})
	}
}

func TestReindexSiblings_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := []Option{{ID: "b", Index: 1, Position: Position{Y: 90}}}
	_ = ReindexSiblings(in, 0)
	assertEqual(t, "input index", 1, in[0].Index)
	assertEqual(t, "input y", float64(90), in[0].Position.Y)
}

func TestDeleteStep(t *testing.T) {
	t.Parallel()

	g := newTestGraph()
	root := g.CreateRoot()
	a, _ := g.AddOption(root)
	s1, _ := g.AddNestedStep(a)
	o, _ := g.AddOption(s1)
	s2, _ := g.AddNestedStep(o)

	if err := g.DeleteStep(s1); err != nil {
		t.Fatalf("DeleteStep: %v", err)
	}
	for _, id := range []string{s1, o, s2} {
		if _, ok := g.Step(id); ok {
			t.Errorf("%s should be removed", id)
		}
		if _, ok := g.Option(id); ok {
			t.Errorf("%s should be removed", id)
		}
	}
	if !g.Connectable(a) {
		t.Error("option that pointed at the deleted step should be connectable")
	}
	assertEqual(t, "Len", 2, g.Len())

	if err := g.DeleteStep("nope"); !errors.Is(err, ErrInvalidReference) {
		t.Errorf("err = %v, want ErrInvalidReference", err)
	}
}

func TestDeleteStep_RootResets(t *testing.T) {
	t.Parallel()

	g := newTestGraph()
	root := g.CreateRoot()
	_ = g.UpdateStepValue(root, "question")
	a, _ := g.AddOption(root)
	_, _ = g.AddNestedStep(a)

	if err := g.DeleteStep(root); err != nil {
		t.Fatalf("DeleteStep: %v", err)
	}
	assertEqual(t, "Len", 1, g.Len())
	r, ok := g.Root()
	if !ok {
		t.Fatal("expected a root")
	}
	assertEqual(t, "root id", root, r.ID)
	assertEqual(t, "root value", "", r.Value)
}

func TestResetGraph(t *testing.T) {
	t.Parallel()

	build := func() (*Graph, string, string) {
		g := newTestGraph()
		root := g.CreateRoot()
		_ = g.UpdateStepValue(root, "root question")
		a, _ := g.AddOption(root)
		s1, _ := g.AddNestedStep(a)
		_ = g.UpdateStepType(s1, StepTypeLabel)
		_ = g.AssignLabel(s1, LabelMinor)
		_ = g.UpdateStepValue(s1, "minor")
		return g, root, s1
	}

	t.Run("keeps existing root", func(t *testing.T) {
		t.Parallel()
		g, root, _ := build()

		got := g.ResetGraph("")
		assertEqual(t, "root", root, got)
		assertEqual(t, "Len", 1, g.Len())
		assertEqual(t, "Edges", 0, len(g.Edges()))
		r, _ := g.Root()
		assertEqual(t, "value", "", r.Value)
		assertEqual(t, "position", Position{X: 100, Y: 100}, r.Position)
	})

	t.Run("override promotes step", func(t *testing.T) {
		t.Parallel()
		g, _, s1 := build()

		got := g.ResetGraph(s1)
		assertEqual(t, "root", s1, got)
		assertEqual(t, "Len", 1, g.Len())
		r, ok := g.Root()
		if !ok {
			t.Fatal("expected a root")
		}
		assertEqual(t, "id", s1, r.ID)
		assertEqual(t, "IsRoot", true, r.IsRoot)
		assertEqual(t, "StepType", StepTypeStep, r.StepType)
		assertEqual(t, "AssignedLabel", Label(""), r.AssignedLabel)
		assertEqual(t, "value", "", r.Value)
	})

	t.Run("unknown override falls back to root", func(t *testing.T) {
		t.Parallel()
		g, root, _ := build()

		assertEqual(t, "root", root, g.ResetGraph("nope"))
	})

	t.Run("empty graph creates root", func(t *testing.T) {
		t.Parallel()
		g := newTestGraph()

		id := g.ResetGraph("")
		r, ok := g.Root()
		if !ok {
			t.Fatal("expected a root")
		}
		assertEqual(t, "id", id, r.ID)
		assertEqual(t, "Len", 1, g.Len())
	})
}
