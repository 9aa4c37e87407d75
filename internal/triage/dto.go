package triage

import (
	"errors"
	"fmt"
)

// Node type discriminators used on the wire.
const (
	NodeTypeStep   = "triageStep"
	NodeTypeOption = "triageOption"
)

// DTO is the persisted shape of a triage graph: steps, options and edges as
// separate arrays. It is the body of a save request.
type DTO struct {
	Nodes       []StepNode   `json:"nodes" yaml:"nodes" validate:"dive"`
	OptionNodes []OptionNode `json:"optionNodes" yaml:"optionNodes" validate:"dive"`
	Edges       []EdgeDTO    `json:"edges" yaml:"edges" validate:"dive"`
}

// StepNode is the wire form of a Step.
type StepNode struct {
	ID       string   `json:"id" yaml:"id" validate:"required"`
	Type     string   `json:"type,omitempty" yaml:"type,omitempty"`
	Position Position `json:"position" yaml:"position"`
	Data     StepData `json:"data" yaml:"data"`
}

// StepData carries the domain fields of a StepNode.
type StepData struct {
	Value         string   `json:"value" yaml:"value" validate:"max=100"`
	IsRoot        bool     `json:"isRoot" yaml:"isRoot"`
	StepType      StepType `json:"stepType" yaml:"stepType" validate:"oneof=step label"`
	AssignedLabel Label    `json:"assignedLabel,omitempty" yaml:"assignedLabel,omitempty" validate:"omitempty,oneof=Emergency Delayed Minor"`
}

// OptionNode is the wire form of an Option.
type OptionNode struct {
	ID       string     `json:"id" yaml:"id" validate:"required"`
	Type     string     `json:"type,omitempty" yaml:"type,omitempty"`
	Position Position   `json:"position" yaml:"position"`
	ParentID string     `json:"parentId" yaml:"parentId" validate:"required"`
	Data     OptionData `json:"data" yaml:"data"`
}

// OptionData carries the domain fields of an OptionNode.
type OptionData struct {
	Value string `json:"value" yaml:"value" validate:"max=100"`
	Index int    `json:"index" yaml:"index" validate:"gte=0"`
}

// EdgeDTO is the wire form of an Edge.
type EdgeDTO struct {
	ID     string `json:"id" yaml:"id" validate:"required"`
	Source string `json:"source" yaml:"source" validate:"required"`
	Target string `json:"target" yaml:"target" validate:"required"`
}

// Wire is the load shape served by GET /triage: steps and options mixed in
// one array, discriminated by Type.
type Wire struct {
	Nodes []WireNode `json:"nodes"`
	Edges []EdgeDTO  `json:"edges"`
}

// WireNode is either a step or an option node.
type WireNode struct {
	ID       string   `json:"id"`
	Type     string   `json:"type,omitempty"`
	Position Position `json:"position"`
	ParentID string   `json:"parentId,omitempty"`
	Data     WireData `json:"data"`
}

// WireData is the union of StepData and OptionData.
type WireData struct {
	Value         string   `json:"value"`
	IsRoot        *bool    `json:"isRoot,omitempty"`
	StepType      StepType `json:"stepType,omitempty"`
	AssignedLabel Label    `json:"assignedLabel,omitempty"`
	Index         *int     `json:"index,omitempty"`
}

// Serialize returns the DTO of the graph in insertion order.
func (g *Graph) Serialize() DTO {
	dto := DTO{
		Nodes:       make([]StepNode, 0, len(g.stepIDs)),
		OptionNodes: make([]OptionNode, 0, len(g.optionIDs)),
		Edges:       make([]EdgeDTO, 0, len(g.edgeIDs)),
	}
	for _, id := range g.stepIDs {
		s := g.steps[id]
		dto.Nodes = append(dto.Nodes, StepNode{
			ID:       s.ID,
			Type:     NodeTypeStep,
			Position: s.Position,
			Data: StepData{
				Value:         s.Value,
				IsRoot:        s.IsRoot,
				StepType:      s.StepType,
				AssignedLabel: s.AssignedLabel,
			},
		})
	}
	for _, id := range g.optionIDs {
		o := g.options[id]
		dto.OptionNodes = append(dto.OptionNodes, OptionNode{
			ID:       o.ID,
			Type:     NodeTypeOption,
			Position: o.Position,
			ParentID: o.ParentID,
			Data:     OptionData{Value: o.Value, Index: o.Index},
		})
	}
	for _, id := range g.edgeIDs {
		e := g.edges[id]
		dto.Edges = append(dto.Edges, EdgeDTO{ID: e.ID, Source: e.Source, Target: e.Target})
	}
	return dto
}

// Deserialize builds a graph from a DTO. Nil arrays are treated as empty.
// Structural rules are not enforced here, use Validate for that; only
// duplicate or empty ids are rejected.
func Deserialize(dto DTO, opts ...GraphOption) (*Graph, error) {
	g := NewGraph(opts...)

	var errs []error
	nodeIDs := make(map[string]struct{}, len(dto.Nodes)+len(dto.OptionNodes))
	claim := func(seen map[string]struct{}, kind, id string) bool {
		if id == "" {
			errs = append(errs, fmt.Errorf("%w: %s with empty id", ErrValidation, kind))
			return false
		}
		if _, dup := seen[id]; dup {
			errs = append(errs, fmt.Errorf("%w: duplicate %s id %q", ErrValidation, kind, id))
			return false
		}
		seen[id] = struct{}{}
		return true
	}

	for _, n := range dto.Nodes {
		if !claim(nodeIDs, "step", n.ID) {
			continue
		}
		g.putStep(&Step{
			ID:            n.ID,
			Value:         n.Data.Value,
			IsRoot:        n.Data.IsRoot,
			StepType:      n.Data.StepType,
			AssignedLabel: n.Data.AssignedLabel,
			Position:      n.Position,
		})
	}
	for _, n := range dto.OptionNodes {
		if !claim(nodeIDs, "option", n.ID) {
			continue
		}
		g.putOption(&Option{
			ID:       n.ID,
			ParentID: n.ParentID,
			Value:    n.Data.Value,
			Index:    n.Data.Index,
			Position: n.Position,
		})
	}

	edgeIDs := make(map[string]struct{}, len(dto.Edges))
	for _, e := range dto.Edges {
		if !claim(edgeIDs, "edge", e.ID) {
			continue
		}
		g.putEdge(&Edge{ID: e.ID, Source: e.Source, Target: e.Target})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return g, nil
}

// ToWire converts a DTO into the mixed-node load shape, steps first.
func ToWire(dto DTO) Wire {
	w := Wire{
		Nodes: make([]WireNode, 0, len(dto.Nodes)+len(dto.OptionNodes)),
		Edges: make([]EdgeDTO, 0, len(dto.Edges)),
	}
	for _, n := range dto.Nodes {
		isRoot := n.Data.IsRoot
		w.Nodes = append(w.Nodes, WireNode{
			ID:       n.ID,
			Type:     NodeTypeStep,
			Position: n.Position,
			Data: WireData{
				Value:         n.Data.Value,
				IsRoot:        &isRoot,
				StepType:      n.Data.StepType,
				AssignedLabel: n.Data.AssignedLabel,
			},
		})
	}
	for _, n := range dto.OptionNodes {
		index := n.Data.Index
		w.Nodes = append(w.Nodes, WireNode{
			ID:       n.ID,
			Type:     NodeTypeOption,
			Position: n.Position,
			ParentID: n.ParentID,
			Data:     WireData{Value: n.Data.Value, Index: &index},
		})
	}
	w.Edges = append(w.Edges, dto.Edges...)
	return w
}

// FromWire splits a mixed-node payload into a DTO. Nodes are discriminated by
// Type; an untyped node with a parent id is an option, any other untyped node
// a step.
func FromWire(w Wire) (DTO, error) {
	dto := DTO{
		Nodes:       make([]StepNode, 0),
		OptionNodes: make([]OptionNode, 0),
		Edges:       make([]EdgeDTO, 0, len(w.Edges)),
	}
	for _, n := range w.Nodes {
		kind := n.Type
		if kind == "" {
			kind = NodeTypeStep
			if n.ParentID != "" {
				kind = NodeTypeOption
			}
		}

		switch kind {
		case NodeTypeStep:
			var isRoot bool
			if n.Data.IsRoot != nil {
				isRoot = *n.Data.IsRoot
			}
			dto.Nodes = append(dto.Nodes, StepNode{
				ID:       n.ID,
				Type:     NodeTypeStep,
				Position: n.Position,
				Data: StepData{
					Value:         n.Data.Value,
					IsRoot:        isRoot,
					StepType:      n.Data.StepType,
					AssignedLabel: n.Data.AssignedLabel,
				},
			})
		case NodeTypeOption:
			var index int
			if n.Data.Index != nil {
				index = *n.Data.Index
			}
			dto.OptionNodes = append(dto.OptionNodes, OptionNode{
				ID:       n.ID,
				Type:     NodeTypeOption,
				Position: n.Position,
				ParentID: n.ParentID,
				Data:     OptionData{Value: n.Data.Value, Index: index},
			})
		default:
			return DTO{}, fmt.Errorf("%w: node %q has unknown type %q", ErrValidation, n.ID, n.Type)
		}
	}
	dto.Edges = append(dto.Edges, w.Edges...)
	return dto, nil
}
