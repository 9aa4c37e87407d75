package triage

import (
	"fmt"
	"strings"
)

// Mermaid renders the graph as a Mermaid flowchart. Questions are drawn as
// rectangles, label steps as stadiums, and options become edge labels.
// Unconnected options are drawn as dangling parallelograms so gaps in the
// tree stay visible.
func (g *Graph) Mermaid() string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, id := range g.stepIDs {
		s := g.steps[id]
		text := s.Value
		opener, closer := "[", "]"
		switch {
		case s.StepType == StepTypeLabel:
			opener, closer = "([", "])"
			if s.AssignedLabel != "" {
				text = fmt.Sprintf("%s <br/> %s", text, s.AssignedLabel)
			}
		case s.IsRoot:
			opener, closer = "((", "))"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", sanitizeMermaidID(s.ID), opener, escapeMermaid(text), closer)
	}

	for _, parent := range g.stepIDs {
		for _, o := range g.Siblings(parent) {
			from := sanitizeMermaidID(parent)
			e, ok := g.outgoing(o.ID)
			if !ok {
				dangling := sanitizeMermaidID(o.ID)
				fmt.Fprintf(&sb, "    %s[/\"%s\"/]\n", dangling, escapeMermaid(o.Value))
				fmt.Fprintf(&sb, "    %s -.-> %s\n", from, dangling)
				continue
			}
			fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", from, escapeMermaid(o.Value), sanitizeMermaidID(e.Target))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_")
	return "n_" + r.Replace(id)
}

func escapeMermaid(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
