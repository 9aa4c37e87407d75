// Package memstore provides an in-memory implementation of triage.Store.
package memstore

import (
	"context"
	"slices"
	"sync"

	"github.com/linnemanlabs/erqueue/internal/triage"
)

// Store holds the triage tree in memory. Suitable for dev/testing.
type Store struct {
	mu  sync.RWMutex
	dto triage.DTO
}

// New initializes a new in-memory Store holding an empty tree.
func New() *Store {
	return &Store{}
}

// Load returns a copy of the saved tree.
func (s *Store) Load(_ context.Context) (triage.DTO, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.dto), nil
}

// Save replaces the saved tree with a copy of dto.
func (s *Store) Save(_ context.Context, dto triage.DTO) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dto = clone(dto)
	return nil
}

func clone(dto triage.DTO) triage.DTO {
	out := triage.DTO{
		Nodes:       slices.Clone(dto.Nodes),
		OptionNodes: slices.Clone(dto.OptionNodes),
		Edges:       slices.Clone(dto.Edges),
	}
	if out.Nodes == nil {
		out.Nodes = []triage.StepNode{}
	}
	if out.OptionNodes == nil {
		out.OptionNodes = []triage.OptionNode{}
	}
	if out.Edges == nil {
		out.Edges = []triage.EdgeDTO{}
	}
	return out
}
