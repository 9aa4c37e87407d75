// Package memstore provides an in-memory implementation of queue.Store.
package memstore

import (
	"context"
	"sync"

	"github.com/linnemanlabs/erqueue/internal/queue"
	"github.com/linnemanlabs/erqueue/internal/triage"
)

// Store holds queued patients in memory. Suitable for dev/testing.
type Store struct {
	mu      sync.RWMutex
	last    int
	entries map[int]triage.Label
}

// New initializes a new empty in-memory Store.
func New() *Store {
	return &Store{entries: make(map[int]triage.Label)}
}

// List returns a copy of every queued entry.
func (s *Store) List(_ context.Context) ([]queue.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]queue.Entry, 0, len(s.entries))
	for n, l := range s.entries {
		out = append(out, queue.Entry{Number: n, AssignedLabel: l})
	}
	return out, nil
}

// Append queues a patient under the next number.
func (s *Store) Append(_ context.Context, label triage.Label) (queue.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.last++
	s.entries[s.last] = label
	return queue.Entry{Number: s.last, AssignedLabel: label}, nil
}

// Remove dequeues number.
func (s *Store) Remove(_ context.Context, number int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[number]; !ok {
		return false, nil
	}
	delete(s.entries, number)
	return true, nil
}
