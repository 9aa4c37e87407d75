// Package queue provides the live patient queue: entries ordered by triage
// priority, the Store interface (persistence) and the Service that publishes
// a notify.Event for every change.
package queue

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"github.com/linnemanlabs/erqueue/internal/triage"
)

var (
	// ErrInvalidLabel is returned when a patient is appended without a known
	// triage classification.
	ErrInvalidLabel = errors.New("queue: invalid label")

	// ErrNotFound is returned when removing a number that is not queued.
	ErrNotFound = errors.New("queue: patient not found")
)

// Entry is one waiting patient. Numbers are assigned by the store and are
// never reused.
type Entry struct {
	Number        int          `json:"number" yaml:"number"`
	AssignedLabel triage.Label `json:"assignedLabel" yaml:"assignedLabel"`
}

// Store is the persistence interface for the queue.
type Store interface {
	// List returns every queued entry in any order.
	List(ctx context.Context) ([]Entry, error)
	// Append queues a patient under the next number.
	Append(ctx context.Context, label triage.Label) (Entry, error)
	// Remove dequeues a patient, reporting whether the number was queued.
	Remove(ctx context.Context, number int) (bool, error)
}

// Sort orders entries by label priority (Emergency first) and then by
// number, in place.
func Sort(entries []Entry) {
	slices.SortFunc(entries, Compare)
}

// Compare is the queue ordering: more urgent labels first, then arrival.
func Compare(a, b Entry) int {
	if c := cmp.Compare(rank(a.AssignedLabel), rank(b.AssignedLabel)); c != 0 {
		return c
	}
	return cmp.Compare(a.Number, b.Number)
}

// rank sorts unknown labels after every known one.
func rank(l triage.Label) int {
	if p := l.Priority(); p > 0 {
		return p
	}
	return len(triage.Labels) + 1
}
