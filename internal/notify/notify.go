// Package notify defines live-queue events and the Notifier that publishes
// them to followers of the queue.
package notify

import (
	"context"
	"errors"

	"github.com/linnemanlabs/erqueue/internal/triage"
)

// Channel is the pub/sub channel every queue event is published on.
const Channel = "live-queue"

// EventType names a queue change.
type EventType string

const (
	// PatientIn is published after a patient is appended to the queue.
	PatientIn EventType = "patient-in"

	// PatientOut is published after a patient is called out of the queue.
	PatientOut EventType = "patient-out"
)

// Event is a single queue change. Label is only set for PatientIn.
type Event struct {
	Type   EventType    `json:"type"`
	Number int          `json:"number"`
	Label  triage.Label `json:"assignedLabel,omitempty"`
}

// Notifier publishes queue events.
type Notifier interface {
	Publish(ctx context.Context, ev Event) error
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event) error

// Publish implements Notifier.
func (f NotifierFunc) Publish(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Nop discards every event.
type Nop struct{}

// Publish implements Notifier.
func (Nop) Publish(context.Context, Event) error { return nil }

// Multi publishes to every notifier in order and joins their errors. A
// failing notifier does not stop the others.
type Multi []Notifier

// Publish implements Notifier.
func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
