package queue

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/erqueue/internal/notify"
	"github.com/linnemanlabs/erqueue/internal/triage"
)

// ServiceHooks are optional callbacks fired by the Service for metrics.
type ServiceHooks struct {
	OnAppend      func(label triage.Label)
	OnRemove      func()
	OnLength      func(n int)
	OnNotifyError func(eventType notify.EventType)
}

// Service is the business boundary for the patient queue.
type Service struct {
	store    Store
	notifier notify.Notifier
	hooks    ServiceHooks
	logger   log.Logger
}

// NewService creates a new queue service. A nil notifier discards events.
func NewService(store Store, notifier notify.Notifier, hooks ServiceHooks, logger log.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		store:    store,
		notifier: notifier,
		hooks:    hooks,
		logger:   logger,
	}
}

// List returns the queue in priority order.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	entries, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	Sort(entries)
	if s.hooks.OnLength != nil {
		s.hooks.OnLength(len(entries))
	}
	return entries, nil
}

// Append queues a patient and publishes patient-in.
func (s *Service) Append(ctx context.Context, label triage.Label) (Entry, error) {
	if !label.Valid() {
		return Entry{}, fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}

	e, err := s.store.Append(ctx, label)
	if err != nil {
		return Entry{}, fmt.Errorf("append patient: %w", err)
	}
	if s.hooks.OnAppend != nil {
		s.hooks.OnAppend(label)
	}

	s.logger.Info(ctx, "patient queued", "number", e.Number, "label", string(e.AssignedLabel))
	s.publish(ctx, notify.Event{Type: notify.PatientIn, Number: e.Number, Label: e.AssignedLabel})
	return e, nil
}

// Remove dequeues a patient and publishes patient-out.
func (s *Service) Remove(ctx context.Context, number int) error {
	ok, err := s.store.Remove(ctx, number)
	if err != nil {
		return fmt.Errorf("remove patient %d: %w", number, err)
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, number)
	}
	if s.hooks.OnRemove != nil {
		s.hooks.OnRemove()
	}

	s.logger.Info(ctx, "patient called", "number", number)
	s.publish(ctx, notify.Event{Type: notify.PatientOut, Number: number})
	return nil
}

// publish never fails the mutation that triggered it.
func (s *Service) publish(ctx context.Context, ev notify.Event) {
	if err := s.notifier.Publish(ctx, ev); err != nil {
		s.logger.Error(ctx, err, "failed to publish queue event",
			"event", string(ev.Type),
			"number", ev.Number,
		)
		if s.hooks.OnNotifyError != nil {
			s.hooks.OnNotifyError(ev.Type)
		}
	}
}
