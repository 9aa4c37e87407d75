// Package livequeue follows the patient queue from the waiting room: it
// keeps a fresh copy of the queue and tells a ticket holder when they are
// called.
package livequeue

import (
	"context"
	"slices"
	"sync"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/erqueue/internal/notify"
	"github.com/linnemanlabs/erqueue/internal/queue"
)

// Lister reads the queue.
type Lister interface {
	ListQueue(ctx context.Context) ([]queue.Entry, error)
}

// Hooks are optional callbacks. They run on the goroutine that handled the
// event, outside the follower's lock.
type Hooks struct {
	// OnTurn fires when the held ticket is called.
	OnTurn func(number int)
	// OnChange fires after every successful refresh.
	OnChange func(entries []queue.Entry)
	// OnError fires when a refresh fails.
	OnError func(err error)
}

// Follower mirrors the queue.
type Follower struct {
	lister Lister
	hooks  Hooks
	logger log.Logger

	mu      sync.Mutex
	ticket  int
	entries []queue.Entry
	err     error
}

// New creates a follower. A ticket of 0 means none is held.
func New(lister Lister, ticket int, hooks Hooks, logger log.Logger) *Follower {
	if logger == nil {
		logger = log.Nop()
	}
	return &Follower{lister: lister, ticket: ticket, hooks: hooks, logger: logger}
}

// Ticket returns the held ticket.
func (f *Follower) Ticket() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ticket, f.ticket != 0
}

// SetTicket replaces the held ticket. 0 clears it.
func (f *Follower) SetTicket(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticket = n
}

// Entries returns the last refreshed queue and the error of the last
// refresh, if it failed. Entries are kept from the last good refresh.
func (f *Follower) Entries() ([]queue.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.entries), f.err
}

// Position returns the 1-based place of the held ticket in the last
// refreshed queue, or 0 when there is no ticket or it is not queued.
func (f *Follower) Position() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ticket == 0 {
		return 0
	}
	i := slices.IndexFunc(f.entries, func(e queue.Entry) bool { return e.Number == f.ticket })
	return i + 1
}

// Refresh re-reads the queue.
func (f *Follower) Refresh(ctx context.Context) error {
	entries, err := f.lister.ListQueue(ctx)

	f.mu.Lock()
	f.err = err
	if err == nil {
		queue.Sort(entries)
		f.entries = entries
	}
	f.mu.Unlock()

	if err != nil {
		f.logger.Warn(ctx, "queue refresh failed", "error", err.Error())
		if f.hooks.OnError != nil {
			f.hooks.OnError(err)
		}
		return err
	}
	if f.hooks.OnChange != nil {
		f.hooks.OnChange(slices.Clone(entries))
	}
	return nil
}

// Handle reacts to one queue event by refreshing the queue. The held ticket
// being called first clears the ticket and fires OnTurn; if OnTurn cancels
// ctx the refresh is skipped.
func (f *Follower) Handle(ctx context.Context, ev notify.Event) {
	f.mu.Lock()
	mine := ev.Type == notify.PatientOut && f.ticket != 0 && ev.Number == f.ticket
	if mine {
		f.ticket = 0
	}
	f.mu.Unlock()

	if mine {
		f.logger.Info(ctx, "ticket called", "number", ev.Number)
		if f.hooks.OnTurn != nil {
			f.hooks.OnTurn(ev.Number)
		}
		if ctx.Err() != nil {
			return
		}
	}
	_ = f.Refresh(ctx)
}

// Run refreshes once and then handles events until the channel closes or
// ctx is done. A failed first refresh is reported through OnError and does
// not stop the follower.
func (f *Follower) Run(ctx context.Context, events <-chan notify.Event) error {
	_ = f.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			f.Handle(ctx, ev)
		}
	}
}
