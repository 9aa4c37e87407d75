// Package sse is an in-process Notifier that fans queue events out to
// Server-Sent Events subscribers.
package sse

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/erqueue/internal/notify"
)

const (
	defaultBuffer    = 16
	defaultKeepAlive = 25 * time.Second
)

// Broker keeps the set of live subscribers and implements notify.Notifier.
// Slow subscribers whose buffer is full miss events rather than block
// publishers.
type Broker struct {
	mu     sync.RWMutex
	subs   map[chan notify.Event]struct{}
	closed bool

	buffer    int
	keepAlive time.Duration
	dropped   atomic.Int64
	logger    log.Logger
}

// Option configures a Broker.
type Option func(*Broker)

// WithBuffer sets the per-subscriber channel buffer.
func WithBuffer(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithKeepAlive sets the interval of comment lines sent on idle streams.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.keepAlive = d
		}
	}
}

// NewBroker returns an empty broker.
func NewBroker(logger log.Logger, opts ...Option) *Broker {
	b := &Broker{
		subs:      make(map[chan notify.Event]struct{}),
		buffer:    defaultBuffer,
		keepAlive: defaultKeepAlive,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called to release it; the channel is closed by cancel or by Close.
func (b *Broker) Subscribe() (<-chan notify.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan notify.Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}
}

// Publish implements notify.Notifier. It never blocks.
func (b *Broker) Publish(ctx context.Context, ev notify.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
			b.logger.Warn(ctx, "sse subscriber buffer full, dropping event",
				"event", string(ev.Type),
				"number", ev.Number,
			)
		}
	}
	return nil
}

// Subscribers returns the number of live subscribers.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many events were dropped for slow subscribers.
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}

// Close disconnects every subscriber. Later subscriptions are closed
// immediately.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

// ServeHTTP streams events to the client until it disconnects or the broker
// is closed. Each event is written as "event: <type>" and "data: <number>".
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	ch, cancel := b.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	fmt.Fprint(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(b.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := WriteEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// WriteEvent writes one event in SSE framing.
func WriteEvent(w io.Writer, ev notify.Event) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %d\n\n", ev.Type, ev.Number)
	return err
}
