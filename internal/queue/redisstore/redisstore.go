// Package redisstore provides a Redis implementation of queue.Store. Numbers
// come from an INCR counter and entries live in a single hash keyed by number.
package redisstore

import (
	"context"
	"fmt"
	"strconv"

	backend "github.com/redis/go-redis/v9"

	"github.com/linnemanlabs/erqueue/internal/queue"
	"github.com/linnemanlabs/erqueue/internal/triage"
)

const defaultPrefix = "erqueue:queue:"

// Store implements queue.Store using Redis.
type Store struct {
	client *backend.Client
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Redis store connected to address.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) seqKey() string {
	return s.prefix + "seq"
}

func (s *Store) entriesKey() string {
	return s.prefix + "entries"
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// List returns every queued entry.
func (s *Store) List(ctx context.Context) ([]queue.Entry, error) {
	raw, err := s.client.HGetAll(ctx, s.entriesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}

	out := make([]queue.Entry, 0, len(raw))
	for field, label := range raw {
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("corrupt queue entry %q: %w", field, err)
		}
		out = append(out, queue.Entry{Number: n, AssignedLabel: triage.Label(label)})
	}
	return out, nil
}

// Append takes the next number from the counter and stores the entry.
func (s *Store) Append(ctx context.Context, label triage.Label) (queue.Entry, error) {
	n, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return queue.Entry{}, fmt.Errorf("redis incr: %w", err)
	}
	if err := s.client.HSet(ctx, s.entriesKey(), strconv.FormatInt(n, 10), string(label)).Err(); err != nil {
		return queue.Entry{}, fmt.Errorf("redis hset: %w", err)
	}
	return queue.Entry{Number: int(n), AssignedLabel: label}, nil
}

// Remove deletes number from the hash.
func (s *Store) Remove(ctx context.Context, number int) (bool, error) {
	removed, err := s.client.HDel(ctx, s.entriesKey(), strconv.Itoa(number)).Result()
	if err != nil {
		return false, fmt.Errorf("redis hdel: %w", err)
	}
	return removed > 0, nil
}
