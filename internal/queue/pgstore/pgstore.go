// Package pgstore provides a PostgreSQL implementation of queue.Store.
package pgstore

import (
	"context"
	_ "embed"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/erqueue/internal/queue"
	"github.com/linnemanlabs/erqueue/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/erqueue/internal/queue/pgstore")

//go:embed schema.sql
var schema string

// Store persists the queue in PostgreSQL. Numbers come from a BIGSERIAL
// sequence so they survive restarts and are never handed out twice.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The pool is
// owned by the caller.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func startSpan(ctx context.Context, name, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	}, attrs...)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// List returns every queued entry ordered by number.
func (s *Store) List(ctx context.Context) ([]queue.Entry, error) {
	ctx, span := startSpan(ctx, "pgstore.List", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT number, assigned_label FROM queue_entries ORDER BY number`)
	if err != nil {
		fail(span, err)
		return nil, fmt.Errorf("query queue: %w", err)
	}
	defer rows.Close()

	out := make([]queue.Entry, 0)
	for rows.Next() {
		var (
			e     queue.Entry
			label string
		)
		if err := rows.Scan(&e.Number, &label); err != nil {
			fail(span, err)
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.AssignedLabel = triage.Label(label)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		fail(span, err)
		return nil, fmt.Errorf("iterate queue: %w", err)
	}
	span.SetAttributes(attribute.Int("queue.length", len(out)))
	return out, nil
}

// Append inserts a patient and returns the number the sequence assigned.
func (s *Store) Append(ctx context.Context, label triage.Label) (queue.Entry, error) {
	ctx, span := startSpan(ctx, "pgstore.Append", "INSERT",
		attribute.String("queue.label", string(label)))
	defer span.End()

	e := queue.Entry{AssignedLabel: label}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO queue_entries (assigned_label) VALUES ($1) RETURNING number`,
		string(label),
	).Scan(&e.Number)
	if err != nil {
		fail(span, err)
		return queue.Entry{}, fmt.Errorf("insert entry: %w", err)
	}
	span.SetAttributes(attribute.Int("queue.number", e.Number))
	return e, nil
}

// Remove deletes number, reporting whether a row matched.
func (s *Store) Remove(ctx context.Context, number int) (bool, error) {
	ctx, span := startSpan(ctx, "pgstore.Remove", "DELETE",
		attribute.Int("queue.number", number))
	defer span.End()

	tag, err := s.pool.Exec(ctx, `DELETE FROM queue_entries WHERE number = $1`, number)
	if err != nil {
		fail(span, err)
		return false, fmt.Errorf("delete entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
