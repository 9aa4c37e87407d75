// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/erqueue/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/erqueue/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists the triage tree in PostgreSQL.
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

// Load reads the whole tree in insertion order.
func (s *Store) Load(ctx context.Context) (triage.DTO, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Load", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	dto, err := s.load(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return triage.DTO{}, err
	}
	span.SetAttributes(
		attribute.Int("triage.steps", len(dto.Nodes)),
		attribute.Int("triage.options", len(dto.OptionNodes)),
		attribute.Int("triage.edges", len(dto.Edges)),
	)
	return dto, nil
}

// Save replaces the whole tree in a single transaction.
func (s *Store) Save(ctx context.Context, dto triage.DTO) error {
	ctx, span := tracer.Start(ctx, "pgstore.Save", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "REPLACE"),
		attribute.Int("triage.steps", len(dto.Nodes)),
		attribute.Int("triage.options", len(dto.OptionNodes)),
		attribute.Int("triage.edges", len(dto.Edges)),
	))
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	if err := replace(ctx, tx, dto); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func replace(ctx context.Context, tx pgx.Tx, dto triage.DTO) error {
	b := &pgx.Batch{}
	b.Queue(`DELETE FROM triage_edges`)
	b.Queue(`DELETE FROM triage_options`)
	b.Queue(`DELETE FROM triage_steps`)

	for i, n := range dto.Nodes {
		b.Queue(`INSERT INTO triage_steps (id, seq, value, is_root, step_type, assigned_label, pos_x, pos_y)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			n.ID, i, n.Data.Value, n.Data.IsRoot, string(n.Data.StepType), string(n.Data.AssignedLabel),
			n.Position.X, n.Position.Y,
		)
	}
	for i, n := range dto.OptionNodes {
		b.Queue(`INSERT INTO triage_options (id, seq, parent_id, value, idx, pos_x, pos_y)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			n.ID, i, n.ParentID, n.Data.Value, n.Data.Index, n.Position.X, n.Position.Y,
		)
	}
	for i, e := range dto.Edges {
		b.Queue(`INSERT INTO triage_edges (id, seq, source, target) VALUES ($1, $2, $3, $4)`,
			e.ID, i, e.Source, e.Target,
		)
	}

	if err := tx.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("replace triage tree: %w", err)
	}
	return nil
}

func (s *Store) load(ctx context.Context) (triage.DTO, error) {
	dto := triage.DTO{
		Nodes:       []triage.StepNode{},
		OptionNodes: []triage.OptionNode{},
		Edges:       []triage.EdgeDTO{},
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, value, is_root, step_type, assigned_label, pos_x, pos_y FROM triage_steps ORDER BY seq`)
	if err != nil {
		return dto, fmt.Errorf("query steps: %w", err)
	}
	for rows.Next() {
		var (
			n        triage.StepNode
			stepType string
			label    string
		)
		if err := rows.Scan(&n.ID, &n.Data.Value, &n.Data.IsRoot, &stepType, &label, &n.Position.X, &n.Position.Y); err != nil {
			rows.Close()
			return dto, fmt.Errorf("scan step: %w", err)
		}
		n.Type = triage.NodeTypeStep
		n.Data.StepType = triage.StepType(stepType)
		n.Data.AssignedLabel = triage.Label(label)
		dto.Nodes = append(dto.Nodes, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return dto, fmt.Errorf("iterate steps: %w", err)
	}

	rows, err = s.pool.Query(ctx,
		`SELECT id, parent_id, value, idx, pos_x, pos_y FROM triage_options ORDER BY seq`)
	if err != nil {
		return dto, fmt.Errorf("query options: %w", err)
	}
	for rows.Next() {
		var n triage.OptionNode
		if err := rows.Scan(&n.ID, &n.ParentID, &n.Data.Value, &n.Data.Index, &n.Position.X, &n.Position.Y); err != nil {
			rows.Close()
			return dto, fmt.Errorf("scan option: %w", err)
		}
		n.Type = triage.NodeTypeOption
		dto.OptionNodes = append(dto.OptionNodes, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return dto, fmt.Errorf("iterate options: %w", err)
	}

	rows, err = s.pool.Query(ctx, `SELECT id, source, target FROM triage_edges ORDER BY seq`)
	if err != nil {
		return dto, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e triage.EdgeDTO
		if err := rows.Scan(&e.ID, &e.Source, &e.Target); err != nil {
			return dto, fmt.Errorf("scan edge: %w", err)
		}
		dto.Edges = append(dto.Edges, e)
	}
	if err := rows.Err(); err != nil {
		return dto, fmt.Errorf("iterate edges: %w", err)
	}

	return dto, nil
}
