// Package sqlitestore provides a single-file SQLite implementation of
// triage.Store for deployments without PostgreSQL.
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/linnemanlabs/erqueue/internal/triage"
)

//go:embed schema.sql
var schema string

// Store persists the triage tree in a SQLite database file.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func New(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// one writer at a time, and a single connection keeps :memory: alive
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		schema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init %s: %w", path, err)
		}
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Load reads the whole tree in insertion order.
func (s *Store) Load(ctx context.Context) (triage.DTO, error) {
	dto := triage.DTO{
		Nodes:       []triage.StepNode{},
		OptionNodes: []triage.OptionNode{},
		Edges:       []triage.EdgeDTO{},
	}

	err := s.each(ctx, `SELECT id, value, is_root, step_type, assigned_label, pos_x, pos_y FROM triage_steps ORDER BY seq`,
		func(rows *sql.Rows) error {
			var (
				n               triage.StepNode
				stepType, label string
			)
			if err := rows.Scan(&n.ID, &n.Data.Value, &n.Data.IsRoot, &stepType, &label, &n.Position.X, &n.Position.Y); err != nil {
				return fmt.Errorf("scan step: %w", err)
			}
			n.Type = triage.NodeTypeStep
			n.Data.StepType = triage.StepType(stepType)
			n.Data.AssignedLabel = triage.Label(label)
			dto.Nodes = append(dto.Nodes, n)
			return nil
		})
	if err != nil {
		return triage.DTO{}, err
	}

	err = s.each(ctx, `SELECT id, parent_id, value, idx, pos_x, pos_y FROM triage_options ORDER BY seq`,
		func(rows *sql.Rows) error {
			var n triage.OptionNode
			if err := rows.Scan(&n.ID, &n.ParentID, &n.Data.Value, &n.Data.Index, &n.Position.X, &n.Position.Y); err != nil {
				return fmt.Errorf("scan option: %w", err)
			}
			n.Type = triage.NodeTypeOption
			dto.OptionNodes = append(dto.OptionNodes, n)
			return nil
		})
	if err != nil {
		return triage.DTO{}, err
	}

	err = s.each(ctx, `SELECT id, source, target FROM triage_edges ORDER BY seq`,
		func(rows *sql.Rows) error {
			var e triage.EdgeDTO
			if err := rows.Scan(&e.ID, &e.Source, &e.Target); err != nil {
				return fmt.Errorf("scan edge: %w", err)
			}
			dto.Edges = append(dto.Edges, e)
			return nil
		})
	if err != nil {
		return triage.DTO{}, err
	}
	return dto, nil
}

func (s *Store) each(ctx context.Context, query string, fn func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Save replaces the whole tree in a single transaction.
func (s *Store) Save(ctx context.Context, dto triage.DTO) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is harmless

	for _, stmt := range []string{
		`DELETE FROM triage_edges`,
		`DELETE FROM triage_options`,
		`DELETE FROM triage_steps`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear triage tree: %w", err)
		}
	}

	for i, n := range dto.Nodes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO triage_steps (id, seq, value, is_root, step_type, assigned_label, pos_x, pos_y)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			n.ID, i, n.Data.Value, n.Data.IsRoot, string(n.Data.StepType), string(n.Data.AssignedLabel),
			n.Position.X, n.Position.Y,
		); err != nil {
			return fmt.Errorf("insert step %q: %w", n.ID, err)
		}
	}
	for i, n := range dto.OptionNodes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO triage_options (id, seq, parent_id, value, idx, pos_x, pos_y)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			n.ID, i, n.ParentID, n.Data.Value, n.Data.Index, n.Position.X, n.Position.Y,
		); err != nil {
			return fmt.Errorf("insert option %q: %w", n.ID, err)
		}
	}
	for i, e := range dto.Edges {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO triage_edges (id, seq, source, target) VALUES (?, ?, ?, ?)`,
			e.ID, i, e.Source, e.Target,
		); err != nil {
			return fmt.Errorf("insert edge %q: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
