// Package staging persists halted-run results as review proposals. Nothing
// reaches the graph from here: a human approves or rejects each proposal and
// a downstream job commits approved ones. The engine never touches this
// store.
package staging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite" // pure-Go sqlite driver, no CGO

	"github.com/agenthands/coalesce/internal/core"
)

const (
	KindMerge        = "merge"
	KindRelationship = "relationship"

	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Proposal is one staged merge or relationship awaiting review.
type Proposal struct {
	ID        string          `json:"id"`
	RunID     string          `json:"run_id"`
	Scope     string          `json:"scope"`
	Kind      string          `json:"kind"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

type Store struct {
	db *sql.DB
}

// Open creates or opens the staging database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open staging database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate staging database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS proposals (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		scope TEXT NOT NULL,
		kind TEXT NOT NULL,
		key TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP NOT NULL,
		UNIQUE(scope, kind, key)
	);
	CREATE INDEX IF NOT EXISTS idx_proposals_scope_status ON proposals(scope, status);
	CREATE INDEX IF NOT EXISTS idx_proposals_run ON proposals(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// StageRun writes one pending proposal per accumulated merge and
// relationship. Re-staging an existing (scope, kind, key) replaces the
// payload and resets it to pending.
func (s *Store) StageRun(ctx context.Context, runID string, result *core.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin staging transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO proposals (id, run_id, scope, kind, key, payload, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, kind, key) DO UPDATE SET
			run_id = excluded.run_id,
			payload = excluded.payload,
			status = excluded.status,
			created_at = excluded.created_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for key, m := range result.Merges {
		payload, err := json.Marshal(m)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, uuid.New().String(), runID, result.Scope, KindMerge, key, string(payload), StatusPending, now); err != nil {
			return err
		}
	}
	for key, r := range result.Relationships {
		payload, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, uuid.New().String(), runID, result.Scope, KindRelationship, key, string(payload), StatusPending, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListPending returns the pending proposals for a scope, oldest first.
func (s *Store) ListPending(ctx context.Context, scope string) ([]Proposal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, scope, kind, key, payload, status, created_at
		FROM proposals
		WHERE scope = ? AND status = ?
		ORDER BY created_at, key
	`, scope, StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Proposal
	for rows.Next() {
		var p Proposal
		var payload string
		if err := rows.Scan(&p.ID, &p.RunID, &p.Scope, &p.Kind, &p.Key, &payload, &p.Status, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Payload = json.RawMessage(payload)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetStatus moves a proposal to approved or rejected.
func (s *Store) SetStatus(ctx context.Context, id, status string) error {
	if status != StatusApproved && status != StatusRejected {
		return fmt.Errorf("invalid proposal status %q", status)
	}
	res, err := s.db.ExecContext(ctx, "UPDATE proposals SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("proposal %s not found", id)
	}
	return nil
}
