// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package dispute

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS games (
	claim_id   TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	phase      TEXT NOT NULL,
	outcome    TEXT NOT NULL,
	record     TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS moves (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	claim_id   TEXT NOT NULL REFERENCES games(claim_id),
	version    INTEGER NOT NULL,
	kind       TEXT NOT NULL,
	party      TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_moves_claim ON moves(claim_id, id);
CREATE INDEX IF NOT EXISTS idx_games_phase ON games(phase);
`

// SQLStore persists games in SQLite. Every Save is one transaction that
// swaps the record and appends the move.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000; PRAGMA foreign_keys=ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	s := NewSQLStore(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database. Call Migrate before first use.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func stamp(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func (s *SQLStore) Create(ctx context.Context, g *Game) error {
	rec, err := json.Marshal(g)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO games (claim_id, version, phase, outcome, record, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(claim_id) DO NOTHING`,
		g.Claim.ID, g.Version, string(g.Phase), string(g.Claim.Outcome), string(rec), stamp(g.Claim.SubmittedAt))
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrExists
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context, claimID string) (*Game, error) {
	var rec string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM games WHERE claim_id = ?`, claimID).Scan(&rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load game: %w", err)
	}
	var g Game
	if err := json.Unmarshal([]byte(rec), &g); err != nil {
		return nil, fmt.Errorf("decode game %s: %w", claimID, err)
	}
	return &g, nil
}

func (s *SQLStore) Save(ctx context.Context, g *Game, prevVersion int64, m *Move, at time.Time) error {
	rec, err := json.Marshal(g)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE games SET version = ?, phase = ?, outcome = ?, record = ?, updated_at = ? WHERE claim_id = ? AND version = ?`,
		g.Version, string(g.Phase), string(g.Claim.Outcome), string(rec), stamp(at), g.Claim.ID, prevVersion)
	if err != nil {
		return fmt.Errorf("update game: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM games WHERE claim_id = ?`, g.Claim.ID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return ErrVersionConflict
	}

	if m != nil {
		payload, err := json.Marshal(m)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO moves (claim_id, version, kind, party, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			g.Claim.ID, g.Version, string(m.Kind), string(m.Party), string(payload), stamp(at)); err != nil {
			return fmt.Errorf("insert move: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) Moves(ctx context.Context, claimID string) ([]MoveRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version, payload, created_at FROM moves WHERE claim_id = ? ORDER BY id`, claimID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []MoveRecord
	for rows.Next() {
		var (
			r       MoveRecord
			payload string
			at      string
		)
		if err := rows.Scan(&r.Version, &payload, &at); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &r.Move); err != nil {
			return nil, fmt.Errorf("decode move: %w", err)
		}
		if r.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("decode move time: %w", err)
		}
		r.ClaimID = claimID
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) Active(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT claim_id FROM games WHERE phase IN (?, ?) ORDER BY claim_id`, string(PhaseHappy), string(PhaseDisputing))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error { return s.db.Close() }
