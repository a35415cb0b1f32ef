// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package dispute

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// MoveRecord is one accepted move as logged by a Store.
type MoveRecord struct {
	ClaimID string    `json:"claim_id"`
	Version int64     `json:"version"`
	Move    Move      `json:"move"`
	At      time.Time `json:"at"`
}

// Store persists game records. Save is a compare-and-swap on the version
// the caller loaded; a concurrent writer makes it fail with
// ErrVersionConflict.
type Store interface {
	Create(ctx context.Context, g *Game) error
	Load(ctx context.Context, claimID string) (*Game, error)
	Save(ctx context.Context, g *Game, prevVersion int64, m *Move, at time.Time) error
	Moves(ctx context.Context, claimID string) ([]MoveRecord, error)
	Active(ctx context.Context) ([]string, error)
	Close() error
}

// MemoryStore keeps games in process. Records are stored encoded so callers
// never share memory with the store.
type MemoryStore struct {
	mu    sync.Mutex
	games map[string][]byte
	ver   map[string]int64
	moves map[string][]MoveRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games: make(map[string][]byte),
		ver:   make(map[string]int64),
		moves: make(map[string][]MoveRecord),
	}
}

func (s *MemoryStore) Create(_ context.Context, g *Game) error {
	b, err := json.Marshal(g)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[g.Claim.ID]; ok {
		return ErrExists
	}
	s.games[g.Claim.ID] = b
	s.ver[g.Claim.ID] = g.Version
	return nil
}

func (s *MemoryStore) Load(_ context.Context, claimID string) (*Game, error) {
	s.mu.Lock()
	b, ok := s.games[claimID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	var g Game
	if err := json.Unmarshal(b, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *MemoryStore) Save(_ context.Context, g *Game, prevVersion int64, m *Move, at time.Time) error {
	b, err := json.Marshal(g)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.ver[g.Claim.ID]
	if !ok {
		return ErrNotFound
	}
	if cur != prevVersion {
		return ErrVersionConflict
	}
	s.games[g.Claim.ID] = b
	s.ver[g.Claim.ID] = g.Version
	if m != nil {
		s.moves[g.Claim.ID] = append(s.moves[g.Claim.ID], MoveRecord{ClaimID: g.Claim.ID, Version: g.Version, Move: *m, At: at})
	}
	return nil
}

func (s *MemoryStore) Moves(_ context.Context, claimID string) ([]MoveRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[claimID]; !ok {
		return nil, ErrNotFound
	}
	out := make([]MoveRecord, len(s.moves[claimID]))
	copy(out, s.moves[claimID])
	return out, nil
}

func (s *MemoryStore) Active(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.games))
	for id := range s.games {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)

	out := ids[:0]
	for _, id := range ids {
		g, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if !g.Terminal() {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
