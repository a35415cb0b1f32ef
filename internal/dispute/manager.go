// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package dispute

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager owns the games of many claims. Each game is mutated only under the
// manager lock and persisted with a version check, so concurrent claims
// never share mutable state and a stale writer cannot overwrite a newer
// record.
type Manager struct {
	mu      sync.Mutex
	store   Store
	source  AdjudicatorSource
	clock   func() time.Time
	after   func(time.Duration) <-chan time.Time
	log     *zap.Logger
	metrics *Metrics

	subMu sync.Mutex
	subs  map[string]map[chan struct{}]struct{}
}

type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithTimer overrides how Await waits for deadlines.
func WithTimer(after func(time.Duration) <-chan time.Time) Option {
	return func(m *Manager) { m.after = after }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = l }
}

func WithMetrics(mt *Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func NewManager(store Store, source AdjudicatorSource, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		source: source,
		clock:  time.Now,
		after:  time.After,
		log:    zap.NewNop(),
		subs:   make(map[string]map[chan struct{}]struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Open starts the happy path of a new claim.
func (m *Manager) Open(ctx context.Context, claim Claim, t Timeouts) (*Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	g, err := NewGame(claim, t, now)
	if err != nil {
		return nil, err
	}
	if err := m.store.Create(ctx, g); err != nil {
		return nil, fmt.Errorf("create game %s: %w", claim.ID, err)
	}
	m.metrics.observe(g, &g.Events[0])
	m.log.Info("claim opened",
		zap.String("claim_id", claim.ID),
		zap.Int("chunks", claim.ChunkCount),
		zap.Time("happy_deadline", g.HappyDeadline),
	)
	m.notify(claim.ID)
	return g, nil
}

// Get returns the stored game without applying deadlines.
func (m *Manager) Get(ctx context.Context, claimID string) (*Game, error) {
	return m.store.Load(ctx, claimID)
}

// Moves returns the accepted moves of a claim in order.
func (m *Manager) Moves(ctx context.Context, claimID string) ([]MoveRecord, error) {
	return m.store.Moves(ctx, claimID)
}

// Submit applies a party's move. The returned game is the stored state after
// the call, including when the move defaulted its sender or arrived late.
func (m *Manager) Submit(ctx context.Context, claimID string, mv Move) (*Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, err := m.store.Load(ctx, claimID)
	if err != nil {
		return nil, err
	}
	prev := g.Version

	var adj Adjudicator
	if m.source != nil && g.Phase == PhaseDisputing && g.Session.Step == StepAwaitReveal && mv.Kind == MoveReveal && mv.Party == PartyProver {
		if adj, err = m.source.AdjudicatorFor(ctx, g.Claim); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoAdjudicator, err)
		}
	}

	now := m.clock()
	ev, applyErr := g.Apply(ctx, now, mv, adj)
	if ev == nil {
		return g, applyErr
	}

	logged := &mv
	if errors.Is(applyErr, ErrRoundTimeout) {
		logged = nil
	}
	if err := m.store.Save(ctx, g, prev, logged, now); err != nil {
		return nil, fmt.Errorf("save game %s: %w", claimID, err)
	}
	m.emit(g, ev, applyErr)
	return g, applyErr
}

// Tick applies deadlines to one claim.
func (m *Manager) Tick(ctx context.Context, claimID string) (*Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tickLocked(ctx, claimID)
}

func (m *Manager) tickLocked(ctx context.Context, claimID string) (*Game, error) {
	g, err := m.store.Load(ctx, claimID)
	if err != nil {
		return nil, err
	}
	prev := g.Version
	now := m.clock()
	ev := g.Expire(now)
	if ev == nil {
		return g, nil
	}
	if err := m.store.Save(ctx, g, prev, nil, now); err != nil {
		return nil, fmt.Errorf("save game %s: %w", claimID, err)
	}
	m.emit(g, ev, nil)
	return g, nil
}

// TickAll applies deadlines to every active claim and returns how many
// reached a terminal state.
func (m *Manager) TickAll(ctx context.Context) (int, error) {
	ids, err := m.store.Active(ctx)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	done := 0
	for _, id := range ids {
		g, err := m.tickLocked(ctx, id)
		if err != nil {
			return done, err
		}
		if g.Terminal() {
			done++
		}
	}
	return done, nil
}

func (m *Manager) emit(g *Game, ev *Event, applyErr error) {
	m.metrics.observe(g, ev)
	fields := []zap.Field{
		zap.String("claim_id", g.Claim.ID),
		zap.String("event", string(ev.Kind)),
		zap.Int("round", ev.Round),
		zap.Int("lo", ev.Lo),
		zap.Int("hi", ev.Hi),
	}
	if ev.Party != PartyNone {
		fields = append(fields, zap.String("party", string(ev.Party)))
	}
	switch {
	case errors.Is(applyErr, ErrAdjudicationDivergence):
		m.log.Error("adjudication diverged", append(fields, zap.Error(applyErr))...)
	case ev.Kind == EventResolved || ev.Kind == EventDefault:
		m.log.Info("claim terminal", append(fields, zap.String("outcome", string(g.Claim.Outcome)), zap.String("reason", g.Resolution.Reason))...)
	default:
		m.log.Debug("game advanced", fields...)
	}
	m.notify(g.Claim.ID)
}

// Await blocks until the game is terminal or waits on party. With
// PartyNone it waits for the terminal state only. Deadlines are applied
// while waiting.
func (m *Manager) Await(ctx context.Context, claimID string, party Party) (*Game, error) {
	for {
		ch := m.subscribe(claimID)
		g, err := m.Tick(ctx, claimID)
		if err != nil {
			m.unsubscribe(claimID, ch)
			return nil, err
		}
		if g.Terminal() || (party != PartyNone && g.Turn() == party) {
			m.unsubscribe(claimID, ch)
			return g, nil
		}
		wait := g.Deadline().Sub(m.clock())
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			m.unsubscribe(claimID, ch)
			return nil, ctx.Err()
		case <-ch:
		case <-m.after(wait):
		}
		m.unsubscribe(claimID, ch)
	}
}

func (m *Manager) subscribe(claimID string) chan struct{} {
	ch := make(chan struct{}, 1)
	m.subMu.Lock()
	defer m.subMu.Unlock()
	if m.subs[claimID] == nil {
		m.subs[claimID] = make(map[chan struct{}]struct{})
	}
	m.subs[claimID][ch] = struct{}{}
	return ch
}

func (m *Manager) unsubscribe(claimID string, ch chan struct{}) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	delete(m.subs[claimID], ch)
	if len(m.subs[claimID]) == 0 {
		delete(m.subs, claimID)
	}
}

func (m *Manager) notify(claimID string) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs[claimID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
