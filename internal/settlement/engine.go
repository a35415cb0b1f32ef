// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/Sunereum-Labs/BitVM/internal/commitment"
	"github.com/Sunereum-Labs/BitVM/internal/dispute"
)

// GameSource reads the game of a claim. *dispute.Manager implements it.
type GameSource interface {
	Get(ctx context.Context, claimID string) (*dispute.Game, error)
}

// Escrow is the Depositor's collateral and both bonds locked for one
// claim. It is released exactly once, by its directive.
type Escrow struct {
	ID              string                `json:"id"`
	ClaimID         string                `json:"claim_id"`
	Terms           commitment.Terms      `json:"terms"`
	TermsCommitment commitment.Commitment `json:"terms_commitment"`
	Locked          *uint256.Int          `json:"locked_sats"`
	LockedAt        time.Time             `json:"locked_at"`
	Directive       *PayoutDirective      `json:"directive,omitempty"`
}

// Engine holds escrows and settles them once their claim is terminal.
type Engine struct {
	mu      sync.Mutex
	games   GameSource
	escrows map[string]*Escrow
	clock   func() time.Time
	log     *zap.Logger
}

type Option func(*Engine)

func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func NewEngine(games GameSource, opts ...Option) *Engine {
	e := &Engine{
		games:   games,
		escrows: make(map[string]*Escrow),
		clock:   time.Now,
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Lock escrows collateral and bonds for claimID under t.
func (e *Engine) Lock(claimID string, t commitment.Terms) (*Escrow, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	tc, err := commitment.CommitTerms(t)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.escrows[claimID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyLocked, claimID)
	}
	locked := uint256.NewInt(t.CoverageSats)
	locked.Add(locked, uint256.NewInt(t.ProverBondSats))
	locked.Add(locked, uint256.NewInt(t.VerifierBondSats))
	es := &Escrow{
		ID:              uuid.NewString(),
		ClaimID:         claimID,
		Terms:           t,
		TermsCommitment: tc,
		Locked:          locked,
		LockedAt:        e.clock(),
	}
	e.escrows[claimID] = es
	e.log.Info("escrow locked",
		zap.String("claim_id", claimID),
		zap.String("escrow_id", es.ID),
		zap.String("locked_sats", locked.Dec()),
		zap.String("premium_sats", Premium(t).Dec()),
	)
	return es, nil
}

// Settle issues the directive of a terminal claim. Settling twice returns
// the same directive.
func (e *Engine) Settle(ctx context.Context, claimID string) (*PayoutDirective, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	es, ok := e.escrows[claimID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotLocked, claimID)
	}
	if es.Directive != nil {
		return es.Directive, nil
	}

	g, err := e.games.Get(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("load claim %s: %w", claimID, err)
	}
	if g.Claim.TermsCommitment != es.TermsCommitment {
		return nil, fmt.Errorf("%w: claim %s names %s, escrow holds %s", ErrTermsMismatch, claimID, g.Claim.TermsCommitment, es.TermsCommitment)
	}
	d, err := Directive(g, es.Terms)
	if err != nil {
		return nil, err
	}
	d.ID = uuid.NewString()
	d.EscrowID = es.ID
	d.IssuedAt = e.clock()
	es.Directive = d

	e.log.Info("claim settled",
		zap.String("claim_id", claimID),
		zap.String("kind", string(d.Kind)),
		zap.String("outcome", string(d.Outcome)),
		zap.String("withdrawer_sats", d.Paid(Withdrawer).Dec()),
	)
	return d, nil
}

// Escrow returns the escrow of claimID.
func (e *Engine) Escrow(claimID string) (*Escrow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	es, ok := e.escrows[claimID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotLocked, claimID)
	}
	return es, nil
}
