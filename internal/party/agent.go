// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package party

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Sunereum-Labs/BitVM/internal/circuit"
	"github.com/Sunereum-Labs/BitVM/internal/commitment"
	"github.com/Sunereum-Labs/BitVM/internal/dispute"
)

var ErrInputMismatch = errors.New("party: claim input does not match local evaluation")

// Agent answers the dispute game for one party. A nil move means the agent
// has nothing to say and lets the deadline decide.
type Agent interface {
	Party() dispute.Party
	Next(g *dispute.Game) (*dispute.Move, error)
}

type options struct {
	silentFrom int
	log        *zap.Logger
}

type Option func(*options)

// WithSilence makes the agent stop answering from the given bisection round.
func WithSilence(round int) Option {
	return func(o *options) { o.silentFrom = round }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

func newOptions(opts []Option) options {
	o := options{silentFrom: -1, log: zap.NewNop()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func (o options) silent(g *dispute.Game) bool {
	return o.silentFrom >= 0 && g.Session != nil && g.Session.Round >= o.silentFrom
}

// NewClaimID returns a fresh random claim id.
func NewClaimID() string { return uuid.NewString() }

// Prover asserts a payout and defends its trace.
type Prover struct {
	view *View
	opts options
}

func NewProver(ctx context.Context, w Workload, t circuit.Trace, opts ...Option) (*Prover, error) {
	v, err := NewView(ctx, w, t)
	if err != nil {
		return nil, fmt.Errorf("prover view: %w", err)
	}
	return &Prover{view: v, opts: newOptions(opts)}, nil
}

func (p *Prover) Party() dispute.Party { return dispute.PartyProver }

func (p *Prover) View() *View { return p.view }

// Claim builds the claim the Prover submits for its trace.
func (p *Prover) Claim(id, policyID string, terms, damageProof commitment.Commitment, payoutSats uint64) dispute.Claim {
	return dispute.Claim{
		ID:                    id,
		PolicyID:              policyID,
		TermsCommitment:       terms,
		DamageProofCommitment: damageProof,
		ChunkSequenceRef:      p.view.Sequence.Root(),
		InputCommitment:       p.view.Input(),
		FinalCommitment:       p.view.Final(),
		ChunkCount:            p.view.Len(),
		PayoutSats:            payoutSats,
		FinalState:            p.view.FinalState().Clone(),
	}
}

func (p *Prover) Next(g *dispute.Game) (*dispute.Move, error) {
	if g.Phase != dispute.PhaseDisputing || g.Turn() != dispute.PartyProver || p.opts.silent(g) {
		return nil, nil
	}
	s := g.Session
	switch s.Step {
	case dispute.StepAwaitCommitment:
		proof, err := p.view.Sequence.Prove(s.Mid)
		if err != nil {
			return nil, err
		}
		p.opts.log.Debug("publishing boundary", zap.String("claim_id", g.Claim.ID), zap.Int("round", s.Round), zap.Int("mid", s.Mid))
		return &dispute.Move{
			Kind:       dispute.MovePublish,
			Party:      dispute.PartyProver,
			Round:      s.Round,
			Boundary:   s.Mid,
			Commitment: p.view.Commitments[s.Mid],
			Proof:      &proof,
		}, nil
	case dispute.StepAwaitReveal:
		ch := p.view.Chunks[s.Lo]
		p.opts.log.Debug("revealing chunk", zap.String("claim_id", g.Claim.ID), zap.Int("chunk", s.Lo))
		return &dispute.Move{
			Kind:  dispute.MoveReveal,
			Party: dispute.PartyProver,
			Round: s.Round,
			Reveal: &dispute.Reveal{
				Chunk:   ch.Index,
				Input:   ch.InputState,
				Witness: ch.Witness,
				Output:  ch.OutputState,
			},
		}, nil
	}
	return nil, nil
}

// Verifier re-evaluates the workload and challenges claims it disagrees with.
type Verifier struct {
	w    Workload
	view *View
	opts options
}

func NewVerifier(ctx context.Context, w Workload, t circuit.Trace, opts ...Option) (*Verifier, error) {
	v, err := NewView(ctx, w, t)
	if err != nil {
		return nil, fmt.Errorf("verifier view: %w", err)
	}
	return &Verifier{w: w, view: v, opts: newOptions(opts)}, nil
}

func (v *Verifier) Party() dispute.Party { return dispute.PartyVerifier }

func (v *Verifier) View() *View { return v.view }

// Inspect compares a claim with the local evaluation. A disagreement on the
// final boundary is returned as a *commitment.MismatchError and is grounds
// for a challenge; a different input or chunk count cannot be disputed. When
// the final boundaries agree but the stated payout is not the one they carry,
// the error wraps dispute.ErrUnboundPayout and settlement refuses the claim.
func (v *Verifier) Inspect(c dispute.Claim) error {
	if c.ChunkCount != v.view.Len() {
		return fmt.Errorf("%w: claim has %d chunks, layout has %d", ErrInputMismatch, c.ChunkCount, v.view.Len())
	}
	if c.InputCommitment != v.view.Input() {
		return fmt.Errorf("%w: input commitment %s", ErrInputMismatch, c.InputCommitment)
	}
	if c.FinalCommitment != v.view.Final() {
		return &commitment.MismatchError{Boundary: c.ChunkCount, Want: v.view.Final(), Got: c.FinalCommitment}
	}
	if v.w.Circuit.IsOutput(circuit.PayoutWire) {
		if _, err := c.BoundPayout(v.w.Committer); err != nil {
			return err
		}
	}
	return nil
}

func (v *Verifier) Next(g *dispute.Game) (*dispute.Move, error) {
	if g.Turn() != dispute.PartyVerifier || v.opts.silent(g) {
		return nil, nil
	}
	if g.Phase == dispute.PhaseHappy {
		err := v.Inspect(g.Claim)
		var mm *commitment.MismatchError
		switch {
		case err == nil:
			return nil, nil
		case errors.As(err, &mm):
			v.opts.log.Info("challenging claim", zap.String("claim_id", g.Claim.ID), zap.Stringer("claimed", mm.Got), zap.Stringer("computed", mm.Want))
			return &dispute.Move{Kind: dispute.MoveChallenge, Party: dispute.PartyVerifier, Commitment: v.view.Final()}, nil
		case errors.Is(err, dispute.ErrUnboundPayout):
			// nothing to bisect; settlement rejects the stated payout
			v.opts.log.Warn("unbound payout", zap.String("claim_id", g.Claim.ID), zap.Uint64("payout_sats", g.Claim.PayoutSats), zap.Error(err))
			return nil, nil
		default:
			return nil, err
		}
	}

	s := g.Session
	ref := s.Prover[s.Mid]
	m := &dispute.Move{
		Kind:     dispute.MoveRespond,
		Party:    dispute.PartyVerifier,
		Round:    s.Round,
		Boundary: s.Mid,
		Ref:      ref,
	}
	if mine := v.view.Commitments[s.Mid]; mine == ref {
		m.Agree = true
	} else {
		m.Commitment = mine
	}
	v.opts.log.Debug("answering boundary", zap.String("claim_id", g.Claim.ID), zap.Int("round", s.Round), zap.Int("mid", s.Mid), zap.Bool("agree", m.Agree))
	return m, nil
}
