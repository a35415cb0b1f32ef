// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package party

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Sunereum-Labs/BitVM/internal/circuit"
	"github.com/Sunereum-Labs/BitVM/internal/commitment"
	"github.com/Sunereum-Labs/BitVM/internal/dispute"
	"github.com/Sunereum-Labs/BitVM/internal/script"
	"github.com/Sunereum-Labs/BitVM/internal/settlement"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func chainTerms(c *circuit.Circuit) commitment.Terms {
	m := script.SizeModel()
	return commitment.Terms{
		PolicyID:         "solar-001",
		CoverageSats:     10_000,
		PremiumBps:       500,
		Schedule:         circuit.DefaultSchedule,
		ProverBondSats:   2_000,
		VerifierBondSats: 1_000,
		ForfeitBps:       10_000,
		VerifierShareBps: 5_000,
		OnInvalid:        commitment.CollateralReturn,
		HappyPathTimeout: 150 * time.Millisecond,
		RoundTimeout:     150 * time.Millisecond,
		ChunkBound:       m.ChunkCost(3*m.StepCost(c.Steps[1]), 2, 2, 3),
		CostMetric:       script.MetricSize,
	}
}

type scenario struct {
	w        Workload
	terms    commitment.Terms
	honest   circuit.Trace
	prover   *Prover
	verifier *Verifier
	mgr      *dispute.Manager
	claim    dispute.Claim
}

func setup(t *testing.T, proverTrace, verifierTrace func(Workload, circuit.Trace) circuit.Trace, popts, vopts []Option) *scenario {
	t.Helper()
	ctx := context.Background()
	c := circuit.NewChain(24)
	terms := chainTerms(c)
	w, err := NewWorkload(c, terms)
	require.NoError(t, err)
	require.Equal(t, 8, w.Layout.Len())

	honest := circuit.ChainTrace(c, 5)
	pt, vt := honest, honest
	if proverTrace != nil {
		pt = proverTrace(w, honest)
	}
	if verifierTrace != nil {
		vt = verifierTrace(w, honest)
	}
	p, err := NewProver(ctx, w, pt, popts...)
	require.NoError(t, err)
	v, err := NewVerifier(ctx, w, vt, vopts...)
	require.NoError(t, err)

	mgr := dispute.NewManager(dispute.NewMemoryStore(), dispute.StaticSource(w.Adjudicator(script.NewInterpreter())))
	claim := p.Claim(NewClaimID(), terms.PolicyID, w.Committer.TermsCommitment(), commitment.Commitment{1}, 7_000)
	_, err = mgr.Open(ctx, claim, dispute.Timeouts{HappyPath: terms.HappyPathTimeout, Round: terms.RoundTimeout})
	require.NoError(t, err)
	return &scenario{w: w, terms: terms, honest: honest, prover: p, verifier: v, mgr: mgr, claim: claim}
}

func forgeAt(t *testing.T, step int) func(Workload, circuit.Trace) circuit.Trace {
	return func(w Workload, tr circuit.Trace) circuit.Trace {
		out, err := Forge(w.Circuit, tr, step)
		require.NoError(t, err)
		return out
	}
}

func (s *scenario) run(t *testing.T) *dispute.Game {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	g, err := Run(ctx, s.mgr, s.claim.ID, s.prover, s.verifier)
	require.NoError(t, err)
	require.True(t, g.Terminal())
	return g
}

func TestRun_AgreementOpensNoDispute(t *testing.T) {
	s := setup(t, nil, nil, nil, nil)
	assert.NoError(t, s.verifier.Inspect(s.claim))

	g := s.run(t)
	assert.Equal(t, dispute.OutcomeValid, g.Claim.Outcome)
	assert.Nil(t, g.Session)
	assert.Equal(t, "unchallenged", g.Resolution.Reason)
}

func TestRun_ForgedProverLoses(t *testing.T) {
	// step 16 sits in chunk 5
	s := setup(t, forgeAt(t, 16), nil, nil, nil)
	var mm *commitment.MismatchError
	require.True(t, errors.As(s.verifier.Inspect(s.claim), &mm))
	assert.Equal(t, 8, mm.Boundary)

	g := s.run(t)
	assert.Equal(t, dispute.OutcomeInvalid, g.Claim.Outcome)
	require.NotNil(t, g.Resolution.Chunk)
	assert.Equal(t, 5, *g.Resolution.Chunk)
	assert.Equal(t, 3, g.Session.Round)

	moves, err := s.mgr.Moves(context.Background(), s.claim.ID)
	require.NoError(t, err)
	var mids []int
	for _, r := range moves {
		if r.Move.Kind == dispute.MovePublish {
			mids = append(mids, r.Move.Boundary)
		}
	}
	assert.Equal(t, []int{4, 6, 5}, mids)
}

func TestRun_FalseChallengeLoses(t *testing.T) {
	s := setup(t, nil, forgeAt(t, 7), nil, nil)
	g := s.run(t)
	assert.Equal(t, dispute.OutcomeValid, g.Claim.Outcome)
	require.NotNil(t, g.Resolution.Chunk)
	assert.Equal(t, 2, *g.Resolution.Chunk)
}

func TestRun_SilentProverDefaults(t *testing.T) {
	s := setup(t, forgeAt(t, 16), nil, []Option{WithSilence(2)}, nil)
	g := s.run(t)
	assert.Equal(t, dispute.PhaseDefaulted, g.Phase)
	assert.Equal(t, dispute.PartyProver, g.Resolution.Defaulter)
	assert.Equal(t, 2, g.Session.Round)
}

func TestRun_SilentVerifierDefaults(t *testing.T) {
	s := setup(t, forgeAt(t, 16), nil, nil, []Option{WithSilence(1)})
	g := s.run(t)
	assert.Equal(t, dispute.PhaseDefaulted, g.Phase)
	assert.Equal(t, dispute.PartyVerifier, g.Resolution.Defaulter)
	assert.Equal(t, 1, g.Session.Round)
}

func TestVerifier_InspectRejectsForeignInput(t *testing.T) {
	ctx := context.Background()
	c := circuit.NewChain(24)
	w, err := NewWorkload(c, chainTerms(c))
	require.NoError(t, err)

	p, err := NewProver(ctx, w, circuit.ChainTrace(c, 5))
	require.NoError(t, err)
	v, err := NewVerifier(ctx, w, circuit.ChainTrace(c, 6))
	require.NoError(t, err)

	claim := p.Claim("c", "solar-001", w.Committer.TermsCommitment(), commitment.Commitment{1}, 0)
	assert.ErrorIs(t, v.Inspect(claim), ErrInputMismatch)
	claim.ChunkCount--
	assert.ErrorIs(t, v.Inspect(claim), ErrInputMismatch)

	g := &dispute.Game{Claim: claim, Phase: dispute.PhaseHappy}
	_, err = v.Next(g)
	assert.ErrorIs(t, err, ErrInputMismatch)
}

func TestForge(t *testing.T) {
	c := circuit.NewChain(12)
	honest := circuit.ChainTrace(c, 3)
	require.NoError(t, honest.Check(c))

	bad, err := Forge(c, honest, 7)
	require.NoError(t, err)
	err = bad.Check(c)
	require.ErrorIs(t, err, circuit.ErrUnsatisfied)
	assert.Contains(t, err.Error(), "step 7")
	assert.NoError(t, honest.Check(c), "input trace untouched")

	_, err = Forge(c, honest, 12)
	assert.Error(t, err)
}

func TestForge_PayoutCircuit(t *testing.T) {
	ccs, err := circuit.CompilePayout(circuit.DefaultSchedule)
	require.NoError(t, err)
	c, err := circuit.ConvertPayout(ccs)
	require.NoError(t, err)
	tr, err := circuit.Solve(ccs, circuit.NewPayoutAssignment(10_000, true, 7, circuit.DefaultSchedule))
	require.NoError(t, err)

	bad, err := Forge(c, tr, len(c.Steps)/2)
	require.NoError(t, err)
	assert.ErrorIs(t, bad.Check(c), circuit.ErrUnsatisfied)
}

func TestNewWorkload_RejectsForeignDigest(t *testing.T) {
	c := circuit.NewChain(6)
	terms := chainTerms(circuit.NewChain(24))
	terms.CircuitDigest = "00"
	_, err := NewWorkload(c, terms)
	assert.Error(t, err)

	terms.ChunkBound = 0
	_, err = NewWorkload(c, terms)
	assert.ErrorIs(t, err, commitment.ErrInvalidTerms)
}

// payoutSetup plays a claim over the payout circuit for coverage 10000 at
// severity 5, where the schedule pays 5000. The prover's trace is the honest
// one passed through edit, and its claim states the given payout.
func payoutSetup(t *testing.T, edit func(circuit.Trace) circuit.Trace, stated uint64) *scenario {
	t.Helper()
	ctx := context.Background()
	ccs, err := circuit.CompilePayout(circuit.DefaultSchedule)
	require.NoError(t, err)
	c, err := circuit.ConvertPayout(ccs)
	require.NoError(t, err)
	honest, err := circuit.Solve(ccs, circuit.NewPayoutAssignment(10_000, true, 5, circuit.DefaultSchedule))
	require.NoError(t, err)

	terms := chainTerms(circuit.NewChain(2))
	terms.ChunkBound = 1_000_000
	w, err := NewWorkload(c, terms)
	require.NoError(t, err)

	pt := honest
	if edit != nil {
		pt = edit(honest.Clone())
	}
	p, err := NewProver(ctx, w, pt)
	require.NoError(t, err)
	v, err := NewVerifier(ctx, w, honest)
	require.NoError(t, err)

	mgr := dispute.NewManager(dispute.NewMemoryStore(), dispute.StaticSource(w.Adjudicator(script.NewInterpreter())))
	claim := p.Claim(NewClaimID(), terms.PolicyID, w.Committer.TermsCommitment(), commitment.Commitment{1}, stated)
	_, err = mgr.Open(ctx, claim, dispute.Timeouts{HappyPath: terms.HappyPathTimeout, Round: terms.RoundTimeout})
	require.NoError(t, err)
	return &scenario{w: w, terms: terms, honest: honest, prover: p, verifier: v, mgr: mgr, claim: claim}
}

func TestRun_PayoutClaimHonored(t *testing.T) {
	s := payoutSetup(t, nil, 5_000)
	require.NoError(t, s.verifier.Inspect(s.claim))

	g := s.run(t)
	d, err := settlement.Directive(g, s.terms)
	require.NoError(t, err)
	assert.Equal(t, settlement.Honored, d.Kind)
	assert.Equal(t, uint64(5_000), d.Paid(settlement.Withdrawer).Uint64())
}

func TestRun_InflatedPayoutOnHonestTraceIsRefused(t *testing.T) {
	s := payoutSetup(t, nil, 10_000)
	err := s.verifier.Inspect(s.claim)
	require.ErrorIs(t, err, dispute.ErrUnboundPayout)
	var mm *commitment.MismatchError
	assert.False(t, errors.As(err, &mm), "the boundaries agree, so there is nothing to bisect")

	g := s.run(t)
	assert.Nil(t, g.Session)
	d, err := settlement.Directive(g, s.terms)
	require.NoError(t, err)
	assert.Equal(t, settlement.Rejected, d.Kind)
	assert.Equal(t, uint64(10_000), d.Paid(settlement.Depositor).Uint64())
	// only the withdrawer's share of the forfeited prover bond
	assert.Equal(t, uint64(1_000), d.Paid(settlement.Withdrawer).Uint64())
}

func TestRun_ForgedPublicPayoutLoses(t *testing.T) {
	s := payoutSetup(t, func(tr circuit.Trace) circuit.Trace {
		tr[circuit.PayoutWire].SetUint64(10_000)
		return tr
	}, 10_000)

	// the claimed payout is not part of the agreed input
	assert.Equal(t, s.verifier.View().Input(), s.claim.InputCommitment)
	_, err := s.claim.BoundPayout(s.w.Committer)
	require.NoError(t, err, "the forged final state opens its own commitment")

	var mm *commitment.MismatchError
	require.True(t, errors.As(s.verifier.Inspect(s.claim), &mm))

	g := s.run(t)
	assert.Equal(t, dispute.OutcomeInvalid, g.Claim.Outcome)
	require.NotNil(t, g.Resolution.Chunk)

	d, err := settlement.Directive(g, s.terms)
	require.NoError(t, err)
	assert.Equal(t, settlement.Rejected, d.Kind)
	assert.Equal(t, uint64(10_000), d.Paid(settlement.Depositor).Uint64())
}
