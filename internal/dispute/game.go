// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package dispute

import (
	"context"
	"fmt"
	"time"

	"github.com/Sunereum-Labs/BitVM/internal/commitment"
)

// NewGame opens the happy-path window for claim at now.
func NewGame(claim Claim, t Timeouts, now time.Time) (*Game, error) {
	switch {
	case claim.ID == "":
		return nil, fmt.Errorf("%w: missing id", ErrInvalidClaim)
	case claim.ChunkCount < 1:
		return nil, fmt.Errorf("%w: chunk count %d", ErrInvalidClaim, claim.ChunkCount)
	case claim.ChunkSequenceRef.IsZero() || claim.FinalCommitment.IsZero() || claim.InputCommitment.IsZero():
		return nil, fmt.Errorf("%w: missing commitments", ErrInvalidClaim)
	case t.HappyPath <= 0 || t.Round <= 0:
		return nil, fmt.Errorf("%w: timeouts must be positive", ErrInvalidClaim)
	}
	claim.Outcome = OutcomePending
	if claim.SubmittedAt.IsZero() {
		claim.SubmittedAt = now
	}
	g := &Game{
		Claim:         claim,
		Phase:         PhaseHappy,
		Timeouts:      t,
		HappyDeadline: now.Add(t.HappyPath),
	}
	g.record(Event{Kind: EventOpened, Hi: claim.ChunkCount, At: now})
	return g, nil
}

// Terminal reports whether the game has an outcome.
func (g *Game) Terminal() bool {
	return g.Phase == PhaseResolved || g.Phase == PhaseDefaulted
}

// Turn is the party whose move the game waits for. During the happy path
// the Verifier may challenge but is never obliged to.
func (g *Game) Turn() Party {
	switch g.Phase {
	case PhaseHappy:
		return PartyVerifier
	case PhaseDisputing:
		if g.Session.Step == StepAwaitResponse {
			return PartyVerifier
		}
		return PartyProver
	}
	return PartyNone
}

// Deadline is when the current phase or round expires.
func (g *Game) Deadline() time.Time {
	switch g.Phase {
	case PhaseHappy:
		return g.HappyDeadline
	case PhaseDisputing:
		return g.Session.Deadline
	}
	return time.Time{}
}

func (g *Game) record(ev Event) *Event {
	ev.Seq = len(g.Events)
	if s := g.Session; s != nil {
		ev.Round, ev.Lo, ev.Hi, ev.Mid = s.Round, s.Lo, s.Hi, s.Mid
	}
	g.Events = append(g.Events, ev)
	g.Version++
	return &ev
}

func (g *Game) resolve(now time.Time, o Outcome, chunk *int, divergent bool, reason string) *Event {
	g.Phase = PhaseResolved
	g.Claim.Outcome = o
	g.Resolution = &Resolution{Outcome: o, Chunk: chunk, Divergent: divergent, Reason: reason, At: now}
	return g.record(Event{Kind: EventResolved, Detail: fmt.Sprintf("%s: %s", o, reason), At: now})
}

func (g *Game) forfeit(now time.Time, p Party, reason string) *Event {
	g.Phase = PhaseDefaulted
	g.Claim.Outcome = OutcomeDefaulted
	g.Resolution = &Resolution{Outcome: OutcomeDefaulted, Defaulter: p, Reason: reason, At: now}
	return g.record(Event{Kind: EventDefault, Party: p, Detail: reason, At: now})
}

// Expire applies the deadline rules at now: an unchallenged claim past the
// happy-path deadline resolves valid, a silent party past a round deadline
// defaults. It returns nil when nothing changed.
func (g *Game) Expire(now time.Time) *Event {
	switch g.Phase {
	case PhaseHappy:
		if now.Before(g.HappyDeadline) {
			return nil
		}
		return g.resolve(now, OutcomeValid, nil, false, "unchallenged")
	case PhaseDisputing:
		if now.Before(g.Session.Deadline) {
			return nil
		}
		return g.forfeit(now, g.Turn(), fmt.Sprintf("no %s before round %d deadline", g.Session.Step, g.Session.Round))
	}
	return nil
}

// Apply validates and applies m at now. A nil event means the game did not
// change. Out-of-turn moves are refused without effect; malformed moves by
// the party whose turn it is default that party.
func (g *Game) Apply(ctx context.Context, now time.Time, m Move, adj Adjudicator) (*Event, error) {
	if g.Terminal() {
		return nil, ErrTerminal
	}
	deadline, round, waiting := g.Deadline(), 0, g.Turn()
	if g.Session != nil {
		round = g.Session.Round
	}
	if ev := g.Expire(now); ev != nil {
		return ev, &RoundTimeoutError{ClaimID: g.Claim.ID, Party: waiting, Mover: m.Party, Round: round, Deadline: deadline}
	}
	if turn := g.Turn(); m.Party != turn {
		return nil, fmt.Errorf("%w: %s moved while waiting on %s", ErrOutOfTurn, m.Party, turn)
	}

	if g.Phase == PhaseHappy {
		return g.challenge(now, m)
	}
	switch g.Session.Step {
	case StepAwaitCommitment:
		return g.publish(now, m)
	case StepAwaitResponse:
		return g.respond(now, m)
	default:
		return g.reveal(ctx, now, m, adj)
	}
}

func (g *Game) challenge(now time.Time, m Move) (*Event, error) {
	if m.Kind != MoveChallenge || m.Commitment.IsZero() {
		return nil, fmt.Errorf("%w: %s during happy path", ErrUnexpectedMove, m.Kind)
	}
	if m.Commitment == g.Claim.FinalCommitment {
		return nil, ErrNoDivergence
	}
	n := g.Claim.ChunkCount
	g.Phase = PhaseDisputing
	g.Session = &Session{
		ClaimID:    g.Claim.ID,
		ChunkCount: n,
		Lo:         0,
		Hi:         n,
		Prover:     map[int]commitment.Commitment{0: g.Claim.InputCommitment, n: g.Claim.FinalCommitment},
		Verifier:   map[int]commitment.Commitment{0: g.Claim.InputCommitment, n: m.Commitment},
	}
	g.advance(now)
	return g.record(Event{Kind: EventChallenge, Party: PartyVerifier, Detail: m.Commitment.String(), At: now}), nil
}

// advance picks the next step once [Lo, Hi) changed.
func (g *Game) advance(now time.Time) {
	s := g.Session
	if s.Hi-s.Lo == 1 {
		lo := s.Lo
		s.ResolvedChunk = &lo
		s.Mid = lo
		s.Step = StepAwaitReveal
	} else {
		s.Mid = s.Lo + (s.Hi-s.Lo)/2
		s.Step = StepAwaitCommitment
	}
	s.Deadline = now.Add(g.Timeouts.Round)
}

func (g *Game) publish(now time.Time, m Move) (*Event, error) {
	s := g.Session
	var reason string
	switch {
	case m.Kind != MovePublish:
		reason = fmt.Sprintf("expected %s, got %s", MovePublish, m.Kind)
	case m.Round != s.Round || m.Boundary != s.Mid:
		reason = fmt.Sprintf("published boundary %d in round %d, want %d in round %d", m.Boundary, m.Round, s.Mid, s.Round)
	case m.Proof == nil || m.Proof.Index != s.Mid || m.Proof.Count != s.ChunkCount+1:
		reason = "missing or misplaced inclusion proof"
	case !commitment.VerifyInclusion(g.Claim.ChunkSequenceRef, m.Commitment, *m.Proof):
		reason = "commitment not in claimed chunk sequence"
	}
	if reason != "" {
		return g.forfeit(now, PartyProver, reason), fmt.Errorf("%w: %s", ErrMalformedMove, reason)
	}
	s.Prover[s.Mid] = m.Commitment
	s.Step = StepAwaitResponse
	s.Deadline = now.Add(g.Timeouts.Round)
	return g.record(Event{Kind: EventPublish, Party: PartyProver, Detail: m.Commitment.String(), At: now}), nil
}

func (g *Game) respond(now time.Time, m Move) (*Event, error) {
	s := g.Session
	var reason string
	switch {
	case m.Kind != MoveRespond:
		reason = fmt.Sprintf("expected %s, got %s", MoveRespond, m.Kind)
	case m.Round != s.Round || m.Boundary != s.Mid:
		reason = fmt.Sprintf("answered boundary %d in round %d, want %d in round %d", m.Boundary, m.Round, s.Mid, s.Round)
	case m.Ref != s.Prover[s.Mid]:
		reason = "response references a different commitment"
	case !m.Agree && (m.Commitment.IsZero() || m.Commitment == m.Ref):
		reason = "disagreement without a distinct counter-commitment"
	}
	if reason != "" {
		return g.forfeit(now, PartyVerifier, reason), fmt.Errorf("%w: %s", ErrMalformedMove, reason)
	}

	mid := s.Mid
	detail := "disagree"
	if m.Agree {
		s.Verifier[mid] = m.Ref
		s.Lo = mid
		detail = "agree"
	} else {
		s.Verifier[mid] = m.Commitment
		s.Hi = mid
	}
	ev := g.record(Event{Kind: EventRespond, Party: PartyVerifier, Detail: fmt.Sprintf("%s at %d", detail, mid), At: now})
	s.Round++
	g.advance(now)
	return ev, nil
}

func (g *Game) reveal(ctx context.Context, now time.Time, m Move, adj Adjudicator) (*Event, error) {
	s := g.Session
	if m.Kind != MoveReveal || m.Reveal == nil || m.Reveal.Chunk != s.Lo {
		reason := fmt.Sprintf("expected reveal of chunk %d", s.Lo)
		return g.forfeit(now, PartyProver, reason), fmt.Errorf("%w: %s", ErrMalformedMove, reason)
	}
	if adj == nil {
		return nil, ErrNoAdjudicator
	}
	req := AdjudicationRequest{
		ClaimID:     g.Claim.ID,
		Chunk:       s.Lo,
		Agreed:      s.Prover[s.Lo],
		ProverOut:   s.Prover[s.Hi],
		VerifierOut: s.Verifier[s.Hi],
		Reveal:      *m.Reveal,
	}
	r, err := adj.Adjudicate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("adjudicate chunk %d: %w", s.Lo, err)
	}
	chunk := s.Lo
	switch {
	case r.Malformed:
		return g.forfeit(now, PartyProver, r.Reason), fmt.Errorf("%w: %s", ErrMalformedMove, r.Reason)
	case r.Divergent:
		ev := g.resolve(now, OutcomeInvalid, &chunk, true, r.Reason)
		return ev, &AdjudicationDivergenceError{
			ClaimID:  g.Claim.ID,
			Chunk:    chunk,
			Got:      r.Output,
			Prover:   req.ProverOut,
			Verifier: req.VerifierOut,
		}
	}
	return g.resolve(now, r.Outcome, &chunk, false, r.Reason), nil
}
