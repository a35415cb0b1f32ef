// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

// Package dispute runs the per-claim bisection game: optimistic happy path,
// challenge, logarithmic bisection over committed chunk boundaries and
// re-execution of the single disputed chunk.
package dispute

import (
	"fmt"
	"time"

	"github.com/Sunereum-Labs/BitVM/internal/circuit"
	"github.com/Sunereum-Labs/BitVM/internal/commitment"
)

type Party string

const (
	PartyNone     Party = ""
	PartyProver   Party = "prover"
	PartyVerifier Party = "verifier"
)

// Other returns the counterparty.
func (p Party) Other() Party {
	switch p {
	case PartyProver:
		return PartyVerifier
	case PartyVerifier:
		return PartyProver
	}
	return PartyNone
}

type Phase string

const (
	PhaseHappy     Phase = "happy"
	PhaseDisputing Phase = "disputing"
	PhaseResolved  Phase = "resolved"
	PhaseDefaulted Phase = "defaulted"
)

// Outcome is the user-visible result of a claim.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeValid     Outcome = "valid"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeDefaulted Outcome = "defaulted"
)

// Step is what the disputing game waits for next.
type Step string

const (
	StepAwaitCommitment Step = "await_commitment" // prover publishes mid
	StepAwaitResponse   Step = "await_response"   // verifier agrees or disagrees
	StepAwaitReveal     Step = "await_reveal"     // prover opens chunk lo
)

// Claim is the Prover's assertion that a payout follows from a valid damage
// proof, together with the commitments needed to dispute it.
type Claim struct {
	ID                    string                `json:"id"`
	PolicyID              string                `json:"policy_id"`
	TermsCommitment       commitment.Commitment `json:"terms_commitment"`
	DamageProofCommitment commitment.Commitment `json:"damage_proof_commitment"`
	ChunkSequenceRef      commitment.Commitment `json:"chunk_sequence_ref"`
	InputCommitment       commitment.Commitment `json:"input_commitment"`
	FinalCommitment       commitment.Commitment `json:"final_commitment"`
	ChunkCount            int                   `json:"chunk_count"`
	PayoutSats            uint64                `json:"payout_sats,string"`
	// FinalState opens FinalCommitment. Its payout wire is what PayoutSats
	// must equal.
	FinalState  circuit.State `json:"final_state,omitempty"`
	SubmittedAt time.Time     `json:"submitted_at"`
	Outcome     Outcome       `json:"outcome"`
}

// BoundPayout opens the final state against FinalCommitment under cm and
// returns the payout it carries. The stated PayoutSats must match it.
func (c Claim) BoundPayout(cm *commitment.Committer) (uint64, error) {
	if !cm.Verify(c.FinalCommitment, c.FinalState) {
		return 0, fmt.Errorf("%w: final state does not open %s", ErrUnboundPayout, c.FinalCommitment)
	}
	v, ok := c.FinalState[circuit.PayoutWire]
	if !ok {
		return 0, fmt.Errorf("%w: final state has no payout wire", ErrUnboundPayout)
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("%w: payout %s out of range", ErrUnboundPayout, v.String())
	}
	if got := v.Uint64(); got != c.PayoutSats {
		return 0, fmt.Errorf("%w: claim states %d, final state carries %d", ErrUnboundPayout, c.PayoutSats, got)
	}
	return c.PayoutSats, nil
}

// Session is the bisection state of a disputed claim. The range [Lo, Hi)
// holds the chunks still in question: both parties agree on boundary Lo and
// disagree on boundary Hi.
type Session struct {
	ClaimID       string                        `json:"claim_id"`
	ChunkCount    int                           `json:"chunk_count"`
	Lo            int                           `json:"lo"`
	Hi            int                           `json:"hi"`
	Round         int                           `json:"round"`
	Mid           int                           `json:"mid"`
	Step          Step                          `json:"step"`
	Deadline      time.Time                     `json:"deadline"`
	ResolvedChunk *int                          `json:"resolved_chunk,omitempty"`
	Prover        map[int]commitment.Commitment `json:"prover_commitments"`
	Verifier      map[int]commitment.Commitment `json:"verifier_commitments"`
}

// Resolution records how a game ended.
type Resolution struct {
	Outcome   Outcome   `json:"outcome"`
	Chunk     *int      `json:"chunk,omitempty"`
	Divergent bool      `json:"divergent,omitempty"`
	Defaulter Party     `json:"defaulter,omitempty"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// Timeouts of a game, copied from the contract terms.
type Timeouts struct {
	HappyPath time.Duration `json:"happy_path"`
	Round     time.Duration `json:"round"`
}

// Game is the full record of one claim's dispute, persisted as a unit.
type Game struct {
	Claim         Claim       `json:"claim"`
	Phase         Phase       `json:"phase"`
	Version       int64       `json:"version"`
	Timeouts      Timeouts    `json:"timeouts"`
	HappyDeadline time.Time   `json:"happy_deadline"`
	Session       *Session    `json:"session,omitempty"`
	Resolution    *Resolution `json:"resolution,omitempty"`
	Events        []Event     `json:"events"`
}

type MoveKind string

const (
	MoveChallenge MoveKind = "challenge"
	MovePublish   MoveKind = "publish"
	MoveRespond   MoveKind = "respond"
	MoveReveal    MoveKind = "reveal"
)

// Move is a party's action in the game. Which fields matter depends on Kind.
type Move struct {
	Kind  MoveKind `json:"kind"`
	Party Party    `json:"party"`
	Round int      `json:"round"`

	// Challenge: Verifier's own final commitment.
	// Publish: Prover's commitment at Boundary with Proof.
	// Respond (disagree): Verifier's counter-commitment at Boundary.
	Boundary   int                   `json:"boundary,omitempty"`
	Commitment commitment.Commitment `json:"commitment"`
	Proof      *commitment.Proof     `json:"proof,omitempty"`

	// Respond: the Prover commitment being answered.
	Ref   commitment.Commitment `json:"ref"`
	Agree bool                  `json:"agree,omitempty"`

	Reveal *Reveal `json:"reveal,omitempty"`
}

// Reveal opens the disputed chunk.
type Reveal struct {
	Chunk   int           `json:"chunk"`
	Input   circuit.State `json:"input"`
	Witness circuit.State `json:"witness"`
	Output  circuit.State `json:"output"`
}

type EventKind string

const (
	EventOpened    EventKind = "opened"
	EventChallenge EventKind = "challenge"
	EventPublish   EventKind = "publish"
	EventRespond   EventKind = "respond"
	EventResolved  EventKind = "resolved"
	EventDefault   EventKind = "default"
)

// Event is one entry of a game's audit log.
type Event struct {
	Seq    int       `json:"seq"`
	Kind   EventKind `json:"kind"`
	Party  Party     `json:"party,omitempty"`
	Round  int       `json:"round"`
	Lo     int       `json:"lo"`
	Hi     int       `json:"hi"`
	Mid    int       `json:"mid"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}
