// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package dispute

import (
	"errors"
	"fmt"
	"time"

	"github.com/Sunereum-Labs/BitVM/internal/commitment"
)

var (
	ErrTerminal       = errors.New("dispute: game is terminal")
	ErrOutOfTurn      = errors.New("dispute: move out of turn")
	ErrUnexpectedMove = errors.New("dispute: unexpected move")
	ErrMalformedMove  = errors.New("dispute: malformed move")
	ErrNoDivergence   = errors.New("dispute: challenge does not diverge from the claim")
	ErrInvalidClaim   = errors.New("dispute: invalid claim")
	ErrNoAdjudicator  = errors.New("dispute: no adjudicator for claim")
	ErrUnboundPayout  = errors.New("dispute: payout is not bound to the final boundary")

	ErrRoundTimeout           = errors.New("dispute: round timeout")
	ErrAdjudicationDivergence = errors.New("dispute: adjudication diverges from both parties")

	ErrNotFound        = errors.New("dispute: game not found")
	ErrExists          = errors.New("dispute: game already exists")
	ErrVersionConflict = errors.New("dispute: version conflict")
)

// RoundTimeoutError is returned for a move that arrived after the deadline.
// Party is the side that missed the deadline and Mover the side whose move
// was refused. The game has already moved to its default outcome.
type RoundTimeoutError struct {
	ClaimID  string
	Party    Party
	Mover    Party
	Round    int
	Deadline time.Time
}

func (e *RoundTimeoutError) Error() string {
	return fmt.Sprintf("claim %s: %s missed deadline %s (round %d), move by %s refused",
		e.ClaimID, e.Party, e.Deadline.Format(time.RFC3339), e.Round, e.Mover)
}

func (e *RoundTimeoutError) Is(target error) bool { return target == ErrRoundTimeout }

// AdjudicationDivergenceError means the re-executed chunk matched neither
// party. The claim is resolved invalid but the condition points at a bug in
// chunking or commitments and must be surfaced.
type AdjudicationDivergenceError struct {
	ClaimID  string
	Chunk    int
	Got      commitment.Commitment
	Prover   commitment.Commitment
	Verifier commitment.Commitment
}

func (e *AdjudicationDivergenceError) Error() string {
	return fmt.Sprintf("claim %s chunk %d: executed output %s matches neither prover %s nor verifier %s",
		e.ClaimID, e.Chunk, e.Got, e.Prover, e.Verifier)
}

func (e *AdjudicationDivergenceError) Is(target error) bool { return target == ErrAdjudicationDivergence }
