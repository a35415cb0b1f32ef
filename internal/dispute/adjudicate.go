// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package dispute

import (
	"context"
	"fmt"

	"github.com/Sunereum-Labs/BitVM/internal/chunker"
	"github.com/Sunereum-Labs/BitVM/internal/circuit"
	"github.com/Sunereum-Labs/BitVM/internal/commitment"
	"github.com/Sunereum-Labs/BitVM/internal/script"
)

// AdjudicationRequest is everything needed to decide the final chunk.
type AdjudicationRequest struct {
	ClaimID     string
	Chunk       int
	Agreed      commitment.Commitment // boundary Lo, agreed by both
	ProverOut   commitment.Commitment // boundary Hi, Prover's
	VerifierOut commitment.Commitment // boundary Hi, Verifier's
	Reveal      Reveal
}

// Ruling is the adjudicator's decision. Malformed means the reveal did not
// open the agreed input; the revealing Prover defaults.
type Ruling struct {
	Outcome   Outcome
	Malformed bool
	Divergent bool
	Reason    string
	Cost      int
	Output    commitment.Commitment
}

// Adjudicator decides a disputed chunk by re-execution.
type Adjudicator interface {
	Adjudicate(ctx context.Context, req AdjudicationRequest) (Ruling, error)
}

// AdjudicatorSource resolves the adjudicator of a claim.
type AdjudicatorSource interface {
	AdjudicatorFor(ctx context.Context, claim Claim) (Adjudicator, error)
}

// AdjudicatorSourceFunc adapts a function to AdjudicatorSource.
type AdjudicatorSourceFunc func(ctx context.Context, claim Claim) (Adjudicator, error)

func (f AdjudicatorSourceFunc) AdjudicatorFor(ctx context.Context, claim Claim) (Adjudicator, error) {
	return f(ctx, claim)
}

// StaticSource serves one adjudicator for every claim.
func StaticSource(a Adjudicator) AdjudicatorSource {
	return AdjudicatorSourceFunc(func(context.Context, Claim) (Adjudicator, error) { return a, nil })
}

// ChunkAdjudicator compiles the disputed chunk from the shared layout and
// runs it in a script.Env.
type ChunkAdjudicator struct {
	circuit   *circuit.Circuit
	layout    *chunker.Layout
	committer *commitment.Committer
	env       script.Env
}

func NewChunkAdjudicator(c *circuit.Circuit, l *chunker.Layout, cm *commitment.Committer, env script.Env) *ChunkAdjudicator {
	return &ChunkAdjudicator{circuit: c, layout: l, committer: cm, env: env}
}

func (a *ChunkAdjudicator) Adjudicate(ctx context.Context, req AdjudicationRequest) (Ruling, error) {
	rv := req.Reveal
	if rv.Chunk < 0 || rv.Chunk >= a.layout.Len() {
		return Ruling{Malformed: true, Reason: fmt.Sprintf("chunk %d out of range", rv.Chunk)}, nil
	}
	if !a.committer.Verify(req.Agreed, rv.Input) {
		return Ruling{Malformed: true, Reason: "revealed input does not open the agreed boundary"}, nil
	}
	prog, err := a.layout.Program(a.circuit, rv.Chunk)
	if err != nil {
		return Ruling{}, err
	}
	v, err := a.env.Execute(ctx, prog, rv.Input, rv.Witness, rv.Output, a.layout.Bound)
	if err != nil {
		return Ruling{}, fmt.Errorf("execute chunk %d: %w", rv.Chunk, err)
	}
	out := a.committer.Commit(rv.Output)
	if !v.Accept {
		return Ruling{Outcome: OutcomeInvalid, Reason: "chunk rejected: " + v.Reason, Cost: v.Cost, Output: out}, nil
	}
	switch out {
	case req.ProverOut:
		return Ruling{Outcome: OutcomeValid, Reason: "chunk output matches prover", Cost: v.Cost, Output: out}, nil
	case req.VerifierOut:
		return Ruling{Outcome: OutcomeInvalid, Reason: "chunk output matches verifier", Cost: v.Cost, Output: out}, nil
	}
	return Ruling{Outcome: OutcomeInvalid, Divergent: true, Reason: "chunk output matches neither party", Cost: v.Cost, Output: out}, nil
}
