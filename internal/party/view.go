// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

// Package party implements the Prover and Verifier agents. Each agent holds
// its own evaluation of the shared workload and answers the dispute game
// from it.
package party

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"golang.org/x/sync/errgroup"

	"github.com/Sunereum-Labs/BitVM/internal/chunker"
	"github.com/Sunereum-Labs/BitVM/internal/circuit"
	"github.com/Sunereum-Labs/BitVM/internal/commitment"
)

var ErrNoWire = errors.New("party: no internal wire to forge")

// Workload is what both parties agree on before a claim: the circuit, its
// chunk layout and the terms every commitment is bound to.
type Workload struct {
	Circuit   *circuit.Circuit
	Layout    *chunker.Layout
	Committer *commitment.Committer
}

// View is one party's evaluation of a workload.
type View struct {
	Commitments []commitment.Commitment
	Sequence    *commitment.Sequence
	Chunks      []chunker.Chunk
}

// NewView binds t to the layout and commits every boundary. Commitments
// are computed in parallel.
func NewView(ctx context.Context, w Workload, t circuit.Trace) (*View, error) {
	states, err := chunker.BoundaryStates(w.Circuit, w.Layout, t)
	if err != nil {
		return nil, err
	}
	chunks, err := chunker.Bind(w.Circuit, w.Layout, t)
	if err != nil {
		return nil, err
	}

	commits := make([]commitment.Commitment, len(states))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range states {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			commits[i] = w.Committer.Commit(states[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seq, err := commitment.NewSequence(commits)
	if err != nil {
		return nil, err
	}
	return &View{Commitments: commits, Sequence: seq, Chunks: chunks}, nil
}

// Len is the number of chunks.
func (v *View) Len() int { return len(v.Chunks) }

// Input and Final are the commitments at the first and last boundary.
func (v *View) Input() commitment.Commitment { return v.Commitments[0] }

func (v *View) Final() commitment.Commitment { return v.Commitments[len(v.Commitments)-1] }

// FinalState is the state committed at the last boundary.
func (v *View) FinalState() circuit.State { return v.Chunks[len(v.Chunks)-1].OutputState }

// Forge returns a copy of t with one internal wire, first defined at or
// after step, bumped by one so that its defining step no longer holds.
func Forge(c *circuit.Circuit, t circuit.Trace, step int) (circuit.Trace, error) {
	if step < 0 || step >= len(c.Steps) {
		return nil, fmt.Errorf("step %d out of range [0,%d)", step, len(c.Steps))
	}
	seen := make(map[circuit.WireID]bool)
	for j := 0; j < step; j++ {
		for _, w := range c.Steps[j].Wires() {
			seen[w] = true
		}
	}
	var one fr.Element
	one.SetOne()
	out := t.Clone()
	for j := step; j < len(c.Steps); j++ {
		for _, w := range c.Steps[j].Wires() {
			if c.IsInput(w) || seen[w] || int(w) >= len(out) {
				continue
			}
			orig := out[w]
			out[w].Add(&out[w], &one)
			if ok, err := c.Steps[j].Satisfied(out.Get); err == nil && !ok {
				return out, nil
			}
			out[w] = orig
		}
		for _, w := range c.Steps[j].Wires() {
			seen[w] = true
		}
	}
	return nil, fmt.Errorf("%w at or after step %d", ErrNoWire, step)
}
