// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package chunker

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/Sunereum-Labs/BitVM/internal/circuit"
)

// Chunk is one span bound to concrete values. OutputState of chunk k equals
// InputState of chunk k+1.
type Chunk struct {
	Index         int
	Start, End    int
	InputState    circuit.State
	OutputState   circuit.State
	Witness       circuit.State
	MaxScriptCost int
	Cost          int
}

func checkBinding(c *circuit.Circuit, l *Layout, t circuit.Trace) error {
	if l.CircuitDigest != c.Digest() {
		return &ChunkingError{Kind: ErrLayoutMismatch, Step: -1, Bound: l.Bound}
	}
	if len(t) != c.NbWires() {
		return &ChunkingError{Kind: fmt.Errorf("%w: have %d, want %d", circuit.ErrTraceLength, len(t), c.NbWires()), Step: -1, Bound: l.Bound}
	}
	return nil
}

// BoundaryStates returns the n+1 boundary states of t under l, accumulator
// included.
func BoundaryStates(c *circuit.Circuit, l *Layout, t circuit.Trace) ([]circuit.State, error) {
	if err := checkBinding(c, l, t); err != nil {
		return nil, err
	}
	out := make([]circuit.State, len(l.Boundaries))
	var acc fr.Element
	for k, wires := range l.Boundaries {
		if k > 0 {
			vals := make([]fr.Element, len(l.Defined[k-1]))
			for i, w := range l.Defined[k-1] {
				vals[i] = t[w]
			}
			acc = circuit.Accumulate(acc, vals)
		}
		s := t.Project(wires)
		s[circuit.AccWire] = acc
		out[k] = s
	}
	return out, nil
}

// Bind attaches the values of t to every chunk of l.
func Bind(c *circuit.Circuit, l *Layout, t circuit.Trace) ([]Chunk, error) {
	states, err := BoundaryStates(c, l, t)
	if err != nil {
		return nil, err
	}
	chunks := make([]Chunk, len(l.Spans))
	for k, sp := range l.Spans {
		witness := make(circuit.State)
		for j := sp.Start; j < sp.End; j++ {
			for _, w := range c.Steps[j].Wires() {
				if _, in := states[k][w]; in {
					continue
				}
				if _, out := states[k+1][w]; out {
					continue
				}
				witness[w] = t[w]
			}
		}
		chunks[k] = Chunk{
			Index:         k,
			Start:         sp.Start,
			End:           sp.End,
			InputState:    states[k],
			OutputState:   states[k+1],
			Witness:       witness,
			MaxScriptCost: l.Bound,
			Cost:          sp.Cost,
		}
	}
	return chunks, nil
}

// Reconstruct unions the values carried by chunks, accumulator excluded. A
// wire carried with two different values is an error.
func Reconstruct(chunks []Chunk) (circuit.State, error) {
	out := make(circuit.State)
	for _, ch := range chunks {
		for _, s := range []circuit.State{ch.InputState, ch.Witness, ch.OutputState} {
			for w, v := range s {
				if w == circuit.AccWire {
					continue
				}
				if cur, ok := out[w]; ok && !cur.Equal(&v) {
					return nil, fmt.Errorf("chunk %d: conflicting value for wire %d", ch.Index, w)
				}
				out[w] = v
			}
		}
	}
	return out, nil
}

// Covered is the part of t that chunks must carry: oracle-supplied public
// wires and every wire referenced by a step.
func Covered(c *circuit.Circuit, t circuit.Trace) circuit.State {
	lv := analyze(c)
	out := make(circuit.State)
	for i := 0; i < len(t) && i < c.NbWires(); i++ {
		w := circuit.WireID(i)
		if lv.referenced(c, w) {
			out[w] = t[w]
		}
	}
	return out
}
