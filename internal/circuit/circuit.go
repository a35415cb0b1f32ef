// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

// Package circuit holds the constraint representation the chunker and the
// dispute game operate on, together with the payout circuit and its Groth16
// pipeline.
package circuit

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"golang.org/x/crypto/blake2b"
)

// WireID identifies a wire of the constraint system. Wire 0 is the constant
// one; public inputs follow, then secret inputs, then internal wires.
type WireID uint32

const (
	// OneWire always carries the field element 1.
	OneWire WireID = 0

	// AccWire is a pseudo-wire carried by boundary states. It holds the
	// running MiMC accumulator over every wire defined before the boundary.
	AccWire WireID = ^WireID(0)
)

// Term is coeff * wire.
type Term struct {
	Wire  WireID
	Coeff fr.Element
}

// LinearExpression is a sum of terms.
type LinearExpression []Term

// Step is one rank-1 constraint L * R == O, the indivisible unit of
// computation.
type Step struct {
	L, R, O LinearExpression
}

// Circuit is an ordered sequence of steps over a fixed wire space.
//
// Outputs are public wires whose value the prover claims rather than takes
// from the oracle. They are settled by the computation, not agreed up front.
type Circuit struct {
	NbPublic   int // includes OneWire
	NbSecret   int
	NbInternal int
	Outputs    []WireID
	Steps      []Step
}

var (
	ErrUnassigned     = errors.New("circuit: unassigned wire")
	ErrTraceLength    = errors.New("circuit: trace length does not match wire count")
	ErrUnsatisfied    = errors.New("circuit: constraint not satisfied")
	ErrEmptyCircuit   = errors.New("circuit: no steps")
	ErrWireOutOfRange = errors.New("circuit: wire out of range")
	ErrBadOutput      = errors.New("circuit: output is not a public wire")
)

// NbWires is the size of the wire space.
func (c *Circuit) NbWires() int { return c.NbPublic + c.NbSecret + c.NbInternal }

// IsInput reports whether w is a public or secret input wire.
func (c *Circuit) IsInput(w WireID) bool { return int(w) < c.NbPublic+c.NbSecret }

// IsPublic reports whether w is a public wire other than OneWire.
func (c *Circuit) IsPublic(w WireID) bool { return w != OneWire && int(w) < c.NbPublic }

// IsOutput reports whether w is a claimed output.
func (c *Circuit) IsOutput(w WireID) bool {
	for _, o := range c.Outputs {
		if o == w {
			return true
		}
	}
	return false
}

// Validate checks that every term references a wire inside the wire space.
func (c *Circuit) Validate() error {
	if len(c.Steps) == 0 {
		return ErrEmptyCircuit
	}
	for _, o := range c.Outputs {
		if !c.IsPublic(o) {
			return fmt.Errorf("wire %d: %w", o, ErrBadOutput)
		}
	}
	n := WireID(c.NbWires())
	for i, s := range c.Steps {
		for _, le := range [3]LinearExpression{s.L, s.R, s.O} {
			for _, t := range le {
				if t.Wire >= n {
					return fmt.Errorf("step %d: wire %d: %w", i, t.Wire, ErrWireOutOfRange)
				}
			}
		}
	}
	return nil
}

// Digest binds the circuit structure. Two parties holding circuits with equal
// digests chunk identically.
func (c *Circuit) Digest() [32]byte {
	h, _ := blake2b.New256(nil)
	var buf [4]byte
	writeU32 := func(v uint32) {
		binary.BigEndian.PutUint32(buf[:], v)
		h.Write(buf[:])
	}
	h.Write([]byte("bitvm2:circuit:v1"))
	writeU32(uint32(c.NbPublic))
	writeU32(uint32(c.NbSecret))
	writeU32(uint32(c.NbInternal))
	writeU32(uint32(len(c.Outputs)))
	for _, o := range c.Outputs {
		writeU32(uint32(o))
	}
	writeU32(uint32(len(c.Steps)))
	for _, s := range c.Steps {
		for _, le := range [3]LinearExpression{s.L, s.R, s.O} {
			writeU32(uint32(len(le)))
			for _, t := range le {
				writeU32(uint32(t.Wire))
				b := t.Coeff.Bytes()
				h.Write(b[:])
			}
		}
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Wires returns the distinct wires referenced by the step, sorted, OneWire
// excluded.
func (s Step) Wires() []WireID {
	seen := make(map[WireID]struct{}, len(s.L)+len(s.R)+len(s.O))
	for _, le := range [3]LinearExpression{s.L, s.R, s.O} {
		for _, t := range le {
			if t.Wire != OneWire {
				seen[t.Wire] = struct{}{}
			}
		}
	}
	out := make([]WireID, 0, len(seen))
	for w := range seen {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Eval evaluates the expression against an assignment.
func (le LinearExpression) Eval(get func(WireID) (fr.Element, bool)) (fr.Element, error) {
	var acc fr.Element
	for _, t := range le {
		var v fr.Element
		if t.Wire == OneWire {
			v.SetOne()
		} else {
			x, ok := get(t.Wire)
			if !ok {
				return fr.Element{}, fmt.Errorf("wire %d: %w", t.Wire, ErrUnassigned)
			}
			v = x
		}
		v.Mul(&v, &t.Coeff)
		acc.Add(&acc, &v)
	}
	return acc, nil
}

// Satisfied evaluates L*R == O.
func (s Step) Satisfied(get func(WireID) (fr.Element, bool)) (bool, error) {
	l, err := s.L.Eval(get)
	if err != nil {
		return false, err
	}
	r, err := s.R.Eval(get)
	if err != nil {
		return false, err
	}
	o, err := s.O.Eval(get)
	if err != nil {
		return false, err
	}
	l.Mul(&l, &r)
	return l.Equal(&o), nil
}

// Trace is a full assignment indexed by wire.
type Trace []fr.Element

// Get implements the lookup used by Eval.
func (t Trace) Get(w WireID) (fr.Element, bool) {
	if int(w) >= len(t) {
		return fr.Element{}, false
	}
	return t[w], true
}

// Check verifies every step of c against the trace and returns the index of
// the first unsatisfied step wrapped in ErrUnsatisfied.
func (t Trace) Check(c *Circuit) error {
	if len(t) != c.NbWires() {
		return fmt.Errorf("%w: have %d, want %d", ErrTraceLength, len(t), c.NbWires())
	}
	for i, s := range c.Steps {
		ok, err := s.Satisfied(t.Get)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if !ok {
			return fmt.Errorf("step %d: %w", i, ErrUnsatisfied)
		}
	}
	return nil
}

// Project returns the sub-assignment over wires.
func (t Trace) Project(wires []WireID) State {
	s := make(State, len(wires))
	for _, w := range wires {
		if int(w) < len(t) {
			s[w] = t[w]
		}
	}
	return s
}

// Clone copies the trace.
func (t Trace) Clone() Trace {
	out := make(Trace, len(t))
	copy(out, t)
	return out
}
