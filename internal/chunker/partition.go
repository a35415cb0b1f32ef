// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

// Package chunker splits a circuit into contiguous, cost-bounded chunks and
// binds a trace to them.
package chunker

import (
	"errors"
	"fmt"

	"github.com/Sunereum-Labs/BitVM/internal/circuit"
	"github.com/Sunereum-Labs/BitVM/internal/script"
)

var (
	// ErrStepExceedsBound: one step alone costs more than the bound. No
	// partition exists; recompile with a larger bound.
	ErrStepExceedsBound = errors.New("chunker: step exceeds bound")
	ErrInvalidBound     = errors.New("chunker: bound must be positive")
	ErrLayoutMismatch   = errors.New("chunker: layout does not belong to circuit")
)

// ChunkingError carries the details of a failed partition or binding. Step
// is -1 when the failure is not tied to one step.
type ChunkingError struct {
	Kind  error
	Step  int
	Cost  int
	Bound int
}

func (e *ChunkingError) Error() string {
	if e.Step < 0 {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: step %d costs %d, bound %d", e.Kind, e.Step, e.Cost, e.Bound)
}

func (e *ChunkingError) Unwrap() error { return e.Kind }

// Span is the step range [Start, End) of one chunk.
type Span struct {
	Index int `json:"index"`
	Start int `json:"start"`
	End   int `json:"end"`
	Cost  int `json:"cost"`
}

// Layout is the deterministic partition of a circuit under a bound. Two
// parties holding the same circuit, bound and cost model derive equal
// layouts.
type Layout struct {
	Bound         int              `json:"bound"`
	Model         script.CostModel `json:"model"`
	CircuitDigest [32]byte         `json:"circuit_digest"`
	Spans         []Span           `json:"spans"`

	// Boundaries[k] are the wires crossing the input boundary of chunk k;
	// the last entry is the final boundary.
	Boundaries [][]circuit.WireID `json:"-"`
	// Defined[k] are the wires folded into the accumulator by chunk k.
	Defined [][]circuit.WireID `json:"-"`
}

// Len is the chunk count.
func (l *Layout) Len() int { return len(l.Spans) }

// MaxCost is the largest realized chunk cost.
func (l *Layout) MaxCost() int {
	m := 0
	for _, s := range l.Spans {
		if s.Cost > m {
			m = s.Cost
		}
	}
	return m
}

// Partition walks the steps in order and closes a chunk whenever the next
// step would push the projected cost over bound.
func Partition(c *circuit.Circuit, bound int, m script.CostModel) (*Layout, error) {
	if bound <= 0 {
		return nil, &ChunkingError{Kind: ErrInvalidBound, Step: -1, Bound: bound}
	}
	if err := c.Validate(); err != nil {
		return nil, &ChunkingError{Kind: err, Step: -1, Bound: bound}
	}
	lv := analyze(c)
	n := len(c.Steps)

	cost := func(start, end, ops, defs int) int {
		return m.ChunkCost(ops, lv.liveCount[start], lv.liveCount[end], defs)
	}

	var spans []Span
	start, ops, defs := 0, 0, 0
	for j := 0; j < n; j++ {
		stepOps, stepDefs := m.StepCost(c.Steps[j]), len(lv.definedAt[j])
		if cost(start, j+1, ops+stepOps, defs+stepDefs) <= bound {
			ops += stepOps
			defs += stepDefs
			continue
		}
		if j > start {
			spans = append(spans, Span{Index: len(spans), Start: start, End: j, Cost: cost(start, j, ops, defs)})
			start, ops, defs = j, 0, 0
			if alone := cost(j, j+1, stepOps, stepDefs); alone <= bound {
				ops, defs = stepOps, stepDefs
				continue
			}
		}
		return nil, &ChunkingError{Kind: ErrStepExceedsBound, Step: j, Cost: cost(j, j+1, stepOps, stepDefs), Bound: bound}
	}
	spans = append(spans, Span{Index: len(spans), Start: start, End: n, Cost: cost(start, n, ops, defs)})

	positions := make([]int, len(spans)+1)
	defined := make([][]circuit.WireID, len(spans))
	for i, s := range spans {
		positions[i] = s.Start
		for j := s.Start; j < s.End; j++ {
			defined[i] = append(defined[i], lv.definedAt[j]...)
		}
	}
	positions[len(spans)] = n

	return &Layout{
		Bound:         bound,
		Model:         m,
		CircuitDigest: c.Digest(),
		Spans:         spans,
		Boundaries:    lv.boundaries(positions),
		Defined:       defined,
	}, nil
}

// Program compiles chunk i of c.
func (l *Layout) Program(c *circuit.Circuit, i int) (*script.Program, error) {
	if i < 0 || i >= len(l.Spans) {
		return nil, fmt.Errorf("chunk %d out of range [0,%d)", i, len(l.Spans))
	}
	s := l.Spans[i]
	if s.End > len(c.Steps) {
		return nil, ErrLayoutMismatch
	}
	return script.Compile(i, s.Start, c.Steps[s.Start:s.End], l.Boundaries[i], l.Boundaries[i+1], l.Defined[i], l.Model), nil
}
