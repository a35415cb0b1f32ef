// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

// Package script compiles constraint steps into bounded stack programs and
// runs them. The Env interface is the seam to the external scripting
// environment that adjudicates a disputed chunk.
package script

import (
	"fmt"

	"github.com/Sunereum-Labs/BitVM/internal/circuit"
)

// Metric selects what the chunk bound measures.
type Metric string

const (
	MetricSize  Metric = "size"  // encoded script bytes
	MetricSteps Metric = "steps" // executed operations
)

// CostModel prices every opcode and the per-chunk state handling. Both the
// chunker's projection and the compiled program's realized cost come from it.
type CostModel struct {
	Metric      Metric `json:"metric" yaml:"metric"`
	Push        int    `json:"push" yaml:"push"`
	Load        int    `json:"load" yaml:"load"`
	Add         int    `json:"add" yaml:"add"`
	Mul         int    `json:"mul" yaml:"mul"`
	EqualVerify int    `json:"equal_verify" yaml:"equal_verify"`
	// StateWire is charged once per input and output wire of a chunk,
	// the accumulator included.
	StateWire int `json:"state_wire" yaml:"state_wire"`
	// HashWire is charged per wire folded into the accumulator.
	HashWire int `json:"hash_wire" yaml:"hash_wire"`
	Overhead int `json:"overhead" yaml:"overhead"`
}

// SizeModel approximates script bytes for 255-bit field arithmetic.
func SizeModel() CostModel {
	return CostModel{
		Metric:      MetricSize,
		Push:        34,
		Load:        3,
		Add:         120,
		Mul:         2_500,
		EqualVerify: 90,
		StateWire:   70,
		HashWire:    350,
		Overhead:    200,
	}
}

// StepsModel counts operations.
func StepsModel() CostModel {
	return CostModel{
		Metric:      MetricSteps,
		Push:        1,
		Load:        1,
		Add:         1,
		Mul:         1,
		EqualVerify: 1,
		StateWire:   2,
		HashWire:    4,
		Overhead:    4,
	}
}

// ModelFor returns the default model for m.
func ModelFor(m Metric) (CostModel, error) {
	switch m {
	case MetricSize, "":
		return SizeModel(), nil
	case MetricSteps:
		return StepsModel(), nil
	default:
		return CostModel{}, fmt.Errorf("unknown cost metric %q", m)
	}
}

// Op is the price of a single opcode.
func (m CostModel) Op(op Opcode) int {
	switch op {
	case OpPush:
		return m.Push
	case OpLoad:
		return m.Load
	case OpAdd:
		return m.Add
	case OpMul:
		return m.Mul
	case OpEqualVerify:
		return m.EqualVerify
	}
	return 0
}

// StepCost is the price of the instructions emitted for s.
func (m CostModel) StepCost(s circuit.Step) int {
	var e emitter
	e.step(s, 0)
	cost := 0
	for _, ins := range e.code {
		cost += m.Op(ins.Op)
	}
	return cost
}

// ChunkCost adds the fixed and state-dependent charges to the instruction
// cost of a chunk. nIn and nOut count state wires without the accumulator.
func (m CostModel) ChunkCost(ops, nIn, nOut, nDefined int) int {
	return ops + m.StateWire*(nIn+nOut+2) + m.HashWire*nDefined + m.Overhead
}
