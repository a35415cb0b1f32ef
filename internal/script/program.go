// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package script

import (
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/Sunereum-Labs/BitVM/internal/circuit"
)

type Opcode byte

const (
	OpPush        Opcode = iota + 1 // push Constants[arg]
	OpLoad                          // push value of wire arg
	OpAdd                           // a b -> a+b
	OpMul                           // a b -> a*b
	OpEqualVerify                   // a b -> fail step arg unless a == b
)

func (o Opcode) String() string {
	switch o {
	case OpPush:
		return "PUSH"
	case OpLoad:
		return "LOAD"
	case OpAdd:
		return "ADD"
	case OpMul:
		return "MUL"
	case OpEqualVerify:
		return "EQUALVERIFY"
	}
	return "INVALID"
}

type Instruction struct {
	Op  Opcode
	Arg uint32
}

// Program is the compiled form of one chunk.
type Program struct {
	Chunk        int
	Instructions []Instruction
	Constants    []fr.Element

	// Inputs and Outputs are the boundary wires the program consumes and
	// produces, without the accumulator. Defined are the wires folded into
	// the accumulator, in order.
	Inputs  []circuit.WireID
	Outputs []circuit.WireID
	Defined []circuit.WireID

	Cost int
}

// Compile emits the program for steps, which start at global index first.
func Compile(chunk, first int, steps []circuit.Step, inputs, outputs, defined []circuit.WireID, m CostModel) *Program {
	e := emitter{consts: make(map[[32]byte]uint32)}
	for i, s := range steps {
		e.step(s, first+i)
	}
	ops := 0
	for _, ins := range e.code {
		ops += m.Op(ins.Op)
	}
	return &Program{
		Chunk:        chunk,
		Instructions: e.code,
		Constants:    e.table,
		Inputs:       inputs,
		Outputs:      outputs,
		Defined:      defined,
		Cost:         m.ChunkCost(ops, len(inputs), len(outputs), len(defined)),
	}
}

type emitter struct {
	code   []Instruction
	table  []fr.Element
	consts map[[32]byte]uint32
}

func (e *emitter) push(v fr.Element) {
	if e.consts == nil {
		e.consts = make(map[[32]byte]uint32)
	}
	k := v.Bytes()
	idx, ok := e.consts[k]
	if !ok {
		idx = uint32(len(e.table))
		e.table = append(e.table, v)
		e.consts[k] = idx
	}
	e.code = append(e.code, Instruction{Op: OpPush, Arg: idx})
}

func (e *emitter) term(t circuit.Term) {
	if t.Wire == circuit.OneWire {
		e.push(t.Coeff)
		return
	}
	e.code = append(e.code, Instruction{Op: OpLoad, Arg: uint32(t.Wire)})
	if !t.Coeff.IsOne() {
		e.push(t.Coeff)
		e.code = append(e.code, Instruction{Op: OpMul})
	}
}

func (e *emitter) linear(le circuit.LinearExpression) {
	if len(le) == 0 {
		e.push(fr.Element{})
		return
	}
	for i, t := range le {
		e.term(t)
		if i > 0 {
			e.code = append(e.code, Instruction{Op: OpAdd})
		}
	}
}

func (e *emitter) step(s circuit.Step, index int) {
	e.linear(s.L)
	e.linear(s.R)
	e.code = append(e.code, Instruction{Op: OpMul})
	e.linear(s.O)
	e.code = append(e.code, Instruction{Op: OpEqualVerify, Arg: uint32(index)})
}
