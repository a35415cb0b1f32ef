// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package script

import (
	"context"
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/Sunereum-Labs/BitVM/internal/circuit"
)

// ErrMalformedProgram is returned when a program cannot be executed at all.
// It signals a compiler bug, not a dishonest party.
var ErrMalformedProgram = errors.New("script: malformed program")

// Verdict is the scripting environment's answer for one program run.
type Verdict struct {
	Accept     bool
	Cost       int
	FailedStep int // -1 unless a constraint failed
	Reason     string
}

// Env executes a chunk program against revealed values under a resource
// bound.
type Env interface {
	Execute(ctx context.Context, p *Program, input, witness, output circuit.State, bound int) (Verdict, error)
}

// Interpreter is the in-process reference Env.
type Interpreter struct{}

func NewInterpreter() *Interpreter { return &Interpreter{} }

func reject(p *Program, step int, format string, args ...any) Verdict {
	return Verdict{Cost: p.Cost, FailedStep: step, Reason: fmt.Sprintf(format, args...)}
}

func (in *Interpreter) Execute(ctx context.Context, p *Program, input, witness, output circuit.State, bound int) (Verdict, error) {
	if p.Cost > bound {
		return reject(p, -1, "cost %d exceeds bound %d", p.Cost, bound), nil
	}
	if msg := shape(input, p.Inputs); msg != "" {
		return reject(p, -1, "input state: %s", msg), nil
	}
	if msg := shape(output, p.Outputs); msg != "" {
		return reject(p, -1, "output state: %s", msg), nil
	}

	values := input.Clone()
	delete(values, circuit.AccWire)
	if err := values.Merge(witness); err != nil {
		return reject(p, -1, "witness: %v", err), nil
	}
	out := output.Clone()
	delete(out, circuit.AccWire)
	if err := values.Merge(out); err != nil {
		return reject(p, -1, "output: %v", err), nil
	}

	stack := make([]fr.Element, 0, 16)
	pop := func() (fr.Element, bool) {
		if len(stack) == 0 {
			return fr.Element{}, false
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, true
	}

	for pc, ins := range p.Instructions {
		if pc%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return Verdict{}, err
			}
		}
		switch ins.Op {
		case OpPush:
			if int(ins.Arg) >= len(p.Constants) {
				return Verdict{}, fmt.Errorf("%w: constant %d out of range at pc %d", ErrMalformedProgram, ins.Arg, pc)
			}
			stack = append(stack, p.Constants[ins.Arg])
		case OpLoad:
			v, ok := values[circuit.WireID(ins.Arg)]
			if !ok {
				return reject(p, -1, "unassigned wire %d", ins.Arg), nil
			}
			stack = append(stack, v)
		case OpAdd, OpMul, OpEqualVerify:
			b, okb := pop()
			a, oka := pop()
			if !oka || !okb {
				return Verdict{}, fmt.Errorf("%w: stack underflow at pc %d", ErrMalformedProgram, pc)
			}
			switch ins.Op {
			case OpAdd:
				a.Add(&a, &b)
				stack = append(stack, a)
			case OpMul:
				a.Mul(&a, &b)
				stack = append(stack, a)
			default:
				if !a.Equal(&b) {
					return reject(p, int(ins.Arg), "constraint %d not satisfied", ins.Arg), nil
				}
			}
		default:
			return Verdict{}, fmt.Errorf("%w: opcode %d at pc %d", ErrMalformedProgram, ins.Op, pc)
		}
	}
	if len(stack) != 0 {
		return Verdict{}, fmt.Errorf("%w: %d values left on stack", ErrMalformedProgram, len(stack))
	}

	folded := make([]fr.Element, 0, len(p.Defined))
	for _, w := range p.Defined {
		v, ok := values[w]
		if !ok {
			return reject(p, -1, "unassigned wire %d", w), nil
		}
		folded = append(folded, v)
	}
	want := circuit.Accumulate(input[circuit.AccWire], folded)
	if got := output[circuit.AccWire]; !got.Equal(&want) {
		return reject(p, -1, "accumulator mismatch"), nil
	}

	return Verdict{Accept: true, Cost: p.Cost, FailedStep: -1}, nil
}

// shape reports how s differs from exactly wires plus the accumulator.
func shape(s circuit.State, wires []circuit.WireID) string {
	if _, ok := s[circuit.AccWire]; !ok {
		return "missing accumulator"
	}
	for _, w := range wires {
		if _, ok := s[w]; !ok {
			return fmt.Sprintf("missing wire %d", w)
		}
	}
	if len(s) != len(wires)+1 {
		return fmt.Sprintf("%d wires, want %d", len(s), len(wires)+1)
	}
	return ""
}
