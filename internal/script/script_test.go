// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package script_test

import (
	"context"
	"errors"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sunereum-Labs/BitVM/internal/chunker"
	"github.com/Sunereum-Labs/BitVM/internal/circuit"
	"github.com/Sunereum-Labs/BitVM/internal/script"
)

type fixture struct {
	c      *circuit.Circuit
	layout *chunker.Layout
	chunks []chunker.Chunk
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	c := circuit.NewChain(12)
	m := script.SizeModel()
	l, err := chunker.Partition(c, m.ChunkCost(3*m.StepCost(c.Steps[1]), 2, 2, 3), m)
	require.NoError(t, err)
	chunks, err := chunker.Bind(c, l, circuit.ChainTrace(c, 11))
	require.NoError(t, err)
	return fixture{c: c, layout: l, chunks: chunks}
}

func (f fixture) program(t *testing.T, k int) *script.Program {
	t.Helper()
	p, err := f.layout.Program(f.c, k)
	require.NoError(t, err)
	return p
}

func bump(s circuit.State, w circuit.WireID) circuit.State {
	out := s.Clone()
	var one fr.Element
	one.SetOne()
	v := out[w]
	v.Add(&v, &one)
	out[w] = v
	return out
}

func TestModelFor(t *testing.T) {
	m, err := script.ModelFor(script.MetricSteps)
	require.NoError(t, err)
	assert.Equal(t, script.StepsModel(), m)

	m, err = script.ModelFor("")
	require.NoError(t, err)
	assert.Equal(t, script.MetricSize, m.Metric)

	_, err = script.ModelFor("gas")
	assert.Error(t, err)
}

func TestCompile_CostMatchesInstructions(t *testing.T) {
	c := circuit.NewChain(3)
	m := script.StepsModel()
	p := script.Compile(0, 0, c.Steps, []circuit.WireID{1}, []circuit.WireID{1}, []circuit.WireID{2, 3, 4}, m)

	// LOAD PUSH ADD LOAD MUL LOAD EQUALVERIFY per step
	require.Len(t, p.Instructions, 21)
	assert.Equal(t, script.OpEqualVerify, p.Instructions[6].Op)
	assert.Equal(t, uint32(2), p.Instructions[20].Arg)
	assert.Equal(t, m.ChunkCost(21, 1, 1, 3), p.Cost)
	assert.Len(t, p.Constants, 3)
	assert.Equal(t, "MUL", script.OpMul.String())
}

func TestInterpreter_AcceptsHonestChunk(t *testing.T) {
	f := newFixture(t)
	ch := f.chunks[1]
	v, err := script.NewInterpreter().Execute(context.Background(), f.program(t, 1), ch.InputState, ch.Witness, ch.OutputState, ch.MaxScriptCost)
	require.NoError(t, err)
	assert.True(t, v.Accept, v.Reason)
	assert.Equal(t, -1, v.FailedStep)
	assert.Equal(t, ch.Cost, v.Cost)
}

func TestInterpreter_Rejects(t *testing.T) {
	f := newFixture(t)
	ch := f.chunks[1]
	p := f.program(t, 1)
	// chunk 1 covers steps 3..5; x[4] (wire 5) is local
	local := circuit.WireID(5)
	require.Contains(t, ch.Witness, local)

	cases := []struct {
		name    string
		in, wit circuit.State
		out     circuit.State
		bound   int
		reason  string
		step    int
	}{
		{"broken witness", ch.InputState, bump(ch.Witness, local), ch.OutputState, ch.MaxScriptCost, "constraint 3", 3},
		{"forged accumulator", ch.InputState, ch.Witness, bump(ch.OutputState, circuit.AccWire), ch.MaxScriptCost, "accumulator", -1},
		{"over bound", ch.InputState, ch.Witness, ch.OutputState, ch.Cost - 1, "exceeds bound", -1},
		{"missing witness", ch.InputState, circuit.State{}, ch.OutputState, ch.MaxScriptCost, "unassigned", -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := script.NewInterpreter().Execute(context.Background(), p, tc.in, tc.wit, tc.out, tc.bound)
			require.NoError(t, err)
			assert.False(t, v.Accept)
			assert.Contains(t, v.Reason, tc.reason)
			assert.Equal(t, tc.step, v.FailedStep)
		})
	}
}

func TestInterpreter_RejectsMisshapenState(t *testing.T) {
	f := newFixture(t)
	ch := f.chunks[1]
	p := f.program(t, 1)

	noAcc := ch.InputState.Clone()
	delete(noAcc, circuit.AccWire)
	v, err := script.NewInterpreter().Execute(context.Background(), p, noAcc, ch.Witness, ch.OutputState, ch.MaxScriptCost)
	require.NoError(t, err)
	assert.Contains(t, v.Reason, "missing accumulator")

	extra := ch.OutputState.Clone()
	extra[circuit.WireID(6)] = fr.Element{}
	v, err = script.NewInterpreter().Execute(context.Background(), p, ch.InputState, ch.Witness, extra, ch.MaxScriptCost)
	require.NoError(t, err)
	assert.False(t, v.Accept)
	assert.Contains(t, v.Reason, "output state")
}

func TestInterpreter_MalformedProgram(t *testing.T) {
	f := newFixture(t)
	ch := f.chunks[0]
	p := f.program(t, 0)
	p.Instructions = append([]script.Instruction{{Op: script.OpAdd}}, p.Instructions...)

	_, err := script.NewInterpreter().Execute(context.Background(), p, ch.InputState, ch.Witness, ch.OutputState, ch.MaxScriptCost)
	assert.True(t, errors.Is(err, script.ErrMalformedProgram))
}

func TestInterpreter_ContextCanceled(t *testing.T) {
	f := newFixture(t)
	ch := f.chunks[0]
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := script.NewInterpreter().Execute(ctx, f.program(t, 0), ch.InputState, ch.Witness, ch.OutputState, ch.MaxScriptCost)
	assert.ErrorIs(t, err, context.Canceled)
}
