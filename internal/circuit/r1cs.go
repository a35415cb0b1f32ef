// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package circuit

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/constraint"
	cs "github.com/consensys/gnark/constraint/bls12-381"
	"github.com/consensys/gnark/frontend"
)

// FromR1CS converts a compiled BLS12-381 R1CS into a Circuit. Step order is
// the constraint order of the system. outputs names the public wires the
// prover claims.
func FromR1CS(ccs constraint.ConstraintSystem, outputs ...WireID) (*Circuit, error) {
	r, ok := ccs.(*cs.R1CS)
	if !ok {
		return nil, fmt.Errorf("unexpected constraint system type (need *bls12-381.R1CS): %T", ccs)
	}
	internal, secret, public := r.GetNbVariables()

	convert := func(le constraint.LinearExpression) LinearExpression {
		out := make(LinearExpression, 0, len(le))
		for _, t := range le {
			out = append(out, Term{Wire: WireID(t.VID), Coeff: r.Coefficients[t.CID]})
		}
		return out
	}

	rows := r.GetR1Cs()
	c := &Circuit{
		NbPublic:   public,
		NbSecret:   secret,
		NbInternal: internal,
		Outputs:    outputs,
		Steps:      make([]Step, len(rows)),
	}
	for i, row := range rows {
		c.Steps[i] = Step{L: convert(row.L), R: convert(row.R), O: convert(row.O)}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Solve runs the gnark solver on assignment and returns the full wire trace.
func Solve(ccs constraint.ConstraintSystem, assignment frontend.Circuit) (Trace, error) {
	w, err := frontend.NewWitness(assignment, ecc.BLS12_381.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("new witness: %w", err)
	}
	sol, err := ccs.Solve(w)
	if err != nil {
		return nil, fmt.Errorf("solve: %w", err)
	}
	s, ok := sol.(*cs.R1CSSolution)
	if !ok {
		return nil, fmt.Errorf("unexpected solution type: %T", sol)
	}
	out := make(Trace, len(s.W))
	copy(out, s.W)
	return out, nil
}
