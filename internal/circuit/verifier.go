// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package circuit

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	backend_witness "github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/std/algebra/emulated/sw_bls12381"
	stdgroth16 "github.com/consensys/gnark/std/recursion/groth16"
)

// VerifierCircuit is the Groth16 verifier expressed as constraints. Its R1CS
// is the computation that gets chunked and disputed.
type VerifierCircuit struct {
	Proof        stdgroth16.Proof[sw_bls12381.G1Affine, sw_bls12381.G2Affine]
	VerifyingKey stdgroth16.VerifyingKey[sw_bls12381.G1Affine, sw_bls12381.G2Affine, sw_bls12381.GTEl]
	Public       stdgroth16.Witness[sw_bls12381.ScalarField] `gnark:",public"`
}

func (c *VerifierCircuit) Define(api frontend.API) error {
	v, err := stdgroth16.NewVerifier[sw_bls12381.ScalarField, sw_bls12381.G1Affine, sw_bls12381.G2Affine, sw_bls12381.GTEl](api)
	if err != nil {
		return fmt.Errorf("new verifier: %w", err)
	}
	return v.AssertProof(c.VerifyingKey, c.Proof, c.Public)
}

// PlaceholderVerifier sizes a VerifierCircuit for proofs of inner.
func PlaceholderVerifier(inner constraint.ConstraintSystem) *VerifierCircuit {
	return &VerifierCircuit{
		Proof:        stdgroth16.PlaceholderProof[sw_bls12381.G1Affine, sw_bls12381.G2Affine](inner),
		VerifyingKey: stdgroth16.PlaceholderVerifyingKey[sw_bls12381.G1Affine, sw_bls12381.G2Affine, sw_bls12381.GTEl](inner),
		Public:       stdgroth16.PlaceholderWitness[sw_bls12381.ScalarField](inner),
	}
}

// CompileVerifier compiles the verifier for proofs of inner.
func CompileVerifier(inner constraint.ConstraintSystem) (constraint.ConstraintSystem, error) {
	ccs, err := frontend.Compile(ecc.BLS12_381.ScalarField(), r1cs.NewBuilder, PlaceholderVerifier(inner))
	if err != nil {
		return nil, fmt.Errorf("compile verifier: %w", err)
	}
	return ccs, nil
}

// VerifierAssignment fills a VerifierCircuit with a concrete proof.
func VerifierAssignment(proof groth16.Proof, vk groth16.VerifyingKey, public backend_witness.Witness) (*VerifierCircuit, error) {
	p, err := stdgroth16.ValueOfProof[sw_bls12381.G1Affine, sw_bls12381.G2Affine](proof)
	if err != nil {
		return nil, fmt.Errorf("proof value: %w", err)
	}
	k, err := stdgroth16.ValueOfVerifyingKey[sw_bls12381.G1Affine, sw_bls12381.G2Affine, sw_bls12381.GTEl](vk)
	if err != nil {
		return nil, fmt.Errorf("vk value: %w", err)
	}
	w, err := stdgroth16.ValueOfWitness[sw_bls12381.ScalarField](public)
	if err != nil {
		return nil, fmt.Errorf("witness value: %w", err)
	}
	return &VerifierCircuit{Proof: p, VerifyingKey: k, Public: w}, nil
}

// SolveVerifier assigns a concrete inner proof to outer, the compiled
// verifier, and returns the full trace of the verification.
func SolveVerifier(outer constraint.ConstraintSystem, proof groth16.Proof, vk groth16.VerifyingKey, public backend_witness.Witness) (Trace, error) {
	a, err := VerifierAssignment(proof, vk, public)
	if err != nil {
		return nil, err
	}
	return Solve(outer, a)
}
