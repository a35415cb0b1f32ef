// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only
//
// groth16.go

package circuit

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	backend_witness "github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	stdgroth16 "github.com/consensys/gnark/std/recursion/groth16"
	"golang.org/x/crypto/blake2b"
)

// Setup file names.
const (
	ccsFile = "ccs.bin"
	pkFile  = "pk.bin"
	vkFile  = "vk.bin"
)

// Keys bundles a compiled system with its Groth16 keys.
type Keys struct {
	CCS constraint.ConstraintSystem
	PK  groth16.ProvingKey
	VK  groth16.VerifyingKey
}

// Setup runs the (single-party) Groth16 setup for ccs.
func Setup(ccs constraint.ConstraintSystem) (*Keys, error) {
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}
	return &Keys{CCS: ccs, PK: pk, VK: vk}, nil
}

// Prove proves assignment and returns the proof with its public witness. The
// proof is produced with the options that make it verifiable in-circuit.
func (k *Keys) Prove(assignment frontend.Circuit) (groth16.Proof, backend_witness.Witness, error) {
	w, err := frontend.NewWitness(assignment, ecc.BLS12_381.ScalarField())
	if err != nil {
		return nil, nil, fmt.Errorf("new witness: %w", err)
	}
	public, err := w.Public()
	if err != nil {
		return nil, nil, fmt.Errorf("public witness: %w", err)
	}
	field := ecc.BLS12_381.ScalarField()
	proof, err := groth16.Prove(k.CCS, k.PK, w, stdgroth16.GetNativeProverOptions(field, field))
	if err != nil {
		return nil, nil, fmt.Errorf("prove: %w", err)
	}
	return proof, public, nil
}

// Verify checks proof against the public witness.
func (k *Keys) Verify(proof groth16.Proof, public backend_witness.Witness) error {
	field := ecc.BLS12_381.ScalarField()
	if err := groth16.Verify(proof, k.VK, public, stdgroth16.GetNativeVerifierOptions(field, field)); err != nil {
		return fmt.Errorf("verify failed: %w", err)
	}
	return nil
}

// ProofDigest is the blake2b-256 of the proof's native encoding. Claims carry
// it as the damage proof commitment.
func ProofDigest(proof groth16.Proof) ([32]byte, error) {
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return [32]byte{}, fmt.Errorf("encode proof: %w", err)
	}
	return blake2b.Sum256(buf.Bytes()), nil
}

// Save writes the compiled system and both keys under dir.
func (k *Keys) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for name, obj := range map[string]io.WriterTo{ccsFile: k.CCS, pkFile: k.PK, vkFile: k.VK} {
		if err := writeBin(filepath.Join(dir, name), obj); err != nil {
			return err
		}
	}
	return nil
}

// LoadKeys reads what Save wrote.
func LoadKeys(dir string) (*Keys, error) {
	k := &Keys{
		CCS: groth16.NewCS(ecc.BLS12_381),
		PK:  groth16.NewProvingKey(ecc.BLS12_381),
		VK:  groth16.NewVerifyingKey(ecc.BLS12_381),
	}
	for name, obj := range map[string]io.ReaderFrom{ccsFile: k.CCS, pkFile: k.PK, vkFile: k.VK} {
		if err := readBin(filepath.Join(dir, name), obj); err != nil {
			return nil, err
		}
	}
	return k, nil
}

// KeysExist reports whether every setup file is present in dir.
func KeysExist(dir string) bool {
	for _, name := range []string{ccsFile, pkFile, vkFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

func writeBin(path string, obj io.WriterTo) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	if _, err := obj.WriteTo(f); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readBin(path string, obj io.ReaderFrom) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	if _, err := obj.ReadFrom(f); err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return nil
}
