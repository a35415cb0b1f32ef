// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only
//
// export.go

package circuit

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark/backend/groth16"
	groth16bls "github.com/consensys/gnark/backend/groth16/bls12-381"
	backend_witness "github.com/consensys/gnark/backend/witness"
)

// ---------- JSON shapes ----------

// VKJSON is the verifying key with every point compressed (IETF) and hex
// encoded.
type VKJSON struct {
	NPublic int      `json:"nPublic"`
	Alpha   string   `json:"vkAlpha"` // G1
	Beta    string   `json:"vkBeta"`  // G2
	Gamma   string   `json:"vkGamma"` // G2
	Delta   string   `json:"vkDelta"` // G2
	IC      []string `json:"vkIC"`    // G1, len = nPublic+1+nCommitments
}

type ProofJSON struct {
	PiA           string   `json:"piA"` // G1
	PiB           string   `json:"piB"` // G2
	PiC           string   `json:"piC"` // G1
	Commitments   []string `json:"commitments,omitempty"`
	CommitmentPok string   `json:"commitmentPok,omitempty"`
}

// PublicJSON holds the public inputs as decimal strings, in witness order.
type PublicJSON struct {
	Inputs []string `json:"inputs"`
}

// DamageProof is the exported form of a damage proof, what fund custody
// needs to check a claim's payout without this module.
type DamageProof struct {
	VK     VKJSON     `json:"vk"`
	Proof  ProofJSON  `json:"proof"`
	Public PublicJSON `json:"public"`
	Digest string     `json:"digest"`
}

func exportProof(proof groth16.Proof) (ProofJSON, error) {
	p, ok := proof.(*groth16bls.Proof)
	if !ok {
		return ProofJSON{}, fmt.Errorf("unexpected proof type (need *groth16/bls12-381.Proof): %T", proof)
	}
	out := ProofJSON{
		PiA: g1Hex(p.Ar),
		PiB: g2Hex(p.Bs),
		PiC: g1Hex(p.Krs),
	}
	if len(p.Commitments) > 0 {
		out.Commitments = make([]string, len(p.Commitments))
		for i := range p.Commitments {
			out.Commitments[i] = g1Hex(p.Commitments[i])
		}
		out.CommitmentPok = g1Hex(p.CommitmentPok)
	}
	return out, nil
}

func exportVK(vk groth16.VerifyingKey, nPublic int) (VKJSON, error) {
	v, ok := vk.(*groth16bls.VerifyingKey)
	if !ok {
		return VKJSON{}, fmt.Errorf("unexpected vk type (need *groth16/bls12-381.VerifyingKey): %T", vk)
	}
	want := nPublic + 1 + len(v.CommitmentKeys)
	if len(v.G1.K) != want {
		return VKJSON{}, fmt.Errorf("vk IC length %d, expected %d for %d public inputs", len(v.G1.K), want, nPublic)
	}
	ic := make([]string, len(v.G1.K))
	for i := range v.G1.K {
		ic[i] = g1Hex(v.G1.K[i])
	}
	return VKJSON{
		NPublic: nPublic,
		Alpha:   g1Hex(v.G1.Alpha),
		Beta:    g2Hex(v.G2.Beta),
		Gamma:   g2Hex(v.G2.Gamma),
		Delta:   g2Hex(v.G2.Delta),
		IC:      ic,
	}, nil
}

// exportPublic reads the public vector exactly in gnark's witness order.
func exportPublic(public backend_witness.Witness) (PublicJSON, error) {
	vec, ok := public.Vector().(fr.Vector)
	if !ok {
		return PublicJSON{}, fmt.Errorf("unexpected public witness vector: %T", public.Vector())
	}
	out := PublicJSON{Inputs: make([]string, len(vec))}
	for i := range vec {
		out.Inputs[i] = vec[i].String()
	}
	return out, nil
}

// ExportDamageProof converts a proof and its public witness for export.
func (k *Keys) ExportDamageProof(proof groth16.Proof, public backend_witness.Witness) (*DamageProof, error) {
	pub, err := exportPublic(public)
	if err != nil {
		return nil, err
	}
	vkj, err := exportVK(k.VK, len(pub.Inputs))
	if err != nil {
		return nil, err
	}
	pj, err := exportProof(proof)
	if err != nil {
		return nil, err
	}
	digest, err := ProofDigest(proof)
	if err != nil {
		return nil, err
	}
	return &DamageProof{VK: vkj, Proof: pj, Public: pub, Digest: hex.EncodeToString(digest[:])}, nil
}

// WriteJSON writes vk.json, proof.json and public.json under dir.
func (d *DamageProof) WriteJSON(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for name, val := range map[string]any{"vk.json": d.VK, "proof.json": d.Proof, "public.json": d.Public} {
		if err := writeJSON(filepath.Join(dir, name), val); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, val any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(val); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ---------- compression helpers ----------

func g1Hex(p bls12381.G1Affine) string {
	b := p.Bytes() // 48 bytes compressed
	return hex.EncodeToString(b[:])
}

func g2Hex(p bls12381.G2Affine) string {
	b := p.Bytes() // 96 bytes compressed
	return hex.EncodeToString(b[:])
}
