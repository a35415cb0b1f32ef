// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package circuit

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

func TestComputePayout(t *testing.T) {
	cases := []struct {
		name     string
		coverage uint64
		damage   bool
		severity uint8
		want     uint64
	}{
		{"severe damage", 10_000, true, 7, 7_000},
		{"threshold is exclusive", 10_000, true, 3, 0},
		{"no damage", 10_000, false, 9, 0},
		{"rounds down", 333, true, 5, 166},
		{"above full coverage", 1_000, true, 12, 1_200},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, _ := ComputePayout(tc.coverage, tc.damage, tc.severity, DefaultSchedule)
			if p.Uint64() != tc.want {
				t.Fatalf("payout = %s, want %d", p, tc.want)
			}
		})
	}
}

func TestPayoutCircuit_TraceMatchesConvertedCircuit(t *testing.T) {
	ccs, err := CompilePayout(DefaultSchedule)
	if err != nil {
		t.Fatalf("CompilePayout: %v", err)
	}
	c, err := ConvertPayout(ccs)
	if err != nil {
		t.Fatalf("ConvertPayout: %v", err)
	}
	if c.NbPublic != 5 || c.NbSecret != 1 {
		t.Fatalf("unexpected input layout: public=%d secret=%d", c.NbPublic, c.NbSecret)
	}
	if !c.IsOutput(PayoutWire) || c.IsOutput(SeverityWire) {
		t.Fatalf("outputs = %v, want only the payout wire", c.Outputs)
	}

	tr, err := Solve(ccs, NewPayoutAssignment(10_000, true, 7, DefaultSchedule))
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if err := tr.Check(c); err != nil {
		t.Fatalf("converted circuit rejects solver trace: %v", err)
	}

	var want fr.Element
	want.SetUint64(7_000)
	if got := tr[PayoutWire]; !got.Equal(&want) {
		t.Fatalf("payout wire = %s, want 7000", got.String())
	}
}

func TestPayoutCircuit_WrongPayoutDoesNotSolve(t *testing.T) {
	ccs, err := CompilePayout(DefaultSchedule)
	if err != nil {
		t.Fatalf("CompilePayout: %v", err)
	}
	a := NewPayoutAssignment(10_000, true, 7, DefaultSchedule)
	a.Payout = 9_000
	if _, err := Solve(ccs, a); err == nil {
		t.Fatal("expected solver failure for inflated payout")
	}
}

func TestKeys_ProveVerifySaveLoad(t *testing.T) {
	ccs, err := CompilePayout(DefaultSchedule)
	if err != nil {
		t.Fatalf("CompilePayout: %v", err)
	}
	keys, err := Setup(ccs)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	proof, public, err := keys.Prove(NewPayoutAssignment(5_000, true, 6, DefaultSchedule))
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if err := keys.Verify(proof, public); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	d1, err := ProofDigest(proof)
	if err != nil {
		t.Fatalf("ProofDigest: %v", err)
	}
	d2, _ := ProofDigest(proof)
	if d1 != d2 {
		t.Fatal("proof digest must be stable")
	}

	dir := t.TempDir()
	if KeysExist(dir) {
		t.Fatal("empty dir reported as having keys")
	}
	if err := keys.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !KeysExist(dir) {
		t.Fatal("keys missing after Save")
	}
	loaded, err := LoadKeys(dir)
	if err != nil {
		t.Fatalf("LoadKeys: %v", err)
	}
	if err := loaded.Verify(proof, public); err != nil {
		t.Fatalf("Verify with loaded keys: %v", err)
	}
}

func TestKeys_ExportDamageProof(t *testing.T) {
	ccs, err := CompilePayout(DefaultSchedule)
	if err != nil {
		t.Fatalf("CompilePayout: %v", err)
	}
	keys, err := Setup(ccs)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	proof, public, err := keys.Prove(NewPayoutAssignment(5_000, true, 6, DefaultSchedule))
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	dp, err := keys.ExportDamageProof(proof, public)
	if err != nil {
		t.Fatalf("ExportDamageProof: %v", err)
	}

	want := []string{"5000", "1", "6", "3000"}
	if len(dp.Public.Inputs) != len(want) {
		t.Fatalf("want %d public inputs got %d", len(want), len(dp.Public.Inputs))
	}
	for i := range want {
		if dp.Public.Inputs[i] != want[i] {
			t.Fatalf("input %d: want %s got %s", i, want[i], dp.Public.Inputs[i])
		}
	}
	if dp.VK.NPublic != 4 || len(dp.VK.IC) < 5 {
		t.Fatalf("vk shape: nPublic=%d len(IC)=%d", dp.VK.NPublic, len(dp.VK.IC))
	}
	if len(dp.Proof.PiA) != 96 || len(dp.Proof.PiB) != 192 {
		t.Fatalf("points must be compressed: piA=%d piB=%d hex chars", len(dp.Proof.PiA), len(dp.Proof.PiB))
	}
	d, _ := ProofDigest(proof)
	if dp.Digest != hex.EncodeToString(d[:]) {
		t.Fatal("digest must match ProofDigest")
	}

	dir := t.TempDir()
	if err := dp.WriteJSON(dir); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "public.json"))
	if err != nil {
		t.Fatalf("read public.json: %v", err)
	}
	var pub PublicJSON
	if err := json.Unmarshal(raw, &pub); err != nil {
		t.Fatalf("decode public.json: %v", err)
	}
	if len(pub.Inputs) != 4 || pub.Inputs[3] != "3000" {
		t.Fatalf("public.json: %v", pub.Inputs)
	}
}

func TestLoadKeys_MissingFiles(t *testing.T) {
	if _, err := LoadKeys(t.TempDir()); err == nil {
		t.Fatal("expected error for empty dir")
	}
}

// Compiling the emulated pairing takes minutes; opt in with BITVM_HEAVY=1.
func TestCompileVerifier_Heavy(t *testing.T) {
	if testing.Short() || os.Getenv("BITVM_HEAVY") == "" {
		t.Skip("set BITVM_HEAVY=1 to compile the in-circuit verifier")
	}
	inner, err := CompilePayout(DefaultSchedule)
	if err != nil {
		t.Fatalf("CompilePayout: %v", err)
	}
	outer, err := CompileVerifier(inner)
	if err != nil {
		t.Fatalf("CompileVerifier: %v", err)
	}
	c, err := FromR1CS(outer)
	if err != nil {
		t.Fatalf("FromR1CS: %v", err)
	}
	if len(c.Steps) < 100_000 {
		t.Fatalf("verifier unexpectedly small: %d steps", len(c.Steps))
	}

	keys, err := Setup(inner)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	proof, public, err := keys.Prove(NewPayoutAssignment(10_000, true, 7, DefaultSchedule))
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	tr, err := SolveVerifier(outer, proof, keys.VK, public)
	if err != nil {
		t.Fatalf("SolveVerifier: %v", err)
	}
	if err := tr.Check(c); err != nil {
		t.Fatalf("converted verifier rejects solver trace: %v", err)
	}
}
