// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package commitment

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
	"golang.org/x/crypto/blake2b"

	"github.com/Sunereum-Labs/BitVM/internal/circuit"
	"github.com/Sunereum-Labs/BitVM/internal/script"
)

// CollateralPolicy decides what happens to the Depositor's collateral when a
// claim is rejected.
type CollateralPolicy string

const (
	CollateralReturn CollateralPolicy = "return"
	CollateralRetain CollateralPolicy = "retain"
)

// MaxBps is 100% in basis points.
const MaxBps = 10_000

// Terms are the contract parameters fixed when collateral is locked. Amounts
// are in satoshis and encode as JSON strings so canonicalization never
// rounds them.
type Terms struct {
	PolicyID         string           `json:"policy_id" yaml:"policy_id"`
	CoverageSats     uint64           `json:"coverage_sats,string" yaml:"coverage_sats"`
	PremiumBps       uint32           `json:"premium_bps" yaml:"premium_bps"`
	Schedule         circuit.Schedule `json:"schedule" yaml:"schedule"`
	ProverBondSats   uint64           `json:"prover_bond_sats,string" yaml:"prover_bond_sats"`
	VerifierBondSats uint64           `json:"verifier_bond_sats,string" yaml:"verifier_bond_sats"`
	ForfeitBps       uint32           `json:"forfeit_bps" yaml:"forfeit_bps"`
	VerifierShareBps uint32           `json:"verifier_share_bps" yaml:"verifier_share_bps"`
	OnInvalid        CollateralPolicy `json:"on_invalid" yaml:"on_invalid"`
	HappyPathTimeout time.Duration    `json:"happy_path_timeout_ns,string" yaml:"happy_path_timeout"`
	RoundTimeout     time.Duration    `json:"round_timeout_ns,string" yaml:"round_timeout"`
	ChunkBound       int              `json:"chunk_bound" yaml:"chunk_bound"`
	CostMetric       script.Metric    `json:"cost_metric" yaml:"cost_metric"`
	CircuitDigest    string           `json:"circuit_digest" yaml:"circuit_digest"`
}

var ErrInvalidTerms = errors.New("invalid terms")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTerms, fmt.Sprintf(format, args...))
}

// Validate checks the terms are internally consistent.
func (t Terms) Validate() error {
	switch {
	case t.PolicyID == "":
		return invalid("policy_id is required")
	case t.CoverageSats == 0:
		return invalid("coverage must be positive")
	case t.PremiumBps > MaxBps, t.ForfeitBps > MaxBps, t.VerifierShareBps > MaxBps:
		return invalid("basis points must not exceed %d", MaxBps)
	case t.Schedule.PayoutDivisor == 0:
		return invalid("payout divisor must be positive")
	case t.HappyPathTimeout <= 0 || t.RoundTimeout <= 0:
		return invalid("timeouts must be positive")
	case t.ChunkBound <= 0:
		return invalid("chunk bound must be positive")
	}
	switch t.OnInvalid {
	case CollateralReturn, CollateralRetain:
	default:
		return invalid("unknown collateral policy %q", t.OnInvalid)
	}
	if _, err := script.ModelFor(t.CostMetric); err != nil {
		return invalid("%v", err)
	}
	return nil
}

// Canonical is the RFC 8785 encoding of t.
func (t Terms) Canonical() ([]byte, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal terms: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize terms: %w", err)
	}
	return out, nil
}

// CommitTerms digests the canonical encoding of t.
func CommitTerms(t Terms) (Commitment, error) {
	b, err := t.Canonical()
	if err != nil {
		return Commitment{}, err
	}
	h, _ := blake2b.New256(nil)
	h.Write([]byte(termsTag))
	h.Write(b)
	var out Commitment
	copy(out[:], h.Sum(nil))
	return out, nil
}
