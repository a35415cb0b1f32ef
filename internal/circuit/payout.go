// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only
//
// payout.go

package circuit

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// Schedule is the payout rule: when damage is reported and severity exceeds
// SeverityThreshold, the payout is coverage * severity * SeverityFactor /
// PayoutDivisor (rounded down). Otherwise the payout is zero.
type Schedule struct {
	SeverityThreshold uint8  `json:"severity_threshold" yaml:"severity_threshold"`
	SeverityFactor    uint64 `json:"severity_factor" yaml:"severity_factor"`
	PayoutDivisor     uint64 `json:"payout_divisor" yaml:"payout_divisor"`
}

// DefaultSchedule pays 10% of coverage per severity point above 3.
var DefaultSchedule = Schedule{SeverityThreshold: 3, SeverityFactor: 10, PayoutDivisor: 100}

// Public wire positions of PayoutCircuit. gnark allocates public wires in
// field order right after OneWire.
const (
	CoverageWire WireID = 1
	DamageWire   WireID = 2
	SeverityWire WireID = 3
	PayoutWire   WireID = 4
)

// PayoutCircuit proves that Payout follows Schedule for the reported damage.
type PayoutCircuit struct {
	Coverage frontend.Variable `gnark:",public"`
	Damage   frontend.Variable `gnark:",public"`
	Severity frontend.Variable `gnark:",public"`
	Payout   frontend.Variable `gnark:",public"`

	// Remainder of the integer division, private
	Remainder frontend.Variable

	Schedule Schedule `gnark:"-"`
}

func (c *PayoutCircuit) Define(api frontend.API) error {
	s := c.Schedule

	api.AssertIsBoolean(c.Damage)
	api.ToBinary(c.Severity, 8)
	api.ToBinary(c.Coverage, 64)

	// Cmp returns 1 iff severity > threshold
	severe := api.IsZero(api.Sub(api.Cmp(c.Severity, int(s.SeverityThreshold)), 1))
	eligible := api.Mul(c.Damage, severe)

	gross := api.Mul(c.Coverage, c.Severity, s.SeverityFactor, eligible)
	api.AssertIsEqual(gross, api.Add(api.Mul(c.Payout, s.PayoutDivisor), c.Remainder))
	api.AssertIsLessOrEqual(c.Remainder, s.PayoutDivisor-1)
	return nil
}

// ComputePayout evaluates the schedule natively.
func ComputePayout(coverage uint64, damage bool, severity uint8, s Schedule) (payout, remainder *big.Int) {
	payout, remainder = new(big.Int), new(big.Int)
	if !damage || severity <= s.SeverityThreshold || s.PayoutDivisor == 0 {
		return payout, remainder
	}
	gross := new(big.Int).SetUint64(coverage)
	gross.Mul(gross, new(big.Int).SetUint64(uint64(severity)))
	gross.Mul(gross, new(big.Int).SetUint64(s.SeverityFactor))
	payout.QuoRem(gross, new(big.Int).SetUint64(s.PayoutDivisor), remainder)
	return payout, remainder
}

// NewPayoutAssignment builds a full witness for the reported damage.
func NewPayoutAssignment(coverage uint64, damage bool, severity uint8, s Schedule) *PayoutCircuit {
	payout, rem := ComputePayout(coverage, damage, severity, s)
	d := 0
	if damage {
		d = 1
	}
	return &PayoutCircuit{
		Coverage:  coverage,
		Damage:    d,
		Severity:  severity,
		Payout:    payout,
		Remainder: rem,
		Schedule:  s,
	}
}

// CompilePayout compiles PayoutCircuit for s over the BLS12-381 scalar field.
func CompilePayout(s Schedule) (constraint.ConstraintSystem, error) {
	return frontend.Compile(ecc.BLS12_381.ScalarField(), r1cs.NewBuilder, &PayoutCircuit{Schedule: s})
}

// ConvertPayout converts a compiled PayoutCircuit. The payout is the
// prover's claimed output; the other public wires come from the oracle.
func ConvertPayout(ccs constraint.ConstraintSystem) (*Circuit, error) {
	return FromR1CS(ccs, PayoutWire)
}
