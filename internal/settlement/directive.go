// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

// Package settlement turns terminal dispute outcomes into payout
// directives for the fund-custody layer.
package settlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/Sunereum-Labs/BitVM/internal/circuit"
	"github.com/Sunereum-Labs/BitVM/internal/commitment"
	"github.com/Sunereum-Labs/BitVM/internal/dispute"
)

var (
	ErrNotTerminal   = errors.New("settlement: claim has no outcome yet")
	ErrNotLocked     = errors.New("settlement: no escrow for claim")
	ErrAlreadyLocked = errors.New("settlement: escrow already locked")
	ErrTermsMismatch = errors.New("settlement: claim is bound to different terms")
)

// Role is a recipient of funds.
type Role string

const (
	Depositor  Role = "depositor"
	Withdrawer Role = "withdrawer"
	Prover     Role = "prover"
	Verifier   Role = "verifier"
)

// Kind summarizes a directive.
type Kind string

const (
	Honored           Kind = "honored"
	Rejected          Kind = "rejected"
	HonoredByDefault  Kind = "honored_by_default"
	RejectedByDefault Kind = "rejected_by_default"
)

type Transfer struct {
	To     Role         `json:"to"`
	Amount *uint256.Int `json:"amount_sats"`
	Memo   string       `json:"memo"`
}

// PayoutDirective is the settlement decision handed to fund custody. It
// accounts for the whole escrow: transfers plus Retained equal collateral
// plus both bonds.
type PayoutDirective struct {
	ID              string                `json:"id"`
	ClaimID         string                `json:"claim_id"`
	EscrowID        string                `json:"escrow_id"`
	Kind            Kind                  `json:"kind"`
	Outcome         dispute.Outcome       `json:"outcome"`
	Defaulter       dispute.Party         `json:"defaulter,omitempty"`
	TermsCommitment commitment.Commitment `json:"terms_commitment"`
	Transfers       []Transfer            `json:"transfers"`
	Retained        *uint256.Int          `json:"retained_sats"`
	Reason          string                `json:"reason"`
	IssuedAt        time.Time             `json:"issued_at"`
}

// Total sums transfers and retained funds.
func (d *PayoutDirective) Total() *uint256.Int {
	sum := new(uint256.Int).Set(d.Retained)
	for _, t := range d.Transfers {
		sum.Add(sum, t.Amount)
	}
	return sum
}

// Paid is the total sent to role.
func (d *PayoutDirective) Paid(r Role) *uint256.Int {
	sum := new(uint256.Int)
	for _, t := range d.Transfers {
		if t.To == r {
			sum.Add(sum, t.Amount)
		}
	}
	return sum
}

// CalculatePayout evaluates the payout schedule. It agrees with
// circuit.ComputePayout for every input.
func CalculatePayout(coverageSats uint64, damage bool, severity uint8, s circuit.Schedule) *uint256.Int {
	out := new(uint256.Int)
	if !damage || severity <= s.SeverityThreshold || s.PayoutDivisor == 0 {
		return out
	}
	out.SetUint64(coverageSats)
	out.Mul(out, uint256.NewInt(uint64(severity)))
	out.Mul(out, uint256.NewInt(s.SeverityFactor))
	return out.Div(out, uint256.NewInt(s.PayoutDivisor))
}

// Premium is the policy premium owed for the terms.
func Premium(t commitment.Terms) *uint256.Int {
	return bps(uint256.NewInt(t.CoverageSats), t.PremiumBps)
}

func bps(v *uint256.Int, b uint32) *uint256.Int {
	out := new(uint256.Int).Mul(v, uint256.NewInt(uint64(b)))
	return out.Div(out, uint256.NewInt(commitment.MaxBps))
}

func minU(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}

type ledger struct {
	transfers []Transfer
}

func (l *ledger) pay(to Role, amount *uint256.Int, memo string) {
	if amount.IsZero() {
		return
	}
	l.transfers = append(l.transfers, Transfer{To: to, Amount: amount, Memo: memo})
}

// slash splits a bond: the forfeited part goes to the beneficiaries, the
// rest back to its owner.
func (l *ledger) slash(owner Role, bond *uint256.Int, t commitment.Terms, beneficiaries func(forfeit *uint256.Int)) {
	forfeit := bps(bond, t.ForfeitBps)
	beneficiaries(forfeit)
	l.pay(owner, new(uint256.Int).Sub(bond, forfeit), "bond remainder")
}

// Directive computes the payout directive of a terminal game under t. The
// amount honored is the payout opened from the claim's final boundary; a
// claim whose stated payout does not open is rejected.
func Directive(g *dispute.Game, t commitment.Terms) (*PayoutDirective, error) {
	if !g.Terminal() || g.Resolution == nil {
		return nil, fmt.Errorf("%w: claim %s is %s", ErrNotTerminal, g.Claim.ID, g.Phase)
	}
	cm, err := commitment.NewCommitter(t)
	if err != nil {
		return nil, err
	}
	bound, bindErr := g.Claim.BoundPayout(cm)
	collateral := uint256.NewInt(t.CoverageSats)
	proverBond := uint256.NewInt(t.ProverBondSats)
	verifierBond := uint256.NewInt(t.VerifierBondSats)

	d := &PayoutDirective{
		ClaimID:         g.Claim.ID,
		Outcome:         g.Claim.Outcome,
		Defaulter:       g.Resolution.Defaulter,
		TermsCommitment: g.Claim.TermsCommitment,
		Retained:        new(uint256.Int),
		Reason:          g.Resolution.Reason,
	}
	var l ledger

	honor := func() {
		payout := minU(uint256.NewInt(bound), collateral)
		l.pay(Withdrawer, payout, "claim payout")
		l.pay(Depositor, new(uint256.Int).Sub(collateral, payout), "collateral remainder")
	}
	reject := func() {
		if t.OnInvalid == commitment.CollateralRetain {
			d.Retained.Set(collateral)
		} else {
			l.pay(Depositor, new(uint256.Int).Set(collateral), "collateral returned")
		}
	}
	slashProver := func() {
		l.slash(Prover, proverBond, t, func(f *uint256.Int) {
			share := bps(f, t.VerifierShareBps)
			l.pay(Verifier, share, "prover bond forfeit")
			l.pay(Withdrawer, new(uint256.Int).Sub(f, share), "prover bond forfeit")
		})
		l.pay(Verifier, new(uint256.Int).Set(verifierBond), "bond returned")
	}
	slashVerifier := func() {
		l.pay(Prover, new(uint256.Int).Set(proverBond), "bond returned")
		l.slash(Verifier, verifierBond, t, func(f *uint256.Int) {
			l.pay(Prover, f, "verifier bond forfeit")
		})
	}
	returnBonds := func() {
		l.pay(Prover, new(uint256.Int).Set(proverBond), "bond returned")
		l.pay(Verifier, new(uint256.Int).Set(verifierBond), "bond returned")
	}

	honored := g.Claim.Outcome == dispute.OutcomeValid ||
		(g.Phase == dispute.PhaseDefaulted && g.Resolution.Defaulter == dispute.PartyVerifier)

	switch {
	case honored && bindErr != nil:
		d.Kind = Rejected
		d.Reason = bindErr.Error()
		reject()
		slashProver()
	case g.Phase == dispute.PhaseDefaulted && g.Resolution.Defaulter == dispute.PartyVerifier:
		d.Kind = HonoredByDefault
		honor()
		slashVerifier()
	case g.Phase == dispute.PhaseDefaulted:
		d.Kind = RejectedByDefault
		reject()
		slashProver()
	case g.Claim.Outcome == dispute.OutcomeValid:
		d.Kind = Honored
		honor()
		if g.Session != nil {
			// the challenge was wrong
			slashVerifier()
		} else {
			returnBonds()
		}
	case g.Claim.Outcome == dispute.OutcomeInvalid:
		d.Kind = Rejected
		reject()
		slashProver()
	default:
		return nil, fmt.Errorf("%w: outcome %q", ErrNotTerminal, g.Claim.Outcome)
	}
	d.Transfers = l.transfers

	want := new(uint256.Int).Add(collateral, proverBond)
	want.Add(want, verifierBond)
	if got := d.Total(); !got.Eq(want) {
		return nil, fmt.Errorf("settlement: directive moves %s of %s escrowed", got.Dec(), want.Dec())
	}
	return d, nil
}
