// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

// simulate.go
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/consensys/gnark/constraint"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Sunereum-Labs/BitVM/internal/chunker"
	"github.com/Sunereum-Labs/BitVM/internal/circuit"
	"github.com/Sunereum-Labs/BitVM/internal/commitment"
	"github.com/Sunereum-Labs/BitVM/internal/config"
	"github.com/Sunereum-Labs/BitVM/internal/dispute"
	"github.com/Sunereum-Labs/BitVM/internal/party"
	"github.com/Sunereum-Labs/BitVM/internal/script"
	"github.com/Sunereum-Labs/BitVM/internal/settlement"
)

type layoutSummary struct {
	Workload      string         `json:"workload"`
	CircuitDigest string         `json:"circuit_digest"`
	Steps         int            `json:"steps"`
	Bound         int            `json:"bound"`
	Metric        script.Metric  `json:"metric"`
	Chunks        int            `json:"chunks"`
	MaxCost       int            `json:"max_cost"`
	Spans         []chunker.Span `json:"spans"`
	Boundaries    []int          `json:"boundary_widths"`
}

func chunkLayout(cfg *config.Config, workload string, steps int) (*layoutSummary, error) {
	var c *circuit.Circuit
	switch workload {
	case "chain":
		c = circuit.NewChain(steps)
	case "verifier":
		inner, err := circuit.CompilePayout(cfg.Policy.Schedule)
		if err != nil {
			return nil, err
		}
		outer, err := circuit.CompileVerifier(inner)
		if err != nil {
			return nil, err
		}
		if c, err = circuit.FromR1CS(outer); err != nil {
			return nil, err
		}
	default:
		ccs, err := circuit.CompilePayout(cfg.Policy.Schedule)
		if err != nil {
			return nil, err
		}
		if c, err = circuit.ConvertPayout(ccs); err != nil {
			return nil, err
		}
	}
	w, err := party.NewWorkload(c, cfg.Terms())
	if err != nil {
		return nil, err
	}
	l := w.Layout
	widths := make([]int, len(l.Boundaries))
	for i, b := range l.Boundaries {
		widths[i] = len(b)
	}
	return &layoutSummary{
		Workload:      workload,
		CircuitDigest: hex.EncodeToString(l.CircuitDigest[:]),
		Steps:         len(c.Steps),
		Bound:         l.Bound,
		Metric:        l.Model.Metric,
		Chunks:        l.Len(),
		MaxCost:       l.MaxCost(),
		Spans:         l.Spans,
		Boundaries:    widths,
	}, nil
}

type simOptions struct {
	cfg            *config.Config
	damage         bool
	severity       uint8
	tamperStep     int
	silentProver   int
	silentVerifier int
	keysDir        string
	exportDir      string
}

type report struct {
	Claim      dispute.Claim               `json:"claim"`
	Phase      dispute.Phase               `json:"phase"`
	Rounds     int                         `json:"rounds"`
	Resolution *dispute.Resolution         `json:"resolution"`
	Directive  *settlement.PayoutDirective `json:"directive"`
	Proof      string                      `json:"damage_proof_digest"`
}

func loadOrSetup(ccs constraint.ConstraintSystem, dir string) (*circuit.Keys, error) {
	if dir != "" && circuit.KeysExist(dir) {
		return circuit.LoadKeys(dir)
	}
	keys, err := circuit.Setup(ccs)
	if err != nil {
		return nil, err
	}
	if dir != "" {
		if err := keys.Save(dir); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// simulate proves a damage report, plays the claim between a Prover and a
// Verifier over the configured database and settles the outcome.
func simulate(ctx context.Context, o simOptions, log *zap.Logger) (*report, error) {
	cfg := o.cfg
	s := cfg.Policy.Schedule

	// 1) Damage proof.
	ccs, err := circuit.CompilePayout(s)
	if err != nil {
		return nil, err
	}
	keys, err := loadOrSetup(ccs, o.keysDir)
	if err != nil {
		return nil, err
	}
	assignment := circuit.NewPayoutAssignment(cfg.Policy.CoverageSats, o.damage, o.severity, s)
	proof, public, err := keys.Prove(assignment)
	if err != nil {
		return nil, err
	}
	if err := keys.Verify(proof, public); err != nil {
		return nil, err
	}
	dp, err := keys.ExportDamageProof(proof, public)
	if err != nil {
		return nil, err
	}
	if o.exportDir != "" {
		if err := dp.WriteJSON(o.exportDir); err != nil {
			return nil, err
		}
	}
	damageProof, err := commitment.Parse(dp.Digest)
	if err != nil {
		return nil, err
	}

	payout := settlement.CalculatePayout(cfg.Policy.CoverageSats, o.damage, o.severity, s)
	if want, _ := circuit.ComputePayout(cfg.Policy.CoverageSats, o.damage, o.severity, s); payout.ToBig().Cmp(want) != 0 {
		return nil, fmt.Errorf("payout schedule diverged: native %s, circuit %s", payout.Dec(), want)
	}

	// 2) Chunked workload, bound to the exact circuit.
	c, err := circuit.ConvertPayout(keys.CCS)
	if err != nil {
		return nil, err
	}
	honest, err := circuit.Solve(keys.CCS, assignment)
	if err != nil {
		return nil, err
	}
	terms := cfg.Terms()
	d := c.Digest()
	terms.CircuitDigest = hex.EncodeToString(d[:])
	w, err := party.NewWorkload(c, terms)
	if err != nil {
		return nil, err
	}
	log.Info("workload chunked",
		zap.Int("steps", len(c.Steps)),
		zap.Int("chunks", w.Layout.Len()),
		zap.Int("max_cost", w.Layout.MaxCost()),
		zap.Int("bound", terms.ChunkBound),
	)

	// 3) Parties.
	proverTrace := honest
	if o.tamperStep >= 0 {
		if proverTrace, err = party.Forge(c, honest, o.tamperStep); err != nil {
			return nil, err
		}
		log.Warn("prover trace forged", zap.Int("step", o.tamperStep))
	}
	popts := []party.Option{party.WithLogger(log.Named("prover"))}
	if o.silentProver >= 0 {
		popts = append(popts, party.WithSilence(o.silentProver))
	}
	vopts := []party.Option{party.WithLogger(log.Named("verifier"))}
	if o.silentVerifier >= 0 {
		vopts = append(vopts, party.WithSilence(o.silentVerifier))
	}
	prover, err := party.NewProver(ctx, w, proverTrace, popts...)
	if err != nil {
		return nil, err
	}
	verifier, err := party.NewVerifier(ctx, w, honest, vopts...)
	if err != nil {
		return nil, err
	}

	// 4) Dispute and settlement.
	store, err := dispute.OpenSQLite(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	metrics, err := dispute.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}
	mgr := dispute.NewManager(store,
		dispute.StaticSource(w.Adjudicator(script.NewInterpreter())),
		dispute.WithLogger(log),
		dispute.WithMetrics(metrics),
	)
	engine := settlement.NewEngine(mgr, settlement.WithLogger(log))

	claim := prover.Claim(party.NewClaimID(), terms.PolicyID, w.Committer.TermsCommitment(), damageProof, payout.Uint64())
	if _, err := engine.Lock(claim.ID, terms); err != nil {
		return nil, err
	}
	if _, err := mgr.Open(ctx, claim, dispute.Timeouts{HappyPath: terms.HappyPathTimeout, Round: terms.RoundTimeout}); err != nil {
		return nil, err
	}

	g, err := party.Run(ctx, mgr, claim.ID, prover, verifier)
	if err != nil {
		return nil, err
	}
	if !g.Terminal() {
		return nil, errors.New("dispute ended without an outcome")
	}
	directive, err := engine.Settle(ctx, claim.ID)
	if err != nil {
		return nil, err
	}

	rounds := 0
	if g.Session != nil {
		rounds = g.Session.Round
	}
	return &report{
		Claim:      g.Claim,
		Phase:      g.Phase,
		Rounds:     rounds,
		Resolution: g.Resolution,
		Directive:  directive,
		Proof:      dp.Digest,
	}, nil
}
