// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

// main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/Sunereum-Labs/BitVM/internal/commitment"
	"github.com/Sunereum-Labs/BitVM/internal/config"
	"github.com/Sunereum-Labs/BitVM/internal/dispute"
	"github.com/Sunereum-Labs/BitVM/internal/script"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: claimctl <chunk|terms|simulate|show> [flags]")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return 2
	}

	switch args[0] {
	case "chunk":
		chunkCmd := flag.NewFlagSet("chunk", flag.ContinueOnError)
		chunkCmd.SetOutput(stderr)

		var cfgPath, workload, metric string
		var bound, steps int
		chunkCmd.StringVar(&cfgPath, "config", "", "optional YAML config")
		chunkCmd.StringVar(&workload, "workload", "payout", "circuit to chunk: payout | chain | verifier")
		chunkCmd.IntVar(&steps, "steps", 24, "chain length for -workload chain")
		chunkCmd.IntVar(&bound, "bound", 0, "chunk bound (0 = from config)")
		chunkCmd.StringVar(&metric, "metric", "", "cost metric: size | steps (empty = from config)")
		if err := chunkCmd.Parse(args[1:]); err != nil {
			return 2
		}
		switch workload {
		case "payout", "chain", "verifier":
		default:
			fmt.Fprintln(stderr, "error: -workload must be payout, chain or verifier")
			chunkCmd.Usage()
			return 2
		}
		if workload == "chain" && steps < 1 {
			fmt.Fprintln(stderr, "error: -steps must be positive")
			return 2
		}

		cfg, err := config.Load(cfgPath)
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 1
		}
		if bound != 0 {
			cfg.Chunking.Bound = bound
		}
		if metric != "" {
			cfg.Chunking.Metric = script.Metric(metric)
		}

		l, err := chunkLayout(cfg, workload, steps)
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 1
		}
		if err := printJSON(stdout, l); err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 1
		}
		return 0

	case "terms":
		termsCmd := flag.NewFlagSet("terms", flag.ContinueOnError)
		termsCmd.SetOutput(stderr)

		var cfgPath string
		termsCmd.StringVar(&cfgPath, "config", "", "optional YAML config")
		if err := termsCmd.Parse(args[1:]); err != nil {
			return 2
		}

		cfg, err := config.Load(cfgPath)
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 1
		}
		t := cfg.Terms()
		canonical, err := t.Canonical()
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 1
		}
		tc, err := commitment.CommitTerms(t)
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 1
		}
		out := struct {
			Terms      json.RawMessage       `json:"terms"`
			Commitment commitment.Commitment `json:"commitment"`
		}{Terms: canonical, Commitment: tc}
		if err := printJSON(stdout, out); err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 1
		}
		return 0

	case "simulate":
		simCmd := flag.NewFlagSet("simulate", flag.ContinueOnError)
		simCmd.SetOutput(stderr)

		var o simOptions
		var cfgPath, dbPath string
		var severity uint
		simCmd.StringVar(&cfgPath, "config", "", "optional YAML config")
		simCmd.StringVar(&dbPath, "db", "", "SQLite database (overrides config)")
		simCmd.BoolVar(&o.damage, "damage", true, "damage was reported")
		simCmd.UintVar(&severity, "severity", 7, "reported severity (0-255)")
		simCmd.IntVar(&o.tamperStep, "tamper-step", -1, "prover forges its trace from this step (-1 = honest)")
		simCmd.IntVar(&o.silentProver, "silent-prover", -1, "prover stops answering from this round (-1 = never)")
		simCmd.IntVar(&o.silentVerifier, "silent-verifier", -1, "verifier stops answering from this round (-1 = never)")
		simCmd.StringVar(&o.keysDir, "keys", "", "optional directory to load or save Groth16 setup files")
		simCmd.StringVar(&o.exportDir, "export", "", "optional directory for vk.json / proof.json / public.json")
		if err := simCmd.Parse(args[1:]); err != nil {
			return 2
		}
		if severity > 255 {
			fmt.Fprintln(stderr, "error: -severity must be at most 255")
			simCmd.Usage()
			return 2
		}
		o.severity = uint8(severity)

		cfg, err := config.Load(cfgPath)
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 1
		}
		if dbPath != "" {
			cfg.DBPath = dbPath
		}
		log, err := cfg.Logger(stderr)
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 1
		}
		defer func() { _ = log.Sync() }()
		o.cfg = cfg

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		rep, err := simulate(ctx, o, log)
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 1
		}
		if err := printJSON(stdout, rep); err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 1
		}
		return 0

	case "show":
		showCmd := flag.NewFlagSet("show", flag.ContinueOnError)
		showCmd.SetOutput(stderr)

		var dbPath, claimID string
		showCmd.StringVar(&dbPath, "db", "", "SQLite database")
		showCmd.StringVar(&claimID, "claim", "", "claim id")
		if err := showCmd.Parse(args[1:]); err != nil {
			return 2
		}

		missing := false
		if dbPath == "" {
			fmt.Fprintln(stderr, "error: -db is required")
			missing = true
		}
		if claimID == "" {
			fmt.Fprintln(stderr, "error: -claim is required")
			missing = true
		}
		if missing {
			showCmd.Usage()
			return 2
		}
		if _, err := os.Stat(dbPath); err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 1
		}

		ctx := context.Background()
		store, err := dispute.OpenSQLite(ctx, dbPath)
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 1
		}
		defer store.Close()

		g, err := store.Load(ctx, claimID)
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 1
		}
		moves, err := store.Moves(ctx, claimID)
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 1
		}
		out := struct {
			Game  *dispute.Game        `json:"game"`
			Moves []dispute.MoveRecord `json:"moves"`
		}{Game: g, Moves: moves}
		if err := printJSON(stdout, out); err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 1
		}
		return 0

	default:
		fmt.Fprintf(stderr, "error: unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}
}
