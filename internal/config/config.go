// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

// Package config loads claimctl settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/Sunereum-Labs/BitVM/internal/circuit"
	"github.com/Sunereum-Labs/BitVM/internal/commitment"
	"github.com/Sunereum-Labs/BitVM/internal/script"
)

const (
	EnvDBPath     = "BITVM_DB_PATH"
	EnvLogLevel   = "BITVM_LOG_LEVEL"
	EnvChunkBound = "BITVM_CHUNK_BOUND"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	DBPath     string           `yaml:"db_path"`
	LogLevel   string           `yaml:"log_level"`
	Policy     PolicyConfig     `yaml:"policy"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Dispute    DisputeConfig    `yaml:"dispute"`
	Settlement SettlementConfig `yaml:"settlement"`
}

// PolicyConfig is the insurance policy a claim is made under.
type PolicyConfig struct {
	ID               string           `yaml:"id"`
	CoverageSats     uint64           `yaml:"coverage_sats"`
	PremiumBps       uint32           `yaml:"premium_bps"`
	ProverBondSats   uint64           `yaml:"prover_bond_sats"`
	VerifierBondSats uint64           `yaml:"verifier_bond_sats"`
	Schedule         circuit.Schedule `yaml:"schedule"`
}

type ChunkingConfig struct {
	Metric script.Metric `yaml:"metric"` // size | steps
	Bound  int           `yaml:"bound"`
}

type DisputeConfig struct {
	HappyPathTimeout time.Duration `yaml:"happy_path_timeout"`
	RoundTimeout     time.Duration `yaml:"round_timeout"`
}

type SettlementConfig struct {
	ForfeitBps       uint32                      `yaml:"forfeit_bps"`
	VerifierShareBps uint32                      `yaml:"verifier_share_bps"`
	OnInvalid        commitment.CollateralPolicy `yaml:"on_invalid"`
}

// Default is a single-process setup with a local database.
func Default() Config {
	return Config{
		DBPath:   "claims.db",
		LogLevel: "info",
		Policy: PolicyConfig{
			ID:               "solar-001",
			CoverageSats:     10_000,
			PremiumBps:       500,
			ProverBondSats:   2_000,
			VerifierBondSats: 1_000,
			Schedule:         circuit.DefaultSchedule,
		},
		Chunking: ChunkingConfig{Metric: script.MetricSize, Bound: 1_000_000},
		Dispute: DisputeConfig{
			HappyPathTimeout: 2 * time.Second,
			RoundTimeout:     500 * time.Millisecond,
		},
		Settlement: SettlementConfig{
			ForfeitBps:       commitment.MaxBps,
			VerifierShareBps: 5_000,
			OnInvalid:        commitment.CollateralReturn,
		},
	}
}

// Load reads path over the defaults (an empty path skips the file), then
// applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvChunkBound); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalid, EnvChunkBound, v, err)
		}
		c.Chunking.Bound = n
	}
	return nil
}

// Validate checks the settings and the terms they produce.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("%w: db_path is required", ErrInvalid)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %v", ErrInvalid, err)
	}
	if err := c.Terms().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Terms are the contract terms the configuration describes.
func (c *Config) Terms() commitment.Terms {
	return commitment.Terms{
		PolicyID:         c.Policy.ID,
		CoverageSats:     c.Policy.CoverageSats,
		PremiumBps:       c.Policy.PremiumBps,
		Schedule:         c.Policy.Schedule,
		ProverBondSats:   c.Policy.ProverBondSats,
		VerifierBondSats: c.Policy.VerifierBondSats,
		ForfeitBps:       c.Settlement.ForfeitBps,
		VerifierShareBps: c.Settlement.VerifierShareBps,
		OnInvalid:        c.Settlement.OnInvalid,
		HappyPathTimeout: c.Dispute.HappyPathTimeout,
		RoundTimeout:     c.Dispute.RoundTimeout,
		ChunkBound:       c.Chunking.Bound,
		CostMetric:       c.Chunking.Metric,
	}
}

// Logger builds a JSON logger at the configured level writing to w.
func (c *Config) Logger(w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), lvl)), nil
}
