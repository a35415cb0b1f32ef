// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Sunereum-Labs/BitVM/internal/commitment"
	"github.com/Sunereum-Labs/BitVM/internal/script"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claimctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
	assert.NoError(t, cfg.Terms().Validate())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
db_path: /var/lib/bitvm/claims.db
log_level: debug
policy:
  id: wind-007
  coverage_sats: 50000
  schedule:
    severity_threshold: 2
    severity_factor: 5
    payout_divisor: 100
chunking:
  metric: steps
  bound: 900
dispute:
  happy_path_timeout: 24h
  round_timeout: 90m
settlement:
  forfeit_bps: 5000
  on_invalid: retain
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/bitvm/claims.db", cfg.DBPath)
	assert.Equal(t, "wind-007", cfg.Policy.ID)
	assert.Equal(t, uint64(50_000), cfg.Policy.CoverageSats)
	assert.Equal(t, uint8(2), cfg.Policy.Schedule.SeverityThreshold)
	assert.Equal(t, 24*time.Hour, cfg.Dispute.HappyPathTimeout)
	assert.Equal(t, 90*time.Minute, cfg.Dispute.RoundTimeout)

	terms := cfg.Terms()
	assert.Equal(t, script.MetricSteps, terms.CostMetric)
	assert.Equal(t, 900, terms.ChunkBound)
	assert.Equal(t, uint32(5_000), terms.ForfeitBps)
	assert.Equal(t, commitment.CollateralRetain, terms.OnInvalid)
	// untouched keys keep their defaults
	assert.Equal(t, uint32(500), terms.PremiumBps)
	assert.Equal(t, uint64(2_000), terms.ProverBondSats)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "db_path: file.db\nlog_level: warn\n")
	t.Setenv(EnvDBPath, "env.db")
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvChunkBound, "123456")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env.db", cfg.DBPath)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, 123_456, cfg.Chunking.Bound)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "bad bound env", env: map[string]string{EnvChunkBound: "lots"}},
		{name: "bad level", body: "log_level: chatty\n"},
		{name: "unknown metric", body: "chunking:\n  metric: gas\n"},
		{name: "zero coverage", body: "policy:\n  coverage_sats: 0\n"},
		{name: "bps over 100%", body: "settlement:\n  verifier_share_bps: 10001\n"},
		{name: "unknown collateral policy", body: "settlement:\n  on_invalid: burn\n"},
		{name: "empty db path", body: "db_path: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	_, err = Load(writeConfig(t, "policy: [1, 2"))
	assert.Error(t, err)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.LogLevel = "warn"
	l, err := cfg.Logger(&buf)
	require.NoError(t, err)
	l.Info("dropped")
	l.Warn("kept", zap.String("claim_id", "c-1"))
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"claim_id":"c-1"`)

	cfg.LogLevel = "nope"
	_, err = cfg.Logger(&buf)
	assert.Error(t, err)
}
