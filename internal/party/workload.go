// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package party

import (
	"encoding/hex"
	"fmt"

	"github.com/Sunereum-Labs/BitVM/internal/chunker"
	"github.com/Sunereum-Labs/BitVM/internal/circuit"
	"github.com/Sunereum-Labs/BitVM/internal/commitment"
	"github.com/Sunereum-Labs/BitVM/internal/dispute"
	"github.com/Sunereum-Labs/BitVM/internal/script"
)

// NewWorkload chunks c under the bound and metric of terms. Terms that
// name a circuit digest must name c.
func NewWorkload(c *circuit.Circuit, terms commitment.Terms) (Workload, error) {
	if err := terms.Validate(); err != nil {
		return Workload{}, err
	}
	d := c.Digest()
	if terms.CircuitDigest != "" && terms.CircuitDigest != hex.EncodeToString(d[:]) {
		return Workload{}, fmt.Errorf("%w: terms name circuit %s", chunker.ErrLayoutMismatch, terms.CircuitDigest)
	}
	m, err := script.ModelFor(terms.CostMetric)
	if err != nil {
		return Workload{}, err
	}
	l, err := chunker.Partition(c, terms.ChunkBound, m)
	if err != nil {
		return Workload{}, err
	}
	cm, err := commitment.NewCommitter(terms)
	if err != nil {
		return Workload{}, err
	}
	return Workload{Circuit: c, Layout: l, Committer: cm}, nil
}

// Adjudicator re-executes chunks of this workload in env.
func (w Workload) Adjudicator(env script.Env) *dispute.ChunkAdjudicator {
	return dispute.NewChunkAdjudicator(w.Circuit, w.Layout, w.Committer, env)
}
