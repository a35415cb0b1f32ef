// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package commitment

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sunereum-Labs/BitVM/internal/circuit"
	"github.com/Sunereum-Labs/BitVM/internal/script"
)

func testTerms() Terms {
	return Terms{
		PolicyID:         "solar-001",
		CoverageSats:     10_000,
		PremiumBps:       500,
		Schedule:         circuit.DefaultSchedule,
		ProverBondSats:   2_000,
		VerifierBondSats: 1_000,
		ForfeitBps:       10_000,
		VerifierShareBps: 5_000,
		OnInvalid:        CollateralReturn,
		HappyPathTimeout: time.Hour,
		RoundTimeout:     10 * time.Minute,
		ChunkBound:       400_000,
		CostMetric:       script.MetricSize,
	}
}

func state(kv ...uint64) circuit.State {
	s := make(circuit.State)
	for i := 0; i+1 < len(kv); i += 2 {
		var v fr.Element
		v.SetUint64(kv[i+1])
		s[circuit.WireID(kv[i])] = v
	}
	return s
}

func TestCommit_DeterministicAndBinding(t *testing.T) {
	terms := testTerms()
	a, err := Commit(state(1, 10, 2, 20), terms)
	require.NoError(t, err)
	b, err := Commit(state(2, 20, 1, 10), terms)
	require.NoError(t, err)
	assert.Equal(t, a, b, "insertion order must not matter")

	c, _ := Commit(state(1, 10, 2, 21), terms)
	assert.NotEqual(t, a, c, "value change")
	d, _ := Commit(state(1, 10, 3, 20), terms)
	assert.NotEqual(t, a, d, "wire change")
	e, _ := Commit(state(1, 10), terms)
	assert.NotEqual(t, a, e, "dropped entry")

	other := terms
	other.CoverageSats++
	f, _ := Commit(state(1, 10, 2, 20), other)
	assert.NotEqual(t, a, f, "terms change")

	assert.True(t, Verify(a, state(1, 10, 2, 20), terms))
	assert.False(t, Verify(a, state(1, 10, 2, 20), other))
}

func TestCommit_BindingProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	c, err := NewCommitter(testTerms())
	require.NoError(t, err)

	properties.Property("distinct states commit differently", prop.ForAll(
		func(w1, w2 uint32, v1, v2 uint64) bool {
			a := state(uint64(w1), v1)
			b := state(uint64(w2), v2)
			if w1 == w2 && v1 == v2 {
				return c.Commit(a) == c.Commit(b)
			}
			return c.Commit(a) != c.Commit(b)
		},
		gen.UInt32Range(0, 8),
		gen.UInt32Range(0, 8),
		gen.UInt64Range(0, 8),
		gen.UInt64Range(0, 8),
	))
	properties.TestingRun(t)
}

func TestCommitment_TextRoundTrip(t *testing.T) {
	c, err := Commit(state(1, 1), testTerms())
	require.NoError(t, err)

	raw, err := json.Marshal(map[string]Commitment{"c": c})
	require.NoError(t, err)
	var back map[string]Commitment
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, c, back["c"])

	_, err = Parse("abcd")
	assert.Error(t, err)
	_, err = Parse("zz")
	assert.Error(t, err)
	assert.True(t, Commitment{}.IsZero())
}

func TestTerms_CanonicalIsStable(t *testing.T) {
	terms := testTerms()
	terms.CoverageSats = 1<<63 + 7 // beyond float precision

	a, err := terms.Canonical()
	require.NoError(t, err)
	assert.Contains(t, string(a), `"coverage_sats":"9223372036854775815"`)

	b, err := terms.Canonical()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var back Terms
	require.NoError(t, json.Unmarshal(a, &back))
	assert.Equal(t, terms, back)
}

func TestTerms_Validate(t *testing.T) {
	require.NoError(t, testTerms().Validate())

	mutations := map[string]func(*Terms){
		"policy":     func(t *Terms) { t.PolicyID = "" },
		"coverage":   func(t *Terms) { t.CoverageSats = 0 },
		"bps":        func(t *Terms) { t.ForfeitBps = MaxBps + 1 },
		"divisor":    func(t *Terms) { t.Schedule.PayoutDivisor = 0 },
		"timeout":    func(t *Terms) { t.RoundTimeout = 0 },
		"bound":      func(t *Terms) { t.ChunkBound = -1 },
		"collateral": func(t *Terms) { t.OnInvalid = "burn" },
		"metric":     func(t *Terms) { t.CostMetric = "gas" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			terms := testTerms()
			mutate(&terms)
			assert.ErrorIs(t, terms.Validate(), ErrInvalidTerms)
		})
	}
}

func TestFirstMismatch(t *testing.T) {
	a := []Commitment{{1}, {2}, {3}}
	b := []Commitment{{1}, {9}, {3}}

	assert.NoError(t, FirstMismatch(a, a))

	err := FirstMismatch(a, b)
	var me *MismatchError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, 1, me.Boundary)
	assert.True(t, errors.Is(err, ErrMismatch))

	assert.ErrorIs(t, FirstMismatch(a, a[:2]), ErrMismatch)
}

func TestSequence_InclusionProofs(t *testing.T) {
	for _, n := range []int{1, 2, 3, 8, 9, 33} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			leaves := make([]Commitment, n)
			for i := range leaves {
				leaves[i] = Commitment{byte(i), byte(i >> 8), 0xAA}
			}
			seq, err := NewSequence(leaves)
			require.NoError(t, err)
			require.Equal(t, n, seq.Len())

			for i, c := range leaves {
				p, err := seq.Prove(i)
				require.NoError(t, err)
				assert.True(t, VerifyInclusion(seq.Root(), c, p), "leaf %d", i)
				assert.False(t, VerifyInclusion(seq.Root(), Commitment{0xFF}, p), "forged leaf %d", i)

				moved := p
				moved.Index = (i + 1) % n
				if n > 1 {
					assert.False(t, VerifyInclusion(seq.Root(), c, moved), "moved leaf %d", i)
				}
			}
			_, err = seq.Prove(n)
			assert.Error(t, err)
		})
	}

	_, err := NewSequence(nil)
	assert.ErrorIs(t, err, ErrEmptySequence)
}

func TestSequence_RootBindsCount(t *testing.T) {
	leaves := []Commitment{{1}, {2}, {3}}
	a, _ := NewSequence(leaves)
	b, _ := NewSequence(append(leaves, Commitment{3}))
	assert.NotEqual(t, a.Root(), b.Root())
}
