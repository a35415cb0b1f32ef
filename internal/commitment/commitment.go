// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

// Package commitment binds boundary states and contract terms to 32-byte
// blake2b digests.
package commitment

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/Sunereum-Labs/BitVM/internal/circuit"
)

// Domain tags, NUL terminated.
const (
	stateTag = "bitvm2:state:v1\x00"
	termsTag = "bitvm2:terms:v1\x00"
	leafTag  = "bitvm2:leaf:v1\x00"
	nodeTag  = "bitvm2:node:v1\x00"
	rootTag  = "bitvm2:root:v1\x00"
)

// Commitment is a blake2b-256 digest.
type Commitment [32]byte

// ErrMismatch is matched by every *MismatchError.
var ErrMismatch = errors.New("commitment mismatch")

func (c Commitment) String() string { return hex.EncodeToString(c[:]) }

func (c Commitment) IsZero() bool { return c == Commitment{} }

func (c Commitment) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Commitment) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Parse decodes a 64-character hex commitment.
func Parse(s string) (Commitment, error) {
	var c Commitment
	b, err := hex.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("decode commitment: %w", err)
	}
	if len(b) != len(c) {
		return c, fmt.Errorf("commitment must be %d bytes, got %d", len(c), len(b))
	}
	copy(c[:], b)
	return c, nil
}

// MismatchError reports a boundary where two parties' commitments differ.
// It opens a dispute; it is never fatal.
type MismatchError struct {
	Boundary int
	Want     Commitment
	Got      Commitment
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("commitment mismatch at boundary %d: want %s, got %s", e.Boundary, e.Want, e.Got)
}

func (e *MismatchError) Is(target error) bool { return target == ErrMismatch }

// Committer commits states under fixed terms.
type Committer struct {
	terms Commitment
}

// NewCommitter binds a committer to t.
func NewCommitter(t Terms) (*Committer, error) {
	d, err := CommitTerms(t)
	if err != nil {
		return nil, err
	}
	return &Committer{terms: d}, nil
}

// TermsCommitment is the digest every state commitment is bound to.
func (c *Committer) TermsCommitment() Commitment { return c.terms }

// Commit hashes the tag, the terms digest and every (wire, value) entry in
// ascending wire order.
func (c *Committer) Commit(s circuit.State) Commitment {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(stateTag))
	h.Write(c.terms[:])

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(len(s)))
	h.Write(buf[:])
	for _, w := range s.Wires() {
		binary.BigEndian.PutUint32(buf[:], uint32(w))
		h.Write(buf[:])
		v := s[w]
		b := v.Bytes()
		h.Write(b[:])
	}
	var out Commitment
	copy(out[:], h.Sum(nil))
	return out
}

// Verify reports whether s opens commitment.
func (c *Committer) Verify(commitment Commitment, s circuit.State) bool {
	return c.Commit(s) == commitment
}

// CommitAll commits every state in order.
func (c *Committer) CommitAll(states []circuit.State) []Commitment {
	out := make([]Commitment, len(states))
	for i, s := range states {
		out[i] = c.Commit(s)
	}
	return out
}

// Commit is the one-shot form of Committer.Commit.
func Commit(s circuit.State, t Terms) (Commitment, error) {
	c, err := NewCommitter(t)
	if err != nil {
		return Commitment{}, err
	}
	return c.Commit(s), nil
}

// Verify reports whether (s, t) opens commitment.
func Verify(commitment Commitment, s circuit.State, t Terms) bool {
	got, err := Commit(s, t)
	return err == nil && got == commitment
}

// FirstMismatch compares two commitment sequences and returns the first
// differing boundary as a *MismatchError, or nil.
func FirstMismatch(want, got []Commitment) error {
	n := len(want)
	if len(got) < n {
		n = len(got)
	}
	for i := 0; i < n; i++ {
		if want[i] != got[i] {
			return &MismatchError{Boundary: i, Want: want[i], Got: got[i]}
		}
	}
	if len(want) != len(got) {
		return fmt.Errorf("%w: sequence lengths %d and %d", ErrMismatch, len(want), len(got))
	}
	return nil
}
