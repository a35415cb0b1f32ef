// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package circuit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr/mimc"
)

// State is a partial assignment of wire values.
type State map[WireID]fr.Element

// Get implements the lookup used by Eval.
func (s State) Get(w WireID) (fr.Element, bool) {
	v, ok := s[w]
	return v, ok
}

// Wires returns the wires of s in ascending order.
func (s State) Wires() []WireID {
	out := make([]WireID, 0, len(s))
	for w := range s {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone copies s.
func (s State) Clone() State {
	out := make(State, len(s))
	for w, v := range s {
		out[w] = v
	}
	return out
}

// Equal reports whether both states assign the same wires the same values.
func (s State) Equal(o State) bool {
	if len(s) != len(o) {
		return false
	}
	for w, v := range s {
		ov, ok := o[w]
		if !ok || !v.Equal(&ov) {
			return false
		}
	}
	return true
}

// Merge copies every entry of src into s. A wire assigned in both with
// different values is an error.
func (s State) Merge(src State) error {
	for w, v := range src {
		if cur, ok := s[w]; ok && !cur.Equal(&v) {
			return fmt.Errorf("conflicting assignment for wire %d", w)
		}
		s[w] = v
	}
	return nil
}

// Accumulate folds values into the running accumulator with MiMC.
func Accumulate(prev fr.Element, values []fr.Element) fr.Element {
	h := mimc.NewMiMC()
	b := prev.Bytes()
	h.Write(b[:])
	for i := range values {
		b = values[i].Bytes()
		h.Write(b[:])
	}
	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out
}

// MarshalJSON encodes s as an object of decimal wire ids to decimal values.
func (s State) MarshalJSON() ([]byte, error) {
	m := make(map[string]string, len(s))
	for w, v := range s {
		m[strconv.FormatUint(uint64(w), 10)] = v.String()
	}
	return json.Marshal(m)
}

func (s *State) UnmarshalJSON(b []byte) error {
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	out := make(State, len(m))
	for k, val := range m {
		w, err := strconv.ParseUint(k, 10, 32)
		if err != nil {
			return fmt.Errorf("wire %q: %w", k, err)
		}
		var v fr.Element
		if _, err := v.SetString(val); err != nil {
			return fmt.Errorf("wire %d: %w", w, err)
		}
		out[WireID(w)] = v
	}
	*s = out
	return nil
}
