// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package chunker

import (
	"sort"

	"github.com/Sunereum-Labs/BitVM/internal/circuit"
)

// liveness records, for every wire, the first boundary position where its
// value is available (def) and the last position where it is still needed
// (last). Position p sits between step p-1 and step p. A wire crosses
// boundary p when def <= p <= last.
type liveness struct {
	n         int
	def, last []int
	crossing  []bool
	definedAt [][]circuit.WireID // internal and output wires first referenced by each step
	liveCount []int              // crossing wires at each position 0..n
}

func analyze(c *circuit.Circuit) *liveness {
	n := len(c.Steps)
	nw := c.NbWires()
	lv := &liveness{
		n:         n,
		def:       make([]int, nw),
		last:      make([]int, nw),
		crossing:  make([]bool, nw),
		definedAt: make([][]circuit.WireID, n),
		liveCount: make([]int, n+1),
	}
	first := make([]int, nw)
	for w := range first {
		first[w] = -1
		lv.last[w] = -1
	}
	for j, s := range c.Steps {
		for _, w := range s.Wires() {
			if first[w] < 0 {
				first[w] = j
				if !c.IsInput(w) || c.IsOutput(w) {
					lv.definedAt[j] = append(lv.definedAt[j], w)
				}
			}
			lv.last[w] = j
		}
	}

	diff := make([]int, n+2)
	for i := 1; i < nw; i++ {
		w := circuit.WireID(i)
		switch {
		case c.IsOutput(w):
			// claimed outputs are settled where first used, then carried to the end
			if first[w] < 0 {
				continue
			}
			lv.def[w], lv.last[w] = first[w]+1, n
		case c.IsPublic(w):
			// public values belong to every boundary
			lv.def[w], lv.last[w] = 0, n
		case c.IsInput(w):
			if first[w] < 0 {
				continue
			}
			lv.def[w] = 0
		default:
			if first[w] < 0 {
				continue
			}
			lv.def[w] = first[w] + 1
		}
		if lv.def[w] > lv.last[w] {
			continue
		}
		lv.crossing[w] = true
		diff[lv.def[w]]++
		diff[lv.last[w]+1]--
	}
	run := 0
	for p := 0; p <= n; p++ {
		run += diff[p]
		lv.liveCount[p] = run
	}
	return lv
}

// boundaries returns the sorted crossing wires at each of the given
// ascending positions.
func (lv *liveness) boundaries(positions []int) [][]circuit.WireID {
	out := make([][]circuit.WireID, len(positions))
	for i, ok := range lv.crossing {
		if !ok {
			continue
		}
		lo := sort.SearchInts(positions, lv.def[i])
		for k := lo; k < len(positions) && positions[k] <= lv.last[i]; k++ {
			out[k] = append(out[k], circuit.WireID(i))
		}
	}
	return out
}

// referenced reports whether w appears in any step or is an oracle-supplied
// public wire.
func (lv *liveness) referenced(c *circuit.Circuit, w circuit.WireID) bool {
	return (c.IsPublic(w) && !c.IsOutput(w)) || (w != circuit.OneWire && lv.last[w] >= 0)
}
