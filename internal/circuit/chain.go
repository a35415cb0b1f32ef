// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package circuit

import "github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

// NewChain builds a synthetic workload of n steps
//
//	x[i+1] = (x[i] + i + 1) * x[i]
//
// with x[0] the only public input. Every step depends on the previous one, so
// exactly one computed wire crosses each boundary.
func NewChain(n int) *Circuit {
	c := &Circuit{NbPublic: 2, NbInternal: n, Steps: make([]Step, n)}
	var one fr.Element
	one.SetOne()
	for i := 0; i < n; i++ {
		var k fr.Element
		k.SetUint64(uint64(i + 1))
		x := chainWire(i)
		c.Steps[i] = Step{
			L: LinearExpression{{Wire: x, Coeff: one}, {Wire: OneWire, Coeff: k}},
			R: LinearExpression{{Wire: x, Coeff: one}},
			O: LinearExpression{{Wire: chainWire(i + 1), Coeff: one}},
		}
	}
	return c
}

// ChainTrace evaluates a chain circuit from seed.
func ChainTrace(c *Circuit, seed uint64) Trace {
	t := make(Trace, c.NbWires())
	t[OneWire].SetOne()
	t[chainWire(0)].SetUint64(seed)
	for i := range c.Steps {
		var k, v fr.Element
		k.SetUint64(uint64(i + 1))
		x := t[chainWire(i)]
		v.Add(&x, &k)
		v.Mul(&v, &x)
		t[chainWire(i+1)] = v
	}
	return t
}

func chainWire(i int) WireID { return WireID(1 + i) }
