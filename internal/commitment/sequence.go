// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package commitment

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Sequence is a Merkle tree over the boundary commitments 0..n of a claim.
// Its root is the claim's chunk sequence reference; every commitment the
// Prover publishes during bisection comes with an inclusion proof against it.
type Sequence struct {
	count  int
	levels [][]Commitment
	root   Commitment
}

// Proof is a Merkle inclusion proof. Odd levels duplicate their last node.
type Proof struct {
	Index    int          `json:"index"`
	Count    int          `json:"count"`
	Siblings []Commitment `json:"siblings"`
}

var ErrEmptySequence = errors.New("commitment: empty sequence")

func leafHash(i int, c Commitment) Commitment {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(leafTag))
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(i))
	h.Write(buf[:])
	h.Write(c[:])
	var out Commitment
	copy(out[:], h.Sum(nil))
	return out
}

func nodeHash(l, r Commitment) Commitment {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(nodeTag))
	h.Write(l[:])
	h.Write(r[:])
	var out Commitment
	copy(out[:], h.Sum(nil))
	return out
}

func rootHash(count int, top Commitment) Commitment {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(rootTag))
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(count))
	h.Write(buf[:])
	h.Write(top[:])
	var out Commitment
	copy(out[:], h.Sum(nil))
	return out
}

// NewSequence builds the tree over boundaries.
func NewSequence(boundaries []Commitment) (*Sequence, error) {
	if len(boundaries) == 0 {
		return nil, ErrEmptySequence
	}
	level := make([]Commitment, len(boundaries))
	for i, c := range boundaries {
		level[i] = leafHash(i, c)
	}
	s := &Sequence{count: len(boundaries)}
	for len(level) > 1 {
		s.levels = append(s.levels, level)
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([]Commitment, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = nodeHash(level[i], level[i+1])
		}
		level = next
	}
	s.levels = append(s.levels, level)
	s.root = rootHash(s.count, level[0])
	return s, nil
}

func (s *Sequence) Root() Commitment { return s.root }

func (s *Sequence) Len() int { return s.count }

// Prove returns the inclusion proof of leaf i.
func (s *Sequence) Prove(i int) (Proof, error) {
	if i < 0 || i >= s.count {
		return Proof{}, fmt.Errorf("leaf %d out of range [0,%d)", i, s.count)
	}
	p := Proof{Index: i, Count: s.count}
	idx := i
	for _, level := range s.levels[:len(s.levels)-1] {
		sib := idx ^ 1
		if sib >= len(level) {
			sib = idx
		}
		p.Siblings = append(p.Siblings, level[sib])
		idx /= 2
	}
	return p, nil
}

// VerifyInclusion checks that c sits at p.Index under root.
func VerifyInclusion(root, c Commitment, p Proof) bool {
	if p.Index < 0 || p.Index >= p.Count {
		return false
	}
	cur := leafHash(p.Index, c)
	idx := p.Index
	for _, sib := range p.Siblings {
		if idx%2 == 0 {
			cur = nodeHash(cur, sib)
		} else {
			cur = nodeHash(sib, cur)
		}
		idx /= 2
	}
	return rootHash(p.Count, cur) == root
}
