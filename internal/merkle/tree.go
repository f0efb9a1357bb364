// Package merkle implements the canonical leaf encoding, sorted-pair
// Merkle construction, proof generation/verification, and ECDSA-over-
// prefixed-hash signing backing the match commitment layer.
package merkle

import (
	"bytes"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shadowpool/shadowpool/internal/domain"
)

// EncodeTuple hashes the concatenation of fixed-width ABI words (32-byte
// left-padded, then keccak256) for an arbitrary tuple of fields.
func EncodeTuple(words ...[]byte) domain.Hash {
	return crypto.Keccak256Hash(words...)
}

// Node combines two sibling hashes using sorted-pair hashing:
// node(a,b) = keccak256(min(a,b) ‖ max(a,b)). This makes proofs
// order-agnostic.
func Node(a, b domain.Hash) domain.Hash {
	if bytes.Compare(a.Bytes(), b.Bytes()) <= 0 {
		return crypto.Keccak256Hash(a.Bytes(), b.Bytes())
	}
	return crypto.Keccak256Hash(b.Bytes(), a.Bytes())
}

// Tree holds every level of a constructed Merkle tree, leaves first, so
// that proofs can be produced for any leaf index without recomputation.
// Levels are flat contiguous slices of 32-byte hashes.
type Tree struct {
	levels [][]domain.Hash // levels[0] = leaves, levels[len-1] = [root]
}

// Build constructs a Tree from leaves in the given (emission) order. An
// empty slice yields a Tree whose Root is the zero hash; a single leaf
// yields a Tree whose Root is that leaf.
func Build(leaves []domain.Hash) *Tree {
	if len(leaves) == 0 {
		return &Tree{levels: [][]domain.Hash{{}}}
	}

	level := make([]domain.Hash, len(leaves))
	copy(level, leaves)
	levels := [][]domain.Hash{level}

	for len(level) > 1 {
		next := make([]domain.Hash, 0, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			next = append(next, Node(level[i], level[i+1]))
		}
		if len(level)%2 == 1 {
			// Odd orphan propagates unchanged to the next level.
			next = append(next, level[len(level)-1])
		}
		levels = append(levels, next)
		level = next
	}

	return &Tree{levels: levels}
}

// Root returns the tree's root hash.
func (t *Tree) Root() domain.Hash {
	top := t.levels[len(t.levels)-1]
	if len(top) == 0 {
		return domain.Hash{}
	}
	return top[0]
}

// Proof returns the ordered sibling hashes from leaf index i to the root.
func (t *Tree) Proof(i int) []domain.Hash {
	var proof []domain.Hash
	idx := i
	for level := 0; level < len(t.levels)-1; level++ {
		nodes := t.levels[level]
		if idx%2 == 0 {
			if idx+1 < len(nodes) {
				proof = append(proof, nodes[idx+1])
			}
			// else: idx is the odd orphan, it propagates with no sibling.
		} else {
			proof = append(proof, nodes[idx-1])
		}
		idx /= 2
	}
	return proof
}

// VerifyProof re-applies Node at each step of proof, starting from leaf,
// and reports whether the result equals root.
func VerifyProof(root, leaf domain.Hash, proof []domain.Hash) bool {
	current := leaf
	for _, sibling := range proof {
		current = Node(current, sibling)
	}
	return current == root
}
