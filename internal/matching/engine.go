package matching

import (
	"context"
	"fmt"

	"github.com/shadowpool/shadowpool/internal/domain"
	"github.com/shadowpool/shadowpool/internal/merkle"
)

// Match runs one full round of the matching engine: it filters and
// normalizes the decrypted intents, clears each pair's book independently,
// builds the Merkle tree over the emitted matches, and signs every leaf
// with the round's TEE signer. It is a pure function of its inputs beyond
// the one signing call: no package-level state, no I/O.
func Match(ctx context.Context, in *RoundInputs) (Result, error) {
	eligible, debug, mismatches := buildEligible(in)

	result := Result{
		RoundID:              in.RoundID,
		RoundIDBytes32:       in.RoundID,
		TeeSigner:            in.SignerAddress,
		IntentsCount:         len(in.Decrypted),
		EligibleIntentsCount: len(eligible),
		DebugErrors:          debug,
	}

	if in.MismatchTolerance > 0 && len(in.Decrypted) > 0 {
		rate := float64(mismatches) / float64(len(in.Decrypted))
		if rate > in.MismatchTolerance {
			result.DebugSummary = fmt.Sprintf(
				"mismatch rate %.4f exceeds tolerance %.4f (%d/%d intents rejected)",
				rate, in.MismatchTolerance, mismatches, len(in.Decrypted))
		}
	}

	matches, err := clear(in.RoundID, eligible)
	if err != nil {
		return Result{}, err
	}

	result.RoundExpiry = computeRoundExpiry(in.ValidUntil, matches)

	if len(matches) == 0 {
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	leaves := make([]domain.Hash, len(matches))
	for i := range matches {
		leaves[i] = domain.ComputeLeaf(&matches[i])
		matches[i].Leaf = leaves[i]
	}

	tree := merkle.Build(leaves)
	root := tree.Root()

	for i := range matches {
		sig, err := merkle.SignLeaf(in.TeeSigner, matches[i].Leaf)
		if err != nil {
			return Result{}, fmt.Errorf("matching: signing leaf %d: %w", i, err)
		}
		matches[i].Signature = sig
		matches[i].MerkleProof = tree.Proof(i)
	}

	result.MerkleRoot = root
	result.Matches = matches

	return result, nil
}

// computeRoundExpiry derives the roundExpiry returned to the relayer: the
// earliest of the caller-supplied validUntil (if the root's validity window
// has already been decided) and every emitted match's own expiry. With no
// matches and no validUntil it falls back to 0, which the relayer/root
// registry treat as "no constraint from this round".
func computeRoundExpiry(validUntil *uint64, matches []domain.Match) uint64 {
	var min uint64
	has := false

	if validUntil != nil {
		min = *validUntil
		has = true
	}

	for _, m := range matches {
		if !has || m.Expiry < min {
			min = m.Expiry
			has = true
		}
	}

	return min
}
