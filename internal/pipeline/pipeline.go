// Package pipeline assembles one round's matching.RoundInputs from the
// root registry's intent refs and the decryption transport stub in
// internal/intentfeed, then hands the result to matching.Match. This is
// the glue the relayer's Matcher callback is built from; it owns no state
// of its own beyond what it's constructed with.
package pipeline

import (
	"context"
	"fmt"
	"log"

	"github.com/shadowpool/shadowpool/internal/domain"
	"github.com/shadowpool/shadowpool/internal/intentfeed"
	"github.com/shadowpool/shadowpool/internal/kmsintent"
	"github.com/shadowpool/shadowpool/internal/matching"
	"github.com/shadowpool/shadowpool/internal/merkle"
	"github.com/shadowpool/shadowpool/internal/relayer"
	"github.com/shadowpool/shadowpool/internal/rootregistry"
)

// Builder turns a closed round into matching.RoundInputs and runs it
// through the matching engine.
type Builder struct {
	Intents           *rootregistry.Registry
	Feed              *intentfeed.Feed
	KMS               *kmsintent.Client
	Signer            merkle.Signer
	SignerAddress     domain.Address
	RoundEndSeconds   func(roundID domain.Hash) uint64
	MismatchTolerance float64
}

// Matcher returns a relayer.Matcher closure bound to this builder, ready
// to hand to relayer.New.
func (b *Builder) Matcher() relayer.Matcher {
	return func(ctx context.Context, roundID domain.Hash) (matching.Result, error) {
		return b.run(ctx, roundID)
	}
}

func (b *Builder) run(ctx context.Context, roundID domain.Hash) (matching.Result, error) {
	refs := b.Intents.AllIntents(roundID)

	decrypted := make([]matching.IntentInput, 0, len(refs))
	for _, ref := range refs {
		ciphertext, ok := b.Feed.Get(ref.ProtectedDataHandle)
		if !ok {
			log.Printf("pipeline: round %s: no ciphertext for handle %s, dropping", roundID.Hex(), ref.ProtectedDataHandle.Hex())
			continue
		}

		intent, err := b.KMS.DecryptIntent(ctx, ciphertext)
		if err != nil {
			log.Printf("pipeline: round %s: decrypt failed for handle %s: %v", roundID.Hex(), ref.ProtectedDataHandle.Hex(), err)
			continue
		}

		decrypted = append(decrypted, matching.IntentInput{
			ProtectedDataHandle: ref.ProtectedDataHandle,
			Intent:              intent,
		})
		b.Feed.Delete(ref.ProtectedDataHandle)
	}

	var validUntil *uint64
	if v := b.Intents.GetRootValidUntil(roundID); v != 0 {
		validUntil = &v
	}

	in := &matching.RoundInputs{
		RoundID:           roundID,
		RoundEndSeconds:   b.RoundEndSeconds(roundID),
		ValidUntil:        validUntil,
		Refs:              refs,
		Decrypted:         decrypted,
		TeeSigner:         b.Signer,
		SignerAddress:     b.SignerAddress,
		MismatchTolerance: b.MismatchTolerance,
	}

	result, err := matching.Match(ctx, in)
	if err != nil {
		return matching.Result{}, fmt.Errorf("pipeline: match round %s: %w", roundID.Hex(), err)
	}
	return result, nil
}
