// Command matcher runs the matching engine for a single round and prints
// the result as JSON. The intent registry, root registry and intent feed it
// matches against are in-memory and created empty by this process, so it
// sees no intents registered or submitted by any other process.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/awnumar/memguard"
	"github.com/ethereum/go-ethereum/common"

	"github.com/shadowpool/shadowpool/internal/config"
	"github.com/shadowpool/shadowpool/internal/domain"
	"github.com/shadowpool/shadowpool/internal/intentfeed"
	"github.com/shadowpool/shadowpool/internal/kmsintent"
	"github.com/shadowpool/shadowpool/internal/pipeline"
	"github.com/shadowpool/shadowpool/internal/registry"
	"github.com/shadowpool/shadowpool/internal/rootregistry"
	"github.com/shadowpool/shadowpool/internal/roundclock"
	"github.com/shadowpool/shadowpool/internal/teesigner"
)

func main() {
	defer memguard.Purge()

	roundHex := flag.String("round", "", "round id, 0x-prefixed 32-byte hex")
	flag.Parse()

	if *roundHex == "" {
		fmt.Fprintln(os.Stderr, "usage: matcher -round 0x...")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	clock, err := roundclock.New(cfg.Round.Namespace, cfg.Round.DurationSeconds, cfg.Round.IntakeWindowSeconds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build round clock: %v\n", err)
		os.Exit(1)
	}

	owner := domain.Address{1}
	intents := registry.New(clock, owner)
	roots := rootregistry.New(intents, owner)

	kms, err := kmsintent.New(ctx, cfg.TeeSigner.AWSRegion, cfg.LocalStackEndpoint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create kms client: %v\n", err)
		os.Exit(1)
	}

	session := teesigner.NewSession(time.Duration(cfg.TeeSigner.SessionTTLSec) * time.Second)
	sealed := os.Getenv("SHADOWPOOL_TEESIGNER_SEALED_KEY")
	if sealed == "" {
		fmt.Fprintln(os.Stderr, "SHADOWPOOL_TEESIGNER_SEALED_KEY is not set")
		os.Exit(1)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "decode sealed key: %v\n", err)
		os.Exit(1)
	}
	keyBytes, err := kms.Decrypt(ctx, ciphertext)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kms decrypt: %v\n", err)
		os.Exit(1)
	}
	if err := session.Activate(keyBytes); err != nil {
		fmt.Fprintf(os.Stderr, "activate signer: %v\n", err)
		os.Exit(1)
	}
	memguard.WipeBytes(keyBytes)
	defer session.Destroy()

	signerAddr, _ := session.Address()

	builder := &pipeline.Builder{
		Intents:       roots,
		Feed:          intentfeed.NewFeed(),
		KMS:           kms,
		Signer:        session,
		SignerAddress: signerAddr,
		RoundEndSeconds: func(domain.Hash) uint64 {
			return clock.RoundEndSeconds(time.Now())
		},
		MismatchTolerance: cfg.Round.MismatchTolerance,
	}

	roundID := common.HexToHash(*roundHex)

	matcherFn := builder.Matcher()
	result, err := matcherFn(ctx, roundID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "match round %s: %v\n", roundID.Hex(), err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "encode result: %v\n", err)
		os.Exit(1)
	}
}
