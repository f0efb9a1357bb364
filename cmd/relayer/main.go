package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awnumar/memguard"

	"github.com/shadowpool/shadowpool/internal/cache"
	"github.com/shadowpool/shadowpool/internal/config"
	"github.com/shadowpool/shadowpool/internal/distribution"
	"github.com/shadowpool/shadowpool/internal/distribution/httpapi"
	"github.com/shadowpool/shadowpool/internal/domain"
	"github.com/shadowpool/shadowpool/internal/intentfeed"
	"github.com/shadowpool/shadowpool/internal/kmsintent"
	"github.com/shadowpool/shadowpool/internal/pipeline"
	"github.com/shadowpool/shadowpool/internal/registry"
	"github.com/shadowpool/shadowpool/internal/relayer"
	"github.com/shadowpool/shadowpool/internal/rootregistry"
	"github.com/shadowpool/shadowpool/internal/roundclock"
	"github.com/shadowpool/shadowpool/internal/store"
	"github.com/shadowpool/shadowpool/internal/teesigner"
)

func main() {
	defer memguard.Purge()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("ShadowPool relayer starting (env=%s, namespace=%s)\n", cfg.Env, cfg.Round.Namespace)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	clock, err := roundclock.New(cfg.Round.Namespace, cfg.Round.DurationSeconds, cfg.Round.IntakeWindowSeconds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build round clock: %v\n", err)
		os.Exit(1)
	}

	owner := domain.Address{1}
	matcherAddr := domain.Address{2}

	intents := registry.New(clock, owner)
	roots := rootregistry.New(intents, owner)

	kms, err := kmsintent.New(ctx, cfg.TeeSigner.AWSRegion, cfg.LocalStackEndpoint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create kms client: %v\n", err)
		os.Exit(1)
	}

	session := teesigner.NewSession(time.Duration(cfg.TeeSigner.SessionTTLSec) * time.Second)
	if err := activateSigner(ctx, kms, session); err != nil {
		fmt.Fprintf(os.Stderr, "failed to activate tee signer: %v\n", err)
		os.Exit(1)
	}
	signerAddr, _ := session.Address()

	feed := intentfeed.NewFeed()

	builder := &pipeline.Builder{
		Intents:       roots,
		Feed:          feed,
		KMS:           kms,
		Signer:        session,
		SignerAddress: signerAddr,
		RoundEndSeconds: func(roundID domain.Hash) uint64 {
			return clock.RoundEndSeconds(time.Now())
		},
		MismatchTolerance: cfg.Round.MismatchTolerance,
	}

	dist := distribution.New(uint64(cfg.Distribution.ChallengeTTLSec), func() uint64 { return uint64(time.Now().Unix()) })

	db, err := store.Connect(ctx, cfg.DB.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to postgres: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.InitSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init schema: %v\n", err)
		os.Exit(1)
	}

	rdb := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer rdb.Close()

	relayerCfg := relayer.DefaultConfig()
	relayerCfg.Owner = owner
	relayerCfg.Matcher = matcherAddr
	relayerCfg.Archive = db
	relayerCfg.Dedup = rdb
	rel := relayer.New(relayerCfg, clock, roots, builder.Matcher(), dist)

	// Persist every registered intent ref as it arrives.
	events := intents.Subscribe()
	go func() {
		for ev := range events {
			ref := domain.IntentRef{
				Trader:              ev.Trader,
				ProtectedDataHandle: ev.ProtectedDataHandle,
				Commitment:          ev.Commitment,
				IntentID:            ev.IntentID,
				Timestamp:           ev.Timestamp,
				Position:            ev.Position,
			}
			if err := db.SaveIntentRef(ctx, ev.RoundID, ref); err != nil {
				fmt.Fprintf(os.Stderr, "persist intent ref: %v\n", err)
			}
		}
	}()

	challengeTTL := time.Duration(cfg.Distribution.ChallengeTTLSec) * time.Second
	httpSrv := &http.Server{
		Addr:    cfg.Distribution.ListenAddr,
		Handler: httpapi.NewRouter(dist, rdb, challengeTTL),
	}

	go rel.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()

	fmt.Printf("ShadowPool relayer ready, distribution api listening on %s\n", cfg.Distribution.ListenAddr)

	select {
	case <-ctx.Done():
		fmt.Println("relayer shutting down gracefully...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		session.Destroy()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "distribution api error: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("relayer stopped")
}

// activateSigner bootstraps the TEE signing session from a KMS-encrypted
// key blob supplied via SHADOWPOOL_TEESIGNER_SEALED_KEY (base64), mirroring
// how intent ciphertexts arrive: this process never sees the raw key except
// for the instant Activate seals it into the enclave.
func activateSigner(ctx context.Context, kms *kmsintent.Client, session *teesigner.Session) error {
	sealed := os.Getenv("SHADOWPOOL_TEESIGNER_SEALED_KEY")
	if sealed == "" {
		return fmt.Errorf("SHADOWPOOL_TEESIGNER_SEALED_KEY is not set")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return fmt.Errorf("decode sealed key: %w", err)
	}

	keyBytes, err := kms.Decrypt(ctx, ciphertext)
	if err != nil {
		return fmt.Errorf("kms decrypt: %w", err)
	}
	defer memguard.WipeBytes(keyBytes)

	return session.Activate(keyBytes)
}
