// Package relayer drives the round pipeline end to end: close the intake
// window, invoke the matching engine, post the root (locking it is not done
// here), and publish the result for private distribution. It is a cooperative
// poller that periodically fetches round state, conditionally triggers
// matching, and posts roots.
package relayer

import (
	"context"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/shadowpool/shadowpool/internal/distribution"
	"github.com/shadowpool/shadowpool/internal/domain"
	"github.com/shadowpool/shadowpool/internal/matching"
	"github.com/shadowpool/shadowpool/internal/metrics"
	"github.com/shadowpool/shadowpool/internal/roundclock"
)

// Matcher invokes the matching engine for one round. Supplied by the
// caller so the relayer never depends on the decryption transport
// directly.
type Matcher func(ctx context.Context, roundID domain.Hash) (matching.Result, error)

// RootPoster is the subset of the root registry the relayer drives.
type RootPoster interface {
	CloseRound(caller domain.Address, roundID domain.Hash) error
	PostRoot(sender domain.Address, roundID domain.Hash, root domain.Hash, validUntil uint64) error
	GetRoundInfo(roundID domain.Hash) domain.RoundRoot
}

// Archive persists a processed round's artifacts for audit and replay.
// Satisfied by internal/store.Store; nil disables archival.
type Archive interface {
	SaveMatches(ctx context.Context, result matching.Result) error
	SaveRoundRoot(ctx context.Context, roundID domain.Hash, r domain.RoundRoot) error
}

// Dedup claims a round across relayer replicas before processing, so two
// relayers sharing a cache never double-drive the same round's pipeline.
// Satisfied by internal/cache.Cache; nil disables cross-replica dedup.
type Dedup interface {
	MarkRoundProcessed(ctx context.Context, roundID domain.Hash, ttl time.Duration) (bool, error)
}

// Config tunes the relayer's polling cadence and backoff behavior.
type Config struct {
	PollInterval   time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	BackoffFactor  float64

	Owner   domain.Address
	Matcher domain.Address

	// RootValiditySeconds is added to now; postRoot's validUntil is the
	// later of that and the result's roundExpiry. No root is posted when
	// no matches were emitted.
	RootValiditySeconds uint64

	// Archive and Dedup are optional collaborators; both may be nil.
	Archive  Archive
	Dedup    Dedup
	DedupTTL time.Duration
}

// DefaultConfig returns defaults tuned for block-cadence rounds.
func DefaultConfig() Config {
	return Config{
		PollInterval:        1 * time.Second,
		BackoffInitial:      500 * time.Millisecond,
		BackoffMax:          30 * time.Second,
		BackoffFactor:       2.0,
		RootValiditySeconds: 300,
		DedupTTL:            24 * time.Hour,
	}
}

// Relayer polls the round clock and drives one round's pipeline per
// completed intake window.
type Relayer struct {
	cfg   Config
	clock *roundclock.Clock
	roots RootPoster
	match Matcher
	dist  *distribution.Store
	now   func() time.Time

	processed map[domain.Hash]bool
	backoff   time.Duration
	errStreak int
}

// New constructs a Relayer.
func New(cfg Config, clock *roundclock.Clock, roots RootPoster, match Matcher, dist *distribution.Store) *Relayer {
	return &Relayer{
		cfg:       cfg,
		clock:     clock,
		roots:     roots,
		match:     match,
		dist:      dist,
		now:       time.Now,
		processed: make(map[domain.Hash]bool),
		backoff:   cfg.BackoffInitial,
	}
}

// Run polls until ctx is cancelled, driving each newly-closed round's
// pipeline exactly once.
func (r *Relayer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Relayer) tick(ctx context.Context) {
	now := r.now()
	roundID := r.clock.RoundID(now)

	if r.clock.InIntake(now) || r.processed[roundID] {
		return
	}

	traceID := uuid.New().String()

	if r.cfg.Dedup != nil {
		claimed, err := r.cfg.Dedup.MarkRoundProcessed(ctx, roundID, r.cfg.DedupTTL)
		if err != nil {
			log.Printf("relayer[%s]: round %s dedup check failed, proceeding: %v", traceID, roundID.Hex(), err)
		} else if !claimed {
			log.Printf("relayer[%s]: round %s already claimed by another replica", traceID, roundID.Hex())
			r.processed[roundID] = true
			return
		}
	}

	if err := r.processRound(ctx, roundID); err != nil {
		r.errStreak++
		metrics.ConsecutiveErrors.WithLabelValues("pipeline").Set(float64(r.errStreak))
		log.Printf("relayer[%s]: round %s failed: %v (streak=%d)", traceID, roundID.Hex(), err, r.errStreak)
		r.sleepBackoff(ctx)
		return
	}

	log.Printf("relayer[%s]: round %s processed", traceID, roundID.Hex())
	r.processed[roundID] = true
	r.errStreak = 0
	r.backoff = r.cfg.BackoffInitial
	metrics.ConsecutiveErrors.WithLabelValues("pipeline").Set(0)
	metrics.RoundsProcessed.WithLabelValues("pipeline", "success").Inc()
}

func (r *Relayer) processRound(ctx context.Context, roundID domain.Hash) error {
	if err := r.roots.CloseRound(r.cfg.Owner, roundID); err != nil {
		return err
	}

	result, err := r.match(ctx, roundID)
	if err != nil {
		return err
	}
	metrics.MatchesEmitted.Add(float64(len(result.Matches)))

	if len(result.Matches) > 0 {
		validUntil := result.RoundExpiry
		if extended := uint64(r.now().Unix()) + r.cfg.RootValiditySeconds; extended > validUntil {
			validUntil = extended
		}
		if err := r.roots.PostRoot(r.cfg.Matcher, roundID, result.MerkleRoot, validUntil); err != nil {
			return err
		}
	}

	if r.dist != nil {
		r.dist.Publish(result)
	}

	if r.cfg.Archive != nil {
		// Archival is best-effort: the root, if any, is already posted, so a
		// failed write must not fail the round.
		if err := r.cfg.Archive.SaveMatches(ctx, result); err != nil {
			log.Printf("relayer: round %s: archive matches: %v", roundID.Hex(), err)
		}
		if err := r.cfg.Archive.SaveRoundRoot(ctx, roundID, r.roots.GetRoundInfo(roundID)); err != nil {
			log.Printf("relayer: round %s: archive round root: %v", roundID.Hex(), err)
		}
	}
	return nil
}

// sleepBackoff waits the current exponential-backoff-with-jitter delay,
// then grows it toward BackoffMax.
func (r *Relayer) sleepBackoff(ctx context.Context) {
	jitter := time.Duration(rand.Int63n(int64(r.backoff)/2 + 1))
	delay := r.backoff + jitter
	metrics.BackoffSeconds.WithLabelValues("pipeline").Set(delay.Seconds())

	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}

	r.backoff = time.Duration(math.Min(
		float64(r.backoff)*r.cfg.BackoffFactor,
		float64(r.cfg.BackoffMax),
	))
}
