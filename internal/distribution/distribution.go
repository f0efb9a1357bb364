// Package distribution implements the private match distribution surface:
// a per-round store of matcher results, exposed as either an
// unauthenticated public digest or a wallet-signature-gated per-trader
// view.
package distribution

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shadowpool/shadowpool/internal/domain"
	"github.com/shadowpool/shadowpool/internal/matching"
	"github.com/shadowpool/shadowpool/internal/merkle"
)

var (
	// ErrRoundNotFound is returned when no matcher result has been
	// published for the requested round.
	ErrRoundNotFound = errors.New("distribution: round not found")
	// ErrStaleChallenge is returned when a private-view timestamp falls
	// outside the configured freshness TTL.
	ErrStaleChallenge = errors.New("distribution: challenge timestamp is stale")
	// ErrBadSignature is returned when the challenge signature does not
	// recover to the claimed address.
	ErrBadSignature = errors.New("distribution: signature does not recover to the claimed address")
)

// PublicDigest is the unauthenticated summary of a round's matcher
// output: no leaves, no per-match detail.
type PublicDigest struct {
	RoundID      domain.Hash `json:"roundId"`
	MerkleRoot   domain.Hash `json:"merkleRoot"`
	RoundExpiry  uint64      `json:"roundExpiry"`
	GeneratedAt  uint64      `json:"generatedAt"`
	MatchesCount int         `json:"matchesCount"`
	Matches      []struct{}  `json:"matches"`
}

// Store holds matcher results keyed by roundId, and serves both the
// public digest and the authenticated per-trader view.
type Store struct {
	mu          sync.RWMutex
	results     map[domain.Hash]matching.Result
	generatedAt map[domain.Hash]uint64

	challengeTTL uint64
	now          func() uint64
}

// New constructs a Store with the given challenge TTL (seconds) and clock.
func New(challengeTTLSec uint64, now func() uint64) *Store {
	return &Store{
		results:      make(map[domain.Hash]matching.Result),
		generatedAt:  make(map[domain.Hash]uint64),
		challengeTTL: challengeTTLSec,
		now:          now,
	}
}

// Publish records a round's matcher result, making it available for both
// public and private retrieval.
func (s *Store) Publish(result matching.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.RoundID] = result
	s.generatedAt[result.RoundID] = s.now()
}

// PublicDigest returns the unauthenticated summary for roundID.
func (s *Store) PublicDigest(roundID domain.Hash) (PublicDigest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.results[roundID]
	if !ok {
		return PublicDigest{}, ErrRoundNotFound
	}

	return PublicDigest{
		RoundID:      result.RoundID,
		MerkleRoot:   result.MerkleRoot,
		RoundExpiry:  result.RoundExpiry,
		GeneratedAt:  s.generatedAt[roundID],
		MatchesCount: len(result.Matches),
		Matches:      []struct{}{},
	}, nil
}

// PrivateMatches authenticates a wallet-signature challenge and returns
// every match in roundID whose trader equals the claimed address. The
// challenge message is "shadowpool:matches:"+address.Hex()+":"+timestamp;
// the signature is checked over EthSignedMessageHash(keccak256(message)),
// i.e. the "\x19Ethereum Signed Message:\n32" prefix over the message's
// 32-byte hash.
func (s *Store) PrivateMatches(roundID domain.Hash, address domain.Address, timestampSec uint64, signature [65]byte) ([]domain.Match, error) {
	now := s.now()
	var age uint64
	if now >= timestampSec {
		age = now - timestampSec
	} else {
		age = timestampSec - now
	}
	if age > s.challengeTTL {
		return nil, ErrStaleChallenge
	}

	msg := fmt.Sprintf("shadowpool:matches:%s:%d", address.Hex(), timestampSec)
	challenge := crypto.Keccak256Hash([]byte(msg))

	recovered, err := merkle.RecoverSigner(challenge, signature)
	if err != nil || recovered != address {
		return nil, ErrBadSignature
	}

	s.mu.RLock()
	result, ok := s.results[roundID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrRoundNotFound
	}

	var out []domain.Match
	for _, m := range result.Matches {
		if m.Trader == address {
			out = append(out, m)
		}
	}
	return out, nil
}
