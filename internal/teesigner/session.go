// Package teesigner holds the TEE matcher's ECDSA signing key in locked
// memory, opening it only for the instant a leaf signature is produced.
// The key is sealed in a memguard enclave with a TTL; every signing call
// opens the enclave momentarily and destroys the buffer afterward.
package teesigner

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shadowpool/shadowpool/internal/domain"
)

var (
	ErrNoActiveSession = errors.New("teesigner: no active session")
	ErrSessionExpired  = errors.New("teesigner: session expired")
)

// Session holds a decrypted TEE signer key sealed in a memguard.Enclave
// with a TTL. Activate seals the raw key material; SignDigest opens the
// enclave to re-derive the ecdsa.PrivateKey momentarily and destroys the
// opened buffer immediately after use.
type Session struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	address   domain.Address
	expiresAt time.Time
	ttl       time.Duration
}

// NewSession creates a Session with the given default TTL. No key is
// active until Activate is called.
func NewSession(ttl time.Duration) *Session {
	return &Session{ttl: ttl}
}

// Activate seals keyBytes into a memguard Enclave and derives the bound
// signer address. The caller must zero their copy of keyBytes afterward.
func (s *Session) Activate(keyBytes []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	privKey, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return fmt.Errorf("teesigner: invalid private key: %w", err)
	}
	addr := crypto.PubkeyToAddress(privKey.PublicKey)

	s.enclave = memguard.NewEnclave(keyBytes)
	s.address = addr
	s.expiresAt = time.Now().Add(s.ttl)
	return nil
}

// SignDigest opens the enclave momentarily and produces a 65-byte
// (r ‖ s ‖ v) ECDSA signature over digest, with v normalized to 27/28.
// It satisfies internal/merkle.Signer.
func (s *Session) SignDigest(digest domain.Hash) ([65]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sig [65]byte
	if s.enclave == nil {
		return sig, ErrNoActiveSession
	}
	if s.isExpiredLocked() {
		return sig, ErrSessionExpired
	}

	buf, err := s.enclave.Open()
	if err != nil {
		return sig, fmt.Errorf("teesigner: open enclave: %w", err)
	}

	privKey, err := crypto.ToECDSA(buf.Bytes())
	buf.Destroy()
	if err != nil {
		return sig, fmt.Errorf("teesigner: parse private key: %w", err)
	}

	raw, err := crypto.Sign(digest.Bytes(), privKey)
	if err != nil {
		return sig, fmt.Errorf("teesigner: ecdsa sign: %w", err)
	}
	raw[64] += 27

	copy(sig[:], raw)
	return sig, nil
}

// Address returns the signer address bound to the active session, and
// whether a session is currently active and unexpired.
func (s *Session) Address() (domain.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.enclave == nil || s.isExpiredLocked() {
		return domain.Address{}, false
	}
	return s.address, true
}

// Destroy drops the session's enclave and bound address, so later
// SignDigest calls fail with ErrNoActiveSession. It does not wipe the
// enclave's memory itself.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enclave = nil
	s.address = domain.Address{}
}

func (s *Session) isExpiredLocked() bool {
	return time.Now().After(s.expiresAt)
}
