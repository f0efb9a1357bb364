// Package rootregistry implements the per-round root lifecycle state
// machine: open → closed → rootPosted → (optionally locked), with
// matcher-exclusivity and root-expiry semantics.
package rootregistry

import (
	"sync"
	"time"

	"github.com/shadowpool/shadowpool/internal/domain"
	"github.com/shadowpool/shadowpool/internal/registry"
)

type roundEntry struct {
	domain.RoundRoot
}

// Registry is the per-round root lifecycle ledger. It delegates intent
// bookkeeping to the shared internal/registry.Registry so there is a
// single intent collection rather than two overlapping ones.
type Registry struct {
	intents *registry.Registry
	owner   domain.Address
	now     func() time.Time

	mu     sync.RWMutex
	rounds map[domain.Hash]*roundEntry
}

// New creates a Registry that shares intake bookkeeping with intents and
// is administered by owner.
func New(intents *registry.Registry, owner domain.Address) *Registry {
	return &Registry{
		intents: intents,
		owner:   owner,
		now:     time.Now,
		rounds:  make(map[domain.Hash]*roundEntry),
	}
}

// SubmitIntent records protectedData's participation in roundID. Valid
// only while the round is open, unrooted, and the handle has not already
// submitted.
func (rr *Registry) SubmitIntent(roundID domain.Hash, protectedData domain.Address) (uint64, error) {
	if protectedData == (domain.Address{}) {
		return 0, ErrInvalidProtectedData
	}

	rr.mu.RLock()
	entry := rr.rounds[roundID]
	rr.mu.RUnlock()

	if entry != nil {
		if entry.RoundClosed {
			return 0, ErrRoundClosed
		}
		if entry.Root != (domain.Hash{}) {
			return 0, ErrRootAlreadySet
		}
	}

	if rr.intents.IsIntentRegistered(roundID, protectedData) {
		return 0, ErrIntentAlreadySubmitted
	}

	position, err := rr.intents.SubmitIntent(roundID, protectedData)
	if err != nil {
		if err == registry.ErrIntentAlreadyRegistered {
			return 0, ErrIntentAlreadySubmitted
		}
		return 0, err
	}
	return position, nil
}

// CloseRound transitions a round from Open to Closed. Owner-only.
func (rr *Registry) CloseRound(caller domain.Address, roundID domain.Hash) error {
	if caller != rr.owner {
		return ErrUnauthorized
	}

	rr.mu.Lock()
	defer rr.mu.Unlock()

	entry := rr.roundLocked(roundID)
	entry.RoundClosed = true
	return nil
}

// PostRoot posts or rotates a round's Merkle root. The first successful
// call from any sender binds the matcher address for the round; later
// calls must come from that same matcher and must not be locked.
func (rr *Registry) PostRoot(sender domain.Address, roundID domain.Hash, root domain.Hash, validUntil uint64) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	entry := rr.roundLocked(roundID)

	if !entry.RoundClosed {
		return ErrRoundNotClosed
	}
	if root == (domain.Hash{}) {
		return ErrInvalidRoot
	}
	now := uint64(rr.now().Unix())
	if validUntil <= now {
		return ErrInvalidValidUntil
	}
	if entry.RootLocked {
		return ErrRootLocked
	}
	if entry.Matcher != (domain.Address{}) && sender != entry.Matcher {
		return ErrNotMatcher
	}

	entry.Root = root
	entry.ValidUntil = validUntil
	entry.Matcher = sender
	return nil
}

// LockRoot irreversibly locks the posted root for roundID. Only the bound
// matcher may call this, and only after a root has been posted.
func (rr *Registry) LockRoot(sender domain.Address, roundID domain.Hash) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	entry := rr.roundLocked(roundID)
	if entry.Root == (domain.Hash{}) {
		return ErrRootNotSet
	}
	if sender != entry.Matcher {
		return ErrNotMatcher
	}
	entry.RootLocked = true
	return nil
}

func (rr *Registry) roundLocked(roundID domain.Hash) *roundEntry {
	entry, ok := rr.rounds[roundID]
	if !ok {
		entry = &roundEntry{}
		rr.rounds[roundID] = entry
	}
	return entry
}

// GetRoot returns the currently posted root for roundID (zero if none).
func (rr *Registry) GetRoot(roundID domain.Hash) domain.Hash {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	if e, ok := rr.rounds[roundID]; ok {
		return e.Root
	}
	return domain.Hash{}
}

// GetRootValidUntil returns the root's expiry, unix seconds.
func (rr *Registry) GetRootValidUntil(roundID domain.Hash) uint64 {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	if e, ok := rr.rounds[roundID]; ok {
		return e.ValidUntil
	}
	return 0
}

// GetMatcher returns the address bound to roundID, or the zero address.
func (rr *Registry) GetMatcher(roundID domain.Hash) domain.Address {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	if e, ok := rr.rounds[roundID]; ok {
		return e.Matcher
	}
	return domain.Address{}
}

// IsRootLocked reports whether roundID's root has been locked.
func (rr *Registry) IsRootLocked(roundID domain.Hash) bool {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	if e, ok := rr.rounds[roundID]; ok {
		return e.RootLocked
	}
	return false
}

// IsRoundClosed reports whether roundID has been closed by the owner.
func (rr *Registry) IsRoundClosed(roundID domain.Hash) bool {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	if e, ok := rr.rounds[roundID]; ok {
		return e.RoundClosed
	}
	return false
}

// IsRootActive reports whether roundID has a non-zero root that has not
// yet expired.
func (rr *Registry) IsRootActive(roundID domain.Hash) bool {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	e, ok := rr.rounds[roundID]
	if !ok || e.Root == (domain.Hash{}) {
		return false
	}
	return uint64(rr.now().Unix()) <= e.ValidUntil
}

// GetRoundInfo returns the full RoundRoot snapshot for roundID.
func (rr *Registry) GetRoundInfo(roundID domain.Hash) domain.RoundRoot {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	if e, ok := rr.rounds[roundID]; ok {
		return e.RoundRoot
	}
	return domain.RoundRoot{}
}

// AllIntents returns every intent ref registered for roundID, in insertion
// order, delegating to the shared intake registry.
func (rr *Registry) AllIntents(roundID domain.Hash) []domain.IntentRef {
	return rr.intents.AllIntents(roundID)
}
