// Package registry implements the time-partitioned intent intake: each
// encrypted intent is bound to a round, a trader, and a hash commitment
// over its cleartext parameters. It is the single collection backing both
// direct intent registration and the root registry submitIntent path; the
// two overlapping on-chain collections are consolidated here rather than
// duplicated.
package registry

import (
	"sync"
	"time"

	"github.com/shadowpool/shadowpool/internal/domain"
	"github.com/shadowpool/shadowpool/internal/roundclock"
)

// EventKind distinguishes the two call sites that feed this registry, so
// that internal/rootregistry's IntentSubmitted event and internal/registry's
// own IntentRegistered event share one wire shape without losing their
// distinct names on-chain.
type EventKind uint8

const (
	EventIntentRegistered EventKind = iota + 1
	EventIntentSubmitted
)

// Event is published whenever an intent ref is appended. Consumers
// (cmd/relayer's intent-ref persistence, tests) subscribe via
// Registry.Subscribe.
type Event struct {
	Kind                EventKind
	RoundID             domain.Hash
	Trader              domain.Address
	ProtectedDataHandle domain.Address
	Commitment          domain.Hash
	Position            uint64
	IntentID            domain.Hash
	Timestamp           uint64
}

type roundState struct {
	intents []domain.IntentRef
	handles map[domain.Address]bool
}

// Registry is the mutex-protected, time-partitioned intent intake store.
// Registration is gated by a roundclock.Clock: only the current round's id
// is accepted, and only inside its intake sub-window.
type Registry struct {
	clock *roundclock.Clock
	owner domain.Address
	now   func() time.Time

	mu     sync.RWMutex
	rounds map[domain.Hash]*roundState

	subMu sync.RWMutex
	subs  []chan Event
}

// New creates a Registry gated by clock and owned by owner (for the
// *For delegated-registration calls).
func New(clock *roundclock.Clock, owner domain.Address) *Registry {
	return &Registry{
		clock:  clock,
		owner:  owner,
		now:    time.Now,
		rounds: make(map[domain.Hash]*roundState),
	}
}

// Subscribe returns a buffered channel that receives every Event. The
// caller must drain it; slow subscribers have events dropped rather than
// blocking registration.
func (r *Registry) Subscribe() <-chan Event {
	ch := make(chan Event, 256)
	r.subMu.Lock()
	r.subs = append(r.subs, ch)
	r.subMu.Unlock()
	return ch
}

func (r *Registry) publish(ev Event) {
	r.subMu.RLock()
	defer r.subMu.RUnlock()
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber, drop.
		}
	}
}

// RegisterIntent registers a single intent for the caller's own trader
// address. Returns the 1-based insertion position.
func (r *Registry) RegisterIntent(roundID domain.Hash, trader, protectedData domain.Address, commitment domain.Hash) (uint64, error) {
	return r.register(roundID, trader, protectedData, commitment, EventIntentRegistered)
}

// RegisterIntentFor performs owner-delegated registration on behalf of
// trader. Only the configured owner may call this.
func (r *Registry) RegisterIntentFor(caller, trader domain.Address, roundID domain.Hash, protectedData domain.Address, commitment domain.Hash) (uint64, error) {
	if caller != r.owner {
		return 0, ErrUnauthorized
	}
	return r.register(roundID, trader, protectedData, commitment, EventIntentRegistered)
}

// RegisterIntents is the atomic batch form: every sub-validation must pass
// before any intent is appended.
func (r *Registry) RegisterIntents(roundID domain.Hash, traders, protectedDatas []domain.Address, commitments []domain.Hash) (from, to uint64, err error) {
	if len(traders) != len(protectedDatas) || len(traders) != len(commitments) {
		return 0, 0, ErrArrayLengthMismatch
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.validateRound(roundID); err != nil {
		return 0, 0, err
	}

	rs := r.roundStateLocked(roundID)
	for i := range traders {
		if err := validateInputs(traders[i], protectedDatas[i], commitments[i]); err != nil {
			return 0, 0, err
		}
		if rs.handles[protectedDatas[i]] {
			return 0, 0, ErrIntentAlreadyRegistered
		}
	}

	from = uint64(len(rs.intents)) + 1
	for i := range traders {
		r.appendLocked(rs, roundID, traders[i], protectedDatas[i], commitments[i], EventIntentRegistered)
	}
	to = uint64(len(rs.intents))
	return from, to, nil
}

// RegisterIntentsFor is the owner-delegated batch form.
func (r *Registry) RegisterIntentsFor(caller domain.Address, roundID domain.Hash, traders, protectedDatas []domain.Address, commitments []domain.Hash) (from, to uint64, err error) {
	if caller != r.owner {
		return 0, 0, ErrUnauthorized
	}
	return r.RegisterIntents(roundID, traders, protectedDatas, commitments)
}

// SubmitIntent is the root-registry-facing entry point: it records the
// same kind of ref but tags the event as IntentSubmitted. Root-registry-
// specific gating (round not closed, root unset) is enforced by the caller
// (internal/rootregistry) before invoking this; SubmitIntent itself still
// enforces the shared intake invariants.
func (r *Registry) SubmitIntent(roundID domain.Hash, protectedData domain.Address) (uint64, error) {
	return r.register(roundID, domain.Address{}, protectedData, domain.Hash{}, EventIntentSubmitted)
}

func (r *Registry) register(roundID domain.Hash, trader, protectedData domain.Address, commitment domain.Hash, kind EventKind) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.validateRound(roundID); err != nil {
		return 0, err
	}

	if kind == EventIntentRegistered {
		if err := validateInputs(trader, protectedData, commitment); err != nil {
			return 0, err
		}
	} else if protectedData == (domain.Address{}) {
		return 0, ErrInvalidProtectedData
	}

	rs := r.roundStateLocked(roundID)
	if rs.handles[protectedData] {
		return 0, ErrIntentAlreadyRegistered
	}

	r.appendLocked(rs, roundID, trader, protectedData, commitment, kind)
	return uint64(len(rs.intents)), nil
}

func (r *Registry) appendLocked(rs *roundState, roundID domain.Hash, trader, protectedData domain.Address, commitment domain.Hash, kind EventKind) {
	position := uint64(len(rs.intents)) + 1
	timestamp := uint64(r.now().Unix())
	intentID := domain.ComputeIntentID(roundID, trader, protectedData, commitment)

	rs.intents = append(rs.intents, domain.IntentRef{
		Trader:              trader,
		ProtectedDataHandle: protectedData,
		Commitment:          commitment,
		IntentID:            intentID,
		Timestamp:           timestamp,
		Position:            position,
	})
	rs.handles[protectedData] = true

	r.publish(Event{
		Kind:                kind,
		RoundID:             roundID,
		Trader:              trader,
		ProtectedDataHandle: protectedData,
		Commitment:          commitment,
		Position:            position,
		IntentID:            intentID,
		Timestamp:           timestamp,
	})
}

func (r *Registry) validateRound(roundID domain.Hash) error {
	now := r.now()
	if roundID != r.clock.RoundID(now) {
		return ErrInvalidRoundID
	}
	if !r.clock.InIntake(now) {
		return ErrIntakeWindowClosed
	}
	return nil
}

func (r *Registry) roundStateLocked(roundID domain.Hash) *roundState {
	rs, ok := r.rounds[roundID]
	if !ok {
		rs = &roundState{handles: make(map[domain.Address]bool)}
		r.rounds[roundID] = rs
	}
	return rs
}

func validateInputs(trader, protectedData domain.Address, commitment domain.Hash) error {
	if trader == (domain.Address{}) {
		return ErrInvalidTrader
	}
	if protectedData == (domain.Address{}) {
		return ErrInvalidProtectedData
	}
	if commitment == (domain.Hash{}) {
		return ErrInvalidCommitment
	}
	return nil
}

// GetIntentCount returns the number of intents registered for roundID.
func (r *Registry) GetIntentCount(roundID domain.Hash) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.rounds[roundID]
	if !ok {
		return 0
	}
	return uint64(len(rs.intents))
}

// GetIntentAt returns the 1-based i-th intent ref for roundID.
func (r *Registry) GetIntentAt(roundID domain.Hash, i uint64) (domain.IntentRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.rounds[roundID]
	if !ok || i == 0 || i > uint64(len(rs.intents)) {
		return domain.IntentRef{}, false
	}
	return rs.intents[i-1], true
}

// IsIntentRegistered reports whether handle has already been registered
// for roundID.
func (r *Registry) IsIntentRegistered(roundID domain.Hash, handle domain.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.rounds[roundID]
	if !ok {
		return false
	}
	return rs.handles[handle]
}

// AllIntents returns a copy of every intent ref registered for roundID, in
// insertion order. Used by the matching engine to preserve time-priority.
func (r *Registry) AllIntents(roundID domain.Hash) []domain.IntentRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.rounds[roundID]
	if !ok {
		return nil
	}
	out := make([]domain.IntentRef, len(rs.intents))
	copy(out, rs.intents)
	return out
}

// ComputeCommitment exposes domain.ComputeCommitment as a registry-facing
// read view.
func ComputeCommitment(in *domain.Intent) domain.Hash {
	return domain.ComputeCommitment(in)
}
