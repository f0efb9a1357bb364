// Package hook implements the redemption hook: the before-/after-swap
// callback that validates Merkle inclusion, signer identity, anti-replay,
// expiry, and pool/currency coherence for one leg of a matched bilateral
// trade, then checks the realized output against the policy minimum.
package hook

import (
	"math/big"
	"sync"

	"github.com/shadowpool/shadowpool/internal/domain"
	"github.com/shadowpool/shadowpool/internal/merkle"
)

// BPS is the fixed-point denominator for minOutBps.
const BPS = 10_000

// RootView is the subset of the root registry the hook consults. It is an
// interface so the hook never depends on rootregistry's mutation methods.
type RootView interface {
	GetRoot(roundID domain.Hash) domain.Hash
	GetRootValidUntil(roundID domain.Hash) uint64
}

// SwapParams carries the AMM-side view of the swap being attempted, used
// to cross-check the hookData payload's amount and currency direction.
type SwapParams struct {
	PoolKey         domain.PoolKey
	ZeroForOne      bool
	AmountSpecified *big.Int // negative for an exact-input swap
}

// Event is emitted on a successful before-swap validation.
type Event struct {
	RoundID      domain.Hash
	MatchIDHash  domain.Hash
	Trader       domain.Address
	Counterparty domain.Address
	TokenIn      domain.Address
	TokenOut     domain.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Expiry       uint64
}

// Hook holds the mutable redemption state: matcher signer identity,
// allowed-caller set, and the two usage maps, the only mutable shared
// state at redemption time. All access is mutex-guarded.
type Hook struct {
	mu sync.Mutex

	owner          domain.Address
	teeSigner      domain.Address
	allowedCallers map[domain.Address]bool
	minOutBps      uint64

	matchUsed map[domain.Hash]map[domain.Hash]bool
	leafUsed  map[domain.Hash]map[domain.Hash]bool

	roots RootView
	now   func() uint64
}

// New constructs a Hook bound to the given owner, initial tee signer, a
// RootView collaborator (typically *rootregistry.Registry), a clock
// function, and the configured minOutBps policy parameter (10_000 = exact
// enforcement of each match's minAmountOut).
func New(owner, teeSigner domain.Address, roots RootView, now func() uint64, minOutBps uint64) *Hook {
	return &Hook{
		owner:          owner,
		teeSigner:      teeSigner,
		allowedCallers: make(map[domain.Address]bool),
		minOutBps:      minOutBps,
		matchUsed:      make(map[domain.Hash]map[domain.Hash]bool),
		leafUsed:       make(map[domain.Hash]map[domain.Hash]bool),
		roots:          roots,
		now:            now,
	}
}

// BeforeSwap runs the ordered redemption checks and, on success, marks
// both usage bits and returns the TradeExecuted event.
func (h *Hook) BeforeSwap(caller domain.Address, swap SwapParams, payload *Payload) (Event, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := decode(payload); err != nil {
		return Event{}, err
	}
	p := *payload

	if caller != p.Trader && !h.allowedCallers[caller] {
		return Event{}, ErrUnauthorizedCaller
	}

	if !validSwapParams(swap, p) {
		return Event{}, ErrInvalidSwapParams
	}

	root := h.roots.GetRoot(p.RoundID)
	if root == (domain.Hash{}) {
		return Event{}, ErrRootNotSet
	}

	validUntil := h.roots.GetRootValidUntil(p.RoundID)
	now := h.now()
	if now > validUntil {
		return Event{}, ErrRootExpired
	}

	if now > p.Expiry {
		return Event{}, ErrMatchExpired
	}

	if h.matchUsed[p.RoundID][p.MatchIDHash] {
		return Event{}, ErrMatchAlreadyUsed
	}

	leaf := p.leaf()
	if h.leafUsed[p.RoundID][leaf] {
		return Event{}, ErrLeafAlreadyUsed
	}

	if !merkle.VerifyProof(root, leaf, p.Proof) {
		return Event{}, ErrInvalidProof
	}

	if !merkle.VerifySignature(leaf, p.Signature, h.teeSigner) {
		return Event{}, ErrInvalidSignature
	}

	h.markUsed(p.RoundID, p.MatchIDHash, leaf)

	return Event{
		RoundID:      p.RoundID,
		MatchIDHash:  p.MatchIDHash,
		Trader:       p.Trader,
		Counterparty: p.Counterparty,
		TokenIn:      p.TokenIn,
		TokenOut:     p.TokenOut,
		AmountIn:     p.AmountIn,
		MinAmountOut: p.MinAmountOut,
		Expiry:       p.Expiry,
	}, nil
}

// AfterSwap checks the realized tokenOut delta against the policy-adjusted
// minimum: realizedOut must be ≥ minAmountOut·minOutBps/BPS.
func (h *Hook) AfterSwap(payload *Payload, realizedOut *big.Int) error {
	h.mu.Lock()
	minOutBps := h.minOutBps
	h.mu.Unlock()

	if err := decode(payload); err != nil {
		return err
	}

	threshold := new(big.Int).Mul(payload.MinAmountOut, new(big.Int).SetUint64(minOutBps))
	threshold.Quo(threshold, big.NewInt(BPS))

	if realizedOut.Cmp(threshold) < 0 {
		return ErrMinAmountOutNotMet
	}
	return nil
}

func (h *Hook) markUsed(roundID, matchIDHash, leaf domain.Hash) {
	if h.matchUsed[roundID] == nil {
		h.matchUsed[roundID] = make(map[domain.Hash]bool)
	}
	if h.leafUsed[roundID] == nil {
		h.leafUsed[roundID] = make(map[domain.Hash]bool)
	}
	h.matchUsed[roundID][matchIDHash] = true
	h.leafUsed[roundID][leaf] = true
}

// MatchUsed reports whether a matchIdHash has already been redeemed.
func (h *Hook) MatchUsed(roundID, matchIDHash domain.Hash) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.matchUsed[roundID][matchIDHash]
}

// LeafUsed reports whether a leaf has already been redeemed.
func (h *Hook) LeafUsed(roundID, leaf domain.Hash) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leafUsed[roundID][leaf]
}

// TeeSigner returns the currently registered matcher signing address.
func (h *Hook) TeeSigner() domain.Address {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.teeSigner
}

// SetTeeSigner rotates the matcher signer. Owner-gated; rejects the zero address.
func (h *Hook) SetTeeSigner(caller, signer domain.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if caller != h.owner {
		return ErrNotOwner
	}
	if signer == (domain.Address{}) {
		return ErrInvalidTeeSigner
	}
	h.teeSigner = signer
	return nil
}

// SetAllowedCaller toggles whether caller may invoke a swap on another
// trader's behalf. Owner-gated.
func (h *Hook) SetAllowedCaller(owner, caller domain.Address, allowed bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if owner != h.owner {
		return ErrNotOwner
	}
	h.allowedCallers[caller] = allowed
	return nil
}

func validSwapParams(swap SwapParams, p Payload) bool {
	if swap.AmountSpecified == nil || swap.AmountSpecified.Sign() >= 0 {
		return false
	}
	if new(big.Int).Neg(swap.AmountSpecified).Cmp(p.AmountIn) != 0 {
		return false
	}

	wantIn, wantOut := swap.PoolKey.Currency1, swap.PoolKey.Currency0
	if swap.ZeroForOne {
		wantIn, wantOut = swap.PoolKey.Currency0, swap.PoolKey.Currency1
	}
	return p.TokenIn == wantIn && p.TokenOut == wantOut
}
