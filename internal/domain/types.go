// Package domain holds the entities shared across every ShadowPool
// component: tokens, intents, rounds, and matches. Nothing here talks to
// a chain, a database, or the TEE transport; those concerns live in
// internal/store, internal/kmsintent, and friends.
package domain

import (
	"bytes"
	"encoding/hex"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Address and Hash are aliased directly to go-ethereum's types so that
// every package in this module can pass values straight into
// crypto.Keccak256Hash / crypto.SigToPub without conversion.
type (
	Address = common.Address
	Hash    = common.Hash
)

// WAD is the fixed-point scale (18 fractional digits) used for all prices.
var WAD = big.NewInt(1_000_000_000_000_000_000)

// Side is the direction of an intent.
type Side uint8

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Token identifies a tradable asset.
type Token struct {
	Address  Address
	Decimals uint8
}

// TokenPair is an ordered pair with Currency0 < Currency1 lexicographically.
type TokenPair struct {
	Currency0 Address
	Currency1 Address
}

// NewTokenPair orders the two addresses and returns the canonical pair.
func NewTokenPair(a, b Address) TokenPair {
	if AddressLess(a, b) {
		return TokenPair{Currency0: a, Currency1: b}
	}
	return TokenPair{Currency0: b, Currency1: a}
}

// AddressLess compares two addresses as lowercase byte strings.
func AddressLess(a, b Address) bool {
	return bytes.Compare(a.Bytes(), b.Bytes()) < 0
}

// PairKey is the canonical string key for a token pair's order book,
// "min(addr)‖max(addr)" as lowercase hex, so that sorting keys as strings
// matches byte-lexicographic address order.
func (p TokenPair) PairKey() string {
	return hex.EncodeToString(p.Currency0.Bytes()) + hex.EncodeToString(p.Currency1.Bytes())
}

// PoolKey derives pool identity from currencies, fee, tick spacing, and hook.
type PoolKey struct {
	Currency0   Address
	Currency1   Address
	Fee         uint32
	TickSpacing int32
	Hooks       Address
}

// Intent is the cleartext trading instruction, visible only inside the TEE.
type Intent struct {
	Side         Side
	Trader       Address
	BaseToken    Address
	QuoteToken   Address
	AmountBase   *big.Int // uint256, base-decimals wei
	LimitPrice   *big.Int // wad, quote per 1 base
	Expiry       uint64   // unix seconds
	Salt         [32]byte
	SlippageMin  *big.Int // optional, wad fraction
	SlippageMax  *big.Int // optional, wad fraction
	Notes        string
}

// IntentRef is the on-chain-style record bound to a round and a handle.
type IntentRef struct {
	Trader              Address
	ProtectedDataHandle Address
	Commitment          Hash
	IntentID            Hash
	Timestamp           uint64
	Position            uint64 // 1-based insertion index
}

// Round is a fixed-duration clearing window.
type Round struct {
	RoundID             Hash
	StartSeconds        uint64
	DurationSeconds     uint64
	IntakeWindowSeconds uint64
}

// Match is one leg of a bilateral cross produced by the matching engine.
type Match struct {
	MatchID      string
	MatchIDHash  Hash
	RoundID      Hash
	Trader       Address
	Counterparty Address
	TokenIn      Address
	TokenOut     Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Expiry       uint64
	MerkleProof  []Hash
	Leaf         Hash
	Signature    [65]byte
}

// RoundRoot is the on-chain-style root registry record for one round.
type RoundRoot struct {
	Root        Hash
	ValidUntil  uint64
	Matcher     Address
	RootLocked  bool
	RoundClosed bool
}
