package matching

import (
	"math/big"

	"github.com/shadowpool/shadowpool/internal/domain"
	"github.com/shadowpool/shadowpool/internal/merkle"
)

// IntentInput is one decrypted cleartext intent delivered by the TEE
// transport, paired with the handle it was registered under.
type IntentInput struct {
	ProtectedDataHandle domain.Address
	Intent              domain.Intent
}

// RoundInputs is everything the matcher needs for one round. It is
// assembled by the caller (internal/pipeline) from the registry's refs and
// the decryption transport's cleartext intents; the matcher itself never
// performs I/O.
type RoundInputs struct {
	RoundID         domain.Hash
	RoundEndSeconds uint64
	ValidUntil      *uint64 // root validUntil, if already decided for this round
	Refs            []domain.IntentRef
	Decrypted       []IntentInput
	TeeSigner       merkle.Signer // signs each emitted leaf
	SignerAddress   domain.Address

	// MismatchTolerance is the configured fraction (0..1) of decrypted
	// intents that may fail commitment verification before the matcher
	// flags the round in DebugSummary. It never blocks matching:
	// exceeding it is diagnostic only.
	MismatchTolerance float64
}

// Result is the matcher's per-round output artifact.
type Result struct {
	RoundID              domain.Hash    `json:"roundId"`
	RoundIDBytes32       domain.Hash    `json:"roundIdBytes32"`
	MerkleRoot           domain.Hash    `json:"merkleRoot"`
	RoundExpiry          uint64         `json:"roundExpiry"`
	TeeSigner            domain.Address `json:"teeSigner"`
	IntentsCount         int            `json:"intentsCount"`
	EligibleIntentsCount int            `json:"eligibleIntentsCount"`
	Matches              []domain.Match `json:"matches"`
	DebugErrors          []string       `json:"debugErrors,omitempty"`
	DebugSummary         string         `json:"debugSummary,omitempty"`
}

// eligibleIntent is the matcher's internal working representation of an
// intent once it has cleared eligibility and been normalized into the
// pair's canonical orientation. It carries the intent's registry position
// and its own copies of every amount and price, never pointers into
// registry or decryption-transport structures.
type eligibleIntent struct {
	position    uint64
	handle      domain.Address
	trader      domain.Address
	pairKey     string
	pair        domain.TokenPair
	side        domain.Side   // canonical side: Buy = bid, Sell = ask
	price       *big.Int      // canonical wad price, quote-per-base
	remaining   *big.Int      // canonical base-wei remaining
	expiry      uint64
	slippageMax *big.Int // canonical-orientation slippage cap, nil if absent
}

// mulDivFloor computes ⌊a·b/denom⌋ for non-negative a, b, denom using
// arbitrary-precision integers; the matcher never touches IEEE-754
// floats.
func mulDivFloor(a, b, denom *big.Int) *big.Int {
	num := new(big.Int).Mul(a, b)
	return num.Quo(num, denom)
}

// invertWad returns the reciprocal of a wad-scaled price: WAD²/p.
func invertWad(p *big.Int) *big.Int {
	num := new(big.Int).Mul(domain.WAD, domain.WAD)
	return num.Quo(num, p)
}

// fitsUint256 reports whether v is non-negative and representable in 256 bits.
func fitsUint256(v *big.Int) bool {
	return v.Sign() >= 0 && v.BitLen() <= 256
}
