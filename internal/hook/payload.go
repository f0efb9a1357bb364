package hook

import (
	"math/big"

	"github.com/shadowpool/shadowpool/internal/domain"
)

// Payload is the single fixed ABI tuple carried in hookData:
// (roundId, matchIdHash, trader, counterparty, tokenIn, tokenOut, amountIn,
// minAmountOut, expiry, proof[], signature). Parsing treats it as all-or-
// nothing: any missing or malformed field is ErrInvalidHookData, never a
// partial decode.
type Payload struct {
	RoundID      domain.Hash
	MatchIDHash  domain.Hash
	Trader       domain.Address
	Counterparty domain.Address
	TokenIn      domain.Address
	TokenOut     domain.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Expiry       uint64
	Proof        []domain.Hash
	Signature    [65]byte
}

// leaf recomputes the payload's canonical leaf hash.
func (p Payload) leaf() domain.Hash {
	m := domain.Match{
		RoundID:      p.RoundID,
		MatchIDHash:  p.MatchIDHash,
		Trader:       p.Trader,
		Counterparty: p.Counterparty,
		TokenIn:      p.TokenIn,
		TokenOut:     p.TokenOut,
		AmountIn:     p.AmountIn,
		MinAmountOut: p.MinAmountOut,
		Expiry:       p.Expiry,
	}
	return domain.ComputeLeaf(&m)
}

// decode validates a Payload's structural completeness. It never attempts
// partial decoding: one missing required field fails the whole payload.
func decode(p *Payload) error {
	if p == nil {
		return ErrInvalidHookData
	}
	if p.RoundID == (domain.Hash{}) || p.MatchIDHash == (domain.Hash{}) {
		return ErrInvalidHookData
	}
	if p.Trader == (domain.Address{}) || p.TokenIn == (domain.Address{}) || p.TokenOut == (domain.Address{}) {
		return ErrInvalidHookData
	}
	if p.AmountIn == nil || p.AmountIn.Sign() <= 0 {
		return ErrInvalidHookData
	}
	if p.MinAmountOut == nil || p.MinAmountOut.Sign() < 0 {
		return ErrInvalidHookData
	}
	return nil
}
