package domain

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
)

// matchJSON is the wire shape of a match in the matcher result artifact:
// amounts as decimal strings, hashes and the signature as 0x-prefixed hex.
type matchJSON struct {
	MatchID      string  `json:"matchId"`
	MatchIDHash  Hash    `json:"matchIdHash"`
	RoundID      Hash    `json:"roundId"`
	Trader       Address `json:"trader"`
	Counterparty Address `json:"counterparty"`
	TokenIn      Address `json:"tokenIn"`
	TokenOut     Address `json:"tokenOut"`
	AmountIn     string  `json:"amountIn"`
	MinAmountOut string  `json:"minAmountOut"`
	Expiry       uint64  `json:"expiry"`
	Leaf         Hash    `json:"leaf"`
	MerkleProof  []Hash  `json:"merkleProof"`
	Signature    string  `json:"signature"`
}

// MarshalJSON encodes the match for the per-round result artifact.
func (m Match) MarshalJSON() ([]byte, error) {
	amountIn := "0"
	if m.AmountIn != nil {
		amountIn = m.AmountIn.String()
	}
	minAmountOut := "0"
	if m.MinAmountOut != nil {
		minAmountOut = m.MinAmountOut.String()
	}

	proof := m.MerkleProof
	if proof == nil {
		proof = []Hash{}
	}

	return json.Marshal(matchJSON{
		MatchID:      m.MatchID,
		MatchIDHash:  m.MatchIDHash,
		RoundID:      m.RoundID,
		Trader:       m.Trader,
		Counterparty: m.Counterparty,
		TokenIn:      m.TokenIn,
		TokenOut:     m.TokenOut,
		AmountIn:     amountIn,
		MinAmountOut: minAmountOut,
		Expiry:       m.Expiry,
		Leaf:         m.Leaf,
		MerkleProof:  proof,
		Signature:    "0x" + common.Bytes2Hex(m.Signature[:]),
	})
}
