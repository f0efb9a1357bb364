package domain

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// EncodeUint8 left-pads a uint8 to a 32-byte ABI word.
func EncodeUint8(v uint8) []byte {
	return common.LeftPadBytes([]byte{v}, 32)
}

// EncodeAddress left-pads an address to a 32-byte ABI word.
func EncodeAddress(a Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}

// EncodeHash returns a hash's 32 bytes verbatim; hashes are already word-sized.
func EncodeHash(h Hash) []byte {
	return h.Bytes()
}

// EncodeUint256 left-pads a non-negative big integer to a 32-byte ABI word.
func EncodeUint256(v *big.Int) []byte {
	if v == nil {
		return make([]byte, 32)
	}
	return common.LeftPadBytes(v.Bytes(), 32)
}

// EncodeUint64 left-pads a uint64 to a 32-byte ABI word.
func EncodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return common.LeftPadBytes(b, 32)
}

// ComputeCommitment hashes an intent's cleartext parameters:
//
//	keccak256(abi_encode(sideAsUint8, trader, baseToken, quoteToken,
//	  amountBaseWei, limitPriceWad, expirySeconds, salt))
func ComputeCommitment(in *Intent) Hash {
	return crypto.Keccak256Hash(
		EncodeUint8(uint8(in.Side)),
		EncodeAddress(in.Trader),
		EncodeAddress(in.BaseToken),
		EncodeAddress(in.QuoteToken),
		EncodeUint256(in.AmountBase),
		EncodeUint256(in.LimitPrice),
		EncodeUint64(in.Expiry),
		in.Salt[:],
	)
}

// ComputeIntentID derives the on-chain-style intent identifier:
//
//	intentId = keccak256(roundId ‖ trader ‖ protectedDataHandle ‖ commitment)
func ComputeIntentID(roundID Hash, trader, protectedDataHandle Address, commitment Hash) Hash {
	return crypto.Keccak256Hash(
		roundID.Bytes(),
		trader.Bytes(),
		protectedDataHandle.Bytes(),
		commitment.Bytes(),
	)
}

// ComputeRoundID derives a round identifier from a namespace and the
// round's start-of-window unix timestamp: keccak256(namespace ‖ uint256(t)).
func ComputeRoundID(namespace string, roundStartSeconds uint64) Hash {
	return crypto.Keccak256Hash(
		[]byte(namespace),
		EncodeUint64(roundStartSeconds),
	)
}

// ComputeLeaf hashes a match's fields into its Merkle leaf:
//
//	leaf = keccak256(abi_encode(roundId, matchIdHash, trader, counterparty,
//	  tokenIn, tokenOut, amountIn, minAmountOut, expiry))
func ComputeLeaf(m *Match) Hash {
	return crypto.Keccak256Hash(
		EncodeHash(m.RoundID),
		EncodeHash(m.MatchIDHash),
		EncodeAddress(m.Trader),
		EncodeAddress(m.Counterparty),
		EncodeAddress(m.TokenIn),
		EncodeAddress(m.TokenOut),
		EncodeUint256(m.AmountIn),
		EncodeUint256(m.MinAmountOut),
		EncodeUint64(m.Expiry),
	)
}

// ComputeMatchIDHash hashes the opaque matchId string into its on-chain form.
func ComputeMatchIDHash(matchID string) Hash {
	return crypto.Keccak256Hash([]byte(matchID))
}
