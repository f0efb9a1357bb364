package matching

import (
	"fmt"
	"math/big"

	"github.com/shadowpool/shadowpool/internal/domain"
)

// buildEligible filters and normalizes the round's decrypted intents into
// eligibleIntent values. It never returns an error for ineligibility:
// every rejection becomes a DebugErrors entry and the intent is simply
// dropped.
func buildEligible(in *RoundInputs) ([]eligibleIntent, []string, int) {
	refsByHandle := make(map[domain.Address]domain.IntentRef, len(in.Refs))
	for _, ref := range in.Refs {
		refsByHandle[ref.ProtectedDataHandle] = ref
	}

	var debug []string
	mismatches := 0
	eligible := make([]eligibleIntent, 0, len(in.Decrypted))

	for _, dec := range in.Decrypted {
		ref, ok := refsByHandle[dec.ProtectedDataHandle]
		if !ok {
			mismatches++
			debug = append(debug, fmt.Sprintf("no registry ref for handle %s", dec.ProtectedDataHandle.Hex()))
			continue
		}

		if domain.ComputeCommitment(&dec.Intent) != ref.Commitment {
			mismatches++
			debug = append(debug, fmt.Sprintf("commitment mismatch for handle %s", dec.ProtectedDataHandle.Hex()))
			continue
		}

		if dec.Intent.Trader != ref.Trader {
			mismatches++
			debug = append(debug, fmt.Sprintf("trader mismatch for handle %s", dec.ProtectedDataHandle.Hex()))
			continue
		}

		if dec.Intent.Expiry <= in.RoundEndSeconds {
			debug = append(debug, fmt.Sprintf("intent %s expired at or before round end", dec.ProtectedDataHandle.Hex()))
			continue
		}

		if dec.Intent.AmountBase == nil || dec.Intent.AmountBase.Sign() <= 0 {
			debug = append(debug, fmt.Sprintf("intent %s has non-positive amountBase", dec.ProtectedDataHandle.Hex()))
			continue
		}

		if dec.Intent.LimitPrice == nil || dec.Intent.LimitPrice.Sign() <= 0 {
			debug = append(debug, fmt.Sprintf("intent %s has non-positive limitPrice", dec.ProtectedDataHandle.Hex()))
			continue
		}

		if !validSlippage(dec.Intent.SlippageMin) || !validSlippage(dec.Intent.SlippageMax) {
			debug = append(debug, fmt.Sprintf("intent %s has invalid slippage bounds", dec.ProtectedDataHandle.Hex()))
			continue
		}

		norm, ok := normalize(&dec.Intent, ref.Position, dec.ProtectedDataHandle)
		if !ok {
			debug = append(debug, fmt.Sprintf("intent %s has equal base/quote token", dec.ProtectedDataHandle.Hex()))
			continue
		}
		eligible = append(eligible, norm)
	}

	return eligible, debug, mismatches
}

func validSlippage(v *big.Int) bool {
	return v == nil || v.Sign() >= 0
}

// normalize converts an intent into the canonical orientation for its
// pair: canonical base = lexicographically smaller token. Opposite-
// oriented intents have their price inverted, side flipped, and amount
// re-expressed in canonical base-wei.
func normalize(in *domain.Intent, position uint64, handle domain.Address) (eligibleIntent, bool) {
	if in.BaseToken == in.QuoteToken {
		return eligibleIntent{}, false
	}

	pair := domain.NewTokenPair(in.BaseToken, in.QuoteToken)
	canonical := in.BaseToken == pair.Currency0

	out := eligibleIntent{
		position:    position,
		handle:      handle,
		trader:      in.Trader,
		pairKey:     pair.PairKey(),
		pair:        pair,
		expiry:      in.Expiry,
	}
	if in.SlippageMax != nil {
		out.slippageMax = new(big.Int).Set(in.SlippageMax)
	}

	if canonical {
		out.side = in.Side
		out.price = new(big.Int).Set(in.LimitPrice)
		out.remaining = new(big.Int).Set(in.AmountBase)
	} else {
		out.side = flip(in.Side)
		out.price = invertWad(in.LimitPrice)
		out.remaining = mulDivFloor(in.AmountBase, in.LimitPrice, domain.WAD)
	}

	return out, true
}

func flip(s domain.Side) domain.Side {
	if s == domain.Buy {
		return domain.Sell
	}
	return domain.Buy
}
