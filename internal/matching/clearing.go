package matching

import (
	"container/heap"
	"fmt"
	"math/big"
	"sort"

	"github.com/shadowpool/shadowpool/internal/domain"
)

// clear runs the deterministic price-time clearing algorithm over every
// pair, in ascending pairKey order, and returns the emitted matches in
// emission order. fillIndex is threaded through as a round-global
// monotonic counter.
func clear(roundID domain.Hash, eligible []eligibleIntent) ([]domain.Match, error) {
	byPair := make(map[string][]int)
	for i, e := range eligible {
		byPair[e.pairKey] = append(byPair[e.pairKey], i)
	}

	pairKeys := make([]string, 0, len(byPair))
	for k := range byPair {
		pairKeys = append(pairKeys, k)
	}
	sort.Strings(pairKeys)

	var matches []domain.Match
	fillIndex := 0

	for _, pk := range pairKeys {
		members := byPair[pk]
		var bidIdx, askIdx []int
		for _, i := range members {
			if eligible[i].side == domain.Buy {
				bidIdx = append(bidIdx, i)
			} else {
				askIdx = append(askIdx, i)
			}
		}
		if len(bidIdx) == 0 || len(askIdx) == 0 {
			continue
		}

		bids := newOrderQueue(sideBid, eligible, bidIdx)
		asks := newOrderQueue(sideAsk, eligible, askIdx)

		pairMatches, newFillIndex, err := clearPair(roundID, pk, eligible, bids, asks, fillIndex)
		if err != nil {
			return nil, err
		}
		fillIndex = newFillIndex
		matches = append(matches, pairMatches...)
	}

	return matches, nil
}

func clearPair(roundID domain.Hash, pairKey string, arena []eligibleIntent, bids, asks *orderQueue, fillIndex int) ([]domain.Match, int, error) {
	var matches []domain.Match

	for bids.Len() > 0 && asks.Len() > 0 {
		bIdx := bids.top()
		aIdx := asks.top()
		b := &arena[bIdx]
		a := &arena[aIdx]

		if b.remaining.Sign() == 0 {
			popTop(bids)
			continue
		}
		if a.remaining.Sign() == 0 {
			popTop(asks)
			continue
		}

		if b.price.Cmp(a.price) < 0 {
			break // no further crosses at this pair
		}

		tradeBase := minBig(b.remaining, a.remaining)
		pStar := a.price
		tradeQuote := mulDivFloor(tradeBase, pStar, domain.WAD)

		if !fitsUint256(tradeBase) || !fitsUint256(tradeQuote) {
			return nil, 0, ErrOverflow
		}

		if tradeBase.Sign() == 0 || tradeQuote.Sign() == 0 {
			// Dust floor: skip emission, drop the thinner remaining.
			if b.remaining.Cmp(a.remaining) <= 0 {
				b.remaining = big.NewInt(0)
				popTop(bids)
			} else {
				a.remaining = big.NewInt(0)
				popTop(asks)
			}
			continue
		}

		expiry := b.expiry
		if a.expiry < expiry {
			expiry = a.expiry
		}

		minOutBuy := big.NewInt(0)
		if b.slippageMax != nil {
			minOutBuy = floorAfterSlippage(tradeBase, b.slippageMax)
		}
		minOutSell := big.NewInt(0)
		if a.slippageMax != nil {
			minOutSell = floorAfterSlippage(tradeQuote, a.slippageMax)
		}

		if !fitsUint256(minOutBuy) || !fitsUint256(minOutSell) {
			return nil, 0, ErrOverflow
		}

		fillIndex++
		buyID := fmt.Sprintf("fill:%d:buy:%s:%s", fillIndex, pairKey, roundID.Hex())
		sellID := fmt.Sprintf("fill:%d:sell:%s:%s", fillIndex, pairKey, roundID.Hex())

		matches = append(matches,
			domain.Match{
				MatchID:      buyID,
				MatchIDHash:  domain.ComputeMatchIDHash(buyID),
				RoundID:      roundID,
				Trader:       b.trader,
				Counterparty: a.trader,
				TokenIn:      a.pair.Currency1, // quote
				TokenOut:     a.pair.Currency0, // base
				AmountIn:     tradeQuote,
				MinAmountOut: minOutBuy,
				Expiry:       expiry,
			},
			domain.Match{
				MatchID:      sellID,
				MatchIDHash:  domain.ComputeMatchIDHash(sellID),
				RoundID:      roundID,
				Trader:       a.trader,
				Counterparty: b.trader,
				TokenIn:      a.pair.Currency0, // base
				TokenOut:     a.pair.Currency1, // quote
				AmountIn:     tradeBase,
				MinAmountOut: minOutSell,
				Expiry:       expiry,
			},
		)

		b.remaining = new(big.Int).Sub(b.remaining, tradeBase)
		a.remaining = new(big.Int).Sub(a.remaining, tradeBase)

		if b.remaining.Sign() == 0 {
			popTop(bids)
		}
		if a.remaining.Sign() == 0 {
			popTop(asks)
		}
	}

	return matches, fillIndex, nil
}

func popTop(q *orderQueue) {
	heap.Pop(q)
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// floorAfterSlippage computes ⌊amount·(1 − slippage)⌋ where slippage is a
// wad-scaled fraction (0..WAD).
func floorAfterSlippage(amount, slippage *big.Int) *big.Int {
	factor := new(big.Int).Sub(domain.WAD, slippage)
	if factor.Sign() < 0 {
		factor = big.NewInt(0)
	}
	return mulDivFloor(amount, factor, domain.WAD)
}
