package matching

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shadowpool/shadowpool/internal/domain"
	"github.com/shadowpool/shadowpool/internal/merkle"
)

// stubSigner adapts a raw ECDSA key to merkle.Signer for tests, the same
// way internal/teesigner.Session wraps a memguard-sealed key in production.
type stubSigner struct{ key *ecdsa.PrivateKey }

func (s stubSigner) SignDigest(digest domain.Hash) ([65]byte, error) {
	var sig [65]byte
	raw, err := crypto.Sign(digest.Bytes(), s.key)
	if err != nil {
		return sig, err
	}
	raw[64] += 27
	copy(sig[:], raw)
	return sig, nil
}

func newStubSigner(t *testing.T) (merkle.Signer, domain.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return stubSigner{key: key}, crypto.PubkeyToAddress(key.PublicKey)
}

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), domain.WAD)
}

// pairTokens returns a (base, quote) pair whose addresses already sort
// base < quote lexicographically, so canonical orientation needs no flip.
func pairTokens(tag byte) (base, quote domain.Address) {
	base = domain.Address{0x01, tag}
	quote = domain.Address{0x02, tag}
	return base, quote
}

// addIntent builds a registry ref + decrypted input pair for one intent and
// appends both to refs/decrypted, returning the updated slices.
func addIntent(
	refs []domain.IntentRef, decrypted []IntentInput,
	roundID domain.Hash, position uint64,
	trader, handle, base, quote domain.Address,
	side domain.Side, amountBase, limitPrice *big.Int, expiry uint64, slippageMax *big.Int,
) ([]domain.IntentRef, []IntentInput) {
	intent := domain.Intent{
		Side:        side,
		Trader:      trader,
		BaseToken:   base,
		QuoteToken:  quote,
		AmountBase:  amountBase,
		LimitPrice:  limitPrice,
		Expiry:      expiry,
		SlippageMax: slippageMax,
	}
	commitment := domain.ComputeCommitment(&intent)
	ref := domain.IntentRef{
		Trader:              trader,
		ProtectedDataHandle: handle,
		Commitment:          commitment,
		IntentID:            domain.ComputeIntentID(roundID, trader, handle, commitment),
		Position:            position,
	}
	return append(refs, ref), append(decrypted, IntentInput{ProtectedDataHandle: handle, Intent: intent})
}

func verifyMatchSet(t *testing.T, result Result, signerAddr domain.Address) {
	t.Helper()
	if len(result.Matches) == 0 {
		return
	}
	leaves := make([]domain.Hash, len(result.Matches))
	for i, m := range result.Matches {
		if m.Leaf != domain.ComputeLeaf(&result.Matches[i]) {
			t.Fatalf("match %d: stored leaf does not match recomputed leaf", i)
		}
		leaves[i] = m.Leaf
		if !merkle.VerifySignature(m.Leaf, m.Signature, signerAddr) {
			t.Fatalf("match %d: signature does not recover to the tee signer", i)
		}
		if !merkle.VerifyProof(result.MerkleRoot, m.Leaf, m.MerkleProof) {
			t.Fatalf("match %d: merkle proof does not verify against the round root", i)
		}
	}
	if merkle.Build(leaves).Root() != result.MerkleRoot {
		t.Fatal("recomputed tree root does not match the result's merkle root")
	}
}

func TestMatch_TwoIntentCross(t *testing.T) {
	roundID := domain.Hash{0x01}
	base, quote := pairTokens(0x01)
	signer, signerAddr := newStubSigner(t)

	bidder := domain.Address{0xB1}
	bidHandle := domain.Address{0xB2}
	asker := domain.Address{0xA1}
	askHandle := domain.Address{0xA2}

	var refs []domain.IntentRef
	var decrypted []IntentInput
	refs, decrypted = addIntent(refs, decrypted, roundID, 1, bidder, bidHandle, base, quote,
		domain.Buy, wad(10), wad(2), 10_000, nil)
	refs, decrypted = addIntent(refs, decrypted, roundID, 2, asker, askHandle, base, quote,
		domain.Sell, wad(10), wad(1), 10_000, nil)

	in := RoundInputs{
		RoundID:         roundID,
		RoundEndSeconds: 1_000,
		Refs:            refs,
		Decrypted:       decrypted,
		TeeSigner:       signer,
		SignerAddress:   signerAddr,
	}

	result, err := Match(context.Background(), &in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(result.Matches))
	}

	var buyLeg, sellLeg *domain.Match
	for i := range result.Matches {
		m := &result.Matches[i]
		switch m.Trader {
		case bidder:
			buyLeg = m
		case asker:
			sellLeg = m
		}
	}
	if buyLeg == nil || sellLeg == nil {
		t.Fatal("expected one leg per trader")
	}

	if buyLeg.TokenIn != quote || buyLeg.TokenOut != base {
		t.Fatal("expected the buy leg to spend quote for base")
	}
	if buyLeg.AmountIn.Cmp(wad(10)) != 0 {
		t.Fatalf("expected buy amountIn 10e18 (clearing price 1), got %s", buyLeg.AmountIn)
	}
	if sellLeg.TokenIn != base || sellLeg.TokenOut != quote {
		t.Fatal("expected the sell leg to spend base for quote")
	}
	if sellLeg.AmountIn.Cmp(wad(10)) != 0 {
		t.Fatalf("expected sell amountIn 10e18 base-wei, got %s", sellLeg.AmountIn)
	}

	verifyMatchSet(t, result, signerAddr)
}

func TestMatch_DustRounding(t *testing.T) {
	roundID := domain.Hash{0x02}
	base, quote := pairTokens(0x02)
	signer, signerAddr := newStubSigner(t)

	bidder := domain.Address{0xB1}
	asker := domain.Address{0xA1}
	dustPrice, ok := new(big.Int).SetString("333333333333333333", 10)
	if !ok {
		t.Fatal("failed to parse dust price")
	}

	var refs []domain.IntentRef
	var decrypted []IntentInput
	refs, decrypted = addIntent(refs, decrypted, roundID, 1, bidder, domain.Address{0xB2}, base, quote,
		domain.Buy, wad(10), wad(2), 10_000, nil)
	refs, decrypted = addIntent(refs, decrypted, roundID, 2, asker, domain.Address{0xA2}, base, quote,
		domain.Sell, wad(10), dustPrice, 10_000, nil)

	in := RoundInputs{
		RoundID:         roundID,
		RoundEndSeconds: 1_000,
		Refs:            refs,
		Decrypted:       decrypted,
		TeeSigner:       signer,
		SignerAddress:   signerAddr,
	}

	result, err := Match(context.Background(), &in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(result.Matches))
	}

	want, _ := new(big.Int).SetString("3333333333333333330", 10)
	for _, m := range result.Matches {
		if m.Trader == bidder {
			if m.AmountIn.Cmp(want) != 0 {
				t.Fatalf("expected floored buy amountIn %s, got %s", want, m.AmountIn)
			}
		}
	}
	verifyMatchSet(t, result, signerAddr)
}

func TestMatch_OneToManyPriceTimePriority(t *testing.T) {
	roundID := domain.Hash{0x03}
	base, quote := pairTokens(0x03)
	signer, signerAddr := newStubSigner(t)

	bidder := domain.Address{0xB1}
	cheapAsker := domain.Address{0xA1}
	pricierAsker := domain.Address{0xA2}

	var refs []domain.IntentRef
	var decrypted []IntentInput
	refs, decrypted = addIntent(refs, decrypted, roundID, 1, bidder, domain.Address{0xB2}, base, quote,
		domain.Buy, wad(20), wad(2), 10_000, nil)
	refs, decrypted = addIntent(refs, decrypted, roundID, 2, cheapAsker, domain.Address{0xA3}, base, quote,
		domain.Sell, wad(10), wad(1), 10_000, nil)
	refs, decrypted = addIntent(refs, decrypted, roundID, 3, pricierAsker, domain.Address{0xA4}, base, quote,
		domain.Sell, wad(10), new(big.Int).Mul(big.NewInt(3), big.NewInt(500_000_000_000_000_000)), 10_000, nil)

	in := RoundInputs{
		RoundID:         roundID,
		RoundEndSeconds: 1_000,
		Refs:            refs,
		Decrypted:       decrypted,
		TeeSigner:       signer,
		SignerAddress:   signerAddr,
	}

	result, err := Match(context.Background(), &in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Matches) != 4 {
		t.Fatalf("expected 4 match legs (2 trades x 2 legs), got %d", len(result.Matches))
	}

	// The lowest-priced ask must clear first: its sell leg is emitted before
	// the pricier ask's sell leg.
	var cheapIndex, pricierIndex = -1, -1
	for i, m := range result.Matches {
		switch m.Trader {
		case cheapAsker:
			cheapIndex = i
		case pricierAsker:
			pricierIndex = i
		}
	}
	if cheapIndex == -1 || pricierIndex == -1 {
		t.Fatal("expected both askers to have a sell leg")
	}
	if cheapIndex >= pricierIndex {
		t.Fatal("expected the cheaper ask to clear before the pricier one")
	}

	verifyMatchSet(t, result, signerAddr)
}

func TestMatch_PriceLevelsClearInAscendingOrder(t *testing.T) {
	roundID := domain.Hash{0x0B}
	base, quote := pairTokens(0x0B)
	signer, signerAddr := newStubSigner(t)

	bidder := domain.Address{0xB1}
	halfWad := new(big.Int).Div(domain.WAD, big.NewInt(2))
	threeHalvesWad := new(big.Int).Add(domain.WAD, halfWad)

	var refs []domain.IntentRef
	var decrypted []IntentInput
	refs, decrypted = addIntent(refs, decrypted, roundID, 1, bidder, domain.Address{0xB2}, base, quote,
		domain.Buy, wad(30), wad(2), 10_000, nil)
	refs, decrypted = addIntent(refs, decrypted, roundID, 2, domain.Address{0xA1}, domain.Address{0xA2}, base, quote,
		domain.Sell, wad(10), halfWad, 10_000, nil)
	refs, decrypted = addIntent(refs, decrypted, roundID, 3, domain.Address{0xA3}, domain.Address{0xA4}, base, quote,
		domain.Sell, wad(10), wad(1), 10_000, nil)
	refs, decrypted = addIntent(refs, decrypted, roundID, 4, domain.Address{0xA5}, domain.Address{0xA6}, base, quote,
		domain.Sell, wad(10), threeHalvesWad, 10_000, nil)

	in := RoundInputs{
		RoundID:         roundID,
		RoundEndSeconds: 1_000,
		Refs:            refs,
		Decrypted:       decrypted,
		TeeSigner:       signer,
		SignerAddress:   signerAddr,
	}

	result, err := Match(context.Background(), &in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Matches) != 6 {
		t.Fatalf("expected 6 match legs (3 fills x 2 legs), got %d", len(result.Matches))
	}

	// The bid pays each ask's own price: 10 base at 0.5, then 1, then 1.5
	// quote per base, emitted in ascending-price order.
	want := []*big.Int{wad(5), wad(10), wad(15)}
	var got []*big.Int
	for _, m := range result.Matches {
		if m.Trader == bidder {
			got = append(got, m.AmountIn)
		}
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 buy-side fills, got %d", len(got))
	}
	for i := range want {
		if got[i].Cmp(want[i]) != 0 {
			t.Fatalf("fill %d: expected buy amountIn %s quote-wei, got %s", i, want[i], got[i])
		}
	}

	verifyMatchSet(t, result, signerAddr)
}

func TestMatch_SamePriceTiesBreakOnRegistrationOrder(t *testing.T) {
	roundID := domain.Hash{0x0C}
	base, quote := pairTokens(0x0C)
	signer, signerAddr := newStubSigner(t)

	firstAsker := domain.Address{0xA1}
	secondAsker := domain.Address{0xA3}

	var refs []domain.IntentRef
	var decrypted []IntentInput
	refs, decrypted = addIntent(refs, decrypted, roundID, 1, domain.Address{0xB1}, domain.Address{0xB2}, base, quote,
		domain.Buy, wad(15), wad(2), 10_000, nil)
	refs, decrypted = addIntent(refs, decrypted, roundID, 2, firstAsker, domain.Address{0xA2}, base, quote,
		domain.Sell, wad(5), wad(1), 10_000, nil)
	refs, decrypted = addIntent(refs, decrypted, roundID, 3, secondAsker, domain.Address{0xA4}, base, quote,
		domain.Sell, wad(10), wad(1), 10_000, nil)

	in := RoundInputs{
		RoundID:         roundID,
		RoundEndSeconds: 1_000,
		Refs:            refs,
		Decrypted:       decrypted,
		TeeSigner:       signer,
		SignerAddress:   signerAddr,
	}

	result, err := Match(context.Background(), &in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Matches) != 4 {
		t.Fatalf("expected 4 match legs (2 fills x 2 legs), got %d", len(result.Matches))
	}

	var askAmounts []*big.Int
	var askTraders []domain.Address
	for _, m := range result.Matches {
		if m.Trader == firstAsker || m.Trader == secondAsker {
			askAmounts = append(askAmounts, m.AmountIn)
			askTraders = append(askTraders, m.Trader)
		}
	}
	if len(askAmounts) != 2 {
		t.Fatalf("expected 2 sell-side fills, got %d", len(askAmounts))
	}
	if askTraders[0] != firstAsker || askTraders[1] != secondAsker {
		t.Fatal("expected the earlier-registered ask to clear first at the same price")
	}
	if askAmounts[0].Cmp(wad(5)) != 0 || askAmounts[1].Cmp(wad(10)) != 0 {
		t.Fatalf("expected sell amountIns 5e18 then 10e18, got %s then %s", askAmounts[0], askAmounts[1])
	}

	verifyMatchSet(t, result, signerAddr)
}

func TestMatch_CrossPairIsolation(t *testing.T) {
	roundID := domain.Hash{0x04}
	baseA, quoteA := pairTokens(0x05)
	baseB, quoteB := pairTokens(0x06)
	signer, signerAddr := newStubSigner(t)

	var refs []domain.IntentRef
	var decrypted []IntentInput
	// Pair A: a clean cross.
	refs, decrypted = addIntent(refs, decrypted, roundID, 1, domain.Address{0xB1}, domain.Address{0xB2}, baseA, quoteA,
		domain.Buy, wad(5), wad(2), 10_000, nil)
	refs, decrypted = addIntent(refs, decrypted, roundID, 2, domain.Address{0xA1}, domain.Address{0xA2}, baseA, quoteA,
		domain.Sell, wad(5), wad(1), 10_000, nil)
	// Pair B: a lone bid with a price that would cross pair A's ask if pairs
	// were not isolated, but has no ask of its own.
	refs, decrypted = addIntent(refs, decrypted, roundID, 3, domain.Address{0xB3}, domain.Address{0xB4}, baseB, quoteB,
		domain.Buy, wad(5), wad(2), 10_000, nil)

	in := RoundInputs{
		RoundID:         roundID,
		RoundEndSeconds: 1_000,
		Refs:            refs,
		Decrypted:       decrypted,
		TeeSigner:       signer,
		SignerAddress:   signerAddr,
	}

	result, err := Match(context.Background(), &in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Matches) != 2 {
		t.Fatalf("expected only pair A's 2 legs to clear, got %d", len(result.Matches))
	}
	for _, m := range result.Matches {
		if m.TokenIn != baseA && m.TokenIn != quoteA {
			t.Fatal("expected no leg to reference pair B's tokens")
		}
	}
}

func TestMatch_ExpiredIntentIsFiltered(t *testing.T) {
	roundID := domain.Hash{0x05}
	base, quote := pairTokens(0x07)
	signer, signerAddr := newStubSigner(t)

	var refs []domain.IntentRef
	var decrypted []IntentInput
	// Expiry equal to round end is ineligible: it must be strictly after.
	refs, decrypted = addIntent(refs, decrypted, roundID, 1, domain.Address{0xB1}, domain.Address{0xB2}, base, quote,
		domain.Buy, wad(5), wad(2), 1_000, nil)
	refs, decrypted = addIntent(refs, decrypted, roundID, 2, domain.Address{0xA1}, domain.Address{0xA2}, base, quote,
		domain.Sell, wad(5), wad(1), 10_000, nil)

	in := RoundInputs{
		RoundID:         roundID,
		RoundEndSeconds: 1_000,
		Refs:            refs,
		Decrypted:       decrypted,
		TeeSigner:       signer,
		SignerAddress:   signerAddr,
	}

	result, err := Match(context.Background(), &in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Matches) != 0 {
		t.Fatalf("expected no matches once the bid is filtered for expiry, got %d", len(result.Matches))
	}
	if result.EligibleIntentsCount != 1 {
		t.Fatalf("expected exactly 1 eligible intent (the ask), got %d", result.EligibleIntentsCount)
	}
	if len(result.DebugErrors) == 0 {
		t.Fatal("expected a debug error explaining the expired-intent rejection")
	}
}

func TestMatch_ZeroLimitPriceIsFiltered(t *testing.T) {
	roundID := domain.Hash{0x09}
	base, quote := pairTokens(0x0D)
	signer, signerAddr := newStubSigner(t)

	var refs []domain.IntentRef
	var decrypted []IntentInput
	// Opposite-oriented (base/quote swapped), so an unfiltered zero price
	// would hit the wad inversion during normalization.
	refs, decrypted = addIntent(refs, decrypted, roundID, 1, domain.Address{0xB1}, domain.Address{0xB2}, quote, base,
		domain.Buy, wad(10), big.NewInt(0), 10_000, nil)
	refs, decrypted = addIntent(refs, decrypted, roundID, 2, domain.Address{0xA1}, domain.Address{0xA2}, base, quote,
		domain.Sell, wad(10), wad(1), 10_000, nil)

	in := RoundInputs{
		RoundID:         roundID,
		RoundEndSeconds: 1_000,
		Refs:            refs,
		Decrypted:       decrypted,
		TeeSigner:       signer,
		SignerAddress:   signerAddr,
	}

	result, err := Match(context.Background(), &in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.EligibleIntentsCount != 1 {
		t.Fatalf("expected only the ask to survive eligibility, got %d", result.EligibleIntentsCount)
	}
	if len(result.Matches) != 0 {
		t.Fatalf("expected no matches once the zero-price intent is dropped, got %d", len(result.Matches))
	}
	if len(result.DebugErrors) == 0 {
		t.Fatal("expected a debug error explaining the zero-price rejection")
	}
}

func TestMatch_IsDeterministicAcrossRuns(t *testing.T) {
	roundID := domain.Hash{0x06}
	base, quote := pairTokens(0x08)
	signer, signerAddr := newStubSigner(t)

	var refs []domain.IntentRef
	var decrypted []IntentInput
	refs, decrypted = addIntent(refs, decrypted, roundID, 1, domain.Address{0xB1}, domain.Address{0xB2}, base, quote,
		domain.Buy, wad(10), wad(2), 10_000, nil)
	refs, decrypted = addIntent(refs, decrypted, roundID, 2, domain.Address{0xA1}, domain.Address{0xA2}, base, quote,
		domain.Sell, wad(10), wad(1), 10_000, nil)

	in := RoundInputs{
		RoundID:         roundID,
		RoundEndSeconds: 1_000,
		Refs:            refs,
		Decrypted:       decrypted,
		TeeSigner:       signer,
		SignerAddress:   signerAddr,
	}

	first, err := Match(context.Background(), &in)
	if err != nil {
		t.Fatalf("first run: unexpected error: %v", err)
	}
	second, err := Match(context.Background(), &in)
	if err != nil {
		t.Fatalf("second run: unexpected error: %v", err)
	}

	if first.MerkleRoot != second.MerkleRoot {
		t.Fatal("expected identical merkle roots across repeated runs over the same inputs")
	}
	if len(first.Matches) != len(second.Matches) {
		t.Fatal("expected identical match counts across repeated runs")
	}
	for i := range first.Matches {
		if first.Matches[i].MatchID != second.Matches[i].MatchID {
			t.Fatalf("match %d: expected identical matchId across runs", i)
		}
		if first.Matches[i].Signature != second.Matches[i].Signature {
			t.Fatalf("match %d: expected identical (deterministic) signature across runs", i)
		}
	}
}

func TestMatch_SlippageFloorsMinAmountOut(t *testing.T) {
	roundID := domain.Hash{0x07}
	base, quote := pairTokens(0x09)
	signer, signerAddr := newStubSigner(t)

	bidder := domain.Address{0xB1}
	fivePercent := new(big.Int).Div(domain.WAD, big.NewInt(20)) // 0.05 wad

	var refs []domain.IntentRef
	var decrypted []IntentInput
	refs, decrypted = addIntent(refs, decrypted, roundID, 1, bidder, domain.Address{0xB2}, base, quote,
		domain.Buy, wad(10), wad(2), 10_000, fivePercent)
	refs, decrypted = addIntent(refs, decrypted, roundID, 2, domain.Address{0xA1}, domain.Address{0xA2}, base, quote,
		domain.Sell, wad(10), wad(1), 10_000, nil)

	in := RoundInputs{
		RoundID:         roundID,
		RoundEndSeconds: 1_000,
		Refs:            refs,
		Decrypted:       decrypted,
		TeeSigner:       signer,
		SignerAddress:   signerAddr,
	}

	result, err := Match(context.Background(), &in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantMinOut := new(big.Int).Mul(wad(10), big.NewInt(95))
	wantMinOut.Quo(wantMinOut, big.NewInt(100))

	for _, m := range result.Matches {
		if m.Trader == bidder {
			if m.MinAmountOut.Cmp(wantMinOut) != 0 {
				t.Fatalf("expected minAmountOut %s (5%% slippage off 10e18), got %s", wantMinOut, m.MinAmountOut)
			}
		}
	}
}

func TestMatch_NoCrossYieldsNoMatches(t *testing.T) {
	roundID := domain.Hash{0x08}
	base, quote := pairTokens(0x0A)
	signer, signerAddr := newStubSigner(t)

	var refs []domain.IntentRef
	var decrypted []IntentInput
	refs, decrypted = addIntent(refs, decrypted, roundID, 1, domain.Address{0xB1}, domain.Address{0xB2}, base, quote,
		domain.Buy, wad(10), wad(1), 10_000, nil)
	refs, decrypted = addIntent(refs, decrypted, roundID, 2, domain.Address{0xA1}, domain.Address{0xA2}, base, quote,
		domain.Sell, wad(10), wad(2), 10_000, nil)

	in := RoundInputs{
		RoundID:         roundID,
		RoundEndSeconds: 1_000,
		Refs:            refs,
		Decrypted:       decrypted,
		TeeSigner:       signer,
		SignerAddress:   signerAddr,
	}

	result, err := Match(context.Background(), &in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Matches) != 0 {
		t.Fatalf("expected no matches when the bid is below the ask, got %d", len(result.Matches))
	}
	if result.MerkleRoot != (domain.Hash{}) {
		t.Fatal("expected a zero merkle root when nothing clears")
	}
}
