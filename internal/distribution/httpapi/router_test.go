package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"

	"github.com/shadowpool/shadowpool/internal/distribution"
	"github.com/shadowpool/shadowpool/internal/domain"
	"github.com/shadowpool/shadowpool/internal/matching"
	"github.com/shadowpool/shadowpool/internal/merkle"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHandlePublicDigest_RoundNotFound(t *testing.T) {
	store := distribution.New(300, func() uint64 { return 1000 })
	router := NewRouter(store, nil, 0)

	roundID := crypto.Keccak256Hash([]byte("missing"))
	req := httptest.NewRequest(http.MethodGet, "/api/rounds/"+roundID.Hex()+"/matches", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandlePublicDigest_InvalidRoundID(t *testing.T) {
	store := distribution.New(300, func() uint64 { return 1000 })
	router := NewRouter(store, nil, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/rounds/not-a-hash/matches", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandlePublicDigest_Success(t *testing.T) {
	store := distribution.New(300, func() uint64 { return 1000 })
	router := NewRouter(store, nil, 0)

	roundID := crypto.Keccak256Hash([]byte("round-a"))
	store.Publish(matching.Result{
		RoundID:     roundID,
		MerkleRoot:  crypto.Keccak256Hash([]byte("root")),
		RoundExpiry: 2000,
		Matches:     []domain.Match{{RoundID: roundID, Trader: domain.Address{1}}},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/rounds/"+roundID.Hex()+"/matches", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var digest distribution.PublicDigest
	if err := json.Unmarshal(rec.Body.Bytes(), &digest); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if digest.MatchesCount != 1 {
		t.Fatalf("expected matchesCount=1, got %d", digest.MatchesCount)
	}
}

func TestHandlePrivateMatches_MissingHeaders(t *testing.T) {
	store := distribution.New(300, func() uint64 { return 1000 })
	router := NewRouter(store, nil, 0)

	roundID := crypto.Keccak256Hash([]byte("round-b"))
	req := httptest.NewRequest(http.MethodGet, "/api/rounds/"+roundID.Hex()+"/matches/private", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandlePrivateMatches_ValidChallenge(t *testing.T) {
	rawKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := crypto.PubkeyToAddress(rawKey.PublicKey)

	store := distribution.New(300, func() uint64 { return 1000 })
	router := NewRouter(store, nil, 0)

	roundID := crypto.Keccak256Hash([]byte("round-c"))
	store.Publish(matching.Result{
		RoundID: roundID,
		Matches: []domain.Match{{RoundID: roundID, Trader: addr}},
	})

	msg := "shadowpool:matches:" + addr.Hex() + ":1000"
	digest := crypto.Keccak256Hash([]byte(msg))
	ethDigest := merkle.EthSignedMessageHash(digest)
	sigBytes, err := crypto.Sign(ethDigest.Bytes(), rawKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if sigBytes[64] < 27 {
		sigBytes[64] += 27
	}

	req := httptest.NewRequest(http.MethodGet, "/api/rounds/"+roundID.Hex()+"/matches/private", nil)
	req.Header.Set("X-ShadowPool-Address", addr.Hex())
	req.Header.Set("X-ShadowPool-Signature", "0x"+common.Bytes2Hex(sigBytes))
	req.Header.Set("X-ShadowPool-Timestamp", "1000")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

// fakeGuard marks every challenge used on first sight, like the Redis-backed
// cache would.
type fakeGuard struct {
	used map[string]bool
}

func (f *fakeGuard) MarkChallengeUsed(ctx context.Context, address domain.Address, timestampSec uint64, ttl time.Duration) (bool, error) {
	key := address.Hex() + ":" + strconv.FormatUint(timestampSec, 10)
	if f.used[key] {
		return false, nil
	}
	f.used[key] = true
	return true, nil
}

func TestHandlePrivateMatches_ReplayedChallengeRejected(t *testing.T) {
	rawKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := crypto.PubkeyToAddress(rawKey.PublicKey)

	store := distribution.New(300, func() uint64 { return 1000 })
	router := NewRouter(store, &fakeGuard{used: make(map[string]bool)}, 5*time.Minute)

	roundID := crypto.Keccak256Hash([]byte("round-d"))
	store.Publish(matching.Result{
		RoundID: roundID,
		Matches: []domain.Match{{RoundID: roundID, Trader: addr}},
	})

	msg := "shadowpool:matches:" + addr.Hex() + ":1000"
	digest := crypto.Keccak256Hash([]byte(msg))
	ethDigest := merkle.EthSignedMessageHash(digest)
	sigBytes, err := crypto.Sign(ethDigest.Bytes(), rawKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if sigBytes[64] < 27 {
		sigBytes[64] += 27
	}

	doRequest := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/rounds/"+roundID.Hex()+"/matches/private", nil)
		req.Header.Set("X-ShadowPool-Address", addr.Hex())
		req.Header.Set("X-ShadowPool-Signature", "0x"+common.Bytes2Hex(sigBytes))
		req.Header.Set("X-ShadowPool-Timestamp", "1000")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	if rec := doRequest(); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on first use, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := doRequest(); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on replay, got %d: %s", rec.Code, rec.Body.String())
	}
}
