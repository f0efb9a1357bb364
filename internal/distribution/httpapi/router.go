// Package httpapi exposes the private match distribution store over HTTP:
// a public per-round digest and a wallet-signature-gated per-trader view.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/shadowpool/shadowpool/internal/distribution"
	"github.com/shadowpool/shadowpool/internal/domain"
)

// ChallengeGuard marks an authenticated private-view challenge as spent so
// the same signed challenge cannot be replayed within its TTL, even across
// distribution replicas. Satisfied by internal/cache.Cache; nil disables
// the guard.
type ChallengeGuard interface {
	MarkChallengeUsed(ctx context.Context, address domain.Address, timestampSec uint64, ttl time.Duration) (bool, error)
}

// NewRouter builds the distribution HTTP surface: a public digest endpoint
// and a wallet-signature-gated private endpoint.
func NewRouter(store *distribution.Store, guard ChallengeGuard, challengeTTL time.Duration) *gin.Engine {
	r := gin.Default()

	api := r.Group("/api/rounds")
	{
		api.GET("/:roundId/matches", handlePublicDigest(store))
		api.GET("/:roundId/matches/private", handlePrivateMatches(store, guard, challengeTTL))
	}

	return r
}

func handlePublicDigest(store *distribution.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		roundID, ok := parseRoundID(c)
		if !ok {
			return
		}

		digest, err := store.PublicDigest(roundID)
		if err != nil {
			respondStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, digest)
	}
}

func handlePrivateMatches(store *distribution.Store, guard ChallengeGuard, challengeTTL time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		roundID, ok := parseRoundID(c)
		if !ok {
			return
		}

		addrHeader := c.GetHeader("X-ShadowPool-Address")
		sigHeader := c.GetHeader("X-ShadowPool-Signature")
		tsHeader := c.GetHeader("X-ShadowPool-Timestamp")

		if addrHeader == "" || sigHeader == "" || tsHeader == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing challenge headers"})
			return
		}

		ts, err := strconv.ParseUint(tsHeader, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timestamp"})
			return
		}

		sigBytes := common.FromHex(sigHeader)
		if len(sigBytes) != 65 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "signature must be 65 bytes"})
			return
		}
		var sig [65]byte
		copy(sig[:], sigBytes)

		address := common.HexToAddress(addrHeader)

		matches, err := store.PrivateMatches(roundID, address, ts, sig)
		if err != nil {
			respondStoreError(c, err)
			return
		}

		// Only a signature that verified may burn the challenge marker;
		// replaying the same signed challenge is rejected here.
		if guard != nil {
			fresh, err := guard.MarkChallengeUsed(c.Request.Context(), address, ts, challengeTTL)
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "challenge guard unavailable"})
				return
			}
			if !fresh {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "challenge already used"})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"roundId": roundID, "matches": matches})
	}
}

func parseRoundID(c *gin.Context) (domain.Hash, bool) {
	raw := c.Param("roundId")
	if len(raw) != 66 || raw[:2] != "0x" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid roundId, expected 32-byte 0x-prefixed hex"})
		return domain.Hash{}, false
	}
	return common.HexToHash(raw), true
}

func respondStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, distribution.ErrRoundNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, distribution.ErrStaleChallenge), errors.Is(err, distribution.ErrBadSignature):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
