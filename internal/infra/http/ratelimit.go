package http

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"zkrent/internal/domain"

	"github.com/gin-gonic/gin"
)

const (
	routeAttest          = "issuer:attest"
	routeAttestationRead = "attestations:read"
	routeAttestationVer  = "attestations:verify"
	routeVerifyProofs    = "applications:verify"
	routeApplicationRead = "applications:read"
	routeProofVerify     = "proofs:verify"
	routeRevoke          = "revocations:write"
	routeRevocationCheck = "revocations:check"
	routePropertyWrite   = "properties:write"
	routeApplicationList = "applications:list"
)

// Routes that cost a pairing check or a signature are also limited per
// subject when enabled.
var subjectLimitedRoutes = map[string]bool{
	routeAttest:       true,
	routeVerifyProofs: true,
	routeProofVerify:  true,
}

func (s *Server) enforceRateLimit(c *gin.Context, routeID string, principal domain.Principal) bool {
	if s.rateLimiter == nil || s.rateLimitRequests <= 0 {
		return true
	}
	key := "ip:" + c.ClientIP() + ":endpoint:" + routeID
	if s.rateLimitWithSubject && subjectLimitedRoutes[routeID] && principal.Subject != "" {
		sum := sha256.Sum256([]byte(principal.Subject))
		key = "subject_hash:" + hex.EncodeToString(sum[:]) + ":endpoint:" + routeID
	}

	decision, err := s.rateLimiter.Allow(c.Request.Context(), key, s.rateLimitRequests, s.rateLimitWindow)
	if err != nil {
		s.logger.Warn().Err(err).Str("route", routeID).Msg("rate limiter unavailable")
		if s.rateLimitFailClosed {
			writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMIT_UNAVAILABLE", "rate limiter unavailable")
			return false
		}
		return true
	}
	writeRateLimitHeaders(c, decision)
	if !decision.Allowed {
		writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
		return false
	}
	return true
}

func writeRateLimitHeaders(c *gin.Context, decision domain.RateLimitDecision) {
	if decision.Limit > 0 {
		c.Header("RateLimit-Limit", strconv.Itoa(decision.Limit))
	}
	if decision.Remaining >= 0 {
		c.Header("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	}
	if decision.ResetAt.IsZero() {
		return
	}
	c.Header("RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
	if !decision.Allowed {
		retryAfter := int64(time.Until(decision.ResetAt).Seconds())
		if retryAfter < 0 {
			retryAfter = 0
		}
		c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
	}
}
