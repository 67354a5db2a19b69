package http

import (
	"context"
	"errors"
	"net/http"

	"zkrent/internal/domain"
	"zkrent/internal/infra/auth/rbac"
	"zkrent/internal/usecase"

	"github.com/gin-gonic/gin"
)

type auditTrailResponse struct {
	domain.AuditChainStatus
	Events []domain.AuditEvent `json:"events"`
}

// handleRevocationAudit is public like /check: revocations are not secret.
func (s *Server) handleRevocationAudit(c *gin.Context) {
	if !s.enforceRateLimit(c, routeRevocationCheck, domain.Principal{}) {
		return
	}
	issuer := c.Param("issuer")
	writeAuditTrail(c, func(ctx context.Context) (domain.AuditChainStatus, []domain.AuditEvent, error) {
		return s.revocations.AuditTrail(ctx, issuer)
	})
}

func (s *Server) handleDecisionAudit(c *gin.Context) {
	if _, ok := s.requireAuth(c, rbac.PermAuditRead, "", true); !ok {
		return
	}
	writeAuditTrail(c, s.applications.DecisionAudit)
}

func writeAuditTrail(c *gin.Context, load func(ctx context.Context) (domain.AuditChainStatus, []domain.AuditEvent, error)) {
	status, events, err := load(c.Request.Context())
	if err != nil {
		if errors.Is(err, usecase.ErrAuditChainBroken) {
			writeErrorCode(c, http.StatusConflict, "AUDIT_CHAIN_BROKEN", err.Error())
			return
		}
		writeError(c, err)
		return
	}
	if events == nil {
		events = []domain.AuditEvent{}
	}
	c.JSON(http.StatusOK, auditTrailResponse{AuditChainStatus: status, Events: events})
}
