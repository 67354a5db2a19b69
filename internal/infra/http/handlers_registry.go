package http

import (
	"net/http"
	"strings"

	"zkrent/internal/domain"
	"zkrent/internal/infra/auth/rbac"
	"zkrent/internal/infra/registry"

	"github.com/gin-gonic/gin"
)

type revokeRequest struct {
	AttestationID string `json:"attestationId" binding:"required,max=128"`
	Issuer        string `json:"issuer" binding:"required,max=128"`
	Reason        string `json:"reason" binding:"max=512"`
}

type revokeResponse struct {
	Revocation domain.Revocation `json:"revocation"`
	Epoch      int64             `json:"epoch"`
}

type epochResponse struct {
	Issuer string `json:"issuer"`
	Epoch  int64  `json:"epoch"`
}

func (s *Server) handleCheckRevocation(c *gin.Context) {
	if !s.enforceRateLimit(c, routeRevocationCheck, domain.Principal{}) {
		return
	}
	attestationID := strings.TrimSpace(c.Query("attestationId"))
	issuer := strings.TrimSpace(c.Query("issuer"))
	verr := &domain.ValidationError{}
	if attestationID == "" {
		verr.Add("attestationId", "is required")
	}
	if issuer == "" {
		verr.Add("issuer", "is required")
	}
	if !verr.Empty() {
		writeValidationError(c, verr.Violations)
		return
	}
	ctx := c.Request.Context()
	revoked, err := s.revocations.IsRevoked(ctx, attestationID, issuer)
	if err != nil {
		writeError(c, err)
		return
	}
	epoch, err := s.revocations.Epoch(ctx, issuer)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, registry.CheckResponse{
		AttestationID: attestationID,
		Issuer:        issuer,
		IsRevoked:     revoked,
		Epoch:         epoch,
	})
}

func (s *Server) handleRevoke(c *gin.Context) {
	principal, ok := s.requireAuth(c, rbac.PermRevoke, "", true)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, routeRevoke, principal) {
		return
	}
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	rev := domain.Revocation{
		AttestationID: strings.TrimSpace(req.AttestationID),
		Issuer:        strings.TrimSpace(req.Issuer),
		Reason:        req.Reason,
	}
	result, err := s.revocations.Revoke(c.Request.Context(), rev)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusCreated
	if !result.Created {
		status = http.StatusOK
	}
	c.JSON(status, revokeResponse{Revocation: result.Revocation, Epoch: result.Epoch})
}

func (s *Server) handleRevocationEpoch(c *gin.Context) {
	issuer := c.Param("issuer")
	epoch, err := s.revocations.Epoch(c.Request.Context(), issuer)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, epochResponse{Issuer: issuer, Epoch: epoch})
}
