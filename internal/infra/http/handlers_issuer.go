package http

import (
	"net/http"
	"strings"

	"zkrent/internal/domain"
	"zkrent/internal/infra/auth/rbac"

	"github.com/gin-gonic/gin"
)

// attestRequest accepts the subject under any of the names clients use.
type attestRequest struct {
	SubjectID  string `json:"subjectId" binding:"max=128"`
	RenterID   string `json:"renter_id" binding:"max=128"`
	CustomerID string `json:"customer_id" binding:"max=128"`
}

func (r attestRequest) subject() string {
	for _, id := range []string{r.SubjectID, r.RenterID, r.CustomerID} {
		if id = strings.TrimSpace(id); id != "" {
			return id
		}
	}
	return ""
}

type verifyAttestationResponse struct {
	IsValid bool `json:"isValid"`
}

func (s *Server) handlePublicInfo(c *gin.Context) {
	c.JSON(http.StatusOK, s.publicInfo)
}

func (s *Server) handleCircuit(c *gin.Context) {
	c.JSON(http.StatusOK, s.publicInfo.Circuit)
}

func (s *Server) handleIssuerProvingKey(c *gin.Context) {
	s.writeProvingKey(c, s.publicInfo.Circuit.Name)
}

// writeProvingKey serves the gnark binary encoding of a circuit's proving
// key.
func (s *Server) writeProvingKey(c *gin.Context, circuit string) {
	pk, ok := s.provingKeys[circuit]
	if !ok || len(pk) == 0 {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "no proving key for circuit")
		return
	}
	c.Header("Cache-Control", "public, max-age=300")
	c.Data(http.StatusOK, "application/octet-stream", pk)
}

func (s *Server) handleAttest(c *gin.Context) {
	principal, ok := s.requireAuth(c, rbac.PermAttest, "", false)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, routeAttest, principal) {
		return
	}
	var req attestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	result, err := s.issuer.Issue(c.Request.Context(), req.subject())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (s *Server) handleAttestationHistory(c *gin.Context) {
	subjectID := c.Param("subjectId")
	principal, ok := s.requireAuth(c, rbac.PermAttestationsRead, subjectID, false)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, routeAttestationRead, principal) {
		return
	}
	record, err := s.issuer.History(c.Request.Context(), subjectID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleVerifyAttestation(c *gin.Context) {
	principal, ok := s.requireAuth(c, rbac.PermProofsVerify, "", false)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, routeAttestationVer, principal) {
		return
	}
	var signed domain.SignedAttestation
	if err := c.ShouldBindJSON(&signed); err != nil {
		writeBindError(c, err)
		return
	}
	valid, err := s.issuer.VerifySigned(signed)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, verifyAttestationResponse{IsValid: valid})
}
