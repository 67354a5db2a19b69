package http

import (
	"net/http"
	"strings"

	"zkrent/internal/domain"
	"zkrent/internal/infra/auth/rbac"
	"zkrent/internal/usecase"

	"github.com/gin-gonic/gin"
)

type verifyProofsResponse struct {
	RenterID   string                   `json:"renterId"`
	PropertyID string                   `json:"propertyId,omitempty"`
	IsValid    bool                     `json:"isValid"`
	Status     domain.ApplicationStatus `json:"status"`
	Details    domain.DecisionDetails   `json:"details"`
	Reasons    []string                 `json:"reasons,omitempty"`
}

type proofRequest struct {
	Proof         domain.Proof         `json:"proof"`
	PublicSignals domain.PublicSignals `json:"publicSignals" binding:"required"`
}

type proofVerdictResponse struct {
	Verified bool     `json:"verified"`
	Circuit  string   `json:"circuit"`
	Code     string   `json:"code,omitempty"`
	Reasons  []string `json:"reasons,omitempty"`
}

type verificationKeyResponse struct {
	Issuer          string                   `json:"issuer"`
	Circuit         domain.CircuitDescriptor `json:"circuit"`
	VerificationKey []byte                   `json:"verificationKey"`
}

func (s *Server) handleVerifyProofs(c *gin.Context) {
	var req usecase.ApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	principal, ok := s.requireAuth(c, rbac.PermApplicationsSubmit, strings.TrimSpace(req.RenterID), false)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, routeVerifyProofs, principal) {
		return
	}
	decision, err := s.applications.Submit(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, verifyProofsResponse{
		RenterID:   decision.RenterID,
		PropertyID: decision.PropertyID,
		IsValid:    decision.IsValid,
		Status:     decision.Status,
		Details:    decision.Details,
		Reasons:    decision.Reasons,
	})
}

func (s *Server) handleApplicationStatus(c *gin.Context) {
	renterID := c.Param("renterId")
	principal, ok := s.requireAuth(c, rbac.PermApplicationsRead, renterID, false)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, routeApplicationRead, principal) {
		return
	}
	app, err := s.applications.Status(c.Request.Context(), renterID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

func (s *Server) handleVerifyIncomeProof(c *gin.Context) {
	s.verifyProof(c, s.proofRefs.Income)
}

func (s *Server) handleVerifyRentalHistoryProof(c *gin.Context) {
	s.verifyProof(c, s.proofRefs.RentalHistory)
}

// verifyProof answers 200 only for a proof that passes the pairing check and
// states the issuer's claim; any other well-formed proof is a 400 verdict.
func (s *Server) verifyProof(c *gin.Context, ref domain.CircuitRef) {
	principal, ok := s.requireAuth(c, rbac.PermProofsVerify, "", false)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, routeProofVerify, principal) {
		return
	}
	var req proofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	verdict, err := s.proofs.VerifyClaim(c.Request.Context(), ref, req.Proof, req.PublicSignals)
	if err != nil {
		writeError(c, err)
		return
	}
	if !verdict.Valid() {
		c.JSON(http.StatusBadRequest, proofVerdictResponse{
			Verified: false,
			Circuit:  ref.Circuit,
			Code:     "VERIFICATION_FAILED",
			Reasons:  verdict.Reasons(),
		})
		return
	}
	c.JSON(http.StatusOK, proofVerdictResponse{Verified: true, Circuit: ref.Circuit})
}

func (s *Server) handleVerificationKey(c *gin.Context) {
	ref, ok := s.circuitRef(c.Param("circuit"))
	if !ok {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "unknown circuit")
		return
	}
	keys, err := s.proofs.Keys.Get(c.Request.Context(), ref)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, verificationKeyResponse{
		Issuer:          keys.Metadata.ID,
		Circuit:         keys.Circuit,
		VerificationKey: keys.VerificationKey,
	})
}

// handleProvingKey serves keys for circuits this verifier set up itself.
// Issuer circuits are fetched from the issuer.
func (s *Server) handleProvingKey(c *gin.Context) {
	ref, ok := s.circuitRef(c.Param("circuit"))
	if !ok {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "unknown circuit")
		return
	}
	s.writeProvingKey(c, ref.Circuit)
}

// circuitRef resolves a route alias or a circuit name.
func (s *Server) circuitRef(name string) (domain.CircuitRef, bool) {
	refs := map[string]domain.CircuitRef{
		"income":         s.proofRefs.Income,
		"credit-score":   s.proofRefs.CreditScore,
		"rental-history": s.proofRefs.RentalHistory,
	}
	if ref, ok := refs[name]; ok && ref.Circuit != "" {
		return ref, true
	}
	for _, ref := range refs {
		if ref.Circuit != "" && ref.Circuit == name {
			return ref, true
		}
	}
	return domain.CircuitRef{}, false
}
