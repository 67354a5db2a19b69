package http

import (
	"net/http"
	"strings"

	"zkrent/internal/domain"
	"zkrent/internal/infra/auth/rbac"
	"zkrent/internal/usecase"

	"github.com/gin-gonic/gin"
)

type addressRequest struct {
	Street  string `json:"street" binding:"required,max=256"`
	City    string `json:"city" binding:"required,max=128"`
	State   string `json:"state" binding:"required,max=64"`
	ZipCode string `json:"zipCode" binding:"required,max=16"`
}

type propertyRequest struct {
	// LandlordID is honoured only for admins creating on a landlord's behalf.
	LandlordID    string         `json:"landlordId" binding:"max=128"`
	Title         string         `json:"title" binding:"required,max=256"`
	Description   string         `json:"description" binding:"required,max=4096"`
	Address       addressRequest `json:"address"`
	Price         float64        `json:"price" binding:"min=0"`
	Bedrooms      int            `json:"bedrooms" binding:"min=0"`
	Bathrooms     float64        `json:"bathrooms" binding:"min=0"`
	SquareFeet    int            `json:"squareFeet" binding:"min=0"`
	Amenities     []string       `json:"amenities" binding:"max=64,dive,max=128"`
	Images        []string       `json:"images" binding:"max=32,dive,max=2048"`
	MinimumIncome int64          `json:"minimumIncome" binding:"min=0"`
	IsAvailable   *bool          `json:"isAvailable"`
}

func (r propertyRequest) property() domain.Property {
	available := true
	if r.IsAvailable != nil {
		available = *r.IsAvailable
	}
	return domain.Property{
		Title:       strings.TrimSpace(r.Title),
		Description: strings.TrimSpace(r.Description),
		Address: domain.Address{
			Street:  strings.TrimSpace(r.Address.Street),
			City:    strings.TrimSpace(r.Address.City),
			State:   strings.TrimSpace(r.Address.State),
			ZipCode: strings.TrimSpace(r.Address.ZipCode),
		},
		Price:         r.Price,
		Bedrooms:      r.Bedrooms,
		Bathrooms:     r.Bathrooms,
		SquareFeet:    r.SquareFeet,
		Amenities:     r.Amenities,
		Images:        r.Images,
		MinimumIncome: r.MinimumIncome,
		IsAvailable:   available,
	}
}

type verificationStatusResponse struct {
	VerificationKeys map[string]bool `json:"verificationKeys"`
}

// handleListProperties lists available properties, or all of one landlord's
// when landlordId is given.
func (s *Server) handleListProperties(c *gin.Context) {
	props, err := s.properties.List(c.Request.Context(), c.Query("landlordId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, props)
}

func (s *Server) handleGetProperty(c *gin.Context) {
	p, err := s.properties.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleCreateProperty(c *gin.Context) {
	actor, req, ok := s.propertyWrite(c, true)
	if !ok {
		return
	}
	if actor.Admin && strings.TrimSpace(req.LandlordID) != "" {
		actor.ID = strings.TrimSpace(req.LandlordID)
	}
	created, err := s.properties.Create(c.Request.Context(), actor, req.property())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleUpdateProperty(c *gin.Context) {
	actor, req, ok := s.propertyWrite(c, true)
	if !ok {
		return
	}
	updated, err := s.properties.Update(c.Request.Context(), actor, c.Param("id"), req.property())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteProperty(c *gin.Context) {
	actor, _, ok := s.propertyWrite(c, false)
	if !ok {
		return
	}
	if err := s.properties.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "id": c.Param("id")})
}

// propertyWrite authorizes a landlord write and binds the body when withBody
// is set. It writes the error response itself.
func (s *Server) propertyWrite(c *gin.Context, withBody bool) (usecase.PropertyActor, propertyRequest, bool) {
	principal, ok := s.requireAuth(c, rbac.PermPropertiesWrite, "", false)
	if !ok {
		return usecase.PropertyActor{}, propertyRequest{}, false
	}
	if !s.enforceRateLimit(c, routePropertyWrite, principal) {
		return usecase.PropertyActor{}, propertyRequest{}, false
	}
	actor := usecase.PropertyActor{ID: principal.Subject, Admin: s.isAdmin(principal)}
	var req propertyRequest
	if withBody {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, err)
			return usecase.PropertyActor{}, propertyRequest{}, false
		}
	}
	return actor, req, true
}

// handleListApplications gives a landlord the applications for their own
// properties. Admins see every application, or one landlord's with
// landlordId.
func (s *Server) handleListApplications(c *gin.Context) {
	principal, ok := s.requireAuth(c, rbac.PermApplicationsList, "", false)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, routeApplicationList, principal) {
		return
	}
	landlordID := principal.Subject
	if s.isAdmin(principal) {
		landlordID = c.Query("landlordId")
	}
	apps, err := s.applications.ListApplications(c.Request.Context(), landlordID, domain.ApplicationStatus(c.Query("status")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applications": apps})
}

// handleProofStatus reports whether the caller (or renterId, for landlords)
// holds an approved application for the property.
func (s *Server) handleProofStatus(c *gin.Context) {
	renterID := strings.TrimSpace(c.Query("renterId"))
	principal, ok := s.requireAuth(c, rbac.PermApplicationsRead, renterID, false)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, routeApplicationRead, principal) {
		return
	}
	if renterID == "" {
		renterID = principal.Subject
	}
	status, err := s.applications.ProofStatus(c.Request.Context(), renterID, c.Param("propertyId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// handleVerificationStatus reports which issuer verification keys this
// verifier can currently resolve.
func (s *Server) handleVerificationStatus(c *gin.Context) {
	refs := map[string]domain.CircuitRef{
		"employer": s.proofRefs.Income,
		"bank":     s.proofRefs.CreditScore,
	}
	out := verificationStatusResponse{VerificationKeys: make(map[string]bool, len(refs))}
	for name, ref := range refs {
		if ref.Circuit == "" {
			out.VerificationKeys[name] = false
			continue
		}
		_, err := s.proofs.Keys.Get(c.Request.Context(), ref)
		if err != nil {
			s.logger.Debug().Err(err).Str("circuit", ref.Key()).Msg("verification key unavailable")
		}
		out.VerificationKeys[name] = err == nil
	}
	c.JSON(http.StatusOK, out)
}

// isAdmin treats every caller as admin when auth is disabled.
func (s *Server) isAdmin(principal domain.Principal) bool {
	if s.cfg.AuthMode == "none" {
		return true
	}
	admin, ok := s.authorizer.(interface{ IsAdmin(domain.Principal) bool })
	return ok && admin.IsAdmin(principal)
}
