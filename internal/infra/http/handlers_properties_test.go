package http

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"zkrent/internal/domain"
	"zkrent/internal/infra/auth/rbac"
	"zkrent/internal/infra/db"
	"zkrent/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

var creditRef = domain.CircuitRef{Issuer: "bank", Circuit: domain.CircuitCreditScore}

func newPropertyServer(t *testing.T, name, authMode string) (*Server, *db.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := newAuditStore(t, name)
	keys := stubKeys{
		incomeRef.Key(): {
			Metadata:        domain.IssuerMetadata{ID: "employer"},
			Circuit:         domain.CircuitDescriptor{Name: domain.CircuitIncome, NPublic: 3, Threshold: 3000},
			VerificationKey: []byte("vk-income"),
		},
	}
	srv := NewServerWithDeps(testConfig(authMode), ServerDeps{
		Applications: &usecase.ApplicationService{Applications: store.Applications, Properties: store.Properties},
		Properties:   &usecase.PropertyService{Properties: store.Properties, Logger: zerolog.Nop()},
		Proofs:       &usecase.ProofVerifier{Keys: keys, Engine: stubEngine{}, Logger: zerolog.Nop()},
		ProofRefs:    ProofRefs{Income: incomeRef, CreditScore: creditRef},
		Logger:       zerolog.Nop(),
	})
	return srv, store
}

func propertyBody(minimumIncome int64) map[string]any {
	return map[string]any{
		"title":         "Two bed flat",
		"description":   "Near the park",
		"address":       map[string]string{"street": "1 Main St", "city": "Springfield", "state": "IL", "zipCode": "62701"},
		"price":         1800,
		"bedrooms":      2,
		"bathrooms":     1.5,
		"squareFeet":    850,
		"amenities":     []string{"parking"},
		"images":        []string{},
		"minimumIncome": minimumIncome,
	}
}

func decodeProperty(t *testing.T, raw []byte) domain.Property {
	t.Helper()
	var out domain.Property
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode property %q: %v", raw, err)
	}
	return out
}

func TestProperties_LandlordOnlyWrites(t *testing.T) {
	srv, _ := newPropertyServer(t, "http_properties_writes", "jwt")
	landlord := map[string]string{"Authorization": mintToken(t, "landlord-1", []string{rbac.RoleLandlord}, nil)}
	other := map[string]string{"Authorization": mintToken(t, "landlord-2", []string{rbac.RoleLandlord}, nil)}
	tenant := map[string]string{"Authorization": mintToken(t, "renter-1", []string{rbac.RoleTenant}, nil)}

	rec := doRequest(t, srv, http.MethodPost, "/properties", propertyBody(5400), tenant)
	if rec.Code != http.StatusForbidden || decodeError(t, rec).Code != "MISSING_SCOPE" {
		t.Fatalf("tenant: expected 403 MISSING_SCOPE, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodPost, "/properties", propertyBody(5400), landlord)
	if rec.Code != http.StatusCreated {
		t.Fatalf("landlord: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeProperty(t, rec.Body.Bytes())
	if created.ID == "" || created.LandlordID != "landlord-1" || !created.IsAvailable || created.MinimumIncome != 5400 {
		t.Fatalf("unexpected created property %+v", created)
	}

	rec = doRequest(t, srv, http.MethodPut, "/properties/"+created.ID, propertyBody(6000), other)
	if rec.Code != http.StatusForbidden || decodeError(t, rec).Code != "FORBIDDEN" {
		t.Fatalf("other landlord: expected 403 FORBIDDEN, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, srv, http.MethodDelete, "/properties/"+created.ID, nil, other)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("other landlord delete: expected 403, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPut, "/properties/"+created.ID, propertyBody(6000), landlord)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if updated := decodeProperty(t, rec.Body.Bytes()); updated.MinimumIncome != 6000 || updated.LandlordID != "landlord-1" {
		t.Fatalf("unexpected updated property %+v", updated)
	}

	rec = doRequest(t, srv, http.MethodGet, "/properties", nil, nil)
	var listed []domain.Property
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil || len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("expected public listing of one property, got %s (%v)", rec.Body.String(), err)
	}

	rec = doRequest(t, srv, http.MethodDelete, "/properties/"+created.ID, nil, landlord)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner delete: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, srv, http.MethodGet, "/properties/"+created.ID, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestProperties_ValidationViolations(t *testing.T) {
	srv, _ := newPropertyServer(t, "http_properties_validation", "none")
	body := propertyBody(-5)
	delete(body, "title")

	rec := doRequest(t, srv, http.MethodPost, "/properties", body, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeError(t, rec)
	if resp.Code != "VALIDATION_FAILED" {
		t.Fatalf("code = %q", resp.Code)
	}
	raw, _ := json.Marshal(resp.Details["violations"])
	var violations []domain.Violation
	if err := json.Unmarshal(raw, &violations); err != nil {
		t.Fatalf("decode violations: %v", err)
	}
	fields := map[string]bool{}
	for _, v := range violations {
		fields[v.Field] = true
	}
	if !fields["title"] || !fields["minimumIncome"] {
		t.Fatalf("expected title and minimumIncome violations, got %+v", violations)
	}
}

func TestListApplications_ScopedToLandlord(t *testing.T) {
	srv, store := newPropertyServer(t, "http_list_applications", "jwt")
	ctx := context.Background()
	for _, p := range []domain.Property{
		{ID: "prop-1", LandlordID: "landlord-1", IsAvailable: true},
		{ID: "prop-2", LandlordID: "landlord-2", IsAvailable: true},
	} {
		if _, err := store.Properties.Create(ctx, p); err != nil {
			t.Fatalf("create property: %v", err)
		}
	}
	for renter, prop := range map[string]string{"renter-1": "prop-1", "renter-2": "prop-2"} {
		if _, err := store.Applications.Upsert(ctx, domain.RentalApplication{RenterID: renter, PropertyID: prop, Status: domain.StatusApproved}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	list := func(headers map[string]string) []domain.RentalApplication {
		t.Helper()
		rec := doRequest(t, srv, http.MethodGet, "/applications", nil, headers)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var out struct {
			Applications []domain.RentalApplication `json:"applications"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return out.Applications
	}

	own := list(map[string]string{"Authorization": mintToken(t, "landlord-1", []string{rbac.RoleLandlord}, nil)})
	if len(own) != 1 || own[0].RenterID != "renter-1" {
		t.Fatalf("expected only landlord-1's application, got %+v", own)
	}
	all := list(map[string]string{"Authorization": mintToken(t, "ops-1", []string{rbac.DefaultAdminRole}, nil)})
	if len(all) != 2 {
		t.Fatalf("expected admin to see every application, got %+v", all)
	}

	rec := doRequest(t, srv, http.MethodGet, "/applications", nil, map[string]string{
		"Authorization": mintToken(t, "renter-1", []string{rbac.RoleTenant}, nil),
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("tenant: expected 403, got %d", rec.Code)
	}
}

func TestProofStatus(t *testing.T) {
	srv, store := newPropertyServer(t, "http_proof_status", "jwt")
	decided := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := store.Applications.Upsert(context.Background(), domain.RentalApplication{
		RenterID: "renter-1", PropertyID: "prop-1", Status: domain.StatusApproved, CreatedAt: decided, UpdatedAt: decided,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	renter := map[string]string{"Authorization": mintToken(t, "renter-1", []string{rbac.RoleTenant}, nil)}

	rec := doRequest(t, srv, http.MethodGet, "/api/proofs/status/prop-1", nil, renter)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var status domain.ProofStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !status.HasVerifiedProof || status.LastVerified == nil || !status.LastVerified.Equal(decided) {
		t.Fatalf("unexpected status %+v", status)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/proofs/status/prop-2", nil, renter)
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil || status.HasVerifiedProof || status.LastVerified != nil {
		t.Fatalf("expected no proof for prop-2, got %s", rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/proofs/status/prop-1?renterId=renter-1", nil, map[string]string{
		"Authorization": mintToken(t, "renter-2", []string{rbac.RoleTenant}, nil),
	})
	if rec.Code != http.StatusForbidden || decodeError(t, rec).Code != "SUBJECT_MISMATCH" {
		t.Fatalf("other renter: expected 403 SUBJECT_MISMATCH, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/proofs/status/prop-1?renterId=renter-1", nil, map[string]string{
		"Authorization": mintToken(t, "landlord-1", []string{rbac.RoleLandlord}, nil),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("landlord: expected 200, got %d", rec.Code)
	}
}

func TestVerificationStatus(t *testing.T) {
	srv, _ := newPropertyServer(t, "http_verification_status", "none")

	rec := doRequest(t, srv, http.MethodGet, "/verification-status", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out verificationStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.VerificationKeys["employer"] || out.VerificationKeys["bank"] {
		t.Fatalf("expected employer key only, got %+v", out.VerificationKeys)
	}
}
