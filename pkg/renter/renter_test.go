package renter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"zkrent/internal/domain"
	cryptoinfra "zkrent/internal/infra/crypto"
	"zkrent/internal/infra/zkp"
	"zkrent/internal/usecase"
)

func issueFixture(t *testing.T, value int64) (usecase.IssueResult, domain.IssuerKeys) {
	t.Helper()
	key, err := cryptoinfra.GenerateRSAKey(2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := cryptoinfra.NewSigner(key)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	salt, err := zkp.NewSalt()
	if err != nil {
		t.Fatalf("salt: %v", err)
	}
	commitment, err := zkp.Commit(value, salt)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	att := domain.Attestation{
		ID:         "att-1",
		Issuer:     "employer",
		SubjectID:  "renter-001",
		ClaimType:  domain.ClaimIncome,
		Value:      value,
		Currency:   "EUR",
		Commitment: commitment.String(),
		IssuedAt:   now,
		ExpiresAt:  now.Add(domain.AttestationValidity),
	}
	sig, err := signer.Sign(att)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	presSig, err := signer.Sign(att.Presentation())
	if err != nil {
		t.Fatalf("sign presentation: %v", err)
	}
	issued := usecase.IssueResult{
		SignedAttestation: domain.SignedAttestation{
			Attestation:           att,
			Signature:             sig,
			PresentationSignature: presSig,
			Algorithm:             signer.Algorithm(),
		},
		Salt: salt.String(),
	}
	info := domain.IssuerKeys{
		Metadata:         domain.IssuerMetadata{ID: "employer"},
		SigningPublicKey: signer.PublicKeyPEM(),
	}
	return issued, info
}

func TestVerifyIssued(t *testing.T) {
	issued, info := issueFixture(t, 4200)
	if err := VerifyIssued(issued, info); err != nil {
		t.Fatalf("verify issued: %v", err)
	}

	tampered := issued
	tampered.SignedAttestation.Attestation.Value = 9000
	if err := VerifyIssued(tampered, info); err == nil {
		t.Fatalf("expected tampered value to fail signature check")
	}

	other := info
	other.Metadata.ID = "bank"
	if err := VerifyIssued(issued, other); !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("expected issuer mismatch, got %v", err)
	}
}

func TestBuildClaim_RejectsWrongSalt(t *testing.T) {
	issued, _ := issueFixture(t, 4200)
	other, err := zkp.NewSalt()
	if err != nil {
		t.Fatalf("salt: %v", err)
	}
	issued.Salt = other.String()
	if _, err := BuildClaim(nil, issued, 3000); !errors.Is(err, ErrCommitmentMismatch) {
		t.Fatalf("expected commitment mismatch, got %v", err)
	}
}

func TestClient_AttestAndApply(t *testing.T) {
	issued, _ := issueFixture(t, 4200)
	mux := http.NewServeMux()
	mux.HandleFunc("/attest-income", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(issued)
	})
	mux.HandleFunc("/verify-proofs", func(w http.ResponseWriter, r *http.Request) {
		var req usecase.ApplicationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(domain.Decision{RenterID: req.RenterID, IsValid: true, Status: domain.StatusApproved})
	})
	mux.HandleFunc("/application-status/renter-001", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(domain.RentalApplication{RenterID: "renter-001", Status: domain.StatusApproved})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	c := NewClient(time.Second, "tok")
	got, err := c.Attest(ctx, srv.URL+"/", domain.ClaimIncome, "renter-001")
	if err != nil {
		t.Fatalf("attest: %v", err)
	}
	if got.Salt != issued.Salt || got.SignedAttestation.Attestation.ID != "att-1" {
		t.Fatalf("unexpected issue result %+v", got)
	}

	decision, err := c.Apply(ctx, srv.URL, usecase.ApplicationRequest{RenterID: "renter-001"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if decision.Status != domain.StatusApproved {
		t.Fatalf("status = %s", decision.Status)
	}

	app, err := c.Status(ctx, srv.URL, "renter-001")
	if err != nil || app.Status != domain.StatusApproved {
		t.Fatalf("status: %v %+v", err, app)
	}

	if _, err := NewClient(time.Second, "").Attest(ctx, srv.URL, domain.ClaimIncome, "renter-001"); err == nil {
		t.Fatalf("expected unauthorized attest to fail")
	}
}

func TestIssuerCircuitKeys_ProofVerifiesUnderPublishedKey(t *testing.T) {
	issued, info := issueFixture(t, 4200)
	issuerKeys, err := zkp.NewKeyManager(t.TempDir(), zerolog.Nop()).LoadOrSetup(domain.CircuitIncome, &zkp.ThresholdCircuit{})
	if err != nil {
		t.Fatalf("issuer setup: %v", err)
	}
	published, err := zkp.PublishedKeys(info.Metadata, zkp.ThresholdDescriptor(domain.CircuitIncome, 3000), issuerKeys, info.SigningPublicKey)
	if err != nil {
		t.Fatalf("published keys: %v", err)
	}
	// A setup the renter ran on its own disk yields a foreign key pair.
	renterKeys, err := zkp.NewKeyManager(t.TempDir(), zerolog.Nop()).LoadOrSetup(domain.CircuitIncome, &zkp.ThresholdCircuit{})
	if err != nil {
		t.Fatalf("renter setup: %v", err)
	}

	served, err := issuerKeys.ProvingKeyBytes()
	if err != nil {
		t.Fatalf("proving key bytes: %v", err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/circuit/proving-key", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(served)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	c := NewClient(5*time.Second, "")
	keys, err := c.IssuerCircuitKeys(ctx, srv.URL, published)
	if err != nil {
		t.Fatalf("issuer circuit keys: %v", err)
	}
	claim, err := BuildClaim(keys, issued, published.Circuit.Threshold)
	if err != nil {
		t.Fatalf("build claim: %v", err)
	}
	ok, err := zkp.NewEngine(zerolog.Nop()).Verify(published.VerificationKey, claim.Proof, claim.PublicSignals)
	if err != nil || !ok {
		t.Fatalf("proof under issuer key: ok=%v err=%v", ok, err)
	}
	if claim.PublicSignals.Result() != "1" {
		t.Fatalf("result = %s", claim.PublicSignals.Result())
	}

	served, err = renterKeys.ProvingKeyBytes()
	if err != nil {
		t.Fatalf("proving key bytes: %v", err)
	}
	if _, err := c.IssuerCircuitKeys(ctx, srv.URL, published); !errors.Is(err, zkp.ErrKeyMismatch) {
		t.Fatalf("expected key mismatch for a foreign proving key, got %v", err)
	}
}

func TestClient_Property(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/properties/prop-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(domain.Property{ID: "prop-1", MinimumIncome: 4500, IsAvailable: true})
	})
	mux.HandleFunc("/properties/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"NOT_FOUND"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(time.Second, "")
	p, err := c.Property(context.Background(), srv.URL, "prop-1")
	if err != nil {
		t.Fatalf("property: %v", err)
	}
	if p.MinimumIncome != 4500 {
		t.Fatalf("minimum income = %d", p.MinimumIncome)
	}
	if _, err := c.Property(context.Background(), srv.URL, "prop-9"); err == nil {
		t.Fatalf("expected missing property to fail")
	}
}
