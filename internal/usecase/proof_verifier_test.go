package usecase

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/rs/zerolog"

	"zkrent/internal/domain"
)

func newProofVerifier(valid bool) (*ProofVerifier, *stubEngine) {
	keys := &stubKeySource{keys: map[string]domain.IssuerKeys{
		incomeRef.Key(): testIssuerKeys(incomeRef, domain.ClaimIncome, 3000),
	}}
	engine := &stubEngine{results: map[string]bool{"vk-" + incomeRef.Circuit: valid}, errs: map[string]error{}}
	return &ProofVerifier{Keys: keys, Engine: engine, Logger: zerolog.Nop()}, engine
}

func TestProofVerifier_VerifyClaim(t *testing.T) {
	proof := testSubmission("att-1", "employer", domain.ClaimIncome, 3000).Proof
	cases := []struct {
		name    string
		valid   bool
		signals domain.PublicSignals
		ok      bool
		reasons []string
	}{
		{name: "claim holds", valid: true, signals: domain.PublicSignals{"1", "3000", "42"}, ok: true},
		{name: "below threshold", valid: true, signals: domain.PublicSignals{"0", "3000", "42"}, reasons: []string{domain.ReasonClaimNotMet}},
		{name: "other threshold", valid: true, signals: domain.PublicSignals{"1", "100", "42"}, reasons: []string{domain.ReasonThresholdMismatch}},
		{name: "pairing fails", valid: false, signals: domain.PublicSignals{"1", "3000", "42"}, reasons: []string{domain.ReasonProofInvalid}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, _ := newProofVerifier(tc.valid)
			got, err := v.VerifyClaim(context.Background(), incomeRef, proof, tc.signals)
			if err != nil {
				t.Fatalf("verify: %v", err)
			}
			if got.Valid() != tc.ok {
				t.Fatalf("Valid() = %v, want %v", got.Valid(), tc.ok)
			}
			if !slices.Equal(got.Reasons(), tc.reasons) {
				t.Fatalf("reasons = %v, want %v", got.Reasons(), tc.reasons)
			}
			if CommitmentSignal(tc.signals) != "42" {
				t.Fatalf("unexpected commitment signal")
			}
		})
	}
}

func TestProofVerifier_WrongSignalCountIsValidation(t *testing.T) {
	v, engine := newProofVerifier(true)
	_, err := v.VerifyProof(context.Background(), incomeRef, domain.Proof{}, domain.PublicSignals{"1"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if engine.calls != 0 {
		t.Fatalf("engine must not run on malformed signals")
	}
}

func TestProofVerifier_EngineErrors(t *testing.T) {
	v, engine := newProofVerifier(true)
	vk := "vk-" + incomeRef.Circuit

	engine.errs[vk] = domain.NewValidationError(domain.Violation{Field: "proof.pi_a", Message: "not on curve"})
	if _, err := v.VerifyProof(context.Background(), incomeRef, domain.Proof{}, domain.PublicSignals{"1", "3000", "42"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	engine.errs[vk] = errors.New("backend exploded")
	_, err := v.VerifyProof(context.Background(), incomeRef, domain.Proof{}, domain.PublicSignals{"1", "3000", "42"})
	if err == nil || errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestProofVerifier_UnknownCircuit(t *testing.T) {
	v, _ := newProofVerifier(true)
	_, err := v.VerifyProof(context.Background(), creditRef, domain.Proof{}, nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := (&ProofVerifier{}).VerifyProof(context.Background(), incomeRef, domain.Proof{}, nil); err == nil {
		t.Fatalf("expected unconfigured verifier to fail")
	}
}
