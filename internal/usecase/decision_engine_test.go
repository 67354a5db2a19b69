package usecase

import (
	"reflect"
	"slices"
	"testing"

	"zkrent/internal/domain"
)

func passingChecks() domain.ClaimChecks {
	return domain.ClaimChecks{
		ProofValid:     true,
		SignatureValid: true,
		NotExpired:     true,
		NotRevoked:     true,
		PolicyAllowed:  true,
	}
}

func TestDecisionEngineV0_Deterministic(t *testing.T) {
	engine := &DecisionEngineV0{}
	income := passingChecks()
	income.ProofValid = false
	income.NotExpired = false
	credit := passingChecks()
	credit.PolicyAllowed = false
	credit.Reasons = []string{"ISSUER_NOT_TRUSTED"}
	input := DecisionInput{Income: income, CreditScore: credit}

	first, err := engine.Evaluate(input)
	if err != nil {
		t.Fatalf("evaluate decision: %v", err)
	}
	second, err := engine.Evaluate(input)
	if err != nil {
		t.Fatalf("evaluate decision: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected deterministic output")
	}
	if first.Status != domain.StatusRejected || first.IsValid {
		t.Fatalf("expected rejected, got %s", first.Status)
	}
	want := []string{"ATTESTATION_EXPIRED", "ISSUER_NOT_TRUSTED", "PROOF_INVALID"}
	if !reflect.DeepEqual(first.Reasons, want) {
		t.Fatalf("expected reasons %v, got %v", want, first.Reasons)
	}
	if slices.Contains(first.Details.CreditScore.Reasons, domain.ReasonPolicyDeny) {
		t.Fatalf("explicit deny codes should replace the generic one")
	}
}

func TestDecisionEngineV0_AllowNoReasons(t *testing.T) {
	engine := &DecisionEngineV0{}
	result, err := engine.Evaluate(DecisionInput{Income: passingChecks(), CreditScore: passingChecks()})
	if err != nil {
		t.Fatalf("evaluate decision: %v", err)
	}
	if result.Status != domain.StatusApproved || !result.IsValid {
		t.Fatalf("expected approved, got %s", result.Status)
	}
	if len(result.Reasons) != 0 {
		t.Fatalf("expected no reasons, got %v", result.Reasons)
	}
}

func TestDecisionEngineV0_EachCheckIsNecessary(t *testing.T) {
	engine := &DecisionEngineV0{}
	flips := map[string]func(c *domain.ClaimChecks){
		domain.ReasonProofInvalid:       func(c *domain.ClaimChecks) { c.ProofValid = false },
		domain.ReasonSignatureInvalid:   func(c *domain.ClaimChecks) { c.SignatureValid = false },
		domain.ReasonAttestationExpired: func(c *domain.ClaimChecks) { c.NotExpired = false },
		domain.ReasonAttestationRevoked: func(c *domain.ClaimChecks) { c.NotRevoked = false },
		domain.ReasonPolicyDeny:         func(c *domain.ClaimChecks) { c.PolicyAllowed = false },
	}
	for reason, flip := range flips {
		for _, onIncome := range []bool{true, false} {
			income, credit := passingChecks(), passingChecks()
			if onIncome {
				flip(&income)
			} else {
				flip(&credit)
			}
			result, err := engine.Evaluate(DecisionInput{Income: income, CreditScore: credit})
			if err != nil {
				t.Fatalf("evaluate decision: %v", err)
			}
			if result.Status != domain.StatusRejected {
				t.Fatalf("%s on income=%v: expected rejected", reason, onIncome)
			}
			if !slices.Contains(result.Reasons, reason) {
				t.Fatalf("%s on income=%v: missing reason in %v", reason, onIncome, result.Reasons)
			}
		}
	}
}

func TestDecisionEngineV0_UnverifiableRevocationIsRetryable(t *testing.T) {
	engine := &DecisionEngineV0{}
	income := passingChecks()
	income.NotRevoked = false
	income.Retryable = true
	income.Reasons = []string{domain.ReasonRevocationUnverifiable}

	result, err := engine.Evaluate(DecisionInput{Income: income, CreditScore: passingChecks()})
	if err != nil {
		t.Fatalf("evaluate decision: %v", err)
	}
	if result.Status == domain.StatusApproved || !result.Retryable {
		t.Fatalf("expected retryable rejection, got %+v", result)
	}
	if slices.Contains(result.Reasons, domain.ReasonAttestationRevoked) {
		t.Fatalf("unverifiable revocation must not be reported as revoked")
	}
}
