package usecase

import (
	"sort"

	"zkrent/internal/domain"
)

const DecisionEngineVersion = "decision.v1.0.0"

type DecisionInput struct {
	Income      domain.ClaimChecks
	CreditScore domain.ClaimChecks
}

type DecisionResult struct {
	EngineVersion string
	Status        domain.ApplicationStatus
	IsValid       bool
	Details       domain.DecisionDetails
	Reasons       []string
	Retryable     bool
}

// DecisionEngineV0 combines the per-claim checks. An application is approved
// only when every check of both claims holds; there is no partial approval.
type DecisionEngineV0 struct{}

func (e *DecisionEngineV0) Evaluate(input DecisionInput) (DecisionResult, error) {
	income := normalizeChecks(input.Income)
	credit := normalizeChecks(input.CreditScore)

	reasons := make(map[string]struct{})
	addReason(reasons, income.Reasons...)
	addReason(reasons, credit.Reasons...)

	valid := income.Valid() && credit.Valid()
	return DecisionResult{
		EngineVersion: DecisionEngineVersion,
		Status:        domain.StatusFor(income.Valid(), credit.Valid()),
		IsValid:       valid,
		Details:       domain.DecisionDetails{Income: income, CreditScore: credit},
		Reasons:       sortedReasons(reasons),
		Retryable:     income.Retryable || credit.Retryable,
	}, nil
}

// normalizeChecks derives the reason codes implied by failed checks and
// returns them deduplicated and sorted alongside any recorded by the checks.
func normalizeChecks(c domain.ClaimChecks) domain.ClaimChecks {
	reasons := make(map[string]struct{})
	addReason(reasons, c.Reasons...)
	if !c.ProofValid && !hasAny(reasons, domain.ReasonProofInvalid, domain.ReasonClaimNotMet,
		domain.ReasonThresholdMismatch, domain.ReasonCommitmentMismatch) {
		addReason(reasons, domain.ReasonProofInvalid)
	}
	if !c.SignatureValid && !hasAny(reasons, domain.ReasonIssuerMismatch) {
		addReason(reasons, domain.ReasonSignatureInvalid)
	}
	if !c.NotExpired {
		addReason(reasons, domain.ReasonAttestationExpired)
	}
	if !c.NotRevoked && !hasAny(reasons, domain.ReasonRevocationUnverifiable) {
		addReason(reasons, domain.ReasonAttestationRevoked)
	}
	if !c.PolicyAllowed && len(policyReasons(c.Reasons)) == 0 {
		addReason(reasons, domain.ReasonPolicyDeny)
	}
	c.Reasons = sortedReasons(reasons)
	return c
}

func policyReasons(reasons []string) []string {
	known := map[string]struct{}{
		domain.ReasonProofInvalid:           {},
		domain.ReasonClaimNotMet:            {},
		domain.ReasonThresholdMismatch:      {},
		domain.ReasonCommitmentMismatch:     {},
		domain.ReasonSignatureInvalid:       {},
		domain.ReasonIssuerMismatch:         {},
		domain.ReasonAttestationExpired:     {},
		domain.ReasonAttestationRevoked:     {},
		domain.ReasonRevocationUnverifiable: {},
	}
	var out []string
	for _, r := range reasons {
		if _, ok := known[r]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// policyDenyReasons turns a policy result into reason codes. A deny without
// codes still yields POLICY_DENY.
func policyDenyReasons(policy domain.PolicyResult) []string {
	reasons := make([]string, 0, len(policy.Deny))
	for _, deny := range policy.Deny {
		if deny.Code != "" {
			reasons = append(reasons, deny.Code)
		}
	}
	if !policy.Allow && len(reasons) == 0 {
		reasons = append(reasons, domain.ReasonPolicyDeny)
	}
	return reasons
}

func hasAny(set map[string]struct{}, reasons ...string) bool {
	for _, r := range reasons {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func addReason(reasonSet map[string]struct{}, reasons ...string) {
	for _, reason := range reasons {
		if reason == "" {
			continue
		}
		reasonSet[reason] = struct{}{}
	}
}

func sortedReasons(reasons map[string]struct{}) []string {
	if len(reasons) == 0 {
		return nil
	}
	ordered := make([]string, 0, len(reasons))
	for reason := range reasons {
		ordered = append(ordered, reason)
	}
	sort.Strings(ordered)
	return ordered
}
