package domain

import "time"

type ApplicationStatus string

const (
	StatusPending  ApplicationStatus = "pending"
	StatusApproved ApplicationStatus = "approved"
	StatusRejected ApplicationStatus = "rejected"
)

const (
	ReasonProofInvalid           = "PROOF_INVALID"
	ReasonClaimNotMet            = "CLAIM_NOT_MET"
	ReasonThresholdMismatch      = "THRESHOLD_MISMATCH"
	ReasonCommitmentMismatch     = "COMMITMENT_MISMATCH"
	ReasonSignatureInvalid       = "SIGNATURE_INVALID"
	ReasonIssuerMismatch         = "ISSUER_MISMATCH"
	ReasonAttestationExpired     = "ATTESTATION_EXPIRED"
	ReasonAttestationRevoked     = "ATTESTATION_REVOKED"
	ReasonRevocationUnverifiable = "REVOCATION_UNVERIFIABLE"
	ReasonPolicyDeny             = "POLICY_DENY"
)

// ClaimChecks is the per-check outcome for one claim of an application.
type ClaimChecks struct {
	ProofValid     bool     `json:"proofValid"`
	SignatureValid bool     `json:"signatureValid"`
	NotExpired     bool     `json:"notExpired"`
	NotRevoked     bool     `json:"notRevoked"`
	PolicyAllowed  bool     `json:"policyAllowed"`
	Reasons        []string `json:"reasons,omitempty"`
	Retryable      bool     `json:"retryable,omitempty"`
}

func (c ClaimChecks) Valid() bool {
	return c.ProofValid && c.SignatureValid && c.NotExpired && c.NotRevoked && c.PolicyAllowed
}

type DecisionDetails struct {
	Income      ClaimChecks `json:"income"`
	CreditScore ClaimChecks `json:"creditScore"`
}

type Decision struct {
	RenterID   string            `json:"renterId"`
	PropertyID string            `json:"propertyId,omitempty"`
	IsValid    bool              `json:"isValid"`
	Status     ApplicationStatus `json:"status"`
	Details    DecisionDetails   `json:"details"`
	Reasons    []string          `json:"reasons,omitempty"`
	Retryable  bool              `json:"retryable,omitempty"`
	DecidedAt  time.Time         `json:"decidedAt"`
}

type RentalApplication struct {
	RenterID              string            `json:"renterId"`
	PropertyID            string            `json:"propertyId,omitempty"`
	Status                ApplicationStatus `json:"status"`
	IncomeProofValid      bool              `json:"incomeProofValid"`
	CreditScoreProofValid bool              `json:"creditScoreProofValid"`
	Details               *DecisionDetails  `json:"details,omitempty"`
	CreatedAt             time.Time         `json:"createdAt"`
	UpdatedAt             time.Time         `json:"updatedAt"`
}

// StatusFor keeps status and proof flags consistent: approved only when both
// claims hold.
func StatusFor(incomeValid, creditValid bool) ApplicationStatus {
	if incomeValid && creditValid {
		return StatusApproved
	}
	return StatusRejected
}

type DecisionEvent struct {
	Type       string            `json:"type"`
	RenterID   string            `json:"renterId"`
	PropertyID string            `json:"propertyId,omitempty"`
	Status     ApplicationStatus `json:"status"`
	Reasons    []string          `json:"reasons,omitempty"`
	DecidedAt  time.Time         `json:"decidedAt"`
}

const EventApplicationDecided = "application.decided"
