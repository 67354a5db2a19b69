package domain

type PolicyInput struct {
	ClaimType      ClaimType         `json:"claim_type"`
	Issuer         string            `json:"issuer"`
	ExpectedIssuer string            `json:"expected_issuer"`
	Checks         PolicyChecks      `json:"checks"`
	Attestation    PolicyAttestation `json:"attestation"`
	NowUnix        int64             `json:"now_unix"`
}

type PolicyChecks struct {
	ProofValid     bool `json:"proof_valid"`
	SignatureValid bool `json:"signature_valid"`
	NotExpired     bool `json:"not_expired"`
	NotRevoked     bool `json:"not_revoked"`
}

type PolicyAttestation struct {
	ID           string `json:"id"`
	IssuedAtUnix int64  `json:"issued_at_unix"`
	ExpiresAt    int64  `json:"expires_at_unix"`
}

type PolicyDeny struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type PolicyResult struct {
	Allow bool         `json:"allow"`
	Deny  []PolicyDeny `json:"deny,omitempty"`
}

type PolicyEvaluation struct {
	PolicyHash string       `json:"policy_hash"`
	Result     PolicyResult `json:"result"`
}
