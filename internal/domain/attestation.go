package domain

import "time"

type ClaimType string

const (
	ClaimIncome        ClaimType = "income"
	ClaimCreditScore   ClaimType = "credit_score"
	ClaimRentalHistory ClaimType = "rental_history"
)

func (c ClaimType) Valid() bool {
	switch c {
	case ClaimIncome, ClaimCreditScore, ClaimRentalHistory:
		return true
	}
	return false
}

// AttestPath is the issuer route that attests claim.
func (c ClaimType) AttestPath() string {
	if c == ClaimCreditScore {
		return "/attest-credit-score"
	}
	return "/attest-income"
}

// AttestationValidity is fixed for every issued attestation.
const AttestationValidity = 365 * 24 * time.Hour

type Attestation struct {
	ID         string    `json:"id"`
	Issuer     string    `json:"issuer"`
	SubjectID  string    `json:"subjectId"`
	ClaimType  ClaimType `json:"claimType"`
	Value      int64     `json:"value"`
	Currency   string    `json:"currency,omitempty"`
	Commitment string    `json:"commitment"`
	IssuedAt   time.Time `json:"issuedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Presentation is the attestation as shown to a verifier: everything but the
// attested value, which stays with the subject as a private witness.
type Presentation struct {
	ID         string    `json:"id"`
	Issuer     string    `json:"issuer"`
	SubjectID  string    `json:"subjectId"`
	ClaimType  ClaimType `json:"claimType"`
	Currency   string    `json:"currency,omitempty"`
	Commitment string    `json:"commitment"`
	IssuedAt   time.Time `json:"issuedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

func (a Attestation) Presentation() Presentation {
	return Presentation{
		ID:         a.ID,
		Issuer:     a.Issuer,
		SubjectID:  a.SubjectID,
		ClaimType:  a.ClaimType,
		Currency:   a.Currency,
		Commitment: a.Commitment,
		IssuedAt:   a.IssuedAt,
		ExpiresAt:  a.ExpiresAt,
	}
}

func (a Attestation) ExpiredAt(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

func (p Presentation) ExpiredAt(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

type SignedAttestation struct {
	Attestation           Attestation `json:"attestation"`
	Signature             string      `json:"signature"`
	PresentationSignature string      `json:"presentationSignature"`
	Algorithm             string      `json:"algorithm"`
}

// AttestationRecord is one entry of a subject's append-only history.
type AttestationRecord struct {
	ID         string    `json:"id"`
	Type       ClaimType `json:"type"`
	Value      int64     `json:"value"`
	Currency   string    `json:"currency,omitempty"`
	Commitment string    `json:"commitment"`
	Signature  string    `json:"signature"`
	Timestamp  time.Time `json:"timestamp"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type SubjectRecord struct {
	SubjectID    string              `json:"subjectId"`
	Issuer       string              `json:"issuer"`
	Attestations []AttestationRecord `json:"attestations"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

// SubjectFacts is the ground truth an issuer holds about a subject.
type SubjectFacts struct {
	SubjectID   string `json:"subjectId"`
	Income      *int64 `json:"income,omitempty"`
	Currency    string `json:"currency,omitempty"`
	CreditScore *int64 `json:"creditScore,omitempty"`
}

func (f SubjectFacts) Value(claim ClaimType) (int64, bool) {
	switch claim {
	case ClaimIncome:
		if f.Income != nil {
			return *f.Income, true
		}
	case ClaimCreditScore:
		if f.CreditScore != nil {
			return *f.CreditScore, true
		}
	}
	return 0, false
}
