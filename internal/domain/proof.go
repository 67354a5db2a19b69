package domain

const (
	ProtocolGroth16 = "groth16"
	CurveBN128      = "bn128"
	CurveBN254      = "bn254"
)

// Proof is the JSON shape of a Groth16 proof over BN254. Coordinates are
// decimal strings; pi_b holds the two Fp2 coordinates as [A0, A1] pairs.
type Proof struct {
	PiA      []string   `json:"pi_a"`
	PiB      [][]string `json:"pi_b"`
	PiC      []string   `json:"pi_c"`
	Protocol string     `json:"protocol"`
	Curve    string     `json:"curve,omitempty"`
}

// PublicSignals are decimal scalar field elements; the first is the claim
// result ("1" or "0").
type PublicSignals []string

func (s PublicSignals) Result() string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

type CircuitRef struct {
	Issuer  string `json:"issuer"`
	Circuit string `json:"circuit"`
}

func (r CircuitRef) Key() string {
	return r.Issuer + "/" + r.Circuit
}

const (
	CircuitIncome        = "income_verification"
	CircuitCreditScore   = "credit_score_verification"
	CircuitRentalHistory = "rental_history"

	ComparisonGTE = "gte"
)

type CircuitDescriptor struct {
	Name          string   `json:"name"`
	Protocol      string   `json:"protocol"`
	Curve         string   `json:"curve"`
	NPublic       int      `json:"nPublic"`
	PublicSignals []string `json:"publicSignals"`
	Threshold     int64    `json:"threshold"`
	Comparison    string   `json:"comparison"`
}

type IssuerMetadata struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Circuit     string    `json:"circuit"`
	ClaimType   ClaimType `json:"claimType"`
	Threshold   int64     `json:"threshold"`
	Currency    string    `json:"currency,omitempty"`
	Description string    `json:"description,omitempty"`
}

// IssuerKeys is what a verifier needs to check proofs and attestations from
// one issuer circuit. It is immutable once fetched.
type IssuerKeys struct {
	Metadata         IssuerMetadata    `json:"issuerMetadata"`
	Circuit          CircuitDescriptor `json:"circuit"`
	VerificationKey  []byte            `json:"verificationKey"`
	SigningPublicKey string            `json:"signingPublicKey,omitempty"`
}

func (k IssuerKeys) Ref() CircuitRef {
	return CircuitRef{Issuer: k.Metadata.ID, Circuit: k.Circuit.Name}
}
