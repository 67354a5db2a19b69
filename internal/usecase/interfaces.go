package usecase

import (
	"context"

	"zkrent/internal/domain"
)

// SubjectDirectory is the issuer's source of ground truth about subjects.
type SubjectDirectory interface {
	Lookup(ctx context.Context, subjectID string) (domain.SubjectFacts, error)
}

type AttestationHistoryRepository interface {
	Append(ctx context.Context, issuer, subjectID string, record domain.AttestationRecord) error
	Get(ctx context.Context, issuer, subjectID string) (*domain.SubjectRecord, error)
}

type ApplicationRepository interface {
	Upsert(ctx context.Context, app domain.RentalApplication) (domain.RentalApplication, error)
	Get(ctx context.Context, renterID string) (*domain.RentalApplication, error)
	List(ctx context.Context, filter domain.ApplicationFilter) ([]domain.RentalApplication, error)
}

// PropertyRepository stores rental listings. Get returns nil for an unknown
// id; Update and Delete return domain.ErrNotFound.
type PropertyRepository interface {
	Create(ctx context.Context, p domain.Property) (domain.Property, error)
	Get(ctx context.Context, id string) (*domain.Property, error)
	List(ctx context.Context, filter domain.PropertyFilter) ([]domain.Property, error)
	Update(ctx context.Context, p domain.Property) (domain.Property, error)
	Delete(ctx context.Context, id string) error
}

type RevocationRepository interface {
	// Revoke stores rev unless the attestation is already revoked and
	// returns the stored revocation; created is false for a repeat.
	Revoke(ctx context.Context, rev domain.Revocation) (stored domain.Revocation, created bool, err error)
	IsRevoked(ctx context.Context, attestationID, issuer string) (bool, error)
}

type RevocationEpochRepository interface {
	GetEpoch(ctx context.Context, issuer string) (int64, error)
	BumpEpoch(ctx context.Context, issuer string) (int64, error)
}

// RevocationChecker answers whether an attestation is revoked. Errors are
// distinct from "not revoked" and must never be read as such.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, attestationID, issuer string) (bool, error)
}

// KeySource resolves the verification material for an issuer circuit.
type KeySource interface {
	Get(ctx context.Context, ref domain.CircuitRef) (domain.IssuerKeys, error)
}

type ProofEngine interface {
	Verify(vk []byte, proof domain.Proof, signals domain.PublicSignals) (bool, error)
}

type AttestationSigner interface {
	Algorithm() string
	PublicKeyPEM() string
	Sign(payload any) (string, error)
}

type SignatureVerifier interface {
	Verify(publicKeyPEM string, payload any, signature string) error
}

type PolicyEngine interface {
	Evaluate(ctx context.Context, input domain.PolicyInput) (domain.PolicyEvaluation, error)
}

type DecisionEngine interface {
	Evaluate(input DecisionInput) (DecisionResult, error)
}

type EventPublisher interface {
	PublishDecision(ctx context.Context, event domain.DecisionEvent) error
}

// Metrics receives verification outcomes. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ObserveProof(circuit, outcome string)
	ObserveDecision(status domain.ApplicationStatus)
	ObserveRevocationLookup(outcome string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveProof(string, string)              {}
func (nopMetrics) ObserveDecision(domain.ApplicationStatus) {}
func (nopMetrics) ObserveRevocationLookup(string)           {}

func metricsOrNop(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}

// AuditLog is an append-only, hash-chained event store.
type AuditLog interface {
	Append(ctx context.Context, stream string, eventType domain.AuditEventType, subject string, payload any) (domain.AuditEvent, error)
	List(ctx context.Context, stream string) ([]domain.AuditEvent, error)
}
