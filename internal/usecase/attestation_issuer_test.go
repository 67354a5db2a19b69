package usecase

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"zkrent/internal/domain"
	"zkrent/internal/infra/crypto"
)

type stubDirectory struct {
	facts map[string]domain.SubjectFacts
}

func (d *stubDirectory) Lookup(ctx context.Context, subjectID string) (domain.SubjectFacts, error) {
	f, ok := d.facts[subjectID]
	if !ok {
		return domain.SubjectFacts{}, domain.ErrNotFound
	}
	return f, nil
}

type stubHistoryRepo struct {
	mu      sync.Mutex
	records map[string]*domain.SubjectRecord
}

func (r *stubHistoryRepo) Append(ctx context.Context, issuer, subjectID string, record domain.AttestationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.records == nil {
		r.records = make(map[string]*domain.SubjectRecord)
	}
	rec, ok := r.records[issuer+"/"+subjectID]
	if !ok {
		rec = &domain.SubjectRecord{SubjectID: subjectID, Issuer: issuer, CreatedAt: record.Timestamp}
		r.records[issuer+"/"+subjectID] = rec
	}
	rec.Attestations = append(rec.Attestations, record)
	rec.UpdatedAt = record.Timestamp
	return nil
}

func (r *stubHistoryRepo) Get(ctx context.Context, issuer, subjectID string) (*domain.SubjectRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[issuer+"/"+subjectID]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func int64Ptr(v int64) *int64 { return &v }

func newTestIssuer(t *testing.T) (*AttestationIssuer, *stubHistoryRepo) {
	t.Helper()
	key, err := crypto.GenerateRSAKey(2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := crypto.NewSigner(key)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	history := &stubHistoryRepo{}
	issuer := &AttestationIssuer{
		IssuerID:  "employer",
		ClaimType: domain.ClaimIncome,
		Currency:  "EUR",
		Directory: &stubDirectory{facts: map[string]domain.SubjectFacts{
			"renter-1": {SubjectID: "renter-1", Income: int64Ptr(3500)},
			"renter-2": {SubjectID: "renter-2", CreditScore: int64Ptr(720)},
		}},
		Records:  history,
		Signer:   signer,
		Verifier: crypto.NewVerifier(),
		Commit: func(value int64) (string, string, error) {
			return "commit-" + strconv.FormatInt(value, 10), "salt", nil
		},
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return fixedNow },
	}
	return issuer, history
}

func TestAttestationIssuer_IssueSignsBothForms(t *testing.T) {
	issuer, history := newTestIssuer(t)

	res, err := issuer.Issue(context.Background(), "renter-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	att := res.SignedAttestation.Attestation
	if att.Value != 3500 || att.Currency != "EUR" || att.Issuer != "employer" {
		t.Fatalf("unexpected attestation: %+v", att)
	}
	if !att.ExpiresAt.Equal(att.IssuedAt.Add(domain.AttestationValidity)) {
		t.Fatalf("expected one year validity")
	}
	if res.Salt != "salt" {
		t.Fatalf("expected salt to be returned")
	}

	verifier := crypto.NewVerifier()
	pub := issuer.Signer.PublicKeyPEM()
	if err := verifier.Verify(pub, att, res.SignedAttestation.Signature); err != nil {
		t.Fatalf("verify full signature: %v", err)
	}
	if err := verifier.Verify(pub, att.Presentation(), res.SignedAttestation.PresentationSignature); err != nil {
		t.Fatalf("verify presentation signature: %v", err)
	}

	ok, err := issuer.VerifySigned(res.SignedAttestation)
	if err != nil || !ok {
		t.Fatalf("expected own attestation to verify: ok=%v err=%v", ok, err)
	}
	tampered := res.SignedAttestation
	tampered.Attestation.Value = 9999
	ok, err = issuer.VerifySigned(tampered)
	if err != nil || ok {
		t.Fatalf("expected tampered attestation to fail: ok=%v err=%v", ok, err)
	}

	if _, err := issuer.Issue(context.Background(), "renter-1"); err != nil {
		t.Fatalf("reissue: %v", err)
	}
	record, err := issuer.History(context.Background(), "renter-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(record.Attestations) != 2 || record.Attestations[0].ID == record.Attestations[1].ID {
		t.Fatalf("expected two distinct appended attestations, got %+v", record.Attestations)
	}
	if len(history.records) != 1 {
		t.Fatalf("expected a single subject record")
	}
}

func TestAttestationIssuer_UnknownSubject(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	_, err := issuer.Issue(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, err = issuer.Issue(context.Background(), "renter-2")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for missing claim value, got %v", err)
	}
	_, err = issuer.Issue(context.Background(), "")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
