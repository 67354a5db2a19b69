package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"zkrent/internal/domain"
)

// CommitFunc computes the binding commitment for value under salt and
// returns both as decimal strings.
type CommitFunc func(value int64) (commitment string, salt string, err error)

// AttestationIssuer signs claims about subjects for one issuer and claim
// type.
type AttestationIssuer struct {
	IssuerID  string
	ClaimType domain.ClaimType
	Currency  string
	Directory SubjectDirectory
	Records   AttestationHistoryRepository
	Signer    AttestationSigner
	Verifier  SignatureVerifier
	Commit    CommitFunc
	Logger    zerolog.Logger
	Now       func() time.Time
}

type IssueResult struct {
	SignedAttestation domain.SignedAttestation `json:"signedAttestation"`
	// Salt opens the commitment; only the subject receives it.
	Salt string `json:"salt"`
}

func (s *AttestationIssuer) Issue(ctx context.Context, subjectID string) (IssueResult, error) {
	if err := s.ready(); err != nil {
		return IssueResult{}, err
	}
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return IssueResult{}, domain.NewValidationError(domain.Violation{Field: "subjectId", Message: "is required"})
	}

	facts, err := s.Directory.Lookup(ctx, subjectID)
	if err != nil {
		return IssueResult{}, err
	}
	value, ok := facts.Value(s.ClaimType)
	if !ok {
		return IssueResult{}, fmt.Errorf("no %s on record for subject %s: %w", s.ClaimType, subjectID, domain.ErrNotFound)
	}

	commitment, salt, err := s.Commit(value)
	if err != nil {
		return IssueResult{}, fmt.Errorf("commit value: %w", err)
	}

	issuedAt := s.now()
	att := domain.Attestation{
		ID:         uuid.NewString(),
		Issuer:     s.IssuerID,
		SubjectID:  subjectID,
		ClaimType:  s.ClaimType,
		Value:      value,
		Commitment: commitment,
		IssuedAt:   issuedAt,
		ExpiresAt:  issuedAt.Add(domain.AttestationValidity),
	}
	if s.ClaimType == domain.ClaimIncome {
		att.Currency = facts.Currency
		if att.Currency == "" {
			att.Currency = s.Currency
		}
	}

	signature, err := s.Signer.Sign(att)
	if err != nil {
		return IssueResult{}, fmt.Errorf("sign attestation: %w", err)
	}
	presentationSig, err := s.Signer.Sign(att.Presentation())
	if err != nil {
		return IssueResult{}, fmt.Errorf("sign presentation: %w", err)
	}

	if s.Records != nil {
		record := domain.AttestationRecord{
			ID:         att.ID,
			Type:       att.ClaimType,
			Value:      att.Value,
			Currency:   att.Currency,
			Commitment: att.Commitment,
			Signature:  signature,
			Timestamp:  att.IssuedAt,
			ExpiresAt:  att.ExpiresAt,
		}
		if err := s.Records.Append(ctx, s.IssuerID, subjectID, record); err != nil {
			return IssueResult{}, fmt.Errorf("record attestation: %w", err)
		}
	}

	s.Logger.Info().
		Str("attestation_id", att.ID).
		Str("subject_id", subjectID).
		Str("claim_type", string(att.ClaimType)).
		Msg("attestation issued")

	return IssueResult{
		SignedAttestation: domain.SignedAttestation{
			Attestation:           att,
			Signature:             signature,
			PresentationSignature: presentationSig,
			Algorithm:             s.Signer.Algorithm(),
		},
		Salt: salt,
	}, nil
}

func (s *AttestationIssuer) History(ctx context.Context, subjectID string) (*domain.SubjectRecord, error) {
	if s.Records == nil {
		return nil, domain.ErrNotFound
	}
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, domain.NewValidationError(domain.Violation{Field: "subjectId", Message: "is required"})
	}
	record, err := s.Records.Get(ctx, s.IssuerID, subjectID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrNotFound
	}
	return record, nil
}

// VerifySigned checks a signed attestation against this issuer's own key.
func (s *AttestationIssuer) VerifySigned(signed domain.SignedAttestation) (bool, error) {
	if s.Signer == nil || s.Verifier == nil {
		return false, errors.New("attestation issuer is not configured for verification")
	}
	verr := &domain.ValidationError{}
	if signed.Attestation.ID == "" {
		verr.Add("attestation.id", "is required")
	}
	if signed.Signature == "" {
		verr.Add("signature", "is required")
	}
	if err := verr.OrNil(); err != nil {
		return false, err
	}
	if signed.Attestation.Issuer != s.IssuerID {
		return false, nil
	}
	if err := s.Verifier.Verify(s.Signer.PublicKeyPEM(), signed.Attestation, signed.Signature); err != nil {
		if errors.Is(err, domain.ErrSignatureInvalid) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *AttestationIssuer) ready() error {
	switch {
	case s == nil:
		return errors.New("attestation issuer is nil")
	case s.Directory == nil:
		return errors.New("subject directory is required")
	case s.Signer == nil:
		return errors.New("signer is required")
	case s.Commit == nil:
		return errors.New("commit function is required")
	case !s.ClaimType.Valid():
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedClaim, s.ClaimType)
	}
	return nil
}

func (s *AttestationIssuer) now() time.Time {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return now().UTC().Truncate(time.Second)
}
