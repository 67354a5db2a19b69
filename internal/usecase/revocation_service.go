package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"zkrent/internal/domain"
)

type RevocationService struct {
	Revocations RevocationRepository
	Epochs      RevocationEpochRepository
	Audit       AuditLog
	Logger      zerolog.Logger
	Now         func() time.Time
}

func NewRevocationService(revocations RevocationRepository, epochs RevocationEpochRepository) *RevocationService {
	return &RevocationService{
		Revocations: revocations,
		Epochs:      epochs,
		Logger:      zerolog.Nop(),
	}
}

// RevokeResult is the stored revocation and the issuer's epoch after it.
// Created is false when the attestation was already revoked.
type RevokeResult struct {
	Revocation domain.Revocation
	Epoch      int64
	Created    bool
}

// Revoke records the revocation and bumps the issuer's epoch. Revoking the
// same attestation twice is not an error; the repeat returns the first
// record and the current epoch without bumping it or auditing again.
func (s *RevocationService) Revoke(ctx context.Context, rev domain.Revocation) (RevokeResult, error) {
	if s == nil {
		return RevokeResult{}, errors.New("revocation service is nil")
	}
	if s.Revocations == nil {
		return RevokeResult{}, errors.New("revocation repository is required")
	}
	rev.AttestationID = strings.TrimSpace(rev.AttestationID)
	rev.Issuer = strings.TrimSpace(rev.Issuer)
	verr := &domain.ValidationError{}
	if rev.AttestationID == "" {
		verr.Add("attestationId", "is required")
	}
	if rev.Issuer == "" {
		verr.Add("issuer", "is required")
	}
	if err := verr.OrNil(); err != nil {
		return RevokeResult{}, err
	}
	if rev.RevokedAt.IsZero() {
		rev.RevokedAt = s.now()
	}
	stored, created, err := s.Revocations.Revoke(ctx, rev)
	if err != nil {
		return RevokeResult{}, err
	}
	rev = stored
	if !created {
		var epoch int64
		if s.Epochs != nil {
			if epoch, err = s.Epochs.GetEpoch(ctx, rev.Issuer); err != nil {
				return RevokeResult{}, err
			}
		}
		s.Logger.Debug().
			Str("attestation_id", rev.AttestationID).
			Str("issuer", rev.Issuer).
			Msg("attestation already revoked")
		return RevokeResult{Revocation: rev, Epoch: epoch}, nil
	}
	var epoch int64
	if s.Epochs != nil {
		if epoch, err = s.Epochs.BumpEpoch(ctx, rev.Issuer); err != nil {
			return RevokeResult{}, err
		}
	}
	recordAudit(ctx, s.Audit, s.Logger, domain.AuditStreamRevocations(rev.Issuer), domain.AuditAttestationRevoked, rev.AttestationID, revocationAuditPayload{
		AttestationID: rev.AttestationID,
		Issuer:        rev.Issuer,
		Reason:        rev.Reason,
		RevokedAt:     rev.RevokedAt.UTC().Format(time.RFC3339Nano),
		Epoch:         epoch,
	})
	s.Logger.Info().
		Str("attestation_id", rev.AttestationID).
		Str("issuer", rev.Issuer).
		Int64("epoch", epoch).
		Msg("attestation revoked")
	return RevokeResult{Revocation: rev, Epoch: epoch, Created: true}, nil
}

func (s *RevocationService) IsRevoked(ctx context.Context, attestationID, issuer string) (bool, error) {
	if s == nil || s.Revocations == nil {
		return false, errors.New("revocation repository is required")
	}
	verr := &domain.ValidationError{}
	if strings.TrimSpace(attestationID) == "" {
		verr.Add("attestationId", "is required")
	}
	if strings.TrimSpace(issuer) == "" {
		verr.Add("issuer", "is required")
	}
	if err := verr.OrNil(); err != nil {
		return false, err
	}
	return s.Revocations.IsRevoked(ctx, attestationID, issuer)
}

func (s *RevocationService) Epoch(ctx context.Context, issuer string) (int64, error) {
	if s == nil || s.Epochs == nil {
		return 0, errors.New("revocation epoch repository is required")
	}
	return s.Epochs.GetEpoch(ctx, issuer)
}

// AuditTrail verifies and returns the revocation stream of an issuer.
func (s *RevocationService) AuditTrail(ctx context.Context, issuer string) (domain.AuditChainStatus, []domain.AuditEvent, error) {
	if s == nil || s.Audit == nil {
		return domain.AuditChainStatus{}, nil, domain.ErrNotFound
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return domain.AuditChainStatus{}, nil, domain.NewValidationError(domain.Violation{Field: "issuer", Message: "is required"})
	}
	return auditTrail(ctx, s.Audit, domain.AuditStreamRevocations(issuer))
}

func auditTrail(ctx context.Context, log AuditLog, stream string) (domain.AuditChainStatus, []domain.AuditEvent, error) {
	status, err := VerifyAuditChain(ctx, log, stream)
	if err != nil {
		return status, nil, err
	}
	events, err := log.List(ctx, stream)
	if err != nil {
		return status, nil, err
	}
	return status, events, nil
}

func (s *RevocationService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
