package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"zkrent/internal/domain"
)

// ErrAuditChainBroken is wrapped by every VerifyAuditChain failure.
var ErrAuditChainBroken = errors.New("audit chain broken")

type revocationAuditPayload struct {
	AttestationID string `json:"attestationId"`
	Issuer        string `json:"issuer"`
	Reason        string `json:"reason,omitempty"`
	RevokedAt     string `json:"revokedAt"`
	Epoch         int64  `json:"epoch"`
}

type decisionAuditPayload struct {
	RenterID   string                   `json:"renterId"`
	PropertyID string                   `json:"propertyId,omitempty"`
	Status     domain.ApplicationStatus `json:"status"`
	Reasons    []string                 `json:"reasons"`
	DecidedAt  string                   `json:"decidedAt"`
}

// VerifyAuditChain recomputes every link of a stream and returns its head.
// An empty stream verifies with the zero hash as head.
func VerifyAuditChain(ctx context.Context, log AuditLog, stream string) (domain.AuditChainStatus, error) {
	status := domain.AuditChainStatus{Stream: stream, Head: domain.ZeroAuditHash}
	if log == nil {
		return status, errors.New("audit log is required")
	}
	events, err := log.List(ctx, stream)
	if err != nil {
		return status, err
	}
	expectedSeq := int64(1)
	prev := domain.ZeroAuditHash
	for _, event := range events {
		switch {
		case event.Stream != stream:
			return status, fmt.Errorf("%w: stream mismatch at seq %d", ErrAuditChainBroken, event.Seq)
		case event.Seq != expectedSeq:
			return status, fmt.Errorf("%w: expected seq %d got %d", ErrAuditChainBroken, expectedSeq, event.Seq)
		case event.PrevHash != prev:
			return status, fmt.Errorf("%w: prev hash mismatch at seq %d", ErrAuditChainBroken, event.Seq)
		case domain.SHA256Hex(event.Payload) != event.PayloadHash:
			return status, fmt.Errorf("%w: payload hash mismatch at seq %d", ErrAuditChainBroken, event.Seq)
		case event.CreatedAt.IsZero():
			return status, fmt.Errorf("%w: missing created_at at seq %d", ErrAuditChainBroken, event.Seq)
		case event.ChainHash() != event.Hash:
			return status, fmt.Errorf("%w: hash mismatch at seq %d", ErrAuditChainBroken, event.Seq)
		}
		prev = event.Hash
		expectedSeq++
	}
	status.Length = int64(len(events))
	status.Head = prev
	return status, nil
}

// recordAudit appends an event when a log is configured. The audited action
// has already happened, so a failure is logged and not returned.
func recordAudit(ctx context.Context, log AuditLog, logger zerolog.Logger, stream string, eventType domain.AuditEventType, subject string, payload any) {
	if log == nil {
		return
	}
	event, err := log.Append(ctx, stream, eventType, subject, payload)
	if err != nil {
		logger.Error().Err(err).Str("stream", stream).Str("event_type", string(eventType)).Msg("append audit event")
		return
	}
	logger.Debug().Str("stream", stream).Int64("seq", event.Seq).Msg("audit event appended")
}
