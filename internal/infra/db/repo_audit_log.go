package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"zkrent/internal/domain"
	cryptoinfra "zkrent/internal/infra/crypto"
)

type AuditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Append assigns the next sequence number of the event's stream, links it to
// the current head and stores it. Payload may be any JSON-encodable value.
func (r *AuditLogRepository) Append(ctx context.Context, stream string, eventType domain.AuditEventType, subject string, payload any) (domain.AuditEvent, error) {
	if r.db == nil {
		return domain.AuditEvent{}, errDBUnavailable
	}
	if stream == "" {
		return domain.AuditEvent{}, errors.New("stream is required")
	}
	if eventType == "" {
		return domain.AuditEvent{}, errors.New("event type is required")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	canonical, err := cryptoinfra.Canonicalize(payload)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("canonicalize audit payload: %w", err)
	}

	event := domain.AuditEvent{
		ID:          newUUID(),
		Stream:      stream,
		Type:        eventType,
		Subject:     subject,
		Payload:     canonical,
		PayloadHash: domain.SHA256Hex(canonical),
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		head, err := lockStreamHead(tx, stream)
		if err != nil {
			return err
		}
		event.Seq = head.Seq + 1
		event.PrevHash = head.HeadHash
		event.Hash = event.ChainHash()

		model := AuditEventModel{
			ID:          event.ID,
			Stream:      event.Stream,
			Seq:         event.Seq,
			EventType:   string(event.Type),
			Subject:     event.Subject,
			PayloadJSON: string(canonical),
			PayloadHash: event.PayloadHash,
			PrevHash:    event.PrevHash,
			Hash:        event.Hash,
			CreatedAt:   event.CreatedAt,
		}
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		return tx.Model(&AuditStreamModel{}).
			Where("stream = ?", stream).
			Updates(map[string]any{"seq": event.Seq, "head_hash": event.Hash}).Error
	})
	if err != nil {
		return domain.AuditEvent{}, err
	}
	return event, nil
}

func lockStreamHead(tx *gorm.DB, stream string) (AuditStreamModel, error) {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&AuditStreamModel{Stream: stream, HeadHash: domain.ZeroAuditHash}).Error; err != nil {
		return AuditStreamModel{}, err
	}
	q := tx
	// SQLite runs single-connection and has no row locks.
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var head AuditStreamModel
	if err := q.First(&head, "stream = ?", stream).Error; err != nil {
		return AuditStreamModel{}, err
	}
	return head, nil
}

// List returns a stream in sequence order.
func (r *AuditLogRepository) List(ctx context.Context, stream string) ([]domain.AuditEvent, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []AuditEventModel
	if err := r.db.WithContext(ctx).
		Where("stream = ?", stream).
		Order("seq ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.AuditEvent, 0, len(models))
	for _, m := range models {
		out = append(out, domain.AuditEvent{
			ID:          m.ID,
			Stream:      m.Stream,
			Seq:         m.Seq,
			Type:        domain.AuditEventType(m.EventType),
			Subject:     m.Subject,
			Payload:     []byte(m.PayloadJSON),
			PayloadHash: m.PayloadHash,
			PrevHash:    m.PrevHash,
			Hash:        m.Hash,
			CreatedAt:   m.CreatedAt.UTC(),
		})
	}
	return out, nil
}
