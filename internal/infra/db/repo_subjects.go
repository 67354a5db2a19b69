package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"zkrent/internal/domain"
)

// SubjectRepository stores the issuer-side attestation history, scoped by
// issuer. Records are only ever appended.
type SubjectRepository struct {
	db *gorm.DB
}

func NewSubjectRepository(db *gorm.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

func (r *SubjectRepository) Append(ctx context.Context, issuer, subjectID string, record domain.AttestationRecord) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subject := SubjectModel{
			Issuer:    issuer,
			SubjectID: subjectID,
			CreatedAt: record.Timestamp,
			UpdatedAt: record.Timestamp,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "issuer"}, {Name: "subject_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
		}).Create(&subject).Error; err != nil {
			return err
		}
		model := AttestationRecordModel{
			ID:         record.ID,
			SubjectID:  subjectID,
			Issuer:     issuer,
			ClaimType:  string(record.Type),
			Value:      record.Value,
			Currency:   record.Currency,
			Commitment: record.Commitment,
			Signature:  record.Signature,
			IssuedAt:   record.Timestamp,
			ExpiresAt:  record.ExpiresAt,
			RecordedAt: time.Now().UTC(),
		}
		if model.ID == "" {
			model.ID = newUUID()
		}
		return tx.Create(&model).Error
	})
}

// Get returns issuer's history for subjectID, or nil when issuer never
// attested the subject.
func (r *SubjectRepository) Get(ctx context.Context, issuer, subjectID string) (*domain.SubjectRecord, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var subject SubjectModel
	err := r.db.WithContext(ctx).Where("issuer = ? AND subject_id = ?", issuer, subjectID).Take(&subject).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var models []AttestationRecordModel
	if err := r.db.WithContext(ctx).
		Where("issuer = ? AND subject_id = ?", issuer, subjectID).
		Order("recorded_at ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := &domain.SubjectRecord{
		SubjectID:    subject.SubjectID,
		Issuer:       subject.Issuer,
		Attestations: make([]domain.AttestationRecord, 0, len(models)),
		CreatedAt:    subject.CreatedAt.UTC(),
		UpdatedAt:    subject.UpdatedAt.UTC(),
	}
	for _, m := range models {
		out.Attestations = append(out.Attestations, domain.AttestationRecord{
			ID:         m.ID,
			Type:       domain.ClaimType(m.ClaimType),
			Value:      m.Value,
			Currency:   m.Currency,
			Commitment: m.Commitment,
			Signature:  m.Signature,
			Timestamp:  m.IssuedAt.UTC(),
			ExpiresAt:  m.ExpiresAt.UTC(),
		})
	}
	return out, nil
}
