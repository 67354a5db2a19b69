package db

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"zkrent/internal/domain"
)

type RevocationRepository struct {
	db *gorm.DB
}

func NewRevocationRepository(db *gorm.DB) *RevocationRepository {
	return &RevocationRepository{db: db}
}

func (r *RevocationRepository) IsRevoked(ctx context.Context, attestationID, issuer string) (bool, error) {
	if r.db == nil {
		return false, errDBUnavailable
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&RevocationModel{}).
		Where("attestation_id = ? AND issuer = ?", attestationID, issuer).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Revoke inserts the revocation and returns the stored row. A second
// revocation of the same attestation keeps the first record and reports
// created=false.
func (r *RevocationRepository) Revoke(ctx context.Context, rev domain.Revocation) (domain.Revocation, bool, error) {
	if r.db == nil {
		return domain.Revocation{}, false, errDBUnavailable
	}
	revID := rev.ID
	if revID == "" {
		revID = newUUID()
	}
	createdAt := rev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	model := RevocationModel{
		ID:            revID,
		AttestationID: rev.AttestationID,
		Issuer:        rev.Issuer,
		Reason:        rev.Reason,
		RevokedAt:     rev.RevokedAt,
		CreatedAt:     createdAt,
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model)
	if res.Error != nil {
		return domain.Revocation{}, false, res.Error
	}
	if res.RowsAffected > 0 {
		return toRevocation(model), true, nil
	}
	var existing RevocationModel
	if err := r.db.WithContext(ctx).
		Where("attestation_id = ? AND issuer = ?", rev.AttestationID, rev.Issuer).
		Take(&existing).Error; err != nil {
		return domain.Revocation{}, false, err
	}
	return toRevocation(existing), false, nil
}

func (r *RevocationRepository) ListByIssuer(ctx context.Context, issuer string) ([]domain.Revocation, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []RevocationModel
	if err := r.db.WithContext(ctx).
		Where("issuer = ?", issuer).
		Order("revoked_at ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Revocation, 0, len(models))
	for _, m := range models {
		out = append(out, toRevocation(m))
	}
	return out, nil
}

func toRevocation(m RevocationModel) domain.Revocation {
	return domain.Revocation{
		ID:            m.ID,
		AttestationID: m.AttestationID,
		Issuer:        m.Issuer,
		Reason:        m.Reason,
		RevokedAt:     m.RevokedAt.UTC(),
		CreatedAt:     m.CreatedAt.UTC(),
	}
}
