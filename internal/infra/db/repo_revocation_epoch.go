package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RevocationEpochRepository keeps one counter per issuer. The epoch only
// grows; caches of revocation answers compare it to detect staleness.
type RevocationEpochRepository struct {
	db *gorm.DB
}

func NewRevocationEpochRepository(db *gorm.DB) *RevocationEpochRepository {
	return &RevocationEpochRepository{db: db}
}

// GetEpoch returns 0 for an issuer that never revoked anything.
func (r *RevocationEpochRepository) GetEpoch(ctx context.Context, issuer string) (int64, error) {
	if r.db == nil {
		return 0, errDBUnavailable
	}
	if issuer == "" {
		return 0, errors.New("issuer is required")
	}
	var model RevocationEpochModel
	err := r.db.WithContext(ctx).Take(&model, "issuer = ?", issuer).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return 0, nil
	case err != nil:
		return 0, err
	}
	return model.Epoch, nil
}

func (r *RevocationEpochRepository) BumpEpoch(ctx context.Context, issuer string) (int64, error) {
	if r.db == nil {
		return 0, errDBUnavailable
	}
	if issuer == "" {
		return 0, errors.New("issuer is required")
	}
	now := time.Now().UTC()
	var epoch int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "issuer"}},
			DoUpdates: clause.Set{
				{Column: clause.Column{Name: "epoch"}, Value: gorm.Expr("revocation_epochs.epoch + 1")},
				{Column: clause.Column{Name: "updated_at"}, Value: now},
			},
		}).Create(&RevocationEpochModel{Issuer: issuer, Epoch: 1, UpdatedAt: now}).Error; err != nil {
			return err
		}
		var model RevocationEpochModel
		if err := tx.Take(&model, "issuer = ?", issuer).Error; err != nil {
			return err
		}
		epoch = model.Epoch
		return nil
	})
	if err != nil {
		return 0, err
	}
	return epoch, nil
}
