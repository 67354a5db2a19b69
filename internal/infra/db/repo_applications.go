package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"zkrent/internal/domain"
)

type ApplicationRepository struct {
	db *gorm.DB
}

func NewApplicationRepository(db *gorm.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Upsert creates the application on first verification and overwrites the
// outcome on later ones. created_at keeps its first value.
func (r *ApplicationRepository) Upsert(ctx context.Context, app domain.RentalApplication) (domain.RentalApplication, error) {
	if r.db == nil {
		return domain.RentalApplication{}, errDBUnavailable
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	if app.UpdatedAt.IsZero() {
		app.UpdatedAt = now
	}
	var details string
	if app.Details != nil {
		raw, err := json.Marshal(app.Details)
		if err != nil {
			return domain.RentalApplication{}, fmt.Errorf("encode details: %w", err)
		}
		details = string(raw)
	}
	model := ApplicationModel{
		RenterID:              app.RenterID,
		PropertyID:            app.PropertyID,
		Status:                string(app.Status),
		IncomeProofValid:      app.IncomeProofValid,
		CreditScoreProofValid: app.CreditScoreProofValid,
		Details:               details,
		CreatedAt:             app.CreatedAt,
		UpdatedAt:             app.UpdatedAt,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "renter_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"property_id", "status", "income_proof_valid", "credit_score_proof_valid", "details", "updated_at",
			}),
		}).
		Create(&model).Error
	if err != nil {
		return domain.RentalApplication{}, err
	}
	stored, err := r.Get(ctx, app.RenterID)
	if err != nil {
		return domain.RentalApplication{}, err
	}
	if stored == nil {
		return domain.RentalApplication{}, domain.ErrNotFound
	}
	return *stored, nil
}

func (r *ApplicationRepository) Get(ctx context.Context, renterID string) (*domain.RentalApplication, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model ApplicationModel
	err := r.db.WithContext(ctx).Where("renter_id = ?", renterID).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toApplication(model)
}

// List returns applications newest first.
func (r *ApplicationRepository) List(ctx context.Context, filter domain.ApplicationFilter) ([]domain.RentalApplication, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if filter.Scoped && len(filter.PropertyIDs) == 0 {
		return []domain.RentalApplication{}, nil
	}
	q := r.db.WithContext(ctx).Model(&ApplicationModel{})
	if filter.Scoped {
		q = q.Where("property_id IN ?", filter.PropertyIDs)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	var models []ApplicationModel
	if err := q.Order("updated_at DESC, renter_id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.RentalApplication, 0, len(models))
	for _, m := range models {
		app, err := toApplication(m)
		if err != nil {
			return nil, err
		}
		out = append(out, *app)
	}
	return out, nil
}

func toApplication(model ApplicationModel) (*domain.RentalApplication, error) {
	app := &domain.RentalApplication{
		RenterID:              model.RenterID,
		PropertyID:            model.PropertyID,
		Status:                domain.ApplicationStatus(model.Status),
		IncomeProofValid:      model.IncomeProofValid,
		CreditScoreProofValid: model.CreditScoreProofValid,
		CreatedAt:             model.CreatedAt.UTC(),
		UpdatedAt:             model.UpdatedAt.UTC(),
	}
	if model.Details != "" {
		var details domain.DecisionDetails
		if err := json.Unmarshal([]byte(model.Details), &details); err != nil {
			return nil, fmt.Errorf("decode details: %w", err)
		}
		app.Details = &details
	}
	return app, nil
}
