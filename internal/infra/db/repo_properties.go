package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"zkrent/internal/domain"
)

type PropertyRepository struct {
	db *gorm.DB
}

func NewPropertyRepository(db *gorm.DB) *PropertyRepository {
	return &PropertyRepository{db: db}
}

func (r *PropertyRepository) Create(ctx context.Context, p domain.Property) (domain.Property, error) {
	if r.db == nil {
		return domain.Property{}, errDBUnavailable
	}
	if p.ID == "" {
		p.ID = newUUID()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	model, err := toPropertyModel(p)
	if err != nil {
		return domain.Property{}, err
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Property{}, err
	}
	return toProperty(model)
}

// Get returns nil when the property does not exist.
func (r *PropertyRepository) Get(ctx context.Context, id string) (*domain.Property, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model PropertyModel
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p, err := toProperty(model)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PropertyRepository) List(ctx context.Context, filter domain.PropertyFilter) ([]domain.Property, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	q := r.db.WithContext(ctx).Model(&PropertyModel{})
	if filter.LandlordID != "" {
		q = q.Where("landlord_id = ?", filter.LandlordID)
	}
	if filter.AvailableOnly {
		q = q.Where("is_available = ?", true)
	}
	var models []PropertyModel
	if err := q.Order("created_at DESC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Property, 0, len(models))
	for _, m := range models {
		p, err := toProperty(m)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Update replaces the listing fields of p.ID. Owner and creation time are
// kept.
func (r *PropertyRepository) Update(ctx context.Context, p domain.Property) (domain.Property, error) {
	if r.db == nil {
		return domain.Property{}, errDBUnavailable
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	model, err := toPropertyModel(p)
	if err != nil {
		return domain.Property{}, err
	}
	res := r.db.WithContext(ctx).
		Model(&PropertyModel{}).
		Where("id = ?", p.ID).
		Select("title", "description", "street", "city", "state", "zip_code", "price", "bedrooms",
			"bathrooms", "square_feet", "amenities_json", "images_json", "minimum_income", "is_available", "updated_at").
		Updates(&model)
	if res.Error != nil {
		return domain.Property{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Property{}, domain.ErrNotFound
	}
	stored, err := r.Get(ctx, p.ID)
	if err != nil {
		return domain.Property{}, err
	}
	if stored == nil {
		return domain.Property{}, domain.ErrNotFound
	}
	return *stored, nil
}

func (r *PropertyRepository) Delete(ctx context.Context, id string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&PropertyModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func toPropertyModel(p domain.Property) (PropertyModel, error) {
	amenities, err := json.Marshal(nonNil(p.Amenities))
	if err != nil {
		return PropertyModel{}, fmt.Errorf("encode amenities: %w", err)
	}
	images, err := json.Marshal(nonNil(p.Images))
	if err != nil {
		return PropertyModel{}, fmt.Errorf("encode images: %w", err)
	}
	return PropertyModel{
		ID:            p.ID,
		LandlordID:    p.LandlordID,
		Title:         p.Title,
		Description:   p.Description,
		Street:        p.Address.Street,
		City:          p.Address.City,
		State:         p.Address.State,
		ZipCode:       p.Address.ZipCode,
		Price:         p.Price,
		Bedrooms:      p.Bedrooms,
		Bathrooms:     p.Bathrooms,
		SquareFeet:    p.SquareFeet,
		AmenitiesJSON: string(amenities),
		ImagesJSON:    string(images),
		MinimumIncome: p.MinimumIncome,
		IsAvailable:   p.IsAvailable,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}, nil
}

func toProperty(m PropertyModel) (domain.Property, error) {
	p := domain.Property{
		ID:          m.ID,
		LandlordID:  m.LandlordID,
		Title:       m.Title,
		Description: m.Description,
		Address: domain.Address{
			Street:  m.Street,
			City:    m.City,
			State:   m.State,
			ZipCode: m.ZipCode,
		},
		Price:         m.Price,
		Bedrooms:      m.Bedrooms,
		Bathrooms:     m.Bathrooms,
		SquareFeet:    m.SquareFeet,
		MinimumIncome: m.MinimumIncome,
		IsAvailable:   m.IsAvailable,
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
	if err := decodeList(m.AmenitiesJSON, &p.Amenities); err != nil {
		return domain.Property{}, fmt.Errorf("decode amenities: %w", err)
	}
	if err := decodeList(m.ImagesJSON, &p.Images); err != nil {
		return domain.Property{}, fmt.Errorf("decode images: %w", err)
	}
	return p, nil
}

func decodeList(raw string, out *[]string) error {
	*out = []string{}
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), out)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
