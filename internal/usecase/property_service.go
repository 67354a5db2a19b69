package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"zkrent/internal/domain"
)

// PropertyActor is the caller of a property write. Admin bypasses the
// ownership check.
type PropertyActor struct {
	ID    string
	Admin bool
}

// PropertyService manages listings. Only the landlord who created a property
// may change or remove it.
type PropertyService struct {
	Properties PropertyRepository
	Logger     zerolog.Logger
	Now        func() time.Time
}

// List returns available properties, or every property of landlordID when it
// is set.
func (s *PropertyService) List(ctx context.Context, landlordID string) ([]domain.Property, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	filter := domain.PropertyFilter{LandlordID: strings.TrimSpace(landlordID)}
	filter.AvailableOnly = filter.LandlordID == ""
	return s.Properties.List(ctx, filter)
}

func (s *PropertyService) Get(ctx context.Context, id string) (domain.Property, error) {
	if err := s.ready(); err != nil {
		return domain.Property{}, err
	}
	p, err := s.Properties.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Property{}, err
	}
	if p == nil {
		return domain.Property{}, domain.ErrNotFound
	}
	return *p, nil
}

func (s *PropertyService) Create(ctx context.Context, actor PropertyActor, p domain.Property) (domain.Property, error) {
	if err := s.ready(); err != nil {
		return domain.Property{}, err
	}
	actor.ID = strings.TrimSpace(actor.ID)
	if actor.ID == "" {
		return domain.Property{}, domain.ErrUnauthorized
	}
	if err := validateProperty(p); err != nil {
		return domain.Property{}, err
	}
	now := s.now()
	p.ID = ""
	p.LandlordID = actor.ID
	p.CreatedAt = now
	p.UpdatedAt = now
	created, err := s.Properties.Create(ctx, p)
	if err != nil {
		return domain.Property{}, fmt.Errorf("store property: %w", err)
	}
	s.Logger.Info().
		Str("property_id", created.ID).
		Str("landlord_id", created.LandlordID).
		Int64("minimum_income", created.MinimumIncome).
		Msg("property created")
	return created, nil
}

func (s *PropertyService) Update(ctx context.Context, actor PropertyActor, id string, p domain.Property) (domain.Property, error) {
	existing, err := s.owned(ctx, actor, id)
	if err != nil {
		return domain.Property{}, err
	}
	if err := validateProperty(p); err != nil {
		return domain.Property{}, err
	}
	p.ID = existing.ID
	p.LandlordID = existing.LandlordID
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = s.now()
	updated, err := s.Properties.Update(ctx, p)
	if err != nil {
		return domain.Property{}, err
	}
	s.Logger.Info().Str("property_id", updated.ID).Msg("property updated")
	return updated, nil
}

func (s *PropertyService) Delete(ctx context.Context, actor PropertyActor, id string) error {
	existing, err := s.owned(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.Properties.Delete(ctx, existing.ID); err != nil {
		return err
	}
	s.Logger.Info().Str("property_id", existing.ID).Str("actor", actor.ID).Msg("property deleted")
	return nil
}

// owned loads id and checks that actor may write it. A missing property is
// reported before an ownership mismatch.
func (s *PropertyService) owned(ctx context.Context, actor PropertyActor, id string) (domain.Property, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return domain.Property{}, err
	}
	if !actor.Admin && existing.LandlordID != strings.TrimSpace(actor.ID) {
		return domain.Property{}, fmt.Errorf("%w: property %s belongs to another landlord", domain.ErrForbidden, existing.ID)
	}
	return existing, nil
}

func validateProperty(p domain.Property) error {
	verr := &domain.ValidationError{}
	required := []struct{ field, value string }{
		{"title", p.Title},
		{"description", p.Description},
		{"address.street", p.Address.Street},
		{"address.city", p.Address.City},
		{"address.state", p.Address.State},
		{"address.zipCode", p.Address.ZipCode},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			verr.Add(r.field, "is required")
		}
	}
	if p.Price < 0 {
		verr.Add("price", "must not be negative")
	}
	if p.Bedrooms < 0 {
		verr.Add("bedrooms", "must not be negative")
	}
	if p.Bathrooms < 0 {
		verr.Add("bathrooms", "must not be negative")
	}
	if p.SquareFeet < 0 {
		verr.Add("squareFeet", "must not be negative")
	}
	if p.MinimumIncome < 0 {
		verr.Add("minimumIncome", "must not be negative")
	}
	return verr.OrNil()
}

func (s *PropertyService) ready() error {
	if s == nil || s.Properties == nil {
		return errors.New("property repository is required")
	}
	return nil
}

func (s *PropertyService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
