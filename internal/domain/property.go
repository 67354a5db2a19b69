package domain

import "time"

type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
}

// Property is a rental listing. MinimumIncome is the monthly income a renter
// must prove to apply for it.
type Property struct {
	ID            string    `json:"id"`
	LandlordID    string    `json:"landlordId"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Address       Address   `json:"address"`
	Price         float64   `json:"price"`
	Bedrooms      int       `json:"bedrooms"`
	Bathrooms     float64   `json:"bathrooms"`
	SquareFeet    int       `json:"squareFeet"`
	Amenities     []string  `json:"amenities"`
	Images        []string  `json:"images"`
	MinimumIncome int64     `json:"minimumIncome"`
	IsAvailable   bool      `json:"isAvailable"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type PropertyFilter struct {
	LandlordID    string
	AvailableOnly bool
}

// ApplicationFilter narrows an application listing. An empty PropertyIDs
// slice with Scoped set matches nothing.
type ApplicationFilter struct {
	PropertyIDs []string
	Scoped      bool
	Status      ApplicationStatus
}

// ProofStatus answers whether a renter holds an approved application for a
// property.
type ProofStatus struct {
	PropertyID       string     `json:"propertyId"`
	RenterID         string     `json:"renterId"`
	HasVerifiedProof bool       `json:"hasVerifiedProof"`
	LastVerified     *time.Time `json:"lastVerified"`
}
