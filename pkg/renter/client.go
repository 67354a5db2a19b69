// Package renter is the applicant side of the protocol: it collects
// attestations from issuers, proves claims about them locally and submits
// the proofs to a verifier.
package renter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"zkrent/internal/domain"
	"zkrent/internal/infra/upstream"
	"zkrent/internal/infra/zkp"
	"zkrent/internal/usecase"
)

// Client talks to issuer and verifier services on behalf of one renter.
type Client struct {
	http *upstream.Client
}

// NewClient builds a client; token, when set, is sent as a bearer token.
func NewClient(timeout time.Duration, token string) *Client {
	c := upstream.New(timeout, 3)
	if token != "" {
		c.Header = http.Header{"Authorization": []string{"Bearer " + token}}
	}
	return &Client{http: c}
}

// PublicInfo fetches an issuer's metadata, circuit descriptor and keys.
func (c *Client) PublicInfo(ctx context.Context, issuerURL string) (domain.IssuerKeys, error) {
	var info domain.IssuerKeys
	if err := c.http.GetJSON(ctx, join(issuerURL, "/public-info"), &info); err != nil {
		return domain.IssuerKeys{}, fmt.Errorf("public info: %w", err)
	}
	return info, nil
}

// ProvingKey downloads the issuer's Groth16 proving key.
func (c *Client) ProvingKey(ctx context.Context, issuerURL string) ([]byte, error) {
	pk, err := c.http.GetBytes(ctx, join(issuerURL, "/circuit/proving-key"))
	if err != nil {
		return nil, fmt.Errorf("proving key: %w", err)
	}
	return pk, nil
}

// IssuerCircuitKeys fetches the proving key for info's circuit and checks
// it against the published verification key.
func (c *Client) IssuerCircuitKeys(ctx context.Context, issuerURL string, info domain.IssuerKeys) (*zkp.CircuitKeys, error) {
	pk, err := c.ProvingKey(ctx, issuerURL)
	if err != nil {
		return nil, err
	}
	return zkp.ImportThresholdKeys(info.Circuit.Name, pk, info.VerificationKey)
}

// RentalHistoryKeys fetches the verifier's rental history key pair.
func (c *Client) RentalHistoryKeys(ctx context.Context, verifierURL string) (*zkp.CircuitKeys, error) {
	var vk struct {
		VerificationKey []byte `json:"verificationKey"`
	}
	if err := c.http.GetJSON(ctx, join(verifierURL, "/api/proofs/verification-key/rental-history"), &vk); err != nil {
		return nil, fmt.Errorf("verification key: %w", err)
	}
	pk, err := c.http.GetBytes(ctx, join(verifierURL, "/api/proofs/proving-key/rental-history"))
	if err != nil {
		return nil, fmt.Errorf("proving key: %w", err)
	}
	return zkp.ImportRentalHistoryKeys(pk, vk.VerificationKey)
}

// Attest asks the issuer to attest claim for subjectID.
func (c *Client) Attest(ctx context.Context, issuerURL string, claim domain.ClaimType, subjectID string) (usecase.IssueResult, error) {
	var out usecase.IssueResult
	body := map[string]string{"subjectId": subjectID}
	if err := c.http.PostJSON(ctx, join(issuerURL, claim.AttestPath()), body, &out); err != nil {
		return usecase.IssueResult{}, fmt.Errorf("attest %s: %w", claim, err)
	}
	return out, nil
}

// Apply submits both claims. A 503 carries the fail-closed decision in the
// error payload.
func (c *Client) Apply(ctx context.Context, verifierURL string, req usecase.ApplicationRequest) (domain.Decision, error) {
	var out domain.Decision
	if err := c.http.PostJSON(ctx, join(verifierURL, "/verify-proofs"), req, &out); err != nil {
		return domain.Decision{}, fmt.Errorf("submit application: %w", err)
	}
	return out, nil
}

func (c *Client) Status(ctx context.Context, verifierURL, renterID string) (domain.RentalApplication, error) {
	var out domain.RentalApplication
	path := "/application-status/" + url.PathEscape(renterID)
	if err := c.http.GetJSON(ctx, join(verifierURL, path), &out); err != nil {
		return domain.RentalApplication{}, fmt.Errorf("application status: %w", err)
	}
	return out, nil
}

// Property fetches a listing so the income claim can be proved at its
// minimum income.
func (c *Client) Property(ctx context.Context, verifierURL, propertyID string) (domain.Property, error) {
	var out domain.Property
	path := "/properties/" + url.PathEscape(propertyID)
	if err := c.http.GetJSON(ctx, join(verifierURL, path), &out); err != nil {
		return domain.Property{}, fmt.Errorf("property %s: %w", propertyID, err)
	}
	return out, nil
}

func join(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
