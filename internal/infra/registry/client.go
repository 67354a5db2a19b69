package registry

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"zkrent/internal/infra/upstream"
)

// CheckResponse is the body of GET /check.
type CheckResponse struct {
	AttestationID string `json:"attestationId"`
	Issuer        string `json:"issuer"`
	IsRevoked     bool   `json:"isRevoked"`
	Epoch         int64  `json:"epoch"`
}

// Client queries a remote revocation registry. Lookup failures come back as
// domain.ErrUpstreamUnavailable or domain.ErrUpstreamTimeout, never as "not
// revoked".
type Client struct {
	baseURL string
	http    *upstream.Client
}

func NewClient(baseURL string, client *upstream.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

func (c *Client) IsRevoked(ctx context.Context, attestationID, issuer string) (bool, error) {
	q := url.Values{}
	q.Set("attestationId", attestationID)
	q.Set("issuer", issuer)
	var resp CheckResponse
	if err := c.http.GetJSON(ctx, c.baseURL+"/check?"+q.Encode(), &resp); err != nil {
		return false, fmt.Errorf("revocation check %s: %w", attestationID, err)
	}
	return resp.IsRevoked, nil
}
