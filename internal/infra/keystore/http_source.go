package keystore

import (
	"context"
	"fmt"
	"strings"

	"zkrent/internal/domain"
	"zkrent/internal/infra/upstream"
)

// HTTPSource fetches GET {issuer}/public-info.
type HTTPSource struct {
	client  *upstream.Client
	issuers map[string]string
}

// NewHTTPSource maps issuer ids to their base URLs.
func NewHTTPSource(client *upstream.Client, issuers map[string]string) *HTTPSource {
	normalized := make(map[string]string, len(issuers))
	for id, base := range issuers {
		normalized[id] = strings.TrimRight(base, "/")
	}
	return &HTTPSource{client: client, issuers: normalized}
}

func (h *HTTPSource) Fetch(ctx context.Context, ref domain.CircuitRef) (domain.IssuerKeys, error) {
	base, ok := h.issuers[ref.Issuer]
	if !ok {
		return domain.IssuerKeys{}, fmt.Errorf("issuer %q: %w", ref.Issuer, domain.ErrNotFound)
	}
	var keys domain.IssuerKeys
	if err := h.client.GetJSON(ctx, base+"/public-info", &keys); err != nil {
		return domain.IssuerKeys{}, fmt.Errorf("fetch public info for %s: %w", ref.Issuer, err)
	}
	return keys, nil
}
