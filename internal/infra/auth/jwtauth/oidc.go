package jwtauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"zkrent/internal/config"
	"zkrent/internal/domain"
)

const (
	discoveryPath       = "/.well-known/openid-configuration"
	defaultOIDCTimeout  = 5 * time.Second
	jwksRefreshInterval = 5 * time.Minute
)

// OIDCAuthenticator validates RS256 tokens from an external identity
// provider against its published JWKS. Keys are cached and refreshed in the
// background.
type OIDCAuthenticator struct {
	issuer   string
	audience string
	skew     time.Duration
	now      func() time.Time
	keys     jwk.Set
}

type OIDCOption func(*oidcOptions)

type oidcOptions struct {
	client *http.Client
	now    func() time.Time
}

func WithHTTPClient(client *http.Client) OIDCOption {
	return func(o *oidcOptions) {
		if client != nil {
			o.client = client
		}
	}
}

func WithOIDCClock(now func() time.Time) OIDCOption {
	return func(o *oidcOptions) { o.now = now }
}

// NewOIDCAuthenticator resolves the JWKS URL (discovering it from the issuer
// when OIDC_JWKS_URL is unset) and primes the key cache. The cache lives
// until ctx is cancelled.
func NewOIDCAuthenticator(ctx context.Context, cfg config.Config, opts ...OIDCOption) (*OIDCAuthenticator, error) {
	issuer := strings.TrimSpace(cfg.OIDCIssuerURL)
	if issuer == "" {
		return nil, errors.New("OIDC_ISSUER_URL is required")
	}
	o := oidcOptions{client: &http.Client{Timeout: defaultOIDCTimeout}, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	jwksURL := strings.TrimSpace(cfg.OIDCJWKSURL)
	if jwksURL == "" {
		discovered, err := discoverJWKSURL(ctx, o.client, issuer)
		if err != nil {
			return nil, err
		}
		jwksURL = discovered
	}

	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL,
		jwk.WithHTTPClient(o.client),
		jwk.WithMinRefreshInterval(jwksRefreshInterval),
	); err != nil {
		return nil, fmt.Errorf("register jwks: %w", err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	return &OIDCAuthenticator{
		issuer:   issuer,
		audience: strings.TrimSpace(cfg.OIDCAudience),
		skew:     cfg.ClockSkew(),
		now:      o.now,
		keys:     jwk.NewCachedSet(cache, jwksURL),
	}, nil
}

func (a *OIDCAuthenticator) Authenticate(ctx context.Context, bearerToken string) (domain.Principal, error) {
	if a == nil || strings.TrimSpace(bearerToken) == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	parseOpts := []jwt.ParseOption{
		jwt.WithKeySet(a.keys, jws.WithInferAlgorithmFromKey(true)),
		jwt.WithValidate(true),
		jwt.WithIssuer(a.issuer),
		jwt.WithAcceptableSkew(a.skew),
		jwt.WithClock(jwt.ClockFunc(a.now)),
	}
	if a.audience != "" {
		parseOpts = append(parseOpts, jwt.WithAudience(a.audience))
	}
	tok, err := jwt.Parse([]byte(strings.TrimSpace(bearerToken)), parseOpts...)
	if err != nil || tok.Subject() == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	claims, err := tok.AsMap(ctx)
	if err != nil {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	return principalFromClaims(tok.Subject(), claims), nil
}

func discoverJWKSURL(ctx context.Context, client *http.Client, issuer string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(issuer, "/")+discoveryPath, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("oidc discovery: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("oidc discovery: status %d", resp.StatusCode)
	}
	var payload struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("oidc discovery: %w", err)
	}
	if payload.JWKSURI == "" {
		return "", errors.New("oidc discovery missing jwks_uri")
	}
	return payload.JWKSURI, nil
}
