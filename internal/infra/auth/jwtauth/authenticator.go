package jwtauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"zkrent/internal/config"
	"zkrent/internal/domain"
)

const minSecretBytes = 32

// Authenticator validates HS256 bearer tokens.
type Authenticator struct {
	secret   []byte
	issuer   string
	audience string
	skew     time.Duration
	now      func() time.Time
}

type Option func(*Authenticator)

func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

func NewAuthenticator(cfg config.Config, opts ...Option) (*Authenticator, error) {
	if len(cfg.JWTSecret) < minSecretBytes {
		return nil, errors.New("JWT_SECRET must be at least 32 bytes")
	}
	a := &Authenticator{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.JWTIssuer,
		audience: cfg.JWTAudience,
		skew:     cfg.ClockSkew(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Authenticator) Authenticate(ctx context.Context, bearerToken string) (domain.Principal, error) {
	if bearerToken == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	parseOpts := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, a.secret),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(a.skew),
		jwt.WithClock(jwt.ClockFunc(a.now)),
	}
	if a.issuer != "" {
		parseOpts = append(parseOpts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		parseOpts = append(parseOpts, jwt.WithAudience(a.audience))
	}
	tok, err := jwt.Parse([]byte(bearerToken), parseOpts...)
	if err != nil {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	if tok.Subject() == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	claims, err := tok.AsMap(ctx)
	if err != nil {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	return principalFromClaims(tok.Subject(), claims), nil
}

// MintRequest describes a token for local development and tests.
type MintRequest struct {
	Subject string
	Roles   []string
	Scopes  []string
	TTL     time.Duration
}

func (a *Authenticator) Mint(req MintRequest) (string, error) {
	if req.Subject == "" {
		return "", errors.New("subject is required")
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := a.now()
	b := jwt.NewBuilder().
		Subject(req.Subject).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(ttl))
	if a.issuer != "" {
		b = b.Issuer(a.issuer)
	}
	if a.audience != "" {
		b = b.Audience([]string{a.audience})
	}
	if len(req.Roles) > 0 {
		b = b.Claim("roles", req.Roles)
	}
	if len(req.Scopes) > 0 {
		b = b.Claim("scope", strings.Join(req.Scopes, " "))
	}
	tok, err := b.Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, a.secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

func principalFromClaims(subject string, claims map[string]any) domain.Principal {
	return domain.Principal{
		Subject:   subject,
		Roles:     extractRoles(claims),
		Scopes:    extractScopes(claims),
		RawClaims: claims,
	}
}

func extractRoles(claims map[string]any) []string {
	var roles []string
	if role, ok := claims["role"].(string); ok && role != "" {
		roles = append(roles, role)
	}
	roles = append(roles, stringList(claims["roles"])...)
	if realmAccess, ok := claims["realm_access"].(map[string]any); ok {
		roles = append(roles, stringList(realmAccess["roles"])...)
	}
	return dedupeStrings(roles)
}

func extractScopes(claims map[string]any) []string {
	var scopes []string
	if scope, ok := claims["scope"].(string); ok && scope != "" {
		scopes = append(scopes, strings.Fields(scope)...)
	}
	scopes = append(scopes, stringList(claims["scp"])...)
	return dedupeStrings(scopes)
}

func stringList(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
