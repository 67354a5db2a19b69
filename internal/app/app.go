// Package app assembles the issuer, verifier and registry services from
// configuration.
package app

import (
	"context"
	"errors"

	"zkrent/internal/config"
	"zkrent/internal/domain"
	"zkrent/internal/infra/auth/jwtauth"
	"zkrent/internal/infra/db"
	httpinfra "zkrent/internal/infra/http"
	"zkrent/internal/infra/metrics"
	"zkrent/internal/infra/ratelimit"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Service is one runnable process with the resources it must release.
type Service struct {
	Server *httpinfra.Server
	Logger zerolog.Logger

	closers []func() error
}

// Run serves until ctx is done and then releases every resource.
func (s *Service) Run(ctx context.Context) error {
	defer s.Close()
	return s.Server.Run(ctx)
}

func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Service) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func openStore(cfg config.Config, logger zerolog.Logger, svc *Service) (*db.Store, error) {
	store, err := db.NewStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	svc.onClose(store.Close)
	return store, nil
}

func newRedisClient(cfg config.Config, svc *Service) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	svc.onClose(client.Close)
	return client
}

// newRateLimiter shares counters through redis when available so limits
// hold across replicas.
func newRateLimiter(cfg config.Config, client *redis.Client, logger zerolog.Logger) domain.RateLimiter {
	if cfg.RateLimitRequests <= 0 {
		return nil
	}
	if client != nil {
		limiter, err := ratelimit.NewRedisLimiter(client, nil)
		if err == nil {
			return limiter
		}
		logger.Warn().Err(err).Msg("redis rate limiter unavailable, using memory")
	}
	return ratelimit.NewMemoryLimiter(ratelimit.MemoryConfig{MaxKeys: cfg.RateLimitMaxKeys})
}

func newMetrics(cfg config.Config, service string) *metrics.Registry {
	if !cfg.MetricsEnabled {
		return nil
	}
	return metrics.New(service)
}

// serverDeps fills the ambient parts every service shares.
func serverDeps(ctx context.Context, cfg config.Config, logger zerolog.Logger, svc *Service, store *db.Store, reg *metrics.Registry, limiter domain.RateLimiter) (httpinfra.ServerDeps, error) {
	deps := httpinfra.ServerDeps{
		Metrics:     reg,
		Logger:      logger,
		AdminAPIKey: cfg.AdminAPIKey,
		RateLimiter: limiter,
		Ready:       store.Ping,
	}
	if cfg.AuthMode != "oidc" {
		return deps, nil
	}
	// The JWKS cache refreshes in the background until the service closes.
	authCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	svc.onClose(func() error { cancel(); return nil })
	authenticator, err := jwtauth.NewOIDCAuthenticator(authCtx, cfg)
	if err != nil {
		return deps, err
	}
	deps.Authenticator = authenticator
	return deps, nil
}
