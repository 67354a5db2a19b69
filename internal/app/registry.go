package app

import (
	"context"

	"zkrent/internal/config"
	httpinfra "zkrent/internal/infra/http"
	"zkrent/internal/usecase"

	"github.com/rs/zerolog"
)

// NewRegistry wires the revocation registry.
func NewRegistry(ctx context.Context, cfg config.Config, logger zerolog.Logger) (_ *Service, err error) {
	logger = logger.With().Str("service", "registry").Logger()
	svc := &Service{Logger: logger}
	defer func() {
		if err != nil {
			_ = svc.Close()
		}
	}()

	store, err := openStore(cfg, logger, svc)
	if err != nil {
		return nil, err
	}
	revocations := usecase.NewRevocationService(store.Revocations, store.Epochs)
	revocations.Logger = logger
	revocations.Audit = store.Audit

	deps, err := serverDeps(ctx, cfg, logger, svc, store, newMetrics(cfg, "registry"), newRateLimiter(cfg, newRedisClient(cfg, svc), logger))
	if err != nil {
		return nil, err
	}
	deps.Revocations = revocations
	svc.Server = httpinfra.NewServerWithDeps(cfg, deps)
	return svc, nil
}
