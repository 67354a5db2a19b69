package app

import (
	"context"
	"fmt"

	"zkrent/internal/config"
	"zkrent/internal/domain"
	cryptoinfra "zkrent/internal/infra/crypto"
	"zkrent/internal/infra/events"
	httpinfra "zkrent/internal/infra/http"
	"zkrent/internal/infra/keystore"
	"zkrent/internal/infra/policyopa"
	"zkrent/internal/infra/registry"
	"zkrent/internal/infra/upstream"
	"zkrent/internal/infra/zkp"
	"zkrent/internal/usecase"

	"github.com/rs/zerolog"
)

// VerifierRefs names the circuits the verifier checks, by issuer.
func VerifierRefs(cfg config.Config) httpinfra.ProofRefs {
	return httpinfra.ProofRefs{
		Income:        domain.CircuitRef{Issuer: cfg.EmployerID, Circuit: domain.CircuitIncome},
		CreditScore:   domain.CircuitRef{Issuer: cfg.BankID, Circuit: domain.CircuitCreditScore},
		RentalHistory: domain.CircuitRef{Issuer: cfg.VerifierID, Circuit: domain.CircuitRentalHistory},
	}
}

// NewVerifier wires the landlord-side service: key store over issuer
// /public-info, revocation checks, admission policy, decision events.
func NewVerifier(ctx context.Context, cfg config.Config, logger zerolog.Logger) (_ *Service, err error) {
	logger = logger.With().Str("service", "verifier").Logger()
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
	redisClient := newRedisClient(cfg, svc)
	reg := newMetrics(cfg, "verifier")
	refs := VerifierRefs(cfg)
	client := upstream.New(cfg.UpstreamTimeout(), cfg.UpstreamRetries)

	keyOpts := []keystore.Option{keystore.WithTTL(cfg.KeyCacheTTL()), keystore.WithLogger(logger)}
	if redisClient != nil {
		keyOpts = append(keyOpts, keystore.WithSharedCache(keystore.NewRedisCache(redisClient)))
	}
	keys := keystore.New(keystore.NewHTTPSource(client, map[string]string{
		cfg.EmployerID: cfg.EmployerURL,
		cfg.BankID:     cfg.BankURL,
	}), keyOpts...)

	historyKeys, err := zkp.NewKeyManager(cfg.CircuitKeyDir, logger).LoadOrSetup(domain.CircuitRentalHistory, &zkp.RentalHistoryCircuit{})
	if err != nil {
		return nil, fmt.Errorf("rental history setup: %w", err)
	}
	history, err := zkp.PublishedKeys(domain.IssuerMetadata{
		ID:          cfg.VerifierID,
		Name:        "Rental History",
		ClaimType:   domain.ClaimRentalHistory,
		Description: "On-time rent payments over the last 12 months",
	}, zkp.RentalHistoryDescriptor(cfg.MinOnTimePayments), historyKeys, "")
	if err != nil {
		return nil, err
	}
	keys.Register(history)
	historyPK, err := historyKeys.ProvingKeyBytes()
	if err != nil {
		return nil, err
	}

	var revocations usecase.RevocationChecker
	if cfg.RevocationRegistryURL != "" {
		revocations = registry.NewClient(cfg.RevocationRegistryURL, client)
	} else {
		logger.Info().Msg("REVOCATION_REGISTRY_URL not set, checking revocations in the local database")
		revocations = usecase.NewRevocationService(store.Revocations, store.Epochs)
	}

	policy, err := policyopa.NewEngine(ctx, cfg.PolicyPath)
	if err != nil {
		return nil, err
	}

	var publisher usecase.EventPublisher = events.LogPublisher{Logger: logger}
	if cfg.AMQPURL != "" {
		rabbit, err := events.NewRabbitPublisher(events.RabbitConfig{
			URL:        cfg.AMQPURL,
			Exchange:   cfg.AMQPExchange,
			Queue:      cfg.AMQPQueue,
			RoutingKey: cfg.AMQPRoutingKey,
		})
		if err != nil {
			return nil, err
		}
		svc.onClose(rabbit.Close)
		publisher = rabbit
	}

	var m usecase.Metrics
	if reg != nil {
		m = reg
	}
	proofs := &usecase.ProofVerifier{
		Keys:    keys,
		Engine:  zkp.NewEngine(logger),
		Metrics: m,
		Logger:  logger,
	}
	applications := &usecase.ApplicationService{
		IncomeRef:      refs.Income,
		CreditScoreRef: refs.CreditScore,
		Proofs:         proofs,
		Signatures:     cryptoinfra.NewVerifier(),
		Revocations:    revocations,
		Policy:         policy,
		Decisions:      &usecase.DecisionEngineV0{},
		Applications:   store.Applications,
		Properties:     store.Properties,
		Events:         publisher,
		Audit:          store.Audit,
		Metrics:        m,
		Logger:         logger,
	}

	deps, err := serverDeps(ctx, cfg, logger, svc, store, reg, newRateLimiter(cfg, redisClient, logger))
	if err != nil {
		return nil, err
	}
	deps.Applications = applications
	deps.Proofs = proofs
	deps.ProofRefs = refs
	deps.Properties = &usecase.PropertyService{Properties: store.Properties, Logger: logger}
	deps.ProvingKeys = map[string][]byte{domain.CircuitRentalHistory: historyPK}
	svc.Server = httpinfra.NewServerWithDeps(cfg, deps)

	logger.Info().
		Str("policy_hash", policy.PolicyHash()).
		Str("employer_url", cfg.EmployerURL).
		Str("bank_url", cfg.BankURL).
		Msg("verifier ready")
	return svc, nil
}
