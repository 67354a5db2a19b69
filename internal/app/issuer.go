package app

import (
	"context"
	"crypto/rsa"
	"fmt"

	"zkrent/internal/config"
	"zkrent/internal/domain"
	cryptoinfra "zkrent/internal/infra/crypto"
	"zkrent/internal/infra/directory"
	httpinfra "zkrent/internal/infra/http"
	"zkrent/internal/infra/zkp"
	"zkrent/internal/usecase"

	"github.com/rs/zerolog"
)

// IssuerProfile is what differs between the employer and the bank.
type IssuerProfile struct {
	ID          string
	Name        string
	Description string
	ClaimType   domain.ClaimType
	Circuit     string
	Threshold   int64
	Currency    string
}

func ProfileFor(cfg config.Config) (IssuerProfile, error) {
	switch cfg.IssuerKind {
	case "employer":
		return IssuerProfile{
			ID:          firstNonEmpty(cfg.IssuerID, cfg.EmployerID),
			Name:        "Employer Verification Service",
			Description: "Attests monthly net income",
			ClaimType:   domain.ClaimIncome,
			Circuit:     domain.CircuitIncome,
			Threshold:   int64(cfg.IncomeThreshold),
			Currency:    cfg.IncomeCurrency,
		}, nil
	case "bank":
		return IssuerProfile{
			ID:          firstNonEmpty(cfg.IssuerID, cfg.BankID),
			Name:        "Bank Credit Service",
			Description: "Attests credit score",
			ClaimType:   domain.ClaimCreditScore,
			Circuit:     domain.CircuitCreditScore,
			Threshold:   int64(cfg.CreditScoreThreshold),
		}, nil
	}
	return IssuerProfile{}, fmt.Errorf("%w: issuer kind %q", domain.ErrUnsupportedClaim, cfg.IssuerKind)
}

// NewIssuer wires an issuer process: circuit keys, signing key, subject
// directory and attestation history.
func NewIssuer(ctx context.Context, cfg config.Config, logger zerolog.Logger) (_ *Service, err error) {
	profile, err := ProfileFor(cfg)
	if err != nil {
		return nil, err
	}
	logger = logger.With().Str("issuer", profile.ID).Logger()
	svc := &Service{Logger: logger}
	defer func() {
		if err != nil {
			_ = svc.Close()
		}
	}()

	key, err := issuerKey(cfg, logger)
	if err != nil {
		return nil, err
	}
	signer, err := cryptoinfra.NewSigner(key)
	if err != nil {
		return nil, err
	}
	subjects, err := directory.Load(cfg.SubjectsFile)
	if err != nil {
		return nil, fmt.Errorf("load subjects: %w", err)
	}
	circuitKeys, err := zkp.NewKeyManager(cfg.CircuitKeyDir, logger).LoadOrSetup(profile.Circuit, &zkp.ThresholdCircuit{})
	if err != nil {
		return nil, fmt.Errorf("circuit setup: %w", err)
	}
	published, err := zkp.PublishedKeys(domain.IssuerMetadata{
		ID:          profile.ID,
		Name:        profile.Name,
		ClaimType:   profile.ClaimType,
		Currency:    profile.Currency,
		Description: profile.Description,
	}, zkp.ThresholdDescriptor(profile.Circuit, profile.Threshold), circuitKeys, signer.PublicKeyPEM())
	if err != nil {
		return nil, err
	}
	provingKey, err := circuitKeys.ProvingKeyBytes()
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg, logger, svc)
	if err != nil {
		return nil, err
	}
	issuer := &usecase.AttestationIssuer{
		IssuerID:  profile.ID,
		ClaimType: profile.ClaimType,
		Currency:  profile.Currency,
		Directory: subjects,
		Records:   store.Subjects,
		Signer:    signer,
		Verifier:  cryptoinfra.NewVerifier(),
		Commit:    CommitValue,
		Logger:    logger,
	}

	reg := newMetrics(cfg, "issuer")
	deps, err := serverDeps(ctx, cfg, logger, svc, store, reg, newRateLimiter(cfg, newRedisClient(cfg, svc), logger))
	if err != nil {
		return nil, err
	}
	deps.Issuer = issuer
	deps.PublicInfo = &published
	deps.ProvingKeys = map[string][]byte{profile.Circuit: provingKey}
	svc.Server = httpinfra.NewServerWithDeps(cfg, deps)

	logger.Info().
		Str("claim_type", string(profile.ClaimType)).
		Int64("threshold", profile.Threshold).
		Int("subjects", subjects.Len()).
		Msg("issuer ready")
	return svc, nil
}

// CommitValue draws a fresh salt and commits to value under it.
func CommitValue(value int64) (string, string, error) {
	salt, err := zkp.NewSalt()
	if err != nil {
		return "", "", err
	}
	commitment, err := zkp.Commit(value, salt)
	if err != nil {
		return "", "", err
	}
	return commitment.String(), salt.String(), nil
}

// issuerKey loads the configured signing key. Outside production a missing
// key is replaced by an ephemeral one.
func issuerKey(cfg config.Config, logger zerolog.Logger) (*rsa.PrivateKey, error) {
	key, err := cryptoinfra.LoadRSAPrivateKey(cfg.IssuerPrivateKeyPEM, cfg.IssuerPrivateKeyPath)
	if err == nil {
		return key, nil
	}
	if cfg.Production() || cfg.IssuerPrivateKeyPEM != "" || cfg.IssuerPrivateKeyPath != "" {
		return nil, fmt.Errorf("issuer signing key: %w", err)
	}
	logger.Warn().Msg("no issuer signing key configured, generating an ephemeral key")
	return cryptoinfra.GenerateRSAKey(2048)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
