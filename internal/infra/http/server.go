package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"zkrent/internal/config"
	"zkrent/internal/domain"
	"zkrent/internal/infra/auth/jwtauth"
	"zkrent/internal/infra/auth/rbac"
	"zkrent/internal/infra/logging"
	"zkrent/internal/infra/metrics"
	"zkrent/internal/infra/ratelimit"
	"zkrent/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ProofRefs names the circuits the verifier sub-API accepts.
type ProofRefs struct {
	Income        domain.CircuitRef
	CreditScore   domain.CircuitRef
	RentalHistory domain.CircuitRef
}

// ServerDeps selects which surfaces a process serves; nil groups are not
// mounted.
type ServerDeps struct {
	// issuer
	Issuer     *usecase.AttestationIssuer
	PublicInfo *domain.IssuerKeys
	// ProvingKeys holds the binary Groth16 proving key per circuit this
	// process set up, served to renters.
	ProvingKeys map[string][]byte

	// verifier
	Applications *usecase.ApplicationService
	Proofs       *usecase.ProofVerifier
	ProofRefs    ProofRefs
	Properties   *usecase.PropertyService

	// registry
	Revocations *usecase.RevocationService

	Metrics       *metrics.Registry
	Logger        zerolog.Logger
	AdminAPIKey   string
	Authenticator domain.Authenticator
	Authorizer    domain.Authorizer
	RateLimiter   domain.RateLimiter
	// Ready reports backing store health for /healthz.
	Ready func(ctx context.Context) error
}

type Server struct {
	cfg    config.Config
	r      *gin.Engine
	logger zerolog.Logger

	issuer       *usecase.AttestationIssuer
	publicInfo   *domain.IssuerKeys
	provingKeys  map[string][]byte
	applications *usecase.ApplicationService
	proofs       *usecase.ProofVerifier
	proofRefs    ProofRefs
	properties   *usecase.PropertyService
	revocations  *usecase.RevocationService
	metrics      *metrics.Registry
	ready        func(ctx context.Context) error

	adminAPIKey string

	authenticator domain.Authenticator
	authorizer    domain.Authorizer
	authInitErr   error

	rateLimiter          domain.RateLimiter
	rateLimitRequests    int
	rateLimitWindow      time.Duration
	rateLimitWithSubject bool
	rateLimitFailClosed  bool
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	useJSONFieldNames()
	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware())
	}

	s := &Server{
		cfg:           cfg,
		r:             r,
		logger:        deps.Logger,
		issuer:        deps.Issuer,
		publicInfo:    deps.PublicInfo,
		provingKeys:   deps.ProvingKeys,
		applications:  deps.Applications,
		proofs:        deps.Proofs,
		proofRefs:     deps.ProofRefs,
		properties:    deps.Properties,
		revocations:   deps.Revocations,
		metrics:       deps.Metrics,
		ready:         deps.Ready,
		adminAPIKey:   deps.AdminAPIKey,
		authenticator: deps.Authenticator,
		authorizer:    deps.Authorizer,
	}
	if s.adminAPIKey == "" {
		s.adminAPIKey = cfg.AdminAPIKey
	}
	s.initRateLimit(deps.RateLimiter)
	s.initAuth()
	s.routes()
	return s
}

func (s *Server) initAuth() {
	switch s.cfg.AuthMode {
	case "":
		s.authInitErr = errors.New("AUTH_MODE is required")
	case "none":
	case "jwt":
		if s.authenticator == nil {
			authenticator, err := jwtauth.NewAuthenticator(s.cfg)
			if err != nil {
				s.authInitErr = err
				return
			}
			s.authenticator = authenticator
		}
		if s.authorizer == nil {
			s.authorizer = rbac.NewAuthorizer()
		}
	case "oidc":
		if s.authenticator == nil {
			s.authInitErr = errors.New("AUTH_MODE=oidc needs an authenticator")
			return
		}
		if s.authorizer == nil {
			s.authorizer = rbac.NewAuthorizer()
		}
	default:
		s.authInitErr = errors.New("unsupported auth mode")
	}
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	s.rateLimiter = override
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryConfig{MaxKeys: s.cfg.RateLimitMaxKeys})
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = s.cfg.RateLimitWindow()
	s.rateLimitWithSubject = s.cfg.RateLimitIncludeSubject
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	s.r.GET("/healthz", s.handleHealth)
	if s.metrics != nil && s.cfg.MetricsEnabled {
		s.r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	if s.publicInfo != nil {
		s.r.GET("/public-info", s.handlePublicInfo)
		s.r.GET("/circuit", s.handleCircuit)
		s.r.GET("/circuit/proving-key", s.handleIssuerProvingKey)
	}
	if s.issuer != nil {
		s.r.POST(s.issuer.ClaimType.AttestPath(), s.handleAttest)
		s.r.GET("/attestations/:subjectId", s.handleAttestationHistory)
		s.r.POST("/attestations/verify", s.handleVerifyAttestation)
	}

	if s.applications != nil {
		s.r.POST("/verify-proofs", s.handleVerifyProofs)
		s.r.GET("/application-status/:renterId", s.handleApplicationStatus)
		s.r.GET("/audit/decisions", s.handleDecisionAudit)
		s.r.GET("/applications", s.handleListApplications)
		s.r.GET("/api/proofs/status/:propertyId", s.handleProofStatus)
	}
	if s.properties != nil {
		props := s.r.Group("/properties")
		{
			props.GET("", s.handleListProperties)
			props.GET("/:id", s.handleGetProperty)
			props.POST("", s.handleCreateProperty)
			props.PUT("/:id", s.handleUpdateProperty)
			props.DELETE("/:id", s.handleDeleteProperty)
		}
	}
	if s.proofs != nil {
		api := s.r.Group("/api/proofs")
		{
			api.POST("/verify/income", s.handleVerifyIncomeProof)
			api.POST("/verify/rental-history", s.handleVerifyRentalHistoryProof)
			api.GET("/verification-key/:circuit", s.handleVerificationKey)
			api.GET("/proving-key/:circuit", s.handleProvingKey)
		}
		s.r.GET("/verification-status", s.handleVerificationStatus)
	}

	if s.revocations != nil {
		s.r.GET("/check", s.handleCheckRevocation)
		s.r.POST("/revocations", s.handleRevoke)
		s.r.GET("/revocations/epoch/:issuer", s.handleRevocationEpoch)
		s.r.GET("/revocations/audit/:issuer", s.handleRevocationAudit)
	}

	s.r.NoRoute(s.handleNoRoute)
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.ready != nil {
		if err := s.ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "authMode": s.cfg.AuthMode})
}

func (s *Server) handleNoRoute(c *gin.Context) {
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

func (s *Server) Handler() http.Handler {
	return s.r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	if s.authInitErr != nil {
		return s.authInitErr
	}
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.HTTPAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
