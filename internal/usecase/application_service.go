package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"zkrent/internal/domain"
)

// SubmittedAttestation is the attestation a renter presents. Value is set
// only when the renter chose to disclose the full attestation.
type SubmittedAttestation struct {
	domain.Presentation
	Value *int64 `json:"value,omitempty"`
}

// SignedPayload is what the issuer signature covers for this form.
func (a SubmittedAttestation) SignedPayload() any {
	if a.Value == nil {
		return a.Presentation
	}
	return domain.Attestation{
		ID:         a.ID,
		Issuer:     a.Issuer,
		SubjectID:  a.SubjectID,
		ClaimType:  a.ClaimType,
		Value:      *a.Value,
		Currency:   a.Currency,
		Commitment: a.Commitment,
		IssuedAt:   a.IssuedAt,
		ExpiresAt:  a.ExpiresAt,
	}
}

type ClaimSubmission struct {
	Proof         domain.Proof         `json:"proof"`
	PublicSignals domain.PublicSignals `json:"publicSignals"`
	Attestation   SubmittedAttestation `json:"attestation"`
	Signature     string               `json:"signature"`
}

// ApplicationRequest is one renter's application. With PropertyID set the
// income proof must state that property's minimum income as its threshold.
type ApplicationRequest struct {
	RenterID    string          `json:"renterId"`
	PropertyID  string          `json:"propertyId,omitempty"`
	Income      ClaimSubmission `json:"incomeProof"`
	CreditScore ClaimSubmission `json:"creditScoreProof"`
}

// UnverifiableError reports a decision that could not be completed because
// an upstream check failed. Decision holds the fail-closed outcome; it was
// not persisted.
type UnverifiableError struct {
	Decision domain.Decision
	Err      error
}

func (e *UnverifiableError) Error() string {
	return fmt.Sprintf("application %s could not be fully verified: %v", e.Decision.RenterID, e.Err)
}

func (e *UnverifiableError) Unwrap() error { return e.Err }

// ApplicationService verifies rental applications and records the decision.
type ApplicationService struct {
	IncomeRef      domain.CircuitRef
	CreditScoreRef domain.CircuitRef

	Proofs       *ProofVerifier
	Signatures   SignatureVerifier
	Revocations  RevocationChecker
	Policy       PolicyEngine
	Decisions    DecisionEngine
	Applications ApplicationRepository
	Properties   PropertyRepository
	Events       EventPublisher
	Audit        AuditLog
	Metrics      Metrics
	Logger       zerolog.Logger
	Now          func() time.Time
}

type claimSpec struct {
	field string
	claim domain.ClaimType
	ref   domain.CircuitRef
	sub   ClaimSubmission
	// threshold overrides the issuer's published threshold when set.
	threshold *int64
}

// claimOutcome is written by the check goroutines of one claim; each field
// has a single writer.
type claimOutcome struct {
	proof      ClaimVerification
	proofErr   error
	commitOK   bool
	sigOK      bool
	sigReason  string
	notExpired bool
	notRevoked bool
	revErr     error
}

func (s *ApplicationService) Submit(ctx context.Context, req ApplicationRequest) (domain.Decision, error) {
	if err := s.ready(); err != nil {
		return domain.Decision{}, err
	}
	req.RenterID = strings.TrimSpace(req.RenterID)
	req.PropertyID = strings.TrimSpace(req.PropertyID)
	specs := []claimSpec{
		{field: "incomeProof", claim: domain.ClaimIncome, ref: s.IncomeRef, sub: req.Income},
		{field: "creditScoreProof", claim: domain.ClaimCreditScore, ref: s.CreditScoreRef, sub: req.CreditScore},
	}
	if err := validateApplication(req.RenterID, specs); err != nil {
		return domain.Decision{}, err
	}
	if req.PropertyID != "" {
		property, err := s.property(ctx, req.PropertyID)
		if err != nil {
			return domain.Decision{}, err
		}
		specs[0].threshold = &property.MinimumIncome
	}

	keys, err := s.fetchKeys(ctx, specs)
	if err != nil {
		return domain.Decision{}, err
	}

	now := s.now()
	outcomes := make([]claimOutcome, len(specs))
	var g errgroup.Group
	for i := range specs {
		s.runChecks(ctx, &g, now, specs[i], keys[i], &outcomes[i])
	}
	if err := g.Wait(); err != nil {
		return domain.Decision{}, err
	}

	verr := &domain.ValidationError{}
	for i, o := range outcomes {
		if o.proofErr == nil {
			continue
		}
		v, ok := domain.AsValidationError(o.proofErr)
		if !ok {
			return domain.Decision{}, o.proofErr
		}
		for _, violation := range v.Violations {
			verr.Add(specs[i].field+"."+violation.Field, violation.Message)
		}
	}
	if err := verr.OrNil(); err != nil {
		return domain.Decision{}, err
	}

	checks := make([]domain.ClaimChecks, len(specs))
	var upstreamErr error
	for i, o := range outcomes {
		checks[i] = o.checks()
		if o.revErr != nil && upstreamErr == nil {
			upstreamErr = o.revErr
		}
		if err := s.applyPolicy(ctx, now, specs[i], &checks[i]); err != nil {
			return domain.Decision{}, err
		}
	}

	result, err := s.decisions().Evaluate(DecisionInput{Income: checks[0], CreditScore: checks[1]})
	if err != nil {
		return domain.Decision{}, fmt.Errorf("evaluate decision: %w", err)
	}
	decision := domain.Decision{
		RenterID:   req.RenterID,
		PropertyID: req.PropertyID,
		IsValid:    result.IsValid,
		Status:     result.Status,
		Details:    result.Details,
		Reasons:    result.Reasons,
		Retryable:  result.Retryable,
		DecidedAt:  now,
	}

	if upstreamErr != nil {
		if !domain.IsRetryable(upstreamErr) {
			upstreamErr = fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, upstreamErr)
		}
		s.Logger.Warn().
			Err(upstreamErr).
			Str("renter_id", req.RenterID).
			Strs("reasons", decision.Reasons).
			Msg("revocation status unavailable, decision not recorded")
		return decision, &UnverifiableError{Decision: decision, Err: upstreamErr}
	}

	app := domain.RentalApplication{
		RenterID:              req.RenterID,
		PropertyID:            req.PropertyID,
		Status:                decision.Status,
		IncomeProofValid:      decision.Details.Income.Valid(),
		CreditScoreProofValid: decision.Details.CreditScore.Valid(),
		Details:               &decision.Details,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if _, err := s.Applications.Upsert(ctx, app); err != nil {
		return domain.Decision{}, fmt.Errorf("store application: %w", err)
	}
	metricsOrNop(s.Metrics).ObserveDecision(decision.Status)

	s.Logger.Info().
		Str("renter_id", req.RenterID).
		Str("property_id", req.PropertyID).
		Str("status", string(decision.Status)).
		Strs("reasons", decision.Reasons).
		Msg("application decided")

	recordAudit(ctx, s.Audit, s.Logger, domain.AuditStreamDecisions, domain.AuditApplicationDecided, decision.RenterID, decisionAuditPayload{
		RenterID:   decision.RenterID,
		PropertyID: decision.PropertyID,
		Status:     decision.Status,
		Reasons:    decision.Reasons,
		DecidedAt:  decision.DecidedAt.Format(time.RFC3339Nano),
	})

	if s.Events != nil {
		event := domain.DecisionEvent{
			Type:       domain.EventApplicationDecided,
			RenterID:   decision.RenterID,
			PropertyID: decision.PropertyID,
			Status:     decision.Status,
			Reasons:    decision.Reasons,
			DecidedAt:  decision.DecidedAt,
		}
		if err := s.Events.PublishDecision(ctx, event); err != nil {
			s.Logger.Error().Err(err).Str("renter_id", req.RenterID).Msg("publish decision event")
		}
	}
	return decision, nil
}

func (s *ApplicationService) Status(ctx context.Context, renterID string) (*domain.RentalApplication, error) {
	if s == nil || s.Applications == nil {
		return nil, errors.New("application repository is required")
	}
	renterID = strings.TrimSpace(renterID)
	if renterID == "" {
		return nil, domain.NewValidationError(domain.Violation{Field: "renterId", Message: "is required"})
	}
	app, err := s.Applications.Get(ctx, renterID)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, domain.ErrNotFound
	}
	return app, nil
}

// ListApplications returns the applications for landlordID's properties, or
// every application when landlordID is empty.
func (s *ApplicationService) ListApplications(ctx context.Context, landlordID string, status domain.ApplicationStatus) ([]domain.RentalApplication, error) {
	if s == nil || s.Applications == nil {
		return nil, errors.New("application repository is required")
	}
	switch status {
	case "", domain.StatusPending, domain.StatusApproved, domain.StatusRejected:
	default:
		return nil, domain.NewValidationError(domain.Violation{Field: "status", Message: fmt.Sprintf("unknown status %q", status)})
	}
	filter := domain.ApplicationFilter{Status: status}
	landlordID = strings.TrimSpace(landlordID)
	if landlordID != "" {
		if s.Properties == nil {
			return nil, errors.New("property repository is required")
		}
		properties, err := s.Properties.List(ctx, domain.PropertyFilter{LandlordID: landlordID})
		if err != nil {
			return nil, fmt.Errorf("list properties: %w", err)
		}
		filter.Scoped = true
		for _, p := range properties {
			filter.PropertyIDs = append(filter.PropertyIDs, p.ID)
		}
	}
	return s.Applications.List(ctx, filter)
}

// ProofStatus reports whether renterID's recorded application was approved
// for propertyID.
func (s *ApplicationService) ProofStatus(ctx context.Context, renterID, propertyID string) (domain.ProofStatus, error) {
	if s == nil || s.Applications == nil {
		return domain.ProofStatus{}, errors.New("application repository is required")
	}
	out := domain.ProofStatus{PropertyID: strings.TrimSpace(propertyID), RenterID: strings.TrimSpace(renterID)}
	verr := &domain.ValidationError{}
	if out.RenterID == "" {
		verr.Add("renterId", "is required")
	}
	if out.PropertyID == "" {
		verr.Add("propertyId", "is required")
	}
	if err := verr.OrNil(); err != nil {
		return domain.ProofStatus{}, err
	}
	app, err := s.Applications.Get(ctx, out.RenterID)
	if err != nil {
		return domain.ProofStatus{}, err
	}
	if app != nil && app.PropertyID == out.PropertyID && app.Status == domain.StatusApproved {
		verified := app.UpdatedAt
		out.HasVerifiedProof = true
		out.LastVerified = &verified
	}
	return out, nil
}

// DecisionAudit verifies and returns the decision stream.
func (s *ApplicationService) DecisionAudit(ctx context.Context) (domain.AuditChainStatus, []domain.AuditEvent, error) {
	if s == nil || s.Audit == nil {
		return domain.AuditChainStatus{}, nil, domain.ErrNotFound
	}
	return auditTrail(ctx, s.Audit, domain.AuditStreamDecisions)
}

// property loads the listing an application targets. Unknown or unlisted
// properties fail before any proof is checked.
func (s *ApplicationService) property(ctx context.Context, id string) (domain.Property, error) {
	if s.Properties == nil {
		return domain.Property{}, errors.New("property repository is required")
	}
	p, err := s.Properties.Get(ctx, id)
	if err != nil {
		return domain.Property{}, fmt.Errorf("load property %s: %w", id, err)
	}
	if p == nil {
		return domain.Property{}, fmt.Errorf("property %s: %w", id, domain.ErrNotFound)
	}
	if !p.IsAvailable {
		return domain.Property{}, domain.NewValidationError(domain.Violation{Field: "propertyId", Message: "is not available"})
	}
	return *p, nil
}

// fetchKeys resolves both circuits before any check runs so a key outage
// fails the request without a partial decision.
func (s *ApplicationService) fetchKeys(ctx context.Context, specs []claimSpec) ([]domain.IssuerKeys, error) {
	keys := make([]domain.IssuerKeys, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	for i := range specs {
		g.Go(func() error {
			k, err := s.Proofs.Keys.Get(gctx, specs[i].ref)
			if err != nil {
				return fmt.Errorf("verification key %s: %w", specs[i].ref.Key(), err)
			}
			keys[i] = k
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return keys, nil
}

// runChecks schedules the four independent checks of one claim. None of
// them short-circuits another.
func (s *ApplicationService) runChecks(ctx context.Context, g *errgroup.Group, now time.Time, spec claimSpec, keys domain.IssuerKeys, out *claimOutcome) {
	att := spec.sub.Attestation
	metrics := metricsOrNop(s.Metrics)

	g.Go(func() error {
		threshold := keys.Circuit.Threshold
		if spec.threshold != nil {
			threshold = *spec.threshold
		}
		v, err := s.Proofs.VerifyClaimAt(keys, spec.sub.Proof, spec.sub.PublicSignals, threshold)
		if err != nil {
			out.proofErr = err
			return nil
		}
		out.proof = v
		out.commitOK = CommitmentSignal(spec.sub.PublicSignals) == att.Commitment
		return nil
	})
	g.Go(func() error {
		if att.Issuer != spec.ref.Issuer {
			out.sigReason = domain.ReasonIssuerMismatch
			return nil
		}
		err := s.Signatures.Verify(keys.SigningPublicKey, att.SignedPayload(), spec.sub.Signature)
		switch {
		case err == nil:
			out.sigOK = true
		case errors.Is(err, domain.ErrSignatureInvalid):
			out.sigReason = domain.ReasonSignatureInvalid
		default:
			s.Logger.Warn().Err(err).Str("issuer", att.Issuer).Msg("signature check failed")
			out.sigReason = domain.ReasonSignatureInvalid
		}
		return nil
	})
	g.Go(func() error {
		out.notExpired = !att.ExpiredAt(now)
		return nil
	})
	g.Go(func() error {
		revoked, err := s.Revocations.IsRevoked(ctx, att.ID, att.Issuer)
		switch {
		case err != nil:
			out.revErr = err
			metrics.ObserveRevocationLookup(outcomeError)
		case revoked:
			metrics.ObserveRevocationLookup("revoked")
		default:
			out.notRevoked = true
			metrics.ObserveRevocationLookup("clear")
		}
		return nil
	})
}

func (o claimOutcome) checks() domain.ClaimChecks {
	c := domain.ClaimChecks{
		ProofValid:     o.proof.Valid() && o.commitOK,
		SignatureValid: o.sigOK,
		NotExpired:     o.notExpired,
		NotRevoked:     o.notRevoked,
		PolicyAllowed:  true,
	}
	c.Reasons = append(c.Reasons, o.proof.Reasons()...)
	if o.proof.PairingValid && !o.commitOK {
		c.Reasons = append(c.Reasons, domain.ReasonCommitmentMismatch)
	}
	if o.sigReason != "" {
		c.Reasons = append(c.Reasons, o.sigReason)
	}
	if o.revErr != nil {
		c.Reasons = append(c.Reasons, domain.ReasonRevocationUnverifiable)
		c.Retryable = true
	}
	return c
}

// applyPolicy lets the admission policy deny a claim. It cannot turn a
// failed check into a pass.
func (s *ApplicationService) applyPolicy(ctx context.Context, now time.Time, spec claimSpec, checks *domain.ClaimChecks) error {
	if s.Policy == nil {
		return nil
	}
	att := spec.sub.Attestation
	input := domain.PolicyInput{
		ClaimType:      spec.claim,
		Issuer:         att.Issuer,
		ExpectedIssuer: spec.ref.Issuer,
		Checks: domain.PolicyChecks{
			ProofValid:     checks.ProofValid,
			SignatureValid: checks.SignatureValid,
			NotExpired:     checks.NotExpired,
			NotRevoked:     checks.NotRevoked,
		},
		Attestation: domain.PolicyAttestation{
			ID:           att.ID,
			IssuedAtUnix: att.IssuedAt.Unix(),
			ExpiresAt:    att.ExpiresAt.Unix(),
		},
		NowUnix: now.Unix(),
	}
	eval, err := s.Policy.Evaluate(ctx, input)
	if err != nil {
		return fmt.Errorf("evaluate admission policy: %w", err)
	}
	if !eval.Result.Allow {
		checks.PolicyAllowed = false
		checks.Reasons = append(checks.Reasons, policyDenyReasons(eval.Result)...)
	}
	return nil
}

func validateApplication(renterID string, specs []claimSpec) error {
	verr := &domain.ValidationError{}
	if renterID == "" {
		verr.Add("renterId", "is required")
	}
	for _, spec := range specs {
		sub := spec.sub
		att := sub.Attestation
		prefix := spec.field + "."
		if sub.Proof.Protocol == "" && len(sub.Proof.PiA) == 0 {
			verr.Add(prefix+"proof", "is required")
		}
		if len(sub.PublicSignals) == 0 {
			verr.Add(prefix+"publicSignals", "is required")
		}
		if strings.TrimSpace(sub.Signature) == "" {
			verr.Add(prefix+"signature", "is required")
		}
		if att.ID == "" {
			verr.Add(prefix+"attestation.id", "is required")
		}
		if att.Issuer == "" {
			verr.Add(prefix+"attestation.issuer", "is required")
		}
		if att.ClaimType != spec.claim {
			verr.Add(prefix+"attestation.claimType", fmt.Sprintf("must be %q", spec.claim))
		}
		if att.Commitment == "" {
			verr.Add(prefix+"attestation.commitment", "is required")
		}
		if att.ExpiresAt.IsZero() {
			verr.Add(prefix+"attestation.expiresAt", "is required")
		}
	}
	return verr.OrNil()
}

func (s *ApplicationService) ready() error {
	switch {
	case s == nil:
		return errors.New("application service is nil")
	case s.Proofs == nil || s.Proofs.Keys == nil:
		return errors.New("proof verifier is required")
	case s.Signatures == nil:
		return errors.New("signature verifier is required")
	case s.Revocations == nil:
		return errors.New("revocation checker is required")
	case s.Applications == nil:
		return errors.New("application repository is required")
	}
	return nil
}

func (s *ApplicationService) decisions() DecisionEngine {
	if s.Decisions == nil {
		return &DecisionEngineV0{}
	}
	return s.Decisions
}

func (s *ApplicationService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
