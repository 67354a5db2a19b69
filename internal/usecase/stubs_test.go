package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"zkrent/internal/domain"
)

type stubKeySource struct {
	mu    sync.Mutex
	keys  map[string]domain.IssuerKeys
	err   error
	calls int
}

func (s *stubKeySource) Get(ctx context.Context, ref domain.CircuitRef) (domain.IssuerKeys, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return domain.IssuerKeys{}, s.err
	}
	keys, ok := s.keys[ref.Key()]
	if !ok {
		return domain.IssuerKeys{}, domain.ErrNotFound
	}
	return keys, nil
}

// stubEngine answers per verification key so each claim can be steered.
type stubEngine struct {
	mu      sync.Mutex
	results map[string]bool
	errs    map[string]error
	calls   int
}

func (e *stubEngine) Verify(vk []byte, proof domain.Proof, signals domain.PublicSignals) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if err := e.errs[string(vk)]; err != nil {
		return false, err
	}
	return e.results[string(vk)], nil
}

type stubSignatureVerifier struct {
	mu      sync.Mutex
	invalid map[string]bool
	calls   int
}

func (v *stubSignatureVerifier) Verify(publicKeyPEM string, payload any, signature string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if v.invalid[signature] {
		return domain.ErrSignatureInvalid
	}
	return nil
}

type stubRevocationChecker struct {
	mu      sync.Mutex
	revoked map[string]bool
	err     error
	calls   int
}

func (c *stubRevocationChecker) IsRevoked(ctx context.Context, attestationID, issuer string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return false, c.err
	}
	return c.revoked[attestationID], nil
}

type stubApplicationRepo struct {
	mu    sync.Mutex
	apps  map[string]domain.RentalApplication
	calls int
}

func (r *stubApplicationRepo) Upsert(ctx context.Context, app domain.RentalApplication) (domain.RentalApplication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.apps == nil {
		r.apps = make(map[string]domain.RentalApplication)
	}
	if prev, ok := r.apps[app.RenterID]; ok {
		app.CreatedAt = prev.CreatedAt
	}
	r.apps[app.RenterID] = app
	return app, nil
}

func (r *stubApplicationRepo) Get(ctx context.Context, renterID string) (*domain.RentalApplication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.apps[renterID]
	if !ok {
		return nil, nil
	}
	return &app, nil
}

func (r *stubApplicationRepo) List(ctx context.Context, filter domain.ApplicationFilter) ([]domain.RentalApplication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.RentalApplication
	for _, app := range r.apps {
		if filter.Status != "" && app.Status != filter.Status {
			continue
		}
		if filter.Scoped && !slices.Contains(filter.PropertyIDs, app.PropertyID) {
			continue
		}
		out = append(out, app)
	}
	slices.SortFunc(out, func(a, b domain.RentalApplication) int { return strings.Compare(a.RenterID, b.RenterID) })
	return out, nil
}

type stubPropertyRepo struct {
	mu    sync.Mutex
	props map[string]domain.Property
	seq   int
}

func (r *stubPropertyRepo) Create(ctx context.Context, p domain.Property) (domain.Property, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.props == nil {
		r.props = make(map[string]domain.Property)
	}
	if p.ID == "" {
		r.seq++
		p.ID = fmt.Sprintf("prop-%d", r.seq)
	}
	r.props[p.ID] = p
	return p, nil
}

func (r *stubPropertyRepo) Get(ctx context.Context, id string) (*domain.Property, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.props[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *stubPropertyRepo) List(ctx context.Context, filter domain.PropertyFilter) ([]domain.Property, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Property
	for _, p := range r.props {
		if filter.LandlordID != "" && p.LandlordID != filter.LandlordID {
			continue
		}
		if filter.AvailableOnly && !p.IsAvailable {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Property) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *stubPropertyRepo) Update(ctx context.Context, p domain.Property) (domain.Property, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.props[p.ID]; !ok {
		return domain.Property{}, domain.ErrNotFound
	}
	r.props[p.ID] = p
	return p, nil
}

func (r *stubPropertyRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.props[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.props, id)
	return nil
}

type stubPolicy struct {
	deny map[domain.ClaimType][]domain.PolicyDeny
	err  error
}

func (p *stubPolicy) Evaluate(ctx context.Context, input domain.PolicyInput) (domain.PolicyEvaluation, error) {
	if p.err != nil {
		return domain.PolicyEvaluation{}, p.err
	}
	deny := p.deny[input.ClaimType]
	return domain.PolicyEvaluation{
		PolicyHash: "test",
		Result:     domain.PolicyResult{Allow: len(deny) == 0, Deny: deny},
	}, nil
}

type stubPublisher struct {
	mu     sync.Mutex
	events []domain.DecisionEvent
}

func (p *stubPublisher) PublishDecision(ctx context.Context, event domain.DecisionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

type stubRevocationRepo struct {
	mu      sync.Mutex
	calls   int
	last    domain.Revocation
	revoked map[string]domain.Revocation
	err     error
}

func (r *stubRevocationRepo) Revoke(ctx context.Context, rev domain.Revocation) (domain.Revocation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.last = rev
	if r.err != nil {
		return domain.Revocation{}, false, r.err
	}
	if r.revoked == nil {
		r.revoked = make(map[string]domain.Revocation)
	}
	key := rev.Issuer + "/" + rev.AttestationID
	if existing, ok := r.revoked[key]; ok {
		return existing, false, nil
	}
	r.revoked[key] = rev
	return rev, true, nil
}

func (r *stubRevocationRepo) IsRevoked(ctx context.Context, attestationID, issuer string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.revoked[issuer+"/"+attestationID]
	return ok, nil
}

type stubEpochRepo struct {
	epoch int64
	calls int
}

func (r *stubEpochRepo) GetEpoch(ctx context.Context, issuer string) (int64, error) {
	return r.epoch, nil
}

func (r *stubEpochRepo) BumpEpoch(ctx context.Context, issuer string) (int64, error) {
	r.calls++
	r.epoch++
	return r.epoch, nil
}

// memAuditLog links events the same way the database repository does.
type memAuditLog struct {
	events []domain.AuditEvent
	err    error
}

func (l *memAuditLog) Append(ctx context.Context, stream string, eventType domain.AuditEventType, subject string, payload any) (domain.AuditEvent, error) {
	if l.err != nil {
		return domain.AuditEvent{}, l.err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	seq, prev := int64(1), domain.ZeroAuditHash
	for _, e := range l.events {
		if e.Stream == stream {
			seq, prev = e.Seq+1, e.Hash
		}
	}
	event := domain.AuditEvent{
		ID:          fmt.Sprintf("evt-%d", len(l.events)+1),
		Stream:      stream,
		Seq:         seq,
		Type:        eventType,
		Subject:     subject,
		Payload:     raw,
		PayloadHash: domain.SHA256Hex(raw),
		PrevHash:    prev,
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, len(l.events), 0, time.UTC),
	}
	event.Hash = event.ChainHash()
	l.events = append(l.events, event)
	return event, nil
}

func (l *memAuditLog) List(ctx context.Context, stream string) ([]domain.AuditEvent, error) {
	var out []domain.AuditEvent
	for _, e := range l.events {
		if e.Stream == stream {
			out = append(out, e)
		}
	}
	return out, nil
}
