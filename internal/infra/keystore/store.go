package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"zkrent/internal/domain"
)

// Fetcher loads issuer keys from their source of truth.
type Fetcher interface {
	Fetch(ctx context.Context, ref domain.CircuitRef) (domain.IssuerKeys, error)
}

// SharedCache is a second-level cache shared between verifier replicas.
type SharedCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Store resolves verification keys per issuer circuit: static registrations
// first, then the in-process cache, then the shared cache, then the fetcher.
// A zero TTL keeps fetched keys until restart.
type Store struct {
	fetcher Fetcher
	shared  SharedCache
	ttl     time.Duration
	logger  zerolog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	static  map[string]domain.IssuerKeys
	entries map[string]entry

	group singleflight.Group
}

type entry struct {
	keys      domain.IssuerKeys
	expiresAt time.Time
}

type Option func(*Store)

func WithSharedCache(c SharedCache) Option {
	return func(s *Store) { s.shared = c }
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func New(fetcher Fetcher, opts ...Option) *Store {
	s := &Store{
		fetcher: fetcher,
		logger:  zerolog.Nop(),
		now:     time.Now,
		static:  make(map[string]domain.IssuerKeys),
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register pins keys for a circuit hosted in the same process.
func (s *Store) Register(keys domain.IssuerKeys) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.static[keys.Ref().Key()] = keys
}

func (s *Store) Get(ctx context.Context, ref domain.CircuitRef) (domain.IssuerKeys, error) {
	if ref.Issuer == "" || ref.Circuit == "" {
		return domain.IssuerKeys{}, errors.New("circuit ref requires issuer and circuit")
	}
	key := ref.Key()
	if keys, ok := s.lookup(key); ok {
		return keys, nil
	}
	if s.fetcher == nil {
		return domain.IssuerKeys{}, fmt.Errorf("verification key %s: %w", key, domain.ErrNotFound)
	}

	v, err, shared := s.group.Do(key, func() (any, error) {
		return s.load(ctx, ref)
	})
	if err != nil {
		return domain.IssuerKeys{}, err
	}
	if shared {
		s.logger.Debug().Str("circuit", key).Msg("joined in-flight key fetch")
	}
	return v.(domain.IssuerKeys), nil
}

func (s *Store) lookup(key string) (domain.IssuerKeys, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if keys, ok := s.static[key]; ok {
		return keys, true
	}
	e, ok := s.entries[key]
	if !ok {
		return domain.IssuerKeys{}, false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		return domain.IssuerKeys{}, false
	}
	return e.keys, true
}

func (s *Store) load(ctx context.Context, ref domain.CircuitRef) (domain.IssuerKeys, error) {
	key := ref.Key()
	if keys, ok := s.fromShared(ctx, key); ok {
		s.remember(key, keys)
		return keys, nil
	}

	keys, err := s.fetcher.Fetch(ctx, ref)
	if err != nil {
		s.logger.Warn().Err(err).Str("circuit", key).Msg("verification key fetch failed")
		return domain.IssuerKeys{}, err
	}
	if keys.Metadata.ID != ref.Issuer || keys.Circuit.Name != ref.Circuit {
		return domain.IssuerKeys{}, fmt.Errorf("%w: %s served keys for %s", domain.ErrUpstreamUnavailable, key, keys.Ref().Key())
	}
	if len(keys.VerificationKey) == 0 {
		return domain.IssuerKeys{}, fmt.Errorf("%w: %s served no verification key", domain.ErrUpstreamUnavailable, key)
	}
	s.remember(key, keys)
	s.toShared(ctx, key, keys)
	s.logger.Info().Str("circuit", key).Msg("verification key cached")
	return keys, nil
}

func (s *Store) remember(key string, keys domain.IssuerKeys) {
	e := entry{keys: keys}
	if s.ttl > 0 {
		e.expiresAt = s.now().Add(s.ttl)
	}
	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
}

func sharedKey(key string) string {
	return "zkrent:vk:" + key
}

// Shared cache failures only cost a refetch, so they are logged and ignored.
func (s *Store) fromShared(ctx context.Context, key string) (domain.IssuerKeys, bool) {
	if s.shared == nil {
		return domain.IssuerKeys{}, false
	}
	raw, ok, err := s.shared.Get(ctx, sharedKey(key))
	if err != nil {
		s.logger.Warn().Err(err).Str("circuit", key).Msg("shared key cache read failed")
		return domain.IssuerKeys{}, false
	}
	if !ok {
		return domain.IssuerKeys{}, false
	}
	var keys domain.IssuerKeys
	if err := json.Unmarshal(raw, &keys); err != nil {
		s.logger.Warn().Err(err).Str("circuit", key).Msg("shared key cache entry corrupt")
		return domain.IssuerKeys{}, false
	}
	return keys, true
}

func (s *Store) toShared(ctx context.Context, key string, keys domain.IssuerKeys) {
	if s.shared == nil {
		return
	}
	raw, err := json.Marshal(keys)
	if err != nil {
		return
	}
	if err := s.shared.Set(ctx, sharedKey(key), raw, s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("circuit", key).Msg("shared key cache write failed")
	}
}
