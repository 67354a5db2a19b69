package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"zkrent/internal/domain"
)

var ErrCapacityExceeded = errors.New("rate limiter capacity exceeded")

type MemoryLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string]*window
	maxKeys int
}

type window struct {
	count int
	end   time.Time
}

type MemoryConfig struct {
	Now     func() time.Time
	MaxKeys int
}

func NewMemoryLimiter(cfg MemoryConfig) *MemoryLimiter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 10000
	}
	return &MemoryLimiter{
		now:     cfg.Now,
		windows: make(map[string]*window),
		maxKeys: cfg.MaxKeys,
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int, size time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if ok && !now.Before(w.end) {
		delete(m.windows, key)
		ok = false
	}
	if !ok {
		if len(m.windows) >= m.maxKeys {
			m.sweep(now)
		}
		if len(m.windows) >= m.maxKeys {
			return domain.RateLimitDecision{}, ErrCapacityExceeded
		}
		w = &window{end: now.Add(size)}
		m.windows[key] = w
	}

	if w.count >= limit {
		return domain.RateLimitDecision{Allowed: false, Limit: limit, ResetAt: w.end}, nil
	}
	w.count++
	return domain.RateLimitDecision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - w.count,
		ResetAt:   w.end,
	}, nil
}

// Len reports tracked keys.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

func (m *MemoryLimiter) sweep(now time.Time) {
	for key, w := range m.windows {
		if !now.Before(w.end) {
			delete(m.windows, key)
		}
	}
}
