package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"zkrent/internal/domain"
)

// Memory is an in-process subject directory standing in for the issuer's
// HR or credit bureau system.
type Memory struct {
	mu       sync.RWMutex
	subjects map[string]domain.SubjectFacts
}

func NewMemory(facts ...domain.SubjectFacts) *Memory {
	m := &Memory{subjects: make(map[string]domain.SubjectFacts, len(facts))}
	for _, f := range facts {
		m.Put(f)
	}
	return m
}

func (m *Memory) Put(f domain.SubjectFacts) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects[f.SubjectID] = f
}

func (m *Memory) Lookup(ctx context.Context, subjectID string) (domain.SubjectFacts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.subjects[subjectID]
	if !ok {
		return domain.SubjectFacts{}, fmt.Errorf("subject %s: %w", subjectID, domain.ErrNotFound)
	}
	return f, nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subjects)
}

// LoadFile reads a JSON array of subject facts.
func LoadFile(path string) (*Memory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read subjects file: %w", err)
	}
	var facts []domain.SubjectFacts
	if err := json.Unmarshal(raw, &facts); err != nil {
		return nil, fmt.Errorf("decode subjects file: %w", err)
	}
	for i, f := range facts {
		if strings.TrimSpace(f.SubjectID) == "" {
			return nil, fmt.Errorf("subjects file entry %d: subjectId is required", i)
		}
		if (f.Income != nil && *f.Income < 0) || (f.CreditScore != nil && *f.CreditScore < 0) {
			return nil, fmt.Errorf("subjects file entry %d: values must not be negative", i)
		}
	}
	return NewMemory(facts...), nil
}

// Load returns the directory at path, or the built-in fixtures when path is
// empty.
func Load(path string) (*Memory, error) {
	if path == "" {
		return NewMemory(Fixtures()...), nil
	}
	return LoadFile(path)
}

func Fixtures() []domain.SubjectFacts {
	v := func(n int64) *int64 { return &n }
	return []domain.SubjectFacts{
		{SubjectID: "renter-001", Income: v(4200), Currency: "EUR", CreditScore: v(742)},
		{SubjectID: "renter-002", Income: v(3000), Currency: "EUR", CreditScore: v(700)},
		{SubjectID: "renter-003", Income: v(2999), Currency: "EUR", CreditScore: v(699)},
		{SubjectID: "renter-004", Income: v(75000), Currency: "EUR", CreditScore: v(810)},
	}
}
