package rules

import (
	"context"
	"sync"

	"github.com/iff-guardian/hostguard/internal/domain"
)

// MemoryStore is a thread-safe in-process Store, used by tests.
type MemoryStore struct {
	mu    sync.RWMutex
	rules map[domain.RuleKey]domain.SecurityEventRule
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rules: make(map[domain.RuleKey]domain.SecurityEventRule)}
}

func (s *MemoryStore) Match(_ context.Context, channel string, eventID int) (*domain.SecurityEventRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[domain.RuleKey{Channel: channel, EventID: eventID}]
	if !ok || !r.Enabled {
		return nil, nil
	}
	cp := r
	return &cp, nil
}

func (s *MemoryStore) Create(_ context.Context, rule domain.SecurityEventRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.rules[rule.Key()]; ok && existing.Priority == rule.Priority {
		return domain.ErrRuleConflict
	}
	s.rules[rule.Key()] = rule
	return nil
}

func (s *MemoryStore) Update(_ context.Context, rule domain.SecurityEventRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[rule.Key()]; !ok {
		return domain.ErrNotFound
	}
	s.rules[rule.Key()] = rule
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key domain.RuleKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[key]; !ok {
		return domain.ErrNotFound
	}
	delete(s.rules, key)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]domain.SecurityEventRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SecurityEventRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	return out, nil
}
