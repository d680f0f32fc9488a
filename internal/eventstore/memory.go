package eventstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iff-guardian/hostguard/internal/domain"
)

// MemoryStore is a thread-safe in-process Store, used by tests.
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[string]*domain.SecurityEvent
	idByUnique map[string]string
	order      []string // insertion order, for stable tie-breaks
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]*domain.SecurityEvent),
		idByUnique: make(map[string]string),
	}
}

func (s *MemoryStore) Add(_ context.Context, event *domain.SecurityEvent) (string, error) {
	if err := event.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.idByUnique[event.Original.UniqueID]; ok {
		return id, nil
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	cp := *event
	s.byID[event.ID] = &cp
	s.idByUnique[event.Original.UniqueID] = event.ID
	s.order = append(s.order, event.ID)
	return event.ID, nil
}

func (s *MemoryStore) Update(_ context.Context, event *domain.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[event.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *event
	s.byID[event.ID] = &cp
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*domain.SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func matches(e *domain.SecurityEvent, f domain.EventFilter) bool {
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.RiskLevel != "" && e.RiskLevel != f.RiskLevel {
		return false
	}
	if f.Host != "" && e.Original.Host != f.Host {
		return false
	}
	if f.User != "" && e.Original.User != f.User {
		return false
	}
	if !f.FromTime.IsZero() && e.Original.Time.Before(f.FromTime) {
		return false
	}
	if !f.ToTime.IsZero() && e.Original.Time.After(f.ToTime) {
		return false
	}
	if f.HasCorrelation != nil && e.IsCorrelationBased != *f.HasCorrelation {
		return false
	}
	return true
}

// filtered returns events matching f ordered by original.time DESC, ties
// broken by insertion order (earlier insert first) via a stable sort over
// the insertion-ordered slice.
func (s *MemoryStore) filtered(f domain.EventFilter) []*domain.SecurityEvent {
	out := make([]*domain.SecurityEvent, 0, len(s.order))
	for _, id := range s.order {
		e := s.byID[id]
		if e == nil || !matches(e, f) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Original.Time.After(out[j].Original.Time)
	})
	return out
}

func (s *MemoryStore) Get(_ context.Context, page, pageSize int, filter domain.EventFilter) ([]domain.SecurityEvent, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.filtered(filter)
	start := (page - 1) * pageSize
	if start >= len(all) {
		return []domain.SecurityEvent{}, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	out := make([]domain.SecurityEvent, 0, end-start)
	for _, e := range all[start:end] {
		out = append(out, *e)
	}
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context, filter domain.EventFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filtered(filter)), nil
}

func (s *MemoryStore) RecentByHost(_ context.Context, host string, since time.Time, limit int) ([]domain.SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.filtered(domain.EventFilter{Host: host, FromTime: since})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]domain.SecurityEvent, 0, len(all))
	for _, e := range all {
		out = append(out, *e)
	}
	return out, nil
}

func (s *MemoryStore) RecentByUser(_ context.Context, user string, since time.Time, limit int) ([]domain.SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.filtered(domain.EventFilter{User: user, FromTime: since})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]domain.SecurityEvent, 0, len(all))
	for _, e := range all {
		out = append(out, *e)
	}
	return out, nil
}
