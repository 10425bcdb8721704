package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"veridoc/internal/grants"
	id "veridoc/pkg/domain"
	"veridoc/pkg/platform/sentinel"
)

// InMemoryStore implements grants.Store behind a mutex. Consume holds the
// lock across check and increment, giving the same atomicity the Postgres
// store gets from its conditional UPDATE.
type InMemoryStore struct {
	mu      sync.RWMutex
	byToken map[string]*grants.AccessGrant
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byToken: make(map[string]*grants.AccessGrant)}
}

func (s *InMemoryStore) Create(_ context.Context, grant *grants.AccessGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byToken[grant.Token]; ok {
		return fmt.Errorf("grant token: %w", sentinel.ErrConflict)
	}
	cp := cloneGrant(grant)
	s.byToken[grant.Token] = cp
	return nil
}

func (s *InMemoryStore) FindByToken(_ context.Context, token string) (*grants.AccessGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	grant, ok := s.byToken[token]
	if !ok {
		return nil, fmt.Errorf("grant: %w", sentinel.ErrNotFound)
	}
	return cloneGrant(grant), nil
}

func (s *InMemoryStore) Consume(_ context.Context, token string, now time.Time) (*grants.AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	grant, ok := s.byToken[token]
	if !ok {
		return nil, fmt.Errorf("grant: %w", sentinel.ErrNotFound)
	}
	switch {
	case !grant.Active:
		return nil, fmt.Errorf("grant: %w", sentinel.ErrRevoked)
	case !now.Before(grant.ExpiresAt):
		return nil, fmt.Errorf("grant: %w", sentinel.ErrExpired)
	case grant.UsageCount >= grant.MaxUsage:
		return nil, fmt.Errorf("grant: %w", sentinel.ErrExhausted)
	}
	grant.UsageCount++
	return cloneGrant(grant), nil
}

func (s *InMemoryStore) Revoke(_ context.Context, token string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	grant, ok := s.byToken[token]
	if !ok {
		return fmt.Errorf("grant: %w", sentinel.ErrNotFound)
	}
	if !grant.Active {
		return nil
	}
	grant.Active = false
	grant.RevokedAt = &now
	return nil
}

func (s *InMemoryStore) ListBySubject(_ context.Context, subject id.UserID) ([]*grants.AccessGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*grants.AccessGrant
	for _, grant := range s.byToken {
		if grant.SubjectID == subject {
			out = append(out, cloneGrant(grant))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}

func cloneGrant(g *grants.AccessGrant) *grants.AccessGrant {
	cp := *g
	cp.Scope.DocumentIDs = append([]string{}, g.Scope.DocumentIDs...)
	cp.Scope.Capabilities = append([]grants.Capability{}, g.Scope.Capabilities...)
	if g.RevokedAt != nil {
		t := *g.RevokedAt
		cp.RevokedAt = &t
	}
	return &cp
}
