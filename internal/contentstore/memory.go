package contentstore

import (
	"context"
	"sync"

	"veridoc/pkg/platform/sentinel"
)

// InMemoryStore keeps blobs in a map. For tests and single-node setups.
type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[Address][]byte
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{blobs: make(map[Address][]byte)}
}

func (s *InMemoryStore) Put(_ context.Context, data []byte) (Address, error) {
	addr := AddressOf(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[addr]; !ok {
		cp := make([]byte, len(data))
		copy(cp, data)
		s.blobs[addr] = cp
	}
	return addr, nil
}

func (s *InMemoryStore) Get(_ context.Context, addr Address) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[addr]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}
