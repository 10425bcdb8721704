package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"veridoc/internal/registry"
	id "veridoc/pkg/domain"
	"veridoc/pkg/platform/sentinel"
)

// InMemoryStore implements registry.Store with a mutex. The lock makes
// IncrementDocument's read-modify-write atomic, matching what the Postgres
// store gets from a single UPDATE.
type InMemoryStore struct {
	mu           sync.RWMutex
	documents    map[string]*registry.DocumentHashRecord
	transactions map[string]*registry.TransactionHashRecord
	reports      map[id.ReportID]*registry.ForgeryReport
	reportOrder  []id.ReportID
	clock        func() time.Time
}

type Option func(*InMemoryStore)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *InMemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{
		documents:    make(map[string]*registry.DocumentHashRecord),
		transactions: make(map[string]*registry.TransactionHashRecord),
		reports:      make(map[id.ReportID]*registry.ForgeryReport),
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) FindDocument(_ context.Context, documentHash string) (*registry.DocumentHashRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.documents[documentHash]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentHash, sentinel.ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (s *InMemoryStore) CreateDocument(_ context.Context, record *registry.DocumentHashRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[record.DocumentHash]; ok {
		return fmt.Errorf("document %s: %w", record.DocumentHash, sentinel.ErrConflict)
	}
	cp := *record
	s.documents[record.DocumentHash] = &cp
	return nil
}

func (s *InMemoryStore) IncrementDocument(_ context.Context, documentHash string, submitter id.UserID, submission id.SubmissionID) (*registry.DocumentHashRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.documents[documentHash]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentHash, sentinel.ErrNotFound)
	}
	rec.SubmissionCount++
	rec.LastSubmitter = submitter
	rec.LastSubmissionID = submission
	rec.Status = registry.StatusResubmitted
	rec.UpdatedAt = s.clock()
	cp := *rec
	return &cp, nil
}

func (s *InMemoryStore) FindTransaction(_ context.Context, transactionHash string) (*registry.TransactionHashRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.transactions[transactionHash]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", transactionHash, sentinel.ErrNotFound)
	}
	cp := *rec
	cp.DocumentHashes = append([]string{}, rec.DocumentHashes...)
	return &cp, nil
}

func (s *InMemoryStore) CreateTransaction(_ context.Context, record *registry.TransactionHashRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[record.TransactionHash]; ok {
		return fmt.Errorf("transaction %s: %w", record.TransactionHash, sentinel.ErrConflict)
	}
	cp := *record
	cp.DocumentHashes = append([]string{}, record.DocumentHashes...)
	s.transactions[record.TransactionHash] = &cp
	return nil
}

func (s *InMemoryStore) CreateReport(_ context.Context, report *registry.ForgeryReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *report
	s.reports[report.ID] = &cp
	s.reportOrder = append(s.reportOrder, report.ID)
	return nil
}

func (s *InMemoryStore) FindReport(_ context.Context, reportID id.ReportID) (*registry.ForgeryReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rep, ok := s.reports[reportID]
	if !ok {
		return nil, fmt.Errorf("report %s: %w", reportID, sentinel.ErrNotFound)
	}
	cp := *rep
	return &cp, nil
}

func (s *InMemoryStore) ResolveReport(_ context.Context, reportID id.ReportID, reviewer id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rep, ok := s.reports[reportID]
	if !ok {
		return fmt.Errorf("report %s: %w", reportID, sentinel.ErrNotFound)
	}
	if rep.Resolved {
		return nil
	}
	now := s.clock()
	rep.Resolved = true
	rep.ResolvedBy = reviewer
	rep.ResolvedAt = &now
	return nil
}

func (s *InMemoryStore) ListOpenReports(_ context.Context) ([]*registry.ForgeryReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*registry.ForgeryReport
	for _, rid := range s.reportOrder {
		if rep := s.reports[rid]; !rep.Resolved {
			cp := *rep
			out = append(out, &cp)
		}
	}
	return out, nil
}
