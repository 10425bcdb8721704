package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/suite"

	"veridoc/internal/cryptocore"
	"veridoc/internal/registry"
	registryStore "veridoc/internal/registry/store"
	id "veridoc/pkg/domain"
	dErrors "veridoc/pkg/domain-errors"
	"veridoc/pkg/platform/audit"
	auditMemory "veridoc/pkg/platform/audit/store/memory"
	"veridoc/pkg/platform/middleware/device"
)

// The registry service carries the classification matrix (first-seen,
// legitimate resubmission, cross-user forgery, transaction replay) which is
// exercised here against the in-memory store.

type RegistryServiceSuite struct {
	suite.Suite
	store   *registryStore.InMemoryStore
	sink    *auditMemory.InMemoryStore
	service *Service
}

func TestRegistryServiceSuite(t *testing.T) {
	suite.Run(t, new(RegistryServiceSuite))
}

func (s *RegistryServiceSuite) SetupTest() {
	s.store = registryStore.NewInMemoryStore()
	s.sink = auditMemory.NewInMemoryStore()

	var err error
	s.service, err = New(s.store,
		WithAuditPublisher(audit.NewStorePublisher(s.sink)),
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }),
	)
	s.Require().NoError(err)
}

func (s *RegistryServiceSuite) meta() registry.FileMeta {
	return registry.FileMeta{
		Filename:       "passport.jpg",
		Size:           204800,
		MimeType:       "image/jpeg",
		ContentAddress: "QmExampleAddress",
	}
}

func (s *RegistryServiceSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil)
		s.Error(err)
		s.Contains(err.Error(), "registry store is required")
	})
}

func (s *RegistryServiceSuite) TestRecordDocument_AuditCarriesRequestContext() {
	ctx := device.WithDeviceName(context.Background(), "Firefox on Linux")
	ctx = context.WithValue(ctx, chimw.RequestIDKey, "veridoc-host/abc123-000001")

	hash := cryptocore.Hash([]byte("correlated document")).Hex()
	_, err := s.service.RecordDocument(ctx, hash, id.NewUserID(), id.NewSubmissionID(), s.meta())
	s.Require().NoError(err)

	events := s.sink.ByAction(audit.ActionDocumentRegistered)
	s.Require().Len(events, 1)
	s.Equal("veridoc-host/abc123-000001", events[0].RequestID)
	s.Equal("Firefox on Linux", events[0].Device)
}

func (s *RegistryServiceSuite) TestRecordDocument_Classification() {
	ctx := context.Background()
	hash := cryptocore.Hash([]byte("document bytes X")).Hex()
	alice := id.NewUserID()
	bob := id.NewUserID()

	s.Run("first sighting registers with count 1", func() {
		res, err := s.service.RecordDocument(ctx, hash, alice, id.NewSubmissionID(), s.meta())
		s.Require().NoError(err)
		s.False(res.Duplicate)
		s.False(res.Forgery)
		s.Equal(1, res.SubmissionCount)
		s.Equal(registry.StatusRegistered, res.Record.Status)
		s.Equal(alice, res.Record.FirstSubmitter)
	})

	s.Run("resubmission by same submitter is duplicate not forgery", func() {
		res, err := s.service.RecordDocument(ctx, hash, alice, id.NewSubmissionID(), s.meta())
		s.Require().NoError(err)
		s.True(res.Duplicate)
		s.False(res.Forgery)
		s.Equal(registry.SeverityLow, res.Severity)
		s.Equal(2, res.SubmissionCount)
		s.Equal(registry.StatusResubmitted, res.Record.Status)
		s.Empty(s.sink.ByAction(audit.ActionForgeryDetected))
	})

	s.Run("resubmission by different submitter is forgery", func() {
		res, err := s.service.RecordDocument(ctx, hash, bob, id.NewSubmissionID(), s.meta())
		s.Require().NoError(err)
		s.True(res.Duplicate)
		s.True(res.Forgery)
		s.Equal(registry.SeverityHigh, res.Severity)
		s.Equal(3, res.SubmissionCount)
		s.False(res.ReportID.IsNil())

		reports, err := s.store.ListOpenReports(ctx)
		s.Require().NoError(err)
		s.Require().Len(reports, 1)
		s.Equal(registry.KindDuplicateSubmission, reports[0].Kind)
		s.Equal(registry.SeverityHigh, reports[0].Severity)
		s.Equal(alice, reports[0].OriginalSubmitter)
		s.Equal(bob, reports[0].SuspiciousSubmitter)

		var ev registry.DocumentEvidence
		s.Require().NoError(json.Unmarshal(reports[0].Evidence, &ev))
		s.Equal(hash, ev.DocumentHash)
		s.Equal(3, ev.SubmissionCount)

		s.Len(s.sink.ByAction(audit.ActionForgeryDetected), 1)
	})

	s.Run("first submitter keeps ownership after a forgery attempt", func() {
		res, err := s.service.RecordDocument(ctx, hash, alice, id.NewSubmissionID(), s.meta())
		s.Require().NoError(err)
		s.True(res.Duplicate)
		s.False(res.Forgery)
	})
}

func (s *RegistryServiceSuite) TestRecordDocument_Validation() {
	ctx := context.Background()

	s.Run("missing hash", func() {
		_, err := s.service.RecordDocument(ctx, "", id.NewUserID(), id.NewSubmissionID(), s.meta())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("nil submitter", func() {
		_, err := s.service.RecordDocument(ctx, "abc", id.UserID{}, id.NewSubmissionID(), s.meta())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("nil submission", func() {
		_, err := s.service.RecordDocument(ctx, "abc", id.NewUserID(), id.SubmissionID{}, s.meta())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *RegistryServiceSuite) TestRecordDocument_ConcurrentResubmissions() {
	ctx := context.Background()
	hash := cryptocore.Hash([]byte("contended document")).Hex()
	alice := id.NewUserID()

	_, err := s.service.RecordDocument(ctx, hash, alice, id.NewSubmissionID(), s.meta())
	s.Require().NoError(err)

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			_, err := s.service.RecordDocument(ctx, hash, alice, id.NewSubmissionID(), s.meta())
			s.NoError(err)
		}()
	}
	wg.Wait()

	rec, err := s.store.FindDocument(ctx, hash)
	s.Require().NoError(err)
	s.Equal(1+workers, rec.SubmissionCount)
}

func (s *RegistryServiceSuite) TestRecordTransaction_ContentBinding() {
	ctx := context.Background()
	submitter := id.NewUserID()
	d1 := cryptocore.Hash([]byte("d1")).Hex()
	d2 := cryptocore.Hash([]byte("d2")).Hex()
	d3 := cryptocore.Hash([]byte("d3")).Hex()
	txHash := cryptocore.Hash([]byte("tx-1")).Hex()

	s.Run("first binding succeeds", func() {
		res, err := s.service.RecordTransaction(ctx, txHash, id.NewSubmissionID(), []string{d1, d2}, submitter)
		s.Require().NoError(err)
		s.True(res.Valid)
		s.False(res.Exists)
	})

	s.Run("same set reordered matches", func() {
		res, err := s.service.RecordTransaction(ctx, txHash, id.NewSubmissionID(), []string{d2, d1}, submitter)
		s.Require().NoError(err)
		s.True(res.Valid)
		s.True(res.Exists)
		s.True(res.ContentMatches)
		s.False(res.ForgeryDetected)
	})

	s.Run("different set is a critical forgery", func() {
		res, err := s.service.RecordTransaction(ctx, txHash, id.NewSubmissionID(), []string{d1, d3}, id.NewUserID())
		s.Require().NoError(err)
		s.False(res.Valid)
		s.True(res.Exists)
		s.False(res.ContentMatches)
		s.True(res.ForgeryDetected)

		report, err := s.store.FindReport(ctx, res.ReportID)
		s.Require().NoError(err)
		s.Equal(registry.KindContentMismatch, report.Kind)
		s.Equal(registry.SeverityCritical, report.Severity)

		var ev registry.TransactionEvidence
		s.Require().NoError(json.Unmarshal(report.Evidence, &ev))
		s.Equal(txHash, ev.TransactionHash)
		s.NotEqual(ev.StoredDigest, ev.ClaimedDigest)
	})
}

func (s *RegistryServiceSuite) TestRecordTransaction_Validation() {
	ctx := context.Background()

	_, err := s.service.RecordTransaction(ctx, "", id.NewSubmissionID(), []string{"d"}, id.NewUserID())
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = s.service.RecordTransaction(ctx, "tx", id.NewSubmissionID(), nil, id.NewUserID())
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *RegistryServiceSuite) TestResolveReport() {
	ctx := context.Background()
	hash := cryptocore.Hash([]byte("resolved doc")).Hex()
	alice, bob := id.NewUserID(), id.NewUserID()
	admin := id.NewUserID()

	_, err := s.service.RecordDocument(ctx, hash, alice, id.NewSubmissionID(), s.meta())
	s.Require().NoError(err)
	res, err := s.service.RecordDocument(ctx, hash, bob, id.NewSubmissionID(), s.meta())
	s.Require().NoError(err)
	s.Require().True(res.Forgery)

	s.Run("resolve flips the flag once", func() {
		s.Require().NoError(s.service.ResolveReport(ctx, res.ReportID, admin))
		report, err := s.store.FindReport(ctx, res.ReportID)
		s.Require().NoError(err)
		s.True(report.Resolved)
		s.Equal(admin, report.ResolvedBy)

		open, err := s.service.ListOpenReports(ctx)
		s.Require().NoError(err)
		s.Empty(open)
	})

	s.Run("unknown report returns not found", func() {
		err := s.service.ResolveReport(ctx, id.NewReportID(), admin)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestContentDigest_OrderIndependent(t *testing.T) {
	a := ContentDigest([]string{"h1", "h2", "h3"})
	b := ContentDigest([]string{"h3", "h1", "h2"})
	c := ContentDigest([]string{"h1", "h2"})

	if a != b {
		t.Fatalf("digest should be order independent: %s != %s", a, b)
	}
	if a == c {
		t.Fatal("different sets must not collide")
	}
}
