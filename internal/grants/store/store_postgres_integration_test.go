//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"veridoc/internal/grants"
	"veridoc/internal/grants/store"
	id "veridoc/pkg/domain"
	"veridoc/pkg/platform/sentinel"
	"veridoc/pkg/testutil/containers"
)

type GrantsPostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestGrantsPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(GrantsPostgresSuite))
}

func (s *GrantsPostgresSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgresStore(s.postgres.DB)
}

func (s *GrantsPostgresSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "access_grants")
	s.Require().NoError(err)
}

func newTestGrant(maxUsage int) *grants.AccessGrant {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &grants.AccessGrant{
		ID:        id.NewGrantID(),
		Token:     "tok-" + uuid.NewString(),
		SubjectID: id.NewUserID(),
		GranteeID: "org-acme",
		Scope: grants.Scope{
			RecordRef:    "record-1",
			DocumentIDs:  []string{"doc-hash-1"},
			Capabilities: []grants.Capability{grants.CapabilityVerify, grants.CapabilityRead},
		},
		Purpose:   "employment screening",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
		MaxUsage:  maxUsage,
		Active:    true,
	}
}

func (s *GrantsPostgresSuite) TestCreateAndFind() {
	ctx := context.Background()
	grant := newTestGrant(5)

	s.Require().NoError(s.store.Create(ctx, grant))

	found, err := s.store.FindByToken(ctx, grant.Token)
	s.Require().NoError(err)
	s.Equal(grant.ID, found.ID)
	s.Equal(grant.SubjectID, found.SubjectID)
	s.Equal(grant.Scope, found.Scope)
	s.Equal(0, found.UsageCount)
	s.True(found.Active)

	err = s.store.Create(ctx, grant)
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *GrantsPostgresSuite) TestFindUnknownToken() {
	_, err := s.store.FindByToken(context.Background(), "tok-missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestConcurrentConsumeRespectsMaxUsage verifies that the conditional UPDATE
// never lets more consumers through than max_usage allows.
func (s *GrantsPostgresSuite) TestConcurrentConsumeRespectsMaxUsage() {
	ctx := context.Background()
	const maxUsage = 10
	const goroutines = 50

	grant := newTestGrant(maxUsage)
	s.Require().NoError(s.store.Create(ctx, grant))

	var wg sync.WaitGroup
	var successes, exhausted atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Consume(ctx, grant.Token, time.Now())
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, sentinel.ErrExhausted):
				exhausted.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(maxUsage), successes.Load())
	s.Equal(int32(goroutines-maxUsage), exhausted.Load())

	found, err := s.store.FindByToken(ctx, grant.Token)
	s.Require().NoError(err)
	s.Equal(maxUsage, found.UsageCount)
}

func (s *GrantsPostgresSuite) TestConsumeExpired() {
	ctx := context.Background()
	grant := newTestGrant(5)
	grant.ExpiresAt = time.Now().Add(-time.Minute)
	s.Require().NoError(s.store.Create(ctx, grant))

	_, err := s.store.Consume(ctx, grant.Token, time.Now())
	s.ErrorIs(err, sentinel.ErrExpired)
}

func (s *GrantsPostgresSuite) TestConsumeAfterRevoke() {
	ctx := context.Background()
	grant := newTestGrant(5)
	s.Require().NoError(s.store.Create(ctx, grant))

	s.Require().NoError(s.store.Revoke(ctx, grant.Token, time.Now()))

	_, err := s.store.Consume(ctx, grant.Token, time.Now())
	s.ErrorIs(err, sentinel.ErrRevoked)

	found, err := s.store.FindByToken(ctx, grant.Token)
	s.Require().NoError(err)
	s.False(found.Active)
	s.NotNil(found.RevokedAt)

	// Revoking again is a no-op, not an error.
	s.NoError(s.store.Revoke(ctx, grant.Token, time.Now()))
}

func (s *GrantsPostgresSuite) TestRevokeUnknownToken() {
	err := s.store.Revoke(context.Background(), "tok-missing", time.Now())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *GrantsPostgresSuite) TestListBySubject() {
	ctx := context.Background()
	subject := id.NewUserID()

	for i := 0; i < 3; i++ {
		grant := newTestGrant(5)
		grant.SubjectID = subject
		grant.IssuedAt = grant.IssuedAt.Add(time.Duration(i) * time.Second)
		s.Require().NoError(s.store.Create(ctx, grant))
	}
	other := newTestGrant(5)
	s.Require().NoError(s.store.Create(ctx, other))

	listed, err := s.store.ListBySubject(ctx, subject)
	s.Require().NoError(err)
	s.Require().Len(listed, 3)
	// Newest first.
	s.True(listed[0].IssuedAt.After(listed[2].IssuedAt))
	for _, g := range listed {
		s.Equal(subject, g.SubjectID)
	}
}
