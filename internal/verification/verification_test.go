package verification_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"veridoc/internal/grants"
	"veridoc/internal/verification"
	"veridoc/internal/verification/mocks"
	id "veridoc/pkg/domain"
	dErrors "veridoc/pkg/domain-errors"
	"veridoc/pkg/platform/audit"
	auditmem "veridoc/pkg/platform/audit/store/memory"
)

const recordRef = "record-7f3a"

type VerificationFacadeSuite struct {
	suite.Suite
	ctrl         *gomock.Controller
	mockStatuses *mocks.MockStatusDirectory
	mockGrants   *mocks.MockGrantConsumer
	auditSink    *auditmem.InMemoryStore
	facade       *verification.Facade
}

func TestVerificationFacadeSuite(t *testing.T) {
	suite.Run(t, new(VerificationFacadeSuite))
}

func (s *VerificationFacadeSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockStatuses = mocks.NewMockStatusDirectory(s.ctrl)
	s.mockGrants = mocks.NewMockGrantConsumer(s.ctrl)
	s.auditSink = auditmem.NewInMemoryStore()

	facade, err := verification.New(
		s.mockStatuses, s.mockGrants,
		verification.WithAuditPublisher(audit.NewStorePublisher(s.auditSink)),
	)
	s.Require().NoError(err)
	s.facade = facade
}

func (s *VerificationFacadeSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *VerificationFacadeSuite) verifyGrant(caps ...grants.Capability) *grants.AccessGrant {
	return &grants.AccessGrant{
		ID:        id.NewGrantID(),
		SubjectID: id.NewUserID(),
		Scope: grants.Scope{
			RecordRef:    recordRef,
			Capabilities: caps,
		},
		Purpose: "employment screening",
	}
}

func (s *VerificationFacadeSuite) TestNew() {
	s.Run("nil status directory returns error", func() {
		_, err := verification.New(nil, s.mockGrants)
		s.Error(err)
	})

	s.Run("nil grant consumer returns error", func() {
		_, err := verification.New(s.mockStatuses, nil)
		s.Error(err)
	})
}

func (s *VerificationFacadeSuite) TestVerifyStatus() {
	s.Run("valid token returns standing without content", func() {
		updated := time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC)
		s.mockGrants.EXPECT().Consume(gomock.Any(), "tok-1").
			Return(s.verifyGrant(grants.CapabilityVerify), nil)
		s.mockStatuses.EXPECT().StandingOf(gomock.Any(), recordRef).
			Return(verification.RecordStanding{
				RecordRef:   recordRef,
				Status:      verification.StatusVerified,
				Level:       2,
				LastUpdated: updated,
			}, nil)

		standing, err := s.facade.VerifyStatus(context.Background(), "tok-1", recordRef)
		s.Require().NoError(err)
		s.Equal(verification.StatusVerified, standing.Status)
		s.Equal(2, standing.Level)
		s.Equal(updated, standing.LastUpdated)

		allowed := s.auditSink.ByAction(audit.ActionStatusVerified)
		s.Require().Len(allowed, 1)
		s.Equal("allow", allowed[0].Decision)
		s.Equal("employment screening", allowed[0].Purpose)
	})

	s.Run("grant without verify capability is refused", func() {
		s.mockGrants.EXPECT().Consume(gomock.Any(), "tok-2").
			Return(s.verifyGrant(grants.CapabilityRead), nil)

		_, err := s.facade.VerifyStatus(context.Background(), "tok-2", recordRef)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Len(s.auditSink.ByAction(audit.ActionAccessDenied), 1)
	})

	s.Run("grant scoped to another record is refused", func() {
		grant := s.verifyGrant(grants.CapabilityVerify)
		grant.Scope.RecordRef = "record-other"
		s.mockGrants.EXPECT().Consume(gomock.Any(), "tok-3").Return(grant, nil)

		_, err := s.facade.VerifyStatus(context.Background(), "tok-3", recordRef)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("expired token propagates terminal error", func() {
		s.auditSink.Clear()
		s.mockGrants.EXPECT().Consume(gomock.Any(), "tok-4").
			Return(nil, dErrors.New(dErrors.CodeGrantExpired, "grant has expired"))

		_, err := s.facade.VerifyStatus(context.Background(), "tok-4", recordRef)
		s.True(dErrors.HasCode(err, dErrors.CodeGrantExpired))

		denied := s.auditSink.ByAction(audit.ActionAccessDenied)
		s.Require().Len(denied, 1)
		s.Equal(string(dErrors.CodeGrantExpired), denied[0].Reason)
	})

	s.Run("unknown record maps to not found", func() {
		s.mockGrants.EXPECT().Consume(gomock.Any(), "tok-5").
			Return(s.verifyGrant(grants.CapabilityVerify), nil)
		s.mockStatuses.EXPECT().StandingOf(gomock.Any(), recordRef).
			Return(verification.RecordStanding{}, dErrors.New(dErrors.CodeNotFound, "no such record"))

		_, err := s.facade.VerifyStatus(context.Background(), "tok-5", recordRef)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("empty token rejected before consuming", func() {
		_, err := s.facade.VerifyStatus(context.Background(), "", recordRef)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("empty record ref rejected", func() {
		_, err := s.facade.VerifyStatus(context.Background(), "tok-6", "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}
