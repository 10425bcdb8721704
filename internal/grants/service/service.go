package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"veridoc/internal/cryptocore"
	"veridoc/internal/grants"
	"veridoc/internal/platform/metrics"
	id "veridoc/pkg/domain"
	dErrors "veridoc/pkg/domain-errors"
	"veridoc/pkg/platform/audit"
	"veridoc/pkg/platform/sentinel"
)

// MaxTTL caps how far out a grant can expire. Long-lived standing access is
// a consent problem, not a capability-token problem.
const MaxTTL = 90 * 24 * time.Hour

// Service is the access grant manager: it issues, verifies, consumes, and
// revokes capability tokens.
type Service struct {
	store   grants.Store
	auditor audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	clock   func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) { s.auditor = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func New(store grants.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("grant store is required")
	}
	svc := &Service{
		store:  store,
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Issue creates a new grant with a fresh 256-bit token, active, with zero
// usage.
func (s *Service) Issue(ctx context.Context, subject id.UserID, grantee string, scope grants.Scope, purpose string, ttl time.Duration, maxUsage int) (*grants.AccessGrant, error) {
	switch {
	case subject.IsNil():
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject_id is required")
	case grantee == "":
		return nil, dErrors.New(dErrors.CodeInvalidInput, "grantee_id is required")
	case len(scope.Capabilities) == 0:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "scope must carry at least one capability")
	case scope.RecordRef == "" && len(scope.DocumentIDs) == 0:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "scope must reference a record or documents")
	case ttl <= 0:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "ttl must be positive")
	case ttl > MaxTTL:
		return nil, dErrors.New(dErrors.CodeValidation, "ttl exceeds the maximum grant lifetime")
	case maxUsage <= 0:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "max_usage must be positive")
	}

	token, err := cryptocore.NewToken()
	if err != nil {
		return nil, err
	}

	now := s.clock()
	grant := &grants.AccessGrant{
		ID:        id.NewGrantID(),
		Token:     token,
		SubjectID: subject,
		GranteeID: grantee,
		Scope:     scope,
		Purpose:   purpose,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
		MaxUsage:  maxUsage,
		Active:    true,
	}
	if err := s.store.Create(ctx, grant); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist grant")
	}
	if s.metrics != nil {
		s.metrics.GrantsIssued.Inc()
	}
	s.emitAudit(ctx, audit.Event{
		Actor:   subject,
		Subject: grant.ID.String(),
		Action:  audit.ActionGrantIssued,
		Purpose: purpose,
	})
	return grant, nil
}

// Consume spends one use of the grant and returns it so the caller can act
// on its scope. The increment-and-check is atomic inside the store: two
// concurrent consumers at the usage boundary cannot both succeed.
func (s *Service) Consume(ctx context.Context, token string) (*grants.AccessGrant, error) {
	if token == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "token is required")
	}

	grant, err := s.store.Consume(ctx, token, s.clock())
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "grant not found")
		case errors.Is(err, sentinel.ErrExpired):
			return nil, dErrors.Wrap(err, dErrors.CodeGrantExpired, "grant has expired")
		case errors.Is(err, sentinel.ErrExhausted):
			return nil, dErrors.Wrap(err, dErrors.CodeGrantExhausted, "grant usage limit reached")
		case errors.Is(err, sentinel.ErrRevoked):
			return nil, dErrors.Wrap(err, dErrors.CodeGrantRevoked, "grant was revoked")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "consume grant")
		}
	}
	if s.metrics != nil {
		s.metrics.GrantsConsumed.Inc()
	}
	s.emitAudit(ctx, audit.Event{
		Actor:    grant.SubjectID,
		Subject:  grant.ID.String(),
		Action:   audit.ActionGrantConsumed,
		Purpose:  grant.Purpose,
		Decision: "allow",
		Reason:   fmt.Sprintf("use %d of %d", grant.UsageCount, grant.MaxUsage),
	})
	return grant, nil
}

// Revoke deactivates a grant. Only the subject who owns the underlying
// resources may revoke; the transition is one-way.
func (s *Service) Revoke(ctx context.Context, token string, requester id.UserID) error {
	if token == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "token is required")
	}
	if requester.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "requester identity is required")
	}

	grant, err := s.store.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeNotFound, "grant not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "load grant")
	}
	if grant.SubjectID != requester {
		return dErrors.New(dErrors.CodeForbidden, "only the grant subject may revoke it")
	}

	if err := s.store.Revoke(ctx, token, s.clock()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "revoke grant")
	}
	if s.metrics != nil {
		s.metrics.GrantsRevoked.Inc()
	}
	s.emitAudit(ctx, audit.Event{
		Actor:   requester,
		Subject: grant.ID.String(),
		Action:  audit.ActionGrantRevoked,
	})
	return nil
}

// ListBySubject returns the subject's grants for the owner dashboard.
func (s *Service) ListBySubject(ctx context.Context, subject id.UserID) ([]*grants.AccessGrant, error) {
	if subject.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject_id is required")
	}
	out, err := s.store.ListBySubject(ctx, subject)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list grants")
	}
	return out, nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	event.Timestamp = s.clock()
	event.EnrichFromContext(ctx)
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed",
			"action", event.Action,
			"error", err,
		)
	}
}
