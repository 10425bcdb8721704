// Package verification answers "is this identity record valid" for third
// parties holding a capability token. It never exposes document content,
// only the record's standing.
package verification

import (
	"context"
	"log/slog"
	"time"

	"veridoc/internal/grants"
	dErrors "veridoc/pkg/domain-errors"
	"veridoc/pkg/platform/audit"
)

//go:generate mockgen -source=verification.go -destination=mocks/mocks.go -package=mocks StatusDirectory,GrantConsumer

// Status is the closed set of record standings a verifier can observe.
type Status string

const (
	StatusVerified Status = "VERIFIED"
	StatusPending  Status = "PENDING"
	StatusRejected Status = "REJECTED"
	StatusExpired  Status = "EXPIRED"
)

// RecordStanding is what a status lookup returns. No content, no hashes.
type RecordStanding struct {
	RecordRef   string
	Status      Status
	Level       int
	LastUpdated time.Time
}

// StatusDirectory resolves the standing of an identity record.
type StatusDirectory interface {
	StandingOf(ctx context.Context, recordRef string) (RecordStanding, error)
}

// GrantConsumer burns one use of a capability token.
type GrantConsumer interface {
	Consume(ctx context.Context, token string) (*grants.AccessGrant, error)
}

type Facade struct {
	statuses StatusDirectory
	grants   GrantConsumer

	logger  *slog.Logger
	auditor audit.Publisher
}

type Option func(*Facade)

func WithLogger(l *slog.Logger) Option {
	return func(f *Facade) { f.logger = l }
}

func WithAuditPublisher(p audit.Publisher) Option {
	return func(f *Facade) { f.auditor = p }
}

func New(statuses StatusDirectory, consumer GrantConsumer, opts ...Option) (*Facade, error) {
	if statuses == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "status directory is required")
	}
	if consumer == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "grant consumer is required")
	}

	f := &Facade{
		statuses: statuses,
		grants:   consumer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// VerifyStatus authenticates the caller by capability token alone. The token
// must still be usable, carry the verify capability and cover the record.
// Each successful or denied check burns one grant use and is audited.
func (f *Facade) VerifyStatus(ctx context.Context, token, recordRef string) (RecordStanding, error) {
	if token == "" {
		return RecordStanding{}, dErrors.New(dErrors.CodeInvalidInput, "capability token is required")
	}
	if recordRef == "" {
		return RecordStanding{}, dErrors.New(dErrors.CodeInvalidInput, "record reference is required")
	}

	grant, err := f.grants.Consume(ctx, token)
	if err != nil {
		f.emitAudit(ctx, grant, recordRef, "deny", string(dErrors.CodeOf(err)))
		return RecordStanding{}, err
	}

	if !grant.Scope.Allows(grants.CapabilityVerify) {
		f.emitAudit(ctx, grant, recordRef, "deny", "grant lacks verify capability")
		return RecordStanding{}, dErrors.New(dErrors.CodeForbidden, "grant does not permit status verification")
	}
	if !grant.Scope.CoversRecord(recordRef) {
		f.emitAudit(ctx, grant, recordRef, "deny", "grant scope does not cover record")
		return RecordStanding{}, dErrors.New(dErrors.CodeForbidden, "grant scope does not cover this record")
	}

	standing, err := f.statuses.StandingOf(ctx, recordRef)
	if err != nil {
		return RecordStanding{}, dErrors.Wrap(err, dErrors.CodeNotFound, "identity record not found")
	}

	f.emitAudit(ctx, grant, recordRef, "allow", "")
	return standing, nil
}

func (f *Facade) emitAudit(ctx context.Context, grant *grants.AccessGrant, recordRef, decision, reason string) {
	if f.auditor == nil {
		return
	}
	event := audit.Event{
		Subject:  recordRef,
		Action:   audit.ActionStatusVerified,
		Decision: decision,
		Reason:   reason,
	}
	if decision == "deny" {
		event.Action = audit.ActionAccessDenied
	}
	if grant != nil {
		event.Actor = grant.SubjectID
		event.Purpose = grant.Purpose
	}
	event.EnrichFromContext(ctx)
	if err := f.auditor.Emit(ctx, event); err != nil {
		f.logger.ErrorContext(ctx, "audit emit failed",
			"action", event.Action,
			"error", err,
		)
	}
}
