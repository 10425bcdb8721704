package retrieval

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"veridoc/internal/contentstore"
	"veridoc/internal/cryptocore"
	"veridoc/internal/grants"
	"veridoc/internal/platform/metrics"
	"veridoc/internal/vault"
	id "veridoc/pkg/domain"
	dErrors "veridoc/pkg/domain-errors"
	"veridoc/pkg/platform/audit"
)

var tracer = otel.Tracer("veridoc/retrieval")

// Request describes a single document retrieval attempt. The decryption key
// stays with the caller, so either Key or Secret must accompany the request
// depending on how the package was sealed.
type Request struct {
	RequesterID  id.UserID
	DocumentHash string
	Address      contentstore.Address

	// Key decrypts packages sealed with a random key.
	Key cryptocore.Key
	// Secret re-derives the key for packages sealed with a derived key.
	Secret []byte

	// GrantToken authorizes access for requesters who neither own the
	// document nor hold a privileged role.
	GrantToken string
	Purpose    string
}

// Result is a successfully retrieved and decrypted document.
type Result struct {
	File     []byte
	Metadata vault.Metadata

	// Grant is set when access was authorized by a capability token.
	Grant *grants.AccessGrant
}

type Service struct {
	content ContentStore
	owners  OwnerDirectory
	roles   RoleDirectory
	grants  GrantConsumer
	vault   *vault.Vault

	logger  *slog.Logger
	auditor audit.Publisher
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithAuditPublisher(p audit.Publisher) Option {
	return func(s *Service) { s.auditor = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(content ContentStore, owners OwnerDirectory, roles RoleDirectory, consumer GrantConsumer, v *vault.Vault, opts ...Option) (*Service, error) {
	if content == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "content store is required")
	}
	if owners == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "owner directory is required")
	}
	if roles == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "role directory is required")
	}
	if v == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "vault is required")
	}

	s := &Service{
		content: content,
		owners:  owners,
		roles:   roles,
		grants:  consumer,
		vault:   v,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Retrieve authorizes the request, fetches the package and decrypts it.
// Denied and failed attempts are audited the same as successful ones.
func (s *Service) Retrieve(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Retrieve",
		trace.WithAttributes(
			attribute.String("document.hash", req.DocumentHash),
			attribute.String("requester.id", req.RequesterID.String()),
		))
	defer span.End()

	if req.RequesterID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "requester ID is required")
	}
	if req.DocumentHash == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "document hash is required")
	}
	if req.Address == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "content address is required")
	}

	grant, err := s.authorize(ctx, req)
	if err != nil {
		s.observe("denied")
		s.emitAudit(ctx, req, audit.ActionAccessDenied, "deny", string(dErrors.CodeOf(err)))
		return nil, err
	}

	raw, err := s.content.Get(ctx, req.Address)
	if err != nil {
		s.observe("not_found")
		s.emitAudit(ctx, req, audit.ActionAccessDenied, "deny", "document package not found")
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "document package not found")
	}

	pkg, err := vault.Unmarshal(raw)
	if err != nil {
		s.observe("corrupt")
		s.observeIntegrity("envelope")
		s.emitAudit(ctx, req, audit.ActionIntegrityViolation, "deny", "malformed package")
		return nil, err
	}

	key, err := s.packageKey(req, pkg)
	if err != nil {
		s.observe("denied")
		s.emitAudit(ctx, req, audit.ActionAccessDenied, "deny", string(dErrors.CodeOf(err)))
		return nil, err
	}

	file, meta, err := s.vault.ExtractPackage(pkg, key)
	if err != nil {
		s.observe("decrypt_failed")
		s.observeIntegrity("decrypt")
		s.emitAudit(ctx, req, audit.ActionIntegrityViolation, "deny", string(dErrors.CodeOf(err)))
		return nil, err
	}

	if meta.FileHash != req.DocumentHash {
		s.observe("hash_mismatch")
		s.observeIntegrity("hash")
		s.emitAudit(ctx, req, audit.ActionIntegrityViolation, "deny", "package hash mismatch")
		return nil, dErrors.New(dErrors.CodeIntegrityViolation, "package does not match requested document")
	}

	s.observe("success")
	s.emitAudit(ctx, req, audit.ActionDocumentRetrieved, "allow", "")
	return &Result{File: file, Metadata: meta, Grant: grant}, nil
}

// authorize decides whether the requester may see the document. Order
// matters: ownership and role checks are free, the grant check burns a use.
func (s *Service) authorize(ctx context.Context, req Request) (*grants.AccessGrant, error) {
	owner, err := s.owners.OwnerOf(ctx, req.DocumentHash)
	if err == nil && owner == req.RequesterID {
		return nil, nil
	}

	role, err := s.roles.RoleOf(ctx, req.RequesterID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolve requester role")
	}
	if role.Privileged() {
		return nil, nil
	}

	if req.GrantToken == "" || s.grants == nil {
		return nil, dErrors.New(dErrors.CodeForbidden, "not authorized to retrieve this document")
	}

	grant, err := s.grants.Consume(ctx, req.GrantToken)
	if err != nil {
		return nil, err
	}
	if !grant.Scope.CoversDocument(req.DocumentHash) {
		return nil, dErrors.New(dErrors.CodeForbidden, "grant scope does not cover this document")
	}
	if !grant.Scope.Allows(grants.CapabilityRead) && !grant.Scope.Allows(grants.CapabilityDownload) {
		return nil, dErrors.New(dErrors.CodeForbidden, "grant does not permit retrieval")
	}
	return grant, nil
}

func (s *Service) packageKey(req Request, pkg *vault.Package) (cryptocore.Key, error) {
	switch pkg.KeyMode {
	case vault.KeyModeDerived:
		if len(req.Secret) == 0 {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "secret is required for derived-key packages")
		}
		return vault.KeyFromSecret(pkg, req.Secret)
	default:
		if len(req.Key) == 0 {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "decryption key is required")
		}
		return req.Key, nil
	}
}

func (s *Service) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.Retrievals.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) observeIntegrity(stage string) {
	if s.metrics != nil {
		s.metrics.IntegrityFailures.WithLabelValues(stage).Inc()
	}
}

func (s *Service) emitAudit(ctx context.Context, req Request, action string, decision, reason string) {
	if s.auditor == nil {
		return
	}
	event := audit.Event{
		Actor:    req.RequesterID,
		Subject:  req.DocumentHash,
		Action:   action,
		Purpose:  req.Purpose,
		Decision: decision,
		Reason:   reason,
	}
	event.EnrichFromContext(ctx)
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}
