package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"veridoc/internal/cryptocore"
	"veridoc/internal/platform/metrics"
	"veridoc/internal/registry"
	id "veridoc/pkg/domain"
	dErrors "veridoc/pkg/domain-errors"
	"veridoc/pkg/platform/audit"
	"veridoc/pkg/platform/sentinel"
)

// AlertPublisher forwards forgery reports to the human review queue. Publish
// failures never fail the classification; delivery is at-least-once via the
// durable queue plus the report row itself.
type AlertPublisher interface {
	PublishForgery(ctx context.Context, report *registry.ForgeryReport) error
}

// Service is the hash registry: it decides, per content hash, whether a
// submission is first-seen, a legitimate resubmission, or a forgery.
type Service struct {
	store   registry.Store
	auditor audit.Publisher
	alerts  AlertPublisher
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

func WithAlertPublisher(publisher AlertPublisher) Option {
	return func(s *Service) { s.alerts = publisher }
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

func New(store registry.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("registry store is required")
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

// RecordDocument registers a document hash for a submission and classifies
// the outcome.
//
// First sighting creates the record with count 1. A resubmission by the
// first submitter is legitimate (duplicate, LOW). A resubmission by anyone
// else is a forgery: the same byte content is being claimed by a different
// user, and a DUPLICATE_SUBMISSION report is filed.
func (s *Service) RecordDocument(ctx context.Context, documentHash string, submitter id.UserID, submission id.SubmissionID, meta registry.FileMeta) (*registry.DocumentResult, error) {
	if documentHash == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "document_hash is required")
	}
	if submitter.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "submitter is required")
	}
	if submission.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "submission_id is required")
	}

	now := s.clock()
	record := &registry.DocumentHashRecord{
		DocumentHash:      documentHash,
		ContentAddress:    meta.ContentAddress,
		OriginalFilename:  meta.Filename,
		FileSize:          meta.Size,
		MimeType:          meta.MimeType,
		FirstSubmitter:    submitter,
		FirstSubmissionID: submission,
		LastSubmitter:     submitter,
		LastSubmissionID:  submission,
		SubmissionCount:   1,
		Status:            registry.StatusRegistered,
		FirstSeenAt:       now,
		UpdatedAt:         now,
	}

	err := s.store.CreateDocument(ctx, record)
	switch {
	case err == nil:
		if s.metrics != nil {
			s.metrics.DocumentsRegistered.Inc()
		}
		s.emitAudit(ctx, audit.Event{
			Actor:   submitter,
			Subject: documentHash,
			Action:  audit.ActionDocumentRegistered,
		})
		return &registry.DocumentResult{
			Duplicate:       false,
			Forgery:         false,
			SubmissionCount: 1,
			Record:          record,
		}, nil
	case errors.Is(err, sentinel.ErrConflict):
		// Hash already registered, possibly by a concurrent writer. Fall
		// through to the resubmission path.
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "register document hash")
	}

	updated, err := s.store.IncrementDocument(ctx, documentHash, submitter, submission)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "increment submission count")
	}
	if s.metrics != nil {
		s.metrics.DuplicateSubmissions.Inc()
	}

	if updated.FirstSubmitter == submitter {
		s.emitAudit(ctx, audit.Event{
			Actor:   submitter,
			Subject: documentHash,
			Action:  audit.ActionDuplicateSubmission,
			Reason:  "resubmission by original submitter",
		})
		return &registry.DocumentResult{
			Duplicate:       true,
			Forgery:         false,
			Severity:        registry.SeverityLow,
			SubmissionCount: updated.SubmissionCount,
			Record:          updated,
		}, nil
	}

	report, err := s.fileDocumentReport(ctx, updated, submitter, submission)
	if err != nil {
		return nil, err
	}
	return &registry.DocumentResult{
		Duplicate:       true,
		Forgery:         true,
		Severity:        registry.SeverityHigh,
		SubmissionCount: updated.SubmissionCount,
		ReportID:        report.ID,
		Record:          updated,
	}, nil
}

// RecordTransaction binds a transaction hash to the set of document hashes
// it covers, or verifies a repeat claim against the stored binding. The
// binding is order-independent: the digest is computed over the sorted set.
func (s *Service) RecordTransaction(ctx context.Context, transactionHash string, submission id.SubmissionID, documentHashes []string, submitter id.UserID) (*registry.TransactionResult, error) {
	if transactionHash == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "transaction_hash is required")
	}
	if len(documentHashes) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "document_hashes must not be empty")
	}
	if submitter.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "submitter is required")
	}

	digest := ContentDigest(documentHashes)

	record := &registry.TransactionHashRecord{
		TransactionHash: transactionHash,
		SubmissionID:    submission,
		DocumentHashes:  sortedCopy(documentHashes),
		ContentDigest:   digest,
		Submitter:       submitter,
		RecordedAt:      s.clock(),
	}

	err := s.store.CreateTransaction(ctx, record)
	switch {
	case err == nil:
		if s.metrics != nil {
			s.metrics.TransactionsRecorded.Inc()
		}
		s.emitAudit(ctx, audit.Event{
			Actor:   submitter,
			Subject: transactionHash,
			Action:  audit.ActionTransactionRecorded,
		})
		return &registry.TransactionResult{Valid: true, Exists: false, Record: record}, nil
	case errors.Is(err, sentinel.ErrConflict):
		// Hash already bound; compare content below.
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "record transaction hash")
	}

	stored, err := s.store.FindTransaction(ctx, transactionHash)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load transaction record")
	}

	if stored.ContentDigest == digest {
		return &registry.TransactionResult{
			Valid:          true,
			Exists:         true,
			ContentMatches: true,
			Record:         stored,
		}, nil
	}

	// The transaction identifier is being replayed against different
	// document content. This is the most serious signal the registry emits.
	report, err := s.fileTransactionReport(ctx, stored, documentHashes, digest, submitter, submission)
	if err != nil {
		return nil, err
	}
	return &registry.TransactionResult{
		Valid:           false,
		Exists:          true,
		ContentMatches:  false,
		ForgeryDetected: true,
		ReportID:        report.ID,
		Record:          stored,
	}, nil
}

// ResolveReport marks a forgery report handled by a reviewer. One-way.
func (s *Service) ResolveReport(ctx context.Context, reportID id.ReportID, reviewer id.UserID) error {
	if reportID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "report_id is required")
	}
	if reviewer.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "reviewer identity is required")
	}
	if err := s.store.ResolveReport(ctx, reportID, reviewer); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeNotFound, "report not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "resolve report")
	}
	s.emitAudit(ctx, audit.Event{
		Actor:   reviewer,
		Subject: reportID.String(),
		Action:  audit.ActionReportResolved,
	})
	return nil
}

// ListOpenReports returns unresolved forgery reports for the review UI.
func (s *Service) ListOpenReports(ctx context.Context) ([]*registry.ForgeryReport, error) {
	reports, err := s.store.ListOpenReports(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list open reports")
	}
	return reports, nil
}

// ContentDigest computes the order-independent digest of a document hash
// set: the content hash of the sorted, newline-joined hashes.
func ContentDigest(documentHashes []string) string {
	return cryptocore.Hash([]byte(strings.Join(sortedCopy(documentHashes), "\n"))).Hex()
}

func sortedCopy(hashes []string) []string {
	out := append([]string{}, hashes...)
	sort.Strings(out)
	return out
}

func (s *Service) fileDocumentReport(ctx context.Context, record *registry.DocumentHashRecord, submitter id.UserID, submission id.SubmissionID) (*registry.ForgeryReport, error) {
	evidence, err := json.Marshal(registry.DocumentEvidence{
		DocumentHash:       record.DocumentHash,
		OriginalFilename:   record.OriginalFilename,
		FirstSubmitter:     record.FirstSubmitter.String(),
		FirstSubmissionID:  record.FirstSubmissionID.String(),
		SecondSubmitter:    submitter.String(),
		SecondSubmissionID: submission.String(),
		SubmissionCount:    record.SubmissionCount,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "marshal forgery evidence")
	}
	report := &registry.ForgeryReport{
		ID:                     id.NewReportID(),
		Kind:                   registry.KindDuplicateSubmission,
		Severity:               registry.SeverityHigh,
		SuspiciousSubmissionID: submission,
		OriginalSubmissionID:   record.FirstSubmissionID,
		SuspiciousSubmitter:    submitter,
		OriginalSubmitter:      record.FirstSubmitter,
		Evidence:               evidence,
		CreatedAt:              s.clock(),
	}
	if err := s.fileReport(ctx, report, record.DocumentHash, audit.ActionForgeryDetected); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Service) fileTransactionReport(ctx context.Context, stored *registry.TransactionHashRecord, claimedHashes []string, claimedDigest string, submitter id.UserID, submission id.SubmissionID) (*registry.ForgeryReport, error) {
	evidence, err := json.Marshal(registry.TransactionEvidence{
		TransactionHash: stored.TransactionHash,
		StoredDigest:    stored.ContentDigest,
		ClaimedDigest:   claimedDigest,
		StoredHashes:    stored.DocumentHashes,
		ClaimedHashes:   sortedCopy(claimedHashes),
		FirstSubmitter:  stored.Submitter.String(),
		SecondSubmitter: submitter.String(),
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "marshal forgery evidence")
	}
	report := &registry.ForgeryReport{
		ID:                     id.NewReportID(),
		Kind:                   registry.KindContentMismatch,
		Severity:               registry.SeverityCritical,
		SuspiciousSubmissionID: submission,
		OriginalSubmissionID:   stored.SubmissionID,
		SuspiciousSubmitter:    submitter,
		OriginalSubmitter:      stored.Submitter,
		Evidence:               evidence,
		CreatedAt:              s.clock(),
	}
	if err := s.fileReport(ctx, report, stored.TransactionHash, audit.ActionTransactionReplayed); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Service) fileReport(ctx context.Context, report *registry.ForgeryReport, subject, action string) error {
	if err := s.store.CreateReport(ctx, report); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "persist forgery report")
	}
	if s.metrics != nil {
		s.metrics.ForgeriesDetected.WithLabelValues(string(report.Kind)).Inc()
	}
	s.emitAudit(ctx, audit.Event{
		Actor:    report.SuspiciousSubmitter,
		Subject:  subject,
		Action:   action,
		Decision: "deny",
		Reason:   string(report.Kind),
	})
	if s.alerts != nil {
		if err := s.alerts.PublishForgery(ctx, report); err != nil {
			// The report row is already durable; the review queue will catch
			// up from it. Log and continue.
			s.logger.ErrorContext(ctx, "forgery alert publish failed",
				"report_id", report.ID,
				"kind", report.Kind,
				"error", err,
			)
		}
	}
	return nil
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
