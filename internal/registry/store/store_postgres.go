package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"veridoc/internal/registry"
	id "veridoc/pkg/domain"
	"veridoc/pkg/platform/sentinel"
	txcontext "veridoc/pkg/platform/tx"
)

// PostgresStore persists registry records in PostgreSQL. The submission
// counter is bumped with a single conditional UPDATE so concurrent
// resubmissions serialize on the row without an explicit transaction.
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

type PostgresOption func(*PostgresStore)

// WithPostgresClock sets the clock function for testability.
func WithPostgresClock(clock func() time.Time) PostgresOption {
	return func(s *PostgresStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewPostgresStore(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const documentColumns = `
	document_hash, content_address, original_filename, file_size, mime_type,
	first_submitter, first_submission_id, last_submitter, last_submission_id,
	submission_count, status, first_seen_at, updated_at`

func (s *PostgresStore) FindDocument(ctx context.Context, documentHash string) (*registry.DocumentHashRecord, error) {
	query := `SELECT` + documentColumns + ` FROM document_hashes WHERE document_hash = $1`
	rec, err := scanDocument(s.querier(ctx).QueryRowContext(ctx, query, documentHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", documentHash, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find document: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, record *registry.DocumentHashRecord) error {
	query := `
		INSERT INTO document_hashes (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.querier(ctx).ExecContext(ctx, query,
		record.DocumentHash, record.ContentAddress, record.OriginalFilename,
		record.FileSize, record.MimeType,
		record.FirstSubmitter.String(), record.FirstSubmissionID.String(),
		record.LastSubmitter.String(), record.LastSubmissionID.String(),
		record.SubmissionCount, string(record.Status),
		record.FirstSeenAt, record.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("document %s: %w", record.DocumentHash, sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// IncrementDocument performs the atomic increment-and-touch. The UPDATE
// reads and writes the counter in one statement, so two concurrent
// resubmissions cannot observe the same stale count.
func (s *PostgresStore) IncrementDocument(ctx context.Context, documentHash string, submitter id.UserID, submission id.SubmissionID) (*registry.DocumentHashRecord, error) {
	query := `
		UPDATE document_hashes SET
			submission_count = submission_count + 1,
			last_submitter = $2,
			last_submission_id = $3,
			status = $4,
			updated_at = $5
		WHERE document_hash = $1
		RETURNING` + documentColumns
	row := s.querier(ctx).QueryRowContext(ctx, query,
		documentHash, submitter.String(), submission.String(),
		string(registry.StatusResubmitted), s.clock())
	rec, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", documentHash, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("increment document: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) FindTransaction(ctx context.Context, transactionHash string) (*registry.TransactionHashRecord, error) {
	query := `
		SELECT transaction_hash, submission_id, document_hashes, content_digest,
		       submitter, confirmed, confirmation_count, block_reference, recorded_at
		FROM transaction_hashes WHERE transaction_hash = $1
	`
	var (
		rec           registry.TransactionHashRecord
		submissionRaw string
		submitterRaw  string
		blockRef      sql.NullString
	)
	err := s.querier(ctx).QueryRowContext(ctx, query, transactionHash).Scan(
		&rec.TransactionHash, &submissionRaw, pq.Array(&rec.DocumentHashes),
		&rec.ContentDigest, &submitterRaw, &rec.Confirmed,
		&rec.ConfirmationCount, &blockRef, &rec.RecordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", transactionHash, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	rec.BlockReference = blockRef.String
	if rec.SubmissionID, err = id.ParseSubmissionID(submissionRaw); err != nil {
		return nil, fmt.Errorf("find transaction: bad submission id: %w", err)
	}
	if rec.Submitter, err = id.ParseUserID(submitterRaw); err != nil {
		return nil, fmt.Errorf("find transaction: bad submitter id: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) CreateTransaction(ctx context.Context, record *registry.TransactionHashRecord) error {
	query := `
		INSERT INTO transaction_hashes
			(transaction_hash, submission_id, document_hashes, content_digest,
			 submitter, confirmed, confirmation_count, block_reference, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.querier(ctx).ExecContext(ctx, query,
		record.TransactionHash, record.SubmissionID.String(),
		pq.Array(record.DocumentHashes), record.ContentDigest,
		record.Submitter.String(), record.Confirmed, record.ConfirmationCount,
		record.BlockReference, record.RecordedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("transaction %s: %w", record.TransactionHash, sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateReport(ctx context.Context, report *registry.ForgeryReport) error {
	query := `
		INSERT INTO forgery_reports
			(id, kind, severity, suspicious_submission_id, original_submission_id,
			 suspicious_submitter, original_submitter, evidence, resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.querier(ctx).ExecContext(ctx, query,
		report.ID.String(), string(report.Kind), string(report.Severity),
		report.SuspiciousSubmissionID.String(), report.OriginalSubmissionID.String(),
		report.SuspiciousSubmitter.String(), report.OriginalSubmitter.String(),
		[]byte(report.Evidence), report.Resolved, report.CreatedAt)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindReport(ctx context.Context, reportID id.ReportID) (*registry.ForgeryReport, error) {
	query := reportSelect + ` WHERE id = $1`
	rep, err := scanReport(s.querier(ctx).QueryRowContext(ctx, query, reportID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %s: %w", reportID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find report: %w", err)
	}
	return rep, nil
}

func (s *PostgresStore) ResolveReport(ctx context.Context, reportID id.ReportID, reviewer id.UserID) error {
	query := `
		UPDATE forgery_reports SET resolved = TRUE, resolved_by = $2, resolved_at = $3
		WHERE id = $1 AND resolved = FALSE
	`
	res, err := s.querier(ctx).ExecContext(ctx, query, reportID.String(), reviewer.String(), s.clock())
	if err != nil {
		return fmt.Errorf("resolve report: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve report: %w", err)
	}
	if affected == 0 {
		// Either unknown or already resolved; distinguish for the caller.
		if _, err := s.FindReport(ctx, reportID); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) ListOpenReports(ctx context.Context) ([]*registry.ForgeryReport, error) {
	query := reportSelect + ` WHERE resolved = FALSE ORDER BY created_at ASC`
	rows, err := s.querier(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list open reports: %w", err)
	}
	defer rows.Close()

	var out []*registry.ForgeryReport
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("list open reports: %w", err)
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

const reportSelect = `
	SELECT id, kind, severity, suspicious_submission_id, original_submission_id,
	       suspicious_submitter, original_submitter, evidence, resolved,
	       resolved_by, resolved_at, created_at
	FROM forgery_reports`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*registry.DocumentHashRecord, error) {
	var (
		rec                      registry.DocumentHashRecord
		firstSubmitter, firstSub string
		lastSubmitter, lastSub   string
		status                   string
	)
	err := row.Scan(&rec.DocumentHash, &rec.ContentAddress, &rec.OriginalFilename,
		&rec.FileSize, &rec.MimeType, &firstSubmitter, &firstSub,
		&lastSubmitter, &lastSub, &rec.SubmissionCount, &status,
		&rec.FirstSeenAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Status = registry.RecordStatus(status)
	if rec.FirstSubmitter, err = id.ParseUserID(firstSubmitter); err != nil {
		return nil, err
	}
	if rec.FirstSubmissionID, err = id.ParseSubmissionID(firstSub); err != nil {
		return nil, err
	}
	if rec.LastSubmitter, err = id.ParseUserID(lastSubmitter); err != nil {
		return nil, err
	}
	if rec.LastSubmissionID, err = id.ParseSubmissionID(lastSub); err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanReport(row rowScanner) (*registry.ForgeryReport, error) {
	var (
		rep                      registry.ForgeryReport
		reportID, kind, severity string
		suspSub, origSub         string
		suspBy, origBy           string
		resolvedBy               sql.NullString
		resolvedAt               sql.NullTime
		evidence                 []byte
	)
	err := row.Scan(&reportID, &kind, &severity, &suspSub, &origSub,
		&suspBy, &origBy, &evidence, &rep.Resolved, &resolvedBy, &resolvedAt,
		&rep.CreatedAt)
	if err != nil {
		return nil, err
	}
	rep.Kind = registry.ForgeryKind(kind)
	rep.Severity = registry.Severity(severity)
	rep.Evidence = evidence
	if rep.ID, err = id.ParseReportID(reportID); err != nil {
		return nil, err
	}
	if rep.SuspiciousSubmissionID, err = id.ParseSubmissionID(suspSub); err != nil {
		return nil, err
	}
	if rep.OriginalSubmissionID, err = id.ParseSubmissionID(origSub); err != nil {
		return nil, err
	}
	if rep.SuspiciousSubmitter, err = id.ParseUserID(suspBy); err != nil {
		return nil, err
	}
	if rep.OriginalSubmitter, err = id.ParseUserID(origBy); err != nil {
		return nil, err
	}
	if resolvedBy.Valid {
		if rep.ResolvedBy, err = id.ParseUserID(resolvedBy.String); err != nil {
			return nil, err
		}
	}
	if resolvedAt.Valid {
		rep.ResolvedAt = &resolvedAt.Time
	}
	return &rep, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
