package registry

import (
	"context"

	id "veridoc/pkg/domain"
)

// Store persists registry records. Implementations must make
// IncrementDocument a single atomic operation: concurrent resubmissions of
// the same hash must each observe a distinct, monotonically increasing
// submission count.
type Store interface {
	// FindDocument returns sentinel.ErrNotFound when the hash is unseen.
	FindDocument(ctx context.Context, documentHash string) (*DocumentHashRecord, error)

	// CreateDocument inserts a first-seen record. Returns
	// sentinel.ErrConflict when another writer registered the hash first.
	CreateDocument(ctx context.Context, record *DocumentHashRecord) error

	// IncrementDocument atomically bumps the submission count, updates the
	// last submitter, and moves the record to StatusResubmitted. It returns
	// the updated record.
	IncrementDocument(ctx context.Context, documentHash string, submitter id.UserID, submission id.SubmissionID) (*DocumentHashRecord, error)

	// FindTransaction returns sentinel.ErrNotFound when the transaction hash
	// is unseen.
	FindTransaction(ctx context.Context, transactionHash string) (*TransactionHashRecord, error)

	// CreateTransaction inserts a first-seen transaction binding. Returns
	// sentinel.ErrConflict when the hash is already bound.
	CreateTransaction(ctx context.Context, record *TransactionHashRecord) error

	// CreateReport appends a forgery report.
	CreateReport(ctx context.Context, report *ForgeryReport) error

	// FindReport returns sentinel.ErrNotFound for unknown report ids.
	FindReport(ctx context.Context, reportID id.ReportID) (*ForgeryReport, error)

	// ResolveReport flips the resolved flag. One-way; resolving an already
	// resolved report is a no-op.
	ResolveReport(ctx context.Context, reportID id.ReportID, reviewer id.UserID) error

	// ListOpenReports returns unresolved reports, oldest first.
	ListOpenReports(ctx context.Context) ([]*ForgeryReport, error)
}
