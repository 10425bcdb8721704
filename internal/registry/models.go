// Package registry tracks first-seen document and transaction hashes and
// classifies resubmissions. Identity equality is on content hash, not on
// submission id: the registry is the single source of truth for "has this
// exact byte content ever been seen", independent of which form submission
// referenced it.
package registry

import (
	"encoding/json"
	"time"

	id "veridoc/pkg/domain"
)

// RecordStatus is the per-hash state machine: a record is created as
// Registered and moves to Resubmitted on the second sighting. Records are
// never deleted; the registry is an immutable audit trail.
type RecordStatus string

const (
	StatusRegistered  RecordStatus = "registered"
	StatusResubmitted RecordStatus = "resubmitted"
)

// DocumentHashRecord is the registry row for one unique content hash.
type DocumentHashRecord struct {
	DocumentHash      string // hex content hash, unique
	ContentAddress    string // pointer into the external content store
	OriginalFilename  string
	FileSize          int64
	MimeType          string
	FirstSubmitter    id.UserID
	FirstSubmissionID id.SubmissionID
	LastSubmitter     id.UserID
	LastSubmissionID  id.SubmissionID
	SubmissionCount   int // >= 1
	Status            RecordStatus
	FirstSeenAt       time.Time
	UpdatedAt         time.Time
}

// FileMeta carries the submission-side file attributes captured on first
// registration.
type FileMeta struct {
	Filename       string
	Size           int64
	MimeType       string
	ContentAddress string
}

// TransactionHashRecord binds a transaction hash to the exact set of
// document hashes it covered when first seen. ContentDigest is the hash of
// the sorted set; any later claim of the same transaction hash with a
// different digest is a replay against different content.
type TransactionHashRecord struct {
	TransactionHash   string
	SubmissionID      id.SubmissionID
	DocumentHashes    []string
	ContentDigest     string
	Submitter         id.UserID
	Confirmed         bool
	ConfirmationCount int
	BlockReference    string
	RecordedAt        time.Time
}

// ForgeryKind classifies what rule fired.
type ForgeryKind string

const (
	KindDuplicateSubmission ForgeryKind = "DUPLICATE_SUBMISSION"
	KindContentMismatch     ForgeryKind = "CONTENT_MISMATCH"
	KindOther               ForgeryKind = "OTHER"
)

// Severity grades a forgery report for the review queue.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ForgeryReport flags a detected integrity or duplication anomaly for human
// review. Reports are created by the registry and resolved only by an
// explicit reviewer action.
type ForgeryReport struct {
	ID                     id.ReportID
	Kind                   ForgeryKind
	Severity               Severity
	SuspiciousSubmissionID id.SubmissionID
	OriginalSubmissionID   id.SubmissionID
	SuspiciousSubmitter    id.UserID
	OriginalSubmitter      id.UserID
	Evidence               json.RawMessage // structured snapshot of both submissions
	Resolved               bool
	ResolvedBy             id.UserID
	ResolvedAt             *time.Time
	CreatedAt              time.Time
}

// DocumentEvidence is the Evidence payload for DUPLICATE_SUBMISSION reports.
type DocumentEvidence struct {
	DocumentHash       string `json:"document_hash"`
	OriginalFilename   string `json:"original_filename"`
	FirstSubmitter     string `json:"first_submitter"`
	FirstSubmissionID  string `json:"first_submission_id"`
	SecondSubmitter    string `json:"second_submitter"`
	SecondSubmissionID string `json:"second_submission_id"`
	SubmissionCount    int    `json:"submission_count"`
}

// TransactionEvidence is the Evidence payload for CONTENT_MISMATCH reports.
type TransactionEvidence struct {
	TransactionHash string   `json:"transaction_hash"`
	StoredDigest    string   `json:"stored_digest"`
	ClaimedDigest   string   `json:"claimed_digest"`
	StoredHashes    []string `json:"stored_hashes"`
	ClaimedHashes   []string `json:"claimed_hashes"`
	FirstSubmitter  string   `json:"first_submitter"`
	SecondSubmitter string   `json:"second_submitter"`
}

// DocumentResult reports the classification of one RecordDocument call.
// Duplicate-but-legitimate resubmission is a successful outcome, not an
// error.
type DocumentResult struct {
	Duplicate       bool
	Forgery         bool
	Severity        Severity
	SubmissionCount int
	ReportID        id.ReportID // set when a report was created
	Record          *DocumentHashRecord
}

// TransactionResult reports the classification of one RecordTransaction
// call.
type TransactionResult struct {
	Valid           bool
	Exists          bool
	ContentMatches  bool
	ForgeryDetected bool
	ReportID        id.ReportID
	Record          *TransactionHashRecord
}
