// Package domain holds strongly typed identifiers shared across modules.
// IDs are UUIDs wrapped in distinct types so a submission id can never be
// passed where a user id is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "veridoc/pkg/domain-errors"
)

type (
	// UserID identifies a citizen, admin, or verifier account.
	UserID uuid.UUID
	// SubmissionID identifies one KYC form submission.
	SubmissionID uuid.UUID
	// GrantID identifies an access grant row (the grant token itself is a
	// separate opaque secret).
	GrantID uuid.UUID
	// ReportID identifies a forgery report.
	ReportID uuid.UUID
)

func (id UserID) String() string       { return uuid.UUID(id).String() }
func (id SubmissionID) String() string { return uuid.UUID(id).String() }
func (id GrantID) String() string      { return uuid.UUID(id).String() }
func (id ReportID) String() string     { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id SubmissionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id GrantID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id ReportID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

// MarshalText/UnmarshalText encode IDs as canonical UUID strings so JSON
// payloads (audit fanout, alert queue) stay readable. Unlike the Parse
// helpers, UnmarshalText accepts the nil UUID: a zero actor must survive a
// round trip through a broker.

func (id UserID) MarshalText() ([]byte, error)       { return []byte(uuid.UUID(id).String()), nil }
func (id SubmissionID) MarshalText() ([]byte, error) { return []byte(uuid.UUID(id).String()), nil }
func (id GrantID) MarshalText() ([]byte, error)      { return []byte(uuid.UUID(id).String()), nil }
func (id ReportID) MarshalText() ([]byte, error)     { return []byte(uuid.UUID(id).String()), nil }

func (id *UserID) UnmarshalText(text []byte) error {
	parsed, err := uuid.Parse(string(text))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "user_id is not a valid UUID")
	}
	*id = UserID(parsed)
	return nil
}

func (id *SubmissionID) UnmarshalText(text []byte) error {
	parsed, err := uuid.Parse(string(text))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "submission_id is not a valid UUID")
	}
	*id = SubmissionID(parsed)
	return nil
}

func (id *GrantID) UnmarshalText(text []byte) error {
	parsed, err := uuid.Parse(string(text))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "grant_id is not a valid UUID")
	}
	*id = GrantID(parsed)
	return nil
}

func (id *ReportID) UnmarshalText(text []byte) error {
	parsed, err := uuid.Parse(string(text))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "report_id is not a valid UUID")
	}
	*id = ReportID(parsed)
	return nil
}

// NewUserID returns a random UserID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewSubmissionID returns a random SubmissionID.
func NewSubmissionID() SubmissionID { return SubmissionID(uuid.New()) }

// NewGrantID returns a random GrantID.
func NewGrantID() GrantID { return GrantID(uuid.New()) }

// NewReportID returns a random ReportID.
func NewReportID() ReportID { return ReportID(uuid.New()) }

// parseUUID enforces the shared invariant: IDs must be valid, non-empty,
// non-nil UUIDs. Trust boundaries (HTTP handlers) call the typed wrappers.
func parseUUID(raw, kind string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, kind+" is not a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" must not be the nil UUID")
	}
	return parsed, nil
}

// ParseUserID parses and validates a user id from its string form.
func ParseUserID(raw string) (UserID, error) {
	parsed, err := parseUUID(raw, "user_id")
	return UserID(parsed), err
}

// ParseSubmissionID parses and validates a submission id from its string form.
func ParseSubmissionID(raw string) (SubmissionID, error) {
	parsed, err := parseUUID(raw, "submission_id")
	return SubmissionID(parsed), err
}

// ParseGrantID parses and validates a grant id from its string form.
func ParseGrantID(raw string) (GrantID, error) {
	parsed, err := parseUUID(raw, "grant_id")
	return GrantID(parsed), err
}

// ParseReportID parses and validates a report id from its string form.
func ParseReportID(raw string) (ReportID, error) {
	parsed, err := parseUUID(raw, "report_id")
	return ReportID(parsed), err
}
