// Package domainerrors provides coded domain errors. Services translate store
// and crypto failures into these so transports can map them to wire responses
// without inspecting error strings. Import with the dErrors alias.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error. Codes are part of the service contract:
// handlers map them to HTTP statuses and tests assert on them.
type Code string

const (
	CodeInternal           Code = "internal"
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeInvariantViolation Code = "invariant_violation"

	// Crypto and integrity failures. These are never retried: a bad tag or a
	// post-decrypt hash mismatch is tamper evidence, not a transient fault.
	CodeCryptoFailure         Code = "crypto_failure"
	CodeAuthenticationFailure Code = "authentication_failure"
	CodeIntegrityViolation    Code = "integrity_violation"

	// Grant lifecycle failures. Terminal for the presented token; the caller
	// must request a fresh grant.
	CodeGrantExpired   Code = "grant_expired"
	CodeGrantExhausted Code = "grant_exhausted"
	CodeGrantRevoked   Code = "grant_revoked"
)

// Error carries a code, a human-readable message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a domain error with the given code.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or CodeInternal when err is not a
// domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Is reports whether err is a domain error at all.
func Is(err error) bool {
	var de *Error
	return errors.As(err, &de)
}
