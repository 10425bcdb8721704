// Package shared holds the JSON helpers every handler uses: the error
// envelope and its code to HTTP status mapping.
package shared

import (
	"encoding/json"
	"net/http"

	dErrors "veridoc/pkg/domain-errors"
)

// ErrorResponse is the JSON error envelope returned by every endpoint.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

var statusByCode = map[dErrors.Code]int{
	dErrors.CodeBadRequest:            http.StatusBadRequest,
	dErrors.CodeInvalidInput:          http.StatusBadRequest,
	dErrors.CodeValidation:            http.StatusBadRequest,
	dErrors.CodeUnauthorized:          http.StatusUnauthorized,
	dErrors.CodeForbidden:             http.StatusForbidden,
	dErrors.CodeNotFound:              http.StatusNotFound,
	dErrors.CodeConflict:              http.StatusConflict,
	dErrors.CodeGrantExpired:          http.StatusGone,
	dErrors.CodeGrantRevoked:          http.StatusGone,
	dErrors.CodeGrantExhausted:        http.StatusTooManyRequests,
	dErrors.CodeAuthenticationFailure: http.StatusUnprocessableEntity,
	dErrors.CodeIntegrityViolation:    http.StatusUnprocessableEntity,
	dErrors.CodeCryptoFailure:         http.StatusInternalServerError,
	dErrors.CodeInvariantViolation:    http.StatusInternalServerError,
	dErrors.CodeInternal:              http.StatusInternalServerError,
}

// ToHTTPStatus maps a domain error code to its HTTP status.
func ToHTTPStatus(code dErrors.Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteError translates a domain error into the JSON error envelope.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := ToHTTPStatus(code)

	message := err.Error()
	if status == http.StatusInternalServerError {
		// never leak internals
		message = "internal error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:            string(code),
		ErrorDescription: message,
	})
}

// WriteJSON writes a JSON success response.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
