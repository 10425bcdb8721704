package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"veridoc/internal/transport/http/shared"
	"veridoc/internal/verification"
	dErrors "veridoc/pkg/domain-errors"
)

// GrantTokenHeader authenticates status verification requests. Verifiers
// hold a capability token, not a user account, so these routes skip JWT.
const GrantTokenHeader = "X-Grant-Token"

// Verifier is the status verification surface the HTTP layer depends on.
type Verifier interface {
	VerifyStatus(ctx context.Context, token, recordRef string) (verification.RecordStanding, error)
}

type VerifyHandler struct {
	verifier Verifier
	logger   *slog.Logger
}

func NewVerifyHandler(verifier Verifier, logger *slog.Logger) *VerifyHandler {
	return &VerifyHandler{verifier: verifier, logger: logger}
}

type verifyStatusRequest struct {
	RecordRef string `json:"record_ref"`
}

type verifyStatusResponse struct {
	RecordRef   string `json:"record_ref"`
	Status      string `json:"status"`
	Level       int    `json:"level"`
	LastUpdated string `json:"last_updated"`
}

func (h *VerifyHandler) handleVerifyStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := r.Header.Get(GrantTokenHeader)
	if token == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing grant token header"))
		return
	}

	var req verifyStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	standing, err := h.verifier.VerifyStatus(ctx, token, req.RecordRef)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, verifyStatusResponse{
		RecordRef:   standing.RecordRef,
		Status:      string(standing.Status),
		Level:       standing.Level,
		LastUpdated: standing.LastUpdated.Format(time.RFC3339),
	})
}
