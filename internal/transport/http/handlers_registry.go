package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"veridoc/internal/registry"
	"veridoc/internal/transport/http/shared"
	id "veridoc/pkg/domain"
	dErrors "veridoc/pkg/domain-errors"
	"veridoc/pkg/platform/middleware/auth"
)

// RegistryService is the hash registry surface the HTTP layer depends on.
type RegistryService interface {
	RecordDocument(ctx context.Context, documentHash string, submitter id.UserID, submission id.SubmissionID, meta registry.FileMeta) (*registry.DocumentResult, error)
	RecordTransaction(ctx context.Context, transactionHash string, submission id.SubmissionID, documentHashes []string, submitter id.UserID) (*registry.TransactionResult, error)
	ResolveReport(ctx context.Context, reportID id.ReportID, reviewer id.UserID) error
	ListOpenReports(ctx context.Context) ([]*registry.ForgeryReport, error)
}

type RegistryHandler struct {
	registry RegistryService
	logger   *slog.Logger
}

func NewRegistryHandler(registry RegistryService, logger *slog.Logger) *RegistryHandler {
	return &RegistryHandler{registry: registry, logger: logger}
}

type registerDocumentRequest struct {
	DocumentHash   string `json:"document_hash"`
	SubmissionID   string `json:"submission_id"`
	Filename       string `json:"filename"`
	FileSize       int64  `json:"file_size"`
	MimeType       string `json:"mime_type"`
	ContentAddress string `json:"content_address"`
}

type registerDocumentResponse struct {
	Status          string `json:"status"`
	Duplicate       bool   `json:"duplicate"`
	Forgery         bool   `json:"forgery"`
	Severity        string `json:"severity,omitempty"`
	SubmissionCount int    `json:"submission_count"`
	ReportID        string `json:"report_id,omitempty"`
}

type recordTransactionRequest struct {
	TransactionHash string   `json:"transaction_hash"`
	SubmissionID    string   `json:"submission_id"`
	DocumentHashes  []string `json:"document_hashes"`
}

type recordTransactionResponse struct {
	Valid           bool   `json:"valid"`
	Exists          bool   `json:"exists"`
	ContentMatches  bool   `json:"content_matches"`
	ForgeryDetected bool   `json:"forgery_detected"`
	ReportID        string `json:"report_id,omitempty"`
}

func (h *RegistryHandler) handleRegisterDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	submitter, err := requesterID(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req registerDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	submission, err := id.ParseSubmissionID(req.SubmissionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	result, err := h.registry.RecordDocument(ctx, req.DocumentHash, submitter, submission, registry.FileMeta{
		Filename:       req.Filename,
		Size:           req.FileSize,
		MimeType:       req.MimeType,
		ContentAddress: req.ContentAddress,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "document registration failed",
			"document_hash", req.DocumentHash,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	resp := registerDocumentResponse{
		Status:          string(result.Record.Status),
		Duplicate:       result.Duplicate,
		Forgery:         result.Forgery,
		SubmissionCount: result.SubmissionCount,
	}
	if result.Duplicate || result.Forgery {
		resp.Severity = string(result.Severity)
	}
	if !result.ReportID.IsNil() {
		resp.ReportID = result.ReportID.String()
	}

	status := http.StatusCreated
	if result.Duplicate || result.Forgery {
		status = http.StatusOK
	}
	shared.WriteJSON(w, status, resp)
}

func (h *RegistryHandler) handleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	submitter, err := requesterID(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req recordTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	submission, err := id.ParseSubmissionID(req.SubmissionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	result, err := h.registry.RecordTransaction(ctx, req.TransactionHash, submission, req.DocumentHashes, submitter)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	resp := recordTransactionResponse{
		Valid:           result.Valid,
		Exists:          result.Exists,
		ContentMatches:  result.ContentMatches,
		ForgeryDetected: result.ForgeryDetected,
	}
	if !result.ReportID.IsNil() {
		resp.ReportID = result.ReportID.String()
	}
	shared.WriteJSON(w, http.StatusOK, resp)
}

func (h *RegistryHandler) handleResolveReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	reviewer, err := requesterID(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	reportID, err := id.ParseReportID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.registry.ResolveReport(ctx, reportID, reviewer); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reportResponse struct {
	ID                     string          `json:"id"`
	Kind                   string          `json:"kind"`
	Severity               string          `json:"severity"`
	SuspiciousSubmissionID string          `json:"suspicious_submission_id"`
	OriginalSubmissionID   string          `json:"original_submission_id"`
	SuspiciousSubmitter    string          `json:"suspicious_submitter"`
	OriginalSubmitter      string          `json:"original_submitter"`
	Evidence               json.RawMessage `json:"evidence"`
	CreatedAt              string          `json:"created_at"`
}

func (h *RegistryHandler) handleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.registry.ListOpenReports(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	out := make([]reportResponse, 0, len(reports))
	for _, rep := range reports {
		out = append(out, reportResponse{
			ID:                     rep.ID.String(),
			Kind:                   string(rep.Kind),
			Severity:               string(rep.Severity),
			SuspiciousSubmissionID: rep.SuspiciousSubmissionID.String(),
			OriginalSubmissionID:   rep.OriginalSubmissionID.String(),
			SuspiciousSubmitter:    rep.SuspiciousSubmitter.String(),
			OriginalSubmitter:      rep.OriginalSubmitter.String(),
			Evidence:               rep.Evidence,
			CreatedAt:              rep.CreatedAt.Format(time.RFC3339),
		})
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"reports": out})
}

// requesterID pulls the authenticated user out of the context. The auth
// middleware guarantees it is present on protected routes.
func requesterID(ctx context.Context) (id.UserID, error) {
	raw := auth.GetUserID(ctx)
	if raw == "" {
		return id.UserID{}, dErrors.New(dErrors.CodeInternal, "authentication context error")
	}
	return id.ParseUserID(raw)
}
