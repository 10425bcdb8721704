package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"veridoc/internal/grants"
	"veridoc/internal/transport/http/shared"
	id "veridoc/pkg/domain"
	dErrors "veridoc/pkg/domain-errors"
)

// GrantService is the capability token surface the HTTP layer depends on.
type GrantService interface {
	Issue(ctx context.Context, subject id.UserID, grantee string, scope grants.Scope, purpose string, ttl time.Duration, maxUsage int) (*grants.AccessGrant, error)
	Revoke(ctx context.Context, token string, requester id.UserID) error
	ListBySubject(ctx context.Context, subject id.UserID) ([]*grants.AccessGrant, error)
}

type GrantsHandler struct {
	grants GrantService
	logger *slog.Logger
}

func NewGrantsHandler(service GrantService, logger *slog.Logger) *GrantsHandler {
	return &GrantsHandler{grants: service, logger: logger}
}

type issueGrantRequest struct {
	Grantee      string   `json:"grantee"`
	RecordRef    string   `json:"record_ref,omitempty"`
	DocumentIDs  []string `json:"document_ids,omitempty"`
	Capabilities []string `json:"capabilities"`
	Purpose      string   `json:"purpose"`
	TTLSeconds   int64    `json:"ttl_seconds"`
	MaxUsage     int      `json:"max_usage"`
}

type grantResponse struct {
	ID        string   `json:"id"`
	Token     string   `json:"token,omitempty"` // only on issue
	Grantee   string   `json:"grantee"`
	Purpose   string   `json:"purpose"`
	IssuedAt  string   `json:"issued_at"`
	ExpiresAt string   `json:"expires_at"`
	UsageLeft int      `json:"usage_left"`
	Active    bool     `json:"active"`
	Documents []string `json:"document_ids,omitempty"`
	RecordRef string   `json:"record_ref,omitempty"`
}

type revokeGrantRequest struct {
	Token string `json:"token"`
}

func (h *GrantsHandler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subject, err := requesterID(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req issueGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	caps := make([]grants.Capability, 0, len(req.Capabilities))
	for _, c := range req.Capabilities {
		caps = append(caps, grants.Capability(c))
	}
	scope := grants.Scope{
		RecordRef:    req.RecordRef,
		DocumentIDs:  req.DocumentIDs,
		Capabilities: caps,
	}

	grant, err := h.grants.Issue(ctx, subject, req.Grantee, scope, req.Purpose,
		time.Duration(req.TTLSeconds)*time.Second, req.MaxUsage)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	resp := toGrantResponse(grant)
	resp.Token = grant.Token
	shared.WriteJSON(w, http.StatusCreated, resp)
}

func (h *GrantsHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requester, err := requesterID(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req revokeGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.grants.Revoke(ctx, req.Token, requester); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GrantsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subject, err := requesterID(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	list, err := h.grants.ListBySubject(ctx, subject)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	out := make([]grantResponse, 0, len(list))
	for _, grant := range list {
		out = append(out, toGrantResponse(grant))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"grants": out})
}

// toGrantResponse omits the token: it is a secret shown once at issuance.
func toGrantResponse(grant *grants.AccessGrant) grantResponse {
	return grantResponse{
		ID:        grant.ID.String(),
		Grantee:   grant.GranteeID,
		Purpose:   grant.Purpose,
		IssuedAt:  grant.IssuedAt.Format(time.RFC3339),
		ExpiresAt: grant.ExpiresAt.Format(time.RFC3339),
		UsageLeft: grant.MaxUsage - grant.UsageCount,
		Active:    grant.Active,
		Documents: grant.Scope.DocumentIDs,
		RecordRef: grant.Scope.RecordRef,
	}
}
