package httptransport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"veridoc/internal/contentstore"
	"veridoc/internal/cryptocore"
	"veridoc/internal/retrieval"
	"veridoc/internal/transport/http/shared"
	"veridoc/internal/vault"
	dErrors "veridoc/pkg/domain-errors"
)

// Retriever authorizes and decrypts stored packages.
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) (*retrieval.Result, error)
}

type DocumentsHandler struct {
	vault     *vault.Vault
	content   contentstore.Store
	retriever Retriever
	logger    *slog.Logger
}

func NewDocumentsHandler(v *vault.Vault, content contentstore.Store, retriever Retriever, logger *slog.Logger) *DocumentsHandler {
	return &DocumentsHandler{vault: v, content: content, retriever: retriever, logger: logger}
}

type packageRequest struct {
	File        string `json:"file"` // base64
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`

	// Secret switches the package to a derived key; the caller re-derives
	// it from the same secret at retrieval time.
	Secret string `json:"secret,omitempty"`
}

type packageResponse struct {
	ContentAddress string `json:"content_address"`
	DocumentHash   string `json:"document_hash"`
	KeyMode        string `json:"key_mode"`

	// Key is returned exactly once, only for random-key packages. The
	// service never stores it.
	Key string `json:"key,omitempty"`
}

type retrieveRequest struct {
	ContentAddress string `json:"content_address"`
	Key            string `json:"key,omitempty"`    // base64, random-key packages
	Secret         string `json:"secret,omitempty"` // derived-key packages
	GrantToken     string `json:"grant_token,omitempty"`
	Purpose        string `json:"purpose,omitempty"`
}

type retrieveResponse struct {
	File        string `json:"file"` // base64
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	FileSize    int64  `json:"file_size"`
	Timestamp   string `json:"timestamp"`
}

// handlePackage seals an uploaded file and stores the package in the
// content store. Key custody stays with the caller.
func (h *DocumentsHandler) handlePackage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req packageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	fileBytes, err := base64.StdEncoding.DecodeString(req.File)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "file must be base64 encoded"))
		return
	}

	var secret []byte
	if req.Secret != "" {
		secret = []byte(req.Secret)
	}

	pkg, key, err := h.vault.BuildPackage(fileBytes, vault.Metadata{
		Filename:    req.Filename,
		ContentType: req.ContentType,
	}, secret)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	packed, err := pkg.Marshal()
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	addr, err := h.content.Put(ctx, packed)
	if err != nil {
		h.logger.ErrorContext(ctx, "content store write failed", "error", err.Error())
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "store document package"))
		return
	}

	resp := packageResponse{
		ContentAddress: string(addr),
		DocumentHash:   cryptocore.Hash(fileBytes).Hex(),
		KeyMode:        string(pkg.KeyMode),
	}
	if pkg.KeyMode == vault.KeyModeRandom {
		resp.Key = base64.StdEncoding.EncodeToString(key)
	}
	shared.WriteJSON(w, http.StatusCreated, resp)
}

// handleRetrieve decrypts a stored package for an authorized requester.
func (h *DocumentsHandler) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requester, err := requesterID(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	retrieveReq := retrieval.Request{
		RequesterID:  requester,
		DocumentHash: chi.URLParam(r, "hash"),
		Address:      contentstore.Address(req.ContentAddress),
		GrantToken:   req.GrantToken,
		Purpose:      req.Purpose,
	}
	if req.Key != "" {
		key, err := base64.StdEncoding.DecodeString(req.Key)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "key must be base64 encoded"))
			return
		}
		retrieveReq.Key = key
	}
	if req.Secret != "" {
		retrieveReq.Secret = []byte(req.Secret)
	}

	result, err := h.retriever.Retrieve(ctx, retrieveReq)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, retrieveResponse{
		File:        base64.StdEncoding.EncodeToString(result.File),
		Filename:    result.Metadata.Filename,
		ContentType: result.Metadata.ContentType,
		FileSize:    result.Metadata.FileSize,
		Timestamp:   result.Metadata.Timestamp.Format(time.RFC3339),
	})
}
