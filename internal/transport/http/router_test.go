package httptransport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"veridoc/internal/contentstore"
	"veridoc/internal/cryptocore"
	grantservice "veridoc/internal/grants/service"
	grantstore "veridoc/internal/grants/store"
	registryservice "veridoc/internal/registry/service"
	registrystore "veridoc/internal/registry/store"
	"veridoc/internal/retrieval"
	"veridoc/internal/vault"
	"veridoc/internal/verification"
	id "veridoc/pkg/domain"
	"veridoc/pkg/platform/middleware/auth"
)

// stubValidator maps bearer tokens directly to claims.
type stubValidator struct {
	claims map[string]*auth.JWTClaims
}

func (v *stubValidator) ValidateToken(token string) (*auth.JWTClaims, error) {
	if claims, ok := v.claims[token]; ok {
		return claims, nil
	}
	return nil, errUnauthorized
}

var errUnauthorized = &claimError{}

type claimError struct{}

func (e *claimError) Error() string { return "unknown token" }

type ownerDirectoryStub struct {
	owners map[string]id.UserID
}

func (d *ownerDirectoryStub) OwnerOf(_ context.Context, hash string) (id.UserID, error) {
	return d.owners[hash], nil
}

type roleDirectoryStub struct {
	roles map[id.UserID]retrieval.Role
}

func (d *roleDirectoryStub) RoleOf(_ context.Context, userID id.UserID) (retrieval.Role, error) {
	if role, ok := d.roles[userID]; ok {
		return role, nil
	}
	return retrieval.RoleCitizen, nil
}

type statusDirectoryStub struct {
	standings map[string]verification.RecordStanding
}

func (d *statusDirectoryStub) StandingOf(_ context.Context, ref string) (verification.RecordStanding, error) {
	if standing, ok := d.standings[ref]; ok {
		return standing, nil
	}
	return verification.RecordStanding{}, errUnauthorized
}

type RouterSuite struct {
	suite.Suite
	server *httptest.Server

	citizen id.UserID
	admin   id.UserID
	owners  *ownerDirectoryStub
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.citizen = id.NewUserID()
	s.admin = id.NewUserID()

	registrySvc, err := registryservice.New(registrystore.NewInMemoryStore(), registryservice.WithLogger(logger))
	s.Require().NoError(err)

	grantSvc, err := grantservice.New(grantstore.NewInMemoryStore(), grantservice.WithLogger(logger))
	s.Require().NoError(err)

	v := vault.New()
	content := contentstore.NewInMemoryStore()
	s.owners = &ownerDirectoryStub{owners: map[string]id.UserID{}}
	roles := &roleDirectoryStub{roles: map[id.UserID]retrieval.Role{s.admin: retrieval.RoleAdmin}}

	retrievalSvc, err := retrieval.New(content, s.owners, roles, grantSvc, v, retrieval.WithLogger(logger))
	s.Require().NoError(err)

	statuses := &statusDirectoryStub{standings: map[string]verification.RecordStanding{
		"record-1": {
			RecordRef:   "record-1",
			Status:      verification.StatusVerified,
			Level:       2,
			LastUpdated: time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC),
		},
	}}
	verifier, err := verification.New(statuses, grantSvc, verification.WithLogger(logger))
	s.Require().NoError(err)

	validator := &stubValidator{claims: map[string]*auth.JWTClaims{
		"citizen-token": {UserID: s.citizen.String(), Role: "citizen"},
		"admin-token":   {UserID: s.admin.String(), Role: "admin"},
	}}

	router := NewRouter(Deps{
		Registry:     registrySvc,
		Grants:       grantSvc,
		Verifier:     verifier,
		Documents:    NewDocumentsHandler(v, content, retrievalSvc, logger),
		JWTValidator: validator,
		Logger:       logger,
	})
	s.server = httptest.NewServer(router)
}

func (s *RouterSuite) TearDownTest() {
	s.server.Close()
}

func (s *RouterSuite) do(method, path, token string, body any) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	s.Require().NoError(err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *RouterSuite) decode(resp *http.Response, into any) {
	defer resp.Body.Close()
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(into))
}

func (s *RouterSuite) TestAuthRequired() {
	resp := s.do(http.MethodPost, "/documents/register", "", map[string]any{})
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func (s *RouterSuite) TestRegisterDocument() {
	docHash := cryptocore.Hash([]byte("passport scan")).Hex()

	resp := s.do(http.MethodPost, "/documents/register", "citizen-token", map[string]any{
		"document_hash": docHash,
		"submission_id": id.NewSubmissionID().String(),
		"filename":      "passport.pdf",
		"file_size":     2048,
		"mime_type":     "application/pdf",
	})
	s.Equal(http.StatusCreated, resp.StatusCode)

	var out registerDocumentResponse
	s.decode(resp, &out)
	s.Equal("registered", out.Status)
	s.False(out.Forgery)
	s.Equal(1, out.SubmissionCount)

	// same document from a different submitter is a forgery signal
	resp = s.do(http.MethodPost, "/documents/register", "admin-token", map[string]any{
		"document_hash": docHash,
		"submission_id": id.NewSubmissionID().String(),
		"filename":      "passport.pdf",
	})
	s.Equal(http.StatusOK, resp.StatusCode)

	s.decode(resp, &out)
	s.True(out.Forgery)
	s.NotEmpty(out.ReportID)
}

func (s *RouterSuite) TestPackageAndRetrieve() {
	fileBytes := []byte("identity document body")
	docHash := cryptocore.Hash(fileBytes).Hex()
	s.owners.owners[docHash] = s.citizen

	resp := s.do(http.MethodPost, "/documents/package", "citizen-token", map[string]any{
		"file":         base64.StdEncoding.EncodeToString(fileBytes),
		"filename":     "card.jpg",
		"content_type": "image/jpeg",
	})
	s.Equal(http.StatusCreated, resp.StatusCode)

	var packed packageResponse
	s.decode(resp, &packed)
	s.Equal(docHash, packed.DocumentHash)
	s.NotEmpty(packed.Key)
	s.Equal("random", packed.KeyMode)

	resp = s.do(http.MethodPost, "/documents/"+docHash+"/retrieve", "citizen-token", map[string]any{
		"content_address": packed.ContentAddress,
		"key":             packed.Key,
		"purpose":         "self service download",
	})
	s.Equal(http.StatusOK, resp.StatusCode)

	var got retrieveResponse
	s.decode(resp, &got)
	decoded, err := base64.StdEncoding.DecodeString(got.File)
	s.Require().NoError(err)
	s.Equal(fileBytes, decoded)
	s.Equal("card.jpg", got.Filename)
}

func (s *RouterSuite) TestRetrieveDeniedForStranger() {
	fileBytes := []byte("someone else's document")
	docHash := cryptocore.Hash(fileBytes).Hex()
	s.owners.owners[docHash] = s.admin

	resp := s.do(http.MethodPost, "/documents/package", "admin-token", map[string]any{
		"file":     base64.StdEncoding.EncodeToString(fileBytes),
		"filename": "secret.pdf",
	})
	var packed packageResponse
	s.decode(resp, &packed)

	resp = s.do(http.MethodPost, "/documents/"+docHash+"/retrieve", "citizen-token", map[string]any{
		"content_address": packed.ContentAddress,
		"key":             packed.Key,
	})
	s.Equal(http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func (s *RouterSuite) TestGrantLifecycleAndVerify() {
	// issue a verify grant bound to record-1
	resp := s.do(http.MethodPost, "/grants", "citizen-token", issueGrantRequest{
		Grantee:      "employer-42",
		RecordRef:    "record-1",
		Capabilities: []string{"verify"},
		Purpose:      "employment screening",
		TTLSeconds:   3600,
		MaxUsage:     2,
	})
	s.Equal(http.StatusCreated, resp.StatusCode)

	var issued grantResponse
	s.decode(resp, &issued)
	s.Require().NotEmpty(issued.Token)

	// capability-token route needs no JWT
	req, err := http.NewRequest(http.MethodPost, s.server.URL+"/verify/status",
		bytes.NewBufferString(`{"record_ref":"record-1"}`))
	s.Require().NoError(err)
	req.Header.Set(GrantTokenHeader, issued.Token)
	verifyResp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	s.Equal(http.StatusOK, verifyResp.StatusCode)

	var standing verifyStatusResponse
	s.decode(verifyResp, &standing)
	s.Equal("VERIFIED", standing.Status)
	s.Equal(2, standing.Level)

	// list omits the token
	resp = s.do(http.MethodGet, "/grants", "citizen-token", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	var listed struct {
		Grants []grantResponse `json:"grants"`
	}
	s.decode(resp, &listed)
	s.Require().Len(listed.Grants, 1)
	s.Empty(listed.Grants[0].Token)
	s.Equal(1, listed.Grants[0].UsageLeft)

	// revoke, then the token is terminally dead
	resp = s.do(http.MethodPost, "/grants/revoke", "citizen-token", revokeGrantRequest{Token: issued.Token})
	s.Equal(http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	req, err = http.NewRequest(http.MethodPost, s.server.URL+"/verify/status",
		bytes.NewBufferString(`{"record_ref":"record-1"}`))
	s.Require().NoError(err)
	req.Header.Set(GrantTokenHeader, issued.Token)
	verifyResp, err = s.server.Client().Do(req)
	s.Require().NoError(err)
	s.Equal(http.StatusGone, verifyResp.StatusCode)
	verifyResp.Body.Close()
}

func (s *RouterSuite) TestAdminRoutesRequireRole() {
	resp := s.do(http.MethodGet, "/reports", "citizen-token", nil)
	s.Equal(http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(http.MethodGet, "/reports", "admin-token", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func (s *RouterSuite) TestHealthz() {
	resp, err := s.server.Client().Get(s.server.URL + "/healthz")
	s.Require().NoError(err)
	s.Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
