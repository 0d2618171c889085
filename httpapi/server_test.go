package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"marketflow/auth"
	"marketflow/listing"
	"marketflow/pagination"
	"marketflow/request"
)

type stubAuthService struct {
	user     *auth.User
	login    auth.LoginResult
	loginErr error
	regErr   error
	getErr   error
}

func (s *stubAuthService) Register(_ context.Context, _ auth.RegisterRequest) (*auth.User, error) {
	return s.user, s.regErr
}

func (s *stubAuthService) Login(_ context.Context, _ auth.LoginRequest) (auth.LoginResult, error) {
	return s.login, s.loginErr
}

func (s *stubAuthService) GetUserByID(_ context.Context, _ string) (*auth.User, error) {
	return s.user, s.getErr
}

type stubVerifier struct {
	userID string
	role   auth.Role
	err    error
}

func (s *stubVerifier) VerifyToken(_ string) (string, auth.Role, error) {
	return s.userID, s.role, s.err
}

type stubListingService struct {
	created   listing.Listing
	createErr error
	viewed    listing.Listing
	viewErr   error
	listRes   listing.ListResult
	listErr   error
	updated   listing.Listing
	updateErr error
	deleteErr error
}

func (s *stubListingService) Create(_ context.Context, _ listing.CreateParams) (listing.Listing, error) {
	return s.created, s.createErr
}

func (s *stubListingService) View(_ context.Context, _ string) (listing.Listing, error) {
	return s.viewed, s.viewErr
}

func (s *stubListingService) List(_ context.Context, _ listing.Filters) (listing.ListResult, error) {
	return s.listRes, s.listErr
}

func (s *stubListingService) UpdateStatus(_ context.Context, _, _ string, _ auth.Role, _ listing.Status) (listing.Listing, error) {
	return s.updated, s.updateErr
}

func (s *stubListingService) Delete(_ context.Context, _, _ string, _ auth.Role) error {
	return s.deleteErr
}

type stubRequestService struct {
	created       request.Request
	createErr     error
	got           request.Request
	getErr        error
	transitioned  request.Request
	transitionErr error
	edited        request.Request
	editErr       error
	deleteErr     error
	mineRes       request.ListResult
	mineErr       error
	receivedRes   request.ListResult
	receivedErr   error

	lastCreate     request.CreateParams
	lastTransition request.TransitionParams
	lastMineKind   request.Kind
}

func (s *stubRequestService) Create(_ context.Context, params request.CreateParams) (request.Request, error) {
	s.lastCreate = params
	return s.created, s.createErr
}

func (s *stubRequestService) Get(_ context.Context, _, _ string, _ auth.Role) (request.Request, error) {
	return s.got, s.getErr
}

func (s *stubRequestService) Transition(_ context.Context, params request.TransitionParams) (request.Request, error) {
	s.lastTransition = params
	return s.transitioned, s.transitionErr
}

func (s *stubRequestService) Edit(_ context.Context, _ request.EditParams) (request.Request, error) {
	return s.edited, s.editErr
}

func (s *stubRequestService) Delete(_ context.Context, _, _ string, _ auth.Role) error {
	return s.deleteErr
}

func (s *stubRequestService) ListForRequester(_ context.Context, _ string, kind request.Kind, _, _ int) (request.ListResult, error) {
	s.lastMineKind = kind
	return s.mineRes, s.mineErr
}

func (s *stubRequestService) ListForOwner(_ context.Context, _ string, _ request.Kind, _, _ int) (request.ListResult, error) {
	return s.receivedRes, s.receivedErr
}

func newTestServer(reqSvc *stubRequestService) (*Server, http.Handler) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	srv := NewServer(
		&stubAuthService{user: &auth.User{ID: "u1", Email: "u@example.com", FullName: "User", Role: auth.RoleMember, CreatedAt: now}},
		&stubListingService{},
		reqSvc,
		&stubVerifier{userID: "u1", role: auth.RoleMember},
	)
	return srv, srv.Router()
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestHandleRegister_Success(t *testing.T) {
	_, router := newTestServer(&stubRequestService{})

	body := strings.NewReader(`{"email":"u@example.com","password":"longenough","full_name":"User"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Fatalf("expected success envelope, got %+v", env)
	}
}

func TestHandleRegister_DuplicateEmail(t *testing.T) {
	srv, _ := newTestServer(&stubRequestService{})
	srv.authService = &stubAuthService{regErr: auth.ErrDuplicateEmail}
	router := srv.Router()

	body := strings.NewReader(`{"email":"u@example.com","password":"longenough","full_name":"User"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Success || env.Error == "" {
		t.Fatalf("expected failure envelope with message, got %+v", env)
	}
}

func TestHandleLogin_BadCredentials(t *testing.T) {
	srv, _ := newTestServer(&stubRequestService{})
	srv.authService = &stubAuthService{loginErr: auth.ErrInvalidCredentials}
	router := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"u@example.com","password":"wrong"}`))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddleware_RejectsMissingToken(t *testing.T) {
	_, router := newTestServer(&stubRequestService{})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}
}

func TestHandleCreateRequest_PinsKind(t *testing.T) {
	reqSvc := &stubRequestService{created: request.Request{ID: "r1", Kind: request.KindApplication, Status: request.StatusPending}}
	_, router := newTestServer(reqSvc)

	body := strings.NewReader(`{"resource_id":"job-1","message":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/applications/", body)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if reqSvc.lastCreate.Kind != request.KindApplication {
		t.Fatalf("expected application kind pinned by the mount, got %q", reqSvc.lastCreate.Kind)
	}
	if reqSvc.lastCreate.RequesterID != "u1" {
		t.Fatalf("requester must come from the token, got %q", reqSvc.lastCreate.RequesterID)
	}
}

func TestHandleCreateRequest_DuplicatePending(t *testing.T) {
	_, router := newTestServer(&stubRequestService{createErr: request.ErrDuplicatePending})

	req := httptest.NewRequest(http.MethodPost, "/api/rentals/", strings.NewReader(`{"resource_id":"eq-1","start_date":"2024-06-10","end_date":"2024-06-12"}`))
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleCreateRequest_BadDate(t *testing.T) {
	_, router := newTestServer(&stubRequestService{})

	req := httptest.NewRequest(http.MethodPost, "/api/rentals/", strings.NewReader(`{"resource_id":"eq-1","start_date":"June 10"}`))
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleRequest_KindMismatchIsNotFound(t *testing.T) {
	// A rental row requested through the applications surface.
	reqSvc := &stubRequestService{got: request.Request{ID: "r1", Kind: request.KindRental, Status: request.StatusPending}}
	_, router := newTestServer(reqSvc)

	req := httptest.NewRequest(http.MethodGet, "/api/applications/r1", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for cross-surface fetch, got %d", rec.Code)
	}
}

func TestHandleMutateRequest_KindMismatchIsNotFound(t *testing.T) {
	// A pending rental must be unreachable for mutation through the
	// applications surface, exactly like it is for reads.
	reqSvc := &stubRequestService{
		got:          request.Request{ID: "r1", Kind: request.KindRental, Status: request.StatusPending},
		transitioned: request.Request{ID: "r1", Kind: request.KindRental, Status: request.StatusApproved},
	}
	_, router := newTestServer(reqSvc)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"status transition", http.MethodPut, "/api/applications/r1/status", `{"status":"approved"}`},
		{"edit", http.MethodPut, "/api/applications/r1", `{"message":"updated"}`},
		{"delete", http.MethodDelete, "/api/applications/r1", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var body io.Reader
			if tc.body != "" {
				body = strings.NewReader(tc.body)
			}
			req := httptest.NewRequest(tc.method, tc.path, body)
			req.Header.Set("Authorization", "Bearer token")
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusNotFound {
				t.Fatalf("expected 404 for cross-surface %s, got %d: %s", tc.name, rec.Code, rec.Body.String())
			}
		})
	}

	if reqSvc.lastTransition.Target != "" {
		t.Fatalf("transition must never run across surfaces, got %+v", reqSvc.lastTransition)
	}
}

func TestHandleUpdateRequest_StatusDispatchesTransition(t *testing.T) {
	reqSvc := &stubRequestService{
		got:          request.Request{ID: "r1", Kind: request.KindApplication, Status: request.StatusPending},
		transitioned: request.Request{ID: "r1", Kind: request.KindApplication, Status: request.StatusApproved},
	}
	_, router := newTestServer(reqSvc)

	req := httptest.NewRequest(http.MethodPut, "/api/applications/r1", strings.NewReader(`{"status":"approved","note":"welcome"}`))
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if reqSvc.lastTransition.Target != request.StatusApproved {
		t.Fatalf("expected transition to approved, got %+v", reqSvc.lastTransition)
	}
	if reqSvc.lastTransition.Note == nil || *reqSvc.lastTransition.Note != "welcome" {
		t.Fatalf("note not forwarded: %+v", reqSvc.lastTransition)
	}
}

func TestHandleUpdateRequest_ForbiddenTransition(t *testing.T) {
	_, router := newTestServer(&stubRequestService{
		got:           request.Request{ID: "r1", Kind: request.KindApplication, Status: request.StatusPending},
		transitionErr: request.ErrForbidden,
	})

	req := httptest.NewRequest(http.MethodPut, "/api/applications/r1", strings.NewReader(`{"status":"approved"}`))
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleRequestsMine_InProgress(t *testing.T) {
	reqSvc := &stubRequestService{mineRes: request.ListResult{InProgress: true}}
	_, router := newTestServer(reqSvc)

	req := httptest.NewRequest(http.MethodGet, "/api/rentals/mine", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Success bool `json:"success"`
		Data    struct {
			InProgress bool `json:"in_progress"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !payload.Success || !payload.Data.InProgress {
		t.Fatalf("expected in_progress marker, got %s", rec.Body.String())
	}
	if reqSvc.lastMineKind != request.KindRental {
		t.Fatalf("expected rental kind pinned, got %q", reqSvc.lastMineKind)
	}
}

func TestHandleRequestsMine_Page(t *testing.T) {
	now := time.Now().UTC()
	reqSvc := &stubRequestService{mineRes: request.ListResult{
		Items: []request.Summary{{
			Request:         request.Request{ID: "r1", Kind: request.KindApplication, Status: request.StatusPending, CreatedAt: now, UpdatedAt: now},
			ResourceTitle:   "Backend engineer",
			CounterpartName: "Olivia Owner",
		}},
		Meta: pagination.Meta{Page: 1, Limit: 20, Total: 1, Pages: 1},
	}}
	_, router := newTestServer(reqSvc)

	req := httptest.NewRequest(http.MethodGet, "/api/applications/mine?page=1&limit=20", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Data       []summaryResponse `json:"data"`
		Pagination *pagination.Meta  `json:"pagination"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Data) != 1 || payload.Data[0].ResourceTitle != "Backend engineer" {
		t.Fatalf("unexpected items: %s", rec.Body.String())
	}
	if payload.Pagination == nil || payload.Pagination.Total != 1 {
		t.Fatalf("missing pagination meta: %s", rec.Body.String())
	}
}

func TestRespondError_UnmappedIsOpaque500(t *testing.T) {
	rec := httptest.NewRecorder()
	respondError(rec, errors.New("pq: connection refused to 10.0.0.3"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.3") {
		t.Fatalf("internal detail leaked: %s", rec.Body.String())
	}
}
