package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"visionchat/internal/auth"
	"visionchat/internal/imageres"
	"visionchat/internal/inference"
	"visionchat/internal/manager"
	"visionchat/internal/store"
	"visionchat/pkg/types"
)

type mockService struct {
	status      types.StatusResponse
	ready       bool
	describeErr error
	lastReq     types.DescribeRequest
}

func (m *mockService) Status() types.StatusResponse { return m.status }
func (m *mockService) Ready() bool                  { return m.ready }
func (m *mockService) Describe(ctx context.Context, req types.DescribeRequest) (string, error) {
	m.lastReq = req
	if m.describeErr != nil {
		return "", m.describeErr
	}
	return "a cat on a mat", nil
}

// mockAuth keeps users and tokens in maps.
type mockAuth struct {
	mu     sync.Mutex
	users  map[string]string
	tokens map[string]string
	err    error
}

func newMockAuth() *mockAuth {
	return &mockAuth{users: map[string]string{}, tokens: map[string]string{}}
}

func (a *mockAuth) Register(ctx context.Context, username, password string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	if username == "" || password == "" {
		return auth.ErrMissingFields
	}
	if _, ok := a.users[username]; ok {
		return store.ErrUsernameTaken
	}
	a.users[username] = password
	return nil
}

func (a *mockAuth) Login(ctx context.Context, username, password string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.users[username]; !ok || p != password {
		return "", auth.ErrInvalidCredentials
	}
	tok := "tok-" + username
	a.tokens[tok] = username
	return tok, nil
}

func (a *mockAuth) Authenticate(ctx context.Context, token string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if u, ok := a.tokens[token]; ok {
		return u, nil
	}
	return "", auth.ErrUnauthorized
}

func (a *mockAuth) Logout(ctx context.Context, token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.tokens, token)
	return nil
}

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string   { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

func doJSON(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json: %v body=%q", err, w.Body.String())
	}
	return v
}

func TestHello(t *testing.T) {
	h := NewMux(&mockService{}, newMockAuth())
	w := doJSON(t, h, http.MethodGet, "/api/hello", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
	if got := decodeBody[types.MessageResponse](t, w).Message; got != "Hello from the API!" {
		t.Fatalf("message=%q", got)
	}
}

func TestRegisterLoginMeLogout(t *testing.T) {
	h := NewMux(&mockService{}, newMockAuth())

	w := doJSON(t, h, http.MethodPost, "/auth/register", `{"username":"alice","password":"pw"}`, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register status=%d", w.Code)
	}
	if got := decodeBody[types.MessageResponse](t, w).Message; got != "User created successfully" {
		t.Fatalf("register message=%q", got)
	}

	w = doJSON(t, h, http.MethodPost, "/auth/register", `{"username":"alice","password":"other"}`, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate status=%d", w.Code)
	}
	if got := decodeBody[types.MessageResponse](t, w).Message; got != "Username already exists" {
		t.Fatalf("duplicate message=%q", got)
	}

	w = doJSON(t, h, http.MethodPost, "/auth/login", `{"username":"alice","password":"wrong"}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status=%d", w.Code)
	}
	if got := decodeBody[types.MessageResponse](t, w).Message; got != "Invalid credentials" {
		t.Fatalf("bad login message=%q", got)
	}

	w = doJSON(t, h, http.MethodPost, "/auth/login", `{"username":"alice","password":"pw"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login status=%d", w.Code)
	}
	login := decodeBody[types.LoginResponse](t, w)
	if login.Message != "Login successful" || login.Token == "" {
		t.Fatalf("login body=%+v", login)
	}

	w = doJSON(t, h, http.MethodGet, "/auth/me", "", login.Token)
	if w.Code != http.StatusOK {
		t.Fatalf("me status=%d", w.Code)
	}
	if got := decodeBody[types.MeResponse](t, w).Username; got != "alice" {
		t.Fatalf("me username=%q", got)
	}

	w = doJSON(t, h, http.MethodPost, "/auth/logout", "", login.Token)
	if w.Code != http.StatusNoContent {
		t.Fatalf("logout status=%d", w.Code)
	}
	w = doJSON(t, h, http.MethodGet, "/auth/me", "", login.Token)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout status=%d", w.Code)
	}
}

func TestRegister_MissingFields(t *testing.T) {
	h := NewMux(&mockService{}, newMockAuth())
	w := doJSON(t, h, http.MethodPost, "/auth/register", `{"username":"bob"}`, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestRegister_StoreFailure(t *testing.T) {
	a := newMockAuth()
	a.err = errors.New("disk full")
	h := NewMux(&mockService{}, a)
	w := doJSON(t, h, http.MethodPost, "/auth/register", `{"username":"bob","password":"x"}`, "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestAuthRoutes_WithoutAuthenticator(t *testing.T) {
	h := NewMux(&mockService{}, nil)
	w := doJSON(t, h, http.MethodPost, "/auth/login", `{"username":"a","password":"b"}`, "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
	// describe stays reachable without accounts
	w = doJSON(t, h, http.MethodPost, "/api/describe", `{"prompt":"hi"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("describe status=%d", w.Code)
	}
}

func TestMe_RequiresBearer(t *testing.T) {
	h := NewMux(&mockService{}, newMockAuth())
	for _, hdr := range []string{"", "Bearer nope", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		if hdr != "" {
			req.Header.Set("Authorization", hdr)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("auth %q status=%d", hdr, w.Code)
		}
	}
}

func loggedIn(t *testing.T, svc Service) (http.Handler, string) {
	t.Helper()
	a := newMockAuth()
	if err := a.Register(context.Background(), "alice", "pw"); err != nil {
		t.Fatal(err)
	}
	tok, err := a.Login(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatal(err)
	}
	return NewMux(svc, a), tok
}

func TestDescribe_Success(t *testing.T) {
	svc := &mockService{}
	h, tok := loggedIn(t, svc)
	w := doJSON(t, h, http.MethodPost, "/api/describe", `{"prompt":"what is this?","image_url":"https://example.com/cat.png"}`, tok)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if got := decodeBody[types.DescribeResponse](t, w).Response; got != "a cat on a mat" {
		t.Fatalf("response=%q", got)
	}
	if svc.lastReq.ImageURL != "https://example.com/cat.png" || svc.lastReq.Prompt != "what is this?" {
		t.Fatalf("forwarded request=%+v", svc.lastReq)
	}
}

func TestDescribe_RequiresToken(t *testing.T) {
	h, _ := loggedIn(t, &mockService{})
	w := doJSON(t, h, http.MethodPost, "/api/describe", `{"prompt":"hi"}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestDescribe_InputValidation(t *testing.T) {
	h, tok := loggedIn(t, &mockService{})

	w := doJSON(t, h, http.MethodPost, "/api/describe", `{"prompt":"   "}`, tok)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty prompt status=%d", w.Code)
	}

	w = doJSON(t, h, http.MethodPost, "/api/describe", `{not json`, tok)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad json status=%d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/describe", bytes.NewBufferString(`{"prompt":"hi"}`))
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("content-type status=%d", rec.Code)
	}
}

func TestDescribe_BodyTooLarge(t *testing.T) {
	SetMaxBodyBytes(64)
	defer SetMaxBodyBytes(0)
	h, tok := loggedIn(t, &mockService{})
	body := `{"prompt":"hi","image_base64":"` + strings.Repeat("A", 256) + `"}`
	w := doJSON(t, h, http.MethodPost, "/api/describe", body, tok)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestDescribe_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"bad request", manager.ErrBadRequest("image_url and image_base64 are mutually exclusive"), http.StatusBadRequest, ""},
		{"invalid source", &imageres.Error{Kind: imageres.KindInvalidSource, Source: "/etc/passwd"}, http.StatusBadRequest, "invalid-source"},
		{"fetch", &imageres.Error{Kind: imageres.KindFetch, Source: "https://x", Err: errors.New("404")}, http.StatusBadGateway, "fetch-error"},
		{"decode", &imageres.Error{Kind: imageres.KindDecode, Source: "https://x"}, http.StatusUnprocessableEntity, "decode-error"},
		{"busy", manager.ErrTooBusy("queue full"), http.StatusTooManyRequests, ""},
		{"unavailable", &inference.Error{Op: "generate", Err: inference.ErrUnavailable}, http.StatusServiceUnavailable, ""},
		{"no backend", manager.ErrDependencyUnavailable("no inference backend configured"), http.StatusServiceUnavailable, ""},
		{"inference", &inference.Error{Op: "decode", Err: errors.New("boom")}, http.StatusInternalServerError, "inference-error"},
		{"http error", mockHTTPError{msg: "teapot", code: http.StatusTeapot}, http.StatusTeapot, ""},
		{"other", errors.New("unknown"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, tok := loggedIn(t, &mockService{describeErr: tc.err})
			w := doJSON(t, h, http.MethodPost, "/api/describe", `{"prompt":"hi"}`, tok)
			if w.Code != tc.code {
				t.Fatalf("status=%d want %d body=%s", w.Code, tc.code, w.Body.String())
			}
			body := decodeBody[types.ErrorResponse](t, w)
			if body.Code != tc.code || body.Kind != tc.kind || body.Error == "" {
				t.Fatalf("body=%+v", body)
			}
		})
	}
}

func TestStatusHandler(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{State: "ready", Queue: types.QueueStatus{MaxQueueDepth: 32}}}
	h := NewMux(svc, nil)
	w := doJSON(t, h, http.MethodGet, "/api/status", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	body := decodeBody[types.StatusResponse](t, w)
	if body.State != "ready" || body.Queue.MaxQueueDepth != 32 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestHealthAndReady(t *testing.T) {
	svc := &mockService{ready: true}
	h := NewMux(svc, nil)
	if w := doJSON(t, h, http.MethodGet, "/healthz", "", ""); w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("healthz=%d %q", w.Code, w.Body.String())
	}
	if w := doJSON(t, h, http.MethodGet, "/readyz", "", ""); w.Code != http.StatusOK {
		t.Fatalf("readyz=%d", w.Code)
	}
	svc.ready = false
	w := doJSON(t, h, http.MethodGet, "/readyz", "", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz not ready=%d", w.Code)
	}
}

func TestSecurityHeaderAndRequestID(t *testing.T) {
	h := NewMux(&mockService{}, nil)
	w := doJSON(t, h, http.MethodGet, "/api/hello", "", "")
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options=nosniff, got %q", got)
	}
}

func TestDescribe_ServerShutdownCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	SetBaseContext(ctx)
	defer SetBaseContext(nil)
	cancel()

	svc := &ctxService{}
	h, tok := loggedIn(t, svc)
	w := doJSON(t, h, http.MethodPost, "/api/describe", `{"prompt":"hi"}`, tok)
	if !svc.sawCancel {
		t.Fatal("describe context was not canceled by the base context")
	}
	if w.Body.Len() != 0 {
		t.Fatalf("expected no body after shutdown, got %q", w.Body.String())
	}
}

// ctxService blocks until its context is done.
type ctxService struct{ sawCancel bool }

func (c *ctxService) Status() types.StatusResponse { return types.StatusResponse{} }
func (c *ctxService) Ready() bool                  { return true }
func (c *ctxService) Describe(ctx context.Context, _ types.DescribeRequest) (string, error) {
	<-ctx.Done()
	c.sawCancel = true
	return "", ctx.Err()
}
