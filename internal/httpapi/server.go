package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"visionchat/internal/auth"
	"visionchat/internal/manager"
	"visionchat/internal/store"
	"visionchat/pkg/types"
)

// Service defines the describe methods required by the HTTP API layer.
type Service interface {
	Describe(ctx context.Context, req types.DescribeRequest) (string, error)
	Status() types.StatusResponse
	Ready() bool
}

// Authenticator defines the account methods required by the HTTP API layer.
type Authenticator interface {
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) (string, error)
	Authenticate(ctx context.Context, token string) (string, error)
	Logout(ctx context.Context, token string) error
}

type ctxKey int

const usernameKey ctxKey = iota

// UsernameFrom returns the authenticated username stored by the bearer middleware.
func UsernameFrom(ctx context.Context) string {
	s, _ := ctx.Value(usernameKey).(string)
	return s
}

// NewMux builds the router. A nil Authenticator leaves /auth/* answering 503
// and /api/describe open.
func NewMux(svc Service, users Authenticator) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(corsMiddleware())
	}
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	h := &handlers{svc: svc, users: users}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.With(h.requireToken).Get("/me", h.me)
		r.With(h.requireToken).Post("/logout", h.logout)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/hello", h.hello)
		r.Get("/status", h.status)
		if users != nil {
			r.With(h.requireToken).Post("/describe", h.describe)
		} else {
			r.Post("/describe", h.describe)
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unavailable"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

type handlers struct {
	svc   Service
	users Authenticator
}

// decodeJSON enforces the content type and body limit and decodes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func bearerToken(r *http.Request) string {
	v := r.Header.Get("Authorization")
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return ""
}

func (h *handlers) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.users == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "authentication is not configured")
			return
		}
		name, err := h.users.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthorized) {
				logEvent(r, LevelError).Err(err).Msg("token lookup")
			}
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), usernameKey, name)))
	})
}

// register creates a user account.
//
// @Summary     Register a user
// @Tags        auth
// @Accept      json
// @Produce     json
// @Param       body body types.Credentials true "New account"
// @Success     201 {object} types.MessageResponse
// @Failure     400 {object} types.MessageResponse
// @Router      /auth/register [post]
func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	if h.users == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "authentication is not configured")
		return
	}
	var req types.Credentials
	if !decodeJSON(w, r, &req) {
		return
	}
	err := h.users.Register(r.Context(), req.Username, req.Password)
	observeAuth("register", err)
	switch {
	case err == nil:
		logEvent(r, LevelInfo).Str("username", req.Username).Msg("user registered")
		writeMessage(w, http.StatusCreated, "User created successfully")
	case errors.Is(err, store.ErrUsernameTaken):
		writeMessage(w, http.StatusBadRequest, "Username already exists")
	case errors.Is(err, auth.ErrMissingFields):
		writeMessage(w, http.StatusBadRequest, "Username and password are required")
	default:
		logEvent(r, LevelError).Err(err).Msg("register")
		writeJSONError(w, http.StatusInternalServerError, "failed to create user")
	}
}

// login exchanges credentials for a bearer token.
//
// @Summary     Log in
// @Tags        auth
// @Accept      json
// @Produce     json
// @Param       body body types.Credentials true "Credentials"
// @Success     200 {object} types.LoginResponse
// @Failure     401 {object} types.MessageResponse
// @Router      /auth/login [post]
func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	if h.users == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "authentication is not configured")
		return
	}
	var req types.Credentials
	if !decodeJSON(w, r, &req) {
		return
	}
	token, err := h.users.Login(r.Context(), req.Username, req.Password)
	observeAuth("login", err)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, types.LoginResponse{Message: "Login successful", Token: token})
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
	default:
		logEvent(r, LevelError).Err(err).Msg("login")
		writeJSONError(w, http.StatusInternalServerError, "login failed")
	}
}

// me returns the caller's username.
//
// @Summary     Current user
// @Tags        auth
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} types.MeResponse
// @Failure     401 {object} types.ErrorResponse
// @Router      /auth/me [get]
func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.MeResponse{Username: UsernameFrom(r.Context())})
}

// logout revokes the caller's token.
//
// @Summary     Log out
// @Tags        auth
// @Security    BearerAuth
// @Success     204
// @Failure     401 {object} types.ErrorResponse
// @Router      /auth/logout [post]
func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	err := h.users.Logout(r.Context(), bearerToken(r))
	observeAuth("logout", err)
	if err != nil {
		logEvent(r, LevelError).Err(err).Msg("logout")
		writeJSONError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// hello is a liveness greeting for frontends.
//
// @Summary     Hello
// @Tags        api
// @Produce     json
// @Success     200 {object} types.MessageResponse
// @Router      /api/hello [get]
func (h *handlers) hello(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, http.StatusOK, "Hello from the API!")
}

// status reports the shared model and its queue.
//
// @Summary     Model and queue status
// @Tags        api
// @Produce     json
// @Success     200 {object} types.StatusResponse
// @Router      /api/status [get]
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// describe runs one image conversation turn.
//
// @Summary     Describe an image
// @Tags        api
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body body types.DescribeRequest true "Prompt and optional image"
// @Success     200 {object} types.DescribeResponse
// @Failure     400 {object} types.ErrorResponse
// @Failure     401 {object} types.ErrorResponse
// @Failure     422 {object} types.ErrorResponse
// @Failure     429 {object} types.ErrorResponse
// @Failure     502 {object} types.ErrorResponse
// @Failure     503 {object} types.ErrorResponse
// @Failure     500 {object} types.ErrorResponse
// @Router      /api/describe [post]
func (h *handlers) describe(w http.ResponseWriter, r *http.Request) {
	var req types.DescribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		describeTotal.WithLabelValues("bad-request").Inc()
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	start := time.Now()
	logEvent(r, LevelInfo).Bool("image", req.ImageURL != "" || req.ImageBase64 != "").Msg("describe start")
	logEvent(r, LevelDebug).Str("prompt", req.Prompt).Msg("describe prompt")

	// Join server base context with request context so shutdown cancels work too.
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	out, err := h.svc.Describe(ctx, req)
	if err != nil {
		// If context was canceled (client disconnect or shutdown), just return.
		if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
			describeTotal.WithLabelValues("canceled").Inc()
			return
		}
		code, kind := statusFor(err)
		if code == http.StatusTooManyRequests {
			IncrementBackpressure("queue")
		}
		outcome := kind
		if outcome == "" {
			outcome = itoa(code)
		}
		describeTotal.WithLabelValues(outcome).Inc()
		writeJSONErrorKind(w, code, kind, err.Error())
		lvl := LevelInfo
		if code >= http.StatusInternalServerError {
			lvl = LevelError
		}
		logEvent(r, lvl).Int("status", code).Dur("dur", time.Since(start)).Err(err).Msg("describe end")
		return
	}
	describeTotal.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, types.DescribeResponse{Response: out})
	logEvent(r, LevelInfo).Int("status", http.StatusOK).Dur("dur", time.Since(start)).Msg("describe end")
	logEvent(r, LevelDebug).Str("response", out).Msg("describe response")
}

var _ Service = (*manager.Manager)(nil)
var _ Authenticator = (*auth.Service)(nil)
