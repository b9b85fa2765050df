package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joescharf/issueboard/internal/auth"
	"github.com/joescharf/issueboard/internal/lifecycle"
	"github.com/joescharf/issueboard/internal/models"
)

// DefaultMaxShown is how many matches a duplicate response carries.
const DefaultMaxShown = 3

// Options configures a Server.
type Options struct {
	// MaxShown caps the matches returned by check and create. Zero means DefaultMaxShown.
	MaxShown int
	// SignInLimiter throttles sign-in attempts per client. Nil means no limit.
	SignInLimiter *Limiter
	Logger        *slog.Logger
}

// Server provides the REST API handlers.
type Server struct {
	svc      *lifecycle.Service
	auth     *auth.Authenticator
	maxShown int
	limiter  *Limiter
	log      *slog.Logger
}

// NewServer creates a new API server.
func NewServer(svc *lifecycle.Service, a *auth.Authenticator, opts Options) *Server {
	maxShown := opts.MaxShown
	if maxShown <= 0 {
		maxShown = DefaultMaxShown
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		svc:      svc,
		auth:     a,
		maxShown: maxShown,
		limiter:  opts.SignInLimiter,
		log:      logger,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/auth/signup", s.signUp)
	mux.Handle("POST /api/v1/auth/signin", s.rateLimited(http.HandlerFunc(s.signIn)))
	mux.Handle("GET /api/v1/auth/me", s.authenticated(s.me))

	mux.Handle("GET /api/v1/issues", s.authenticated(s.listIssues))
	mux.Handle("POST /api/v1/issues", s.authenticated(s.createIssue))
	mux.Handle("POST /api/v1/issues/check", s.authenticated(s.checkDuplicates))
	mux.Handle("GET /api/v1/issues/{id}", s.authenticated(s.getIssue))
	mux.Handle("PUT /api/v1/issues/{id}/status", s.authenticated(s.updateStatus))
	mux.Handle("DELETE /api/v1/issues/{id}", s.authenticated(s.deleteIssue))

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticated resolves the bearer token into a user. Missing or bad tokens
// get a 401 before the handler runs.
func (s *Server) authenticated(h func(http.ResponseWriter, *http.Request, *models.User)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, err := s.auth.Tokens().Verify(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		h(w, r, user)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps a workflow error kind onto an HTTP status.
func statusFor(kind lifecycle.ErrorKind) int {
	switch kind {
	case lifecycle.KindUnauthenticated:
		return http.StatusUnauthorized
	case lifecycle.KindPermission:
		return http.StatusForbidden
	case lifecycle.KindNotFound:
		return http.StatusNotFound
	case lifecycle.KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case lifecycle.KindValidation:
		return http.StatusBadRequest
	case lifecycle.KindBusy:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeLifecycleError reports err with the status its kind maps to.
func (s *Server) writeLifecycleError(w http.ResponseWriter, r *http.Request, err error) {
	kind, msg := lifecycle.Describe(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, msg)
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
