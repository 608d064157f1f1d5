package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/credits/internal/domain"
	domcredit "github.com/kailas-cloud/credits/internal/domain/credit"
	"github.com/kailas-cloud/credits/internal/domain/user"
	logpkg "github.com/kailas-cloud/credits/internal/logger"
	"github.com/kailas-cloud/credits/internal/metrics"
	healthuc "github.com/kailas-cloud/credits/internal/usecase/health"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest   = "bad_request"
	CodeValidation   = "validation_failed"
	CodeForbidden    = "forbidden"
	CodeNotFound     = "not_found"
	CodeUserNotFound = "user_not_found"
	CodeInternal     = "internal_error"
)

const maxBodyBytes = 1 << 16

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreditResponse is the body of GET /api/credits.
type CreditResponse struct {
	UserID          string `json:"user_id"`
	Balance         int64  `json:"balance"`
	Cap             int64  `json:"cap"`
	GrantValue      int64  `json:"grant_value"`
	GrantInterval   int64  `json:"grant_interval"`
	GrantLastUpdate string `json:"grant_last_update"`
}

// CreditUpdateRequest is the partial body of POST /api/credits/{user}.
type CreditUpdateRequest struct {
	Balance       *int64 `json:"balance,omitempty"`
	Cap           *int64 `json:"cap,omitempty"`
	GrantValue    *int64 `json:"grant_value,omitempty"`
	GrantInterval *int64 `json:"grant_interval,omitempty"`
}

// UserRequest is the body of PUT /api/users/{user}.
type UserRequest struct {
	Groups []string `json:"groups"`
	Admin  bool     `json:"admin"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// CreditService is the use case surface the API calls.
type CreditService interface {
	Balance(ctx context.Context, name string) (domcredit.Record, error)
	AdminUpdate(ctx context.Context, name string, o domcredit.Override) error
	Register(ctx context.Context, id user.Identity) error
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves the credit API.
type Server struct {
	credits       CreditService
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(credits CreditService, health HealthChecker, logger *zap.Logger) *Server {
	s := &Server{credits: credits, health: health, logger: logger}
	s.errorHandlers = []errorHandler{
		validationHandler,
		sentinelHandler(domain.ErrUserNotFound, http.StatusNotFound, CodeUserNotFound),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
	}
	return s
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router(tokens []Token) http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(chimw.RequestID)
	r.Use(RequestLogger(s.logger))
	r.Use(metrics.Middleware())

	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuthMiddleware(tokens))
		r.Get("/api/credits", s.GetCredits)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Post("/api/credits/{user}", s.UpdateCredits)
			r.Put("/api/users/{user}", s.PutUser)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
	return r
}

// GetCredits handles GET /api/credits for the authenticated caller.
func (s *Server) GetCredits(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, CodeForbidden, "authentication required")
		return
	}

	rec, err := s.credits.Balance(r.Context(), p.User)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, creditToResponse(&rec))
}

// UpdateCredits handles POST /api/credits/{user}.
func (s *Server) UpdateCredits(w http.ResponseWriter, r *http.Request) {
	var req CreditUpdateRequest
	if !s.decode(w, r, &req) {
		return
	}

	o := domcredit.Override{
		Balance:       req.Balance,
		Cap:           req.Cap,
		GrantValue:    req.GrantValue,
		GrantInterval: req.GrantInterval,
	}
	if err := s.credits.AdminUpdate(r.Context(), chi.URLParam(r, "user"), o); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// PutUser handles PUT /api/users/{user}: registers or refreshes an identity.
func (s *Server) PutUser(w http.ResponseWriter, r *http.Request) {
	var req UserRequest
	if !s.decode(w, r, &req) {
		return
	}

	id := user.Identity{Name: chi.URLParam(r, "user"), Groups: req.Groups, Admin: req.Admin}
	if err := s.credits.Register(r.Context(), id); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, HealthResponse{Status: string(report.Status), Checks: checks})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body")
		return false
	}
	return true
}

func creditToResponse(rec *domcredit.Record) CreditResponse {
	return CreditResponse{
		UserID:          rec.Name(),
		Balance:         rec.Balance(),
		Cap:             rec.Cap(),
		GrantValue:      rec.GrantValue(),
		GrantInterval:   rec.GrantInterval(),
		GrantLastUpdate: rec.GrantLastUpdate().UTC().Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// validationHandler exposes the rejected field to the client.
func validationHandler(w http.ResponseWriter, err error) bool {
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	writeError(w, http.StatusBadRequest, CodeValidation, ve.Error())
	return true
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	for _, h := range s.errorHandlers {
		if h(w, err) {
			log.Debug("request rejected", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
}
