// Package server exposes the gateway over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/gateway"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/logging"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/sqlguard"
)

const (
	requestIDHeader     = "X-Request-ID"
	defaultMaxBodyBytes = 64 << 10
)

// Asker answers natural-language questions.
type Asker interface {
	Ask(ctx context.Context, question string) (*gateway.QueryResult, error)
}

// Pinger reports data store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	Asker        Asker
	Validator    *sqlguard.Validator
	DB           Pinger // optional
	Logger       *zap.Logger
	MaxBodyBytes int64
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = defaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(securityHeaders)
	r.Use(s.requestID)
	r.Use(s.accessLog)
	r.Use(s.limitBody)
	r.Get("/healthz", s.health)
	r.Post("/v1/query", s.query)
	r.Post("/v1/validate", s.validate)
	return r
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("HTTP server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s.Logger.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

type queryRequest struct {
	Question string `json:"question"`
}

type validateRequest struct {
	SQL string `json:"sql"`
}

type rejectionResponse struct {
	Kind    string `json:"kind"`
	Keyword string `json:"keyword,omitempty"`
	Message string `json:"message"`
}

type verdictResponse struct {
	Accepted       bool               `json:"accepted"`
	SQL            string             `json:"sql,omitempty"`
	Kind           string             `json:"kind"`
	Tables         []string           `json:"tables"`
	HasAggregation bool               `json:"has_aggregation"`
	HasLimit       bool               `json:"has_limit"`
	Rejection      *rejectionResponse `json:"rejection,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Attempts  int    `json:"attempts,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.DB.Ping(ctx); err != nil {
			s.Logger.Warn("health check failed", logging.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, &gateway.ErrInvalidInput{Msg: "malformed JSON body", Err: err})
		return
	}
	res, err := s.Asker.Ask(r.Context(), req.Question)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, &gateway.ErrInvalidInput{Msg: "malformed JSON body", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, toVerdictResponse(s.Validator.Validate(req.SQL)))
}

func toVerdictResponse(v sqlguard.Verdict) verdictResponse {
	out := verdictResponse{
		Accepted:       v.Accepted,
		SQL:            v.SQL,
		Kind:           string(v.Kind),
		Tables:         v.Tables,
		HasAggregation: v.HasAggregation,
		HasLimit:       v.HasLimit,
	}
	if out.Tables == nil {
		out.Tables = []string{}
	}
	if v.Rejection != nil {
		out.Rejection = &rejectionResponse{
			Kind:    v.Rejection.Kind.String(),
			Keyword: v.Rejection.Keyword,
			Message: v.Rejection.Message,
		}
	}
	return out
}

// writeError maps gateway failures onto status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{Error: logging.Mask(err.Error()), Kind: "internal"}
	resp.RequestID, _ = gateway.RequestIDFromContext(r.Context())
	status := http.StatusInternalServerError

	var (
		invalid   *gateway.ErrInvalidInput
		exhausted *gateway.RetryExhaustedError
		cancelled *gateway.ErrCancelled
		genErr    *gateway.GenerationError
	)
	switch {
	case errors.As(err, &invalid):
		status, resp.Kind = http.StatusBadRequest, "invalid_input"
	case errors.As(err, &exhausted):
		status, resp.Kind, resp.Attempts = http.StatusUnprocessableEntity, "RetryExhaustedError", exhausted.Attempts
	case errors.As(err, &cancelled):
		status, resp.Kind = http.StatusGatewayTimeout, "cancelled"
	case errors.As(err, &genErr):
		status, resp.Kind = http.StatusBadGateway, "generation"
	}

	if status >= http.StatusInternalServerError {
		s.Logger.Error("request failed", zap.String("request_id", resp.RequestID), zap.Int("status", status), logging.Error(err))
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(gateway.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		id, _ := gateway.RequestIDFromContext(r.Context())
		s.Logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", id))
	})
}
