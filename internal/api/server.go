package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tibialore/boss-sync/internal/boss"
	"github.com/tibialore/boss-sync/internal/config"
	"github.com/tibialore/boss-sync/internal/metrics"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// SyncRunner triggers one pipeline run.
type SyncRunner interface {
	Run(ctx context.Context) (boss.RunSummary, error)
}

// Server wires HTTP handlers to the repository and the sync pipeline.
type Server struct {
	router chi.Router
	repo   boss.Repository
	runner SyncRunner
	lock   boss.Lock
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	repo boss.Repository,
	runner SyncRunner,
	lock boss.Lock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		repo:   repo,
		runner: runner,
		lock:   lock,
		cfg:    cfg,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/bosses", func(r chi.Router) {
			r.Get("/", s.listBosses)
			r.Get("/{slug}", s.getBoss)
		})
		r.Route("/admin", func(r chi.Router) {
			if cfg.Auth.Enabled {
				r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
			}
			r.Post("/sync", s.triggerSync)
			r.Get("/sync/status", s.syncStatus)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.repo.Count(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "repository unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type bossListResponse struct {
	Items    []boss.Record `json:"items"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Total    int           `json:"total"`
}

func (s *Server) listBosses(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := paginationParams(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset := (page - 1) * pageSize

	var items []boss.Record
	query := r.URL.Query().Get("q")
	if query != "" {
		items, err = s.repo.Search(r.Context(), query, offset, pageSize)
	} else {
		items, err = s.repo.List(r.Context(), offset, pageSize)
	}
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "repository unavailable")
		return
	}

	total, err := s.repo.Count(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "repository unavailable")
		return
	}
	if items == nil {
		items = []boss.Record{}
	}
	s.writeJSON(w, http.StatusOK, bossListResponse{
		Items:    items,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	})
}

func (s *Server) getBoss(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	rec, err := s.repo.FindBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, boss.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "boss not found")
			return
		}
		s.writeError(w, http.StatusServiceUnavailable, "repository unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) triggerSync(w http.ResponseWriter, r *http.Request) {
	summary, err := s.runner.Run(r.Context())
	if err != nil {
		s.logger.Error("manual sync failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "sync run failed")
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) syncStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.lock.Status(r.Context())
	if err != nil {
		if errors.Is(err, boss.ErrNotFound) {
			s.writeJSON(w, http.StatusOK, boss.LockStatus{Status: boss.LockIdle})
			return
		}
		s.writeError(w, http.StatusServiceUnavailable, "lock unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func paginationParams(r *http.Request) (page, pageSize int, err error) {
	page, err = positiveIntParam(r, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	pageSize, err = positiveIntParam(r, "page_size", defaultPageSize)
	if err != nil {
		return 0, 0, err
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize, nil
}

func positiveIntParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return v, nil
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-API-Key") != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
