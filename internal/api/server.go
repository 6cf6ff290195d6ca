// Package api hosts the HTTP server and REST handlers for operator access.
// Notable routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/creators and /v1/creators/{user_id}/... for progress
//     inspection.
//   - POST /v1/creators/{user_id}/reset and DELETE /v1/creators/{user_id}
//     for administration.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/redlens/collector/internal/metrics"
	"github.com/redlens/collector/internal/store"
)

const (
	defaultNotesLimit = 100
	maxNotesLimit     = 1000
	requestTimeout    = 30 * time.Second
)

// Server wires HTTP handlers to the progress store.
type Server struct {
	router chi.Router
	store  *store.Store
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(st *store.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{store: st, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.getStatus)
		r.Route("/creators", func(r chi.Router) {
			r.Get("/", s.listCreators)
			r.Get("/resumable", s.listResumable)
			r.Get("/keywords", s.listKeywords)
			r.Route("/{user_id}", func(r chi.Router) {
				r.Get("/", s.getCreator)
				r.Get("/notes", s.listNotes)
				r.Post("/reset", s.resetCreator)
				r.Delete("/", s.deleteCreator)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getStatus handles GET /v1/status: creator counts per state.
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int, 5)
	for _, status := range []store.ScrapeStatus{
		store.StatusNotStarted,
		store.StatusInProgress,
		store.StatusCompleted,
		store.StatusPartial,
		store.StatusFailed,
	} {
		n, err := s.store.CountByStatus(r.Context(), status)
		if err != nil {
			s.logger.Error("counting creators failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to count creators")
			return
		}
		counts[string(status)] = n
	}
	writeJSON(w, http.StatusOK, map[string]any{"creators": counts})
}

// listCreators handles GET /v1/creators?status=. Without a filter it
// returns every creator.
func (s *Server) listCreators(w http.ResponseWriter, r *http.Request) {
	var status store.ScrapeStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed, err := store.StatusFilter(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		status = parsed
	}
	creators, err := s.store.ListCreators(r.Context(), status)
	if err != nil {
		s.logger.Error("listing creators failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list creators")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"creators": toCreatorDTOs(creators)})
}

// listResumable handles GET /v1/creators/resumable: what a resume run
// would pick up, in its order.
func (s *Server) listResumable(w http.ResponseWriter, r *http.Request) {
	creators, err := s.store.ResumableCreators(r.Context(), 0)
	if err != nil {
		s.logger.Error("listing resumable creators failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list resumable creators")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"creators": toCreatorDTOs(creators)})
}

// listKeywords handles GET /v1/creators/keywords: distinct discovery
// keywords present in the store.
func (s *Server) listKeywords(w http.ResponseWriter, r *http.Request) {
	keywords, err := s.store.Keywords(r.Context())
	if err != nil {
		s.logger.Error("listing keywords failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list keywords")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keywords": keywords})
}

// getCreator handles GET /v1/creators/{user_id}.
func (s *Server) getCreator(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	c, err := s.store.GetCreator(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "creator not found")
			return
		}
		s.logger.Error("loading creator failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load creator")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"creator": toCreatorDTO(c)})
}

// listNotes handles GET /v1/creators/{user_id}/notes?limit=.
func (s *Server) listNotes(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	limit, err := parseLimit(r, defaultNotesLimit, maxNotesLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.store.GetCreator(r.Context(), userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "creator not found")
			return
		}
		s.logger.Error("loading creator failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load creator")
		return
	}
	notes, err := s.store.NotesByCreator(r.Context(), userID, limit)
	if err != nil {
		s.logger.Error("listing notes failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list notes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": toNoteDTOs(notes)})
}

// resetCreator handles POST /v1/creators/{user_id}/reset: drop the
// creator's notes and return it to not_started.
func (s *Server) resetCreator(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	if err := s.store.ResetCreator(r.Context(), userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "creator not found")
			return
		}
		s.logger.Error("resetting creator failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to reset creator")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": userID, "status": string(store.StatusNotStarted)})
}

// deleteCreator handles DELETE /v1/creators/{user_id}.
func (s *Server) deleteCreator(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	if err := s.store.DeleteCreator(r.Context(), userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "creator not found")
			return
		}
		s.logger.Error("deleting creator failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete creator")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseLimit(r *http.Request, def, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	if limit > max {
		limit = max
	}
	return limit, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
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
		dur := time.Since(start)
		metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.status, dur)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", dur.Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
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
