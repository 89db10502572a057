// Package httpapi exposes studio sessions over JSON HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/manash/prodstudio/internal/catalog"
	"github.com/manash/prodstudio/internal/provider"
	"github.com/manash/prodstudio/internal/studio"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNoProvider      = errors.New("httpapi: NewSession or Provider is required")
)

type Config struct {
	// NewSession builds a studio for a freshly allocated id. When nil,
	// sessions are built on Provider.
	NewSession func(id string) *studio.Session
	Provider   provider.Provider
	Catalog    *catalog.Catalog
	Logger     zerolog.Logger
}

// Server keeps studio sessions in memory, keyed by id.
type Server struct {
	newSession func(id string) *studio.Session
	catalog    *catalog.Catalog
	logger     zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*studio.Session
}

func New(cfg *Config) (*Server, error) {
	if cfg.NewSession == nil && cfg.Provider == nil {
		return nil, ErrNoProvider
	}
	s := &Server{
		newSession: cfg.NewSession,
		catalog:    cfg.Catalog,
		logger:     cfg.Logger,
		sessions:   make(map[string]*studio.Session),
	}
	if s.catalog == nil {
		s.catalog = catalog.Default()
	}
	if s.newSession == nil {
		s.newSession = func(id string) *studio.Session {
			return studio.New(&studio.Config{ID: id, Catalog: s.catalog, Provider: cfg.Provider, Logger: s.logger})
		}
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, requestLogger(s.logger))

	r.Get("/healthz", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", s.listCatalog)

		r.Post("/sessions", s.createSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)

			r.Put("/images/{role}", s.putImage)
			r.Delete("/images/{role}", s.deleteImage)
			r.Post("/presets/{category}/{presetID}/toggle", s.togglePreset)
			r.Put("/auto", s.putAuto)
			r.Put("/export", s.putExport)
			r.Put("/brief", s.putBrief)
			r.Post("/briefs", s.suggestBriefs)
			r.Get("/prompt", s.getPrompt)
			r.Post("/generate", s.generate)
			r.Post("/upscale", s.upscale)
			r.Get("/artifact", s.getArtifact)
		})
	})

	return r
}

func (s *Server) create() *studio.Session {
	id := uuid.NewString()
	sess := s.newSession(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID()] = sess
	return sess
}

func (s *Server) lookup(id string) (*studio.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Server) remove(id string) (*studio.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	delete(s.sessions, id)
	return sess, nil
}

// Len reports the number of live sessions.
func (s *Server) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) error(w http.ResponseWriter, code int, kind, msg string) {
	s.json(w, code, errorResponse{Error: msg, Kind: kind})
}

// fail maps session errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, err error) {
	var se *studio.Error
	switch {
	case errors.As(err, &se):
		code := http.StatusBadGateway
		if se.Kind == studio.KindValidation {
			code = http.StatusUnprocessableEntity
		}
		s.error(w, code, se.Kind.String(), se.Message)
	case errors.Is(err, ErrSessionNotFound):
		s.error(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, studio.ErrNoArtifact):
		s.error(w, http.StatusUnprocessableEntity, studio.KindValidation.String(), "Generate an image first.")
	case errors.Is(err, studio.ErrSuperseded):
		s.error(w, http.StatusConflict, "superseded", "The request was replaced by a newer one.")
	default:
		s.logger.Error().Err(err).Msg("request failed")
		s.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func requestLogger(l zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)
			l.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rw.status).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}
