// Package api exposes import sessions over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-importer/internal/model"
	"github.com/sells-group/catalog-importer/internal/session"
	"github.com/sells-group/catalog-importer/internal/validation"
)

// Sessions is the session lifecycle served by the API.
type Sessions interface {
	Create(ctx context.Context, feedURL string) (*model.Session, error)
	Get(ctx context.Context, id string) (*model.Session, error)
	List(ctx context.Context, filter session.Filter) ([]model.Session, error)
	Download(ctx context.Context, id string) (*model.Session, error)
	Select(ctx context.Context, id string, sel model.Selection) (*model.Session, error)
	Import(ctx context.Context, id string) (*model.Session, error)
}

// Options configures the server.
type Options struct {
	AllowedOrigins []string
}

// Server routes HTTP requests to the session service. Imports started over
// HTTP run in the background under the server's base context.
type Server struct {
	sessions  Sessions
	validator *validation.Validator
	router    *chi.Mux
	base      context.Context
	log       *zap.Logger

	wg sync.WaitGroup
}

// NewServer creates a server. base bounds background imports; cancelling it
// interrupts them.
func NewServer(base context.Context, sessions Sessions, opts Options) *Server {
	s := &Server{
		sessions:  sessions,
		validator: validation.New(),
		router:    chi.NewRouter(),
		base:      base,
		log:       zap.L().With(zap.String("component", "api")),
	}
	s.setupMiddleware(opts)
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Wait blocks until background imports have returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) setupMiddleware(opts Options) {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Get("/", s.handleListSessions)
		r.Get("/{id}", s.handleGetSession)
		r.Post("/{id}/download", s.handleDownload)
		r.Put("/{id}/selection", s.handleSelect)
		r.Post("/{id}/import", s.handleImport)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createSessionRequest struct {
	FeedURL string `json:"feed_url" validate:"required,url"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	sess, err := s.sessions.Create(r.Context(), req.FeedURL)
	if err != nil {
		if sess != nil {
			// The session exists in failed state; report it with the cause.
			writeJSON(w, http.StatusUnprocessableEntity, sess)
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := session.Filter{Status: model.SessionStatus(strings.TrimSpace(q.Get("status")))}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "invalid_request", name+" must be a non-negative integer", nil)
			return
		}
		*dst = n
	}

	sessions, err := s.sessions.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []model.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Download(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var sel model.Selection
	if !s.decode(w, r, &sel) {
		return
	}
	sess, err := s.sessions.Select(r.Context(), chi.URLParam(r, "id"), sel)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleImport checks the session and starts the import in the background.
// Progress is read back through GET /sessions/{id}.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sess.Status.Terminal() || sess.Status == model.SessionParsing {
		writeError(w, r, http.StatusConflict, "invalid_state", "session cannot be imported in status "+string(sess.Status), nil)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.sessions.Import(s.base, id); err != nil {
			s.log.Error("api: background import failed", zap.String("session_id", id), zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "session_id": id})
}
