// Package web exposes the upload workflow over HTTP for the SharePoint page
// that drives it.
package web

import (
	"context"
	"crypto/rand"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/sessions"
	"github.com/rs/cors"

	"github.com/JonMunkholm/spbulk/internal/config"
	"github.com/JonMunkholm/spbulk/internal/core"
	"github.com/JonMunkholm/spbulk/internal/history"
	mw "github.com/JonMunkholm/spbulk/internal/web/middleware"
)

// RunStore is the read side of the run history.
type RunStore interface {
	List(ctx context.Context, f history.Filter) (*history.Page, error)
	Get(ctx context.Context, id string) (*core.Outcome, error)
}

// Deps are the collaborators the handlers call. Registry and Runs are
// optional; their endpoints report an error when unset.
type Deps struct {
	Workflow *core.Workflow
	Gate     *core.WorkflowGate
	Registry core.ListRegistry
	Runs     RunStore
}

// Server is the HTTP server for the bulk upload API.
type Server struct {
	cfg      *config.Config
	deps     Deps
	sessions *sessions.CookieStore
	validate *validator.Validate
	limiter  *rateLimiter
	uploads  *rateLimiter
	router   *chi.Mux
	handler  http.Handler
	server   *http.Server
}

// NewServer creates a Server. cfg must already be validated.
func NewServer(cfg *config.Config, deps Deps) *Server {
	if deps.Gate == nil {
		deps.Gate = core.NewWorkflowGate(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime)
	}

	s := &Server{
		cfg:      cfg,
		deps:     deps,
		sessions: newSessionStore(&cfg.Security, len(cfg.Security.CORSOrigins) > 0),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		router:   chi.NewRouter(),
	}
	if cfg.Rate.Enabled {
		s.limiter = newRateLimiter(cfg.Rate.RequestsPerMinute, time.Minute)
		s.uploads = newRateLimiter(cfg.Rate.UploadLimit, time.Minute)
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.handler = s.router
	if len(cfg.Security.CORSOrigins) > 0 {
		s.handler = cors.New(cors.Options{
			AllowedOrigins:   cfg.Security.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "X-API-Key", "X-Requested-With", "HX-Request"},
			AllowCredentials: true,
			MaxAge:           600,
		}).Handler(s.router)
	}
	return s
}

func newSessionStore(cfg *config.SecurityConfig, crossSite bool) *sessions.CookieStore {
	key := []byte(cfg.SessionSecret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic("web: generate session key: " + err.Error())
		}
		slog.Warn("SESSION_SECRET not set, sessions will not survive a restart")
	}

	store := sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	// The SharePoint page calls the API from another origin.
	if crossSite {
		store.Options.SameSite = http.SameSiteNoneMode
		store.Options.Secure = true
	}
	return store
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)
	if s.limiter != nil {
		s.router.Use(s.limiter.middleware)
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))

		r.Post("/sheets", s.handleParseSheet)
		r.Post("/validate", s.handleValidate)
		r.Get("/lists", s.handleLists)
		r.Get("/runs", s.handleRuns)
		r.Get("/runs/{runID}", s.handleRun)

		// Workflows talk to SharePoint and get the stricter limit.
		r.Group(func(r chi.Router) {
			if s.uploads != nil {
				r.Use(s.uploads.middleware)
			}
			r.Post("/lists", s.handleCreateList)
			r.Post("/lists/{listName}/items", s.handleAppend)
		})
	})
}

// Handler returns the root handler, including CORS.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.handler,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown waits for running workflows, then stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if active := s.deps.Gate.ActiveCount(); active > 0 {
		slog.Info("waiting for workflows to complete", "active", active)
		if err := s.deps.Gate.WaitForDrain(ctx); err != nil {
			slog.Warn("workflows did not complete in time", "error", err)
		} else {
			slog.Info("all workflows completed")
		}
	}

	if s.limiter != nil {
		s.limiter.stop()
	}
	if s.uploads != nil {
		s.uploads.stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
