// Package api exposes the ledger engine over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Veraticus/ledger-must-balance/internal/feed"
	"github.com/Veraticus/ledger-must-balance/internal/ledger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// UserHeader selects the acting user. Requests without it act as the
// configured default user.
const UserHeader = "X-User-ID"

const requestTimeout = 30 * time.Second

// DefaultHeartbeat is used when Config.Heartbeat is unset.
const DefaultHeartbeat = 30 * time.Second

// Config holds server configuration.
type Config struct {
	Ledger         *ledger.Ledger
	Cache          *ledger.MonthCache
	Addr           string
	DefaultUser    string
	AllowedOrigins []string
	// Heartbeat is the idle interval between SSE keep-alive events.
	Heartbeat time.Duration
	// RequestTimeout bounds non-streaming requests outside dev mode.
	RequestTimeout time.Duration
	// DevMode turns off response compression and the request timeout.
	DevMode bool
}

// Server is the HTTP surface of the ledger.
type Server struct {
	router      *chi.Mux
	server      *http.Server
	ledger      *ledger.Ledger
	cache       *ledger.MonthCache
	bus         *feed.Bus
	log         *slog.Logger
	defaultUser string
	heartbeat   time.Duration
	timeout     time.Duration
}

// New creates a server with every route registered.
func New(cfg Config) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		ledger:      cfg.Ledger,
		cache:       cfg.Cache,
		bus:         cfg.Ledger.Feed(),
		log:         slog.Default().With("component", "api"),
		defaultUser: cfg.DefaultUser,
		heartbeat:   cfg.Heartbeat,
		timeout:     cfg.RequestTimeout,
	}
	if s.bus == nil {
		s.bus = feed.NewBus()
	}
	if s.heartbeat <= 0 {
		s.heartbeat = DefaultHeartbeat
	}
	if s.timeout <= 0 {
		s.timeout = requestTimeout
	}

	s.setupMiddleware(cfg.AllowedOrigins)
	s.setupRoutes(cfg.DevMode)

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(origins []string) {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", UserHeader},
		ExposedHeaders: []string{"Link"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes(devMode bool) {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.userMiddleware)

		// The change stream stays open, so it sits outside the timeout group.
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			if !devMode {
				r.Use(middleware.Timeout(s.timeout))
				r.Use(middleware.Compress(5))
			}

			r.Get("/months/{month}/transactions", s.handleMonth)

			r.Route("/transactions", func(r chi.Router) {
				r.Post("/", s.handleCreateTransaction)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetTransaction)
					r.Patch("/", s.handleEditTransaction)
					r.Delete("/", s.handleDeleteTransaction)
					r.Post("/pay", s.handlePay)
					r.Post("/unpay", s.handleUnpay)
				})
			})

			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", s.handleListAccounts)
				r.Post("/", s.handleCreateAccount)
				r.Post("/reconcile", s.handleReconcileAll)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetAccount)
					r.Patch("/", s.handleUpdateAccount)
					r.Delete("/", s.handleDeleteAccount)
					r.Post("/reconcile", s.handleReconcile)
				})
			})

			r.Post("/transfers", s.handleTransfer)
		})
	})
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("Starting HTTP server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

type userKey struct{}

func (s *Server) userMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := r.Header.Get(UserHeader)
		if user == "" {
			user = s.defaultUser
		}
		if user == "" {
			s.writeError(w, http.StatusBadRequest, "missing "+UserHeader+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

func userFrom(r *http.Request) string {
	user, _ := r.Context().Value(userKey{}).(string)
	return user
}

// invalidate drops the user's cached months after a write.
func (s *Server) invalidate(userID string) {
	if s.cache != nil {
		s.cache.Invalidate(userID)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": s.bus.Subscribers(),
	})
}
