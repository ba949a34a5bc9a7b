package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/kvartali/internal/auth"
	"github.com/Clark-Hu/kvartali/internal/catalog"
	"github.com/Clark-Hu/kvartali/internal/config"
	"github.com/Clark-Hu/kvartali/internal/fault"
	"github.com/Clark-Hu/kvartali/internal/metrics"
	"github.com/Clark-Hu/kvartali/internal/ratingstore"
	"github.com/Clark-Hu/kvartali/internal/store"
)

// Dependencies are the collaborators the handlers read from and write to.
type Dependencies struct {
	// DB is nil when the in-memory backend is used.
	DB       *store.Store
	Ratings  ratingstore.Store
	Snapshot *ratingstore.Snapshot
	Catalog  *catalog.Catalog
	Notices  []catalog.Diagnostic
	Issuer   *auth.Issuer
}

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg      config.Config
	db       *store.Store
	ratings  ratingstore.Store
	snapshot *ratingstore.Snapshot
	catalog  *catalog.Catalog
	notices  []catalog.Diagnostic
	issuer   *auth.Issuer
	logger   zerolog.Logger
	router   chi.Router
	httpSrv  *http.Server
	serve    func(*http.Server) error
	now      func() time.Time
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, deps Dependencies, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "http").Logger()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(fault.Middleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	cat := deps.Catalog
	if cat == nil {
		cat = catalog.New(catalog.Document{})
	}

	s := &Server{
		cfg:      cfg,
		db:       deps.DB,
		ratings:  deps.Ratings,
		snapshot: deps.Snapshot,
		catalog:  cat,
		notices:  deps.Notices,
		issuer:   deps.Issuer,
		logger:   logger,
		router:   r,
		serve:    (*http.Server).ListenAndServe,
		now:      time.Now,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/ws", s.handleLive)
	s.router.Route("/api", func(r chi.Router) {
		r.Post("/session", s.handleCreateSession)
		r.Get("/catalog", s.handleGetCatalog)
		r.Get("/locations", s.handleListLocations)
		r.Get("/votes/me", s.handleListMyVotes)
		r.Get("/results", s.handleGetResults)
		r.With(s.submissionLimiter()).Post("/ratings", s.handleSubmitRating)
	})
}

func (s *Server) submissionLimiter() func(http.Handler) http.Handler {
	reqs := s.cfg.RateLimitRequests
	if reqs <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(reqs, s.cfg.RateLimitWindow(),
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			s.respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many submissions, try again later")
		}),
	)
}

// Handler exposes the router, mainly for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- fault.Guard(s.logger, "http-listener", func() error {
			s.logger.Info().Str("addr", s.httpSrv.Addr).Msg("http server listening")
			if err := s.serve(s.httpSrv); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.HealthCheck(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("health check failed")
			s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "database unreachable")
			return
		}
	}
	if s.snapshot != nil && s.snapshot.Version() == 0 {
		s.respondError(w, http.StatusServiceUnavailable, "LOADING", "ratings not loaded yet")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			metrics.HTTPRequestDuration.
				WithLabelValues(route, r.Method, strconv.Itoa(status)).
				Observe(elapsed.Seconds())
			logger.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("route", route).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", elapsed).
				Msg("request served")
		})
	}
}
