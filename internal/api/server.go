package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"media-reaper/internal/auth"
	"media-reaper/internal/middleware"
)

const (
	ReadTimeout     = 15 * time.Second
	IdleTimeout     = 60 * time.Second
	ShutdownTimeout = 10 * time.Second
)

// Options configures the bridge router
type Options struct {
	Service   Deleter
	Available AvailabilityFunc
	// Events serves /api/v1/ws/events when set
	Events http.Handler
	// JWT enables bearer auth on every route except health when set
	JWT          *auth.JWTManager
	RateLimit    float64
	RateBurst    int
	MaxBodyBytes int64
	Log          *logrus.Entry
}

// Server is the bridge HTTP API
type Server struct {
	router  *mux.Router
	limiter *middleware.RateLimiter
	log     *logrus.Entry
}

// NewServer builds the router with the full middleware stack
func NewServer(opts Options) *Server {
	router := mux.NewRouter()
	s := &Server{router: router, log: opts.Log}

	router.Use(middleware.LoggingMiddleware(opts.Log))
	router.Use(middleware.MetricsMiddleware)
	router.Use(middleware.CORSMiddleware)
	router.Use(middleware.SecurityHeadersMiddleware)
	if opts.MaxBodyBytes > 0 {
		router.Use(middleware.RequestBodySizeLimitMiddleware(opts.MaxBodyBytes))
	}
	// Deletes are never throttled: every delete call must get a
	// {"result":bool} answer. The limiter covers the remaining routes.
	limited := func(h http.Handler) http.Handler { return h }
	if opts.RateLimit > 0 {
		s.limiter = middleware.NewRateLimiter(rate.Limit(opts.RateLimit), opts.RateBurst, 10*time.Minute)
		limited = s.limiter.Middleware()
	}

	router.Handle("/api/v1/health", limited(HealthHandler(opts.Available, opts.Log))).Methods(http.MethodGet, http.MethodHead)

	protected := router.PathPrefix("/api/v1").Subrouter()
	protected.Use(middleware.AuthMiddleware(opts.JWT))

	files := protected.PathPrefix("/files").Subrouter()
	files.Handle("/delete",
		middleware.RequirePermission(auth.PermissionDeleteFiles)(DeleteHandler(opts.Service, opts.Log)),
	).Methods(http.MethodPost)
	files.Handle("/delete-batch",
		middleware.RequirePermission(auth.PermissionDeleteFiles)(DeleteBatchHandler(opts.Service, opts.Log)),
	).Methods(http.MethodPost)
	files.Handle("/info",
		limited(middleware.RequirePermission(auth.PermissionReadFiles)(InfoHandler(opts.Log))),
	).Methods(http.MethodPost)

	if opts.Events != nil {
		protected.Handle("/ws/events",
			limited(middleware.RequirePermission(auth.PermissionViewEvents)(opts.Events)),
		).Methods(http.MethodGet)
	}

	return s
}

// Close releases the rate limiter. ListenAndServe calls it on return.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	defer s.Close()

	srv := &http.Server{
		Addr:        addr,
		Handler:     s,
		ReadTimeout: ReadTimeout,
		IdleTimeout: IdleTimeout,
		// No WriteTimeout: a delete can wait on the shell command for as
		// long as it runs.
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("bridge API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down bridge API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
