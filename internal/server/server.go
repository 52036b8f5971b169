package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/socialgravity/socialgravity/internal/simulation"
	"github.com/socialgravity/socialgravity/internal/store"
)

// Fetcher refreshes a simulation aggregate from the backend.
// *backend.Client implements it.
type Fetcher interface {
	GetSimulation(ctx context.Context, simulationID string) ([]byte, error)
}

type Options struct {
	Store     store.Store
	Fetcher   Fetcher // optional; without it only cached snapshots are shown
	Logger    *slog.Logger
	Port      int
	TokenFile string
	Token     string // generated when empty
}

type Server struct {
	store     store.Store
	fetcher   Fetcher
	mapper    *simulation.Mapper
	logger    *slog.Logger
	port      int
	token     string
	tokenFile string
	router    chi.Router
	startTime time.Time
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	token := opts.Token
	if token == "" {
		token = generateToken()
	}

	srv := &Server{
		store:     opts.Store,
		fetcher:   opts.Fetcher,
		mapper:    simulation.NewMapper(logger),
		logger:    logger,
		port:      opts.Port,
		token:     token,
		tokenFile: opts.TokenFile,
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)

	// Public endpoints
	s.router.Get("/health", s.handleHealth)

	// Dashboard endpoints (protected)
	s.router.Route("/dashboard", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/", s.handleDashboard)
		r.Get("/simulations/{id}", s.handleDashboardSimulation)
		r.Get("/api/simulations", s.handleAPIList)
		r.Get("/api/simulations/{id}", s.handleAPISimulation)
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	// Write token to file for the token command
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0o600); err != nil {
			s.logger.Warn("failed to write token file", "path", s.tokenFile, "error", err)
		}
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "port", s.port)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if s.tokenFile != "" {
			_ = os.Remove(s.tokenFile)
		}
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func generateToken() string {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a simple token if crypto/rand fails
		return "a1b2c3d4"
	}
	return hex.EncodeToString(bytes)
}
