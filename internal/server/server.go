package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/gkobilansky/funnelstat/internal/ledger"
	"github.com/gkobilansky/funnelstat/internal/report"
	"github.com/gkobilansky/funnelstat/internal/store"
)

// Options configures the results API.
type Options struct {
	Port int
	// Token protects /api when set. Clients send it as a bearer token or
	// a token query parameter.
	Token       string
	Confidence  float64
	Power       float64
	Simulations int
	Workers     int
	Logger      *zap.Logger
}

type Server struct {
	store     store.Store
	ledger    *ledger.Ledger
	reporter  *report.Reporter
	opts      Options
	log       *zap.Logger
	router    chi.Router
	startTime time.Time
}

func New(st store.Store, l *ledger.Ledger, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.L()
	}
	srv := &Server{
		store:     st,
		ledger:    l,
		reporter:  report.New(st, l),
		opts:      opts,
		log:       log,
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/experiments", s.handleListExperiments)
		r.Route("/experiments/{id}", func(r chi.Router) {
			r.Get("/aggregate", s.handleAggregate)
			r.Get("/results", s.handleResults)
			r.Get("/bayesian", s.handleBayesian)
			r.Get("/sequential", s.handleSequential)
		})
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("results API listening", zap.Int("port", s.opts.Port))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return eris.Wrap(err, "server: listen")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info("results API shutting down")
		return eris.Wrap(httpSrv.Shutdown(shutdownCtx), "server: shutdown")
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) StartTime() time.Time {
	return s.startTime
}

// GenerateToken returns a random hex token for Options.Token.
func GenerateToken() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", eris.Wrap(err, "server: generate token")
	}
	return hex.EncodeToString(bytes), nil
}
