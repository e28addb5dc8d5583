package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pitwall-bot/pitwall/internal/config"
	"github.com/pitwall-bot/pitwall/internal/store"
	"github.com/pitwall-bot/pitwall/internal/timing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Backend is everything the HTTP front-end reads from
type Backend interface {
	timing.Source
	Events(ctx context.Context, year int) ([]store.Location, error)
}

// Server serves live timing, head-to-head comparisons and event listings as JSON
type Server struct {
	config  *config.Config
	backend Backend
	mux     *http.ServeMux
}

// New creates a new server
func New(cfg *config.Config, backend Backend) *Server {
	s := &Server{
		config:  cfg,
		backend: backend,
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /live-timing", s.handleLiveTiming)
	s.mux.HandleFunc("GET /head2head", s.handleHead2Head)
	s.mux.HandleFunc("GET /events", s.handleEvents)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	return s
}

// Handler returns the routed handler with request logging (exported for testing)
func (s *Server) Handler() http.Handler {
	return logRequests(s.mux)
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logrus.Infof("Starting pitwall on port %d", s.config.Server.Port)
	logrus.Infof("OpenF1 API: %s", s.config.OpenF1.URL)
	logrus.Infof("Storage: %s", s.config.Storage.Driver)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logrus.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, requ *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, requ)
		logrus.Infof("Served request: %s %s -> %d (%s)", requ.Method, requ.URL.String(), rec.status, time.Since(start))
	})
}
