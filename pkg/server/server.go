// Package server exposes the archive store and compression engine over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nicktill/statvault/pkg/archive"
	"github.com/nicktill/statvault/pkg/compression"
	"github.com/nicktill/statvault/pkg/config"
	"github.com/nicktill/statvault/pkg/export"
	"github.com/nicktill/statvault/pkg/logging"
	"github.com/nicktill/statvault/pkg/scheduler"
	"github.com/nicktill/statvault/pkg/server/monitor"
	"github.com/nicktill/statvault/pkg/storage"
)

// Deps are the components served over HTTP. Everything but Store may be nil;
// the matching endpoints are then not registered or report the component as
// disabled.
type Deps struct {
	Store     *archive.Store
	KV        storage.KV
	Engine    *compression.Engine
	Scheduler *scheduler.Scheduler
	Monitor   *monitor.StorageMonitor
	Hub       *EventHub
	Gatherer  prometheus.Gatherer
	Clock     clockwork.Clock
	Logger    *zap.Logger
}

// Server routes HTTP requests to the statvault components.
type Server struct {
	store     *archive.Store
	kv        storage.KV
	engine    *compression.Engine
	scheduler *scheduler.Scheduler
	monitor   *monitor.StorageMonitor
	hub       *EventHub
	gatherer  prometheus.Gatherer
	clock     clockwork.Clock
	logger    *zap.Logger
	started   time.Time
	router    *mux.Router
}

func New(d Deps) *Server {
	clock := d.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Server{
		store:     d.Store,
		kv:        d.KV,
		engine:    d.Engine,
		scheduler: d.Scheduler,
		monitor:   d.Monitor,
		hub:       d.Hub,
		gatherer:  d.Gatherer,
		clock:     clock,
		logger:    logging.OrNop(d.Logger).Named("http"),
		started:   clock.Now(),
		router:    mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	router := s.router
	router.Use(s.logRequests)

	api := router.PathPrefix("/v1").Subrouter()

	// Archives
	api.HandleFunc("/archives", s.handleArchive).Methods(http.MethodPost)
	api.HandleFunc("/archives", s.handleListArchives).Methods(http.MethodGet)
	api.HandleFunc("/archives/search", s.handleSearch).Methods(http.MethodPost)

	exportHandler := export.NewHandler(s.store, s.clock, s.logger)
	api.HandleFunc("/archives/export", exportHandler.HandleExport).Methods(http.MethodGet)
	api.HandleFunc("/archives/import", exportHandler.HandleImport).Methods(http.MethodPost)

	api.HandleFunc("/archives/{id}", s.handleGetArchive).Methods(http.MethodGet)
	api.HandleFunc("/archives/{id}", s.handleDeleteArchive).Methods(http.MethodDelete)
	api.HandleFunc("/archives/{id}/restore", s.handleRestore).Methods(http.MethodPost)

	// Stats and configuration
	api.HandleFunc("/stats/archive", s.handleArchiveStats).Methods(http.MethodGet)
	api.HandleFunc("/stats/compression", s.handleCompressionStats).Methods(http.MethodGet)
	api.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)
	api.HandleFunc("/config", s.handlePatchConfig).Methods(http.MethodPatch)

	// Operations
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.kv != nil {
		api.HandleFunc("/storage", s.handleStorage).Methods(http.MethodGet)
	}
	if s.hub != nil {
		api.HandleFunc("/ws", s.hub.HandleWebSocket).Methods(http.MethodGet)
	}
	if s.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
}

// logRequests logs every API call at debug level and server errors at warn.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/ws") {
			next.ServeHTTP(w, r)
			return
		}
		start := s.clock.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", s.clock.Since(start)),
		}
		if rec.status >= http.StatusInternalServerError {
			s.logger.Warn("request failed", fields...)
			return
		}
		s.logger.Debug("request", fields...)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
// within config.ShutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
