package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger checks a dependency, typically the database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHandler returns a mux serving metrics from gatherer at path and a
// JSON health report at /health.
func NewHandler(path string, gatherer prometheus.Gatherer, db Pinger) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/health", healthHandler{db: db, started: time.Now()})
	return mux
}

type healthHandler struct {
	db      Pinger
	started time.Time
}

func (h healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := struct {
		Status     string `json:"status"`
		Uptime     string `json:"uptime"`
		DatabaseOK bool   `json:"database_ok"`
		Error      string `json:"error,omitempty"`
	}{
		Status:     "healthy",
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		DatabaseOK: true,
	}

	code := http.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			status.Status = "unhealthy"
			status.DatabaseOK = false
			status.Error = err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

// Server is the side HTTP server for metrics and health.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer creates a server listening on port.
func NewServer(port int, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start serves in the background until Stop is called.
func (s *Server) Start() {
	go func() {
		s.logger.Info("metrics server started", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", "error", err)
		}
	}()
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
