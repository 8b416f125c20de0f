package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/msto63/voicelistener/pkg/core/health"
	"github.com/msto63/voicelistener/pkg/core/logging"
	"github.com/msto63/voicelistener/pkg/core/version"
)

// StatusFunc reports the listener state for /healthz
type StatusFunc func() interface{}

// Server serves the event feed, Prometheus metrics and a health check
type Server struct {
	hub     *Hub
	status  StatusFunc
	checks  *health.Registry
	started time.Time
	logger  *logging.Logger
	srv     *http.Server
}

// NewServer creates a monitor server listening on addr. checks may be nil,
// in which case /healthz always reports ok.
func NewServer(addr string, hub *Hub, status StatusFunc, checks *health.Registry, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.New("monitor")
	}
	s := &Server{
		hub:     hub,
		status:  status,
		checks:  checks,
		started: time.Now(),
		logger:  logger,
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.hub)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

type healthResponse struct {
	Status  string               `json:"status"`
	Version string               `json:"version"`
	Uptime  string               `json:"uptime"`
	Clients int                  `json:"clients"`
	State   interface{}          `json:"state,omitempty"`
	Checks  []health.CheckResult `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: version.Listener,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Clients: s.hub.Clients(),
	}
	if s.status != nil {
		resp.State = s.status()
	}

	code := http.StatusOK
	if s.checks != nil {
		report := s.checks.Check(r.Context())
		resp.Status = string(report.Status)
		resp.Checks = report.Checks
		if report.Status == health.StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("Failed to write health response", "error", err)
	}
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("Monitor listening", "addr", ln.Addr().String())

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Monitor server failed", "error", err)
		}
	}()
	return nil
}

// Shutdown disconnects clients and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.srv.Shutdown(ctx)
}
