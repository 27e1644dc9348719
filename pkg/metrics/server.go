package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/dittohttp/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultPort is the metrics listen port when none is configured.
const DefaultPort = 9090

// Server exposes the registry over HTTP.
//
// Endpoints:
//   - GET /metrics: Prometheus exposition format
//   - GET /: plain-text pointer to /metrics
type Server struct {
	server       *http.Server
	port         int
	shutdownOnce sync.Once

	mu       sync.Mutex
	listener net.Listener
}

// ServerConfig configures the metrics HTTP server.
type ServerConfig struct {
	// Port to listen on. 0 selects DefaultPort; -1 lets the kernel pick one,
	// which tests use together with Addr.
	Port int
}

func (c *ServerConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
}

// NewServer creates a stopped metrics server. Call Start to serve.
func NewServer(config ServerConfig) *Server {
	config.applyDefaults()

	mux := http.NewServeMux()

	if reg := GetRegistry(); reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
		logger.Debug("Metrics endpoint registered at /metrics")
	} else {
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "Metrics collection is disabled\n")
		})
		logger.Debug("Metrics collection disabled")
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprintf(w, "DittoHTTP metrics: scrape /metrics\n")
	})

	port := config.Port
	if port < 0 {
		port = 0
	}

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		port: port,
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
//
// Returns nil on graceful shutdown, or the listen/serve error.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("metrics server failed: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Metrics server shutdown signal received")
		// ctx is already cancelled; give shutdown its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop shuts the server down. Safe to call more than once and concurrently
// with Start.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("Metrics server shutdown initiated")
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("metrics server shutdown error: %w", err)
			logger.Error("Metrics server shutdown error: %v", err)
			return
		}
		logger.Info("Metrics server stopped gracefully")
	})
	return shutdownErr
}

// Port returns the configured port (0 when the kernel picks one).
func (s *Server) Port() int {
	return s.port
}

// Addr returns the bound address once Start is listening, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
