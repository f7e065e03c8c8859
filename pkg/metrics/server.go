package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AdminPrefix is the path under which an admin handler is mounted.
const AdminPrefix = "/admin/"

// Server exposes /metrics, /health and an optional admin handler on one port.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// NewServer builds a server for addr (":9090", or "127.0.0.1:0" for any free
// port). Nothing is bound until Start.
func NewServer(addr string, gatherer prometheus.Gatherer, admin http.Handler) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	if admin != nil {
		mux.Handle(AdminPrefix, admin)
	}

	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Handler returns the request multiplexer.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start binds the address and serves in the background. A bind failure is
// returned directly; later serve failures arrive on the channel, which is
// closed once the server stops.
func (s *Server) Start() (<-chan error, error) {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return nil, fmt.Errorf("metrics server: %w", err)
	}
	s.ln = ln

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()
	return errCh, nil
}

// Addr is the bound address after Start, or the configured one before it.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.srv.Addr
}

// Shutdown stops accepting connections and waits for active ones until ctx
// is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
