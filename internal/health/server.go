package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/MrWong99/cuecard/internal/observe"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the operator HTTP endpoint. It serves the routes of a [Handler]
// plus /metrics, all behind [observe.Middleware].
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Listen binds addr and starts serving in the background. Use ":0" to pick a
// free port and [Server.Addr] to read it back.
func Listen(addr string, h *Handler, m *observe.Metrics) (*Server, error) {
	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("health: listen %q: %w", addr, err)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           observe.Middleware(m)(mux),
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln: ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("health: server stopped", "addr", ln.Addr().String(), "err", err)
		}
	}()
	slog.Info("health: serving", "addr", ln.Addr().String())
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
