package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// shutdownTimeout bounds graceful shutdown of the site server.
const shutdownTimeout = 5 * time.Second

// Server serves a rewritten site from the staging trees.
type Server struct {
	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

// Serve starts an HTTP server on addr serving root at "/" and each mount
// directory at "/<name>/". Port 0 in addr picks a free port.
func Serve(addr, root string, mounts map[string]string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(root)))
	for name, dir := range mounts {
		prefix := "/" + strings.Trim(name, "/")
		mux.Handle(prefix+"/", http.StripPrefix(prefix, http.FileServer(http.Dir(dir))))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w on %s: %w", ErrServe, addr, err)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: ln,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("site server stopped", "error", err)
		}
	}()

	logger.Debug("site server listening", "addr", ln.Addr().String())
	return s, nil
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// URL returns the base URL of the server.
func (s *Server) URL() string {
	return "http://" + s.Addr()
}

// Close shuts the server down and waits for it to stop.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}
