package redirect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

const confirmationPage = `<!DOCTYPE html>
<html>
<head><title>Signed in</title></head>
<body>
<p>Authentication complete. You may close this window and return to the terminal.</p>
</body>
</html>
`

// Server is a loopback HTTP server that turns the authorization service's
// redirect back into the process into redirect events.
type Server struct {
	mux    *http.ServeMux
	server *http.Server

	mu       sync.Mutex
	handlers map[int]func(Event)
	nextID   int
}

// Compile-time check that Server implements Source
var _ Source = (*Server)(nil)

// NewServer creates a Server that accepts redirects on the given path.
func NewServer(path string) *Server {
	s := &Server{
		handlers: make(map[int]func(Event)),
	}

	logger := slog.Default()

	mux := http.NewServeMux()
	mux.Handle("GET "+path, s.publish(applyMiddlewares(http.HandlerFunc(confirmation),
		Logging(logger),
		Recovery,
	)))
	s.mux = mux

	return s
}

// Subscribe registers a handler for future redirect events. The returned
// unsubscribe function is idempotent.
func (s *Server) Subscribe(handler func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.handlers[id] = handler

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, id)
	}
}

// publish dispatches the inbound redirect to subscribers before handing the
// request to the middleware chain. The authorization code travels in the
// query string, so the query is stripped from the request the inner layers
// (and their logs) see.
func (s *Server) publish(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		event := Event{URL: r.URL}

		s.mu.Lock()
		handlers := make([]func(Event), 0, len(s.handlers))
		for _, h := range s.handlers {
			handlers = append(handlers, h)
		}
		s.mu.Unlock()

		for _, h := range handlers {
			h(event)
		}

		redacted := r.Clone(r.Context())
		redacted.URL.RawQuery = ""
		redacted.RequestURI = redacted.URL.Path
		next.ServeHTTP(w, redacted)
	})
}

func confirmation(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(confirmationPage))
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors are sent to the error channel. The caller is responsible
// for calling Shutdown() to stop the server.
func (s *Server) Start(ctx context.Context, address string) (<-chan error, error) {
	// Create the listener synchronously to catch port-in-use errors immediately
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s.server = &http.Server{
		Handler:     s,
		ReadTimeout: 10 * time.Second, // A redirect is a single small GET
		IdleTimeout: 30 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := s.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = s.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
