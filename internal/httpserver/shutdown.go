package httpserver

import (
	"context"
	"time"
)

// ShutdownTimeout controls how long to wait for in-flight requests during graceful shutdowns.
var ShutdownTimeout = 10 * time.Second

// Drain stops the server and waits up to ShutdownTimeout for in-flight requests. The parent
// context is normally already cancelled, so the deadline is derived from a fresh context.
func Drain(s *Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}
