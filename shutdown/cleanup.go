package shutdown

import (
	"context"
	"errors"
	"io"
	"net/http"

	"cognitive_backend/core"
)

// ServerStep gracefully stops an HTTP server. Open websocket connections are
// hijacked and not tracked by http.Server; close them in a later step.
func ServerStep(srv *http.Server) core.ShutdownFunc {
	return func(ctx context.Context) error {
		err := srv.Shutdown(ctx)
		if errors.Is(err, context.DeadlineExceeded) {
			return srv.Close()
		}
		return err
	}
}

// StopStep adapts a Stop method.
func StopStep(stop func()) core.ShutdownFunc {
	return func(context.Context) error {
		stop()
		return nil
	}
}

// StopContextStep adapts a Stop method that takes a context.
func StopContextStep(stop func(context.Context)) core.ShutdownFunc {
	return func(ctx context.Context) error {
		stop(ctx)
		return nil
	}
}

// CloseStep adapts an io.Closer.
func CloseStep(c io.Closer) core.ShutdownFunc {
	return func(context.Context) error {
		return c.Close()
	}
}
