package core

import (
	"context"
)

// ShutdownFunc is the signature for cleanup handlers run during graceful shutdown.
// The context carries the remaining shutdown deadline. Implementations must be
// idempotent: the sweeper, the emitter and the async writer may all be stopped
// from more than one path.
type ShutdownFunc func(ctx context.Context) error
