package engine

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andymwolf/solveengine/internal/obslog"
)

// ShutdownTimeout bounds how long graceful shutdown waits for the logger
// to flush once a shutdown signal arrives.
const ShutdownTimeout = 10 * time.Second

// setupSignalHandler derives a cancellable context from ctx that is
// cancelled when SIGINT or SIGTERM arrives, logging the signal before
// cancelling. Grounded on the prior internal/controller/shutdown.go
// setupSignalHandler, narrowed to this package's single responsibility
// (no shutdown-hook registry, no VM termination - the engine has no VM to
// terminate; its own deferred cleanup in Run closes the logger and the
// workspace).
func setupSignalHandler(ctx context.Context, log obslog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case sig := <-sigCh:
			if log != nil {
				log.Warning("received signal " + sig.String() + ", initiating graceful shutdown")
			}
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
