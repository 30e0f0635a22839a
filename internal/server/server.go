// Package server exposes conversation sessions over a websocket and a small
// form API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const shutdownTimeout = 5 * time.Second

func Handler(registry *Registry) http.Handler {
	mux := http.NewServeMux()

	registerWSRoute(mux, registry)
	registerAPIRoutes(mux, registry)

	return otelhttp.NewHandler(mux, "ema-duplex")
}

// Serve listens on addr until ctx is done, then shuts the server down and
// closes every session.
func Serve(ctx context.Context, addr string, registry *Registry) error {
	server := &http.Server{Addr: addr, Handler: Handler(registry)}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		registry.Close()
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	registry.Close()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
