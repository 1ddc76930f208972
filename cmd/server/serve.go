package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// httpServer is the part of web.Server that serve drives.
type httpServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// serve runs srv until a signal arrives on stop, then runs drain and shuts
// srv down within timeout. It returns only after the shutdown has finished,
// so deferred cleanup in the caller never runs under in-flight requests.
func serve(srv httpServer, stop <-chan os.Signal, timeout time.Duration, drain func(ctx context.Context)) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-stop

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if drain != nil {
			drain(shutdownCtx)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	err := srv.Start()
	if errors.Is(err, http.ErrServerClosed) {
		<-done
		return nil
	}
	return err
}
