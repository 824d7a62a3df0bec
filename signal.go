package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// errInterrupted is the cancellation cause recorded on the first signal.
var errInterrupted = errors.New("interrupted")

// shutdownContext derives a context that is canceled by the first SIGINT or
// SIGTERM. A second signal exits immediately, so a hung request or stream
// can always be abandoned. stop releases the handler and cancels ctx.
func shutdownContext(parent context.Context, logger *slog.Logger) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancelCause(parent)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go watchSignals(sigCh, done, cancel, logger)

	var once sync.Once

	return ctx, func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(done)
			cancel(nil)
		})
	}
}

func watchSignals(sigCh <-chan os.Signal, done <-chan struct{}, cancel context.CancelCauseFunc, logger *slog.Logger) {
	for received := 0; ; {
		select {
		case <-done:
			return
		case sig := <-sigCh:
			received++

			if received > 1 {
				logger.Warn("second signal, exiting", slog.String("signal", sig.String()))
				os.Exit(130)
			}

			logger.Info("signal received, canceling", slog.String("signal", sig.String()))
			cancel(errInterrupted)
		}
	}
}
