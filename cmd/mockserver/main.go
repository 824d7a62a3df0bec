// Serves the canned admin API over HTTP so a front end or a curl session
// can exercise the login and refresh flow without a real backend.
//
// Usage: go run ./cmd/mockserver --addr :8080 --prefix /api
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tonimelisma/widgetctl/internal/mocktransport"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "listen address")
	prefix := flag.String("prefix", "/api", "API base path")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           logRequests(mocktransport.New(mocktransport.WithPrefix(*prefix)), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", slog.String("error", err.Error()))
		}
	}()

	logger.Info("mock admin API listening", slog.String("addr", *addr), slog.String("prefix", *prefix))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("serve", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func logRequests(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", r.Header.Get("X-Request-ID")),
		)
		next.ServeHTTP(w, r)
	})
}
