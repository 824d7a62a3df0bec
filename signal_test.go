package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestShutdownContext_FirstSignalCancels(t *testing.T) {
	ctx, stop := shutdownContext(context.Background(), discardLogger())
	defer stop()

	// Send SIGINT to ourselves.
	if err := syscall.Kill(os.Getpid(), syscall.SIGINT); err != nil {
		t.Fatalf("failed to send SIGINT: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled within 2 seconds of SIGINT")
	}

	if cause := context.Cause(ctx); !errors.Is(cause, errInterrupted) {
		t.Fatalf("cause = %v, want errInterrupted", cause)
	}
}

func TestShutdownContext_ParentCancel(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := shutdownContext(parent, discardLogger())
	defer stop()

	cancel()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled within 2 seconds of parent cancel")
	}
}

func TestShutdownContext_StopCancels(t *testing.T) {
	t.Parallel()

	ctx, stop := shutdownContext(context.Background(), discardLogger())
	stop()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled after stop")
	}
}
