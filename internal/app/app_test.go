package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/kitchenops/sessionbridge/internal/config"
	"github.com/kitchenops/sessionbridge/internal/health"
)

func TestNewAssignsDependenciesAndTimeouts(t *testing.T) {
	cfg := &config.Config{
		ShutdownTimeout:              10 * time.Second,
		ShutdownHTTPDrainTimeout:     2 * time.Second,
		ShutdownObservabilityTimeout: 3 * time.Second,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := &http.Server{Addr: ":8080", ReadHeaderTimeout: time.Second}
	readiness := health.NewProbeRunner(100*time.Millisecond, 50*time.Millisecond)
	started := false
	start := func(context.Context) error { started = true; return nil }
	stopped := false
	stop := func() { stopped = true }

	a := New(cfg, logger, server, nil, nil, nil, readiness, start, stop)
	if a.Config != cfg || a.Logger != logger || a.Server != server || a.Readiness != readiness {
		t.Fatal("expected app dependencies to be assigned")
	}
	if a.ShutdownTimeout != cfg.ShutdownTimeout || a.ShutdownHTTPDrainTimeout != cfg.ShutdownHTTPDrainTimeout || a.ShutdownObservabilityTimeout != cfg.ShutdownObservabilityTimeout {
		t.Fatal("expected app shutdown timeouts copied from config")
	}

	if err := a.StartBackgroundTasks(context.Background()); err != nil {
		t.Fatalf("start background tasks: %v", err)
	}
	if !started {
		t.Fatal("expected start callback to be set")
	}
	a.StopBackgroundTasks()
	if !stopped {
		t.Fatal("expected stop callback to be set")
	}
}

func TestStopBackgroundTasksIsIdempotent(t *testing.T) {
	calls := 0
	a := &App{stopBackground: func() { calls++ }}

	a.StopBackgroundTasks()
	a.StopBackgroundTasks()
	if calls != 2 {
		t.Fatalf("expected stop callback invoked per call, got %d", calls)
	}

	var empty App
	empty.StopBackgroundTasks() // must not panic without a callback
	if err := empty.StartBackgroundTasks(context.Background()); err != nil {
		t.Fatalf("start without a callback must be a no-op, got %v", err)
	}
}

// Run must restore the persisted session before the listener comes up, so a
// session left behind by a previous process is live for the first request.
func TestRunRestoresSessionBeforeServing(t *testing.T) {
	cfg := &config.Config{
		ShutdownTimeout:              time.Second,
		ShutdownHTTPDrainTimeout:     time.Second,
		ShutdownObservabilityTimeout: time.Second,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := &http.Server{Addr: "127.0.0.1:0", ReadHeaderTimeout: time.Second}
	restored := make(chan struct{})
	start := func(context.Context) error {
		close(restored)
		return nil
	}

	a := New(cfg, logger, server, nil, nil, nil, nil, start, func() {})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case <-restored:
	case <-time.After(2 * time.Second):
		t.Fatal("run never invoked the session restore hook")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not shut down")
	}
}

func TestRunAbortsWhenSessionRestoreFails(t *testing.T) {
	cfg := &config.Config{
		ShutdownTimeout:              time.Second,
		ShutdownHTTPDrainTimeout:     time.Second,
		ShutdownObservabilityTimeout: time.Second,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := &http.Server{Addr: "127.0.0.1:0", ReadHeaderTimeout: time.Second}
	restoreErr := errors.New("token storage unavailable")

	a := New(cfg, logger, server, nil, nil, nil, nil, func(context.Context) error { return restoreErr }, func() {})
	if err := a.Run(context.Background()); !errors.Is(err, restoreErr) {
		t.Fatalf("expected the restore failure to abort run, got %v", err)
	}
}
