package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestReadyAllHealthy(t *testing.T) {
	p := NewProbeRunner(time.Second, 0)
	p.Register("alpha", func(context.Context) error { return nil })
	p.Register("beta", func(context.Context) error { return nil })

	ready, results := p.Ready(context.Background())
	if !ready {
		t.Fatal("expected ready")
	}
	if len(results) != 2 || !results[0].Healthy || !results[1].Healthy {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestReadyReportsFailure(t *testing.T) {
	p := NewProbeRunner(time.Second, 0)
	p.Register("alpha", func(context.Context) error { return nil })
	p.Register("beta", func(context.Context) error { return errors.New("connection refused") })

	ready, results := p.Ready(context.Background())
	if ready {
		t.Fatal("expected not ready")
	}
	var found bool
	for _, res := range results {
		if res.Name == "beta" {
			found = true
			if res.Healthy || res.Error != "connection refused" {
				t.Fatalf("unexpected result: %+v", res)
			}
		}
	}
	if !found {
		t.Fatal("beta result missing")
	}
}

func TestReadyCachesWithinInterval(t *testing.T) {
	var calls atomic.Int32
	p := NewProbeRunner(time.Second, time.Hour)
	p.Register("alpha", func(context.Context) error {
		calls.Add(1)
		return nil
	})

	p.Ready(context.Background())
	p.Ready(context.Background())
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 probe execution, got %d", got)
	}
}

func TestReadyHonorsTimeout(t *testing.T) {
	p := NewProbeRunner(50*time.Millisecond, 0)
	p.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	ready, _ := p.Ready(context.Background())
	if ready {
		t.Fatal("a timed-out check is unhealthy")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("probe did not respect the timeout, took %s", elapsed)
	}
}

func TestProviderCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/health" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("apikey") != "pk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	check := ProviderCheck(srv.Client(), srv.URL, "pk-test")
	if err := check(context.Background()); err != nil {
		t.Fatalf("expected healthy provider: %v", err)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(down.Close)

	check = ProviderCheck(down.Client(), down.URL, "pk-test")
	if err := check(context.Background()); err == nil {
		t.Fatal("expected unhealthy provider")
	}
}
