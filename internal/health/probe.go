// Package health runs dependency readiness probes for the /health/ready
// endpoint.
package health

import (
	"context"
	"sync"
	"time"
)

// Check reports whether one dependency is reachable. A nil error means
// healthy.
type Check func(ctx context.Context) error

// Result is one probe outcome as serialized into the readiness response.
type Result struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// ProbeRunner executes the registered checks with a per-run timeout and
// caches the outcome for a short interval so a readiness-probe storm cannot
// hammer the dependencies.
type ProbeRunner struct {
	timeout  time.Duration
	interval time.Duration

	mu        sync.Mutex
	checks    []namedCheck
	cached    []Result
	lastRun   time.Time
	lastReady bool
}

type namedCheck struct {
	name  string
	check Check
}

func NewProbeRunner(timeout, interval time.Duration) *ProbeRunner {
	return &ProbeRunner{timeout: timeout, interval: interval}
}

// Register adds a named check. Not safe to call after Ready is in use from
// other goroutines; register everything during assembly.
func (p *ProbeRunner) Register(name string, check Check) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checks = append(p.checks, namedCheck{name: name, check: check})
}

// Ready runs all checks and reports whether every dependency is healthy.
// Results are cached for the configured interval.
func (p *ProbeRunner) Ready(ctx context.Context) (bool, []Result) {
	p.mu.Lock()
	if !p.lastRun.IsZero() && time.Since(p.lastRun) < p.interval {
		ready, cached := p.lastReady, p.cached
		p.mu.Unlock()
		return ready, cached
	}
	checks := make([]namedCheck, len(p.checks))
	copy(checks, p.checks)
	p.mu.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	results := make([]Result, len(checks))
	var wg sync.WaitGroup
	for i, nc := range checks {
		wg.Add(1)
		go func(i int, nc namedCheck) {
			defer wg.Done()
			res := Result{Name: nc.name, Healthy: true}
			if err := nc.check(runCtx); err != nil {
				res.Healthy = false
				res.Error = err.Error()
			}
			results[i] = res
		}(i, nc)
	}
	wg.Wait()

	ready := true
	for _, res := range results {
		if !res.Healthy {
			ready = false
			break
		}
	}

	p.mu.Lock()
	p.cached = results
	p.lastRun = time.Now()
	p.lastReady = ready
	p.mu.Unlock()
	return ready, results
}
