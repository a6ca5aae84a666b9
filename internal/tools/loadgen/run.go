// Package loadgen drives synthetic traffic against a running instance so the
// rate limiter, session guard and telemetry pipeline see realistic load.
package loadgen

import (
	"context"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Profile     string // auth, health or mixed
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
	Email       string
	Password    string
}

type Result struct {
	TotalRequests int
	Failures      int
	StatusClasses map[string]int
}

type target struct {
	method string
	path   string
	body   string
}

// Run fires requests at the configured rate until the duration elapses.
// A request counts as a failure when the server is unreachable or answers 5xx;
// 4xx responses are expected traffic (bad credentials, rate limits).
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 5 * time.Second
	}
	targets := targetsFor(normalizeProfile(cfg.Profile), cfg)

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var mu sync.Mutex
	res := &Result{StatusClasses: map[string]int{}}
	jobs := make(chan target)
	client := &http.Client{Timeout: 10 * time.Second}

	var g errgroup.Group
	for i := 0; i < cfg.Concurrency; i++ {
		g.Go(func() error {
			for tgt := range jobs {
				status := fire(ctx, client, cfg.BaseURL, tgt)
				mu.Lock()
				res.TotalRequests++
				res.StatusClasses[classifyStatusClass(status)]++
				if status == 0 || status >= 500 {
					res.Failures++
				}
				mu.Unlock()
			}
			return nil
		})
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
	defer ticker.Stop()

loop:
	for {
		select {
		case <-runCtx.Done():
			break loop
		case <-ticker.C:
			select {
			case jobs <- targets[rng.Intn(len(targets))]:
			case <-runCtx.Done():
				break loop
			}
		}
	}
	close(jobs)
	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, nil
}

func targetsFor(profile string, cfg Config) []target {
	email := cfg.Email
	if email == "" {
		email = "loadgen@example.com"
	}
	password := cfg.Password
	if password == "" {
		password = "not-a-real-password"
	}
	signin := target{
		method: http.MethodPost,
		path:   "/api/v1/auth/signin",
		body:   `{"email":"` + email + `","password":"` + password + `"}`,
	}
	auth := []target{
		signin,
		{method: http.MethodGet, path: "/api/v1/auth/session"},
		{method: http.MethodGet, path: "/api/v1/auth/verify"},
	}
	health := []target{
		{method: http.MethodGet, path: "/health/live"},
		{method: http.MethodGet, path: "/health/ready"},
	}
	switch profile {
	case "auth":
		return auth
	case "health":
		return health
	default:
		return append(auth, health...)
	}
}

func fire(ctx context.Context, client *http.Client, baseURL string, tgt target) int {
	var body *strings.Reader
	if tgt.body != "" {
		body = strings.NewReader(tgt.body)
	} else {
		body = strings.NewReader("")
	}
	req, err := http.NewRequestWithContext(ctx, tgt.method, strings.TrimRight(baseURL, "/")+tgt.path, body)
	if err != nil {
		return 0
	}
	if tgt.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode
}

func classifyStatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return "other"
	}
}

func normalizeProfile(profile string) string {
	switch strings.ToLower(strings.TrimSpace(profile)) {
	case "auth":
		return "auth"
	case "health":
		return "health"
	default:
		return "mixed"
	}
}
