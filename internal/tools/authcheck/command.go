// Package authcheck probes a running instance end to end: sign in, inspect
// the session, verify store agreement, sign out, confirm the teardown.
package authcheck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kitchenops/sessionbridge/internal/tools/common"
	"github.com/kitchenops/sessionbridge/internal/tools/loadgen"
	"github.com/kitchenops/sessionbridge/internal/tools/ui"
)

type options struct {
	baseURL  string
	email    string
	password string
	timeout  time.Duration
	ci       bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "authcheck", Short: "Probe the auth session lifecycle of a running instance"}
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "API base URL")
	cmd.PersistentFlags().StringVar(&opts.email, "email", "", "credentials for the sign-in probe")
	cmd.PersistentFlags().StringVar(&opts.password, "password", "", "credentials for the sign-in probe")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-request timeout")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(newProbeCommand(opts))
	cmd.AddCommand(newTrafficCommand(opts))
	return cmd
}

func newProbeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Run the full sign-in, session, verify, sign-out sequence",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := run(opts, "authcheck probe", func(ctx context.Context) ([]string, error) {
				return probe(ctx, opts)
			})
			if opts.ci {
				common.PrintCIResult(err == nil, "authcheck probe", details, err)
			}
			if err != nil {
				os.Exit(4)
			}
			return nil
		},
	}
}

func newTrafficCommand(opts *options) *cobra.Command {
	var (
		profile     string
		duration    time.Duration
		rps         int
		concurrency int
		seed        int64
	)
	cmd := &cobra.Command{
		Use:   "traffic",
		Short: "Generate synthetic auth traffic",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := run(opts, "authcheck traffic", func(ctx context.Context) ([]string, error) {
				res, err := loadgen.Run(ctx, loadgen.Config{
					BaseURL:     opts.baseURL,
					Profile:     profile,
					Duration:    duration,
					RPS:         rps,
					Concurrency: concurrency,
					Seed:        seed,
					Email:       opts.email,
					Password:    opts.password,
				})
				if err != nil {
					return nil, err
				}
				details := []string{fmt.Sprintf("total=%d failures=%d", res.TotalRequests, res.Failures)}
				for class, n := range res.StatusClasses {
					details = append(details, fmt.Sprintf("%s=%d", class, n))
				}
				if res.Failures > 0 {
					return details, fmt.Errorf("%d requests failed", res.Failures)
				}
				return details, nil
			})
			if opts.ci {
				common.PrintCIResult(err == nil, "authcheck traffic", details, err)
			}
			if err != nil {
				os.Exit(4)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "mixed", "traffic profile (auth, health, mixed)")
	cmd.Flags().DurationVar(&duration, "duration", 6*time.Second, "how long to generate traffic")
	cmd.Flags().IntVar(&rps, "rps", 20, "requests per second")
	cmd.Flags().IntVar(&concurrency, "concurrency", 6, "concurrent workers")
	cmd.Flags().Int64Var(&seed, "seed", 42, "target selection seed")
	return cmd
}

func run(opts *options, title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()
		return fn(ctx)
	}
	return ui.Run(title, fn)
}

func probe(ctx context.Context, opts *options) ([]string, error) {
	if opts.email == "" || opts.password == "" {
		return nil, fmt.Errorf("probe requires --email and --password")
	}
	var details []string

	status, _, err := call(ctx, opts, http.MethodGet, "/health/ready", nil)
	if err != nil {
		return details, err
	}
	if status != http.StatusOK {
		return details, fmt.Errorf("readiness returned %d", status)
	}
	details = append(details, "readiness: ok")

	body := map[string]string{"email": opts.email, "password": opts.password}
	status, data, err := call(ctx, opts, http.MethodPost, "/api/v1/auth/signin", body)
	if err != nil {
		return details, err
	}
	if status != http.StatusOK {
		return details, fmt.Errorf("sign-in returned %d", status)
	}
	if fp, _ := data["access_token_fingerprint"].(string); fp != "" {
		details = append(details, "sign-in: ok token_fp="+fp)
	} else {
		details = append(details, "sign-in: ok")
	}

	status, data, err = call(ctx, opts, http.MethodGet, "/api/v1/auth/session", nil)
	if err != nil {
		return details, err
	}
	if status != http.StatusOK {
		return details, fmt.Errorf("session returned %d", status)
	}
	if authed, _ := data["is_authenticated"].(bool); !authed {
		return details, fmt.Errorf("session reports unauthenticated after sign-in")
	}
	details = append(details, "session: authenticated")

	status, _, err = call(ctx, opts, http.MethodGet, "/api/v1/auth/verify", nil)
	if err != nil {
		return details, err
	}
	if status != http.StatusOK {
		return details, fmt.Errorf("store verify returned %d", status)
	}
	details = append(details, "store verify: consistent")

	status, _, err = call(ctx, opts, http.MethodPost, "/api/v1/auth/signout", nil)
	if err != nil {
		return details, err
	}
	if status != http.StatusOK {
		return details, fmt.Errorf("sign-out returned %d", status)
	}
	details = append(details, "sign-out: ok")

	status, _, err = call(ctx, opts, http.MethodGet, "/api/v1/auth/session", nil)
	if err != nil {
		return details, err
	}
	if status != http.StatusUnauthorized {
		return details, fmt.Errorf("session after sign-out returned %d, want 401", status)
	}
	details = append(details, "session after sign-out: signed out")
	return details, nil
}

// call performs one request and decodes the envelope's data object.
func call(ctx context.Context, opts *options, method, path string, body any) (int, map[string]any, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, opts.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := (&http.Client{Timeout: opts.timeout}).Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return resp.StatusCode, nil, nil
	}
	return resp.StatusCode, envelope.Data, nil
}
