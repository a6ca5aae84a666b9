package config

import (
	"errors"
	"testing"
)

func TestClassifyConfigLoadError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "none", err: nil, want: "none"},
		{name: "validation", err: errors.New("validate config: AUTH_BASE_URL is required"), want: "validation"},
		{name: "parse", err: errors.New("parse SESSION_REFRESH_INTERVAL: invalid duration"), want: "parse"},
		{name: "other", err: errors.New("read env file: permission denied"), want: "load"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyConfigLoadError(tc.err); got != tc.want {
				t.Fatalf("classifyConfigLoadError()=%q want %q", got, tc.want)
			}
		})
	}
}

func TestNormalizeConfigProfile(t *testing.T) {
	if got := normalizeConfigProfile(" Staging "); got != "staging" {
		t.Fatalf("expected staging, got %q", got)
	}
	if got := normalizeConfigProfile(""); got != "unknown" {
		t.Fatalf("expected unknown, got %q", got)
	}
}
