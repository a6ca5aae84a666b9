package integration

import (
	"net/http"
	"testing"
)

func TestLivenessAlwaysHealthy(t *testing.T) {
	s := newTestStack(t)

	resp, env := doJSON(t, s.client, http.MethodGet, s.baseURL+"/health/live", nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("liveness failed: status=%d success=%v", resp.StatusCode, env.Success)
	}
}

func TestReadinessPassesWithHealthyDependencies(t *testing.T) {
	s := newTestStack(t)

	resp, env := doJSON(t, s.client, http.MethodGet, s.baseURL+"/health/ready", nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("readiness failed: status=%d success=%v", resp.StatusCode, env.Success)
	}
}
