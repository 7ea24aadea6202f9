package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiter_BurstThenReject(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerSecond: 1, Burst: 3})
	defer rl.Stop()

	now := time.Now()
	for i := 0; i < 3; i++ {
		if !rl.allowAt("1.2.3.4", now) {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.allowAt("1.2.3.4", now) {
		t.Error("request beyond the burst should be rejected")
	}
	if !rl.allowAt("5.6.7.8", now) {
		t.Error("other clients have their own bucket")
	}
	if !rl.allowAt("1.2.3.4", now.Add(1100*time.Millisecond)) {
		t.Error("a token should be back after one second")
	}
	if got := rl.GetMetrics().TotalHits; got != 1 {
		t.Errorf("TotalHits = %d, want 1", got)
	}
}

func TestLimiter_CleanupStaleEntries(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerSecond: 10, Burst: 10, StaleAfter: time.Minute})
	defer rl.Stop()

	now := time.Now()
	rl.allowAt("old", now.Add(-2*time.Minute))
	rl.allowAt("fresh", now)

	if removed := rl.cleanupStaleEntries(now); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if rl.ActiveClients() != 1 {
		t.Errorf("ActiveClients() = %d, want 1", rl.ActiveClients())
	}
}

func TestLimiter_Middleware(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerSecond: 0.5, Burst: 1})
	defer rl.Stop()

	h := rl.Middleware(func(*http.Request) string { return "client" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	if first.Code != http.StatusNoContent {
		t.Fatalf("first status = %d", first.Code)
	}

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") != "2" {
		t.Errorf("Retry-After = %q, want 2", second.Header().Get("Retry-After"))
	}
}

func TestLimiter_StopTwice(t *testing.T) {
	rl := NewLimiter(DefaultConfig())
	rl.Stop()
	rl.Stop()
}
