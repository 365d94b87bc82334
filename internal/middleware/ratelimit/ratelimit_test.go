package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiter_AllowBurstThenRefill(t *testing.T) {
	rl := newLimiter(Config{RequestsPerMinute: 60, Burst: 2})
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("1.1.1.1") || !rl.Allow("1.1.1.1") {
		t.Fatal("burst of 2 should be allowed")
	}
	if rl.Allow("1.1.1.1") {
		t.Fatal("third request should be limited")
	}
	if !rl.Allow("2.2.2.2") {
		t.Fatal("other clients have their own bucket")
	}

	now = now.Add(time.Second)
	if !rl.Allow("1.1.1.1") {
		t.Fatal("one token should refill after a second")
	}
	if got := rl.GetMetrics(); got.TotalHits != 1 || got.ClientCount != 2 {
		t.Errorf("unexpected metrics %+v", got)
	}
}

func TestLimiter_CleanupStaleEntries(t *testing.T) {
	rl := newLimiter(Config{RequestsPerMinute: 10})
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(11 * time.Minute)
	rl.Allow("new")

	if removed := rl.cleanupStaleEntries(); removed != 1 {
		t.Fatalf("removed %d, want 1", removed)
	}
	if rl.ActiveClients() != 1 {
		t.Errorf("ActiveClients() = %d, want 1", rl.ActiveClients())
	}
}

func TestMiddleware_WritesOnly(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerMinute: 1, Burst: 1})
	defer rl.Stop()
	defer rl.Stop()

	h := rl.Middleware(func(*http.Request) string { return "ip" }, WritesOnly, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	do := func(method string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/api/people", nil))
		return rec
	}

	if rec := do(http.MethodPost); rec.Code != http.StatusNoContent {
		t.Fatalf("first write: %d", rec.Code)
	}
	rec := do(http.MethodPost)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second write: %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	for i := 0; i < 5; i++ {
		if rec := do(http.MethodGet); rec.Code != http.StatusNoContent {
			t.Fatalf("reads are not limited: %d", rec.Code)
		}
	}
}
