package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakeClock is a controllable time source for deterministic tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(rate int, window time.Duration, clock *fakeClock) *Limiter {
	l := New(rate, window)
	l.now = clock.Now
	return l
}

func allow(l *Limiter, key string) bool {
	ok, _, _ := l.Allow(key)
	return ok
}

func TestAllowBasic(t *testing.T) {
	l := newTestLimiter(3, time.Minute, newFakeClock(time.Now()))

	for i := 0; i < 3; i++ {
		if !allow(l, "203.0.113.7") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if allow(l, "203.0.113.7") {
		t.Fatal("4th request should be denied")
	}
}

func TestAllowDifferentKeys(t *testing.T) {
	l := newTestLimiter(1, time.Minute, newFakeClock(time.Now()))

	if !allow(l, "a") {
		t.Fatal("first request for key 'a' should be allowed")
	}
	if allow(l, "a") {
		t.Fatal("second request for key 'a' should be denied")
	}
	if !allow(l, "b") {
		t.Fatal("first request for key 'b' should be allowed")
	}
}

func TestTokenRefill(t *testing.T) {
	clock := newFakeClock(time.Now())
	// 60 per minute = 1 token per second.
	l := newTestLimiter(60, time.Minute, clock)

	for i := 0; i < 60; i++ {
		allow(l, "k")
	}
	if allow(l, "k") {
		t.Fatal("should be denied after exhausting tokens")
	}

	clock.Advance(time.Second)
	if !allow(l, "k") {
		t.Fatal("should be allowed after 1 second refill")
	}
	if allow(l, "k") {
		t.Fatal("should be denied again after consuming refilled token")
	}

	clock.Advance(10 * time.Minute)
	_, remaining, resetAt := l.Allow("k")
	if remaining != 59 {
		t.Fatalf("tokens should cap at the rate, got %d remaining after one request", remaining)
	}
	if !resetAt.After(clock.Now()) {
		t.Fatalf("resetAt %v should be after now", resetAt)
	}
}

func TestRemainingAndResetAt(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	// 3 per minute = one token every 20 seconds.
	l := newTestLimiter(3, time.Minute, clock)

	ok, remaining, resetAt := l.Allow("k")
	if !ok || remaining != 2 {
		t.Fatalf("first request: allowed=%v remaining=%d", ok, remaining)
	}
	if want := clock.Now().Add(20 * time.Second); !resetAt.Equal(want) {
		t.Errorf("resetAt = %v, want %v", resetAt, want)
	}

	l.Allow("k")
	l.Allow("k")
	ok, remaining, resetAt = l.Allow("k")
	if ok || remaining != 0 {
		t.Fatalf("exhausted bucket: allowed=%v remaining=%d", ok, remaining)
	}
	if want := clock.Now().Add(time.Minute); !resetAt.Equal(want) {
		t.Errorf("resetAt = %v, want a full refill at %v", resetAt, want)
	}

	clock.Advance(20 * time.Second)
	if _, remaining, _ = l.Allow("k"); remaining != 0 {
		t.Errorf("one refilled token spent, want 0 remaining, got %d", remaining)
	}
}

func TestConcurrentAccess(t *testing.T) {
	l := newTestLimiter(100, time.Minute, newFakeClock(time.Now()))

	var wg sync.WaitGroup
	allowed := make(chan bool, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- allow(l, "concurrent")
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for ok := range allowed {
		if ok {
			count++
		}
	}
	if count != 100 {
		t.Fatalf("expected exactly 100 allowed, got %d", count)
	}
}

func TestSweep(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(5, time.Minute, clock)

	allow(l, "idle")
	clock.Advance(30 * time.Second)
	allow(l, "active")

	clock.Advance(45 * time.Second)
	if n := l.Sweep(); n != 1 {
		t.Fatalf("expected 1 bucket swept, got %d", n)
	}
	if l.Len() != 1 {
		t.Fatalf("expected 1 bucket left, got %d", l.Len())
	}
}

func TestMiddleware(t *testing.T) {
	l := newTestLimiter(2, time.Minute, newFakeClock(time.Now()))
	rejected := 0
	h := Middleware(l, func() { rejected++ })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	do := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/leads", nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	for i := 0; i < 2; i++ {
		if rr := do("198.51.100.1:5000"); rr.Code != http.StatusCreated {
			t.Fatalf("request %d: expected 201, got %d", i+1, rr.Code)
		}
	}

	// Same IP, different source port.
	rr := do("198.51.100.1:6000")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("X-RateLimit-Limit") != "2" || rr.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("unexpected rate limit headers %v", rr.Header())
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["code"] != "rate_limited" || body["error"] == "" {
		t.Errorf("unexpected error body %v", body)
	}
	if rejected != 1 {
		t.Errorf("expected onReject once, got %d", rejected)
	}

	if rr := do("198.51.100.2:5000"); rr.Code != http.StatusCreated {
		t.Errorf("other client should not be limited, got %d", rr.Code)
	}
}

func TestMiddlewareNilLimiter(t *testing.T) {
	h := Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	if rr.Code != http.StatusOK || rr.Header().Get("X-RateLimit-Limit") != "" {
		t.Errorf("nil limiter should pass through, got %d %v", rr.Code, rr.Header())
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct{ remote, want string }{
		{"192.0.2.1:1234", "192.0.2.1"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"unix", "unix"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remote
		if got := ClientIP(req); got != tt.want {
			t.Errorf("ClientIP(%q) = %q, want %q", tt.remote, got, tt.want)
		}
	}
}
