package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, req *http.Request) int {
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res.Code
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"gauge": {RatePerSecond: 1, Burst: 1},
	}, nil)
	handler := limiter.Middleware("gauge")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/gauge/deposit", nil)
	if code := serve(handler, req); code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", code)
	}
	if code := serve(handler, req); code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", code)
	}
}

func TestRateLimiterSeparatesRoutes(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"gauge":  {RatePerSecond: 1, Burst: 1},
		"minter": {RatePerSecond: 1, Burst: 1},
	}, nil)
	gaugeHandler := limiter.Middleware("gauge")(okHandler())
	minterHandler := limiter.Middleware("minter")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/gauge/deposit", nil)
	req.Header.Set("X-API-Key", "tenant-A")
	if code := serve(gaugeHandler, req); code != http.StatusOK {
		t.Fatalf("expected gauge request to succeed, got %d", code)
	}
	mintReq := httptest.NewRequest(http.MethodPost, "/minter/distribute", nil)
	mintReq.Header.Set("X-API-Key", "tenant-A")
	if code := serve(minterHandler, mintReq); code != http.StatusOK {
		t.Fatalf("expected first minter request to succeed, got %d", code)
	}
	if code := serve(minterHandler, mintReq); code != http.StatusTooManyRequests {
		t.Fatalf("expected second minter request to hit limit, got %d", code)
	}
}

func TestRateLimiterPrefersAPIKeyOverIP(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"gauge": {RatePerSecond: 1, Burst: 1},
	}, nil)
	handler := limiter.Middleware("gauge")(okHandler())

	for _, tenant := range []string{"tenant-A", "tenant-B"} {
		req := httptest.NewRequest(http.MethodPost, "/gauge/deposit", nil)
		req.Header.Set("X-API-Key", tenant)
		if code := serve(handler, req); code != http.StatusOK {
			t.Fatalf("expected %s request to succeed, got %d", tenant, code)
		}
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"gauge": {RatePerSecond: 0.001, Burst: 1},
	}, nil)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }
	handler := limiter.Middleware("gauge")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/gauge/deposit", nil)
	if code := serve(handler, req); code != http.StatusOK {
		t.Fatalf("first request: %d", code)
	}
	if code := serve(handler, req); code != http.StatusTooManyRequests {
		t.Fatalf("second request should be limited: %d", code)
	}
	now = now.Add(visitorTTL + time.Second)
	if code := serve(handler, req); code != http.StatusOK {
		t.Fatalf("idle client should get a fresh bucket: %d", code)
	}
}

func TestClientIDPrecedence(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:4000"
	if got := clientID(req); got != "192.0.2.1" {
		t.Fatalf("remote addr: %q", got)
	}
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	if got := clientID(req); got != "198.51.100.7" {
		t.Fatalf("forwarded: %q", got)
	}
	req.Header.Set("X-API-Key", "k")
	if got := clientID(req); got != "key:k" {
		t.Fatalf("api key: %q", got)
	}
}
