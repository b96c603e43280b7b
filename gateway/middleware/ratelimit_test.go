package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rwalend/gateway/auth"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func fixedLimiter(limits map[string]RateLimit) *RateLimiter {
	limiter := NewRateLimiter(limits, nil)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }
	return limiter
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := fixedLimiter(map[string]RateLimit{"cdp": {RequestsPerMinute: 60, Burst: 1}})
	handler := limiter.Middleware("cdp")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/cdp/positions", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected json error body, got %q", ct)
	}
}

func TestRateLimiterSeparatesRoutes(t *testing.T) {
	limiter := fixedLimiter(map[string]RateLimit{
		"cdp":  {RequestsPerMinute: 60, Burst: 1},
		"pool": {RequestsPerMinute: 60, Burst: 1},
	})
	cdpHandler := limiter.Middleware("cdp")(okHandler())
	poolHandler := limiter.Middleware("pool")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/cdp/open", nil)
	req.Header.Set(auth.HeaderAccount, "rwa1alice")
	res := httptest.NewRecorder()
	cdpHandler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected cdp request to succeed, got %d", res.Code)
	}

	poolReq := httptest.NewRequest(http.MethodPost, "/v1/pool/stake", nil)
	poolReq.Header.Set(auth.HeaderAccount, "rwa1alice")
	poolRes := httptest.NewRecorder()
	poolHandler.ServeHTTP(poolRes, poolReq)
	if poolRes.Code != http.StatusOK {
		t.Fatalf("expected first pool request to succeed, got %d", poolRes.Code)
	}

	poolRes = httptest.NewRecorder()
	poolHandler.ServeHTTP(poolRes, poolReq)
	if poolRes.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second pool request to hit limit, got %d", poolRes.Code)
	}
}

func TestRateLimiterPrefersAccountOverIP(t *testing.T) {
	limiter := fixedLimiter(map[string]RateLimit{"cdp": {RequestsPerMinute: 60, Burst: 1}})
	handler := limiter.Middleware("cdp")(okHandler())

	for _, account := range []string{"rwa1alice", "rwa1bob"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/cdp/positions", nil)
		req.Header.Set(auth.HeaderAccount, account)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("expected %s request to succeed, got %d", account, res.Code)
		}
	}
}

func TestRateLimiterIgnoresUnconfiguredGroups(t *testing.T) {
	limiter := fixedLimiter(nil)
	handler := limiter.Middleware("token")(okHandler())
	for i := 0; i < 5; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/token/balance", nil))
		if res.Code != http.StatusOK {
			t.Fatalf("request %d unexpectedly limited: %d", i, res.Code)
		}
	}
}
