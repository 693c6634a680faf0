package httpx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	fixed := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return fixed }

	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/agendamentos", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
	if got := last.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("expected Retry-After 30, got %q", got)
	}

	other := httptest.NewRequest(http.MethodPost, "/agendamentos", nil)
	other.RemoteAddr = "10.0.0.2:5000"
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, other)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected separate bucket per client, got %d", rw.Code)
	}
}

func TestRedisRateLimiterBudgetsAndFailMode(t *testing.T) {
	rl := NewRedisRateLimiter(nil, 1, time.Minute, "rl:test").WithKey(UserOrClientKey)
	counts := map[string]int64{}
	var down bool
	rl.count = func(_ context.Context, key string) (int64, time.Duration, error) {
		if down {
			return 0, 0, errors.New("connection refused")
		}
		counts[key]++
		return counts[key], 45 * time.Second, nil
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	send := func(h http.Handler, user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/agendamentos", nil)
		req.Header.Set("X-User-Id", user)
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		return rw
	}

	h := rl.Middleware(logger, false)(ok)
	if rw := send(h, "c1"); rw.Code != http.StatusNoContent || rw.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("first call: %d %v", rw.Code, rw.Header())
	}
	rw := send(h, "c1")
	if rw.Code != http.StatusTooManyRequests || rw.Header().Get("Retry-After") != "45" {
		t.Fatalf("second call: %d %v", rw.Code, rw.Header())
	}
	if _, seen := counts["rl:test:user:c1"]; !seen {
		t.Fatalf("unexpected keys %v", counts)
	}
	if rw := send(h, "c2"); rw.Code != http.StatusNoContent {
		t.Fatalf("expected separate budget for c2, got %d", rw.Code)
	}

	down = true
	if rw := send(h, "c3"); rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("fail closed: expected 503, got %d", rw.Code)
	}
	if rw := send(rl.Middleware(logger, true)(ok), "c3"); rw.Code != http.StatusNoContent {
		t.Fatalf("fail open: expected pass through, got %d", rw.Code)
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.1.1:4000"
	if got := clientKey(req); got != "10.1.1.1" {
		t.Fatalf("expected peer host, got %q", got)
	}
	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	if got := clientKey(req); got != "203.0.113.9" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}
}

func TestChainOrderAndRequestID(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	var seenID string
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestIDFromContext(r.Context())
	}), WithRequestID, mw("a"), mw("b"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("unexpected middleware order %v", order)
	}
	if seenID != "req-42" || rw.Header().Get(RequestIDHeader) != "req-42" {
		t.Fatalf("request id not propagated: ctx=%q header=%q", seenID, rw.Header().Get(RequestIDHeader))
	}
}

func TestWithRequestIDRejectsUnsafeIDs(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "bad id with spaces")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "" || seen == "bad id with spaces" {
		t.Fatalf("expected a minted id, got %q", seen)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), WithCORS(CORSPolicy{AllowedOrigins: []string{"https://agenda.example"}, MaxAge: time.Minute}))

	req := httptest.NewRequest(http.MethodOptions, "/agendamentos", nil)
	req.Header.Set("Origin", "https://agenda.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rw.Code)
	}
	if got := rw.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, PUT, DELETE, OPTIONS" {
		t.Fatalf("unexpected allow methods %q", got)
	}
	if rw.Header().Get("Access-Control-Max-Age") != "60" {
		t.Fatalf("unexpected max age %q", rw.Header().Get("Access-Control-Max-Age"))
	}

	req = httptest.NewRequest(http.MethodGet, "/agendamentos/meus", nil)
	req.Header.Set("Origin", "https://evil.example")
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusTeapot || rw.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("foreign origin should pass through undecorated, got %d %q", rw.Code, rw.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestWithRecoverReturnsJSON500(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := WithRecover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rw.Code != http.StatusInternalServerError || !strings.Contains(rw.Body.String(), `"Internal"`) {
		t.Fatalf("unexpected response %d %q", rw.Code, rw.Body.String())
	}
}
