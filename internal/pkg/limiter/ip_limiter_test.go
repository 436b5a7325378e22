package limiter

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"golang.org/x/time/rate"
)

func TestGetLimiterReturnsSameInstancePerIP(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(1), 1)

	first := l.GetLimiter("10.0.0.1")
	second := l.GetLimiter("10.0.0.1")
	other := l.GetLimiter("10.0.0.2")

	if first != second {
		t.Error("same IP resolved to different limiters")
	}
	if first == other {
		t.Error("different IPs share a limiter")
	}
}

func TestGetLimiterConcurrent(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(1), 1)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.GetLimiter("10.0.0.1")
		}()
	}
	wg.Wait()
}

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(0), 1)

	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.3:1234"

	// Burst of one: the first request passes, the second is limited.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want %d", rec.Code, http.StatusOK)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
}
