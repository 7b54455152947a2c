package ratelimit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snipvault/snipvault/internal/settings"
)

type fixedPolicy struct {
	f settings.Foundation
}

func (p fixedPolicy) Foundation(ctx context.Context) settings.Foundation { return p.f }

func newTestLimiter(window time.Duration, authMax int) (*Limiter, *time.Time) {
	policy := fixedPolicy{f: settings.Foundation{
		RateLimitWindow: window,
		AuthMax:         authMax,
		PublicMax:       60,
		GeneralMax:      120,
	}}
	l := NewLimiter(policy, slog.New(slog.DiscardHandler))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return now })
	return l, &now
}

func hit(t *testing.T, l *Limiter, scope Scope, addr string) *httptest.ResponseRecorder {
	t.Helper()
	handler := l.Middleware(scope)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/auth/login", nil)
	req.RemoteAddr = addr
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestWindowAdmitsUpToLimit(t *testing.T) {
	l, _ := newTestLimiter(time.Second, 3)

	for i := 0; i < 3; i++ {
		rec := hit(t, l, ScopeAuth, "10.0.0.1:5000")
		assert.Equal(t, http.StatusNoContent, rec.Code, "request %d", i+1)
		assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(2-i), rec.Header().Get("X-RateLimit-Remaining"))
	}

	rec := hit(t, l, ScopeAuth, "10.0.0.1:5000")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retryAfter, 1)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Too many requests", body["error"])
	assert.Equal(t, "auth", body["scope"])
}

func TestWindowRollover(t *testing.T) {
	l, now := newTestLimiter(time.Second, 1)

	assert.Equal(t, http.StatusNoContent, hit(t, l, ScopeAuth, "10.0.0.1:5000").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(t, l, ScopeAuth, "10.0.0.1:5000").Code)

	*now = now.Add(1100 * time.Millisecond)
	rec := hit(t, l, ScopeAuth, "10.0.0.1:5000")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestScopesAndClientsIndependent(t *testing.T) {
	l, _ := newTestLimiter(time.Second, 1)

	assert.Equal(t, http.StatusNoContent, hit(t, l, ScopeAuth, "10.0.0.1:5000").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(t, l, ScopeAuth, "10.0.0.1:5000").Code)

	// Same client, different scope.
	assert.Equal(t, http.StatusNoContent, hit(t, l, ScopeGeneral, "10.0.0.1:5000").Code)
	// Same scope, different client.
	assert.Equal(t, http.StatusNoContent, hit(t, l, ScopeAuth, "10.0.0.2:5000").Code)
}

func TestForwardedForTakesPrecedence(t *testing.T) {
	l, _ := newTestLimiter(time.Second, 1)

	handler := l.Middleware(ScopeAuth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i, want := range []int{http.StatusNoContent, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/login", nil)
		req.RemoteAddr = "127.0.0.1:900" + strconv.Itoa(i)
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code)
	}
}

func TestZeroLimitDisablesScope(t *testing.T) {
	l, _ := newTestLimiter(time.Second, 0)

	for i := 0; i < 10; i++ {
		rec := hit(t, l, ScopeAuth, "10.0.0.1:5000")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestSweepEvictsIdleBuckets(t *testing.T) {
	l, now := newTestLimiter(time.Second, 5)

	hit(t, l, ScopeAuth, "10.0.0.1:5000")
	hit(t, l, ScopeAuth, "10.0.0.2:5000")
	require.Equal(t, 2, l.Len())

	*now = now.Add(1500 * time.Millisecond)
	hit(t, l, ScopeAuth, "10.0.0.2:5000")

	*now = now.Add(1 * time.Second)
	l.Sweep(time.Second)
	assert.Equal(t, 1, l.Len())

	*now = now.Add(10 * time.Second)
	l.Sweep(time.Second)
	assert.Equal(t, 0, l.Len())
}
