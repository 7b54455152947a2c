// Package ratelimit enforces fixed-window, per-scope request quotas keyed
// by client address. Buckets are in-memory and per-instance: recreated on
// restart and never shared across processes, so limiting is best-effort
// rather than a durability guarantee.
package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/snipvault/snipvault/internal/platform/httpx"
	"github.com/snipvault/snipvault/internal/settings"
	"github.com/snipvault/snipvault/internal/shared"
)

// Scope names a request class with its own quota.
type Scope string

const (
	ScopeAuth    Scope = "auth"
	ScopePublic  Scope = "public"
	ScopeGeneral Scope = "general"
)

// PolicySource supplies the current limits. Reading it fresh on every
// request means an admin's limit change takes effect within one settings
// cache TTL, no restart required.
type PolicySource interface {
	Foundation(ctx context.Context) settings.Foundation
}

const (
	fallbackWindow = time.Minute
	sweepInterval  = 30 * time.Second
)

type bucket struct {
	windowStart time.Time
	count       int
	lastSeen    time.Time
}

// Limiter owns the process-local bucket map.
type Limiter struct {
	policy PolicySource
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewLimiter constructs a Limiter.
func NewLimiter(policy PolicySource, logger *slog.Logger) *Limiter {
	return &Limiter{
		policy:  policy,
		logger:  logger,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// SetClock overrides the time source. Intended for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

func (l *Limiter) limitFor(f settings.Foundation, scope Scope) int {
	switch scope {
	case ScopeAuth:
		return f.AuthMax
	case ScopePublic:
		return f.PublicMax
	default:
		return f.GeneralMax
	}
}

// Middleware returns a request filter enforcing the scope's quota. Every
// response, permitted or not, carries remaining-quota headers.
func (l *Limiter) Middleware(scope Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f := l.policy.Foundation(r.Context())
			window := f.RateLimitWindow
			if window <= 0 {
				window = fallbackWindow
			}
			limit := l.limitFor(f, scope)
			if limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			key := string(scope) + "|" + shared.ClientIP(r)

			// The read-then-increment must stay one synchronous segment;
			// nothing here may suspend while the bucket is inspected.
			l.mu.Lock()
			now := l.now()
			b, ok := l.buckets[key]
			var rejected bool
			var retryAfter time.Duration
			var remaining int
			if !ok || now.Sub(b.windowStart) >= window {
				l.buckets[key] = &bucket{windowStart: now, count: 1, lastSeen: now}
				remaining = limit - 1
			} else {
				b.count++
				b.lastSeen = now
				if b.count > limit {
					rejected = true
					retryAfter = window - now.Sub(b.windowStart)
					remaining = 0
				} else {
					remaining = limit - b.count
				}
			}
			l.mu.Unlock()

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if rejected {
				if l.logger != nil {
					l.logger.Warn("rate limit exceeded",
						slog.String("scope", string(scope)),
						slog.String("client", shared.ClientIP(r)))
				}
				httpx.TooManyRequests(w, string(scope), retryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Run sweeps idle buckets until the context is cancelled, bounding memory.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			window := l.policy.Foundation(ctx).RateLimitWindow
			if window <= 0 {
				window = fallbackWindow
			}
			l.Sweep(window)
		}
	}
}

// Sweep evicts buckets idle for more than twice the window.
func (l *Limiter) Sweep(window time.Duration) {
	cutoff := l.now().Add(-2 * window)
	l.mu.Lock()
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
	l.mu.Unlock()
}

// Len reports the current bucket count. Intended for tests and metrics.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
