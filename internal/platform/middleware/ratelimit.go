package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL is how long an unused client limiter is kept. Zero keeps them
	// for ten minutes.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
		IdleTTL:           10 * time.Minute,
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterStore holds one token bucket per client key.
type limiterStore struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &limiterStore{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.BurstSize,
		idleTTL: ttl,
		now:     time.Now,
	}
}

func (s *limiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	cl, ok := s.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.clients[key] = cl
	}
	cl.lastSeen = s.now()
	return cl.limiter
}

// sweep drops limiters idle for longer than idleTTL.
func (s *limiterStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.idleTTL)
	for key, cl := range s.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(s.clients, key)
		}
	}
}

func (s *limiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// RateLimiter limits requests per client IP.
type RateLimiter struct {
	cfg   RateLimitConfig
	store *limiterStore
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{cfg: cfg, store: newLimiterStore(cfg)}
}

// StartCleanup sweeps idle client limiters every interval until ctx is done.
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.store.sweep()
			}
		}
	}()
}

// Middleware rejects requests beyond the configured rate with 429 and a
// Retry-After header.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	limitHeader := strconv.FormatFloat(rl.cfg.RequestsPerSecond, 'f', 0, 64)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			lim := rl.store.get(c.RealIP())
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)

			now := rl.store.now()
			r := lim.ReserveN(now, 1)
			if delay := reservationDelay(r, now); delay > 0 {
				if r.OK() {
					r.CancelAt(now)
				}
				h.Set("Retry-After", retryAfter(delay))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}

			remaining := int(lim.TokensAt(now))
			if remaining < 0 {
				remaining = 0
			}
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			return next(c)
		}
	}
}

// reservationDelay is how long r must wait from now. A reservation that can
// never be met, or whose limiter has no refill rate, reports rate.InfDuration.
func reservationDelay(r *rate.Reservation, now time.Time) time.Duration {
	if !r.OK() {
		return rate.InfDuration
	}
	return r.DelayFrom(now)
}

// retryAfter renders a Retry-After value in whole seconds. Without a finite
// refill time clients are told to retry after one second.
func retryAfter(delay time.Duration) string {
	if delay == rate.InfDuration {
		return "1"
	}
	return strconv.Itoa(int(math.Ceil(delay.Seconds())))
}

// RateLimit returns a rate limiting middleware without background cleanup.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return NewRateLimiter(cfg).Middleware()
}
