package pipeline

import (
	"sync"
	"time"
)

// RateLimiterConfig sizes the token bucket. Window defaults to one
// minute; RequestsPerMinute tokens refill evenly across it.
type RateLimiterConfig struct {
	RequestsPerMinute int
	BurstLimit        int
	Window            time.Duration
}

// Decision is the outcome of an admission check. ResetTime tells a
// denied caller when a token will next be available; for an allowed
// caller it is when the bucket refills completely.
type Decision struct {
	Allowed         bool
	RemainingTokens float64
	ResetTime       time.Time
}

// RateLimiter is a non-blocking token bucket. Allow never waits and
// never queues; denied callers shed load or queue themselves.
type RateLimiter struct {
	mu          sync.Mutex
	tokens      float64
	burstLimit  float64
	refillPerMs float64
	lastRefill  time.Time
	now         func() time.Time
}

// NewRateLimiter creates a rate limiter with a full bucket
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	burst := float64(cfg.BurstLimit)
	if burst < 1 {
		burst = 1
	}

	now := time.Now
	return &RateLimiter{
		tokens:      burst,
		burstLimit:  burst,
		refillPerMs: float64(cfg.RequestsPerMinute) / float64(window.Milliseconds()),
		lastRefill:  now(),
		now:         now,
	}
}

// Allow consumes one token if available and reports the result
func (l *RateLimiter) Allow() Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.now()
	l.refill(current)

	if l.tokens >= 1 {
		l.tokens--
		return Decision{
			Allowed:         true,
			RemainingTokens: l.tokens,
			ResetTime:       current.Add(l.durationFor(l.burstLimit - l.tokens)),
		}
	}

	return Decision{
		Allowed:         false,
		RemainingTokens: l.tokens,
		ResetTime:       current.Add(l.durationFor(1 - l.tokens)),
	}
}

// Remaining returns the current token count without consuming one
func (l *RateLimiter) Remaining() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(l.now())
	return l.tokens
}

func (l *RateLimiter) refill(current time.Time) {
	elapsed := current.Sub(l.lastRefill)
	if elapsed <= 0 {
		return
	}
	// Nanosecond elapsed time so sub-millisecond polling still refills
	l.tokens += float64(elapsed.Nanoseconds()) / 1e6 * l.refillPerMs
	if l.tokens > l.burstLimit {
		l.tokens = l.burstLimit
	}
	l.lastRefill = current
}

// durationFor converts a token deficit into wall-clock wait time
func (l *RateLimiter) durationFor(tokens float64) time.Duration {
	if l.refillPerMs <= 0 || tokens <= 0 {
		return 0
	}
	return time.Duration(tokens/l.refillPerMs) * time.Millisecond
}
