package graph

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Conservative defaults: Graph allows roughly 10,000 requests per 10 minutes
// per app per tenant.
const (
	defaultRequestsPerSecond = 10.0
	defaultBurstSize         = 15
	defaultBackoffSeconds    = 60
)

// rateLimiter paces outbound requests with a token bucket and honours
// Retry-After backoff recorded from 429 responses.
type rateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
}

func newRateLimiter(requestsPerSecond float64, burst int) *rateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = defaultRequestsPerSecond
	}
	if burst <= 0 {
		burst = defaultBurstSize
	}
	return &rateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// wait blocks until a request may proceed or ctx is cancelled.
func (r *rateLimiter) wait(ctx context.Context) error {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if until := time.Until(retryAt); until > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(until):
		}
	}

	return r.limiter.Wait(ctx)
}

// recordThrottle sets a backoff window after a 429 response. The seconds
// value should come from the Retry-After header.
func (r *rateLimiter) recordThrottle(retryAfterSeconds int) {
	if retryAfterSeconds <= 0 {
		retryAfterSeconds = defaultBackoffSeconds
	}

	r.mu.Lock()
	r.retryAt = time.Now().Add(time.Duration(retryAfterSeconds) * time.Second)
	r.mu.Unlock()
}
