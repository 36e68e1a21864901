package recognize

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Breaker is an in-process circuit breaker for a remote backend. After a
// transient failure it stays open for a cooldown that doubles per consecutive
// failure (base, 2*base, ... capped at max). The first call after the
// cooldown is let through as a probe.
type Breaker struct {
	name        string
	baseBackoff time.Duration
	maxBackoff  time.Duration
	now         func() time.Time

	mu       sync.Mutex
	failures int
	retryAt  time.Time
}

// NewBreaker creates a closed breaker. Zero durations default to 30s / 5m.
func NewBreaker(name string, baseBackoff, maxBackoff time.Duration) *Breaker {
	if baseBackoff <= 0 {
		baseBackoff = 30 * time.Second
	}
	if maxBackoff <= 0 {
		maxBackoff = 5 * time.Minute
	}
	return &Breaker{name: name, baseBackoff: baseBackoff, maxBackoff: maxBackoff, now: time.Now}
}

// Allow reports whether a call may go out. A nil breaker always allows.
func (b *Breaker) Allow() bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures == 0 || !b.now().Before(b.retryAt)
}

// Record updates the breaker with the outcome of a call. Only transient
// errors open it; fatal ones (bad credentials, 4xx) are left to the caller.
func (b *Breaker) Record(err error) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.failures > 0 {
			log.Info().Str("backend", b.name).Msg("circuit breaker CLOSED (reset)")
		}
		b.failures = 0
		return
	}
	if !isTransientError(err) {
		return
	}

	b.failures++
	backoff := b.baseBackoff
	for i := 1; i < b.failures; i++ {
		backoff *= 2
		if backoff >= b.maxBackoff {
			backoff = b.maxBackoff
			break
		}
	}
	b.retryAt = b.now().Add(backoff)

	log.Warn().
		Str("backend", b.name).
		Dur("cooldown", backoff).
		Int("failures", b.failures).
		Time("retry_at", b.retryAt).
		Msg("circuit breaker OPENED")
}

// isTransientError checks if a backend error is worth backing off from.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "eof")
}
