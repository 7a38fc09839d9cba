package mailferry

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Limiter gates outbound API calls so we stay inside Gmail quota.
type Limiter interface {
	Wait(ctx context.Context) error
}

// TokenBucket is a fixed-rate token bucket. Capacity matches the rate
// but never drops below one token, so a fractional rate still acquires
// and at most one second worth of calls can burst before Wait starts
// blocking. The zero value is not usable; use NewTokenBucket.
type TokenBucket struct {
	mu       sync.Mutex
	rate     float64 // tokens added per second
	capacity float64
	tokens   float64
	last     time.Time

	// Injectable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewTokenBucket returns a limiter sustaining rps calls per second.
// The bucket starts full.
func NewTokenBucket(rps float64) *TokenBucket {
	if rps <= 0 {
		rps = 1
	}
	// The bucket must hold at least one whole token or Wait can never
	// debit it.
	capacity := math.Max(rps, 1)
	tb := &TokenBucket{
		rate:     rps,
		capacity: capacity,
		tokens:   capacity,
		now:      time.Now,
		sleep:    sleepContext,
	}
	tb.last = tb.now()
	return tb
}

// Wait blocks until a token is available or the context is canceled,
// then debits exactly one token. The deficit is re-measured on every
// iteration since other callers may have drained the bucket while we
// slept.
func (t *TokenBucket) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "rate wait canceled")
		}

		t.mu.Lock()
		now := t.now()
		elapsed := now.Sub(t.last).Seconds()
		if elapsed > 0 {
			t.tokens = math.Min(t.capacity, t.tokens+elapsed*t.rate)
			t.last = now
		}
		if t.tokens >= 1 {
			t.tokens--
			t.mu.Unlock()
			return nil
		}
		deficit := 1 - t.tokens
		t.mu.Unlock()

		wait := time.Duration(deficit / t.rate * float64(time.Second))
		if err := t.sleep(ctx, wait); err != nil {
			return errors.Wrap(err, "rate wait canceled")
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Limiter = (*TokenBucket)(nil)
