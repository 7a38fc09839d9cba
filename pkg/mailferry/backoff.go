package mailferry

import (
	"math/rand"
	"time"
)

// Backoff computes retry delays: 2^attempt seconds plus up to one
// second of jitter. The jitter keeps concurrent runs from hammering
// the API in lockstep after a shared quota event. No cap is applied
// here; callers bound the attempt count instead.
type Backoff struct {
	// Base is the delay unit. Defaults to one second.
	Base time.Duration

	// Rand supplies jitter. Defaults to a time-seeded source.
	Rand *rand.Rand
}

// NewBackoff returns a Backoff with production defaults.
func NewBackoff() *Backoff {
	return &Backoff{
		Base: time.Second,
		Rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Delay returns the wait before retry number attempt (1-based).
func (b *Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(1<<uint(attempt)) * base
	if b.Rand != nil {
		d += time.Duration(b.Rand.Int63n(int64(base)))
	}
	return d
}
