package mailferry

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDelayWithinJitterBounds(t *testing.T) {
	b := &Backoff{Base: time.Second, Rand: rand.New(rand.NewSource(42))}

	for attempt := 1; attempt <= 6; attempt++ {
		lower := time.Duration(1<<uint(attempt)) * time.Second
		for i := 0; i < 100; i++ {
			d := b.Delay(attempt)
			require.GreaterOrEqual(t, d, lower, "attempt %d", attempt)
			require.Less(t, d, lower+time.Second, "attempt %d", attempt)
		}
	}
}

func TestDelayDeterministicComponentGrows(t *testing.T) {
	b := &Backoff{Base: time.Second} // no jitter source

	prev := b.Delay(1)
	for attempt := 2; attempt <= 8; attempt++ {
		d := b.Delay(attempt)
		require.Greater(t, d, prev)
		prev = d
	}
}

func TestDelayClampsAttempt(t *testing.T) {
	b := &Backoff{Base: time.Second}

	require.Equal(t, b.Delay(1), b.Delay(0))
	require.Equal(t, b.Delay(1), b.Delay(-3))
}

func TestNewBackoffDefaults(t *testing.T) {
	b := NewBackoff()
	require.Equal(t, time.Second, b.Base)
	require.NotNil(t, b.Rand)
}
