// Package backoff implements the bounded exponential backoff with additive
// jitter used by the connection supervisor between reconnect attempts.
package backoff

import (
	"fmt"
	"math/rand"
	"time"
)

// Bounded computes successive retry delays: each call to Next returns the
// current interval plus a random jitter in [0, jitter), then doubles the
// current interval, capped at max. Reset restores the current interval to
// initial. A Bounded value is owned by a single goroutine (the supervisor)
// and is not safe for concurrent use.
type Bounded struct {
	initial time.Duration
	max     time.Duration
	jitter  time.Duration
	current time.Duration
	rng     *rand.Rand
}

// New constructs a Bounded backoff. It fails if initial <= 0, max <= 0,
// jitter < 0, or max < initial.
func New(initial, max, jitter time.Duration) (*Bounded, error) {
	if initial <= 0 {
		return nil, fmt.Errorf("backoff: initial must be > 0, got %s", initial)
	}
	if max <= 0 {
		return nil, fmt.Errorf("backoff: max must be > 0, got %s", max)
	}
	if jitter < 0 {
		return nil, fmt.Errorf("backoff: jitter must be >= 0, got %s", jitter)
	}
	if max < initial {
		return nil, fmt.Errorf("backoff: max (%s) must be >= initial (%s)", max, initial)
	}
	return &Bounded{
		initial: initial,
		max:     max,
		jitter:  jitter,
		current: initial,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Next returns the next delay and advances the current interval.
func (b *Bounded) Next() time.Duration {
	var jitter time.Duration
	if b.jitter > 0 {
		jitter = time.Duration(b.rng.Int63n(int64(b.jitter)))
	}
	delay := b.current + jitter
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return delay
}

// Reset restores the current interval to the configured initial value.
func (b *Bounded) Reset() {
	b.current = b.initial
}

// Current returns the interval that the next call to Next will use as its
// base (before jitter). Exposed for tests asserting the doubling sequence.
func (b *Bounded) Current() time.Duration {
	return b.current
}
