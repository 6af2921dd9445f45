package resilience

import "time"

// Backoff implements the exact idle/failure sleep contract the fetcher and
// sender coroutines share (spec §4.4, §8 property 5): start at base, double
// on every Next call, cap after MaxIncrements doublings, then reset to base
// on the next call. Each coroutine owns its own Backoff instance — state is
// per-task, never shared.
type Backoff struct {
	Base          time.Duration
	MaxIncrements int

	current    time.Duration
	increments int
}

// NewBackoff returns a Backoff seeded at base, resetting after maxIncrements
// doublings.
func NewBackoff(base time.Duration, maxIncrements int) *Backoff {
	return &Backoff{Base: base, MaxIncrements: maxIncrements, current: base}
}

// Next returns the delay to sleep for this call. Delays follow
// Base, Base*2, Base*4, ... up to Base*2^MaxIncrements, then the sequence
// resets to Base on the following call.
func (b *Backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.Base
	}
	delay := b.current

	if b.increments >= b.MaxIncrements {
		b.current = b.Base
		b.increments = 0
	} else {
		b.current *= 2
		b.increments++
	}

	return delay
}

// Reset returns the backoff to its initial state, used after a successful
// operation breaks a run of idle/failure sleeps.
func (b *Backoff) Reset() {
	b.current = b.Base
	b.increments = 0
}
