package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffSequenceAndReset(t *testing.T) {
	b := NewBackoff(500*time.Millisecond, 4)

	want := []time.Duration{
		500 * time.Millisecond,
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		500 * time.Millisecond, // resets after 4 doublings
		1 * time.Second,
	}

	for i, w := range want {
		got := b.Next()
		assert.Equalf(t, w, got, "call %d", i)
	}
}

func TestBackoffNeverExceedsBound(t *testing.T) {
	b := NewBackoff(500*time.Millisecond, 4)
	bound := 500 * time.Millisecond * (1 << 4)

	for i := 0; i < 50; i++ {
		assert.LessOrEqual(t, b.Next(), bound)
	}
}

func TestBackoffResetRestartsSequence(t *testing.T) {
	b := NewBackoff(500*time.Millisecond, 4)
	b.Next()
	b.Next()
	b.Reset()
	assert.Equal(t, 500*time.Millisecond, b.Next())
}
