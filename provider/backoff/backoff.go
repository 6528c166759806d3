package backoff

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mrand "math/rand/v2"
	"sync"
	"time"
)

// Source draws integers in [0, n). It must be safe for concurrent use.
type Source interface {
	Int64N(n int64) int64
}

// lockedRand serializes access to a math/rand generator.
type lockedRand struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// NewSource wraps a math/rand/v2 source so it can be shared across goroutines.
// Pass a deterministic source (e.g. rand.NewPCG(1, 2)) to make waits repeatable.
func NewSource(src mrand.Source) Source {
	return &lockedRand{rng: mrand.New(src)}
}

// Int64N implements Source.
func (r *lockedRand) Int64N(n int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.rng.Int64N(n)
}

// DefaultSource returns a Source seeded from crypto/rand, falling back to a
// fixed seed only when the system entropy pool cannot be read.
func DefaultSource() Source {
	var seed [16]byte

	if _, err := rand.Read(seed[:]); err != nil {
		return NewSource(mrand.NewPCG(uint64(time.Now().UnixNano()), 0)) // #nosec G404
	}

	return NewSource(mrand.NewPCG(
		binary.LittleEndian.Uint64(seed[:8]),
		binary.LittleEndian.Uint64(seed[8:]),
	)) // #nosec G404 -- jitter, not a secret
}

// Uniform returns a random duration in [minWait, maxWait].
//
// When both bounds are whole seconds the result is a whole number of seconds,
// so a wait between 2s and 10s is one of 2s, 3s, ... 10s. Bounds are swapped
// when inverted; negative bounds are treated as zero. A nil src uses DefaultSource.
func Uniform(minWait, maxWait time.Duration, src Source) time.Duration {
	if minWait < 0 {
		minWait = 0
	}

	if maxWait < 0 {
		maxWait = 0
	}

	if maxWait < minWait {
		minWait, maxWait = maxWait, minWait
	}

	if maxWait == minWait {
		return minWait
	}

	if src == nil {
		src = DefaultSource()
	}

	step := time.Nanosecond
	if minWait%time.Second == 0 && maxWait%time.Second == 0 {
		step = time.Second
	}

	span := int64((maxWait-minWait)/step) + 1

	return minWait + time.Duration(src.Int64N(span))*step
}

// SleepWithContext sleeps for the specified duration but respects context cancellation.
// Returns nil if the sleep completes, or an error if the context is cancelled.
// Returns immediately (nil) for zero or negative durations.
func SleepWithContext(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context done: %w", ctx.Err())
	}
}
