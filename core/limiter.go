package core

import (
	"fmt"
	"sync"
)

// IterationLimiter enforces a maximum number of model ⇄ tool cycles per
// conversation turn.
type IterationLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// ErrLimitExceeded is wrapped by the error returned from Increment once the
// cap has been passed.
var ErrLimitExceeded = fmt.Errorf("iteration limit exceeded")

// NewIterationLimiter creates a new limiter with a max number of cycles.
// If max == 0, unlimited cycles are allowed.
func NewIterationLimiter(max int) *IterationLimiter {
	return &IterationLimiter{max: max}
}

// Increment increases the cycle counter and returns an error if the limit is exceeded.
func (l *IterationLimiter) Increment() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.count++
	if l.max > 0 && l.count > l.max {
		return fmt.Errorf("%w: %d", ErrLimitExceeded, l.max)
	}

	return nil
}

// Count returns the number of cycles recorded so far.
func (l *IterationLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}

// Max returns the configured cap (0 = unlimited).
func (l *IterationLimiter) Max() int { return l.max }

// Remaining returns how many cycles are left before hitting the limit.
func (l *IterationLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max == 0 {
		return -1 // unlimited
	}

	if l.count >= l.max {
		return 0
	}

	return l.max - l.count
}
