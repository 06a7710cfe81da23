package auth

import (
	"sync"
	"time"

	"github.com/acmattson3/mqtt-shell/internal/ports"
)

// Lockout counts consecutive verification failures and enforces a cooldown
// once a threshold is crossed. The auth topic carries no client identity,
// so the lockout is global to the agent rather than per-peer.
type Lockout struct {
	mu          sync.Mutex
	clock       ports.Clock
	maxFailures int
	cooldown    time.Duration

	count    int
	lockedAt time.Time
}

// NewLockout creates a lockout that trips after maxFailures consecutive
// failures and holds for cooldown.
func NewLockout(maxFailures int, cooldown time.Duration, clock ports.Clock) *Lockout {
	return &Lockout{
		clock:       clock,
		maxFailures: maxFailures,
		cooldown:    cooldown,
	}
}

// Locked reports whether the lockout is currently in effect. An expired
// lockout clears the failure count.
func (l *Lockout) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lockedAt.IsZero() {
		return false
	}
	if l.clock.Now().Sub(l.lockedAt) >= l.cooldown {
		l.count = 0
		l.lockedAt = time.Time{}
		return false
	}
	return true
}

// Remaining returns how long the current lockout has left, or zero when
// not locked.
func (l *Lockout) Remaining() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lockedAt.IsZero() {
		return 0
	}
	left := l.cooldown - l.clock.Now().Sub(l.lockedAt)
	if left < 0 {
		return 0
	}
	return left
}

// RecordFailure counts one failed verification, tripping the lockout when
// the threshold is reached.
func (l *Lockout) RecordFailure() {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Reset if a previous lockout has expired
	if !l.lockedAt.IsZero() && l.clock.Now().Sub(l.lockedAt) >= l.cooldown {
		l.count = 0
		l.lockedAt = time.Time{}
	}

	l.count++
	if l.count >= l.maxFailures {
		l.lockedAt = l.clock.Now()
	}
}

// Reset clears the failure count after a successful verification.
func (l *Lockout) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count = 0
	l.lockedAt = time.Time{}
}
