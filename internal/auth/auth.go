// Package auth verifies the shared secret clients present before a shell
// is granted.
package auth

import (
	"crypto/subtle"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// Verifier checks candidate secrets against the agent secret. Candidates
// are compared as fixed-size BLAKE2b digests in constant time, so neither
// the secret's length nor its content leaks through timing.
type Verifier struct {
	mu      sync.RWMutex
	digest  [blake2b.Size256]byte
	set     bool
	lockout *Lockout
}

// NewVerifier creates a verifier for the given secret.
func NewVerifier(secret string) *Verifier {
	v := &Verifier{}
	v.SetSecret(secret)
	return v
}

// SetSecret replaces the expected secret. Callers use this for config
// hot-rotation; a Verify racing a rotation sees either the old or the new
// secret, never a mix.
func (v *Verifier) SetSecret(secret string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if secret == "" {
		v.digest = [blake2b.Size256]byte{}
		v.set = false
		return
	}
	v.digest = blake2b.Sum256([]byte(secret))
	v.set = true
}

// EnableLockout makes the verifier refuse every candidate for a cooldown
// once too many consecutive failures accumulate. Off by default: with a
// lockout armed, whether a candidate verifies depends on attempt history,
// not on the candidate alone.
func (v *Verifier) EnableLockout(l *Lockout) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lockout = l
}

// Verify reports whether candidate matches the current secret. The empty
// candidate never matches, and no candidate matches until a secret is set.
func (v *Verifier) Verify(candidate []byte) bool {
	v.mu.RLock()
	digest := v.digest
	set := v.set
	lockout := v.lockout
	v.mu.RUnlock()

	if !set || len(candidate) == 0 {
		return false
	}
	if lockout != nil && lockout.Locked() {
		return false
	}

	sum := blake2b.Sum256(candidate)
	ok := subtle.ConstantTimeCompare(sum[:], digest[:]) == 1

	if lockout != nil {
		if ok {
			lockout.Reset()
		} else {
			lockout.RecordFailure()
		}
	}
	return ok
}
