// Package faketerm provides a scriptable Terminal implementation for
// testing.
package faketerm

import (
	"sync"

	"github.com/acmattson3/mqtt-shell/internal/ports"
)

// Terminal is a fake terminal that records raw-mode transitions.
type Terminal struct {
	mu           sync.Mutex
	isTerminal   bool
	raw          bool
	rawErr       error
	rawCalls     int
	restoreCalls int
}

// New creates a fake terminal that reports itself interactive.
func New() *Terminal {
	return &Terminal{isTerminal: true}
}

// SetIsTerminal controls what IsTerminal reports.
func (t *Terminal) SetIsTerminal(v bool) *Terminal {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.isTerminal = v
	return t
}

// FailMakeRaw makes MakeRaw return err.
func (t *Terminal) FailMakeRaw(err error) *Terminal {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rawErr = err
	return t
}

// IsTerminal reports the scripted interactivity.
func (t *Terminal) IsTerminal() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isTerminal
}

// MakeRaw records the transition into raw mode.
func (t *Terminal) MakeRaw() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rawCalls++
	if t.rawErr != nil {
		return t.rawErr
	}
	t.raw = true
	return nil
}

// Restore records the transition out of raw mode.
func (t *Terminal) Restore() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.restoreCalls++
	t.raw = false
	return nil
}

// --- Test inspection methods ---

// InRaw reports whether the terminal is currently in raw mode.
func (t *Terminal) InRaw() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.raw
}

// RawCalls returns how many times MakeRaw was called.
func (t *Terminal) RawCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rawCalls
}

// RestoreCalls returns how many times Restore was called.
func (t *Terminal) RestoreCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.restoreCalls
}

// Ensure Terminal implements ports.Terminal.
var _ ports.Terminal = (*Terminal)(nil)
