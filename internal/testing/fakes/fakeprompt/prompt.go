// Package fakeprompt provides canned prompt responses for testing.
package fakeprompt

import (
	"fmt"
	"sync"

	"github.com/acmattson3/mqtt-shell/internal/ports"
)

// Prompter returns queued responses instead of asking a human. An empty
// queue fails the call, so unexpected prompts surface as test failures.
type Prompter struct {
	mu        sync.Mutex
	inputs    []string
	passwords [][]byte
	err       error

	inputTitles    []string
	passwordTitles []string
}

// New creates a prompter with nothing queued.
func New() *Prompter {
	return &Prompter{}
}

// QueueInput adds a response for a future Input call.
func (p *Prompter) QueueInput(s string) *Prompter {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputs = append(p.inputs, s)
	return p
}

// QueuePassword adds a response for a future Password call.
func (p *Prompter) QueuePassword(b []byte) *Prompter {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.passwords = append(p.passwords, append([]byte(nil), b...))
	return p
}

// Fail makes every subsequent prompt return err.
func (p *Prompter) Fail(err error) *Prompter {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
	return p
}

// Input returns the next queued input response.
func (p *Prompter) Input(title, description string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inputTitles = append(p.inputTitles, title)
	if p.err != nil {
		return "", p.err
	}
	if len(p.inputs) == 0 {
		return "", fmt.Errorf("unexpected Input prompt %q", title)
	}
	v := p.inputs[0]
	p.inputs = p.inputs[1:]
	return v, nil
}

// Password returns the next queued password response.
func (p *Prompter) Password(title, description string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.passwordTitles = append(p.passwordTitles, title)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.passwords) == 0 {
		return nil, fmt.Errorf("unexpected Password prompt %q", title)
	}
	v := p.passwords[0]
	p.passwords = p.passwords[1:]
	return v, nil
}

// --- Test inspection methods ---

// InputTitles returns the titles of every Input prompt shown.
func (p *Prompter) InputTitles() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.inputTitles...)
}

// PasswordTitles returns the titles of every Password prompt shown.
func (p *Prompter) PasswordTitles() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.passwordTitles...)
}

// Ensure Prompter implements ports.Prompter.
var _ ports.Prompter = (*Prompter)(nil)
