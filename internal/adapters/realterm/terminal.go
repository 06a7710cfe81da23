// Package realterm adapts the local terminal to the Terminal port.
package realterm

import (
	"os"

	"golang.org/x/term"

	"github.com/acmattson3/mqtt-shell/internal/ports"
)

// Terminal implements ports.Terminal on the process's stdin.
type Terminal struct {
	fd    int
	saved *term.State
}

// New returns a Terminal for stdin.
func New() *Terminal {
	return &Terminal{fd: int(os.Stdin.Fd())}
}

// IsTerminal reports whether stdin is an interactive terminal.
func (t *Terminal) IsTerminal() bool {
	return term.IsTerminal(t.fd)
}

// MakeRaw puts the terminal into raw mode, remembering the previous state
// for Restore. In raw mode every keystroke, including Ctrl-C, passes
// through to the remote shell.
func (t *Terminal) MakeRaw() error {
	state, err := term.MakeRaw(t.fd)
	if err != nil {
		return err
	}
	t.saved = state
	return nil
}

// Restore returns the terminal to the state before MakeRaw. Calling it
// without a prior MakeRaw is a no-op.
func (t *Terminal) Restore() error {
	if t.saved == nil {
		return nil
	}
	err := term.Restore(t.fd, t.saved)
	t.saved = nil
	return err
}

// Ensure Terminal implements ports.Terminal.
var _ ports.Terminal = (*Terminal)(nil)
