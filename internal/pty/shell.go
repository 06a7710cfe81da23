// Package pty manages the pseudo-terminal and shell process behind an
// agent session.
package pty

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// Sentinel errors for the two ways a session can fail to start. Allocation
// failures mean the host is out of PTYs; spawn failures mean the shell
// binary itself could not be executed.
var (
	ErrAllocation = errors.New("pty allocation failed")
	ErrSpawn      = errors.New("shell spawn failed")
)

// killGracePeriod is how long Close waits for the shell to honor SIGTERM
// before escalating to SIGKILL.
const killGracePeriod = 2 * time.Second

// Options configures the spawned shell.
type Options struct {
	Path  string   // shell binary ("" = $SHELL detection)
	Login bool     // pass -l so profile files run
	Term  string   // TERM for the shell (default: xterm-256color)
	Rows  uint16   // initial window rows (default: 24)
	Cols  uint16   // initial window columns (default: 80)
	Dir   string   // working directory ("" = inherit)
	Env   []string // complete child environment (nil = inherit)
}

// Shell is a login shell attached to a pseudo-terminal. Read and Write
// move raw bytes through the terminal; the shell's line discipline does
// the rest.
type Shell struct {
	cmd  *exec.Cmd
	ptmx *os.File
	path string

	// closed when the process has been reaped; exitCode is valid after.
	done     chan struct{}
	exitCode int

	closeOnce sync.Once
	closeErr  error
}

// Start allocates a PTY and spawns the shell on its slave side.
func Start(opts Options) (*Shell, error) {
	if opts.Path == "" {
		opts.Path = detectShell()
	}
	if opts.Term == "" {
		opts.Term = "xterm-256color"
	}
	if opts.Rows == 0 {
		opts.Rows = 24
	}
	if opts.Cols == 0 {
		opts.Cols = 80
	}

	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAllocation, err)
	}

	if err := pty.Setsize(ptmx, &pty.Winsize{Rows: opts.Rows, Cols: opts.Cols}); err != nil {
		ptmx.Close()
		tty.Close()
		return nil, fmt.Errorf("%w: set size: %w", ErrAllocation, err)
	}

	var args []string
	if opts.Login {
		args = append(args, "-l")
	}

	cmd := exec.Command(opts.Path, args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}

	env := opts.Env
	if env == nil {
		env = os.Environ()
	}
	child := make([]string, 0, len(env)+1)
	child = append(child, env...)
	child = append(child, "TERM="+opts.Term)
	cmd.Env = child

	cmd.Stdin = tty
	cmd.Stdout = tty
	cmd.Stderr = tty
	// New session with the tty as controlling terminal, so job control and
	// signals (Ctrl-C and friends) work inside the shell.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
	}

	if err := cmd.Start(); err != nil {
		ptmx.Close()
		tty.Close()
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	// The child holds its own copy of the slave side.
	tty.Close()

	s := &Shell{
		cmd:  cmd,
		ptmx: ptmx,
		path: opts.Path,
		done: make(chan struct{}),
	}
	go s.reap()

	return s, nil
}

// Path returns the shell binary in use.
func (s *Shell) Path() string {
	return s.path
}

// Read reads shell output from the terminal. It returns io.EOF once the
// shell has exited and buffered output is drained, and an error once Close
// has run.
func (s *Shell) Read(p []byte) (int, error) {
	n, err := s.ptmx.Read(p)
	if err != nil && errors.Is(err, syscall.EIO) {
		// Linux reports EIO on the master once the child is gone and the
		// buffer is empty; that is this stream's end, not a failure.
		return n, io.EOF
	}
	return n, err
}

// Write writes keystrokes to the terminal.
func (s *Shell) Write(p []byte) (int, error) {
	return s.ptmx.Write(p)
}

// WaitExit blocks until the shell process has been reaped and returns its
// exit code. A shell killed by a signal reports 128 plus the signal number,
// the way shells themselves report it.
func (s *Shell) WaitExit() int {
	<-s.done
	return s.exitCode
}

// Close tears the session down: it closes the terminal, which unblocks any
// pending Read, then terminates the shell, escalating to SIGKILL if it
// ignores SIGTERM past the grace period. Safe to call more than once and
// after the shell has already exited.
func (s *Shell) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.ptmx.Close()

		select {
		case <-s.done:
			return
		default:
		}

		if s.cmd.Process != nil {
			_ = s.cmd.Process.Signal(syscall.SIGTERM)
		}

		select {
		case <-s.done:
		case <-time.After(killGracePeriod):
			if s.cmd.Process != nil {
				_ = s.cmd.Process.Kill()
			}
			<-s.done
		}
	})
	return s.closeErr
}

// reap waits for the process and records its exit code. It runs once, from
// Start; WaitExit and Close observe the result through done.
func (s *Shell) reap() {
	err := s.cmd.Wait()
	s.exitCode = exitCode(err)
	close(s.done)
}

// exitCode maps a Wait error to a shell-style exit code.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return ee.ExitCode()
	}
	return -1
}

// detectShell detects the user's default shell.
func detectShell() string {
	// Check SHELL environment variable
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}

	// Try common shells
	shells := []string{"/bin/bash", "/bin/zsh", "/bin/sh"}
	for _, shell := range shells {
		if _, err := os.Stat(shell); err == nil {
			return shell
		}
	}

	return "/bin/sh"
}
