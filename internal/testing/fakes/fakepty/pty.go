// Package fakepty provides a fake shell session for testing agent logic
// without real terminals.
package fakepty

import (
	"bytes"
	"io"
	"sync"
)

// Shell is a fake shell session. Read blocks until output is queued or the
// session ends, the way a read on a real PTY blocks.
type Shell struct {
	mu      sync.Mutex
	written bytes.Buffer
	pending []byte
	closed  bool

	exitCode int
	exitOnce sync.Once
	done     chan struct{}
	output   chan []byte
}

// New creates a new fake shell session.
func New() *Shell {
	return &Shell{
		output: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
}

// QueueOutput makes data available to a subsequent Read.
func (s *Shell) QueueOutput(data string) *Shell {
	s.output <- []byte(data)
	return s
}

// SignalExit simulates the shell process exiting with code. Reads drain any
// remaining queued output, then fail with io.EOF.
func (s *Shell) SignalExit(code int) {
	s.exitOnce.Do(func() {
		s.mu.Lock()
		s.exitCode = code
		s.mu.Unlock()
		close(s.done)
	})
}

// Read returns queued output, blocking until some is available or the
// session has ended.
func (s *Shell) Read(p []byte) (int, error) {
	s.mu.Lock()
	if len(s.pending) > 0 {
		n := copy(p, s.pending)
		s.pending = s.pending[n:]
		s.mu.Unlock()
		return n, nil
	}
	s.mu.Unlock()

	select {
	case data := <-s.output:
		return s.deliver(p, data)
	case <-s.done:
		// Drain anything queued before the exit
		select {
		case data := <-s.output:
			return s.deliver(p, data)
		default:
			return 0, io.EOF
		}
	}
}

func (s *Shell) deliver(p []byte, data []byte) (int, error) {
	n := copy(p, data)
	if n < len(data) {
		s.mu.Lock()
		s.pending = append(s.pending, data[n:]...)
		s.mu.Unlock()
	}
	return n, nil
}

// Write captures written data for later inspection.
func (s *Shell) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, io.ErrClosedPipe
	}
	return s.written.Write(p)
}

// WaitExit blocks until SignalExit or Close and returns the exit code.
func (s *Shell) WaitExit() int {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

// Close marks the session closed. If the shell has not already exited it
// exits with 143, matching a real shell killed by SIGTERM.
func (s *Shell) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.SignalExit(143)
	return nil
}

// --- Test inspection methods ---

// Written returns all data written to the shell.
func (s *Shell) Written() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written.String()
}

// WrittenBytes returns all data written to the shell as bytes.
func (s *Shell) WrittenBytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.written.Bytes()...)
}

// IsClosed returns true if Close() was called.
func (s *Shell) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
