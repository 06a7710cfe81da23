package pty

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// collector drains shell output on a background goroutine so tests can
// poll for expected substrings without blocking.
type collector struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func collect(s *Shell) *collector {
	c := &collector{}
	go func() {
		b := make([]byte, 1024)
		for {
			n, err := s.Read(b)
			if n > 0 {
				c.mu.Lock()
				c.buf.Write(b[:n])
				c.mu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()
	return c
}

func (c *collector) contains(substr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Contains(c.buf.String(), substr)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal(msg)
}

func startTestShell(t *testing.T, opts Options) *Shell {
	t.Helper()
	if opts.Path == "" {
		opts.Path = "/bin/sh"
	}
	s, err := Start(opts)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStart_SpawnFailure(t *testing.T) {
	_, err := Start(Options{Path: "/nonexistent/shell-binary"})
	if err == nil {
		t.Fatal("Start(nonexistent shell) expected error, got nil")
	}
	if !errors.Is(err, ErrSpawn) {
		t.Errorf("Start() error = %v, want ErrSpawn", err)
	}
	if errors.Is(err, ErrAllocation) {
		t.Errorf("Start() error = %v, should not match ErrAllocation", err)
	}
}

func TestStart_LoginArgs(t *testing.T) {
	s := startTestShell(t, Options{Login: true})

	if len(s.cmd.Args) != 2 || s.cmd.Args[1] != "-l" {
		t.Errorf("cmd.Args = %v, want [/bin/sh -l]", s.cmd.Args)
	}
}

func TestStart_NoLoginArgs(t *testing.T) {
	s := startTestShell(t, Options{})

	if len(s.cmd.Args) != 1 {
		t.Errorf("cmd.Args = %v, want just the shell path", s.cmd.Args)
	}
}

func TestShell_Path(t *testing.T) {
	s := startTestShell(t, Options{})
	if s.Path() != "/bin/sh" {
		t.Errorf("Path() = %q, want %q", s.Path(), "/bin/sh")
	}
}

func TestShell_EchoRoundTrip(t *testing.T) {
	s := startTestShell(t, Options{})
	out := collect(s)

	if _, err := s.Write([]byte("echo round-trip-marker\n")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return out.contains("round-trip-marker")
	}, "shell output never contained the echoed marker")
}

func TestShell_TermEnv(t *testing.T) {
	s := startTestShell(t, Options{Term: "vt100"})
	out := collect(s)

	if _, err := s.Write([]byte("printf 'term=%s\\n' \"$TERM\"\n")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return out.contains("term=vt100")
	}, "shell did not see the configured TERM")
}

func TestShell_CustomEnv(t *testing.T) {
	s := startTestShell(t, Options{
		Env: []string{"PATH=/usr/bin:/bin", "MARKER=custom-env-value"},
	})
	out := collect(s)

	if _, err := s.Write([]byte("printf 'got=%s\\n' \"$MARKER\"\n")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return out.contains("got=custom-env-value")
	}, "shell did not see the custom environment")
}

func TestShell_EnvNotInherited(t *testing.T) {
	t.Setenv("LEAKED_VAR", "should-not-appear")

	s := startTestShell(t, Options{
		Env: []string{"PATH=/usr/bin:/bin"},
	})
	out := collect(s)

	if _, err := s.Write([]byte("printf 'leak=[%s]\\n' \"$LEAKED_VAR\"\n")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return out.contains("leak=[]")
	}, "shell saw a variable outside its explicit environment")
}

func TestShell_ExitCode(t *testing.T) {
	s := startTestShell(t, Options{})
	collect(s)

	if _, err := s.Write([]byte("exit 7\n")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	codeCh := make(chan int, 1)
	go func() { codeCh <- s.WaitExit() }()

	select {
	case code := <-codeCh:
		if code != 7 {
			t.Errorf("WaitExit() = %d, want 7", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("WaitExit() did not return after shell exit")
	}
}

func TestShell_CleanExitCodeZero(t *testing.T) {
	s := startTestShell(t, Options{})
	collect(s)

	if _, err := s.Write([]byte("exit\n")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	codeCh := make(chan int, 1)
	go func() { codeCh <- s.WaitExit() }()

	select {
	case code := <-codeCh:
		if code != 0 {
			t.Errorf("WaitExit() = %d, want 0", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("WaitExit() did not return after shell exit")
	}
}

func TestShell_ReadEOFAfterExit(t *testing.T) {
	s := startTestShell(t, Options{})

	if _, err := s.Write([]byte("exit\n")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	s.WaitExit()

	// Drain whatever the shell printed on the way out; the stream must
	// end in io.EOF, not a raw device error.
	errCh := make(chan error, 1)
	go func() {
		b := make([]byte, 1024)
		for {
			if _, err := s.Read(b); err != nil {
				errCh <- err
				return
			}
		}
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, io.EOF) {
			t.Errorf("Read() after exit = %v, want io.EOF", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Read never returned after shell exit")
	}
}

func TestShell_CloseUnblocksRead(t *testing.T) {
	s := startTestShell(t, Options{})

	readErr := make(chan error, 1)
	go func() {
		b := make([]byte, 64)
		for {
			if _, err := s.Read(b); err != nil {
				readErr <- err
				return
			}
		}
	}()

	// Give the reader a moment to block
	time.Sleep(100 * time.Millisecond)

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	select {
	case <-readErr:
	case <-time.After(5 * time.Second):
		t.Fatal("Read did not unblock after Close")
	}
}

func TestShell_CloseReapsProcess(t *testing.T) {
	s := startTestShell(t, Options{})
	collect(s)

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.WaitExit()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("process was not reaped after Close")
	}
}

func TestShell_CloseIdempotent(t *testing.T) {
	s := startTestShell(t, Options{})
	collect(s)

	if err := s.Close(); err != nil {
		t.Fatalf("first Close() error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error: %v, want nil", err)
	}
}

func TestShell_CloseAfterExit(t *testing.T) {
	s := startTestShell(t, Options{})
	collect(s)

	if _, err := s.Write([]byte("exit\n")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	s.WaitExit()

	if err := s.Close(); err != nil {
		t.Errorf("Close() after exit error: %v, want nil", err)
	}
}

func TestDetectShell_UsesShellEnv(t *testing.T) {
	t.Setenv("SHELL", "/bin/detected-shell")

	if got := detectShell(); got != "/bin/detected-shell" {
		t.Errorf("detectShell() = %q, want %q", got, "/bin/detected-shell")
	}
}

func TestDetectShell_FallsBack(t *testing.T) {
	t.Setenv("SHELL", "")

	got := detectShell()
	if got == "" {
		t.Error("detectShell() returned empty string")
	}
	if !strings.HasPrefix(got, "/") {
		t.Errorf("detectShell() = %q, want an absolute path", got)
	}
}
