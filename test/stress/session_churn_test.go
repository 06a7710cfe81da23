//go:build stress
// +build stress

// Package stress contains stress tests for mqtt-shell.
// Run with: go test -tags=stress -v ./test/stress/...
package stress

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/acmattson3/mqtt-shell/internal/agent"
	"github.com/acmattson3/mqtt-shell/internal/auth"
	"github.com/acmattson3/mqtt-shell/internal/protocol"
	"github.com/acmattson3/mqtt-shell/internal/security"
	"github.com/acmattson3/mqtt-shell/internal/testing/fakes/fakebus"
	"github.com/acmattson3/mqtt-shell/internal/testing/fakes/fakepty"
)

const (
	sessionID = "stress-1"
	secret    = "stress-secret"
)

// rig runs one agent over a fake bus and hands out the shells it spawns.
type rig struct {
	t      *testing.T
	bus    *fakebus.Bus
	ag     *agent.Agent
	topics protocol.Topics
	cancel context.CancelFunc
	done   chan error

	mu     sync.Mutex
	shells []*fakepty.Shell
}

func startRig(t *testing.T) *rig {
	t.Helper()

	r := &rig{
		t:      t,
		bus:    fakebus.New(),
		topics: protocol.TopicsFor(sessionID),
		done:   make(chan error, 1),
	}
	factory := func() (agent.ShellSession, error) {
		sh := fakepty.New()
		r.mu.Lock()
		r.shells = append(r.shells, sh)
		r.mu.Unlock()
		return sh, nil
	}

	ag, err := agent.New(r.bus.Client(), auth.NewVerifier(secret), factory, sessionID)
	if err != nil {
		t.Fatalf("agent.New: %v", err)
	}
	r.ag = ag

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go func() {
		r.done <- ag.Run(ctx, time.Second)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-r.done:
		case <-time.After(5 * time.Second):
			t.Error("agent did not shut down")
		}
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(r.bus.Messages(r.topics.Status)) >= 2 {
			return r
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("agent never announced itself")
	return nil
}

// shell returns the i-th spawned shell, waiting for the factory to run.
func (r *rig) shell(i int) *fakepty.Shell {
	r.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		n := len(r.shells)
		r.mu.Unlock()
		if n > i {
			r.mu.Lock()
			defer r.mu.Unlock()
			return r.shells[i]
		}
		time.Sleep(2 * time.Millisecond)
	}
	r.t.Fatal("shell was never spawned")
	return nil
}

func waitToken(t *testing.T, ch <-chan protocol.Status, want protocol.Status) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case tok := <-ch:
			if tok == want {
				return
			}
			// Anything else (agent-online, auth-required, shell-exited
			// from the previous cycle) passes by.
		case <-deadline:
			t.Fatalf("token %q never arrived", want)
		}
	}
}

// TestSessionChurn drives many full sessions through one agent back to
// back: auth, exchange, exit, re-arm. The agent must come out of it with
// no stuck state and no goroutine pile-up.
func TestSessionChurn(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}

	r := startRig(t)

	peer := r.bus.Client()
	if err := peer.Connect(time.Second); err != nil {
		t.Fatalf("peer connect: %v", err)
	}
	statusCh := make(chan protocol.Status, 4096)
	err := peer.Subscribe(r.topics.Status, protocol.QoSControl, func(_ string, payload []byte) {
		tok, _ := protocol.ParseStatus(payload)
		statusCh <- tok
	})
	if err != nil {
		t.Fatalf("peer subscribe: %v", err)
	}

	// Settle and baseline after the agent is up.
	runtime.GC()
	time.Sleep(50 * time.Millisecond)
	baseGoroutines := runtime.NumGoroutine()
	var memBefore runtime.MemStats
	runtime.ReadMemStats(&memBefore)

	cycles := 200
	t.Logf("Running %d attach/exit cycles...", cycles)
	startTime := time.Now()

	for i := 0; i < cycles; i++ {
		if err := peer.Publish(r.topics.Auth, protocol.QoSControl, []byte(secret)); err != nil {
			t.Fatalf("cycle %d: publish auth: %v", i, err)
		}
		waitToken(t, statusCh, protocol.StatusAuthOK)

		sh := r.shell(i)
		input := fmt.Sprintf("echo cycle-%d\n", i)
		if err := peer.Publish(r.topics.Stdin, protocol.QoSStream, []byte(input)); err != nil {
			t.Fatalf("cycle %d: publish stdin: %v", i, err)
		}

		deadline := time.Now().Add(2 * time.Second)
		for sh.Written() != input {
			if time.Now().After(deadline) {
				t.Fatalf("cycle %d: stdin never reached the shell", i)
			}
			time.Sleep(time.Millisecond)
		}

		sh.QueueOutput(fmt.Sprintf("cycle-%d\r\n", i))
		sh.SignalExit(0)

		waitToken(t, statusCh, protocol.StatusShellExited)
		waitToken(t, statusCh, protocol.StatusAuthRequired)
	}

	elapsed := time.Since(startTime)
	t.Logf("Completed %d cycles in %v (%.1f sessions/second)",
		cycles, elapsed, float64(cycles)/elapsed.Seconds())

	if r.ag.State() != agent.StateAwaitingAuth {
		t.Errorf("agent state = %v after churn, want %v", r.ag.State(), agent.StateAwaitingAuth)
	}

	// Every cycle's pump and waiter goroutine must have ended.
	runtime.GC()
	time.Sleep(100 * time.Millisecond)
	finalGoroutines := runtime.NumGoroutine()
	t.Logf("Goroutines: before=%d, after=%d", baseGoroutines, finalGoroutines)
	if finalGoroutines > baseGoroutines+10 {
		t.Errorf("goroutine growth: %d -> %d", baseGoroutines, finalGoroutines)
	}

	var memAfter runtime.MemStats
	runtime.ReadMemStats(&memAfter)
	growthMB := float64(memAfter.Alloc) / 1024 / 1024
	t.Logf("Memory: before=%dMB, after=%dMB",
		memBefore.Alloc/1024/1024, memAfter.Alloc/1024/1024)
	if growthMB > 50.0 {
		t.Errorf("possible leak: %.2f MB still live after churn", growthMB)
	}
}

// TestStreamThroughput measures raw PTY-to-bus throughput for one session.
func TestStreamThroughput(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}

	r := startRig(t)

	peer := r.bus.Client()
	if err := peer.Connect(time.Second); err != nil {
		t.Fatalf("peer connect: %v", err)
	}

	var received sync.WaitGroup
	var total int64
	var totalMu sync.Mutex
	err := peer.Subscribe(r.topics.Stdout, protocol.QoSStream, func(_ string, payload []byte) {
		totalMu.Lock()
		total += int64(len(payload))
		totalMu.Unlock()
		received.Done()
	})
	if err != nil {
		t.Fatalf("peer subscribe: %v", err)
	}

	if err := peer.Publish(r.topics.Auth, protocol.QoSControl, []byte(secret)); err != nil {
		t.Fatalf("publish auth: %v", err)
	}
	sh := r.shell(0)

	chunks := 2000
	chunk := strings.Repeat("x", 4096)
	received.Add(chunks)

	t.Logf("Pumping %d chunks of %d bytes...", chunks, len(chunk))
	startTime := time.Now()
	go func() {
		for i := 0; i < chunks; i++ {
			sh.QueueOutput(chunk)
		}
	}()

	done := make(chan struct{})
	go func() {
		received.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("output never fully arrived")
	}

	elapsed := time.Since(startTime)
	totalMu.Lock()
	mb := float64(total) / 1024 / 1024
	totalMu.Unlock()
	t.Logf("Moved %.1f MB in %v (%.1f MB/s)", mb, elapsed, mb/elapsed.Seconds())

	sh.SignalExit(0)
}

// BenchmarkVerify measures the auth hot path.
func BenchmarkVerify(b *testing.B) {
	v := auth.NewVerifier("a moderately long shared secret")
	candidate := []byte("a moderately long shared secret")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if !v.Verify(candidate) {
			b.Fatal("verify failed")
		}
	}
}

// BenchmarkVerifyMismatch measures the rejection path.
func BenchmarkVerifyMismatch(b *testing.B) {
	v := auth.NewVerifier("a moderately long shared secret")
	candidate := []byte("not the secret")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if v.Verify(candidate) {
			b.Fatal("verify accepted a mismatch")
		}
	}
}

// BenchmarkEnvFilter measures environment scrubbing at spawn time.
func BenchmarkEnvFilter(b *testing.B) {
	filter, err := security.NewEnvFilter(nil)
	if err != nil {
		b.Fatal(err)
	}
	environ := make([]string, 0, 64)
	for i := 0; i < 60; i++ {
		environ = append(environ, fmt.Sprintf("VAR_%d=value-%d", i, i))
	}
	environ = append(environ,
		"MQTT_PASS=hunter2",
		"AWS_SECRET=abc",
		"API_TOKEN=xyz",
		"HOME=/home/user",
	)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if got := filter.Apply(environ); len(got) == 0 {
			b.Fatal("filter dropped everything")
		}
	}
}
