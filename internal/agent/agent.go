// Package agent implements the host side of a session: it guards the shell
// behind the shared secret, pumps terminal output to the stdout topic, and
// feeds client keystrokes from the stdin topic into the PTY.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/acmattson3/mqtt-shell/internal/auth"
	"github.com/acmattson3/mqtt-shell/internal/ports"
	"github.com/acmattson3/mqtt-shell/internal/protocol"
)

// ShellSession is the slice of the PTY layer the agent drives. It is
// satisfied by *pty.Shell.
type ShellSession interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	WaitExit() int
	Close() error
}

// ShellFactory spawns a shell session for a freshly authenticated client.
type ShellFactory func() (ShellSession, error)

// State is the agent's observable lifecycle state.
type State int

const (
	// StateIdle means Run has not yet brought the agent online.
	StateIdle State = iota
	// StateAwaitingAuth means no client holds the session; auth attempts
	// are verified.
	StateAwaitingAuth
	// StateAuthenticated means a secret was accepted and the shell is
	// being spawned.
	StateAuthenticated
	// StateShellRunning means a client is attached to a live shell;
	// further auth attempts are rejected busy.
	StateShellRunning
	// StateClosed means the run loop has shut down.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingAuth:
		return "awaiting-auth"
	case StateAuthenticated:
		return "authenticated"
	case StateShellRunning:
		return "shell-running"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type eventKind int

const (
	evAuth eventKind = iota
	evStdin
	evShellExit
)

type event struct {
	kind    eventKind
	payload []byte
	gen     uint64
	code    int
}

// Agent serves one interactive shell session at a time over the broker.
// Transport callbacks only enqueue events; a single run loop owns the
// state and the shell handle.
type Agent struct {
	transport ports.Transport
	verifier  *auth.Verifier
	spawn     ShellFactory
	sessionID string
	topics    protocol.Topics

	events chan event
	lostCh chan error
	done   chan struct{}

	mu    sync.Mutex
	state State
	shell ShellSession
	gen   uint64
}

// New creates an agent for the given session. Run may be called once.
func New(transport ports.Transport, verifier *auth.Verifier, spawn ShellFactory, sessionID string) (*Agent, error) {
	if err := protocol.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	return &Agent{
		transport: transport,
		verifier:  verifier,
		spawn:     spawn,
		sessionID: sessionID,
		topics:    protocol.TopicsFor(sessionID),
		events:    make(chan event, 64),
		lostCh:    make(chan error, 1),
		done:      make(chan struct{}),
	}, nil
}

// State returns the agent's current lifecycle state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Run connects to the broker and serves clients until ctx is canceled or
// the broker connection is lost. A canceled context is a clean shutdown
// and returns nil; a lost connection returns an error so the caller can
// exit nonzero and let the service manager restart it.
func (a *Agent) Run(ctx context.Context, connectTimeout time.Duration) error {
	defer close(a.done)

	a.transport.SetWill(a.topics.Status, []byte(protocol.StatusAgentOffline), protocol.QoSControl)
	a.transport.SetLostHandler(func(err error) {
		select {
		case a.lostCh <- err:
		default:
		}
	})

	if err := a.transport.Connect(connectTimeout); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer a.transport.Disconnect()

	// Subscribe before announcing, so an auth sent the instant a client
	// sees agent-online cannot be missed.
	if err := a.transport.Subscribe(a.topics.Auth, protocol.QoSControl, a.onAuth); err != nil {
		return fmt.Errorf("subscribe auth: %w", err)
	}
	if err := a.transport.Subscribe(a.topics.Stdin, protocol.QoSStream, a.onStdin); err != nil {
		return fmt.Errorf("subscribe stdin: %w", err)
	}

	a.setState(StateAwaitingAuth)
	a.publishStatus(protocol.StatusAgentOnline)
	a.publishStatus(protocol.StatusAuthRequired)

	slog.Info("agent online",
		slog.String("session_id", a.sessionID),
		slog.String("stdin", a.topics.Stdin),
		slog.String("stdout", a.topics.Stdout),
	)

	for {
		select {
		case <-ctx.Done():
			a.closeShell()
			a.setState(StateClosed)
			// Clean shutdown: the Last Will is not sent, so say goodbye
			// explicitly for any attached client.
			a.publishStatus(protocol.StatusAgentOffline)
			slog.Info("agent shutting down")
			return nil

		case err := <-a.lostCh:
			a.closeShell()
			a.setState(StateClosed)
			slog.Error("broker connection lost", slog.String("error", err.Error()))
			return fmt.Errorf("connection lost: %w", err)

		case ev := <-a.events:
			switch ev.kind {
			case evAuth:
				a.handleAuth(ev.payload)
			case evStdin:
				a.handleStdin(ev.payload)
			case evShellExit:
				a.handleShellExit(ev.gen, ev.code)
			}
		}
	}
}

// onAuth enqueues an auth attempt from the transport goroutine.
func (a *Agent) onAuth(_ string, payload []byte) {
	a.enqueue(event{kind: evAuth, payload: append([]byte(nil), payload...)})
}

// onStdin enqueues a keystroke chunk from the transport goroutine.
func (a *Agent) onStdin(_ string, payload []byte) {
	a.enqueue(event{kind: evStdin, payload: append([]byte(nil), payload...)})
}

// enqueue hands an event to the run loop. The blocking send applies
// backpressure to the transport's delivery goroutine; done keeps stragglers
// from hanging after the loop has exited.
func (a *Agent) enqueue(ev event) {
	select {
	case a.events <- ev:
	case <-a.done:
	}
}

func (a *Agent) handleAuth(candidate []byte) {
	switch a.State() {
	case StateShellRunning:
		// A second client must not disturb the live session.
		slog.Warn("auth attempt while session active")
		a.publishStatus(protocol.StatusAuthBusy)
		return
	case StateClosed:
		return
	}

	if !a.verifier.Verify(candidate) {
		slog.Warn("auth failed")
		a.publishStatus(protocol.StatusAuthFail)
		return
	}

	a.setState(StateAuthenticated)
	a.publishStatus(protocol.StatusAuthOK)
	a.startShell()
}

// startShell spawns the shell and its two goroutines: the pump copying
// output to the broker and the waiter reporting exit. A spawn failure ends
// the client's session with shell-exited and re-arms for the next attempt.
func (a *Agent) startShell() {
	sh, err := a.spawn()
	if err != nil {
		slog.Error("shell spawn failed", slog.String("error", err.Error()))
		a.publishStatus(protocol.StatusShellExited)
		a.rearm()
		return
	}

	a.mu.Lock()
	a.gen++
	gen := a.gen
	a.shell = sh
	a.state = StateShellRunning
	a.mu.Unlock()

	slog.Info("shell session started")

	go a.pump(sh)
	go func() {
		code := sh.WaitExit()
		a.enqueue(event{kind: evShellExit, gen: gen, code: code})
	}()
}

// pump copies shell output to the stdout topic until the shell ends.
// Chunks go out as read, no batching.
func (a *Agent) pump(sh ShellSession) {
	buf := make([]byte, 4096)
	for {
		n, err := sh.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			if perr := a.transport.Publish(a.topics.Stdout, protocol.QoSStream, chunk); perr != nil {
				slog.Warn("stdout publish failed", slog.String("error", perr.Error()))
			}
		}
		if err != nil {
			return
		}
	}
}

func (a *Agent) handleStdin(data []byte) {
	if a.State() != StateShellRunning {
		// Keystrokes with no shell attached are dropped.
		slog.Debug("stdin discarded", slog.Int("bytes", len(data)))
		return
	}

	a.mu.Lock()
	sh := a.shell
	a.mu.Unlock()
	if sh == nil {
		return
	}

	if _, err := sh.Write(data); err != nil {
		slog.Warn("stdin write failed", slog.String("error", err.Error()))
	}
}

// handleShellExit finishes the session whose shell exited. Exit events
// carry the generation of the shell they belong to; anything stale (a
// session already torn down and re-armed) is ignored, so duplicate or late
// notifications cannot double-release.
func (a *Agent) handleShellExit(gen uint64, code int) {
	a.mu.Lock()
	stale := gen != a.gen || a.state != StateShellRunning
	a.mu.Unlock()
	if stale {
		return
	}

	slog.Info("shell exited", slog.Int("exit_code", code))

	a.closeShell()
	a.publishStatus(protocol.StatusShellExited)
	a.rearm()
}

// rearm returns the agent to AwaitingAuth and invites the next client.
func (a *Agent) rearm() {
	a.setState(StateAwaitingAuth)
	a.publishStatus(protocol.StatusAuthRequired)
	slog.Info("awaiting next client")
}

// closeShell releases the current shell, if any. Safe to call when no
// shell is attached.
func (a *Agent) closeShell() {
	a.mu.Lock()
	sh := a.shell
	a.shell = nil
	a.mu.Unlock()

	if sh != nil {
		if err := sh.Close(); err != nil {
			slog.Warn("shell close failed", slog.String("error", err.Error()))
		}
	}
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

func (a *Agent) publishStatus(s protocol.Status) {
	if err := a.transport.Publish(a.topics.Status, protocol.QoSControl, []byte(s)); err != nil {
		slog.Warn("status publish failed",
			slog.String("status", string(s)),
			slog.String("error", err.Error()),
		)
	}
}
