// Package client implements the attaching side of a session: it
// authenticates against an agent, puts the local terminal in raw mode, and
// bridges local keystrokes and remote output over the broker.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/acmattson3/mqtt-shell/internal/ports"
	"github.com/acmattson3/mqtt-shell/internal/protocol"
)

// Process exit codes. The shell's own exit code does not propagate over
// the wire; 0 only means the remote session ended cleanly.
const (
	ExitOK           = 0 // remote shell exited, or local input ended
	ExitTransport    = 1 // broker unreachable, connection lost, agent offline
	ExitUsage        = 2 // bad command line
	ExitAuthRejected = 3 // auth-fail or auth-busy
	ExitAuthTimeout  = 4 // no verdict within the auth timeout
)

const (
	// DefaultConnectTimeout bounds the broker connect handshake.
	DefaultConnectTimeout = 5 * time.Second

	// DefaultAuthTimeout bounds the wait for the agent's auth verdict.
	DefaultAuthTimeout = 5 * time.Second
)

// maxStdinChunk caps a single stdin publish. Keystrokes arrive one or a
// few bytes at a time; pastes get split.
const maxStdinChunk = 1024

// Options wires a Client. All fields are required unless noted.
type Options struct {
	Transport ports.Transport
	Terminal  ports.Terminal
	Clock     ports.Clock
	SessionID string

	Stdin  io.Reader // local keyboard
	Stdout io.Writer // local terminal
	Stderr io.Writer // status lines and diagnostics

	ConnectTimeout time.Duration // defaults to DefaultConnectTimeout
	AuthTimeout    time.Duration // defaults to DefaultAuthTimeout
}

// Client attaches to one agent session. Transport callbacks only feed
// channels; a single select loop owns the terminal and the ordering.
type Client struct {
	transport ports.Transport
	terminal  ports.Terminal
	clock     ports.Clock
	topics    protocol.Topics

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	connectTimeout time.Duration
	authTimeout    time.Duration

	statusCh chan protocol.Status
	dataCh   chan []byte
	lostCh   chan error
	done     chan struct{}
}

// New creates a client for the given session. Run may be called once.
func New(opts Options) (*Client, error) {
	if err := protocol.ValidateSessionID(opts.SessionID); err != nil {
		return nil, err
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = DefaultAuthTimeout
	}

	return &Client{
		transport:      opts.Transport,
		terminal:       opts.Terminal,
		clock:          opts.Clock,
		topics:         protocol.TopicsFor(opts.SessionID),
		stdin:          opts.Stdin,
		stdout:         opts.Stdout,
		stderr:         opts.Stderr,
		connectTimeout: opts.ConnectTimeout,
		authTimeout:    opts.AuthTimeout,
		statusCh:       make(chan protocol.Status, 16),
		dataCh:         make(chan []byte, 256),
		lostCh:         make(chan error, 1),
		done:           make(chan struct{}),
	}, nil
}

// Run connects, authenticates with secret, and streams the session until
// it ends. The returned code is the process exit code; the error carries
// the diagnostic for any nonzero code.
func (c *Client) Run(ctx context.Context, secret []byte) (int, error) {
	defer close(c.done)

	c.transport.SetLostHandler(func(err error) {
		select {
		case c.lostCh <- err:
		default:
		}
	})

	if err := c.transport.Connect(c.connectTimeout); err != nil {
		return ExitTransport, fmt.Errorf("connect: %w", err)
	}
	defer c.transport.Disconnect()

	// Subscribe before sending the secret so the verdict cannot slip past.
	if err := c.transport.Subscribe(c.topics.Status, protocol.QoSControl, c.onStatus); err != nil {
		return ExitTransport, fmt.Errorf("subscribe status: %w", err)
	}
	if err := c.transport.Subscribe(c.topics.Stdout, protocol.QoSStream, c.onStdout); err != nil {
		return ExitTransport, fmt.Errorf("subscribe stdout: %w", err)
	}

	if err := c.transport.Publish(c.topics.Auth, protocol.QoSControl, secret); err != nil {
		return ExitTransport, fmt.Errorf("send auth: %w", err)
	}

	if code, err := c.awaitVerdict(ctx); code != ExitOK {
		return code, err
	}

	return c.stream(ctx)
}

// awaitVerdict waits for the agent to accept or reject the secret.
// Lifecycle tokens that are not a verdict (agent-online, auth-required, a
// late shell-exited from the previous session) pass by.
func (c *Client) awaitVerdict(ctx context.Context) (int, error) {
	timeout := c.clock.After(c.authTimeout)
	for {
		select {
		case <-ctx.Done():
			return ExitTransport, ctx.Err()

		case err := <-c.lostCh:
			return ExitTransport, fmt.Errorf("connection lost: %w", err)

		case <-timeout:
			return ExitAuthTimeout, fmt.Errorf("no auth response within %s; is the agent running?", c.authTimeout)

		case st := <-c.statusCh:
			switch st {
			case protocol.StatusAuthOK:
				return ExitOK, nil
			case protocol.StatusAuthFail:
				return ExitAuthRejected, errors.New("authentication rejected")
			case protocol.StatusAuthBusy:
				return ExitAuthRejected, errors.New("agent is serving another client")
			case protocol.StatusAgentOffline:
				return ExitTransport, errors.New("agent is offline")
			}
		}
	}
}

// stream bridges the terminal and the broker until the session ends. Raw
// mode is restored on every way out.
func (c *Client) stream(ctx context.Context) (int, error) {
	// Restore is registered before raw mode goes on: a half-applied raw
	// mode still gets undone.
	defer c.terminal.Restore()
	if c.terminal.IsTerminal() {
		if err := c.terminal.MakeRaw(); err != nil {
			return ExitTransport, fmt.Errorf("raw mode: %w", err)
		}
	}

	stdinCh := make(chan []byte, 16)
	stdinErr := make(chan error, 1)
	go func() {
		err := c.pumpStdin(stdinCh)
		close(stdinCh)
		stdinErr <- err
	}()

	for {
		select {
		case <-ctx.Done():
			return ExitTransport, ctx.Err()

		case err := <-c.lostCh:
			return ExitTransport, fmt.Errorf("connection lost: %w", err)

		case data := <-c.dataCh:
			if _, err := c.stdout.Write(data); err != nil {
				return ExitTransport, fmt.Errorf("terminal write: %w", err)
			}

		case st := <-c.statusCh:
			c.reportStatus(st)
			switch st {
			case protocol.StatusShellExited:
				c.drainOutput()
				return ExitOK, nil
			case protocol.StatusAgentOffline:
				c.drainOutput()
				return ExitTransport, errors.New("agent went offline")
			}

		case chunk, ok := <-stdinCh:
			if !ok {
				if err := <-stdinErr; err != nil && !errors.Is(err, io.EOF) {
					return ExitTransport, fmt.Errorf("read stdin: %w", err)
				}
				// Local input ended; leave the session to the next client.
				return ExitOK, nil
			}
			if err := c.transport.Publish(c.topics.Stdin, protocol.QoSStream, chunk); err != nil {
				return ExitTransport, fmt.Errorf("send stdin: %w", err)
			}
		}
	}
}

// pumpStdin copies local input to the session channel in wire-sized
// chunks. Returns the read error (io.EOF when input simply ended).
func (c *Client) pumpStdin(ch chan<- []byte) error {
	buf := make([]byte, maxStdinChunk)
	for {
		n, err := c.stdin.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case ch <- chunk:
			case <-c.done:
				return nil
			}
		}
		if err != nil {
			return err
		}
	}
}

// drainOutput flushes chunks already queued behind a final status, so the
// shell's last output is not cut off.
func (c *Client) drainOutput() {
	for {
		select {
		case data := <-c.dataCh:
			if _, err := c.stdout.Write(data); err != nil {
				return
			}
		default:
			return
		}
	}
}

// reportStatus echoes a lifecycle token to stderr. The terminal is in raw
// mode, hence the explicit carriage return.
func (c *Client) reportStatus(st protocol.Status) {
	fmt.Fprintf(c.stderr, "[status] %s\r\n", st)
}

func (c *Client) onStatus(_ string, payload []byte) {
	st, known := protocol.ParseStatus(payload)
	if !known {
		slog.Debug("unknown status token", slog.String("token", string(payload)))
	}
	select {
	case c.statusCh <- st:
	case <-c.done:
	}
}

func (c *Client) onStdout(_ string, payload []byte) {
	data := append([]byte(nil), payload...)
	select {
	case c.dataCh <- data:
	case <-c.done:
	}
}
