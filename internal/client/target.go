package client

import (
	"fmt"
	"strings"

	"github.com/acmattson3/mqtt-shell/internal/protocol"
)

// Target names the remote session to attach to, ssh style:
// [mqtt-user@]session-id@broker-host.
type Target struct {
	User      string // broker username, empty when not given in the target
	SessionID string
	Host      string
}

// ParseTarget splits a command-line target into its parts.
func ParseTarget(s string) (Target, error) {
	parts := strings.Split(s, "@")

	var t Target
	switch len(parts) {
	case 2:
		t = Target{SessionID: parts[0], Host: parts[1]}
	case 3:
		t = Target{User: parts[0], SessionID: parts[1], Host: parts[2]}
	default:
		return Target{}, fmt.Errorf("target %q: want [mqtt-user@]session-id@host", s)
	}

	if t.Host == "" {
		return Target{}, fmt.Errorf("target %q: missing broker host", s)
	}
	if len(parts) == 3 && t.User == "" {
		return Target{}, fmt.Errorf("target %q: empty broker username", s)
	}
	if err := protocol.ValidateSessionID(t.SessionID); err != nil {
		return Target{}, fmt.Errorf("target %q: %w", s, err)
	}
	return t, nil
}
