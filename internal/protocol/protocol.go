// Package protocol defines the topic layout, status vocabulary, and QoS
// tiers shared by the mqtt-shell agent and client.
package protocol

import (
	"fmt"
	"strings"
)

// Namespace is the topic prefix under which all sessions live.
const Namespace = "mqtt-shell"

// QoS tiers. Terminal traffic favors latency over delivery guarantees;
// control messages must survive flaky links.
const (
	QoSStream  byte = 0 // stdin/stdout chunks
	QoSControl byte = 1 // status and auth messages
)

// Topics is the set of four topics addressing one session. These four
// strings are the entire surface between an agent and its clients.
type Topics struct {
	Stdin  string // keystrokes, client -> agent
	Stdout string // terminal output, agent -> client
	Status string // lifecycle tokens, agent -> client
	Auth   string // secret submission, client -> agent
}

// TopicsFor derives the topic set for a session identity.
func TopicsFor(sessionID string) Topics {
	base := Namespace + "/" + sessionID
	return Topics{
		Stdin:  base + "/stdin",
		Stdout: base + "/stdout",
		Status: base + "/status",
		Auth:   base + "/auth",
	}
}

// ValidateSessionID rejects identities that would break topic addressing.
// A separator or wildcard character inside the identity would make the
// session's topics overlap with, or capture traffic from, other sessions.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id is empty")
	}
	if strings.ContainsAny(id, "/+#") {
		return fmt.Errorf("session id %q contains a reserved topic character", id)
	}
	return nil
}

// AgentClientID returns the broker client identifier for the agent serving
// a session. One identifier per session identity: two agents claiming the
// same session id will steal each other's broker connection, which makes
// the misconfiguration visible instead of silently cross-talking.
func AgentClientID(sessionID string) string {
	return "mqtt-shell-agent-" + sessionID
}

// ClientID returns the broker client identifier for an interactive client.
// The suffix must be unique per invocation so concurrent clients do not
// evict each other from the broker.
func ClientID(suffix string) string {
	return "mqtt-shell-client-" + suffix
}
