package protocol

// Status is a lifecycle token published on the status topic. The payload is
// the token itself, nothing more.
type Status string

const (
	// StatusAgentOnline announces the agent's presence after it connects.
	StatusAgentOnline Status = "agent-online"

	// StatusAuthRequired is published whenever the agent is ready to accept
	// a secret: once at startup and again after each session ends.
	StatusAuthRequired Status = "auth-required"

	// StatusAuthOK acknowledges a matching secret; the shell follows.
	StatusAuthOK Status = "auth-ok"

	// StatusAuthFail rejects a non-matching secret. The client may retry.
	StatusAuthFail Status = "auth-fail"

	// StatusAuthBusy rejects a secret because another client already holds
	// the session. The active session is not disturbed.
	StatusAuthBusy Status = "auth-busy"

	// StatusShellExited reports the end of a shell session, whatever the
	// shell's own exit code was.
	StatusShellExited Status = "shell-exited"

	// StatusAgentOffline is the agent's last-will message: the broker
	// publishes it when the agent's connection dies without a clean
	// disconnect.
	StatusAgentOffline Status = "agent-offline"
)

// ParseStatus interprets a status payload. Unknown tokens are returned with
// ok=false so a peer can skip vocabulary it does not understand instead of
// failing the session.
func ParseStatus(payload []byte) (Status, bool) {
	s := Status(payload)
	switch s {
	case StatusAgentOnline, StatusAuthRequired, StatusAuthOK, StatusAuthFail,
		StatusAuthBusy, StatusShellExited, StatusAgentOffline:
		return s, true
	}
	return s, false
}
