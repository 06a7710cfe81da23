package client

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/acmattson3/mqtt-shell/internal/config"
	"github.com/acmattson3/mqtt-shell/internal/ports"
	"github.com/acmattson3/mqtt-shell/internal/security"
)

// CredentialSource resolves broker credentials and the session secret in
// order: environment, keyring cache, interactive prompt. Prompted values
// are cached in the keyring so the next invocation does not ask again.
type CredentialSource struct {
	Prompter ports.Prompter
	Keyring  *security.KeyringStore // nil disables the cache
	Getenv   func(string) string    // nil means os.Getenv
}

func (cs *CredentialSource) getenv(names ...string) string {
	get := cs.Getenv
	if get == nil {
		get = os.Getenv
	}
	for _, name := range names {
		if v := get(name); v != "" {
			return v
		}
	}
	return ""
}

// Username resolves the broker username.
func (cs *CredentialSource) Username() (string, error) {
	if v := cs.getenv(config.EnvBrokerUser, config.EnvBrokerUserAlt); v != "" {
		return v, nil
	}
	name, err := cs.Prompter.Input("Broker username", "MQTT username for the broker connection")
	if err != nil {
		return "", fmt.Errorf("prompt username: %w", err)
	}
	if name == "" {
		return "", errors.New("broker username is required")
	}
	return name, nil
}

// BrokerPassword resolves the broker password for user@host.
func (cs *CredentialSource) BrokerPassword(host, user string) ([]byte, error) {
	if v := cs.getenv(config.EnvBrokerPassword, config.EnvBrokerPasswordAlt); v != "" {
		return []byte(v), nil
	}
	if cs.Keyring != nil {
		if cached, err := cs.Keyring.GetBrokerPassword(host, user); err == nil && len(cached) > 0 {
			return cached, nil
		}
	}

	pw, err := cs.Prompter.Password("Broker password", fmt.Sprintf("MQTT password for %s@%s", user, host))
	if err != nil {
		return nil, fmt.Errorf("prompt broker password: %w", err)
	}
	if len(pw) == 0 {
		return nil, errors.New("broker password is required")
	}
	if cs.Keyring != nil {
		if err := cs.Keyring.StoreBrokerPassword(host, user, pw); err != nil {
			slog.Debug("keyring store failed", slog.String("error", err.Error()))
		}
	}
	return pw, nil
}

// AgentSecret resolves the shared secret for a session on host.
func (cs *CredentialSource) AgentSecret(host, sessionID string) ([]byte, error) {
	if v := cs.getenv(config.EnvAgentSecret, config.EnvAgentSecretAlt); v != "" {
		return []byte(v), nil
	}
	if cs.Keyring != nil {
		if cached, err := cs.Keyring.GetAgentSecret(host, sessionID); err == nil && len(cached) > 0 {
			return cached, nil
		}
	}

	secret, err := cs.Prompter.Password("Session secret", fmt.Sprintf("Shared secret for session %s on %s", sessionID, host))
	if err != nil {
		return nil, fmt.Errorf("prompt session secret: %w", err)
	}
	if len(secret) == 0 {
		return nil, errors.New("session secret is required")
	}
	if cs.Keyring != nil {
		if err := cs.Keyring.StoreAgentSecret(host, sessionID, secret); err != nil {
			slog.Debug("keyring store failed", slog.String("error", err.Error()))
		}
	}
	return secret, nil
}

// ForgetAgentSecret drops a cached secret the agent refused, so the next
// invocation prompts instead of replaying it.
func (cs *CredentialSource) ForgetAgentSecret(host, sessionID string) {
	if cs.Keyring == nil {
		return
	}
	if err := cs.Keyring.DeleteAgentSecret(host, sessionID); err != nil {
		slog.Debug("keyring delete failed", slog.String("error", err.Error()))
	}
}
