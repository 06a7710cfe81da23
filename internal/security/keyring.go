// Package security provides credential storage and environment scrubbing
// for mqtt-shell.
package security

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name used for keyring entries.
const KeyringService = "mqtt-shell"

const (
	errKeyringNotAvailable = "keyring not available"
	keyBrokerFmt           = "broker:%s@%s"
	keyAgentFmt            = "agent:%s@%s"
)

// KeyringStore provides OS keyring integration for credential storage.
// It uses the system keyring (macOS Keychain, Linux Secret Service,
// Windows Credential Manager).
type KeyringStore struct {
	enabled bool
	mu      sync.RWMutex
}

// NewKeyringStore creates a new keyring store.
// If the system keyring is not available, the store will be disabled.
func NewKeyringStore() *KeyringStore {
	ks := &KeyringStore{
		enabled: true,
	}

	// Probe availability with a dummy entry
	testKey := "__mqtt_shell_test__"
	err := keyring.Set(KeyringService, testKey, "test")
	if err != nil {
		slog.Debug("keyring not available, credentials will not be cached",
			slog.String("error", err.Error()),
		)
		ks.enabled = false
		return ks
	}

	_ = keyring.Delete(KeyringService, testKey)

	slog.Debug("keyring storage enabled")
	return ks
}

// IsEnabled returns true if the keyring is available and enabled.
func (ks *KeyringStore) IsEnabled() bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.enabled
}

// SetEnabled allows enabling/disabling keyring usage.
func (ks *KeyringStore) SetEnabled(enabled bool) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.enabled = enabled
}

// StoreBrokerPassword stores the MQTT broker password for user@host.
func (ks *KeyringStore) StoreBrokerPassword(host, user string, password []byte) error {
	if !ks.IsEnabled() {
		return fmt.Errorf(errKeyringNotAvailable)
	}

	// Base64 encode to safely store binary data
	encoded := base64.StdEncoding.EncodeToString(password)
	key := fmt.Sprintf(keyBrokerFmt, user, host)

	if err := keyring.Set(KeyringService, key, encoded); err != nil {
		return fmt.Errorf("failed to store broker password: %w", err)
	}

	slog.Debug("stored broker password in keyring",
		slog.String("user", user),
		slog.String("host", host),
	)
	return nil
}

// GetBrokerPassword retrieves the MQTT broker password for user@host.
// A missing entry returns (nil, nil).
func (ks *KeyringStore) GetBrokerPassword(host, user string) ([]byte, error) {
	if !ks.IsEnabled() {
		return nil, fmt.Errorf(errKeyringNotAvailable)
	}

	key := fmt.Sprintf(keyBrokerFmt, user, host)
	encoded, err := keyring.Get(KeyringService, key)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get broker password: %w", err)
	}

	password, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode broker password: %w", err)
	}

	return password, nil
}

// DeleteBrokerPassword removes the MQTT broker password for user@host.
func (ks *KeyringStore) DeleteBrokerPassword(host, user string) error {
	if !ks.IsEnabled() {
		return fmt.Errorf(errKeyringNotAvailable)
	}

	key := fmt.Sprintf(keyBrokerFmt, user, host)
	if err := keyring.Delete(KeyringService, key); err != nil {
		if err == keyring.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete broker password: %w", err)
	}

	return nil
}

// StoreAgentSecret stores the agent secret for a session on a broker host.
func (ks *KeyringStore) StoreAgentSecret(host, sessionID string, secret []byte) error {
	if !ks.IsEnabled() {
		return fmt.Errorf(errKeyringNotAvailable)
	}

	encoded := base64.StdEncoding.EncodeToString(secret)
	key := fmt.Sprintf(keyAgentFmt, sessionID, host)

	if err := keyring.Set(KeyringService, key, encoded); err != nil {
		return fmt.Errorf("failed to store agent secret: %w", err)
	}

	slog.Debug("stored agent secret in keyring",
		slog.String("session_id", sessionID),
		slog.String("host", host),
	)
	return nil
}

// GetAgentSecret retrieves the agent secret for a session on a broker host.
// A missing entry returns (nil, nil).
func (ks *KeyringStore) GetAgentSecret(host, sessionID string) ([]byte, error) {
	if !ks.IsEnabled() {
		return nil, fmt.Errorf(errKeyringNotAvailable)
	}

	key := fmt.Sprintf(keyAgentFmt, sessionID, host)
	encoded, err := keyring.Get(KeyringService, key)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get agent secret: %w", err)
	}

	secret, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode agent secret: %w", err)
	}

	return secret, nil
}

// DeleteAgentSecret removes the agent secret for a session on a broker host.
// The client calls this when the agent rejects the cached secret.
func (ks *KeyringStore) DeleteAgentSecret(host, sessionID string) error {
	if !ks.IsEnabled() {
		return fmt.Errorf(errKeyringNotAvailable)
	}

	key := fmt.Sprintf(keyAgentFmt, sessionID, host)
	if err := keyring.Delete(KeyringService, key); err != nil {
		if err == keyring.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete agent secret: %w", err)
	}

	return nil
}
