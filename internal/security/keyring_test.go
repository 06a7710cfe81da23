package security

import (
	"bytes"
	"testing"
)

func TestKeyringStore_New(t *testing.T) {
	// This may run on systems without a keyring (headless servers, CI)
	ks := NewKeyringStore()

	if ks == nil {
		t.Fatal("NewKeyringStore returned nil")
	}

	t.Logf("Keyring enabled: %v", ks.IsEnabled())
}

func TestKeyringStore_SetEnabled(t *testing.T) {
	ks := NewKeyringStore()
	originalState := ks.IsEnabled()

	ks.SetEnabled(false)
	if ks.IsEnabled() {
		t.Error("SetEnabled(false) did not disable keyring")
	}

	ks.SetEnabled(true)

	ks.SetEnabled(originalState)
}

func TestKeyringStore_DisabledErrors(t *testing.T) {
	ks := NewKeyringStore()
	ks.SetEnabled(false)

	if err := ks.StoreBrokerPassword("host", "user", []byte("pw")); err == nil {
		t.Error("StoreBrokerPassword with disabled keyring expected error, got nil")
	}
	if _, err := ks.GetBrokerPassword("host", "user"); err == nil {
		t.Error("GetBrokerPassword with disabled keyring expected error, got nil")
	}
	if err := ks.DeleteBrokerPassword("host", "user"); err == nil {
		t.Error("DeleteBrokerPassword with disabled keyring expected error, got nil")
	}
	if err := ks.StoreAgentSecret("host", "lab-1", []byte("s")); err == nil {
		t.Error("StoreAgentSecret with disabled keyring expected error, got nil")
	}
	if _, err := ks.GetAgentSecret("host", "lab-1"); err == nil {
		t.Error("GetAgentSecret with disabled keyring expected error, got nil")
	}
	if err := ks.DeleteAgentSecret("host", "lab-1"); err == nil {
		t.Error("DeleteAgentSecret with disabled keyring expected error, got nil")
	}
}

func TestKeyringStore_BrokerPassword(t *testing.T) {
	ks := NewKeyringStore()
	if !ks.IsEnabled() {
		t.Skip("Keyring not available on this system")
	}

	host := "test-broker.mqtt-shell.invalid"
	user := "test-user"
	password := []byte("broker-pass-123")
	defer ks.DeleteBrokerPassword(host, user)

	if err := ks.StoreBrokerPassword(host, user, password); err != nil {
		t.Fatalf("StoreBrokerPassword failed: %v", err)
	}

	retrieved, err := ks.GetBrokerPassword(host, user)
	if err != nil {
		t.Fatalf("GetBrokerPassword failed: %v", err)
	}
	if !bytes.Equal(retrieved, password) {
		t.Errorf("GetBrokerPassword = %q, want %q", retrieved, password)
	}

	if err := ks.DeleteBrokerPassword(host, user); err != nil {
		t.Fatalf("DeleteBrokerPassword failed: %v", err)
	}

	retrieved, err = ks.GetBrokerPassword(host, user)
	if err != nil {
		t.Fatalf("GetBrokerPassword after delete failed: %v", err)
	}
	if retrieved != nil {
		t.Errorf("GetBrokerPassword after delete = %q, want nil", retrieved)
	}
}

func TestKeyringStore_AgentSecret(t *testing.T) {
	ks := NewKeyringStore()
	if !ks.IsEnabled() {
		t.Skip("Keyring not available on this system")
	}

	host := "test-broker.mqtt-shell.invalid"
	sessionID := "test-session"
	secret := []byte("agent-secret-456")
	defer ks.DeleteAgentSecret(host, sessionID)

	if err := ks.StoreAgentSecret(host, sessionID, secret); err != nil {
		t.Fatalf("StoreAgentSecret failed: %v", err)
	}

	retrieved, err := ks.GetAgentSecret(host, sessionID)
	if err != nil {
		t.Fatalf("GetAgentSecret failed: %v", err)
	}
	if !bytes.Equal(retrieved, secret) {
		t.Errorf("GetAgentSecret = %q, want %q", retrieved, secret)
	}

	if err := ks.DeleteAgentSecret(host, sessionID); err != nil {
		t.Fatalf("DeleteAgentSecret failed: %v", err)
	}
}

func TestKeyringStore_GetMissingReturnsNil(t *testing.T) {
	ks := NewKeyringStore()
	if !ks.IsEnabled() {
		t.Skip("Keyring not available on this system")
	}

	got, err := ks.GetAgentSecret("never-stored.invalid", "no-such-session")
	if err != nil {
		t.Fatalf("GetAgentSecret(missing) error: %v", err)
	}
	if got != nil {
		t.Errorf("GetAgentSecret(missing) = %q, want nil", got)
	}
}

func TestKeyringStore_DeleteMissingIsNoError(t *testing.T) {
	ks := NewKeyringStore()
	if !ks.IsEnabled() {
		t.Skip("Keyring not available on this system")
	}

	if err := ks.DeleteAgentSecret("never-stored.invalid", "no-such-session"); err != nil {
		t.Errorf("DeleteAgentSecret(missing) error: %v, want nil", err)
	}
}
