package crypto

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureMasterKeyGeneratesAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.pem")

	created, err := EnsureMasterKey(path)
	if err != nil {
		t.Fatalf("EnsureMasterKey (generate) failed: %v", err)
	}
	if len(created) != MasterKeySize {
		t.Fatalf("unexpected key size %d", len(created))
	}

	reloaded, err := EnsureMasterKey(path)
	if err != nil {
		t.Fatalf("EnsureMasterKey (reload) failed: %v", err)
	}
	if !bytes.Equal(created, reloaded) {
		t.Fatalf("reloaded key differs from generated key")
	}
}

func TestLoadMasterKeyRejectsWrongPEMType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.pem")
	raw := []byte("-----BEGIN WRONG KEY-----\nAAAA\n-----END WRONG KEY-----\n")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if _, err := LoadMasterKey(path); err == nil {
		t.Fatalf("expected wrong PEM type to be rejected")
	}
}

func TestSaveMasterKeyRejectsBadLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.pem")
	if err := SaveMasterKey(path, []byte("short")); err == nil {
		t.Fatalf("expected short key to be rejected")
	}
}
