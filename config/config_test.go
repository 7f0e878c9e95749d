package config

import (
	"os"
	"path/filepath"
	"testing"

	"roomsync/models"
)

func TestLoadOrCreateWritesDefaults(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("ROOMSYNC_DATA_DIR", dataDir)

	cfg, cfgPath, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}

	if cfg.IdentityID == "" {
		t.Fatalf("expected generated identity id")
	}
	if cfg.StoreBackend != StoreBackendSQLite {
		t.Fatalf("expected sqlite default, got %q", cfg.StoreBackend)
	}
	if cfg.StreamBackend != StreamBackendLocal {
		t.Fatalf("expected local stream default, got %q", cfg.StreamBackend)
	}
	if cfg.DefaultRoom != models.DefaultRoomName {
		t.Fatalf("expected default room %q, got %q", models.DefaultRoomName, cfg.DefaultRoom)
	}
	if cfgPath != ConfigPath(dataDir) {
		t.Fatalf("unexpected config path %q", cfgPath)
	}
	if _, err := os.Stat(cfgPath); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	reloaded, _, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}
	if reloaded.IdentityID != cfg.IdentityID {
		t.Fatalf("identity id changed across loads")
	}
}

func TestLoadOrCreateNormalizesPartialConfig(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("ROOMSYNC_DATA_DIR", dataDir)

	raw := []byte(`{"display_name":"Carol","store_backend":"bogus"}` + "\n")
	if err := os.WriteFile(ConfigPath(dataDir), raw, 0o600); err != nil {
		t.Fatalf("write fixture config: %v", err)
	}

	cfg, _, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if cfg.DisplayName != "Carol" {
		t.Fatalf("existing fields must survive, got %q", cfg.DisplayName)
	}
	if cfg.IdentityID == "" {
		t.Fatalf("expected identity id to be filled in")
	}
	if cfg.StoreBackend != StoreBackendSQLite {
		t.Fatalf("expected invalid backend to normalize to sqlite, got %q", cfg.StoreBackend)
	}
	if cfg.MasterKeyPath != filepath.Join(dataDir, "keys", "master.pem") {
		t.Fatalf("unexpected master key path %q", cfg.MasterKeyPath)
	}
}

func TestIdentityProjection(t *testing.T) {
	cfg := &ClientConfig{IdentityID: "id-1", DisplayName: "Carol", Email: "carol@x.com"}
	identity := cfg.Identity()
	if identity.ID != "id-1" || identity.DisplayName != "Carol" || identity.Email != "carol@x.com" {
		t.Fatalf("unexpected identity projection: %+v", identity)
	}
}
