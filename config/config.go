package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"

	"roomsync/models"
)

const (
	// AppDirectoryName is the per-user application data directory name.
	AppDirectoryName = "roomsync"
	// configFileName is the persisted configuration file.
	configFileName = "config.json"

	// StoreBackendSQLite keeps messages in a local SQLite file.
	StoreBackendSQLite = "sqlite"
	// StoreBackendPostgres uses a shared Postgres instance.
	StoreBackendPostgres = "postgres"

	// StreamBackendLocal is the in-process broker, for single-binary use.
	StreamBackendLocal = "local"
	// StreamBackendRedis subscribes to per-room Redis pub/sub channels.
	StreamBackendRedis = "redis"
	// StreamBackendWebSocket subscribes through a realtime gateway.
	StreamBackendWebSocket = "websocket"

	// DefaultRedisAddr is used when the redis backend has no address set.
	DefaultRedisAddr = "localhost:6379"
)

// ClientConfig contains persistent local client settings.
type ClientConfig struct {
	IdentityID    string `json:"identity_id"`
	DisplayName   string `json:"display_name"`
	Email         string `json:"email"`
	StoreBackend  string `json:"store_backend"`
	PostgresDSN   string `json:"postgres_dsn"`
	StreamBackend string `json:"stream_backend"`
	RedisAddr     string `json:"redis_addr"`
	StreamURL     string `json:"stream_url"`
	MasterKeyPath string `json:"master_key_path"`
	DefaultRoom   string `json:"default_room"`
}

// Identity returns the locally-configured identity record.
func (c *ClientConfig) Identity() models.Identity {
	return models.Identity{
		ID:          c.IdentityID,
		DisplayName: c.DisplayName,
		Email:       c.Email,
	}
}

// ResolveDataDir returns the OS-aware app data directory.
//
// If ROOMSYNC_DATA_DIR is set, its value is used as an explicit override.
func ResolveDataDir() (string, error) {
	if override := os.Getenv("ROOMSYNC_DATA_DIR"); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, AppDirectoryName), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppDirectoryName), nil
	default:
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			base = filepath.Join(home, ".config")
		}
		return filepath.Join(base, AppDirectoryName), nil
	}
}

// ConfigPath returns the full path to config.json for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, configFileName)
}

// EnsureDataDirectories creates the app data directory layout if needed.
func EnsureDataDirectories(dataDir string) error {
	dirs := []string{
		dataDir,
		filepath.Join(dataDir, "keys"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	return nil
}

// Load reads and unmarshals config.json from disk.
func Load(path string) (*ClientConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg ClientConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// Save marshals and writes config.json to disk.
func Save(path string, cfg *ClientConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	raw = append(raw, '\n')
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// LoadOrCreate ensures directories and config exist, then returns both.
func LoadOrCreate() (*ClientConfig, string, error) {
	dataDir, err := ResolveDataDir()
	if err != nil {
		return nil, "", err
	}
	if err := EnsureDataDirectories(dataDir); err != nil {
		return nil, "", err
	}

	cfgPath := ConfigPath(dataDir)
	cfg, err := Load(cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", err
		}

		cfg = defaultConfig(dataDir)
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}

		return cfg, cfgPath, nil
	}

	if normalizeDefaults(cfg, dataDir) {
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}
	}

	return cfg, cfgPath, nil
}

func defaultConfig(dataDir string) *ClientConfig {
	displayName := ""
	if host, err := os.Hostname(); err == nil && host != "" {
		displayName = host
	}

	return &ClientConfig{
		IdentityID:    uuid.NewString(),
		DisplayName:   displayName,
		StoreBackend:  StoreBackendSQLite,
		StreamBackend: StreamBackendLocal,
		RedisAddr:     DefaultRedisAddr,
		MasterKeyPath: filepath.Join(dataDir, "keys", "master.pem"),
		DefaultRoom:   models.DefaultRoomName,
	}
}

func normalizeDefaults(cfg *ClientConfig, dataDir string) bool {
	updated := false

	if cfg.IdentityID == "" {
		cfg.IdentityID = uuid.NewString()
		updated = true
	}

	if normalizeStoreBackend(cfg.StoreBackend) == "" {
		cfg.StoreBackend = StoreBackendSQLite
		updated = true
	}

	if normalizeStreamBackend(cfg.StreamBackend) == "" {
		cfg.StreamBackend = StreamBackendLocal
		updated = true
	}

	if cfg.StreamBackend == StreamBackendRedis && cfg.RedisAddr == "" {
		cfg.RedisAddr = DefaultRedisAddr
		updated = true
	}

	if cfg.MasterKeyPath == "" {
		cfg.MasterKeyPath = filepath.Join(dataDir, "keys", "master.pem")
		updated = true
	}

	if cfg.DefaultRoom == "" {
		cfg.DefaultRoom = models.DefaultRoomName
		updated = true
	}

	return updated
}

func normalizeStoreBackend(backend string) string {
	switch backend {
	case StoreBackendSQLite, StoreBackendPostgres:
		return backend
	default:
		return ""
	}
}

func normalizeStreamBackend(backend string) string {
	switch backend {
	case StreamBackendLocal, StreamBackendRedis, StreamBackendWebSocket:
		return backend
	default:
		return ""
	}
}
