package crypto

import (
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

const (
	masterKeyPEMType = "ROOMSYNC MASTER KEY"
	// MasterKeySize is the raw master key length in bytes.
	MasterKeySize = 32
)

// EnsureMasterKey loads the master key from disk, generating it on first run.
func EnsureMasterKey(path string) ([]byte, error) {
	key, err := LoadMasterKey(path)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	key = make([]byte, MasterKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate master key: %w", err)
	}
	if err := SaveMasterKey(path, key); err != nil {
		return nil, err
	}

	return key, nil
}

// LoadMasterKey loads the master key from a PEM file.
func LoadMasterKey(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read master key: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("decode master key PEM: no PEM block")
	}
	if block.Type != masterKeyPEMType {
		return nil, fmt.Errorf("decode master key PEM: unexpected type %q", block.Type)
	}
	if len(block.Bytes) != MasterKeySize {
		return nil, fmt.Errorf("decode master key PEM: invalid key size %d", len(block.Bytes))
	}

	return block.Bytes, nil
}

// SaveMasterKey writes the master key to a PEM file with owner-only access.
func SaveMasterKey(path string, key []byte) error {
	if len(key) != MasterKeySize {
		return fmt.Errorf("invalid master key length: got %d want %d", len(key), MasterKeySize)
	}

	raw := pem.EncodeToMemory(&pem.Block{Type: masterKeyPEMType, Bytes: key})
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write master key: %w", err)
	}

	return nil
}
