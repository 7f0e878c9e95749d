package crypto

import (
	stdcipher "crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Cipher seals and opens message content at the storage boundary. Keys are
// scoped per identity so content can only be opened with the same identity
// id it was sealed under.
type Cipher interface {
	Encrypt(plaintext, identityID string) (string, error)
	Decrypt(ciphertext, identityID string) (string, error)
}

// BoxCipher implements Cipher with XChaCha20-Poly1305 under per-identity
// keys derived from one master key via HKDF.
type BoxCipher struct {
	masterKey []byte
}

// NewBoxCipher wraps a 32-byte master key.
func NewBoxCipher(masterKey []byte) (*BoxCipher, error) {
	if len(masterKey) != MasterKeySize {
		return nil, fmt.Errorf("invalid master key length: got %d want %d", len(masterKey), MasterKeySize)
	}
	return &BoxCipher{masterKey: append([]byte(nil), masterKey...)}, nil
}

// Encrypt seals plaintext under the identity-scoped key and returns
// base64(nonce || ciphertext).
func (c *BoxCipher) Encrypt(plaintext, identityID string) (string, error) {
	aead, err := c.aeadFor(identityID)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens base64(nonce || ciphertext) sealed under the same identity.
func (c *BoxCipher) Decrypt(ciphertext, identityID string) (string, error) {
	if ciphertext == "" {
		return "", errors.New("ciphertext is required")
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	aead, err := c.aeadFor(identityID)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("ciphertext too short: %d bytes", len(raw))
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt ciphertext: %w", err)
	}

	return string(plaintext), nil
}

func (c *BoxCipher) aeadFor(identityID string) (stdcipher.AEAD, error) {
	if identityID == "" {
		return nil, errors.New("identity id is required")
	}

	reader := hkdf.New(sha256.New, c.masterKey, nil, []byte("roomsync/identity/"+identityID))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive identity key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create AEAD: %w", err)
	}

	return aead, nil
}
