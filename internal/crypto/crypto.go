// Package crypto provides the machine-local keystore and the symmetric codec
// used to protect credentials at rest. Values are encrypted with AES-256-GCM
// under a random 32-byte key persisted in the user's data directory.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/joshfom/tauri-drive/internal/config"
)

const (
	// KeySize is the AES-256 key length.
	KeySize = 32
	// NonceSize is the GCM nonce length prepended to every ciphertext.
	NonceSize = 12
)

var (
	// ErrKeyMalformed indicates the persisted key file could not be decoded
	// into a 32-byte key.
	ErrKeyMalformed = errors.New("encryption key file is malformed")

	// ErrDecryptFailed indicates the ciphertext could not be decoded or
	// authenticated.
	ErrDecryptFailed = errors.New("decryption failed")
)

// Crypto encrypts and decrypts short strings under the machine-local key.
type Crypto struct {
	aead cipher.AEAD
}

// New creates a Crypto instance backed by the default key file, generating
// the key on first use.
func New() (*Crypto, error) {
	return NewWithKeyPath(config.KeyFilePath())
}

// NewWithKeyPath creates a Crypto instance backed by the key file at keyPath.
func NewWithKeyPath(keyPath string) (*Crypto, error) {
	key, err := loadOrCreateKey(keyPath)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher from key: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Crypto{aead: aead}, nil
}

// loadOrCreateKey loads the base64-encoded key from disk, or generates and
// persists a new one with owner-only permissions.
func loadOrCreateKey(keyPath string) ([]byte, error) {
	if data, err := os.ReadFile(keyPath); err == nil {
		decoded, err := base64.StdEncoding.DecodeString(string(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyMalformed, err)
		}
		if len(decoded) != KeySize {
			return nil, fmt.Errorf("%w: decoded length %d", ErrKeyMalformed, len(decoded))
		}
		return decoded, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read encryption key: %w", err)
	}

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(keyPath, []byte(encoded), 0600); err != nil {
		return nil, fmt.Errorf("failed to save encryption key: %w", err)
	}
	if runtime.GOOS != "windows" {
		// WriteFile honors umask; force owner-only explicitly.
		if err := os.Chmod(keyPath, 0600); err != nil {
			return nil, fmt.Errorf("failed to restrict key permissions: %w", err)
		}
	}

	return key, nil
}

// Encrypt encrypts a string value. The result is base64(nonce || ciphertext)
// with a fresh random nonce per call.
func (c *Crypto) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)

	combined := make([]byte, 0, NonceSize+len(sealed))
	combined = append(combined, nonce...)
	combined = append(combined, sealed...)

	return base64.StdEncoding.EncodeToString(combined), nil
}

// Decrypt decrypts a value produced by Encrypt.
func (c *Crypto) Decrypt(encrypted string) (string, error) {
	combined, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", ErrDecryptFailed, err)
	}
	if len(combined) < NonceSize {
		return "", fmt.Errorf("%w: data too short", ErrDecryptFailed)
	}

	nonce, ciphertext := combined[:NonceSize], combined[NonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}

	return string(plaintext), nil
}

// Hash returns base64(SHA-256(value)) for non-reversible storage.
func Hash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return base64.StdEncoding.EncodeToString(sum[:])
}
