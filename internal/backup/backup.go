// Package backup implements the password-protected container used to move
// application state between machines. The envelope is a magic header, a
// 16-byte salt, a 12-byte nonce, and AES-256-GCM ciphertext of the snapshot
// JSON.
package backup

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	saltSize  = 16
	nonceSize = 12

	// kdfRounds is fixed. Changing it would make existing backup files
	// unreadable; a new format magic is required for any KDF change.
	kdfRounds = 100_000
)

// Magic identifies a version 1 backup file.
var Magic = []byte("TAURIDRIVE_BKP1")

var (
	// ErrFormatInvalid indicates the input is not a recognizable backup file.
	ErrFormatInvalid = errors.New("invalid backup file: wrong format or version")

	// ErrAuthFailed indicates decryption failed. The message is shown to the
	// user verbatim.
	ErrAuthFailed = errors.New("incorrect password or corrupted file")
)

// Data is the snapshot of all exportable application state.
type Data struct {
	Version       uint32            `json:"version"`
	AppVersion    string            `json:"app_version"`
	CreatedAt     string            `json:"created_at"`
	Credentials   *Credentials      `json:"credentials"`
	SyncFolders   []SyncFolder      `json:"sync_folders"`
	Settings      []Setting         `json:"settings"`
	UploadHistory []UploadHistory   `json:"upload_history"`
}

// Credentials is the plaintext credential bundle. The envelope itself is
// password-protected, so fields are stored in the clear inside it.
type Credentials struct {
	BucketName      string `json:"bucket_name"`
	AccountID       string `json:"account_id"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Endpoint        string `json:"endpoint"`
}

// SyncFolder is one folder mapping inside the snapshot.
type SyncFolder struct {
	LocalPath  string `json:"local_path"`
	RemotePath string `json:"remote_path"`
	SyncMode   string `json:"sync_mode"`
	Enabled    bool   `json:"enabled"`
}

// Setting is one key/value pair inside the snapshot.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// UploadHistory is one finished (completed, failed or cancelled) upload
// inside the snapshot.
type UploadHistory struct {
	FilePath    string  `json:"file_path"`
	RemotePath  string  `json:"remote_path"`
	TotalSize   int64   `json:"total_size"`
	Status      string  `json:"status"`
	CompletedAt *string `json:"completed_at"`
}

// deriveKey stretches a password into an AES-256 key by iterating SHA-256
// over an evolving buffer. The exact construction is load-bearing: existing
// backup files were written with it, so it must not change for version 1.
//
// buffer starts as password || salt; each round replaces it with
// SHA-256(buffer) || salt; the key is SHA-256 of the final buffer.
func deriveKey(password string, salt []byte) []byte {
	data := make([]byte, 0, len(password)+len(salt))
	data = append(data, []byte(password)...)
	data = append(data, salt...)

	for i := 0; i < kdfRounds; i++ {
		digest := sha256.Sum256(data)
		data = data[:0]
		data = append(data, digest[:]...)
		data = append(data, salt...)
	}

	key := sha256.Sum256(data)
	return key[:]
}

// Encrypt serializes and encrypts a snapshot under the given password.
func Encrypt(data *Data, password string) ([]byte, error) {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize backup data: %w", err)
	}

	salt := make([]byte, saltSize)
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	aead, err := newAEAD(deriveKey(password, salt))
	if err != nil {
		return nil, err
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	output := make([]byte, 0, len(Magic)+saltSize+nonceSize+len(ciphertext))
	output = append(output, Magic...)
	output = append(output, salt...)
	output = append(output, nonce...)
	output = append(output, ciphertext...)

	return output, nil
}

// Decrypt authenticates and parses an encrypted backup.
func Decrypt(encrypted []byte, password string) (*Data, error) {
	if len(encrypted) < len(Magic)+saltSize+nonceSize {
		return nil, fmt.Errorf("%w: too short", ErrFormatInvalid)
	}
	if !bytes.Equal(encrypted[:len(Magic)], Magic) {
		return nil, ErrFormatInvalid
	}

	offset := len(Magic)
	salt := encrypted[offset : offset+saltSize]
	nonce := encrypted[offset+saltSize : offset+saltSize+nonceSize]
	ciphertext := encrypted[offset+saltSize+nonceSize:]

	aead, err := newAEAD(deriveKey(password, salt))
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}

	var data Data
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, fmt.Errorf("failed to parse backup data: %w", err)
	}

	return &data, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}
