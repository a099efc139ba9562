package backup

import (
	"bytes"
	"errors"
	"testing"
)

func testSnapshot() *Data {
	return &Data{
		Version:    1,
		AppVersion: "0.1.0",
		CreatedAt:  "2024-01-01T00:00:00Z",
		Credentials: &Credentials{
			BucketName:      "test-bucket",
			AccountID:       "acc123",
			AccessKeyID:     "key123",
			SecretAccessKey: "secret123",
			Endpoint:        "https://test.r2.cloudflarestorage.com",
		},
		SyncFolders:   []SyncFolder{},
		Settings:      []Setting{},
		UploadHistory: []UploadHistory{},
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	password := "test-password-123"

	encrypted, err := Encrypt(testSnapshot(), password)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if !bytes.HasPrefix(encrypted, Magic) {
		t.Fatalf("output does not start with magic, got %q", encrypted[:len(Magic)])
	}

	decrypted, err := Decrypt(encrypted, password)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}

	if decrypted.Version != 1 {
		t.Errorf("version = %d, want 1", decrypted.Version)
	}
	if decrypted.AppVersion != "0.1.0" {
		t.Errorf("app_version = %q, want 0.1.0", decrypted.AppVersion)
	}
	if decrypted.CreatedAt != "2024-01-01T00:00:00Z" {
		t.Errorf("created_at = %q", decrypted.CreatedAt)
	}
	if decrypted.Credentials == nil {
		t.Fatal("credentials missing after round trip")
	}
	if decrypted.Credentials.BucketName != "test-bucket" {
		t.Errorf("bucket_name = %q, want test-bucket", decrypted.Credentials.BucketName)
	}
	if decrypted.Credentials.SecretAccessKey != "secret123" {
		t.Errorf("secret_access_key = %q, want secret123", decrypted.Credentials.SecretAccessKey)
	}
	if len(decrypted.SyncFolders) != 0 || len(decrypted.Settings) != 0 || len(decrypted.UploadHistory) != 0 {
		t.Error("empty collections did not survive round trip")
	}
}

func TestWrongPassword(t *testing.T) {
	encrypted, err := Encrypt(testSnapshot(), "correct-password")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	_, err = Decrypt(encrypted, "wrong")
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("got %v, want ErrAuthFailed", err)
	}
	if err.Error() != "incorrect password or corrupted file" {
		t.Errorf("user-visible message = %q", err.Error())
	}
}

func TestEmptyPassword(t *testing.T) {
	// Empty passwords are valid at this layer; only export enforces length.
	encrypted, err := Encrypt(testSnapshot(), "")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if _, err := Decrypt(encrypted, ""); err != nil {
		t.Fatalf("Decrypt with empty password failed: %v", err)
	}
	if _, err := Decrypt(encrypted, "nonempty"); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("got %v, want ErrAuthFailed", err)
	}
}

func TestWrongMagic(t *testing.T) {
	encrypted, err := Encrypt(testSnapshot(), "password")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	encrypted[0] = 'X'
	if _, err := Decrypt(encrypted, "password"); !errors.Is(err, ErrFormatInvalid) {
		t.Errorf("got %v, want ErrFormatInvalid", err)
	}
}

func TestTooShort(t *testing.T) {
	if _, err := Decrypt([]byte("TAURIDRIVE_BKP1"), "password"); !errors.Is(err, ErrFormatInvalid) {
		t.Errorf("got %v, want ErrFormatInvalid", err)
	}
	if _, err := Decrypt(nil, "password"); !errors.Is(err, ErrFormatInvalid) {
		t.Errorf("got %v, want ErrFormatInvalid", err)
	}
}

func TestCorruptedCiphertext(t *testing.T) {
	encrypted, err := Encrypt(testSnapshot(), "password")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	encrypted[len(encrypted)-1] ^= 0xff
	if _, err := Decrypt(encrypted, "password"); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("got %v, want ErrAuthFailed", err)
	}
}

func TestFreshSaltAndNonce(t *testing.T) {
	first, err := Encrypt(testSnapshot(), "password")
	if err != nil {
		t.Fatal(err)
	}
	second, err := Encrypt(testSnapshot(), "password")
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(first, second) {
		t.Error("two exports of the same snapshot are byte-identical; salt/nonce not fresh")
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt := bytes.Repeat([]byte{0x42}, saltSize)

	k1 := deriveKey("password", salt)
	k2 := deriveKey("password", salt)
	if !bytes.Equal(k1, k2) {
		t.Error("key derivation is not deterministic")
	}
	if len(k1) != 32 {
		t.Errorf("derived key length = %d, want 32", len(k1))
	}

	otherSalt := bytes.Repeat([]byte{0x43}, saltSize)
	if bytes.Equal(k1, deriveKey("password", otherSalt)) {
		t.Error("different salt produced same key")
	}
	if bytes.Equal(k1, deriveKey("other", salt)) {
		t.Error("different password produced same key")
	}
}

func TestEnvelopeLayout(t *testing.T) {
	encrypted, err := Encrypt(testSnapshot(), "password")
	if err != nil {
		t.Fatal(err)
	}

	// magic + salt + nonce + at least the GCM tag
	minLen := len(Magic) + saltSize + nonceSize + 16
	if len(encrypted) < minLen {
		t.Errorf("envelope length = %d, want >= %d", len(encrypted), minLen)
	}
}
