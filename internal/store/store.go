// Package store owns the application database. It is the only package that
// holds the database handle; the upload state manager borrows the same pool.
//
// Credential secrets pass through the machine-local codec before they touch
// disk, so a copied database file is useless without the key file.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/joshfom/tauri-drive/internal/config"
	"github.com/joshfom/tauri-drive/internal/crypto"
	"github.com/joshfom/tauri-drive/internal/types"
)

//go:embed migrations/001_init.sql
var initSchema string

// Store is the persistence layer over the embedded SQLite database.
type Store struct {
	db     *sql.DB
	crypto *crypto.Crypto
}

// Open opens (creating if needed) the database at the default location.
func Open(ctx context.Context) (*Store, error) {
	return OpenPath(ctx, config.DatabasePath(), config.KeyFilePath())
}

// OpenPath opens the database at dbPath, using the key file at keyPath for
// the credential codec. The schema is applied idempotently.
func OpenPath(ctx context.Context, dbPath, keyPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.ExecContext(ctx, initSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Older databases predate the created_at column on sync_folders. SQLite
	// has no ALTER TABLE ... IF NOT EXISTS, so the duplicate-column error is
	// expected and ignored.
	_, _ = db.ExecContext(ctx,
		"ALTER TABLE sync_folders ADD COLUMN created_at DATETIME DEFAULT CURRENT_TIMESTAMP")

	c, err := crypto.NewWithKeyPath(keyPath)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, crypto: c}, nil
}

// DB exposes the underlying pool for the upload state manager.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Crypto exposes the credential codec.
func (s *Store) Crypto() *crypto.Crypto {
	return s.crypto
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveCredentials upserts the credential row for a bucket. The access key id
// and secret are encrypted before storage; an existing row with the same
// bucket name has all five fields replaced.
func (s *Store) SaveCredentials(ctx context.Context, bucketName, accountID, accessKeyID, secretAccessKey, endpoint string) (int64, error) {
	encryptedAccessKey, err := s.crypto.Encrypt(accessKeyID)
	if err != nil {
		return 0, fmt.Errorf("failed to encrypt access key: %w", err)
	}
	encryptedSecretKey, err := s.crypto.Encrypt(secretAccessKey)
	if err != nil {
		return 0, fmt.Errorf("failed to encrypt secret key: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO buckets (name, account_id, access_key_id, secret_access_key, endpoint)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			account_id = excluded.account_id,
			access_key_id = excluded.access_key_id,
			secret_access_key = excluded.secret_access_key,
			endpoint = excluded.endpoint`,
		bucketName, accountID, encryptedAccessKey, encryptedSecretKey, endpoint)
	if err != nil {
		return 0, fmt.Errorf("failed to save credentials: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, nil
}

// SavedCredentials is the decrypted credential row for a bucket.
type SavedCredentials struct {
	BucketName      string
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
}

// LoadCredentials returns the most recent credential row with secrets
// decrypted, or nil when no credentials have been saved.
func (s *Store) LoadCredentials(ctx context.Context) (*SavedCredentials, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, account_id, access_key_id, secret_access_key, endpoint
		 FROM buckets ORDER BY created_at DESC LIMIT 1`)

	var creds SavedCredentials
	var encryptedAccessKey, encryptedSecretKey string
	err := row.Scan(&creds.BucketName, &creds.AccountID, &encryptedAccessKey, &encryptedSecretKey, &creds.Endpoint)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	if creds.AccessKeyID, err = s.crypto.Decrypt(encryptedAccessKey); err != nil {
		return nil, err
	}
	if creds.SecretAccessKey, err = s.crypto.Decrypt(encryptedSecretKey); err != nil {
		return nil, err
	}

	return &creds, nil
}

// CurrentBucket returns the name of the most recent credential row, or empty
// string when none exists.
func (s *Store) CurrentBucket(ctx context.Context) (string, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT name FROM buckets ORDER BY created_at DESC LIMIT 1")

	var name string
	err := row.Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query current bucket: %w", err)
	}
	return name, nil
}

// currentBucketID returns the id of the most recent credential row.
// ok is false when no bucket exists.
func (s *Store) currentBucketID(ctx context.Context) (int64, bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id FROM buckets ORDER BY created_at DESC LIMIT 1")

	var id int64
	err := row.Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// CurrentBucketID returns the id of the most recent credential row, or an
// error when no bucket has been saved.
func (s *Store) CurrentBucketID(ctx context.Context) (int64, error) {
	id, ok, err := s.currentBucketID(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("no bucket configured")
	}
	return id, nil
}

// SyncFolders returns the folder mappings for the current bucket, newest
// first. Empty when no bucket is configured.
func (s *Store) SyncFolders(ctx context.Context) ([]types.SyncFolder, error) {
	bucketID, ok, err := s.currentBucketID(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []types.SyncFolder{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, local_path, remote_path, enabled, last_sync
		 FROM sync_folders WHERE bucket_id = ? ORDER BY id DESC`, bucketID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync folders: %w", err)
	}
	defer rows.Close()

	folders := []types.SyncFolder{}
	for rows.Next() {
		var f types.SyncFolder
		var lastSync sql.NullString
		if err := rows.Scan(&f.ID, &f.LocalPath, &f.RemotePath, &f.Enabled, &lastSync); err != nil {
			return nil, err
		}
		if lastSync.Valid {
			f.LastSync = &lastSync.String
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// AddSyncFolder adds an upload-only folder mapping under the current bucket.
func (s *Store) AddSyncFolder(ctx context.Context, localPath, remotePath string) (int64, error) {
	bucketID, err := s.CurrentBucketID(ctx)
	if err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_folders (bucket_id, local_path, remote_path, sync_mode, enabled)
		 VALUES (?, ?, ?, 'upload_only', 1)`,
		bucketID, localPath, remotePath)
	if err != nil {
		return 0, fmt.Errorf("failed to add sync folder: %w", err)
	}
	return result.LastInsertId()
}

// RemoveSyncFolder deletes a folder mapping.
func (s *Store) RemoveSyncFolder(ctx context.Context, folderID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sync_folders WHERE id = ?", folderID)
	if err != nil {
		return fmt.Errorf("failed to remove sync folder: %w", err)
	}
	return nil
}

// ToggleSyncFolder enables or disables a folder mapping.
func (s *Store) ToggleSyncFolder(ctx context.Context, folderID int64, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sync_folders SET enabled = ? WHERE id = ?", enabled, folderID)
	if err != nil {
		return fmt.Errorf("failed to toggle sync folder: %w", err)
	}
	return nil
}

// GetSetting returns the value for a settings key, or empty string when the
// key is absent.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	row := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key)
	var value string
	err := row.Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query setting %q: %w", key, err)
	}
	return value, nil
}

// SetSetting upserts a settings key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to save setting %q: %w", key, err)
	}
	return nil
}

// AllSettings returns every settings row as a key/value map; map iteration
// order is not defined.
func (s *Store) AllSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM settings ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	settings := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		settings[k] = v
	}
	return settings, rows.Err()
}

// CompletedUploadRow is one finished upload as exported into a backup.
type CompletedUploadRow struct {
	FilePath    string
	RemotePath  string
	TotalSize   int64
	Status      string
	CompletedAt *string
}

// CompletedUploadHistory returns finished uploads, newest first. Used by the
// backup exporter.
func (s *Store) CompletedUploadHistory(ctx context.Context) ([]CompletedUploadRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_path, remote_path, total_size, status, completed_at
		 FROM uploads WHERE status IN ('completed', 'failed', 'cancelled')
		 ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query upload history: %w", err)
	}
	defer rows.Close()

	history := []CompletedUploadRow{}
	for rows.Next() {
		var r CompletedUploadRow
		var completedAt sql.NullString
		if err := rows.Scan(&r.FilePath, &r.RemotePath, &r.TotalSize, &r.Status, &completedAt); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			r.CompletedAt = &completedAt.String
		}
		history = append(history, r)
	}
	return history, rows.Err()
}

// RawCredentialCiphertext returns the stored (still encrypted) key fields for
// the current bucket. Only used by tests to assert encryption at rest.
func (s *Store) RawCredentialCiphertext(ctx context.Context) (accessKey, secretKey string, err error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT access_key_id, secret_access_key FROM buckets ORDER BY created_at DESC LIMIT 1")
	err = row.Scan(&accessKey, &secretKey)
	return accessKey, secretKey, err
}
