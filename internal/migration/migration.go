// Package migration moves application state between machines through the
// password-protected backup container.
package migration

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joshfom/tauri-drive/internal/backup"
	"github.com/joshfom/tauri-drive/internal/constants"
	"github.com/joshfom/tauri-drive/internal/store"
)

// AppVersion is stamped into exported backups.
const AppVersion = "0.1.0"

// ImportResult reports what a backup import restored.
type ImportResult struct {
	CredentialsRestored bool `json:"credentials_restored"`
	SyncFoldersRestored int  `json:"sync_folders_restored"`
	SettingsRestored    int  `json:"settings_restored"`
	// UploadHistoryCount is the number of history rows present in the backup.
	// They are counted but not inserted: file paths rarely survive a machine
	// move.
	UploadHistoryCount int `json:"upload_history_count"`
}

// Summary describes a backup without importing it.
type Summary struct {
	Version            uint32 `json:"version"`
	AppVersion         string `json:"app_version"`
	CreatedAt          string `json:"created_at"`
	HasCredentials     bool   `json:"has_credentials"`
	BucketName         string `json:"bucket_name,omitempty"`
	SyncFolderCount    int    `json:"sync_folder_count"`
	SettingCount       int    `json:"setting_count"`
	UploadHistoryCount int    `json:"upload_history_count"`
}

// Export writes an encrypted snapshot of all persisted state to filePath.
// The password must be at least six characters; import has no such check.
func Export(ctx context.Context, st *store.Store, filePath, password string) error {
	if len(password) < constants.MinBackupPasswordLen {
		return fmt.Errorf("password must be at least %d characters", constants.MinBackupPasswordLen)
	}

	snapshot, err := BuildSnapshot(ctx, st)
	if err != nil {
		return err
	}

	encrypted, err := backup.Encrypt(snapshot, password)
	if err != nil {
		return err
	}

	if err := os.WriteFile(filePath, encrypted, 0600); err != nil {
		return fmt.Errorf("failed to write backup file: %w", err)
	}
	return nil
}

// BuildSnapshot assembles the exportable state from the store. Credentials
// are included in plaintext; the envelope encryption protects them.
func BuildSnapshot(ctx context.Context, st *store.Store) (*backup.Data, error) {
	snapshot := &backup.Data{
		Version:       1,
		AppVersion:    AppVersion,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		SyncFolders:   []backup.SyncFolder{},
		Settings:      []backup.Setting{},
		UploadHistory: []backup.UploadHistory{},
	}

	creds, err := st.LoadCredentials(ctx)
	if err != nil {
		return nil, err
	}
	if creds != nil {
		snapshot.Credentials = &backup.Credentials{
			BucketName:      creds.BucketName,
			AccountID:       creds.AccountID,
			AccessKeyID:     creds.AccessKeyID,
			SecretAccessKey: creds.SecretAccessKey,
			Endpoint:        creds.Endpoint,
		}
	}

	folders, err := st.SyncFolders(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range folders {
		snapshot.SyncFolders = append(snapshot.SyncFolders, backup.SyncFolder{
			LocalPath:  f.LocalPath,
			RemotePath: f.RemotePath,
			SyncMode:   "upload_only",
			Enabled:    f.Enabled,
		})
	}

	settings, err := st.AllSettings(ctx)
	if err != nil {
		return nil, err
	}
	for k, v := range settings {
		snapshot.Settings = append(snapshot.Settings, backup.Setting{Key: k, Value: v})
	}

	history, err := st.CompletedUploadHistory(ctx)
	if err != nil {
		return nil, err
	}
	for _, h := range history {
		snapshot.UploadHistory = append(snapshot.UploadHistory, backup.UploadHistory{
			FilePath:    h.FilePath,
			RemotePath:  h.RemotePath,
			TotalSize:   h.TotalSize,
			Status:      h.Status,
			CompletedAt: h.CompletedAt,
		})
	}

	return snapshot, nil
}

// Import decrypts a backup file and restores credentials, sync folders and
// settings into the store. Credential secrets are re-encrypted under this
// machine's key on save. Upload history is reported but never inserted.
func Import(ctx context.Context, st *store.Store, filePath, password string) (*ImportResult, error) {
	encrypted, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup file: %w", err)
	}

	data, err := backup.Decrypt(encrypted, password)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{
		UploadHistoryCount: len(data.UploadHistory),
	}

	if data.Credentials != nil {
		_, err := st.SaveCredentials(ctx,
			data.Credentials.BucketName,
			data.Credentials.AccountID,
			data.Credentials.AccessKeyID,
			data.Credentials.SecretAccessKey,
			data.Credentials.Endpoint)
		if err != nil {
			return nil, err
		}
		result.CredentialsRestored = true
	}

	for _, f := range data.SyncFolders {
		folderID, err := st.AddSyncFolder(ctx, f.LocalPath, f.RemotePath)
		if err != nil {
			return nil, err
		}
		if !f.Enabled {
			if err := st.ToggleSyncFolder(ctx, folderID, false); err != nil {
				return nil, err
			}
		}
		result.SyncFoldersRestored++
	}

	for _, s := range data.Settings {
		if err := st.SetSetting(ctx, s.Key, s.Value); err != nil {
			return nil, err
		}
		result.SettingsRestored++
	}

	return result, nil
}

// Preview decrypts a backup file and summarises its contents without writing
// anything.
func Preview(filePath, password string) (*Summary, error) {
	encrypted, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup file: %w", err)
	}

	data, err := backup.Decrypt(encrypted, password)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Version:            data.Version,
		AppVersion:         data.AppVersion,
		CreatedAt:          data.CreatedAt,
		HasCredentials:     data.Credentials != nil,
		SyncFolderCount:    len(data.SyncFolders),
		SettingCount:       len(data.Settings),
		UploadHistoryCount: len(data.UploadHistory),
	}
	if data.Credentials != nil {
		summary.BucketName = data.Credentials.BucketName
	}
	return summary, nil
}
