package migration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/joshfom/tauri-drive/internal/backup"
	"github.com/joshfom/tauri-drive/internal/store"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := store.OpenPath(context.Background(), filepath.Join(dir, "test.db"), filepath.Join(dir, ".key"))
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func populate(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := st.SaveCredentials(ctx, "backup-bucket", "acc", "akid", "secret", "https://acc.r2.cloudflarestorage.com"); err != nil {
		t.Fatal(err)
	}
	if _, err := st.AddSyncFolder(ctx, "/home/u/docs", "docs/"); err != nil {
		t.Fatal(err)
	}
	if err := st.SetSetting(ctx, "theme", "dark"); err != nil {
		t.Fatal(err)
	}
}

func TestExportPasswordLength(t *testing.T) {
	st := setupTestStore(t)
	path := filepath.Join(t.TempDir(), "backup.bin")

	if err := Export(context.Background(), st, path, "short"); err == nil {
		t.Error("export accepted a five-character password")
	}
	if err := Export(context.Background(), st, path, "longenough"); err != nil {
		t.Errorf("export rejected a valid password: %v", err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	source := setupTestStore(t)
	populate(t, source)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "backup.bin")
	if err := Export(ctx, source, path, "backup-password"); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	// File starts with the format magic.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw[:len(backup.Magic)]) != string(backup.Magic) {
		t.Error("backup file missing magic prefix")
	}

	target := setupTestStore(t)
	result, err := Import(ctx, target, path, "backup-password")
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if !result.CredentialsRestored {
		t.Error("credentials not restored")
	}
	if result.SyncFoldersRestored != 1 {
		t.Errorf("folders restored = %d, want 1", result.SyncFoldersRestored)
	}
	if result.SettingsRestored != 1 {
		t.Errorf("settings restored = %d, want 1", result.SettingsRestored)
	}

	creds, err := target.LoadCredentials(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if creds == nil || creds.BucketName != "backup-bucket" || creds.SecretAccessKey != "secret" {
		t.Errorf("restored credentials = %+v", creds)
	}

	folders, err := target.SyncFolders(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(folders) != 1 || folders[0].LocalPath != "/home/u/docs" {
		t.Errorf("restored folders = %+v", folders)
	}

	theme, err := target.GetSetting(ctx, "theme")
	if err != nil {
		t.Fatal(err)
	}
	if theme != "dark" {
		t.Errorf("restored theme = %q", theme)
	}
}

func TestImportWrongPassword(t *testing.T) {
	source := setupTestStore(t)
	populate(t, source)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "backup.bin")
	if err := Export(ctx, source, path, "backup-password"); err != nil {
		t.Fatal(err)
	}

	target := setupTestStore(t)
	_, err := Import(ctx, target, path, "wrong-password")
	if !errors.Is(err, backup.ErrAuthFailed) {
		t.Errorf("got %v, want ErrAuthFailed", err)
	}
}

func TestImportDiscardsUploadHistory(t *testing.T) {
	source := setupTestStore(t)
	populate(t, source)
	ctx := context.Background()

	// Record a completed upload in the source so it lands in the snapshot.
	if _, err := source.DB().ExecContext(ctx,
		`INSERT INTO uploads (id, bucket_id, file_path, remote_path, total_size, chunk_size, status, started_at, completed_at)
		 VALUES ('u1', 1, '/old/machine/file.bin', 'file.bin', 123, 64, 'completed', datetime('now'), datetime('now'))`); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "backup.bin")
	if err := Export(ctx, source, path, "backup-password"); err != nil {
		t.Fatal(err)
	}

	target := setupTestStore(t)
	result, err := Import(ctx, target, path, "backup-password")
	if err != nil {
		t.Fatal(err)
	}

	if result.UploadHistoryCount != 1 {
		t.Errorf("history count = %d, want 1", result.UploadHistoryCount)
	}

	// The count is reported, but no row may be inserted on the target.
	var rows int
	if err := target.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM uploads").Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != 0 {
		t.Errorf("uploads on target = %d, want 0", rows)
	}
}

func TestPreview(t *testing.T) {
	source := setupTestStore(t)
	populate(t, source)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "backup.bin")
	if err := Export(ctx, source, path, "backup-password"); err != nil {
		t.Fatal(err)
	}

	summary, err := Preview(path, "backup-password")
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if summary.Version != 1 {
		t.Errorf("version = %d", summary.Version)
	}
	if !summary.HasCredentials || summary.BucketName != "backup-bucket" {
		t.Errorf("summary = %+v", summary)
	}
	if summary.SyncFolderCount != 1 || summary.SettingCount != 1 {
		t.Errorf("counts = %+v", summary)
	}
}

func TestImportDisabledFolderSurvives(t *testing.T) {
	source := setupTestStore(t)
	populate(t, source)
	ctx := context.Background()

	folders, _ := source.SyncFolders(ctx)
	if err := source.ToggleSyncFolder(ctx, folders[0].ID, false); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "backup.bin")
	if err := Export(ctx, source, path, "backup-password"); err != nil {
		t.Fatal(err)
	}

	target := setupTestStore(t)
	if _, err := Import(ctx, target, path, "backup-password"); err != nil {
		t.Fatal(err)
	}

	restored, err := target.SyncFolders(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(restored) != 1 {
		t.Fatalf("restored folders = %d", len(restored))
	}
	if restored[0].Enabled {
		t.Error("disabled folder imported as enabled")
	}
}
