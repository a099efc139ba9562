package uploadstate

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/joshfom/tauri-drive/internal/store"
	"github.com/joshfom/tauri-drive/internal/types"
)

func setupTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	st, err := store.OpenPath(context.Background(), filepath.Join(dir, "test.db"), filepath.Join(dir, ".key"))
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewManager(st.DB())
}

func TestCreateUploadAndProgress(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	id, err := m.CreateUpload(ctx, 1, "/p/a.txt", "a.txt", 2048, 512)
	if err != nil {
		t.Fatalf("CreateUpload failed: %v", err)
	}
	if id == "" {
		t.Fatal("empty upload id")
	}

	upload, err := m.GetUpload(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if upload == nil {
		t.Fatal("GetUpload returned nil")
	}
	if upload.Status != types.StatusPending {
		t.Errorf("status = %q, want pending", upload.Status)
	}
	if upload.FileName != "a.txt" {
		t.Errorf("fileName = %q, want a.txt", upload.FileName)
	}
	if upload.Progress != 0 {
		t.Errorf("progress = %f, want 0", upload.Progress)
	}

	uploaded := int64(512)
	if err := m.UpdateStatus(ctx, id, types.StatusUploading, &uploaded, nil); err != nil {
		t.Fatal(err)
	}
	upload, _ = m.GetUpload(ctx, id)
	if upload.Status != types.StatusUploading {
		t.Errorf("status = %q, want uploading", upload.Status)
	}
	if upload.Progress < 24.9 || upload.Progress > 25.1 {
		t.Errorf("progress = %f, want 25.0", upload.Progress)
	}

	uploaded = 1024
	if err := m.UpdateStatus(ctx, id, types.StatusUploading, &uploaded, nil); err != nil {
		t.Fatal(err)
	}
	upload, _ = m.GetUpload(ctx, id)
	if upload.Progress < 49.9 || upload.Progress > 50.1 {
		t.Errorf("progress = %f, want 50.0", upload.Progress)
	}

	uploaded = 2048
	if err := m.UpdateStatus(ctx, id, types.StatusCompleted, &uploaded, nil); err != nil {
		t.Fatal(err)
	}
	upload, _ = m.GetUpload(ctx, id)
	if upload.Progress != 100.0 {
		t.Errorf("progress = %f, want 100.0", upload.Progress)
	}
	if upload.Status != types.StatusCompleted {
		t.Errorf("status = %q, want completed", upload.Status)
	}
}

func TestCompletedAtSetOnTerminal(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	id, err := m.CreateUpload(ctx, 1, "/p/a.txt", "a.txt", 100, 50)
	if err != nil {
		t.Fatal(err)
	}

	var completedAt any
	row := m.db.QueryRowContext(ctx, "SELECT completed_at FROM uploads WHERE id = ?", id)
	if err := row.Scan(&completedAt); err != nil {
		t.Fatal(err)
	}
	if completedAt != nil {
		t.Error("completed_at set before terminal transition")
	}

	if err := m.UpdateStatus(ctx, id, types.StatusCompleted, nil, nil); err != nil {
		t.Fatal(err)
	}
	row = m.db.QueryRowContext(ctx, "SELECT completed_at FROM uploads WHERE id = ?", id)
	if err := row.Scan(&completedAt); err != nil {
		t.Fatal(err)
	}
	if completedAt == nil {
		t.Error("completed_at not set on completion")
	}
}

func TestUpdateStatusWithError(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	id, _ := m.CreateUpload(ctx, 1, "/p/a.txt", "a.txt", 100, 50)

	msg := "connection timeout"
	if err := m.UpdateStatus(ctx, id, types.StatusFailed, nil, &msg); err != nil {
		t.Fatal(err)
	}

	upload, _ := m.GetUpload(ctx, id)
	if upload.Status != types.StatusFailed {
		t.Errorf("status = %q, want failed", upload.Status)
	}
	if upload.ErrorMessage != "connection timeout" {
		t.Errorf("errorMessage = %q", upload.ErrorMessage)
	}
}

func TestChunkUpsert(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	id, _ := m.CreateUpload(ctx, 1, "/p/a.txt", "a.txt", 1024, 512)

	if err := m.SaveChunk(ctx, id, 1, 512, nil, "uploading"); err != nil {
		t.Fatal(err)
	}
	chunks, err := m.GetCompletedChunks(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 0 {
		t.Errorf("len(chunks) = %d before completion, want 0", len(chunks))
	}

	etag := "etag"
	if err := m.SaveChunk(ctx, id, 1, 512, &etag, "completed"); err != nil {
		t.Fatal(err)
	}
	chunks, err = m.GetCompletedChunks(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 {
		t.Fatalf("len(chunks) = %d, want 1", len(chunks))
	}
	if chunks[0].PartNumber != 1 || chunks[0].ETag != "etag" {
		t.Errorf("chunk = %+v", chunks[0])
	}
}

func TestCompletedChunksOrdered(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	id, _ := m.CreateUpload(ctx, 1, "/p/a.txt", "a.txt", 2048, 512)

	// Insert out of order; reads must come back sorted by part number.
	for _, part := range []int32{3, 1, 4, 2} {
		etag := "e"
		if err := m.SaveChunk(ctx, id, part, 512, &etag, "completed"); err != nil {
			t.Fatal(err)
		}
	}

	chunks, err := m.GetCompletedChunks(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 4 {
		t.Fatalf("len(chunks) = %d, want 4", len(chunks))
	}
	for i, c := range chunks {
		if c.PartNumber != int32(i+1) {
			t.Errorf("chunks[%d].PartNumber = %d, want %d", i, c.PartNumber, i+1)
		}
	}
}

func TestActiveUploadsFilter(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	statuses := []types.UploadStatus{
		types.StatusUploading,
		types.StatusPaused,
		types.StatusCompleted,
		types.StatusFailed,
	}
	active := map[string]bool{}
	for i, status := range statuses {
		id, err := m.CreateUpload(ctx, 1, "/p/file.txt", "file.txt", 100, 50)
		if err != nil {
			t.Fatal(err)
		}
		if err := m.UpdateStatus(ctx, id, status, nil, nil); err != nil {
			t.Fatal(err)
		}
		if i < 2 {
			active[id] = true
		}
	}

	uploads, err := m.GetActiveUploads(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(uploads) != 2 {
		t.Fatalf("len(active) = %d, want 2", len(uploads))
	}
	for _, u := range uploads {
		if !active[u.ID] {
			t.Errorf("unexpected active upload %s with status %s", u.ID, u.Status)
		}
	}
}

func TestWindowsPathFileName(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	id, err := m.CreateUpload(ctx, 1, `C:\Users\t\f.txt`, "f.txt", 100, 50)
	if err != nil {
		t.Fatal(err)
	}

	upload, err := m.GetUpload(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if upload.FileName != "f.txt" {
		t.Errorf("fileName = %q, want f.txt", upload.FileName)
	}
}

func TestFileNameFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/home/user/doc.pdf", "doc.pdf"},
		{`C:\Users\t\f.txt`, "f.txt"},
		{`mixed/sep\file.bin`, "file.bin"},
		{"justname", "justname"},
		{"", ""},
		{"/trailing/", ""},
	}
	for _, tt := range tests {
		if got := FileNameFromPath(tt.path); got != tt.want {
			t.Errorf("FileNameFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestMultipartUploadID(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	id, _ := m.CreateUpload(ctx, 1, "/p/a.txt", "a.txt", 100, 50)

	got, err := m.MultipartUploadID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("multipart id = %q before set, want empty", got)
	}

	if err := m.SetMultipartUploadID(ctx, id, "session-123"); err != nil {
		t.Fatal(err)
	}
	got, err = m.MultipartUploadID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got != "session-123" {
		t.Errorf("multipart id = %q, want session-123", got)
	}
}

func TestGetUploadUnknownID(t *testing.T) {
	m := setupTestManager(t)

	upload, err := m.GetUpload(context.Background(), "no-such-id")
	if err != nil {
		t.Fatal(err)
	}
	if upload != nil {
		t.Error("GetUpload returned non-nil for unknown id")
	}
}
