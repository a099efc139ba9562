// Package uploadstate records uploads and their part ETags so multi-part
// transfers can be introspected and resumed. All mutation goes through this
// manager; the multipart driver never touches rows directly.
package uploadstate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/joshfom/tauri-drive/internal/types"
)

// Manager provides CRUD over upload and part records.
type Manager struct {
	db *sql.DB
}

// NewManager creates a Manager over the store's database pool.
func NewManager(db *sql.DB) *Manager {
	return &Manager{db: db}
}

// CreateUpload inserts a new upload row with status pending and returns its
// generated id.
func (m *Manager) CreateUpload(ctx context.Context, bucketID int64, filePath, remotePath string, totalSize, chunkSize int64) (string, error) {
	uploadID := uuid.NewString()

	_, err := m.db.ExecContext(ctx,
		`INSERT INTO uploads (id, bucket_id, file_path, remote_path, total_size, chunk_size, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, 'pending', datetime('now'))`,
		uploadID, bucketID, filePath, remotePath, totalSize, chunkSize)
	if err != nil {
		return "", fmt.Errorf("failed to create upload record: %w", err)
	}

	return uploadID, nil
}

// UpdateStatus updates the upload status. uploadedSize and errorMessage are
// only written when non-nil. completed_at is set exactly when the new status
// is completed or failed.
func (m *Manager) UpdateStatus(ctx context.Context, uploadID string, status types.UploadStatus, uploadedSize *int64, errorMessage *string) error {
	query := "UPDATE uploads SET status = ?"
	args := []interface{}{string(status)}

	if uploadedSize != nil {
		query += ", uploaded_size = ?"
		args = append(args, *uploadedSize)
	}
	if errorMessage != nil {
		query += ", error_message = ?"
		args = append(args, *errorMessage)
	}
	if status == types.StatusCompleted || status == types.StatusFailed {
		query += ", completed_at = datetime('now')"
	}
	query += " WHERE id = ?"
	args = append(args, uploadID)

	if _, err := m.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update upload status: %w", err)
	}
	return nil
}

// SetMultipartUploadID records the object-store session id on the upload row.
func (m *Manager) SetMultipartUploadID(ctx context.Context, uploadID, multipartID string) error {
	_, err := m.db.ExecContext(ctx,
		"UPDATE uploads SET upload_id = ? WHERE id = ?", multipartID, uploadID)
	if err != nil {
		return fmt.Errorf("failed to set multipart upload id: %w", err)
	}
	return nil
}

// MultipartUploadID returns the recorded object-store session id, empty when
// unset.
func (m *Manager) MultipartUploadID(ctx context.Context, uploadID string) (string, error) {
	row := m.db.QueryRowContext(ctx, "SELECT upload_id FROM uploads WHERE id = ?", uploadID)
	var multipartID sql.NullString
	if err := row.Scan(&multipartID); err != nil {
		return "", fmt.Errorf("failed to query multipart upload id: %w", err)
	}
	return multipartID.String, nil
}

// SaveChunk upserts one part record keyed by (upload_id, part_number).
func (m *Manager) SaveChunk(ctx context.Context, uploadID string, partNumber int32, size int64, etag *string, status string) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO upload_chunks (upload_id, part_number, size, etag, status, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, datetime('now'))
		 ON CONFLICT(upload_id, part_number) DO UPDATE SET
			etag = excluded.etag,
			status = excluded.status,
			uploaded_at = excluded.uploaded_at`,
		uploadID, partNumber, size, etag, status)
	if err != nil {
		return fmt.Errorf("failed to save chunk: %w", err)
	}
	return nil
}

// GetUpload returns the progress view of one upload, or nil when the id is
// unknown.
func (m *Manager) GetUpload(ctx context.Context, uploadID string) (*types.UploadProgress, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT id, file_path, remote_path, total_size, uploaded_size, status, error_message
		 FROM uploads WHERE id = ?`, uploadID)

	progress, err := scanProgress(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query upload: %w", err)
	}
	return progress, nil
}

// GetActiveUploads returns uploads with status pending, uploading, or paused,
// newest first.
func (m *Manager) GetActiveUploads(ctx context.Context) ([]types.UploadProgress, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, file_path, remote_path, total_size, uploaded_size, status, error_message
		 FROM uploads
		 WHERE status IN ('pending', 'uploading', 'paused')
		 ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active uploads: %w", err)
	}
	defer rows.Close()

	uploads := []types.UploadProgress{}
	for rows.Next() {
		progress, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, *progress)
	}
	return uploads, rows.Err()
}

// CompletedChunk is one finished part as needed for session completion.
type CompletedChunk struct {
	PartNumber int32
	ETag       string
}

// GetCompletedChunks returns the completed parts of an upload ordered by part
// number.
func (m *Manager) GetCompletedChunks(ctx context.Context, uploadID string) ([]CompletedChunk, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT part_number, etag FROM upload_chunks
		 WHERE upload_id = ? AND status = 'completed'
		 ORDER BY part_number`, uploadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed chunks: %w", err)
	}
	defer rows.Close()

	chunks := []CompletedChunk{}
	for rows.Next() {
		var c CompletedChunk
		if err := rows.Scan(&c.PartNumber, &c.ETag); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanProgress(row scanner) (*types.UploadProgress, error) {
	var p types.UploadProgress
	var status string
	var errorMessage sql.NullString

	err := row.Scan(&p.ID, &p.FilePath, &p.RemotePath, &p.TotalSize, &p.UploadedSize, &status, &errorMessage)
	if err != nil {
		return nil, err
	}

	p.FileName = FileNameFromPath(p.FilePath)
	p.Status = types.ParseUploadStatus(status)
	if errorMessage.Valid {
		p.ErrorMessage = errorMessage.String
	}
	if p.TotalSize > 0 {
		p.Progress = float64(p.UploadedSize) / float64(p.TotalSize) * 100.0
	}

	return &p, nil
}

// FileNameFromPath extracts the final path segment, treating backslashes as
// separators so Windows paths recorded on another machine still render.
func FileNameFromPath(filePath string) string {
	normalized := strings.ReplaceAll(filePath, "\\", "/")
	if idx := strings.LastIndex(normalized, "/"); idx >= 0 {
		return normalized[idx+1:]
	}
	return normalized
}
