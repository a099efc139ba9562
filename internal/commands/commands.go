// Package commands is the stateless façade between the front-end dispatch
// surface and the backend core. Every exported method maps onto one named
// front-end command; errors cross the boundary as plain strings.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/joshfom/tauri-drive/internal/constants"
	"github.com/joshfom/tauri-drive/internal/events"
	"github.com/joshfom/tauri-drive/internal/logging"
	"github.com/joshfom/tauri-drive/internal/migration"
	"github.com/joshfom/tauri-drive/internal/r2"
	"github.com/joshfom/tauri-drive/internal/store"
	"github.com/joshfom/tauri-drive/internal/types"
	"github.com/joshfom/tauri-drive/internal/uploadstate"
)

// ErrNotConnected is returned by commands that need a connected client.
var ErrNotConnected = errors.New("not connected to R2")

// App is the process-wide state container: the persistence store, the upload
// state manager, the optional connected client, and the registry of live
// upload drivers. It is created at startup and torn down with the process.
type App struct {
	store     *store.Store
	uploadMgr *uploadstate.Manager
	bus       *events.Bus
	logger    *logging.Logger

	// clientMu guards the client slot, not the client itself; the SDK client
	// is safe for concurrent use.
	clientMu sync.Mutex
	client   *r2.Client

	// activeMu guards the registry of live drivers keyed by upload id, so
	// pause/resume/cancel commands can reach them. Entries are dropped on any
	// terminal transition.
	activeMu sync.Mutex
	active   map[string]*r2.MultipartUpload
}

// NewApp assembles the state container.
func NewApp(st *store.Store, bus *events.Bus, logger *logging.Logger) *App {
	return &App{
		store:     st,
		uploadMgr: uploadstate.NewManager(st.DB()),
		bus:       bus,
		logger:    logger,
		active:    make(map[string]*r2.MultipartUpload),
	}
}

// Store exposes the persistence store to the CLI layer.
func (a *App) Store() *store.Store {
	return a.store
}

// UploadManager exposes the upload state manager to the CLI layer.
func (a *App) UploadManager() *uploadstate.Manager {
	return a.uploadMgr
}

// Bus exposes the event bus so the front-end can subscribe.
func (a *App) Bus() *events.Bus {
	return a.bus
}

func (a *App) getClient() (*r2.Client, error) {
	a.clientMu.Lock()
	defer a.clientMu.Unlock()
	if a.client == nil {
		return nil, ErrNotConnected
	}
	return a.client, nil
}

func (a *App) setClient(c *r2.Client) {
	a.clientMu.Lock()
	a.client = c
	a.clientMu.Unlock()
}

// Connect constructs a client from the given credentials, verifies it by
// listing objects, and optionally persists the credentials.
func (a *App) Connect(ctx context.Context, creds types.Credentials, bucket string, saveCredentials bool) (string, error) {
	client, err := r2.NewClient(ctx, creds.AccountID, creds.AccessKeyID, creds.SecretAccessKey, bucket)
	if err != nil {
		return "", fmt.Errorf("failed to create R2 client: %w", err)
	}

	if _, err := client.ListObjects(ctx, ""); err != nil {
		return "", fmt.Errorf("connection test failed: %w", err)
	}

	if saveCredentials {
		_, err := a.store.SaveCredentials(ctx, bucket, creds.AccountID, creds.AccessKeyID, creds.SecretAccessKey, creds.Endpoint)
		if err != nil {
			return "", fmt.Errorf("failed to save credentials: %w", err)
		}
	}

	a.setClient(client)
	return "Connected successfully! Connection verified by listing objects.", nil
}

// LoadAndConnect connects using the most recently saved credentials.
func (a *App) LoadAndConnect(ctx context.Context) (string, error) {
	creds, err := a.store.LoadCredentials(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load credentials: %w", err)
	}
	if creds == nil {
		return "", errors.New("no saved credentials found")
	}

	client, err := r2.NewClient(ctx, creds.AccountID, creds.AccessKeyID, creds.SecretAccessKey, creds.BucketName)
	if err != nil {
		return "", fmt.Errorf("failed to create R2 client: %w", err)
	}
	if _, err := client.ListObjects(ctx, ""); err != nil {
		return "", fmt.Errorf("connection test failed: %w", err)
	}

	a.setClient(client)
	return fmt.Sprintf("Auto-connected to bucket: %s", creds.BucketName), nil
}

// GetSavedBucket returns the most recently saved bucket name, empty when
// nothing has been saved.
func (a *App) GetSavedBucket(ctx context.Context) (string, error) {
	return a.store.CurrentBucket(ctx)
}

// ListObjects lists remote objects, optionally under a prefix.
func (a *App) ListObjects(ctx context.Context, prefix string) ([]types.Object, error) {
	client, err := a.getClient()
	if err != nil {
		return nil, err
	}
	return client.ListObjects(ctx, prefix)
}

// DeleteFile removes one remote object.
func (a *App) DeleteFile(ctx context.Context, remoteKey string) error {
	client, err := a.getClient()
	if err != nil {
		return err
	}
	return client.DeleteObject(ctx, remoteKey)
}

// CopyFile copies a remote object within the bucket.
func (a *App) CopyFile(ctx context.Context, sourceKey, destKey string) error {
	client, err := a.getClient()
	if err != nil {
		return err
	}
	return client.CopyObject(ctx, sourceKey, destKey)
}

// CreateFolder creates a zero-byte object whose key ends in a slash.
func (a *App) CreateFolder(ctx context.Context, folderPath string) (string, error) {
	client, err := a.getClient()
	if err != nil {
		return "", err
	}

	folderKey := folderPath
	if !strings.HasSuffix(folderKey, "/") {
		folderKey += "/"
	}
	if _, err := client.PutObjectBytes(ctx, folderKey, nil); err != nil {
		return "", err
	}
	return fmt.Sprintf("Folder created: %s", folderKey), nil
}

// UploadFile uploads without progress events: a single PutObject at or below
// the multipart threshold, a multipart session with the default chunk size
// above it.
func (a *App) UploadFile(ctx context.Context, localPath, remoteKey string) (string, error) {
	client, err := a.getClient()
	if err != nil {
		return "", err
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return "", err
	}

	if info.Size() > constants.MultipartThreshold {
		upload, err := r2.NewMultipartUpload(ctx, client.API(), client.Bucket(), remoteKey, constants.DefaultChunkSize)
		if err != nil {
			return "", err
		}
		if err := upload.UploadFile(ctx, localPath, nil, nil); err != nil {
			return "", err
		}
		return "Uploaded with multipart", nil
	}

	etag, err := client.PutObjectFile(ctx, remoteKey, localPath)
	if err != nil {
		return "", err
	}
	return etag, nil
}

// bucketID resolves the current bucket row id, falling back to 1 when the
// client was connected without saving credentials.
func (a *App) bucketID(ctx context.Context) int64 {
	id, err := a.store.CurrentBucketID(ctx)
	if err != nil {
		return 1
	}
	return id
}

// UploadFileWithProgress uploads a file, persisting durable upload state and
// emitting progress events on the upload-progress channel. Returns the
// upload record id. Files at or below the multipart threshold take the
// simple-PUT path; larger files use the concurrent multipart driver with
// 5 MB parts for frequent progress callbacks.
func (a *App) UploadFileWithProgress(ctx context.Context, localPath, remoteKey string) (string, error) {
	client, err := a.getClient()
	if err != nil {
		return "", err
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return "", err
	}
	fileSize := info.Size()

	multipart := fileSize > constants.MultipartThreshold
	chunkSize := int64(constants.DefaultChunkSize)
	if multipart {
		chunkSize = constants.ProgressChunkSize
	}

	uploadID, err := a.uploadMgr.CreateUpload(ctx, a.bucketID(ctx), localPath, remoteKey, fileSize, chunkSize)
	if err != nil {
		return "", err
	}

	if err := a.uploadMgr.UpdateStatus(ctx, uploadID, types.StatusUploading, nil, nil); err != nil {
		return "", err
	}

	fileName := uploadstate.FileNameFromPath(localPath)
	a.emitUploadProgress(uploadID, fileName, localPath, remoteKey, fileSize, 0, 0, 0, types.StatusUploading, "")

	if multipart {
		err = a.uploadMultipart(ctx, client, uploadID, localPath, remoteKey, fileSize, chunkSize)
	} else {
		err = a.uploadSimple(ctx, client, uploadID, localPath, remoteKey, fileSize)
	}
	if err != nil {
		status := types.StatusFailed
		if errors.Is(err, r2.ErrCancelled) {
			status = types.StatusCancelled
		}
		msg := err.Error()
		if updateErr := a.uploadMgr.UpdateStatus(ctx, uploadID, status, nil, &msg); updateErr != nil {
			a.logger.Errorf("failed to record upload failure: %v", updateErr)
		}
		a.emitUploadProgress(uploadID, fileName, localPath, remoteKey, fileSize, 0, 0, 0, status, msg)
		return "", err
	}

	if err := a.uploadMgr.UpdateStatus(ctx, uploadID, types.StatusCompleted, &fileSize, nil); err != nil {
		return "", err
	}
	a.emitUploadProgress(uploadID, fileName, localPath, remoteKey, fileSize, fileSize, 0, 0, types.StatusCompleted, "")

	return uploadID, nil
}

// uploadSimple reads the whole file and PUTs it in one request, with a
// synthesised half-way progress event during the read.
func (a *App) uploadSimple(ctx context.Context, client *r2.Client, uploadID, localPath, remoteKey string, fileSize int64) error {
	fileName := uploadstate.FileNameFromPath(localPath)

	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	a.emitUploadProgress(uploadID, fileName, localPath, remoteKey, fileSize, fileSize/2, 0, 0, types.StatusUploading, "")

	if _, err := client.PutObjectBytes(ctx, remoteKey, data); err != nil {
		return err
	}
	return nil
}

// uploadMultipart drives the concurrent multipart path, registering the
// driver so pause/resume/cancel commands can reach it.
func (a *App) uploadMultipart(ctx context.Context, client *r2.Client, uploadID, localPath, remoteKey string, fileSize, chunkSize int64) error {
	upload, err := r2.NewMultipartUpload(ctx, client.API(), client.Bucket(), remoteKey, chunkSize)
	if err != nil {
		return err
	}

	if err := a.uploadMgr.SetMultipartUploadID(ctx, uploadID, upload.UploadID()); err != nil {
		return err
	}

	a.activeMu.Lock()
	a.active[uploadID] = upload
	a.activeMu.Unlock()
	defer func() {
		a.activeMu.Lock()
		delete(a.active, uploadID)
		a.activeMu.Unlock()
	}()

	fileName := uploadstate.FileNameFromPath(localPath)

	onPart := func(part r2.PartRecord) {
		etag := part.ETag
		if err := a.uploadMgr.SaveChunk(ctx, uploadID, part.PartNumber, part.Size, &etag, "completed"); err != nil {
			a.logger.Errorf("failed to persist chunk %d: %v", part.PartNumber, err)
		}
	}
	progress := func(uploaded, total int64, speed float64, eta int64) {
		// In-flight parts may still finish after a pause; keep the row on
		// paused until resume.
		status := types.StatusUploading
		if upload.Paused() {
			status = types.StatusPaused
		}
		if err := a.uploadMgr.UpdateStatus(ctx, uploadID, status, &uploaded, nil); err != nil {
			a.logger.Errorf("failed to persist progress: %v", err)
		}
		a.emitUploadProgress(uploadID, fileName, localPath, remoteKey, total, uploaded, speed, eta, status, "")
	}

	return upload.UploadFile(ctx, localPath, progress, onPart)
}

func (a *App) emitUploadProgress(id, fileName, filePath, remotePath string, total, uploaded int64, speed float64, eta int64, status types.UploadStatus, errMsg string) {
	var pct float64
	if total > 0 {
		pct = float64(uploaded) / float64(total) * 100.0
	}
	a.bus.Publish(events.ChannelUploadProgress, types.UploadProgress{
		ID:           id,
		FileName:     fileName,
		FilePath:     filePath,
		RemotePath:   remotePath,
		TotalSize:    total,
		UploadedSize: uploaded,
		Progress:     pct,
		Speed:        speed,
		ETA:          eta,
		Status:       status,
		ErrorMessage: errMsg,
	})
}

// PauseUpload pauses a live upload driver and records the state.
func (a *App) PauseUpload(ctx context.Context, uploadID string) error {
	a.activeMu.Lock()
	upload, ok := a.active[uploadID]
	a.activeMu.Unlock()
	if !ok {
		return fmt.Errorf("no active upload with id %s", uploadID)
	}

	upload.Pause()
	return a.uploadMgr.UpdateStatus(ctx, uploadID, types.StatusPaused, nil, nil)
}

// ResumeUpload resumes a paused upload driver.
func (a *App) ResumeUpload(ctx context.Context, uploadID string) error {
	a.activeMu.Lock()
	upload, ok := a.active[uploadID]
	a.activeMu.Unlock()
	if !ok {
		return fmt.Errorf("no active upload with id %s", uploadID)
	}

	upload.Resume()
	return a.uploadMgr.UpdateStatus(ctx, uploadID, types.StatusUploading, nil, nil)
}

// CancelUpload cancels an upload. A live driver aborts its session and
// records the cancellation itself; for uploads with no live driver only the
// row is updated.
func (a *App) CancelUpload(ctx context.Context, uploadID string) error {
	a.activeMu.Lock()
	upload, ok := a.active[uploadID]
	a.activeMu.Unlock()

	if ok {
		upload.Cancel()
		return nil
	}
	return a.uploadMgr.UpdateStatus(ctx, uploadID, types.StatusCancelled, nil, nil)
}

// RetryUpload starts a fresh upload (new id) of the file recorded on an
// existing row.
func (a *App) RetryUpload(ctx context.Context, uploadID string) (string, error) {
	record, err := a.uploadMgr.GetUpload(ctx, uploadID)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", fmt.Errorf("no upload with id %s", uploadID)
	}
	return a.UploadFileWithProgress(ctx, record.FilePath, record.RemotePath)
}

// GetUpload returns the progress view of one upload.
func (a *App) GetUpload(ctx context.Context, uploadID string) (*types.UploadProgress, error) {
	return a.uploadMgr.GetUpload(ctx, uploadID)
}

// GetActiveUploads returns uploads that are pending, uploading, or paused.
func (a *App) GetActiveUploads(ctx context.Context) ([]types.UploadProgress, error) {
	return a.uploadMgr.GetActiveUploads(ctx)
}

// DownloadFileWithProgress streams a remote object to disk, emitting events
// on the download-progress channel. Returns the download id.
func (a *App) DownloadFileWithProgress(ctx context.Context, remoteKey, localPath string) (string, error) {
	client, err := a.getClient()
	if err != nil {
		return "", err
	}

	downloadID := uuid.NewString()
	fileName := uploadstate.FileNameFromPath(remoteKey)

	emit := func(downloaded, total int64, speed float64, eta int64, status types.UploadStatus, errMsg string) {
		var pct float64
		if total > 0 {
			pct = float64(downloaded) / float64(total) * 100.0
		}
		a.bus.Publish(events.ChannelDownloadProgress, types.DownloadProgress{
			ID:             downloadID,
			FileName:       fileName,
			RemotePath:     remoteKey,
			LocalPath:      localPath,
			TotalSize:      total,
			DownloadedSize: downloaded,
			Progress:       pct,
			Speed:          speed,
			ETA:            eta,
			Status:         status,
			ErrorMessage:   errMsg,
		})
	}

	emit(0, 0, 0, 0, types.StatusDownloading, "")

	var total int64
	err = client.GetObjectStreaming(ctx, remoteKey, localPath, func(downloaded, totalBytes int64, speed float64, eta int64) {
		total = totalBytes
		emit(downloaded, totalBytes, speed, eta, types.StatusDownloading, "")
	})
	if err != nil {
		emit(0, total, 0, 0, types.StatusFailed, err.Error())
		return "", err
	}

	emit(total, total, 0, 0, types.StatusCompleted, "")
	return downloadID, nil
}

// GetSyncFolders returns the folder mappings for the current bucket.
func (a *App) GetSyncFolders(ctx context.Context) ([]types.SyncFolder, error) {
	return a.store.SyncFolders(ctx)
}

// AddSyncFolder adds an upload-only folder mapping.
func (a *App) AddSyncFolder(ctx context.Context, localPath, remotePath string) (int64, error) {
	return a.store.AddSyncFolder(ctx, localPath, remotePath)
}

// RemoveSyncFolder deletes a folder mapping.
func (a *App) RemoveSyncFolder(ctx context.Context, folderID int64) error {
	return a.store.RemoveSyncFolder(ctx, folderID)
}

// ToggleSyncFolder enables or disables a folder mapping.
func (a *App) ToggleSyncFolder(ctx context.Context, folderID int64, enabled bool) error {
	return a.store.ToggleSyncFolder(ctx, folderID, enabled)
}

// GetSetting reads one settings key.
func (a *App) GetSetting(ctx context.Context, key string) (string, error) {
	return a.store.GetSetting(ctx, key)
}

// SetSetting writes one settings key.
func (a *App) SetSetting(ctx context.Context, key, value string) error {
	return a.store.SetSetting(ctx, key, value)
}

// ExportMigrationBackup writes an encrypted snapshot of all persisted state.
func (a *App) ExportMigrationBackup(ctx context.Context, filePath, password string) error {
	return migration.Export(ctx, a.store, filePath, password)
}

// ImportMigrationBackup restores state from an encrypted backup file.
func (a *App) ImportMigrationBackup(ctx context.Context, filePath, password string) (*migration.ImportResult, error) {
	return migration.Import(ctx, a.store, filePath, password)
}

// PreviewMigrationBackup summarises a backup file without importing it.
func (a *App) PreviewMigrationBackup(filePath, password string) (*migration.Summary, error) {
	return migration.Preview(filePath, password)
}
