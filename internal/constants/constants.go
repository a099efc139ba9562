// Package constants centralizes thresholds and timeouts shared across the
// transfer engine and the command surface.
package constants

import (
	"time"
)

// Storage operation thresholds
const (
	// MultipartThreshold - files larger than this use multipart upload (100 MB).
	// At or below the threshold a single PutObject is cheaper than the
	// multipart handshake.
	MultipartThreshold = 100 * 1024 * 1024

	// DefaultChunkSize - chunk size for the non-interactive multipart path (10 MB).
	DefaultChunkSize = 10 * 1024 * 1024

	// ProgressChunkSize - chunk size for the interactive multipart path (5 MB).
	// Smaller chunks mean more frequent progress callbacks.
	ProgressChunkSize = 5 * 1024 * 1024

	// MinChunkSize - S3 protocol minimum part size (5 MB, except last part).
	// Requested chunk sizes are clamped up to this floor.
	MinChunkSize = 5 * 1024 * 1024
)

// Upload concurrency
const (
	// MaxConcurrentParts - number of parts in flight per upload.
	// Memory in flight is bounded by chunk size times this value.
	MaxConcurrentParts = 8

	// PauseTick - how often a paused worker re-checks the pause/cancel flags.
	PauseTick = 100 * time.Millisecond
)

// Object store client timeouts. OperationTimeout, ConnectTimeout, and
// ReadTimeout are wired into the HTTP client; OperationAttemptTimeout bounds
// each request context in internal/r2.
const (
	OperationTimeout        = 300 * time.Second
	OperationAttemptTimeout = 120 * time.Second
	ConnectTimeout          = 30 * time.Second
	ReadTimeout             = 60 * time.Second
)

// Download streaming
const (
	// DownloadChunkSize - size of the read buffer when streaming a GET body
	// to disk (1 MB). Also the progress-callback granularity.
	DownloadChunkSize = 1 * 1024 * 1024
)

// Event bus sizing
const (
	EventBusDefaultBuffer = 1000
	EventBusMaxBuffer     = 10000
)

// Backup export
const (
	// MinBackupPasswordLen - enforced on export only; import accepts any
	// password so older backups stay readable.
	MinBackupPasswordLen = 6
)
