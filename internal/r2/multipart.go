package r2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/joshfom/tauri-drive/internal/constants"
)

var (
	// ErrCancelled is returned when the cancel flag is observed by a worker
	// or the producer. The session is aborted before it surfaces.
	ErrCancelled = errors.New("upload cancelled")

	// ErrCompletionMismatch is returned when the completed-parts count does
	// not equal the expected part count. The session is aborted.
	ErrCompletionMismatch = errors.New("completed parts do not match expected count")
)

// ProgressFunc reports upload progress. speed is bytes/second averaged over
// the driver lifetime; eta is whole seconds remaining at that speed.
type ProgressFunc func(uploadedBytes, totalBytes int64, speed float64, eta int64)

// PartRecord is one uploaded part: its number, the byte count it carried and
// the ETag the store returned for it.
type PartRecord struct {
	PartNumber int32
	Size       int64
	ETag       string
}

// MultipartUpload drives one multipart session: it owns the object-store
// session id and guarantees that every terminal outcome either completes or
// aborts it.
//
// Up to MaxConcurrentParts parts are in flight at once. Pause and cancel are
// cooperative flags observed by workers at defined checkpoints; no request in
// flight is interrupted.
type MultipartUpload struct {
	client    S3API
	bucket    string
	key       string
	uploadID  string
	chunkSize int64

	paused    atomic.Bool
	cancelled atomic.Bool

	uploadedSize atomic.Int64
	startTime    time.Time

	partsMu sync.Mutex
	parts   []PartRecord

	// callbackMu serialises progress and part callbacks so concurrent part
	// completions do not race on the consumer.
	callbackMu sync.Mutex
}

// NewMultipartUpload opens a multipart session for key. chunkSize is clamped
// to the S3 minimum part size; pass 0 for the default.
func NewMultipartUpload(ctx context.Context, client S3API, bucket, key string, chunkSize int64) (*MultipartUpload, error) {
	if chunkSize <= 0 {
		chunkSize = constants.DefaultChunkSize
	}
	if chunkSize < constants.MinChunkSize {
		chunkSize = constants.MinChunkSize
	}

	createCtx, cancel := context.WithTimeout(ctx, constants.OperationAttemptTimeout)
	defer cancel()

	resp, err := client.CreateMultipartUpload(createCtx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart upload: %w", err)
	}
	if resp.UploadId == nil || *resp.UploadId == "" {
		return nil, fmt.Errorf("no upload id returned")
	}

	return &MultipartUpload{
		client:    client,
		bucket:    bucket,
		key:       key,
		uploadID:  *resp.UploadId,
		chunkSize: chunkSize,
	}, nil
}

// UploadID returns the object-store session id.
func (u *MultipartUpload) UploadID() string {
	return u.uploadID
}

// ChunkSize returns the effective (clamped) chunk size.
func (u *MultipartUpload) ChunkSize() int64 {
	return u.chunkSize
}

// Pause makes workers idle before their next part. In-flight parts finish.
func (u *MultipartUpload) Pause() {
	u.paused.Store(true)
}

// Resume clears the pause flag.
func (u *MultipartUpload) Resume() {
	u.paused.Store(false)
}

// Cancel sets the cancel flag. Workers abandon at their next checkpoint and
// the driver aborts the session.
func (u *MultipartUpload) Cancel() {
	u.cancelled.Store(true)
}

// Paused reports the pause flag.
func (u *MultipartUpload) Paused() bool {
	return u.paused.Load()
}

// NumParts returns the part count for a file of totalSize bytes.
func (u *MultipartUpload) NumParts(totalSize int64) int32 {
	return int32((totalSize + u.chunkSize - 1) / u.chunkSize)
}

// OnPartFunc is invoked after each part finishes uploading, before the
// progress callback. Invocations are serialised but not ordered by part
// number.
type OnPartFunc func(part PartRecord)

// UploadFile streams the file through the part pool, then completes the
// session. On any failure — part error, worker panic, cancellation, or a
// completed-part count mismatch — the session is aborted (best effort) and
// the underlying error is returned.
func (u *MultipartUpload) UploadFile(ctx context.Context, filePath string, progress ProgressFunc, onPart OnPartFunc) error {
	file, err := os.Open(filePath)
	if err != nil {
		u.abort(ctx)
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		u.abort(ctx)
		return fmt.Errorf("failed to stat file: %w", err)
	}
	totalSize := info.Size()
	numParts := u.NumParts(totalSize)

	u.startTime = time.Now()

	// Counting semaphore bounding parts in flight. The producer acquires a
	// permit before reading the next chunk, so buffered memory never exceeds
	// chunkSize * MaxConcurrentParts.
	sem := make(chan struct{}, constants.MaxConcurrentParts)

	var wg sync.WaitGroup
	var errMu sync.Mutex
	var firstErr error

	setErr := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
	}
	failed := func() bool {
		errMu.Lock()
		defer errMu.Unlock()
		return firstErr != nil
	}

	// Parts are read sequentially and dispatched in ascending order; the
	// order workers finish in is unconstrained.
	for partNumber := int32(1); partNumber <= numParts; partNumber++ {
		if failed() {
			break
		}
		if u.cancelled.Load() {
			setErr(ErrCancelled)
			break
		}

		sem <- struct{}{}

		offset := int64(partNumber-1) * u.chunkSize
		bytesToRead := u.chunkSize
		if offset+bytesToRead > totalSize {
			bytesToRead = totalSize - offset
		}

		buffer := make([]byte, bytesToRead)
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			<-sem
			setErr(fmt.Errorf("failed to seek to part %d: %w", partNumber, err))
			break
		}
		if _, err := io.ReadFull(file, buffer); err != nil {
			<-sem
			setErr(fmt.Errorf("failed to read part %d: %w", partNumber, err))
			break
		}

		wg.Add(1)
		go func(partNumber int32, data []byte) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					setErr(fmt.Errorf("upload task panicked: %v", r))
				}
			}()

			if err := u.uploadPart(ctx, partNumber, data, totalSize, progress, onPart); err != nil {
				setErr(err)
			}
		}(partNumber, buffer)
	}

	wg.Wait()

	if u.cancelled.Load() {
		u.abort(ctx)
		return ErrCancelled
	}
	errMu.Lock()
	err = firstErr
	errMu.Unlock()
	if err != nil {
		u.abort(ctx)
		return err
	}

	u.partsMu.Lock()
	completed := make([]PartRecord, len(u.parts))
	copy(completed, u.parts)
	u.partsMu.Unlock()

	if int32(len(completed)) != numParts {
		u.abort(ctx)
		return fmt.Errorf("%w: have %d, want %d", ErrCompletionMismatch, len(completed), numParts)
	}

	if err := u.Complete(ctx, completed); err != nil {
		u.abort(ctx)
		return err
	}
	return nil
}

// uploadPart is the body of one worker task.
func (u *MultipartUpload) uploadPart(ctx context.Context, partNumber int32, data []byte, totalSize int64, progress ProgressFunc, onPart OnPartFunc) error {
	if u.cancelled.Load() {
		return ErrCancelled
	}

	// Paused workers idle without consuming network until resume or cancel.
	for u.paused.Load() {
		if u.cancelled.Load() {
			return ErrCancelled
		}
		time.Sleep(constants.PauseTick)
	}

	// One attempt per part, bounded by the per-attempt timeout.
	partCtx, cancel := context.WithTimeout(ctx, constants.OperationAttemptTimeout)
	defer cancel()

	resp, err := u.client.UploadPart(partCtx, &s3.UploadPartInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(u.key),
		PartNumber:    aws.Int32(partNumber),
		UploadId:      aws.String(u.uploadID),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to upload part %d: %w", partNumber, err)
	}

	record := PartRecord{
		PartNumber: partNumber,
		Size:       int64(len(data)),
		ETag:       aws.ToString(resp.ETag),
	}

	u.uploadedSize.Add(record.Size)

	u.partsMu.Lock()
	u.parts = append(u.parts, record)
	u.partsMu.Unlock()

	u.callbackMu.Lock()
	defer u.callbackMu.Unlock()
	if onPart != nil {
		onPart(record)
	}
	if progress != nil {
		// Reading the counter under the callback mutex keeps observed
		// progress monotone even when completions race.
		uploaded := u.uploadedSize.Load()
		elapsed := time.Since(u.startTime).Seconds()
		var speed float64
		if elapsed > 0 {
			speed = float64(uploaded) / elapsed
		}
		var eta int64
		if speed > 0 {
			eta = int64(float64(totalSize-uploaded) / speed)
		}
		progress(uploaded, totalSize, speed, eta)
	}

	return nil
}

// Complete submits the part list, sorted ascending by part number. The store
// rejects unsorted part lists.
func (u *MultipartUpload) Complete(ctx context.Context, parts []PartRecord) error {
	sort.Slice(parts, func(i, j int) bool {
		return parts[i].PartNumber < parts[j].PartNumber
	})

	completedParts := make([]s3types.CompletedPart, len(parts))
	for i, p := range parts {
		completedParts[i] = s3types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(p.PartNumber),
		}
	}

	completeCtx, cancel := context.WithTimeout(ctx, constants.OperationAttemptTimeout)
	defer cancel()

	_, err := u.client.CompleteMultipartUpload(completeCtx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(u.bucket),
		Key:      aws.String(u.key),
		UploadId: aws.String(u.uploadID),
		MultipartUpload: &s3types.CompletedMultipartUpload{
			Parts: completedParts,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to complete multipart upload: %w", err)
	}
	return nil
}

// Abort aborts the session.
func (u *MultipartUpload) Abort(ctx context.Context) error {
	abortCtx, cancel := context.WithTimeout(ctx, constants.OperationAttemptTimeout)
	defer cancel()

	_, err := u.client.AbortMultipartUpload(abortCtx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(u.bucket),
		Key:      aws.String(u.key),
		UploadId: aws.String(u.uploadID),
	})
	if err != nil {
		return fmt.Errorf("failed to abort multipart upload: %w", err)
	}
	return nil
}

// abort is the best-effort variant used on failure paths.
func (u *MultipartUpload) abort(ctx context.Context) {
	_ = u.Abort(ctx)
}
