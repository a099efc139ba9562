package r2

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/joshfom/tauri-drive/internal/constants"
	"github.com/joshfom/tauri-drive/internal/types"
)

// DownloadProgressFunc reports streaming download progress.
type DownloadProgressFunc func(downloadedBytes, totalBytes int64, speed float64, eta int64)

// attemptContext bounds one request attempt with the per-attempt timeout.
func attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, constants.OperationAttemptTimeout)
}

// ListObjects lists objects in the bucket, optionally under a prefix.
func (c *Client) ListObjects(ctx context.Context, prefix string) ([]types.Object, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	ctx, cancel := attemptContext(ctx)
	defer cancel()

	resp, err := c.api.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	objects := make([]types.Object, 0, len(resp.Contents))
	for _, obj := range resp.Contents {
		o := types.Object{
			Key:  aws.ToString(obj.Key),
			Size: aws.ToInt64(obj.Size),
			ETag: aws.ToString(obj.ETag),
		}
		if obj.LastModified != nil {
			o.LastModified = *obj.LastModified
		}
		objects = append(objects, o)
	}
	return objects, nil
}

// PutObjectFile uploads a whole file with a single PutObject and returns the
// ETag. Used for files at or below the multipart threshold.
func (c *Client) PutObjectFile(ctx context.Context, key, filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat file: %w", err)
	}

	ctx, cancel := attemptContext(ctx)
	defer cancel()

	resp, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object: %w", err)
	}
	return aws.ToString(resp.ETag), nil
}

// PutObjectBytes uploads raw bytes under a key. A zero-length body with a
// trailing-slash key marks a folder.
func (c *Client) PutObjectBytes(ctx context.Context, key string, data []byte) (string, error) {
	ctx, cancel := attemptContext(ctx)
	defer cancel()

	resp, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object: %w", err)
	}
	return aws.ToString(resp.ETag), nil
}

// GetObjectStreaming downloads an object to a local file, writing the body in
// chunks and reporting progress after each chunk. The whole object is never
// held in memory.
func (c *Client) GetObjectStreaming(ctx context.Context, key, localPath string, progress DownloadProgressFunc) error {
	// Not bounded by the per-attempt timeout: cancelling the request context
	// would cut off the body mid-stream. The client-level operation timeout
	// still caps the whole transfer.
	resp, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to get object: %w", err)
	}
	defer resp.Body.Close()

	totalSize := aws.ToInt64(resp.ContentLength)

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer file.Close()

	buffer := make([]byte, constants.DownloadChunkSize)
	var downloaded int64
	startTime := time.Now()

	for {
		n, readErr := resp.Body.Read(buffer)
		if n > 0 {
			if _, err := file.Write(buffer[:n]); err != nil {
				return fmt.Errorf("failed to write local file: %w", err)
			}
			downloaded += int64(n)

			if progress != nil {
				elapsed := time.Since(startTime).Seconds()
				var speed float64
				if elapsed > 0 {
					speed = float64(downloaded) / elapsed
				}
				var eta int64
				if speed > 0 {
					eta = int64(float64(totalSize-downloaded) / speed)
				}
				progress(downloaded, totalSize, speed, eta)
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return fmt.Errorf("failed to read object body: %w", readErr)
		}
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to flush local file: %w", err)
	}
	return nil
}

// DeleteObject removes one object.
func (c *Client) DeleteObject(ctx context.Context, key string) error {
	ctx, cancel := attemptContext(ctx)
	defer cancel()

	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// CopyObject copies an object within the bucket.
func (c *Client) CopyObject(ctx context.Context, sourceKey, destKey string) error {
	copySource := fmt.Sprintf("%s/%s", c.bucket, sourceKey)

	ctx, cancel := attemptContext(ctx)
	defer cancel()

	_, err := c.api.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(c.bucket),
		CopySource: aws.String(copySource),
		Key:        aws.String(destKey),
	})
	if err != nil {
		return fmt.Errorf("failed to copy object: %w", err)
	}
	return nil
}

// ListMultipartUploads lists in-progress multipart sessions in the bucket.
func (c *Client) ListMultipartUploads(ctx context.Context) (*s3.ListMultipartUploadsOutput, error) {
	ctx, cancel := attemptContext(ctx)
	defer cancel()

	resp, err := c.api.ListMultipartUploads(ctx, &s3.ListMultipartUploadsInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list multipart uploads: %w", err)
	}
	return resp, nil
}
