// Package r2 provides the object-store client and the multipart upload
// driver. Cloudflare R2 is the reference endpoint; any S3-compatible store
// speaking the standard multipart protocol works.
package r2

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/joshfom/tauri-drive/internal/constants"
)

// S3API is the slice of the S3 client consumed by this package. *s3.Client
// satisfies it; tests substitute a fake.
type S3API interface {
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	ListMultipartUploads(ctx context.Context, params *s3.ListMultipartUploadsInput, optFns ...func(*s3.Options)) (*s3.ListMultipartUploadsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
}

// Client wraps the S3 client with the bucket it operates on.
type Client struct {
	api    S3API
	bucket string
}

// NewClient builds a client for the R2 endpoint derived from the account id.
// Addressing is virtual-hosted-style and the region is the R2 literal "auto".
// The SDK retryer is disabled: one attempt per operation, failures surface to
// the caller.
func NewClient(ctx context.Context, accountID, accessKeyID, secretAccessKey, bucket string) (*Client, error) {
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)

	httpClient := &http.Client{
		Timeout: constants.OperationTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   constants.ConnectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ResponseHeaderTimeout: constants.ReadTimeout,
			MaxIdleConnsPerHost:   constants.MaxConcurrentParts,
			IdleConnTimeout:       90 * time.Second,
		},
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithHTTPClient(httpClient),
		awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
		awsconfig.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load client config: %w", err)
	}

	api := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	return &Client{api: api, bucket: bucket}, nil
}

// NewClientWithAPI wraps an existing API implementation. Used by tests.
func NewClientWithAPI(api S3API, bucket string) *Client {
	return &Client{api: api, bucket: bucket}
}

// API returns the underlying S3 API.
func (c *Client) API() S3API {
	return c.api
}

// Bucket returns the bucket this client operates on.
func (c *Client) Bucket() string {
	return c.bucket
}
