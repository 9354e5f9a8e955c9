// Package objectstore moves archives to and from an S3 compatible bucket
// in fixed-size chunks, never holding a whole object in memory.
package objectstore

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/outofsight/internal/common"
	"github.com/dmitrijs2005/outofsight/internal/logging"
)

// S3API is the subset of *s3.Client used by Client.
type S3API interface {
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

var _ S3API = (*s3.Client)(nil)

// abortTimeout bounds the cleanup call issued after a failed multipart upload.
const abortTimeout = 30 * time.Second

// Client is safe for concurrent use as long as the underlying S3API is.
type Client struct {
	api        S3API
	chunkSize  int
	allowEmpty bool
	logger     logging.Logger
}

// Option tweaks a Client.
type Option func(*Client)

// WithChunkSize sets the part size for uploads and the read size for
// downloads. Non-positive values are ignored.
func WithChunkSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithEmptyObjects allows uploading zero-byte sources.
func WithEmptyObjects(allow bool) Option {
	return func(c *Client) { c.allowEmpty = allow }
}

// WithLogger sets the logger used for upload and cleanup diagnostics.
// Without it the client logs nothing.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a client over api that uploads in common.DefaultChunkSize parts
// unless WithChunkSize says otherwise.
func New(api S3API, opts ...Option) *Client {
	c := &Client{
		api:       api,
		chunkSize: common.DefaultChunkSize,
		logger:    logging.Discard(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ChunkSize returns the configured part size.
func (c *Client) ChunkSize() int {
	return c.chunkSize
}

func hasCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.ErrorCode() == code {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	return hasCode(err, "NoSuchKey", "NotFound")
}
