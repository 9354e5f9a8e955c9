package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/outofsight/internal/common"
)

var errEmptySource = errors.New("empty source")

// UploadStream copies r to bucket/key as a multipart upload, one part per
// chunk, numbered from 1. Once the upload has been initiated any failure
// aborts it before returning an error wrapping common.ErrUpload.
func (c *Client) UploadStream(ctx context.Context, bucket, key string, r io.Reader) error {
	created, err := c.api.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("%w: initiate %s/%s: %v", common.ErrUpload, bucket, key, err)
	}
	uploadID := created.UploadId

	parts, err := c.uploadParts(ctx, bucket, key, uploadID, r)
	if err == nil {
		_, err = c.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
			Bucket:          aws.String(bucket),
			Key:             aws.String(key),
			UploadId:        uploadID,
			MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
		})
		if err != nil {
			err = fmt.Errorf("complete: %w", err)
		}
	}

	if err != nil {
		c.abort(ctx, bucket, key, uploadID)
		return fmt.Errorf("%w: %s/%s: %v", common.ErrUpload, bucket, key, err)
	}

	c.logger.Debug(ctx, "multipart upload completed", "bucket", bucket, "key", key, "parts", len(parts))
	return nil
}

func (c *Client) uploadParts(ctx context.Context, bucket, key string, uploadID *string, r io.Reader) ([]types.CompletedPart, error) {
	var parts []types.CompletedPart
	buf := make([]byte, c.chunkSize)

	for partNumber := int32(1); ; partNumber++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, rerr := io.ReadFull(r, buf)
		if rerr != nil && !errors.Is(rerr, io.EOF) && !errors.Is(rerr, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("read source: %w", rerr)
		}

		if n == 0 {
			if len(parts) > 0 {
				return parts, nil
			}
			if !c.allowEmpty {
				return nil, errEmptySource
			}
		}

		out, err := c.api.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			UploadId:      uploadID,
			PartNumber:    aws.Int32(partNumber),
			Body:          bytes.NewReader(buf[:n]),
			ContentLength: aws.Int64(int64(n)),
		})
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", partNumber, err)
		}

		parts = append(parts, types.CompletedPart{
			ETag:       out.ETag,
			PartNumber: aws.Int32(partNumber),
		})

		// a short read means the source is exhausted
		if n < len(buf) {
			return parts, nil
		}
	}
}

func (c *Client) abort(ctx context.Context, bucket, key string, uploadID *string) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()

	_, err := c.api.AbortMultipartUpload(actx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: uploadID,
	})
	if err != nil {
		c.logger.Error(ctx, "abort multipart upload failed", "bucket", bucket, "key", key, "err", err)
		return
	}
	c.logger.Warn(ctx, "multipart upload aborted", "bucket", bucket, "key", key)
}
