package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/outofsight/internal/common"
)

// DownloadStream returns a lazy sequence of chunks of bucket/key. The object
// is requested when iteration starts and its body is closed when the sequence
// ends or the consumer stops early. A missing key yields
// common.ErrObjectNotFound, other failures common.ErrDownload; after an error
// the sequence stops.
func (c *Client) DownloadStream(ctx context.Context, bucket, key string) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if isNotFound(err) {
				yield(nil, fmt.Errorf("%w: %s/%s", common.ErrObjectNotFound, bucket, key))
				return
			}
			yield(nil, fmt.Errorf("%w: get %s/%s: %v", common.ErrDownload, bucket, key, err))
			return
		}
		defer out.Body.Close()

		for {
			chunk := make([]byte, c.chunkSize)
			n, err := io.ReadFull(out.Body, chunk)
			if n > 0 {
				if !yield(chunk[:n], nil) {
					return
				}
			}

			switch {
			case err == nil:
				continue
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
				return
			default:
				yield(nil, fmt.Errorf("%w: read %s/%s: %v", common.ErrDownload, bucket, key, err))
				return
			}
		}
	}
}

// CopyTo drains DownloadStream(bucket, key) into w and returns the number of
// bytes written.
func (c *Client) CopyTo(ctx context.Context, bucket, key string, w io.Writer) (int64, error) {
	var total int64
	for chunk, err := range c.DownloadStream(ctx, bucket, key) {
		if err != nil {
			return total, err
		}
		n, err := w.Write(chunk)
		total += int64(n)
		if err != nil {
			return total, fmt.Errorf("%w: write: %v", common.ErrDownload, err)
		}
	}
	return total, nil
}
