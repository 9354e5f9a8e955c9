package objectstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/outofsight/internal/common"
)

// Delete removes bucket/key. It returns common.ErrObjectNotFound when the
// object does not exist and false with a common.ErrDeletion error for any
// other failure.
func (c *Client) Delete(ctx context.Context, bucket, key string) (bool, error) {
	_, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, fmt.Errorf("%w: %s/%s", common.ErrObjectNotFound, bucket, key)
		}
		return false, fmt.Errorf("%w: head %s/%s: %v", common.ErrDeletion, bucket, key, err)
	}

	if _, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return false, fmt.Errorf("%w: %s/%s: %v", common.ErrDeletion, bucket, key, err)
	}

	return true, nil
}
