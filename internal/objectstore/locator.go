package objectstore

import (
	"path"
	"strings"

	"github.com/dmitrijs2005/outofsight/internal/common"
)

// Locator addresses a stored object.
type Locator struct {
	Bucket string
	Key    string
	// Name is the last path element of Key.
	Name string
}

// FormatLocator renders bucket and key as "s3://bucket/key".
func FormatLocator(bucket, key string) string {
	return common.LocatorScheme + bucket + "/" + key
}

// ParseLocator splits "scheme://bucket/key" on the first slash after the
// scheme. A string without a scheme is taken as a bare key and the returned
// Bucket is empty; callers fill in their default bucket.
func ParseLocator(locator string) Locator {
	var l Locator

	i := strings.Index(locator, "://")
	if i < 0 {
		l.Key = locator
	} else {
		rest := locator[i+3:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			l.Bucket, l.Key = rest[:j], rest[j+1:]
		} else {
			l.Bucket = rest
		}
	}

	if l.Key != "" {
		l.Name = path.Base(l.Key)
	}
	return l
}

// OrBucket returns l with Bucket set to def when it is empty.
func (l Locator) OrBucket(def string) Locator {
	if l.Bucket == "" {
		l.Bucket = def
	}
	return l
}

func (l Locator) String() string {
	if l.Bucket == "" {
		return l.Key
	}
	return FormatLocator(l.Bucket, l.Key)
}
