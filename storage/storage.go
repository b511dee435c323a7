// Package storage wraps the S3-compatible bucket profiles and images live in.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// ErrObjectNotFound is returned by Get when the key does not exist.
var ErrObjectNotFound = errors.New("storage: object not found")

// PutOptions controls how an object is written.
type PutOptions struct {
	ContentType  string
	CacheControl string
	PublicRead   bool
}

// ObjectStore is the subset of object storage the pipeline needs.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) error
	Delete(ctx context.Context, key string) error
	// PublicURL returns the public address of key.
	PublicURL(key string) string
	// Owns reports whether rawURL already points into this store.
	Owns(rawURL string) bool
	Bucket() string
}

// ProfileKey returns the object key of a profile document.
func ProfileKey(communityID, templateName, userID string) string {
	return fmt.Sprintf("profiles/%s/%s/%s.json", communityID, templateName, userID)
}

// ImageKey returns the object key of a profile image. ext has no leading dot.
func ImageKey(communityID, templateName, userID, ext string) string {
	return fmt.Sprintf("images/%s/%s/%s.%s", communityID, templateName, userID, strings.TrimPrefix(ext, "."))
}

// EscapeKey percent-encodes every path segment of key, keeping the slashes.
func EscapeKey(key string) string {
	segments := strings.Split(strings.TrimPrefix(key, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

// JoinURL joins base, bucket and the escaped key into an absolute URL.
func JoinURL(base, bucket, key string) string {
	base = strings.TrimSuffix(strings.TrimSpace(base), "/")
	return fmt.Sprintf("%s/%s/%s", base, url.PathEscape(bucket), EscapeKey(key))
}
