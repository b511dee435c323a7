package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Espresso-Aficionados/sprobot/config"
	"github.com/Espresso-Aficionados/sprobot/metrics"
)

const bucketCheckTimeout = 10 * time.Second

// MinioStore is an ObjectStore backed by any S3-compatible service.
type MinioStore struct {
	client    *minio.Client
	bucket    string
	endpoint  string
	publicURL string
}

var _ ObjectStore = (*MinioStore)(nil)

// NewMinioStore connects to the configured endpoint. The endpoint may be a
// full URL ("https://host:port") or a bare host, which implies TLS.
func NewMinioStore(cfg config.StorageConfig) (*MinioStore, error) {
	host, secure, err := splitEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: init minio client: %w", err)
	}

	endpoint := strings.TrimSuffix(cfg.Endpoint, "/")
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	publicURL := strings.TrimSuffix(strings.TrimSpace(cfg.PublicURL), "/")
	if publicURL == "" {
		publicURL = endpoint
	}

	return &MinioStore{
		client:    client,
		bucket:    cfg.Bucket,
		endpoint:  endpoint,
		publicURL: publicURL,
	}, nil
}

func splitEndpoint(raw string) (host string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, errors.New("storage: endpoint is empty")
	}
	if !strings.Contains(raw, "://") {
		return strings.TrimSuffix(raw, "/"), true, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("storage: parse endpoint: %w", err)
	}
	if parsed.Host == "" {
		return "", false, fmt.Errorf("storage: endpoint %q has no host", raw)
	}
	switch parsed.Scheme {
	case "https":
		return parsed.Host, true, nil
	case "http":
		return parsed.Host, false, nil
	default:
		return "", false, fmt.Errorf("storage: unsupported endpoint scheme %q", parsed.Scheme)
	}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, bucketCheckTimeout)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("storage: check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("storage: create bucket: %w", err)
		}
	}
	return nil
}

func (s *MinioStore) Bucket() string {
	return s.bucket
}

func (s *MinioStore) Get(ctx context.Context, key string) ([]byte, error) {
	defer observe("get", time.Now())

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapError(err)
	}
	return data, nil
}

func (s *MinioStore) Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) error {
	defer observe("put", time.Now())

	putOpts := minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		CacheControl: opts.CacheControl,
	}
	if opts.PublicRead {
		putOpts.UserMetadata = map[string]string{"x-amz-acl": "public-read"}
	}

	if _, err := s.client.PutObject(ctx, s.bucket, key, body, size, putOpts); err != nil {
		return fmt.Errorf("storage: put %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key succeeds.
func (s *MinioStore) Delete(ctx context.Context, key string) error {
	defer observe("delete", time.Now())

	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

func (s *MinioStore) PublicURL(key string) string {
	return JoinURL(s.publicURL, s.bucket, key)
}

func (s *MinioStore) Owns(rawURL string) bool {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return false
	}
	for _, base := range []string{s.publicURL, s.endpoint} {
		if base != "" && strings.HasPrefix(trimmed, base+"/") {
			return true
		}
	}
	return false
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func mapError(err error) error {
	if isNoSuchKey(err) {
		return ErrObjectNotFound
	}
	return err
}

func observe(operation string, start time.Time) {
	metrics.StorageOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
