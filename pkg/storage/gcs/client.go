package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/nclamvn/prismy-production-sub017/pkg/config"
	"github.com/nclamvn/prismy-production-sub017/pkg/logger"
)

const pingTimeout = 5 * time.Second

// ErrObjectNotFound is returned when the requested object key does not exist.
var ErrObjectNotFound = errors.New("gcs: object not found")

// Client wraps the GCS SDK with the narrow object surface the platform needs.
type Client struct {
	raw    *storage.Client
	bucket string
}

// Pinger exposes the health check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewClient opens a GCS client bound to the configured bucket and verifies access.
func NewClient(ctx context.Context, cfg config.GCSConfig, logg *logger.Logger) (*Client, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	raw, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}

	client := &Client{raw: raw, bucket: cfg.BucketName}

	if err := client.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "gcs client initialized")
	}

	return client, nil
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	if c == nil {
		return ""
	}
	return c.bucket
}

// Close releases the underlying client.
func (c *Client) Close() error {
	if c == nil || c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

// Ping verifies the bucket is reachable with the current credentials.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.raw == nil {
		return errors.New("gcs client not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if _, err := c.raw.Bucket(c.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("bucket attrs: %w", err)
	}
	return nil
}

// Upload writes data under key, overwriting any existing object.
func (c *Client) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if c == nil || c.raw == nil {
		return errors.New("gcs client not initialized")
	}
	w := c.raw.Bucket(c.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("writing object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing object %s: %w", key, err)
	}
	return nil
}

// Download reads the whole object stored at key.
func (c *Client) Download(ctx context.Context, key string) ([]byte, error) {
	if c == nil || c.raw == nil {
		return nil, errors.New("gcs client not initialized")
	}
	r, err := c.raw.Bucket(c.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("opening object %s: %w", key, err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the object stored at key. Deleting a missing object is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	if c == nil || c.raw == nil {
		return errors.New("gcs client not initialized")
	}
	if err := c.raw.Bucket(c.bucket).Object(key).Delete(ctx); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("deleting object %s: %w", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return true
	}
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
