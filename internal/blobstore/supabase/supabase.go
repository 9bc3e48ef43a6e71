// Package supabase stores objects in a public Supabase Storage bucket.
package supabase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	storage "github.com/supabase-community/storage-go"

	"imagegate/internal/blobstore"
)

type Config struct {
	URL        string
	ServiceKey string
	Bucket     string
	Timeout    time.Duration
}

type uploader interface {
	UploadFile(bucketID, relativePath string, data *bytes.Reader, contentType string) error
}

type Backend struct {
	up      uploader
	bucket  string
	baseURL string
	timeout time.Duration
}

func New(cfg Config) (*Backend, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" || cfg.ServiceKey == "" || cfg.Bucket == "" {
		return nil, errors.New("supabase storage needs url, service key and bucket")
	}
	client := storage.NewClient(baseURL+"/storage/v1", cfg.ServiceKey, nil)
	return newBackend(storageUploader{client: client}, baseURL, cfg.Bucket, cfg.Timeout), nil
}

func newBackend(up uploader, baseURL, bucket string, timeout time.Duration) *Backend {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Backend{up: up, bucket: bucket, baseURL: baseURL, timeout: timeout}
}

var _ blobstore.Backend = (*Backend)(nil)

// Put uploads with upsert and returns the public object URL. storage-go takes no
// context, so the call runs in a goroutine bounded by the timeout; a timed-out
// upload may still complete in the background under its unique key.
func (b *Backend) Put(ctx context.Context, obj blobstore.Object) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- b.up.UploadFile(b.bucket, obj.Key, bytes.NewReader(obj.Bytes), obj.MimeType)
	}()

	select {
	case <-ctx.Done():
		return "", &blobstore.Error{Code: blobstore.CodeUnavailable, Err: fmt.Errorf("supabase upload: %w", ctx.Err())}
	case err := <-done:
		if err != nil {
			return "", classify(err)
		}
	}
	return b.PublicURL(obj.Key), nil
}

func (b *Backend) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", b.baseURL, b.bucket, key)
}

func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "payload too large") || strings.Contains(msg, "exceeded the maximum allowed size"):
		return &blobstore.Error{Code: blobstore.CodeObjectTooLarge, Err: err}
	case strings.Contains(msg, "quota"):
		return &blobstore.Error{Code: blobstore.CodeQuotaExceeded, Err: err}
	}
	return fmt.Errorf("supabase upload: %w", err)
}

type storageUploader struct {
	client *storage.Client
}

func (s storageUploader) UploadFile(bucketID, relativePath string, data *bytes.Reader, contentType string) error {
	upsert := true
	_, err := s.client.UploadFile(bucketID, relativePath, data, storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	return err
}
