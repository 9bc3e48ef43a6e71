// Package local stores objects on the filesystem under a directory that the HTTP
// layer serves.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"imagegate/internal/blobstore"
)

type Config struct {
	Dir           string
	PublicBaseURL string
	// MaxBytes rejects larger objects; zero means no limit.
	MaxBytes int64
}

type Backend struct {
	cfg Config
}

func New(cfg Config) (*Backend, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("local storage dir is empty")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	cfg.PublicBaseURL = strings.TrimSuffix(cfg.PublicBaseURL, "/")
	return &Backend{cfg: cfg}, nil
}

var _ blobstore.Backend = (*Backend)(nil)

func (b *Backend) Put(ctx context.Context, obj blobstore.Object) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &blobstore.Error{Code: blobstore.CodeUnavailable, Err: err}
	}
	if b.cfg.MaxBytes > 0 && int64(len(obj.Bytes)) > b.cfg.MaxBytes {
		return "", &blobstore.Error{Code: blobstore.CodeObjectTooLarge, Err: fmt.Errorf("object is %d bytes, limit %d", len(obj.Bytes), b.cfg.MaxBytes)}
	}

	path, err := b.pathFor(obj.Key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", classify(fmt.Errorf("create object dir: %w", err))
	}
	if err := writeAtomic(path, obj.Bytes); err != nil {
		return "", classify(err)
	}
	return b.cfg.PublicBaseURL + "/" + obj.Key, nil
}

func (b *Backend) pathFor(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(b.cfg.Dir, clean), nil
}

// writeAtomic writes to a temp file in the target directory and renames it into
// place so readers never see a partial object.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close object: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod object: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename object: %w", err)
	}
	return nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, syscall.ENOSPC), errors.Is(err, syscall.EDQUOT):
		return &blobstore.Error{Code: blobstore.CodeQuotaExceeded, Err: err}
	case errors.Is(err, syscall.EFBIG):
		return &blobstore.Error{Code: blobstore.CodeObjectTooLarge, Err: err}
	}
	return err
}
