// Package blobstore writes generated image bytes to a named storage backend and
// returns a retrievable URL.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"
)

const (
	CodeStorageError   = "STORAGE_ERROR"
	CodeQuotaExceeded  = "QUOTA_EXCEEDED"
	CodeObjectTooLarge = "OBJECT_TOO_LARGE"
	CodeUnavailable    = "UNAVAILABLE"
)

var safeMessages = map[string]string{
	CodeStorageError:   "The generated image could not be saved.",
	CodeQuotaExceeded:  "Image storage quota has been reached.",
	CodeObjectTooLarge: "The generated image is too large to store.",
	CodeUnavailable:    "Image storage is temporarily unavailable.",
}

type Object struct {
	Key      string
	Bytes    []byte
	MimeType string
}

type Backend interface {
	Put(ctx context.Context, obj Object) (url string, err error)
}

// Error lets a backend surface a specific code instead of STORAGE_ERROR.
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "blobstore: " + e.Code
	}
	return fmt.Sprintf("blobstore %s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type WriteRequest struct {
	RequestID string
	Bytes     []byte
	MimeType  string
}

type WriteResult struct {
	OK               bool
	URL              string
	Key              string
	ErrorCode        string
	ErrorMessageSafe string
	// Err is for operator logs only.
	Err error
}

type Registry struct {
	byName map[string]Backend
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]Backend{}}
}

// Register is called while wiring, before the registry is shared.
func (r *Registry) Register(name string, b Backend) {
	r.byName[name] = b
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Write stores req under a fresh key. Every failure, including a backend panic,
// becomes a typed WriteResult.
func (r *Registry) Write(ctx context.Context, name string, req WriteRequest) (res WriteResult) {
	b, ok := r.byName[name]
	if !ok {
		return failure(fmt.Errorf("unknown storage backend %q", name))
	}
	if len(req.Bytes) == 0 {
		return failure(errors.New("empty object"))
	}
	defer func() {
		if rec := recover(); rec != nil {
			res = failure(fmt.Errorf("storage backend panic: %v", rec))
		}
	}()

	key := ObjectKey(req.RequestID, req.MimeType)
	url, err := b.Put(ctx, Object{Key: key, Bytes: req.Bytes, MimeType: req.MimeType})
	if err != nil {
		return failure(err)
	}
	if strings.TrimSpace(url) == "" {
		return failure(errors.New("backend returned an empty url"))
	}
	return WriteResult{OK: true, URL: url, Key: key}
}

func failure(err error) WriteResult {
	code := CodeStorageError
	var be *Error
	if errors.As(err, &be) && be.Code != "" {
		code = be.Code
	}
	msg, ok := safeMessages[code]
	if !ok {
		msg = safeMessages[CodeStorageError]
	}
	return WriteResult{ErrorCode: code, ErrorMessageSafe: msg, Err: err}
}

// ObjectKey is images/<requestId>/<ulid><ext>. A new ulid per attempt keeps
// retries from overwriting or reusing an earlier object.
func ObjectKey(requestID, mimeType string) string {
	return "images/" + keySegment(requestID) + "/" + ulid.Make().String() + extension(mimeType)
}

func keySegment(v string) string {
	var b strings.Builder
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

func extension(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	return ".bin"
}
