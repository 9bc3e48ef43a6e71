package blobstore

import (
	"context"
	"errors"
	"regexp"
	"testing"
)

type backendFunc func(ctx context.Context, obj Object) (string, error)

func (f backendFunc) Put(ctx context.Context, obj Object) (string, error) {
	return f(ctx, obj)
}

func TestObjectKey(t *testing.T) {
	key := ObjectKey("req-123", "image/png")
	if !regexp.MustCompile(`^images/req-123/[0-9A-HJKMNP-TV-Z]{26}\.png$`).MatchString(key) {
		t.Fatalf("unexpected key %q", key)
	}
	if ObjectKey("req-123", "image/png") == key {
		t.Fatalf("keys must be unique per attempt")
	}
	if k := ObjectKey("../../etc/passwd", "text/plain"); !regexp.MustCompile(`^images/______etc_passwd/\w{26}\.bin$`).MatchString(k) {
		t.Fatalf("request id not sanitised: %q", k)
	}
}

func TestWrite(t *testing.T) {
	r := NewRegistry()
	var gotKey string
	r.Register("mem", backendFunc(func(_ context.Context, obj Object) (string, error) {
		gotKey = obj.Key
		return "https://cdn.example/" + obj.Key, nil
	}))

	res := r.Write(context.Background(), "mem", WriteRequest{RequestID: "req-1", Bytes: []byte("x"), MimeType: "image/jpeg"})
	if !res.OK || res.URL != "https://cdn.example/"+gotKey || res.Key != gotKey {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestWriteFailures(t *testing.T) {
	r := NewRegistry()
	r.Register("quota", backendFunc(func(context.Context, Object) (string, error) {
		return "", &Error{Code: CodeQuotaExceeded, Err: errors.New("bucket full: tenant 77")}
	}))
	r.Register("plain", backendFunc(func(context.Context, Object) (string, error) {
		return "", errors.New("connection reset by peer")
	}))
	r.Register("panics", backendFunc(func(context.Context, Object) (string, error) {
		panic("nil map")
	}))
	r.Register("nourl", backendFunc(func(context.Context, Object) (string, error) {
		return "", nil
	}))

	tests := []struct {
		name  string
		store string
		bytes []byte
		code  string
	}{
		{"specific code", "quota", []byte("x"), CodeQuotaExceeded},
		{"plain error", "plain", []byte("x"), CodeStorageError},
		{"panic", "panics", []byte("x"), CodeStorageError},
		{"empty url", "nourl", []byte("x"), CodeStorageError},
		{"unknown backend", "s3", []byte("x"), CodeStorageError},
		{"empty bytes", "plain", nil, CodeStorageError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Write(context.Background(), tt.store, WriteRequest{RequestID: "r", Bytes: tt.bytes})
			if res.OK || res.ErrorCode != tt.code {
				t.Fatalf("unexpected result %+v", res)
			}
			if res.ErrorMessageSafe == "" || res.ErrorMessageSafe != safeMessages[tt.code] {
				t.Fatalf("unexpected message %q", res.ErrorMessageSafe)
			}
		})
	}
}
