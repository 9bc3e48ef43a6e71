package supabase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"imagegate/internal/blobstore"
)

type fakeUploader struct {
	gotBucket, gotPath, gotType string
	gotBytes                    []byte
	err                         error
	block                       chan struct{}
}

func (f *fakeUploader) UploadFile(bucketID, relativePath string, data *bytes.Reader, contentType string) error {
	if f.block != nil {
		<-f.block
	}
	f.gotBucket, f.gotPath, f.gotType = bucketID, relativePath, contentType
	f.gotBytes, _ = io.ReadAll(data)
	return f.err
}

func TestPutReturnsPublicURL(t *testing.T) {
	up := &fakeUploader{}
	b := newBackend(up, "https://proj.supabase.co", "images", time.Second)

	url, err := b.Put(context.Background(), blobstore.Object{Key: "images/req-1/01H.png", Bytes: []byte("png"), MimeType: "image/png"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if url != "https://proj.supabase.co/storage/v1/object/public/images/images/req-1/01H.png" {
		t.Fatalf("unexpected url %q", url)
	}
	if up.gotBucket != "images" || up.gotType != "image/png" || string(up.gotBytes) != "png" {
		t.Fatalf("unexpected upload %+v", up)
	}
}

func TestPutClassifiesErrors(t *testing.T) {
	b := newBackend(&fakeUploader{err: errors.New(`{"statusCode":"413","error":"Payload too large"}`)}, "https://p", "b", time.Second)
	_, err := b.Put(context.Background(), blobstore.Object{Key: "k", Bytes: []byte("x")})
	var be *blobstore.Error
	if !errors.As(err, &be) || be.Code != blobstore.CodeObjectTooLarge {
		t.Fatalf("expected OBJECT_TOO_LARGE, got %v", err)
	}
}

func TestPutTimesOut(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	b := newBackend(&fakeUploader{block: block}, "https://p", "b", 20*time.Millisecond)

	_, err := b.Put(context.Background(), blobstore.Object{Key: "k", Bytes: []byte("x")})
	var be *blobstore.Error
	if !errors.As(err, &be) || be.Code != blobstore.CodeUnavailable {
		t.Fatalf("expected UNAVAILABLE, got %v", err)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{URL: "https://p"}); err == nil {
		t.Fatalf("expected error for missing key and bucket")
	}
}
