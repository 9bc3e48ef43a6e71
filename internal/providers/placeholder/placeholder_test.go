package placeholder

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"imagegate/internal/providers"
)

func TestGenerateRendersRequestedSize(t *testing.T) {
	img, err := New(Config{}).Generate(context.Background(), providers.GenerateRequest{RequestID: "req-1", Width: 120, Height: 80})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if img.MimeType != "image/png" {
		t.Fatalf("unexpected mime %q", img.MimeType)
	}
	decoded, err := png.Decode(bytes.NewReader(img.Bytes))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 120 || b.Dy() != 80 {
		t.Fatalf("unexpected bounds %v", b)
	}
}

func TestGenerateIsStablePerRequest(t *testing.T) {
	c := New(Config{})
	if c.colorFor("req-1") != c.colorFor("req-1") {
		t.Fatalf("colour must be stable for one request id")
	}
}

func TestGenerateRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(Config{}).Generate(ctx, providers.GenerateRequest{}); err == nil {
		t.Fatalf("expected context error")
	}
}
