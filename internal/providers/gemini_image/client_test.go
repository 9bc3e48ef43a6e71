package gemini_image

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"imagegate/internal/providers"
)

func TestAspectRatio(t *testing.T) {
	tests := map[[2]int]string{
		{1080, 1080}: "1:1",
		{1080, 1350}: "4:5",
		{1080, 1920}: "9:16",
		{1200, 628}:  "16:9",
		{1000, 1500}: "2:3",
		{0, 0}:       "1:1",
	}
	for in, want := range tests {
		if got := aspectRatio(in[0], in[1]); got != want {
			t.Fatalf("aspectRatio(%d,%d) = %s, want %s", in[0], in[1], got, want)
		}
	}
}

func TestGenerateReturnsInlineImage(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-flash-image:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "g-key" {
			t.Errorf("missing api key header")
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{"parts": []any{
					map[string]any{"text": "here you go"},
					map[string]any{"inlineData": map[string]string{"mimeType": "image/png", "data": base64.StdEncoding.EncodeToString([]byte("png-bytes"))}},
				}},
			}},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/v1beta", APIKey: "g-key"})
	img, err := c.Generate(context.Background(), providers.GenerateRequest{Width: 1080, Height: 1080})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if string(img.Bytes) != "png-bytes" || img.MimeType != "image/png" {
		t.Fatalf("unexpected image %q %q", img.Bytes, img.MimeType)
	}
	cfg, _ := gotBody["generationConfig"].(map[string]any)
	if cfg == nil {
		t.Fatalf("generationConfig missing")
	}
}

func TestGenerateBlockedPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL, APIKey: "k"}).Generate(context.Background(), providers.GenerateRequest{})
	var pe *providers.Error
	if !errors.As(err, &pe) || pe.Kind != providers.KindContentRejected {
		t.Fatalf("expected CONTENT_REJECTED, got %v", err)
	}
}

func TestGenerateWithoutImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"no"}]}}]}`))
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL, APIKey: "k"}).Generate(context.Background(), providers.GenerateRequest{})
	var pe *providers.Error
	if !errors.As(err, &pe) || pe.Kind != providers.KindBadResponse {
		t.Fatalf("expected BAD_RESPONSE, got %v", err)
	}
}
