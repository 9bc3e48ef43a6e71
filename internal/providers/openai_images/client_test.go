package openai_images

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"imagegate/internal/providers"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func TestBuildPayload(t *testing.T) {
	c := New(Config{BaseURL: "https://api.openai.com/v1/", APIKey: "k", Models: map[string]string{"premium": "gpt-image-1-hd"}})

	body, endpoint, err := c.buildPayload(providers.GenerateRequest{Width: 1080, Height: 1920, ModelTier: "premium"})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	if endpoint != "https://api.openai.com/v1/images/generations" {
		t.Fatalf("unexpected endpoint %q", endpoint)
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["model"] != "gpt-image-1-hd" {
		t.Fatalf("expected tier model, got %#v", payload["model"])
	}
	if payload["size"] != "1024x1536" {
		t.Fatalf("expected portrait size, got %#v", payload["size"])
	}
}

func TestGenerateDecodesImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/generations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing auth header")
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(pngHeader)}},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/v1", APIKey: "test-key"})
	img, err := c.Generate(context.Background(), providers.GenerateRequest{RequestID: "req-1", Width: 1080, Height: 1080})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if string(img.Bytes) != string(pngHeader) || img.MimeType != "image/png" {
		t.Fatalf("unexpected image %q %q", img.Bytes, img.MimeType)
	}
}

func TestGenerateClassifiesStatus(t *testing.T) {
	tests := []struct {
		status int
		body   string
		kind   providers.Kind
	}{
		{http.StatusTooManyRequests, `{}`, providers.KindRateLimited},
		{http.StatusBadGateway, `{}`, providers.KindUnavailable},
		{http.StatusBadRequest, `{"error":{"code":"content_policy_violation"}}`, providers.KindContentRejected},
		{http.StatusUnauthorized, `{}`, providers.KindNotConfigured},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(tt.body))
		}))
		c := New(Config{BaseURL: srv.URL, APIKey: "k"})
		_, err := c.Generate(context.Background(), providers.GenerateRequest{})
		srv.Close()

		var pe *providers.Error
		if !errors.As(err, &pe) || pe.Kind != tt.kind {
			t.Fatalf("status %d: expected kind %s, got %v", tt.status, tt.kind, err)
		}
		if strings.Contains(err.Error(), "content_policy") {
			t.Fatalf("error must not carry the response body: %v", err)
		}
	}
}

func TestGenerateWithoutKey(t *testing.T) {
	_, err := New(Config{}).Generate(context.Background(), providers.GenerateRequest{})
	var pe *providers.Error
	if !errors.As(err, &pe) || pe.Kind != providers.KindNotConfigured {
		t.Fatalf("expected NOT_CONFIGURED, got %v", err)
	}
}
