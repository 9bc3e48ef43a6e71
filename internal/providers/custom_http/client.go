package custom_http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"text/template"
	"time"

	"imagegate/internal/providers"
)

type Config struct {
	URL          string
	APIKey       string
	Headers      map[string]string
	BodyTemplate string
	Method       string
	Models       map[string]string
	HTTPClient   *http.Client
}

type Client struct {
	cfg Config
	tpl *template.Template
}

// New parses the body template up front so a broken template fails at startup.
func New(cfg Config) (*Client, error) {
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	}
	c := &Client{cfg: cfg}
	if strings.TrimSpace(cfg.BodyTemplate) != "" {
		tpl, err := template.New("custom_http_body").
			Option("missingkey=zero").
			Funcs(template.FuncMap{"json": jsonString}).
			Parse(cfg.BodyTemplate)
		if err != nil {
			return nil, fmt.Errorf("parse body template: %w", err)
		}
		c.tpl = tpl
	}
	return c, nil
}

var _ providers.ImageProvider = (*Client)(nil)

func (c *Client) Generate(ctx context.Context, req providers.GenerateRequest) (providers.Image, error) {
	if strings.TrimSpace(c.cfg.URL) == "" {
		return providers.Image{}, providers.Errorf(providers.KindNotConfigured, "custom http url is empty")
	}
	body, err := c.renderBody(req)
	if err != nil {
		return providers.Image{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, c.cfg.Method, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return providers.Image{}, fmt.Errorf("build custom request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range c.cfg.Headers {
		httpReq.Header.Set(k, strings.ReplaceAll(v, "{{api_key}}", c.cfg.APIKey))
	}

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return providers.Image{}, fmt.Errorf("custom request failed: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return providers.Image{}, providers.Errorf(providers.KindBadResponse, "read custom response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return providers.Image{}, providers.StatusError(resp.StatusCode, b)
	}
	return extractImage(resp.Header.Get("Content-Type"), b)
}

func (c *Client) renderBody(req providers.GenerateRequest) ([]byte, error) {
	model := c.cfg.Models[req.ModelTier]
	if c.tpl == nil {
		payload := map[string]any{
			"request_id":      req.RequestID,
			"prompt":          req.Prompt.Reveal(),
			"negative_prompt": req.NegativePrompt.Reveal(),
			"width":           req.Width,
			"height":          req.Height,
			"model_tier":      req.ModelTier,
		}
		if model != "" {
			payload["model"] = model
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal custom payload: %w", err)
		}
		return b, nil
	}

	var buf bytes.Buffer
	if err := c.tpl.Execute(&buf, map[string]any{
		"RequestID":      req.RequestID,
		"Prompt":         req.Prompt.Reveal(),
		"NegativePrompt": req.NegativePrompt.Reveal(),
		"Width":          req.Width,
		"Height":         req.Height,
		"ModelTier":      req.ModelTier,
		"Model":          model,
		"APIKey":         c.cfg.APIKey,
	}); err != nil {
		return nil, fmt.Errorf("execute body template: %w", err)
	}
	return buf.Bytes(), nil
}

// extractImage accepts either raw image bytes or a JSON object carrying base64
// image data under one of the common keys.
func extractImage(contentType string, body []byte) (providers.Image, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if strings.HasPrefix(mediaType, "image/") {
		return providers.Image{Bytes: body, MimeType: mediaType}, nil
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return providers.Image{}, providers.Errorf(providers.KindBadResponse, "decode custom response: %w", err)
	}
	mimeType, _ := obj["mime_type"].(string)
	if mimeType == "" {
		mimeType, _ = obj["mimeType"].(string)
	}

	encoded := ""
	for _, key := range []string{"image", "image_base64", "b64_json", "data"} {
		if v, ok := obj[key].(string); ok && v != "" {
			encoded = v
			break
		}
	}
	if encoded == "" {
		if data, ok := obj["data"].([]any); ok && len(data) > 0 {
			if d0, ok := data[0].(map[string]any); ok {
				encoded, _ = d0["b64_json"].(string)
			}
		}
	}
	if encoded == "" {
		return providers.Image{}, providers.Errorf(providers.KindBadResponse, "custom response does not contain image data")
	}
	if i := strings.Index(encoded, ";base64,"); strings.HasPrefix(encoded, "data:") && i > 0 {
		if mimeType == "" {
			mimeType = encoded[len("data:"):i]
		}
		encoded = encoded[i+len(";base64,"):]
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return providers.Image{}, providers.Errorf(providers.KindBadResponse, "decode custom image data: %w", err)
	}
	return providers.Image{Bytes: raw, MimeType: mimeType}, nil
}

func jsonString(v string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
