package openai_images

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"imagegate/internal/providers"
)

type Config struct {
	BaseURL string
	APIKey  string
	Headers map[string]string
	// Models maps a model tier to a backend model name.
	Models       map[string]string
	DefaultModel string
	HTTPClient   *http.Client
}

type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-image-1"
	}
	return &Client{cfg: cfg}
}

var _ providers.ImageProvider = (*Client)(nil)

func (c *Client) Generate(ctx context.Context, req providers.GenerateRequest) (providers.Image, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return providers.Image{}, providers.Errorf(providers.KindNotConfigured, "openai api key is empty")
	}
	body, endpointURL, err := c.buildPayload(req)
	if err != nil {
		return providers.Image{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
	if err != nil {
		return providers.Image{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	for k, v := range c.cfg.Headers {
		httpReq.Header.Set(k, strings.ReplaceAll(v, "{{api_key}}", c.cfg.APIKey))
	}

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return providers.Image{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return providers.Image{}, providers.Errorf(providers.KindBadResponse, "read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return providers.Image{}, providers.StatusError(resp.StatusCode, respBody)
	}
	return parseImages(respBody)
}

func (c *Client) buildPayload(req providers.GenerateRequest) ([]byte, string, error) {
	endpointURL, err := c.buildEndpointURL()
	if err != nil {
		return nil, "", err
	}

	model := c.cfg.DefaultModel
	if m, ok := c.cfg.Models[req.ModelTier]; ok && m != "" {
		model = m
	}

	text := req.Prompt.Reveal()
	if !req.NegativePrompt.Empty() {
		text += "\nAvoid: " + req.NegativePrompt.Reveal()
	}

	payload := map[string]any{
		"model":  model,
		"prompt": text,
		"n":      1,
		"size":   sizeFor(req.Width, req.Height),
	}
	if strings.HasPrefix(model, "dall-e") {
		payload["response_format"] = "b64_json"
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("marshal images payload: %w", err)
	}
	return b, endpointURL, nil
}

func (c *Client) buildEndpointURL() (string, error) {
	base := strings.TrimSpace(c.cfg.BaseURL)
	if strings.HasSuffix(base, "/images/generations") {
		return base, nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/images/generations"
	return u.String(), nil
}

// sizeFor picks the closest size the images endpoint accepts. The pipeline
// crops to the exact aspect afterwards.
func sizeFor(w, h int) string {
	switch {
	case w <= 0 || h <= 0 || w == h:
		return "1024x1024"
	case w > h:
		return "1536x1024"
	default:
		return "1024x1536"
	}
}

func parseImages(body []byte) (providers.Image, error) {
	var resp struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
		} `json:"data"`
		OutputFormat string `json:"output_format"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return providers.Image{}, providers.Errorf(providers.KindBadResponse, "decode images response: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return providers.Image{}, providers.Errorf(providers.KindBadResponse, "images response has no b64_json data")
	}
	raw, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return providers.Image{}, providers.Errorf(providers.KindBadResponse, "decode b64_json: %w", err)
	}

	mime := ""
	switch strings.ToLower(resp.OutputFormat) {
	case "png":
		mime = "image/png"
	case "jpeg", "jpg":
		mime = "image/jpeg"
	case "webp":
		mime = "image/webp"
	default:
		mime = providers.SniffMimeType(raw)
	}
	return providers.Image{Bytes: raw, MimeType: mime}, nil
}
