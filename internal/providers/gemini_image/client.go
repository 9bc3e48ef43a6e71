package gemini_image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"imagegate/internal/providers"
)

type Config struct {
	BaseURL      string
	APIKey       string
	Headers      map[string]string
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
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini-2.5-flash-image"
	}
	return &Client{cfg: cfg}
}

var _ providers.ImageProvider = (*Client)(nil)

func (c *Client) Generate(ctx context.Context, req providers.GenerateRequest) (providers.Image, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return providers.Image{}, providers.Errorf(providers.KindNotConfigured, "gemini api key is empty")
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
	httpReq.Header.Set("x-goog-api-key", c.cfg.APIKey)
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
	return parseGenerateContent(respBody)
}

func (c *Client) buildPayload(req providers.GenerateRequest) ([]byte, string, error) {
	model := c.cfg.DefaultModel
	if m, ok := c.cfg.Models[req.ModelTier]; ok && m != "" {
		model = m
	}
	u, err := url.Parse(strings.TrimSpace(c.cfg.BaseURL))
	if err != nil {
		return nil, "", fmt.Errorf("parse base url: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/models/" + model + ":generateContent"

	text := req.Prompt.Reveal()
	if !req.NegativePrompt.Empty() {
		text += "\nDo not include: " + req.NegativePrompt.Reveal()
	}
	payload := map[string]any{
		"contents": []map[string]any{
			{"role": "user", "parts": []map[string]any{{"text": text}}},
		},
		"generationConfig": map[string]any{
			"responseModalities": []string{"IMAGE"},
			"imageConfig":        map[string]any{"aspectRatio": aspectRatio(req.Width, req.Height)},
		},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("marshal generateContent payload: %w", err)
	}
	return b, u.String(), nil
}

var supportedRatios = []struct {
	label string
	value float64
}{
	{"1:1", 1}, {"2:3", 2.0 / 3}, {"3:2", 3.0 / 2}, {"3:4", 3.0 / 4}, {"4:3", 4.0 / 3},
	{"4:5", 4.0 / 5}, {"5:4", 5.0 / 4}, {"9:16", 9.0 / 16}, {"16:9", 16.0 / 9}, {"21:9", 21.0 / 9},
}

func aspectRatio(w, h int) string {
	if w <= 0 || h <= 0 {
		return "1:1"
	}
	target := float64(w) / float64(h)
	best, bestDiff := "1:1", math.MaxFloat64
	for _, r := range supportedRatios {
		if d := math.Abs(r.value - target); d < bestDiff {
			best, bestDiff = r.label, d
		}
	}
	return best
}

func parseGenerateContent(body []byte) (providers.Image, error) {
	var resp struct {
		PromptFeedback struct {
			BlockReason string `json:"blockReason"`
		} `json:"promptFeedback"`
		Candidates []struct {
			FinishReason string `json:"finishReason"`
			Content      struct {
				Parts []struct {
					InlineData *struct {
						MimeType string `json:"mimeType"`
						Data     string `json:"data"`
					} `json:"inlineData"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return providers.Image{}, providers.Errorf(providers.KindBadResponse, "decode generateContent response: %w", err)
	}
	if resp.PromptFeedback.BlockReason != "" {
		return providers.Image{}, providers.Errorf(providers.KindContentRejected, "prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return providers.Image{}, providers.Errorf(providers.KindBadResponse, "decode inline data: %w", err)
			}
			return providers.Image{Bytes: raw, MimeType: part.InlineData.MimeType}, nil
		}
		switch cand.FinishReason {
		case "SAFETY", "PROHIBITED_CONTENT", "IMAGE_SAFETY", "BLOCKLIST":
			return providers.Image{}, providers.Errorf(providers.KindContentRejected, "candidate finished with %s", cand.FinishReason)
		}
	}
	return providers.Image{}, providers.Errorf(providers.KindBadResponse, "generateContent response has no image data")
}
