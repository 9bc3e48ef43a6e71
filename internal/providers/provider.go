package providers

import (
	"context"

	"imagegate/internal/prompt"
)

type GenerateRequest struct {
	RequestID      string
	Width          int
	Height         int
	ModelTier      string
	Prompt         prompt.Text
	NegativePrompt prompt.Text
}

type Image struct {
	Bytes    []byte
	MimeType string
}

// ImageProvider calls one image backend. Implementations bound their own latency
// and do not retry.
type ImageProvider interface {
	Generate(ctx context.Context, req GenerateRequest) (Image, error)
}
