// Package placeholder renders a flat colour image locally. It stands in for a
// real backend in demo and development deployments.
package placeholder

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"image/color"

	"github.com/disintegration/imaging"

	"imagegate/internal/providers"
)

type Config struct {
	// Palette is cycled by request id. Empty means a built-in palette.
	Palette []color.NRGBA
}

type Client struct {
	palette []color.NRGBA
}

var defaultPalette = []color.NRGBA{
	{R: 0xE8, G: 0xD5, B: 0xC4, A: 0xFF},
	{R: 0xC9, G: 0xDA, B: 0xBF, A: 0xFF},
	{R: 0xBF, G: 0xD7, B: 0xEA, A: 0xFF},
	{R: 0xF2, G: 0xC1, B: 0x4E, A: 0xFF},
	{R: 0xD8, G: 0xB4, B: 0xE2, A: 0xFF},
}

func New(cfg Config) *Client {
	p := cfg.Palette
	if len(p) == 0 {
		p = defaultPalette
	}
	return &Client{palette: p}
}

var _ providers.ImageProvider = (*Client)(nil)

func (c *Client) Generate(ctx context.Context, req providers.GenerateRequest) (providers.Image, error) {
	if err := ctx.Err(); err != nil {
		return providers.Image{}, err
	}
	w, h := req.Width, req.Height
	if w <= 0 || h <= 0 {
		w, h = 1080, 1080
	}
	if w > 4096 || h > 4096 {
		return providers.Image{}, providers.Errorf(providers.KindBadResponse, "placeholder size %dx%d too large", w, h)
	}

	img := imaging.New(w, h, c.colorFor(req.RequestID))
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return providers.Image{}, fmt.Errorf("encode placeholder: %w", err)
	}
	return providers.Image{Bytes: buf.Bytes(), MimeType: "image/png"}, nil
}

func (c *Client) colorFor(requestID string) color.NRGBA {
	h := fnv.New32a()
	_, _ = h.Write([]byte(requestID))
	return c.palette[int(h.Sum32()%uint32(len(c.palette)))]
}
