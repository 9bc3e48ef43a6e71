// Package imageproc adjusts provider output to the exact pixel size of the
// requested aspect.
package imageproc

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

type Result struct {
	Bytes    []byte
	MimeType string
	Width    int
	Height   int
	// Changed is false when the input was already the right size or could not
	// be decoded.
	Changed bool
}

// Fit centre-crops and resizes data to w x h, re-encoding in the source format.
// Bytes that do not decode (e.g. webp) pass through unchanged with the
// requested size reported.
func Fit(data []byte, mimeType string, w, h int) (Result, error) {
	passthrough := Result{Bytes: data, MimeType: mimeType, Width: w, Height: h}
	if w <= 0 || h <= 0 {
		return passthrough, nil
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return passthrough, nil
	}
	b := src.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return Result{Bytes: data, MimeType: mimeType, Width: w, Height: h}, nil
	}

	format, outMime := imaging.PNG, "image/png"
	if mimeType == "image/jpeg" || mimeType == "image/jpg" {
		format, outMime = imaging.JPEG, "image/jpeg"
	}

	dst := imaging.Fill(src, w, h, imaging.Center, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dst, format, imaging.JPEGQuality(90)); err != nil {
		return passthrough, fmt.Errorf("encode fitted image: %w", err)
	}
	return Result{Bytes: buf.Bytes(), MimeType: outMime, Width: w, Height: h, Changed: true}, nil
}
