package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

const ErrorCode = "PROVIDER_ERROR"

// Result is what the pipeline sees of a provider call. ErrorMessageSafe is
// always one of the fixed messages below, never backend text.
type Result struct {
	OK               bool
	ImageBytes       []byte
	MimeType         string
	ErrorCode        string
	ErrorKind        Kind
	ErrorMessageSafe string
	// Err is the raw failure for operator logs. It is never returned to callers.
	Err error
}

var safeMessages = map[Kind]string{
	KindRateLimited:     "The image provider is busy right now. Please try again shortly.",
	KindTimeout:         "The image provider took too long to respond.",
	KindUnavailable:     "The image provider is temporarily unavailable.",
	KindContentRejected: "The image provider declined to generate this image.",
	KindBadResponse:     "The image provider returned an unusable image.",
	KindNotConfigured:   "The selected image provider is not configured.",
}

const genericMessage = "Image generation failed. Please try again."

func SafeMessage(k Kind) string {
	if m, ok := safeMessages[k]; ok {
		return m
	}
	return genericMessage
}

// Invoke calls p once and converts every failure, including a panic, into a
// typed Result.
func Invoke(ctx context.Context, p ImageProvider, req GenerateRequest) (res Result) {
	if p == nil {
		return Failure(&Error{Kind: KindNotConfigured, Err: errors.New("nil provider")})
	}
	defer func() {
		if r := recover(); r != nil {
			res = Failure(fmt.Errorf("provider panic: %v", r))
		}
	}()

	img, err := p.Generate(ctx, req)
	if err != nil {
		return Failure(err)
	}
	if len(img.Bytes) == 0 {
		return Failure(&Error{Kind: KindBadResponse, Err: errors.New("empty image")})
	}
	mime := strings.TrimSpace(img.MimeType)
	if mime == "" {
		mime = SniffMimeType(img.Bytes)
	}
	return Result{OK: true, ImageBytes: img.Bytes, MimeType: mime}
}

func Failure(err error) Result {
	kind := kindOf(err)
	if kind == KindUnknown {
		kind = classifyTransport(err)
	}
	return Result{
		ErrorCode:        ErrorCode,
		ErrorKind:        kind,
		ErrorMessageSafe: SafeMessage(kind),
		Err:              err,
	}
}

func classifyTransport(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindUnknown
}

// SniffMimeType falls back to content sniffing when a backend omits the type.
func SniffMimeType(b []byte) string {
	return http.DetectContentType(b)
}
