package providers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindRateLimited     Kind = "RATE_LIMITED"
	KindTimeout         Kind = "TIMEOUT"
	KindUnavailable     Kind = "UNAVAILABLE"
	KindContentRejected Kind = "CONTENT_REJECTED"
	KindBadResponse     Kind = "BAD_RESPONSE"
	KindNotConfigured   Kind = "NOT_CONFIGURED"
	KindUnknown         Kind = "UNKNOWN"
)

// Error is returned by adapters when they can classify a failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "provider: " + string(e.Kind)
	}
	return fmt.Sprintf("provider %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// StatusError classifies a non-2xx HTTP reply.
func StatusError(status int, body []byte) error {
	return &Error{Kind: KindForStatus(status, body), Err: fmt.Errorf("provider status %d", status)}
}

func KindForStatus(status int, body []byte) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status >= 500:
		return KindUnavailable
	case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusNotFound:
		return KindNotConfigured
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		lower := bytes.ToLower(body)
		for _, marker := range [][]byte{[]byte("content_policy"), []byte("safety"), []byte("moderation")} {
			if bytes.Contains(lower, marker) {
				return KindContentRejected
			}
		}
	}
	return KindBadResponse
}

func kindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}
