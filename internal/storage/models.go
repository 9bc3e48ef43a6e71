package storage

import "time"

const (
	StatusBlocked       = "blocked"
	StatusFallback      = "fallback"
	StatusProviderError = "provider_error"
	StatusStorageError  = "storage_error"
	StatusSuccess       = "success"
)

const (
	EventGenerateStart  = "generate_start"
	EventProviderCall   = "provider_call"
	EventStorageWrite   = "storage_write"
	EventGenerateFinish = "generate_finish"
)

// ImageRequest is the durable record of the latest attempt for one request id.
// Image is set only when Status is success.
type ImageRequest struct {
	RequestID    string
	Platform     string
	Category     string
	Aspect       string
	Width        int
	Height       int
	Status       string
	DecisionJSON string
	StorageName  *string
	Image        *ImageRecord
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ImageRecord struct {
	URL         string `json:"url"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ContentType string `json:"contentType"`
	AltText     string `json:"altText"`
}

// EngineEvent is an append-only audit row. MessageSafe and Data must only carry
// ids, codes and counters.
type EngineEvent struct {
	ID          int64          `json:"-"`
	EventID     string         `json:"eventId"`
	RequestID   string         `json:"requestId"`
	Type        string         `json:"type"`
	OK          bool           `json:"ok"`
	MessageSafe string         `json:"messageSafe"`
	Data        map[string]any `json:"data,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

func ValidStatus(s string) bool {
	switch s {
	case StatusBlocked, StatusFallback, StatusProviderError, StatusStorageError, StatusSuccess:
		return true
	}
	return false
}
