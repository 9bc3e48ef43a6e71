package httpapi

import (
	"encoding/json"
	"time"

	"imagegate/internal/decision"
	"imagegate/internal/pipeline"
	"imagegate/internal/storage"
)

const (
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeDemoReadOnly   = "DEMO_READ_ONLY"
	CodeRateLimited    = "RATE_LIMITED"
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInternal       = pipeline.CodeInternal
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type fallbackBody struct {
	Used   bool   `json:"used"`
	Reason string `json:"reason"`
}

type outcomeResponse struct {
	OK        bool                 `json:"ok"`
	RequestID string               `json:"requestId,omitempty"`
	ErrorCode string               `json:"errorCode,omitempty"`
	Fallback  *fallbackBody        `json:"fallback,omitempty"`
	Error     *errorBody           `json:"error,omitempty"`
	Decision  *decision.Decision   `json:"decision,omitempty"`
	Image     *storage.ImageRecord `json:"image,omitempty"`
	TimingsMs *pipeline.Timings    `json:"timingsMs,omitempty"`
}

func errorCodeResponse(code string) outcomeResponse {
	return outcomeResponse{OK: false, ErrorCode: code}
}

func fromOutcome(o pipeline.Outcome, withRequestID bool) outcomeResponse {
	var resp outcomeResponse
	if withRequestID {
		resp.RequestID = o.RequestID
	}

	switch o.Status {
	case "":
		resp.ErrorCode = o.ErrorCode
		if resp.ErrorCode == "" {
			resp.ErrorCode = CodeInternal
		}
	case storage.StatusBlocked, storage.StatusFallback:
		resp.Fallback = &fallbackBody{Used: true, Reason: o.FallbackReason}
		resp.Error = &errorBody{Code: o.ErrorCode, Message: o.Message}
	case storage.StatusProviderError, storage.StatusStorageError:
		resp.Error = &errorBody{Code: o.ErrorCode, Message: o.Message}
	case storage.StatusSuccess:
		d := o.Decision
		timings := o.Timings
		resp.OK = true
		resp.Decision = &d
		resp.Image = o.Image
		resp.TimingsMs = &timings
	}
	return resp
}

type requestView struct {
	RequestID   string               `json:"requestId"`
	Platform    string               `json:"platform"`
	Category    string               `json:"category"`
	Aspect      string               `json:"aspect"`
	Width       int                  `json:"width"`
	Height      int                  `json:"height"`
	Status      string               `json:"status"`
	Decision    json.RawMessage      `json:"decision"`
	StorageName *string              `json:"storageName,omitempty"`
	Image       *storage.ImageRecord `json:"image,omitempty"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

type lookupResponse struct {
	OK      bool                  `json:"ok"`
	Request requestView           `json:"request"`
	Events  []storage.EngineEvent `json:"events"`
}

func newRequestView(r storage.ImageRequest) requestView {
	raw := json.RawMessage(r.DecisionJSON)
	if !json.Valid(raw) {
		raw = json.RawMessage("null")
	}
	return requestView{
		RequestID:   r.RequestID,
		Platform:    r.Platform,
		Category:    r.Category,
		Aspect:      r.Aspect,
		Width:       r.Width,
		Height:      r.Height,
		Status:      r.Status,
		Decision:    raw,
		StorageName: r.StorageName,
		Image:       r.Image,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}
