// Package pipeline sequences one image generation attempt: safety gate, prompt,
// provider, normalisation, storage and the terminal record.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"imagegate/internal/blobstore"
	"imagegate/internal/decision"
	"imagegate/internal/eventsink"
	"imagegate/internal/metrics"
	"imagegate/internal/providers"
	"imagegate/internal/storage"
)

const (
	CodeMissingRequestID = "MISSING_REQUEST_ID"
	CodeNotFound         = "NOT_FOUND"
	CodeSafetyBlocked    = "SAFETY_BLOCKED"
	CodeSafetyFallback   = "SAFETY_FALLBACK"
	CodeInternal         = "INTERNAL_ERROR"
)

// ProviderGateway resolves a provider id and performs one call.
type ProviderGateway interface {
	Generate(ctx context.Context, providerID string, req providers.GenerateRequest) providers.Result
}

// BlobWriter writes bytes to a named storage backend.
type BlobWriter interface {
	Write(ctx context.Context, name string, req blobstore.WriteRequest) blobstore.WriteResult
}

type Engine struct {
	store       Store
	providers   ProviderGateway
	blobs       BlobWriter
	storageName string
	defaults    decision.Defaults
	normalize   bool
	recorder    *Recorder
	now         func() time.Time
	newID       func() string
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

type Config struct {
	Store           Store
	Providers       ProviderGateway
	Blobs           BlobWriter
	StorageName     string
	Sink            eventsink.Sink
	Defaults        decision.Defaults
	NormalizeImages bool
	RecorderTimeout time.Duration
	Now             func() time.Time
	NewRequestID    func() string
	Logger          zerolog.Logger
	Metrics         *metrics.Metrics
}

func New(cfg Config) *Engine {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewRequestID == nil {
		cfg.NewRequestID = uuid.NewString
	}
	logger := cfg.Logger.With().Str("component", "pipeline").Logger()
	return &Engine{
		store:       cfg.Store,
		providers:   cfg.Providers,
		blobs:       cfg.Blobs,
		storageName: cfg.StorageName,
		defaults:    cfg.Defaults,
		normalize:   cfg.NormalizeImages,
		recorder: NewRecorder(RecorderConfig{
			Store:   cfg.Store,
			Sink:    cfg.Sink,
			Timeout: cfg.RecorderTimeout,
			Now:     cfg.Now,
			Logger:  cfg.Logger,
			Metrics: m,
		}),
		now:     cfg.Now,
		newID:   cfg.NewRequestID,
		logger:  logger,
		metrics: m,
	}
}

type RegenerateRequest struct {
	RequestID string
	// ProviderOverride replaces the persisted provider choice when set.
	ProviderOverride string
}

// GenerateRequest is a first generation. BusinessName and UserText feed the
// safety gate only and are dropped afterwards.
type GenerateRequest struct {
	Platform      string
	Category      string
	Aspect        string
	Mode          string
	Energy        string
	TextAllowance string
	Industry      string
	Vibe          string
	NegativeRules []string
	ProviderID    string
	ModelTier     string
	BusinessName  string
	UserText      string
}

type Timings struct {
	Provider int64 `json:"provider"`
	Storage  int64 `json:"storage"`
	Total    int64 `json:"total"`
}

// Outcome is the typed result handed to the HTTP boundary. Status is empty
// when the run ended before reaching a terminal state.
type Outcome struct {
	RequestID      string
	Status         string
	ErrorCode      string
	Message        string
	FallbackReason string
	Decision       decision.Decision
	Image          *storage.ImageRecord
	Timings        Timings
}

func (o Outcome) OK() bool {
	return o.Status == storage.StatusSuccess
}

// Regenerate reruns the pipeline for a persisted request using only its
// stored decision. No free text is available on this path.
func (e *Engine) Regenerate(ctx context.Context, req RegenerateRequest) Outcome {
	started := e.now()
	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" {
		return Outcome{ErrorCode: CodeMissingRequestID}
	}
	log := e.logger.With().Str("request_id", requestID).Str("flow", "regenerate").Logger()

	existing, err := e.store.GetImageRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Outcome{RequestID: requestID, ErrorCode: CodeNotFound}
		}
		log.Error().Err(err).Msg("load image request failed")
		return Outcome{RequestID: requestID, ErrorCode: CodeInternal}
	}

	e.recorder.Event(ctx, storage.EngineEvent{
		RequestID:   requestID,
		Type:        storage.EventGenerateStart,
		OK:          true,
		MessageSafe: "Regeneration started.",
		Data:        map[string]any{"flow": "regenerate"},
	})

	d, err := decision.Reconstruct([]byte(existing.DecisionJSON), e.defaults)
	if err != nil {
		log.Error().Err(err).Msg("stored decision is not usable")
		e.recorder.Event(ctx, storage.EngineEvent{
			RequestID:   requestID,
			Type:        storage.EventGenerateFinish,
			OK:          false,
			MessageSafe: "Stored decision could not be read.",
			Data:        map[string]any{"error": "DECISION_INVALID"},
		})
		e.metrics.PipelineRuns.WithLabelValues("internal_error").Inc()
		return Outcome{RequestID: requestID, ErrorCode: CodeInternal}
	}
	if req.ProviderOverride != "" && !d.OverrideProvider(req.ProviderOverride) {
		log.Warn().Msg("ignoring provider override that is not a valid id")
	}

	a := &attempt{
		requestID:   requestID,
		decision:    d,
		safetyInput: d.SafetyInput(),
		priorJSON:   existing.DecisionJSON,
		started:     started,
		log:         log,
	}
	return e.run(ctx, a)
}

// Generate synthesises a fresh decision under a new request id and runs the
// same stages as Regenerate.
func (e *Engine) Generate(ctx context.Context, req GenerateRequest) Outcome {
	started := e.now()
	requestID := e.newID()
	log := e.logger.With().Str("request_id", requestID).Str("flow", "generate").Logger()

	d := decision.Synthesize(decision.FreshRequest{
		Platform:      req.Platform,
		Category:      req.Category,
		Aspect:        req.Aspect,
		Mode:          req.Mode,
		Energy:        req.Energy,
		TextAllowance: req.TextAllowance,
		Industry:      req.Industry,
		Vibe:          req.Vibe,
		NegativeRules: req.NegativeRules,
		ProviderID:    req.ProviderID,
		ModelTier:     req.ModelTier,
	}, e.defaults)

	e.recorder.Event(ctx, storage.EngineEvent{
		RequestID:   requestID,
		Type:        storage.EventGenerateStart,
		OK:          true,
		MessageSafe: "Generation started.",
		Data:        map[string]any{"flow": "generate"},
	})

	in := d.SafetyInput()
	in.BusinessName = req.BusinessName
	in.UserText = req.UserText

	a := &attempt{
		requestID:   requestID,
		decision:    d,
		safetyInput: in,
		started:     started,
		log:         log,
	}
	return e.run(ctx, a)
}

// Lookup returns the persisted record for requestID and its event trail.
func (e *Engine) Lookup(ctx context.Context, requestID string, limit int) (storage.ImageRequest, []storage.EngineEvent, error) {
	rec, err := e.store.GetImageRequest(ctx, requestID)
	if err != nil {
		return storage.ImageRequest{}, nil, err
	}
	events, err := e.store.ListEngineEvents(ctx, requestID, limit)
	if err != nil {
		return storage.ImageRequest{}, nil, err
	}
	return rec, events, nil
}
