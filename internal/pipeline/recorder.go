package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"imagegate/internal/eventsink"
	"imagegate/internal/metrics"
	"imagegate/internal/storage"
)

// Store is the relational collaborator the pipeline reads and writes.
type Store interface {
	GetImageRequest(ctx context.Context, requestID string) (storage.ImageRequest, error)
	UpsertImageRequest(ctx context.Context, r storage.ImageRequest) error
	InsertEngineEvent(ctx context.Context, e storage.EngineEvent) error
	ListEngineEvents(ctx context.Context, requestID string, limit int) ([]storage.EngineEvent, error)
}

// Recorder performs best-effort writes. Failures, including panics, are logged
// and counted; callers never see them.
type Recorder struct {
	store   Store
	sink    eventsink.Sink
	timeout time.Duration
	now     func() time.Time
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

type RecorderConfig struct {
	Store   Store
	Sink    eventsink.Sink
	Timeout time.Duration
	Now     func() time.Time
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

func NewRecorder(cfg RecorderConfig) *Recorder {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Recorder{
		store:   cfg.Store,
		sink:    cfg.Sink,
		timeout: cfg.Timeout,
		now:     cfg.Now,
		logger:  cfg.Logger.With().Str("component", "recorder").Logger(),
		metrics: m,
	}
}

func (r *Recorder) Persist(ctx context.Context, rec storage.ImageRequest) {
	r.run(ctx, "persist", rec.RequestID, func(ctx context.Context) error {
		return r.store.UpsertImageRequest(ctx, rec)
	})
}

// Event appends e to the store and mirrors it to the sink. Both share one
// event id so downstream consumers can dedupe against the table.
func (r *Recorder) Event(ctx context.Context, e storage.EngineEvent) {
	now := r.now().UTC()
	if e.EventID == "" {
		e.EventID = storage.NewEventID(now)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	r.run(ctx, "event", e.RequestID, func(ctx context.Context) error {
		return r.store.InsertEngineEvent(ctx, e)
	})
	if r.sink != nil {
		r.run(ctx, "publish", e.RequestID, func(ctx context.Context) error {
			return r.sink.Publish(ctx, e)
		})
	}
}

func (r *Recorder) run(ctx context.Context, op, requestID string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			r.fail(op, requestID, fmt.Errorf("panic: %v", p))
		}
	}()
	if err := fn(ctx); err != nil {
		r.fail(op, requestID, err)
	}
}

func (r *Recorder) fail(op, requestID string, err error) {
	r.metrics.BestEffortFailures.WithLabelValues(op).Inc()
	r.logger.Error().Err(err).Str("op", op).Str("request_id", requestID).Msg("best-effort write failed")
}
