package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"imagegate/internal/alttext"
	"imagegate/internal/blobstore"
	"imagegate/internal/decision"
	"imagegate/internal/imageproc"
	"imagegate/internal/prompt"
	"imagegate/internal/providers"
	"imagegate/internal/safety"
	"imagegate/internal/storage"
)

const (
	messageBlocked  = "Image generation is not available for this request."
	messageFallback = "A stock template will be used instead of a generated image."
)

var finishMessages = map[string]string{
	storage.StatusBlocked:       "Blocked by safety policy.",
	storage.StatusFallback:      "Fell back to a stock template.",
	storage.StatusProviderError: "Image provider failed.",
	storage.StatusStorageError:  "Image storage failed.",
	storage.StatusSuccess:       "Image generated.",
}

// attempt is the state of one pipeline execution. Prompt text and image bytes
// live here only until the stage that consumes them.
type attempt struct {
	requestID   string
	decision    decision.Decision
	safetyInput safety.Input
	priorJSON   string
	started     time.Time
	log         zerolog.Logger

	verdict safety.Result
	prompt  prompt.Prompt

	bytes    []byte
	mimeType string
	width    int
	height   int

	storageUsed bool
	image       *storage.ImageRecord
	timings     Timings
}

// terminal ends the run. Exactly one is produced per attempt.
type terminal struct {
	status         string
	code           string
	message        string
	fallbackReason string
}

type stage func(ctx context.Context, a *attempt) *terminal

func (e *Engine) run(ctx context.Context, a *attempt) Outcome {
	stages := []stage{
		e.checkSafety,
		e.buildPrompt,
		e.callProvider,
		e.normalizeImage,
		e.writeStorage,
	}
	for _, s := range stages {
		if t := s(ctx, a); t != nil {
			return e.terminate(ctx, a, *t)
		}
	}
	return e.terminate(ctx, a, terminal{status: storage.StatusSuccess})
}

func (e *Engine) checkSafety(_ context.Context, a *attempt) *terminal {
	res := safety.Evaluate(a.safetyInput)
	a.verdict = res
	a.decision.ApplyVerdict(res)
	a.safetyInput = safety.Input{}

	a.log.Debug().Str("verdict", string(res.Verdict)).Strs("reasons", res.Reasons).Msg("safety evaluated")
	switch res.Verdict {
	case safety.VerdictBlock:
		return &terminal{status: storage.StatusBlocked, code: CodeSafetyBlocked, message: messageBlocked, fallbackReason: res.ReasonSafe}
	case safety.VerdictFallback:
		return &terminal{status: storage.StatusFallback, code: CodeSafetyFallback, message: messageFallback, fallbackReason: res.ReasonSafe}
	}
	return nil
}

func (e *Engine) buildPrompt(_ context.Context, a *attempt) *terminal {
	p, err := prompt.Build(a.decision, a.verdict.Verdict)
	if err != nil {
		a.log.Error().Err(err).Msg("prompt refused after allow verdict")
		return &terminal{status: storage.StatusFallback, code: CodeSafetyFallback, message: messageFallback, fallbackReason: a.verdict.ReasonSafe}
	}
	a.prompt = p
	return nil
}

func (e *Engine) callProvider(ctx context.Context, a *attempt) *terminal {
	plan := a.decision.ProviderPlan
	w, h := a.decision.Dimensions()

	start := e.now()
	res := e.providers.Generate(ctx, plan.ProviderID, providers.GenerateRequest{
		RequestID:      a.requestID,
		Width:          w,
		Height:         h,
		ModelTier:      plan.ModelTier,
		Prompt:         a.prompt.Prompt,
		NegativePrompt: a.prompt.Negative,
	})
	elapsed := e.now().Sub(start)
	a.prompt = prompt.Prompt{}
	a.timings.Provider = elapsed.Milliseconds()
	e.metrics.ProviderDuration.WithLabelValues(plan.ProviderID).Observe(elapsed.Seconds())

	data := map[string]any{
		"providerId": plan.ProviderID,
		"modelTier":  plan.ModelTier,
		"durationMs": a.timings.Provider,
	}
	if !res.OK {
		data["kind"] = string(res.ErrorKind)
		e.recorder.Event(ctx, storage.EngineEvent{
			RequestID:   a.requestID,
			Type:        storage.EventProviderCall,
			OK:          false,
			MessageSafe: res.ErrorCode,
			Data:        data,
		})
		a.log.Warn().Err(res.Err).Str("provider", plan.ProviderID).Str("kind", string(res.ErrorKind)).Msg("provider call failed")
		return &terminal{status: storage.StatusProviderError, code: providers.ErrorCode, message: res.ErrorMessageSafe}
	}

	data["mimeType"] = res.MimeType
	data["bytes"] = len(res.ImageBytes)
	e.recorder.Event(ctx, storage.EngineEvent{
		RequestID:   a.requestID,
		Type:        storage.EventProviderCall,
		OK:          true,
		MessageSafe: "Provider returned an image.",
		Data:        data,
	})
	a.bytes, a.mimeType = res.ImageBytes, res.MimeType
	a.width, a.height = w, h
	return nil
}

func (e *Engine) normalizeImage(_ context.Context, a *attempt) *terminal {
	if !e.normalize {
		return nil
	}
	fit, err := imageproc.Fit(a.bytes, a.mimeType, a.width, a.height)
	if err != nil {
		a.log.Warn().Err(err).Msg("image normalisation failed, storing provider bytes")
		return nil
	}
	if fit.Changed {
		a.log.Debug().Int("width", fit.Width).Int("height", fit.Height).Msg("image resized to aspect")
	}
	a.bytes, a.mimeType = fit.Bytes, fit.MimeType
	a.width, a.height = fit.Width, fit.Height
	return nil
}

func (e *Engine) writeStorage(ctx context.Context, a *attempt) *terminal {
	a.storageUsed = true
	start := e.now()
	wr := e.blobs.Write(ctx, e.storageName, blobstore.WriteRequest{
		RequestID: a.requestID,
		Bytes:     a.bytes,
		MimeType:  a.mimeType,
	})
	elapsed := e.now().Sub(start)
	a.bytes = nil
	a.timings.Storage = elapsed.Milliseconds()
	e.metrics.StorageDuration.WithLabelValues(e.storageName).Observe(elapsed.Seconds())

	data := map[string]any{
		"storage":    e.storageName,
		"durationMs": a.timings.Storage,
	}
	if !wr.OK {
		data["code"] = wr.ErrorCode
		e.recorder.Event(ctx, storage.EngineEvent{
			RequestID:   a.requestID,
			Type:        storage.EventStorageWrite,
			OK:          false,
			MessageSafe: wr.ErrorCode,
			Data:        data,
		})
		a.log.Warn().Err(wr.Err).Str("storage", e.storageName).Str("code", wr.ErrorCode).Msg("storage write failed")
		return &terminal{status: storage.StatusStorageError, code: wr.ErrorCode, message: wr.ErrorMessageSafe}
	}

	a.image = &storage.ImageRecord{
		URL:         wr.URL,
		Width:       a.width,
		Height:      a.height,
		ContentType: a.mimeType,
		AltText:     alttext.Build(a.decision.Platform, a.decision.Category, a.decision.Aspect),
	}
	data["key"] = wr.Key
	e.recorder.Event(ctx, storage.EngineEvent{
		RequestID:   a.requestID,
		Type:        storage.EventStorageWrite,
		OK:          true,
		MessageSafe: "Image stored.",
		Data:        data,
	})
	return nil
}

func (e *Engine) terminate(ctx context.Context, a *attempt, t terminal) Outcome {
	a.timings.Total = e.now().Sub(a.started).Milliseconds()
	if t.status != storage.StatusSuccess {
		a.image = nil
	}

	snapshot, err := decision.MarshalSnapshot(a.decision)
	if err != nil {
		a.log.Error().Err(err).Msg("decision failed validation, keeping previous snapshot")
		snapshot = []byte(a.priorJSON)
		if a.priorJSON == "" {
			snapshot = []byte(`{"version":1}`)
		}
	}

	w, h := a.decision.Dimensions()
	rec := storage.ImageRequest{
		RequestID:    a.requestID,
		Platform:     a.decision.Platform,
		Category:     a.decision.Category,
		Aspect:       a.decision.Aspect,
		Width:        w,
		Height:       h,
		Status:       t.status,
		DecisionJSON: string(snapshot),
		Image:        a.image,
	}
	if a.storageUsed {
		name := e.storageName
		rec.StorageName = &name
	}
	e.recorder.Persist(ctx, rec)

	data := map[string]any{
		"status":  t.status,
		"verdict": string(a.verdict.Verdict),
		"totalMs": a.timings.Total,
	}
	if t.code != "" {
		data["code"] = t.code
	}
	if len(a.verdict.Reasons) > 0 {
		data["reasons"] = append([]string(nil), a.verdict.Reasons...)
	}
	e.recorder.Event(ctx, storage.EngineEvent{
		RequestID:   a.requestID,
		Type:        storage.EventGenerateFinish,
		OK:          t.status == storage.StatusSuccess,
		MessageSafe: finishMessages[t.status],
		Data:        data,
	})

	e.metrics.PipelineRuns.WithLabelValues(t.status).Inc()
	a.log.Info().
		Str("status", t.status).
		Str("code", t.code).
		Int64("provider_ms", a.timings.Provider).
		Int64("storage_ms", a.timings.Storage).
		Int64("total_ms", a.timings.Total).
		Msg("pipeline finished")

	return Outcome{
		RequestID:      a.requestID,
		Status:         t.status,
		ErrorCode:      t.code,
		Message:        t.message,
		FallbackReason: t.fallbackReason,
		Decision:       a.decision,
		Image:          a.image,
		Timings:        a.timings,
	}
}
