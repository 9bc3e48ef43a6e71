package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"imagegate/internal/blobstore"
	"imagegate/internal/decision"
	"imagegate/internal/metrics"
	"imagegate/internal/providers"
	"imagegate/internal/providers/registry"
	"imagegate/internal/safety"
	"imagegate/internal/storage"
)

var testDefaults = decision.Defaults{ProviderID: "nano_banana", ModelTier: "standard"}

type harness struct {
	engine   *Engine
	store    *fakeStore
	provider *fakeProvider
	backend  *fakeBackend
	sink     *fakeSink
	logs     *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    newFakeStore(),
		provider: &fakeProvider{},
		backend:  &fakeBackend{},
		sink:     &fakeSink{},
		logs:     &bytes.Buffer{},
	}
	reg := &registry.Registry{}
	reg.Register("nano_banana", h.provider)
	blobs := blobstore.NewRegistry()
	blobs.Register("local", h.backend)

	h.engine = New(Config{
		Store:        h.store,
		Providers:    reg,
		Blobs:        blobs,
		StorageName:  "local",
		Sink:         h.sink,
		Defaults:     testDefaults,
		NewRequestID: func() string { return "req-fresh" },
		Logger:       zerolog.New(h.logs),
		Metrics:      metrics.New(),
	})
	return h
}

// seed persists a previously allowed decision for requestID.
func (h *harness) seed(t *testing.T, requestID string, req decision.FreshRequest) {
	t.Helper()
	d := decision.Synthesize(req, testDefaults)
	d.ApplyVerdict(safety.Evaluate(d.SafetyInput()))
	raw, err := decision.MarshalSnapshot(d)
	if err != nil {
		t.Fatalf("marshal seed: %v", err)
	}
	h.store.records[requestID] = storage.ImageRequest{
		RequestID:    requestID,
		Platform:     d.Platform,
		Category:     d.Category,
		Aspect:       d.Aspect,
		Status:       storage.StatusSuccess,
		DecisionJSON: string(raw),
	}
}

func (h *harness) finishEvents() []storage.EngineEvent {
	var out []storage.EngineEvent
	for _, e := range h.store.events {
		if e.Type == storage.EventGenerateFinish {
			out = append(out, e)
		}
	}
	return out
}

func foodOnInstagram() decision.FreshRequest {
	return decision.FreshRequest{Platform: "instagram", Category: "food", Aspect: "1:1", Industry: "restaurant", Vibe: "warm"}
}

func TestRegenerateSuccess(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "req-123", foodOnInstagram())

	out := h.engine.Regenerate(context.Background(), RegenerateRequest{RequestID: "req-123"})
	if !out.OK() || out.ErrorCode != "" {
		t.Fatalf("expected success, got %+v", out)
	}
	if out.Image == nil || !strings.HasPrefix(out.Image.URL, "https://cdn.example.com/images/req-123/") {
		t.Fatalf("unexpected image %+v", out.Image)
	}
	if out.Image.Width != 1080 || out.Image.Height != 1080 || out.Image.ContentType != "image/png" {
		t.Fatalf("unexpected image metadata %+v", out.Image)
	}
	if out.Image.AltText != "Square food image prepared for Instagram." {
		t.Fatalf("unexpected alt text %q", out.Image.AltText)
	}
	if !out.Decision.Safety.IsAllowed {
		t.Fatalf("decision should record the allow verdict")
	}

	wantTypes := []string{storage.EventGenerateStart, storage.EventProviderCall, storage.EventStorageWrite, storage.EventGenerateFinish}
	if got := h.store.eventTypes(); strings.Join(got, ",") != strings.Join(wantTypes, ",") {
		t.Fatalf("unexpected events %v", got)
	}
	if len(h.store.upserts) != 1 {
		t.Fatalf("expected one upsert, got %d", len(h.store.upserts))
	}
	rec := h.store.upserts[0]
	if rec.Status != storage.StatusSuccess || rec.Image == nil || rec.StorageName == nil || *rec.StorageName != "local" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if len(h.sink.published) != len(h.store.events) {
		t.Fatalf("sink saw %d events, store %d", len(h.sink.published), len(h.store.events))
	}
	if h.sink.published[0].EventID != h.store.events[0].EventID {
		t.Fatalf("sink and store event ids differ")
	}
}

func TestRegenerateMissingRequestID(t *testing.T) {
	h := newHarness(t)
	out := h.engine.Regenerate(context.Background(), RegenerateRequest{RequestID: "   "})
	if out.ErrorCode != CodeMissingRequestID || out.Status != "" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(h.store.events) != 0 || len(h.store.upserts) != 0 {
		t.Fatalf("nothing should be recorded")
	}
}

func TestRegenerateNotFound(t *testing.T) {
	h := newHarness(t)
	out := h.engine.Regenerate(context.Background(), RegenerateRequest{RequestID: "req-missing"})
	if out.ErrorCode != CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %+v", out)
	}
	if h.provider.callCount() != 0 || len(h.store.upserts) != 0 {
		t.Fatalf("not found must not run the pipeline")
	}
}

func TestRegenerateLoadFailureIsInternal(t *testing.T) {
	h := newHarness(t)
	h.store.getErr = errors.New("connection refused")
	out := h.engine.Regenerate(context.Background(), RegenerateRequest{RequestID: "req-1"})
	if out.ErrorCode != CodeInternal {
		t.Fatalf("expected INTERNAL_ERROR, got %+v", out)
	}
}

func TestRegenerateBlockedNeverCallsAdapters(t *testing.T) {
	h := newHarness(t)
	req := foodOnInstagram()
	req.NegativeRules = []string{"forbid_generation"}
	h.seed(t, "req-block", req)

	out := h.engine.Regenerate(context.Background(), RegenerateRequest{RequestID: "req-block"})
	if out.Status != storage.StatusBlocked || out.ErrorCode != CodeSafetyBlocked {
		t.Fatalf("expected blocked, got %+v", out)
	}
	if out.FallbackReason == "" || out.Message == "" {
		t.Fatalf("blocked outcome needs a reason and message: %+v", out)
	}
	if h.provider.callCount() != 0 || h.backend.putCount() != 0 {
		t.Fatalf("adapters invoked on block: provider=%d storage=%d", h.provider.callCount(), h.backend.putCount())
	}
	if len(h.store.upserts) != 1 || h.store.upserts[0].Status != storage.StatusBlocked {
		t.Fatalf("unexpected upserts %+v", h.store.upserts)
	}
}

func TestRegenerateFallbackNeverCallsProvider(t *testing.T) {
	h := newHarness(t)
	req := foodOnInstagram()
	req.Mode = "template"
	h.seed(t, "req-template", req)

	out := h.engine.Regenerate(context.Background(), RegenerateRequest{RequestID: "req-template"})
	if out.Status != storage.StatusFallback || out.ErrorCode != CodeSafetyFallback {
		t.Fatalf("expected fallback, got %+v", out)
	}
	if h.provider.callCount() != 0 {
		t.Fatalf("provider invoked on fallback")
	}
	if !out.Decision.Safety.UsedFallback {
		t.Fatalf("decision should record the fallback")
	}
}

func TestRegenerateProviderErrorIsSanitized(t *testing.T) {
	h := newHarness(t)
	h.provider.respond = func(int) (providers.Image, error) {
		return providers.Image{}, errors.New("rate limited")
	}
	h.seed(t, "req-rl", foodOnInstagram())

	out := h.engine.Regenerate(context.Background(), RegenerateRequest{RequestID: "req-rl"})
	if out.Status != storage.StatusProviderError || out.ErrorCode != providers.ErrorCode {
		t.Fatalf("expected provider error, got %+v", out)
	}
	if out.Message == "" || strings.Contains(out.Message, "rate limited") {
		t.Fatalf("raw provider text leaked: %q", out.Message)
	}
	if h.backend.putCount() != 0 {
		t.Fatalf("storage invoked after provider failure")
	}

	wantTypes := []string{storage.EventGenerateStart, storage.EventProviderCall, storage.EventGenerateFinish}
	if got := h.store.eventTypes(); strings.Join(got, ",") != strings.Join(wantTypes, ",") {
		t.Fatalf("unexpected events %v", got)
	}
	for _, e := range h.store.events {
		b, _ := json.Marshal(e)
		if strings.Contains(string(b), "rate limited") {
			t.Fatalf("raw provider text in event: %s", b)
		}
	}
}

func TestRegenerateStorageErrorSurfacesAdapterCode(t *testing.T) {
	h := newHarness(t)
	h.backend.errs = []error{&blobstore.Error{Code: blobstore.CodeQuotaExceeded, Err: errors.New("bucket full")}}
	h.seed(t, "req-quota", foodOnInstagram())

	out := h.engine.Regenerate(context.Background(), RegenerateRequest{RequestID: "req-quota"})
	if out.Status != storage.StatusStorageError || out.ErrorCode != blobstore.CodeQuotaExceeded {
		t.Fatalf("expected QUOTA_EXCEEDED, got %+v", out)
	}
	if out.Image != nil {
		t.Fatalf("no image on storage failure")
	}
	rec := h.store.upserts[0]
	if rec.Image != nil || rec.StorageName == nil {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestStorageFailureDoesNotCarryBytesOver(t *testing.T) {
	h := newHarness(t)
	h.provider.respond = func(call int) (providers.Image, error) {
		return providers.Image{Bytes: []byte{byte(call), 'x'}, MimeType: "image/png"}, nil
	}
	h.backend.errs = []error{errors.New("disk unplugged")}
	h.seed(t, "req-retry", foodOnInstagram())

	first := h.engine.Regenerate(context.Background(), RegenerateRequest{RequestID: "req-retry"})
	second := h.engine.Regenerate(context.Background(), RegenerateRequest{RequestID: "req-retry"})
	if first.Status != storage.StatusStorageError || second.Status != storage.StatusSuccess {
		t.Fatalf("unexpected statuses %q %q", first.Status, second.Status)
	}
	if h.provider.callCount() != 2 {
		t.Fatalf("each attempt must call the provider, got %d", h.provider.callCount())
	}
	puts := h.backend.puts
	if len(puts) != 2 || bytes.Equal(puts[0].Bytes, puts[1].Bytes) || puts[0].Key == puts[1].Key {
		t.Fatalf("second attempt reused the first attempt's object: %+v", puts)
	}
	if puts[1].Bytes[0] != 2 {
		t.Fatalf("stored bytes are not from the second provider call")
	}
}

func TestEveryTerminalStateWritesOnce(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(h *harness, req *decision.FreshRequest)
		status string
	}{
		{"success", func(*harness, *decision.FreshRequest) {}, storage.StatusSuccess},
		{"blocked", func(_ *harness, r *decision.FreshRequest) { r.Category = "weapons" }, storage.StatusBlocked},
		{"fallback", func(_ *harness, r *decision.FreshRequest) { r.Aspect = "16:9" }, storage.StatusFallback},
		{"provider_error", func(h *harness, _ *decision.FreshRequest) {
			h.provider.respond = func(int) (providers.Image, error) { return providers.Image{}, nil }
		}, storage.StatusProviderError},
		{"storage_error", func(h *harness, _ *decision.FreshRequest) {
			h.backend.errs = []error{errors.New("nope")}
		}, storage.StatusStorageError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			req := foodOnInstagram()
			tc.setup(h, &req)
			h.seed(t, "req-x", req)

			out := h.engine.Regenerate(context.Background(), RegenerateRequest{RequestID: "req-x"})
			if out.Status != tc.status {
				t.Fatalf("expected %s, got %+v", tc.status, out)
			}
			if len(h.store.upserts) != 1 || h.store.upserts[0].Status != tc.status {
				t.Fatalf("expected exactly one %s upsert, got %+v", tc.status, h.store.upserts)
			}
			finish := h.finishEvents()
			if len(finish) != 1 || finish[0].OK != (tc.status == storage.StatusSuccess) {
				t.Fatalf("unexpected finish events %+v", finish)
			}
			if finish[0].Data["status"] != tc.status {
				t.Fatalf("finish event status %v", finish[0].Data["status"])
			}
		})
	}
}

func TestGenerateKeepsPromptAndFreeTextInMemory(t *testing.T) {
	h := newHarness(t)
	const businessName = "Casa Verdi Trattoria"
	const userText = "candlelit anniversary dinner with tiramisu"

	out := h.engine.Generate(context.Background(), GenerateRequest{
		Platform:     "instagram",
		Category:     "food",
		Aspect:       "1:1",
		Industry:     "restaurant",
		Vibe:         "warm",
		BusinessName: businessName,
		UserText:     userText,
	})
	if !out.OK() || out.RequestID != "req-fresh" {
		t.Fatalf("expected success, got %+v", out)
	}
	if len(h.provider.prompts) != 2 || h.provider.prompts[0] == "" {
		t.Fatalf("provider did not receive prompt text")
	}

	var persisted []string
	for _, r := range h.store.upserts {
		persisted = append(persisted, r.DecisionJSON)
	}
	for _, e := range h.store.events {
		b, _ := json.Marshal(e)
		persisted = append(persisted, string(b))
	}
	for _, e := range h.sink.published {
		b, _ := json.Marshal(e)
		persisted = append(persisted, string(b))
	}
	d, _ := json.Marshal(out.Decision)
	img, _ := json.Marshal(out.Image)
	persisted = append(persisted, string(d), string(img), out.Message, out.FallbackReason, h.logs.String())

	secrets := append([]string{businessName, userText}, h.provider.prompts...)
	for _, s := range persisted {
		for _, secret := range secrets {
			if secret != "" && strings.Contains(s, secret) {
				t.Fatalf("%q leaked into %s", secret, s)
			}
		}
	}
}

func TestGenerateTextVerdictSticksOnRegenerate(t *testing.T) {
	h := newHarness(t)
	out := h.engine.Generate(context.Background(), GenerateRequest{
		Platform: "instagram",
		Category: "product",
		Aspect:   "1:1",
		UserText: "show the new rifle in the window",
	})
	if out.Status != storage.StatusBlocked {
		t.Fatalf("expected text block, got %+v", out)
	}

	again := h.engine.Regenerate(context.Background(), RegenerateRequest{RequestID: out.RequestID})
	if again.Status != storage.StatusBlocked {
		t.Fatalf("regenerate laundered the text verdict: %+v", again)
	}
	found := false
	for _, r := range again.Decision.Safety.Reasons {
		if r == safety.ReasonPriorBlock {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected prior_block, got %v", again.Decision.Safety.Reasons)
	}
	if h.provider.callCount() != 0 {
		t.Fatalf("provider invoked for blocked request")
	}
}

func TestRegenerateProviderOverride(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "req-o", foodOnInstagram())

	out := h.engine.Regenerate(context.Background(), RegenerateRequest{RequestID: "req-o", ProviderOverride: "openai"})
	if out.Status != storage.StatusProviderError {
		t.Fatalf("unregistered override should be a provider error, got %+v", out)
	}
	if out.Decision.ProviderPlan.ProviderID != "openai" {
		t.Fatalf("override not applied: %+v", out.Decision.ProviderPlan)
	}
	if h.provider.callCount() != 0 {
		t.Fatalf("persisted provider called despite override")
	}

	out = h.engine.Regenerate(context.Background(), RegenerateRequest{RequestID: "req-o", ProviderOverride: "nano_banana"})
	if !out.OK() {
		t.Fatalf("override back to a registered provider failed: %+v", out)
	}
}

func TestRegenerateUnreadableDecision(t *testing.T) {
	h := newHarness(t)
	h.store.records["req-bad"] = storage.ImageRequest{RequestID: "req-bad", Status: storage.StatusSuccess, DecisionJSON: `{"version":99}`}

	out := h.engine.Regenerate(context.Background(), RegenerateRequest{RequestID: "req-bad"})
	if out.ErrorCode != CodeInternal {
		t.Fatalf("expected INTERNAL_ERROR, got %+v", out)
	}
	if len(h.store.upserts) != 0 {
		t.Fatalf("unreadable decision must not overwrite the record")
	}
	finish := h.finishEvents()
	if len(finish) != 1 || finish[0].OK {
		t.Fatalf("expected a failed finish event, got %+v", finish)
	}
}

func TestBestEffortFailuresDoNotChangeOutcome(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "req-be", foodOnInstagram())
	h.store.upsertErr = errors.New("db down")
	h.store.eventErr = errors.New("db down")
	h.sink.panics = true

	out := h.engine.Regenerate(context.Background(), RegenerateRequest{RequestID: "req-be"})
	if !out.OK() {
		t.Fatalf("best-effort failures changed the outcome: %+v", out)
	}

	logs := h.logs.String()
	if n := strings.Count(logs, `"op":"persist"`); n != 1 {
		t.Fatalf("expected 1 persist failure, got %d", n)
	}
	if n := strings.Count(logs, `"op":"event"`); n != 4 {
		t.Fatalf("expected 4 event failures, got %d", n)
	}
	if n := strings.Count(logs, `"op":"publish"`); n != 4 {
		t.Fatalf("expected 4 publish failures, got %d", n)
	}
}

func TestRecorderIgnoresCancelledCaller(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "req-c", foodOnInstagram())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h.engine.recorder.Persist(ctx, storage.ImageRequest{RequestID: "req-c", Status: storage.StatusFallback, DecisionJSON: "{}"})
	if len(h.store.upserts) != 1 {
		t.Fatalf("persist skipped for cancelled caller")
	}
}
