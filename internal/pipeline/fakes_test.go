package pipeline

import (
	"context"
	"sync"

	"imagegate/internal/blobstore"
	"imagegate/internal/providers"
	"imagegate/internal/storage"
)

type fakeStore struct {
	mu        sync.Mutex
	records   map[string]storage.ImageRequest
	upserts   []storage.ImageRequest
	events    []storage.EngineEvent
	getErr    error
	upsertErr error
	eventErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]storage.ImageRequest{}}
}

func (s *fakeStore) GetImageRequest(_ context.Context, requestID string) (storage.ImageRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return storage.ImageRequest{}, s.getErr
	}
	r, ok := s.records[requestID]
	if !ok {
		return storage.ImageRequest{}, storage.ErrNotFound
	}
	return r, nil
}

func (s *fakeStore) UpsertImageRequest(_ context.Context, r storage.ImageRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts = append(s.upserts, r)
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.records[r.RequestID] = r
	return nil
}

func (s *fakeStore) InsertEngineEvent(_ context.Context, e storage.EngineEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eventErr != nil {
		return s.eventErr
	}
	s.events = append(s.events, e)
	return nil
}

func (s *fakeStore) ListEngineEvents(_ context.Context, requestID string, _ int) ([]storage.EngineEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.EngineEvent
	for _, e := range s.events {
		if e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

// fakeProvider records every call, including the revealed prompt text, so
// tests can search persisted output for it.
type fakeProvider struct {
	mu      sync.Mutex
	calls   []providers.GenerateRequest
	prompts []string
	respond func(call int) (providers.Image, error)
}

func (p *fakeProvider) Generate(_ context.Context, req providers.GenerateRequest) (providers.Image, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.prompts = append(p.prompts, req.Prompt.Reveal(), req.NegativePrompt.Reveal())
	call := len(p.calls)
	p.mu.Unlock()
	if p.respond == nil {
		return providers.Image{Bytes: []byte("png-bytes"), MimeType: "image/png"}, nil
	}
	return p.respond(call)
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type fakeBackend struct {
	mu   sync.Mutex
	puts []blobstore.Object
	errs []error
}

func (b *fakeBackend) Put(_ context.Context, obj blobstore.Object) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts = append(b.puts, obj)
	if n := len(b.puts); n <= len(b.errs) && b.errs[n-1] != nil {
		return "", b.errs[n-1]
	}
	return "https://cdn.example.com/" + obj.Key, nil
}

func (b *fakeBackend) putCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.puts)
}

type fakeSink struct {
	mu        sync.Mutex
	published []storage.EngineEvent
	panics    bool
}

func (s *fakeSink) Publish(_ context.Context, e storage.EngineEvent) error {
	if s.panics {
		panic("broker client exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, e)
	return nil
}

func (s *fakeSink) Close() error { return nil }
