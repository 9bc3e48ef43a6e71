// Package registry resolves provider ids to image backends. It is built once at
// startup and only read afterwards.
package registry

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"imagegate/internal/decision"
	"imagegate/internal/providers"
	"imagegate/internal/providers/custom_http"
	"imagegate/internal/providers/gemini_image"
	"imagegate/internal/providers/openai_images"
	"imagegate/internal/providers/placeholder"
)

type Definition struct {
	ID      string
	Kind    string
	BaseURL string
	APIKey  string
	Headers map[string]string
	Models  map[string]string
	Config  map[string]any
	Timeout time.Duration
}

func Build(def Definition) (providers.ImageProvider, error) {
	if def.Config == nil {
		def.Config = map[string]any{}
	}
	timeout := def.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	defaultModel, _ := def.Config["model"].(string)

	switch strings.ToLower(strings.TrimSpace(def.Kind)) {
	case "openai_images", "openai-images", "openai":
		return openai_images.New(openai_images.Config{
			BaseURL:      def.BaseURL,
			APIKey:       def.APIKey,
			Headers:      def.Headers,
			Models:       def.Models,
			DefaultModel: defaultModel,
			HTTPClient:   httpClient,
		}), nil

	case "gemini_image", "gemini-image", "gemini":
		return gemini_image.New(gemini_image.Config{
			BaseURL:      def.BaseURL,
			APIKey:       def.APIKey,
			Headers:      def.Headers,
			Models:       def.Models,
			DefaultModel: defaultModel,
			HTTPClient:   httpClient,
		}), nil

	case "custom_http", "custom-http":
		bodyTemplate, _ := def.Config["body_template"].(string)
		method := http.MethodPost
		if v, ok := def.Config["method"].(string); ok && v != "" {
			method = strings.ToUpper(v)
		}
		return custom_http.New(custom_http.Config{
			URL:          def.BaseURL,
			APIKey:       def.APIKey,
			Headers:      def.Headers,
			BodyTemplate: bodyTemplate,
			Method:       method,
			Models:       def.Models,
			HTTPClient:   httpClient,
		})

	case "placeholder":
		return placeholder.New(placeholder.Config{}), nil

	default:
		return nil, fmt.Errorf("unsupported provider kind %q", def.Kind)
	}
}

type Registry struct {
	byID map[string]providers.ImageProvider
}

func New(defs []Definition) (*Registry, error) {
	r := &Registry{byID: make(map[string]providers.ImageProvider, len(defs))}
	for _, def := range defs {
		id := strings.TrimSpace(def.ID)
		if id == "" {
			return nil, fmt.Errorf("provider definition without id (kind %q)", def.Kind)
		}
		if !decision.ValidProviderID(id) {
			return nil, fmt.Errorf("provider id %q is not a valid token", id)
		}
		if _, dup := r.byID[id]; dup {
			return nil, fmt.Errorf("duplicate provider id %q", id)
		}
		p, err := Build(def)
		if err != nil {
			return nil, fmt.Errorf("build provider %q: %w", id, err)
		}
		r.byID[id] = p
	}
	return r, nil
}

// Register adds or replaces a provider. Call it only while wiring, before the
// registry is shared.
func (r *Registry) Register(id string, p providers.ImageProvider) {
	if r.byID == nil {
		r.byID = map[string]providers.ImageProvider{}
	}
	r.byID[id] = p
}

func (r *Registry) Get(id string) (providers.ImageProvider, bool) {
	p, ok := r.byID[id]
	return p, ok
}

func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Generate resolves providerID and calls it through the adapter boundary. An
// unknown id is a NOT_CONFIGURED provider error.
func (r *Registry) Generate(ctx context.Context, providerID string, req providers.GenerateRequest) providers.Result {
	p, ok := r.Get(providerID)
	if !ok {
		return providers.Failure(providers.Errorf(providers.KindNotConfigured, "unknown provider id %q", providerID))
	}
	return providers.Invoke(ctx, p, req)
}
