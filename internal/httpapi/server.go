// Package httpapi exposes the image engine over HTTP. Pipeline outcomes are
// always answered with status 200; callers branch on the body's ok flag.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"imagegate/internal/metrics"
	"imagegate/internal/pipeline"
	"imagegate/internal/ratelimit"
	"imagegate/internal/storage"
)

type Engine interface {
	Regenerate(ctx context.Context, req pipeline.RegenerateRequest) pipeline.Outcome
	Generate(ctx context.Context, req pipeline.GenerateRequest) pipeline.Outcome
	Lookup(ctx context.Context, requestID string, limit int) (storage.ImageRequest, []storage.EngineEvent, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, scope ratelimit.Scope, subject string, now time.Time) (ratelimit.Quota, error)
}

type Server struct {
	engine    Engine
	limiter   RateLimiter
	jwtSecret []byte
	demoMode  bool
	filesDir  string
	now       func() time.Time
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

type Config struct {
	Engine Engine
	// RateLimiter is optional; nil disables the per-caller limit.
	RateLimiter RateLimiter
	// JWTSecret enables bearer auth on the API group when set.
	JWTSecret string
	DemoMode  bool
	// FilesDir is served under /files when set.
	FilesDir string
	Now      func() time.Time
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
}

func New(cfg Config) *Server {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	var secret []byte
	if cfg.JWTSecret != "" {
		secret = []byte(cfg.JWTSecret)
	}
	return &Server{
		engine:    cfg.Engine,
		limiter:   cfg.RateLimiter,
		jwtSecret: secret,
		demoMode:  cfg.DemoMode,
		filesDir:  cfg.FilesDir,
		now:       cfg.Now,
		logger:    cfg.Logger.With().Str("component", "http").Logger(),
		metrics:   m,
	}
}

func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(s.recovery(), s.accessLog())

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if s.filesDir != "" {
		r.Static("/files", s.filesDir)
	}

	api := r.Group("/api/image-engine", s.auth())
	api.POST("/regenerate", s.demoGate(), s.rateGate(ratelimit.ScopeRegenerate), s.regenerate)
	api.POST("/generate", s.demoGate(), s.rateGate(ratelimit.ScopeGenerate), s.generate)
	api.GET("/requests/:requestId", s.getRequest)
	return r
}
