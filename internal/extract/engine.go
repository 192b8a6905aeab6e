package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zhidu-qidian/Spiders/internal/spider"
)

// DefaultCheck is the field list a result must fill to be accepted.
var DefaultCheck = []string{"content"}

// Engine matches a URL against the config snapshot and runs the matching
// site extractors until one produces an acceptable result.
type Engine struct {
	configs  *ConfigStore
	registry *Registry
	fetcher  spider.Fetcher
	now      func() time.Time
	logger   *zap.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithFetcher lets Parse download pages it is not given.
func WithFetcher(f spider.Fetcher) Option {
	return func(e *Engine) { e.fetcher = f }
}

// WithClock sets the time source for relative dates.
func WithClock(c spider.Clock) Option {
	return func(e *Engine) { e.now = c.Now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine builds an engine. A nil registry uses the built-ins.
func NewEngine(configs *ConfigStore, registry *Registry, opts ...Option) *Engine {
	if registry == nil {
		registry = NewRegistry()
	}
	e := &Engine{
		configs:  configs,
		registry: registry,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Configs returns the engine's config store.
func (e *Engine) Configs() *ConfigStore {
	return e.configs
}

// Parse extracts the article at url. When document is empty the page is
// downloaded first. check lists the fields that must be non-empty for a
// config's result to be accepted (DefaultCheck when empty). A URL no config
// matches yields an empty result with Support false.
func (e *Engine) Parse(ctx context.Context, url, document string, check ...string) (Result, error) {
	if len(check) == 0 {
		check = DefaultCheck
	}
	configs := e.configs.Current().Match(url)
	if len(configs) == 0 {
		return Result{}, nil
	}
	if document == "" {
		if e.fetcher == nil {
			return Result{}, fmt.Errorf("no document for %s and no fetcher configured", url)
		}
		resp, err := e.fetcher.Fetch(ctx, spider.FetchRequest{URL: url})
		if err != nil {
			return Result{}, fmt.Errorf("download %s: %w", url, err)
		}
		document = resp.Text
	}

	page := Page{URL: url, HTML: document, Now: e.now()}
	for _, cfg := range configs {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		result, err := e.registry.Lookup(cfg.Extractor).Extract(ctx, page, cfg)
		if err != nil {
			level := e.logger.Warn
			if errors.Is(err, spider.ErrNotSupported) {
				level = e.logger.Debug
			}
			level("extract config failed",
				zap.String("url", url),
				zap.String("config", cfg.Name),
				zap.String("extractor", cfg.Extractor),
				zap.Error(err),
			)
			continue
		}
		if accepted(result, check) {
			result.Support = true
			return result, nil
		}
	}
	return Result{Support: true}, nil
}

func accepted(r Result, check []string) bool {
	for _, field := range check {
		if !r.Has(field) {
			return false
		}
	}
	return true
}
