package extract

import (
	"context"
	"sort"
	"sync"

	"github.com/zhidu-qidian/Spiders/internal/spider"
)

// DefaultExtractor is used when a config names no extractor.
const DefaultExtractor = "default"

// Registry maps extractor names to implementations.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]SiteExtractor
}

// NewRegistry returns a registry holding the built-in site extractors.
func NewRegistry() *Registry {
	r := &Registry{extractors: map[string]SiteExtractor{}}
	registerBuiltins(r)
	return r
}

// Register adds or replaces an extractor.
func (r *Registry) Register(name string, e SiteExtractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[name] = e
}

// Lookup resolves name. Unknown names resolve to an extractor that fails
// with a NotSupported error.
func (r *Registry) Lookup(name string) SiteExtractor {
	if name == "" {
		name = DefaultExtractor
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.extractors[name]; ok {
		return e
	}
	return notSupported{name: name}
}

// Names lists registered extractors.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.extractors))
	for name := range r.extractors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type notSupported struct {
	name string
}

func (n notSupported) Extract(context.Context, Page, Config) (Result, error) {
	return Result{}, spider.NotSupported("extractor %q not supported", n.name)
}
