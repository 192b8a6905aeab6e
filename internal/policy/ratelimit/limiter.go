// Package ratelimit keeps a token bucket per domain so sites are not hit
// harder than their configured rate.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/zhidu-qidian/Spiders/internal/metrics"
)

// Limiter manages per-domain rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
	domainRates  map[string]float64
}

// Config holds rate limiter configuration. DomainRPS overrides the default
// for a host and its subdomains.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
	DomainRPS    map[string]float64
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	rates := make(map[string]float64, len(cfg.DomainRPS))
	for domain, rps := range cfg.DomainRPS {
		rates[strings.ToLower(domain)] = rps
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  limitFor(cfg.DefaultRPS),
		defaultBurst: burst,
		domainRates:  rates,
	}
}

func limitFor(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

// Wait blocks until a token is available for the URL's host.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	domain := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		domain = strings.ToLower(u.Hostname())
	}
	limiter := l.limiterFor(domain)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(domain, waited)
	}
	return nil
}

func (l *Limiter) limiterFor(domain string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, exists := l.limiters[domain]
	if !exists {
		limiter = rate.NewLimiter(l.rateFor(domain), l.defaultBurst)
		l.limiters[domain] = limiter
	}
	return limiter
}

// rateFor picks the longest configured suffix of domain.
func (l *Limiter) rateFor(domain string) rate.Limit {
	best := ""
	for suffix := range l.domainRates {
		if (domain == suffix || strings.HasSuffix(domain, "."+suffix)) && len(suffix) > len(best) {
			best = suffix
		}
	}
	if best == "" {
		return l.defaultRate
	}
	return limitFor(l.domainRates[best])
}
