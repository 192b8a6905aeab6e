package fetcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhidu-qidian/Spiders/internal/metrics"
	"github.com/zhidu-qidian/Spiders/internal/spider"
)

// Promoter decides whether a plain response needs a browser render.
type Promoter interface {
	ShouldPromote(resp spider.FetchResponse) bool
}

// Waiter blocks until a request to url may be sent.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Router sends requests through the plain fetcher and hands them to the
// headless fetcher when asked to render or when the promoter says so.
type Router struct {
	plain    spider.Fetcher
	headless spider.Fetcher
	promoter Promoter
	limiter  Waiter
	logger   *zap.Logger
}

// RouterOption customises a Router.
type RouterOption func(*Router)

// WithHeadless enables rendering through f.
func WithHeadless(f spider.Fetcher) RouterOption {
	return func(r *Router) { r.headless = f }
}

// WithPromoter enables automatic promotion to the headless fetcher.
func WithPromoter(p Promoter) RouterOption {
	return func(r *Router) { r.promoter = p }
}

// WithLimiter applies per-domain politeness before every request.
func WithLimiter(w Waiter) RouterOption {
	return func(r *Router) { r.limiter = w }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// NewRouter wraps plain.
func NewRouter(plain spider.Fetcher, opts ...RouterOption) *Router {
	r := &Router{plain: plain, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fetch implements spider.Fetcher.
func (r *Router) Fetch(ctx context.Context, req spider.FetchRequest) (spider.FetchResponse, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, req.URL); err != nil {
			return spider.FetchResponse{}, err
		}
	}
	if req.Render && r.headless != nil {
		return r.render(ctx, req)
	}

	resp, err := r.plain.Fetch(ctx, req)
	metrics.ObserveFetch(req.URL, resp.StatusCode, len(resp.Body))
	if err != nil {
		return resp, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	if r.headless == nil || r.promoter == nil || !r.promoter.ShouldPromote(resp) {
		return resp, nil
	}

	r.logger.Debug("promoting fetch to headless", zap.String("url", req.URL))
	rendered, err := r.render(ctx, req)
	if err != nil {
		r.logger.Warn("headless fetch failed, keeping plain response",
			zap.String("url", req.URL),
			zap.Error(err),
		)
		return resp, nil
	}
	return rendered, nil
}

func (r *Router) render(ctx context.Context, req spider.FetchRequest) (spider.FetchResponse, error) {
	resp, err := r.headless.Fetch(ctx, req)
	metrics.ObserveFetch(req.URL, resp.StatusCode, len(resp.Body))
	if err != nil {
		return resp, fmt.Errorf("render %s: %w", req.URL, err)
	}
	return resp, nil
}
