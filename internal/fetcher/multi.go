package fetcher

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/zhidu-qidian/Spiders/internal/spider"
)

// DefaultConcurrency bounds MultiFetch when no limit is given.
const DefaultConcurrency = 8

// Result is the outcome of one request in a batch.
type Result struct {
	Response spider.FetchResponse
	Err      error
}

// MultiFetch downloads every request with at most limit in flight. Results
// line up with reqs; a failed request never cancels its siblings.
func MultiFetch(ctx context.Context, f spider.Fetcher, reqs []spider.FetchRequest, limit int) []Result {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	results := make([]Result, len(reqs))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, req := range reqs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			resp, err := f.Fetch(ctx, req)
			results[i] = Result{Response: resp, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// MultiGet fetches urls with a shared referer and a random desktop agent each.
func MultiGet(ctx context.Context, f spider.Fetcher, urls []string, referer string, limit int) []Result {
	reqs := make([]spider.FetchRequest, len(urls))
	for i, url := range urls {
		reqs[i] = Get(url, RandomBrowser(), referer)
	}
	return MultiFetch(ctx, f, reqs, limit)
}
