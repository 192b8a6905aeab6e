package stage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhidu-qidian/Spiders/internal/fetcher"
	"github.com/zhidu-qidian/Spiders/internal/spider"
)

// Download fills the pages of a listed record. A listing that already
// carried the article html is reused as page 0; otherwise page 0 is fetched
// and the pagination judge decides which continuation pages follow.
func (s *Stages) Download(ctx context.Context, id string) ([]string, error) {
	r, err := s.record(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(r.Pages) == 0 {
		return nil, fmt.Errorf("record %s has no pages", id)
	}

	pages := append([]spider.Page(nil), r.Pages...)
	if r.ListFields.HTML != "" {
		pages[0].HTML = r.ListFields.HTML
	} else {
		pages, err = s.downloadPages(ctx, pages[0].URL)
		if err != nil {
			return nil, err
		}
	}

	procedure := spider.ProcedureDownload
	if err := s.update(ctx, id, spider.Patch{Procedure: &procedure, Pages: pages}); err != nil {
		return nil, err
	}
	return []string{id}, nil
}

func (s *Stages) downloadPages(ctx context.Context, url string) ([]spider.Page, error) {
	resp, err := s.fetchPage(ctx, url)
	if err != nil {
		return nil, err
	}
	first := toPage(resp, url)
	pages := []spider.Page{first}
	if s.deps.Pages == nil {
		return pages, nil
	}
	urls, err := s.deps.Pages.Pages(first.HTML, first.URL)
	if err != nil {
		return nil, fmt.Errorf("judge pages of %s: %w", first.URL, err)
	}
	results := fetcher.MultiGet(ctx, s.deps.Fetcher, urls, "", s.concurrency)
	for i, res := range results {
		if res.Err == nil {
			pages = append(pages, toPage(res.Response, urls[i]))
			continue
		}
		resp, err := s.stableFetch(ctx, urls[i])
		if err != nil {
			return nil, err
		}
		pages = append(pages, toPage(resp, urls[i]))
	}
	return pages, nil
}

// fetchPage downloads url with a random desktop agent and retries once with
// the stable one.
func (s *Stages) fetchPage(ctx context.Context, url string) (spider.FetchResponse, error) {
	resp, err := s.deps.Fetcher.Fetch(ctx, fetcher.Get(url, fetcher.RandomBrowser(), ""))
	if err == nil {
		return resp, nil
	}
	s.logger.Debug("download failed, retrying with the stable agent",
		zap.String("url", url),
		zap.Error(err),
	)
	return s.stableFetch(ctx, url)
}

func (s *Stages) stableFetch(ctx context.Context, url string) (spider.FetchResponse, error) {
	resp, err := s.deps.Fetcher.Fetch(ctx, fetcher.Get(url, fetcher.DefaultBrowser(), ""))
	if err != nil {
		return spider.FetchResponse{}, fmt.Errorf("download %s: %w", url, err)
	}
	return resp, nil
}

func toPage(resp spider.FetchResponse, requested string) spider.Page {
	url := resp.URL
	if url == "" {
		url = requested
	}
	return spider.Page{URL: url, HTML: resp.Text}
}
