// Package headless renders pages that build their article or listing DOM
// in JavaScript.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/zhidu-qidian/Spiders/internal/spider"
)

// Defaults applied by New.
const (
	DefaultTimeout       = 45 * time.Second
	DefaultReadySelector = "body"
	DefaultSettle        = 500 * time.Millisecond
)

// mediaPatterns are never loaded when Config.BlockMedia is set; only the
// DOM is read, images are re-hosted later from their URLs.
var mediaPatterns = []string{
	"*.jpg", "*.jpeg", "*.png", "*.gif", "*.webp", "*.svg",
	"*.mp4", "*.flv", "*.m3u8", "*.woff", "*.woff2", "*.ttf",
}

// Config controls rendering. ReadySelector must be present before the DOM
// is read and Settle is waited after it and after every scroll. Scrolls
// pages down that many times for listings that load more items on scroll.
type Config struct {
	Slots         int
	UserAgent     string
	Timeout       time.Duration
	ReadySelector string
	Settle        time.Duration
	Scrolls       int
	BlockMedia    bool
}

// Browser renders pages in headless Chrome. It implements spider.Fetcher
// for GET requests.
type Browser struct {
	cfg   Config
	slots chan struct{}
	alloc context.Context
	stop  context.CancelFunc
}

// New starts an allocator for headless Chrome. Slots bounds the number of
// tabs open at once; zero means unbounded.
func New(cfg Config) (*Browser, error) {
	if cfg.Slots < 0 {
		return nil, fmt.Errorf("headless: slots must be >= 0, got %d", cfg.Slots)
	}
	if cfg.Scrolls < 0 {
		return nil, fmt.Errorf("headless: scrolls must be >= 0, got %d", cfg.Scrolls)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ReadySelector == "" {
		cfg.ReadySelector = DefaultReadySelector
	}
	if cfg.Settle <= 0 {
		cfg.Settle = DefaultSettle
	}

	b := &Browser{cfg: cfg}
	if cfg.Slots > 0 {
		b.slots = make(chan struct{}, cfg.Slots)
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.BlockMedia {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	b.alloc, b.stop = chromedp.NewExecAllocator(context.Background(), opts...)
	return b, nil
}

// Close shuts the browser down.
func (b *Browser) Close() {
	b.stop()
}

// Fetch renders req.URL and returns the DOM after scripts ran. Requests
// with a body cannot be replayed through navigation and fail with
// spider.ErrNotSupported.
func (b *Browser) Fetch(ctx context.Context, req spider.FetchRequest) (spider.FetchResponse, error) {
	if m := strings.ToUpper(req.Method); (m != "" && m != http.MethodGet) || len(req.Body) > 0 {
		return spider.FetchResponse{}, fmt.Errorf("render %s %s: %w", req.Method, req.URL, spider.ErrNotSupported)
	}
	if err := b.take(ctx); err != nil {
		return spider.FetchResponse{}, err
	}
	defer b.give()

	tab, closeTab := chromedp.NewContext(b.alloc)
	defer closeTab()
	tab, cancel := context.WithTimeout(tab, b.cfg.Timeout)
	defer cancel()
	// Stop rendering when the caller gives up.
	stopAfter := context.AfterFunc(ctx, cancel)
	defer stopAfter()

	doc := &documentResponse{}
	chromedp.ListenTarget(tab, doc.observe)

	var html, landed string
	start := time.Now()
	if err := chromedp.Run(tab, b.tasks(req, &html, &landed)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return spider.FetchResponse{}, ctxErr
		}
		return spider.FetchResponse{}, fmt.Errorf("render %s: %w", req.URL, err)
	}

	status, header, url := doc.result(req.URL, landed)
	return spider.FetchResponse{
		URL:          url,
		StatusCode:   status,
		Headers:      header,
		Body:         []byte(html),
		Text:         html,
		Duration:     time.Since(start),
		UsedHeadless: true,
	}, nil
}

func (b *Browser) tasks(req spider.FetchRequest, html, landed *string) chromedp.Tasks {
	tasks := chromedp.Tasks{
		b.prepare(req),
		chromedp.Navigate(req.URL),
		chromedp.WaitReady(b.cfg.ReadySelector, chromedp.ByQuery),
		chromedp.Sleep(b.cfg.Settle),
	}
	if b.cfg.Scrolls > 0 {
		tasks = append(tasks, b.scroll())
	}
	return append(tasks,
		chromedp.Location(landed),
		chromedp.OuterHTML("html", html, chromedp.ByQuery),
	)
}

// prepare sets the user agent, the request headers and the media block
// list on the fresh tab before navigating.
func (b *Browser) prepare(req spider.FetchRequest) chromedp.ActionFunc {
	agent := b.cfg.UserAgent
	if req.UserAgent != "" {
		agent = req.UserAgent
	}
	header := req.Headers.Clone()
	if req.Referer != "" {
		if header == nil {
			header = http.Header{}
		}
		header.Set("Referer", req.Referer)
	}
	return func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network: %w", err)
		}
		if agent != "" {
			if err := emulation.SetUserAgentOverride(agent).Do(ctx); err != nil {
				return fmt.Errorf("set user agent: %w", err)
			}
		}
		if len(header) > 0 {
			if err := network.SetExtraHTTPHeaders(networkHeaders(header)).Do(ctx); err != nil {
				return fmt.Errorf("set headers: %w", err)
			}
		}
		if b.cfg.BlockMedia {
			if err := network.SetBlockedURLs(mediaPatterns).Do(ctx); err != nil {
				return fmt.Errorf("block media: %w", err)
			}
		}
		return nil
	}
}

// scroll pages to the bottom up to Scrolls times, stopping once the
// document stops growing.
func (b *Browser) scroll() chromedp.ActionFunc {
	return func(ctx context.Context) error {
		last := -1
		for range b.cfg.Scrolls {
			var height int
			err := chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight); document.body.scrollHeight`, &height).Do(ctx)
			if err != nil {
				return fmt.Errorf("scroll: %w", err)
			}
			if height == last {
				return nil
			}
			last = height
			if err := chromedp.Sleep(b.cfg.Settle).Do(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func (b *Browser) take(ctx context.Context) error {
	if b.slots == nil {
		return nil
	}
	select {
	case b.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for browser tab: %w", ctx.Err())
	}
}

func (b *Browser) give() {
	if b.slots != nil {
		<-b.slots
	}
}

// documentResponse keeps the last main-document response seen by a tab.
// Redirects replace it, so it ends up describing the landed page.
type documentResponse struct {
	mu     sync.Mutex
	status int
	header http.Header
	url    string
}

func (d *documentResponse) observe(ev any) {
	e, ok := ev.(*network.EventResponseReceived)
	if !ok || e.Type != network.ResourceTypeDocument || e.Response == nil {
		return
	}
	header := headerFromNetwork(e.Response.Headers)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = int(e.Response.Status)
	d.header = header
	d.url = e.Response.URL
}

// result falls back to the landed location, then the requested URL, when
// no document response was observed, and to 200 for the status.
func (d *documentResponse) result(requested, landed string) (int, http.Header, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	status, header, url := d.status, d.header, d.url
	if url == "" {
		url = landed
	}
	if url == "" {
		url = requested
	}
	if status == 0 {
		status = http.StatusOK
	}
	if header == nil {
		header = http.Header{}
	}
	return status, header, url
}

func headerFromNetwork(src network.Headers) http.Header {
	header := make(http.Header, len(src))
	for key, value := range src {
		switch v := value.(type) {
		case string:
			// Chrome folds repeated headers into one newline-separated value.
			for _, line := range strings.Split(v, "\n") {
				header.Add(key, line)
			}
		case []any:
			for _, item := range v {
				header.Add(key, fmt.Sprint(item))
			}
		default:
			header.Add(key, fmt.Sprint(v))
		}
	}
	return header
}

func networkHeaders(h http.Header) network.Headers {
	out := make(network.Headers, len(h))
	for key, values := range h {
		if len(values) > 0 {
			out[key] = strings.Join(values, ", ")
		}
	}
	return out
}

var _ spider.Fetcher = (*Browser)(nil)
