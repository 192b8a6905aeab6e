package fetcher

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/zhidu-qidian/Spiders/internal/spider"
)

type stubFetcher struct {
	mu       sync.Mutex
	calls    []spider.FetchRequest
	fn       func(spider.FetchRequest) (spider.FetchResponse, error)
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (s *stubFetcher) Fetch(_ context.Context, req spider.FetchRequest) (spider.FetchResponse, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		peak := s.peak.Load()
		if n <= peak || s.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(req)
	}
	return spider.FetchResponse{URL: req.URL, StatusCode: http.StatusOK, Text: req.URL}, nil
}

func (s *stubFetcher) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type promoteAll bool

func (p promoteAll) ShouldPromote(spider.FetchResponse) bool { return bool(p) }

type countingWaiter struct{ n atomic.Int32 }

func (w *countingWaiter) Wait(context.Context, string) error {
	w.n.Add(1)
	return nil
}

func TestNewRequest(t *testing.T) {
	t.Parallel()

	req, err := NewRequest(spider.RequestSpec{
		URL:     "http://roll.news.qq.com/interface/list.php?site=news",
		Params:  map[string][]string{"page": {"1"}},
		Headers: map[string]string{"user_agent": "custom", "X-Requested-With": "XMLHttpRequest"},
	})
	require.NoError(t, err)
	require.Equal(t, http.MethodGet, req.Method)
	require.Equal(t, "custom", req.UserAgent)
	require.Equal(t, "XMLHttpRequest", req.Headers.Get("X-Requested-With"))
	require.Contains(t, req.URL, "page=1")
	require.Contains(t, req.URL, "site=news")

	req, err = NewRequest(spider.RequestSpec{
		URL:           "http://api.example.com/feed",
		Method:        "post",
		Params:        map[string][]string{"cid": {"7"}},
		UserAgentType: AgentMobile,
	})
	require.NoError(t, err)
	require.Equal(t, http.MethodPost, req.Method)
	require.Equal(t, "http://api.example.com/feed", req.URL)
	require.Equal(t, "cid=7", string(req.Body))
	require.Equal(t, DefaultMobile(), req.UserAgent)
	require.Equal(t, "application/x-www-form-urlencoded", req.Headers.Get("Content-Type"))

	req, err = NewRequest(spider.RequestSpec{URL: "http://example.com"})
	require.NoError(t, err)
	require.Equal(t, DefaultBrowser(), req.UserAgent)

	_, err = NewRequest(spider.RequestSpec{URL: "http://example.com", Method: "PUT"})
	require.ErrorContains(t, err, "only support GET or POST")
}

func TestUserAgents(t *testing.T) {
	t.Parallel()

	require.Contains(t, Browsers, RandomBrowser())
	require.Contains(t, Mobiles, RandomMobile())
	require.Equal(t, Mobiles[0], DefaultFor(AgentMobile))
	require.Equal(t, Browsers[0], DefaultFor(AgentPC))
	require.Equal(t, Browsers[0], DefaultFor("tablet"))
}

func TestDecodeBody(t *testing.T) {
	t.Parallel()

	gbk, err := simplifiedchinese.GBK.NewEncoder().String("中文")
	require.NoError(t, err)

	text, err := DecodeBody([]byte(gbk), "text/html; charset=gbk")
	require.NoError(t, err)
	require.Equal(t, "中文", text)

	text, err = DecodeBody([]byte("plain"), "")
	require.NoError(t, err)
	require.Equal(t, "plain", text)

	text, err = DecodeBody(nil, "text/html")
	require.NoError(t, err)
	require.Empty(t, text)
}

func TestMultiFetchKeepsOrderAndErrors(t *testing.T) {
	t.Parallel()

	stub := &stubFetcher{
		delay: 10 * time.Millisecond,
		fn: func(req spider.FetchRequest) (spider.FetchResponse, error) {
			if req.URL == "http://b" {
				return spider.FetchResponse{}, errors.New("boom")
			}
			return spider.FetchResponse{URL: req.URL, Text: req.URL}, nil
		},
	}
	results := MultiGet(context.Background(), stub, []string{"http://a", "http://b", "http://c", "http://d"}, "http://ref", 2)

	require.Len(t, results, 4)
	require.Equal(t, "http://a", results[0].Response.Text)
	require.EqualError(t, results[1].Err, "boom")
	require.Equal(t, "http://c", results[2].Response.Text)
	require.Equal(t, "http://d", results[3].Response.Text)
	require.LessOrEqual(t, stub.peak.Load(), int32(2))
	for _, call := range stub.calls {
		require.Equal(t, "http://ref", call.Referer)
		require.NotEmpty(t, call.UserAgent)
	}
}

func TestMultiFetchCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stub := &stubFetcher{}
	results := MultiFetch(ctx, stub, []spider.FetchRequest{{URL: "http://a"}}, 0)
	require.ErrorIs(t, results[0].Err, context.Canceled)
	require.Zero(t, stub.count())
}

func TestRouterPlainOnly(t *testing.T) {
	t.Parallel()

	plain := &stubFetcher{}
	waiter := &countingWaiter{}
	r := NewRouter(plain, WithLimiter(waiter), WithLogger(zap.NewNop()))

	resp, err := r.Fetch(context.Background(), spider.FetchRequest{URL: "http://a", Render: true})
	require.NoError(t, err)
	require.Equal(t, "http://a", resp.Text)
	require.Equal(t, 1, plain.count())
	require.Equal(t, int32(1), waiter.n.Load())
}

func TestRouterRenderAndPromote(t *testing.T) {
	t.Parallel()

	plain := &stubFetcher{}
	headless := &stubFetcher{fn: func(req spider.FetchRequest) (spider.FetchResponse, error) {
		return spider.FetchResponse{URL: req.URL, Text: "rendered", UsedHeadless: true}, nil
	}}

	r := NewRouter(plain, WithHeadless(headless))
	resp, err := r.Fetch(context.Background(), spider.FetchRequest{URL: "http://a", Render: true})
	require.NoError(t, err)
	require.Equal(t, "rendered", resp.Text)
	require.Zero(t, plain.count())

	r = NewRouter(plain, WithHeadless(headless), WithPromoter(promoteAll(true)))
	resp, err = r.Fetch(context.Background(), spider.FetchRequest{URL: "http://b"})
	require.NoError(t, err)
	require.True(t, resp.UsedHeadless)
	require.Equal(t, 1, plain.count())

	r = NewRouter(plain, WithHeadless(headless), WithPromoter(promoteAll(false)))
	resp, err = r.Fetch(context.Background(), spider.FetchRequest{URL: "http://c"})
	require.NoError(t, err)
	require.False(t, resp.UsedHeadless)
}

func TestRouterPromotionFailureKeepsPlain(t *testing.T) {
	t.Parallel()

	plain := &stubFetcher{}
	headless := &stubFetcher{fn: func(spider.FetchRequest) (spider.FetchResponse, error) {
		return spider.FetchResponse{}, errors.New("no browser")
	}}
	r := NewRouter(plain, WithHeadless(headless), WithPromoter(promoteAll(true)))

	resp, err := r.Fetch(context.Background(), spider.FetchRequest{URL: "http://a"})
	require.NoError(t, err)
	require.Equal(t, "http://a", resp.Text)

	_, err = r.Fetch(context.Background(), spider.FetchRequest{URL: "http://a", Render: true})
	require.ErrorContains(t, err, "no browser")
}

func TestRouterWrapsPlainErrors(t *testing.T) {
	t.Parallel()

	plain := &stubFetcher{fn: func(spider.FetchRequest) (spider.FetchResponse, error) {
		return spider.FetchResponse{StatusCode: http.StatusBadGateway}, errors.New("bad gateway")
	}}
	r := NewRouter(plain)
	resp, err := r.Fetch(context.Background(), spider.FetchRequest{URL: "http://a"})
	require.ErrorContains(t, err, "fetch http://a")
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
}
