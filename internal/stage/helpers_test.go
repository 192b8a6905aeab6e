package stage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhidu-qidian/Spiders/internal/extract"
	"github.com/zhidu-qidian/Spiders/internal/feed"
	"github.com/zhidu-qidian/Spiders/internal/pagination"
	pubmemory "github.com/zhidu-qidian/Spiders/internal/publisher/memory"
	queuememory "github.com/zhidu-qidian/Spiders/internal/queue/memory"
	"github.com/zhidu-qidian/Spiders/internal/spider"
	"github.com/zhidu-qidian/Spiders/internal/storage/memory"
)

const testFeeds = `{"list": [
  {
    "crawler": "example_html",
    "list": {"method": "select", "params": {"selector": "ul.news > li"}},
    "title": {"params": {"name": "a"}},
    "url": {"params": {"name": "a"}, "attribute": "href"},
    "thumb": {"params": {"name": "img"}, "attribute": "src"},
    "comment_id": {"params": {"name": "span", "class_": "cid"}}
  },
  {
    "crawler": "video_meipai",
    "type": "ajax",
    "list": "videos",
    "title": "caption",
    "url": "link",
    "src": "mp4",
    "n_dislike": "down"
  }
]}`

const testArticles = `{
  "example.com": {
    "configs": {
      "1": {
        "title": {"params": {"name": "h1"}},
        "date": {"params": {"name": "span", "class_": "time"}},
        "source": "Example Daily",
        "content": {"params": {"id": "body"}},
        "missing": {"params": {"class_": "app-only"}}
      }
    },
    "match": {"example.com": ["1"]}
  }
}`

const testPagination = `{"domain": "example.com", "conf": {
  "NUMBER": {"params": {"id": "total"}, "attribute": "data-total"},
  "TEMPLATE": {"template": "-%d", "join": false, "separator": null}
}}`

var testNow = time.Date(2017, 5, 4, 10, 0, 0, 0, time.Local)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("rec-%d", s.n), nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	fails map[string]int
	reqs  []spider.FetchRequest
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: map[string]string{}, fails: map[string]int{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, req spider.FetchRequest) (spider.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if n := f.fails[req.URL]; n > 0 {
		f.fails[req.URL] = n - 1
		return spider.FetchResponse{}, errors.New("connection reset")
	}
	body, ok := f.pages[req.URL]
	if !ok {
		return spider.FetchResponse{StatusCode: 404}, fmt.Errorf("no page at %s", req.URL)
	}
	return spider.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(body), Text: body}, nil
}

func (f *fakeFetcher) requests() []spider.FetchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]spider.FetchRequest(nil), f.reqs...)
}

type feedCall struct {
	urls    []string
	scoring bool
}

type fakeImages struct {
	mu       sync.Mutex
	errs     map[string]error
	uploads  [][]string
	referers []string
	feeds    []feedCall
}

// FetchAndUpload fails with errs[urls[0]] when set.
func (f *fakeImages) FetchAndUpload(_ context.Context, urls []string, referer string) ([]spider.ImageMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, urls)
	f.referers = append(f.referers, referer)
	if err := f.errs[urls[0]]; err != nil {
		return nil, err
	}
	metas := make([]spider.ImageMeta, len(urls))
	for i, u := range urls {
		metas[i] = spider.ImageMeta{
			Src:    "http://img.cdn/" + path.Base(u),
			Width:  640,
			Height: 480,
			MD5:    "md5-" + path.Base(u),
			Org:    u,
		}
	}
	return metas, nil
}

func (f *fakeImages) ChooseFeeds(_ context.Context, urls []string, scoring bool) ([]spider.FeedImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feeds = append(f.feeds, feedCall{urls: urls, scoring: scoring})
	return []spider.FeedImage{{Src: urls[0] + "#feed", Width: 400, Height: 300}}, nil
}

type env struct {
	records   *memory.RecordStore
	configs   *memory.ConfigSource
	outputs   *memory.OutputStore
	ads       *memory.AdRegistry
	broker    *queuememory.Broker
	fetcher   *fakeFetcher
	images    *fakeImages
	publisher *pubmemory.Publisher
	stages    *Stages
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	feedSnap, err := feed.ParseSnapshot([]byte(testFeeds))
	require.NoError(t, err)
	articleSnap, err := extract.ParseSnapshot([]byte(testArticles))
	require.NoError(t, err)
	pageSnap, err := pagination.ParseSnapshot([]byte(testPagination))
	require.NoError(t, err)

	ids := &seqIDs{}
	e := &env{
		records:   memory.NewRecordStore(ids),
		configs:   memory.NewConfigSource(),
		outputs:   memory.NewOutputStore(ids),
		ads:       memory.NewAdRegistry(),
		broker:    queuememory.NewBroker(),
		fetcher:   newFakeFetcher(),
		images:    &fakeImages{errs: map[string]error{}},
		publisher: pubmemory.New(),
	}
	clock := fixedClock{testNow}
	feeds := feed.NewEngine(feed.NewStaticStore(feedSnap), feed.WithClock(clock))
	media := NewMediaRegistry()
	RegisterFeedParsers(media, spider.FormVideo, VideoCrawlers, feeds, e.fetcher)

	e.stages, err = New(Deps{
		Records:   e.records,
		Configs:   e.configs,
		Outputs:   e.outputs,
		Ads:       e.ads,
		Broker:    e.broker,
		Fetcher:   e.fetcher,
		Images:    e.images,
		Publisher: e.publisher,
		Feeds:     feeds,
		Details:   extract.NewEngine(extract.NewStaticConfigStore(articleSnap), nil, extract.WithClock(clock)),
		Pages:     pagination.NewJudge(pagination.NewStaticStore(pageSnap)),
		Media:     media,
		Clock:     clock,
	}, append([]Option{WithLogger(zap.NewNop())}, opts...)...)
	require.NoError(t, err)
	return e
}

func (e *env) addConfig(cfg spider.SiteConfig, ch spider.Channel) {
	e.configs.PutChannel(ch)
	e.configs.PutConfig(cfg)
}

// seed stores r as is and returns its id.
func (e *env) seed(t *testing.T, r spider.Record) string {
	t.Helper()
	id, err := e.records.Insert(context.Background(), &r)
	require.NoError(t, err)
	return id
}

func (e *env) get(t *testing.T, id string) *spider.Record {
	t.Helper()
	r, err := e.records.Get(context.Background(), id)
	require.NoError(t, err)
	return r
}
