package stage

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/zhidu-qidian/Spiders/internal/feed"
	"github.com/zhidu-qidian/Spiders/internal/fetcher"
	"github.com/zhidu-qidian/Spiders/internal/spider"
	"github.com/zhidu-qidian/Spiders/internal/textutil"
)

// MediaParser reads the video or joke payloads listed at url.
type MediaParser interface {
	Parse(ctx context.Context, url string) ([]spider.Fields, error)
}

// MediaRegistry maps a form and a site id to the parser of that site.
type MediaRegistry struct {
	mu      sync.RWMutex
	parsers map[spider.Form]map[string]MediaParser
}

// NewMediaRegistry returns an empty registry.
func NewMediaRegistry() *MediaRegistry {
	return &MediaRegistry{parsers: map[spider.Form]map[string]MediaParser{}}
}

// Register adds or replaces the parser of site for form.
func (m *MediaRegistry) Register(form spider.Form, site string, p MediaParser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.parsers[form] == nil {
		m.parsers[form] = map[string]MediaParser{}
	}
	m.parsers[form][site] = p
}

// Lookup returns the parser of site for form.
func (m *MediaRegistry) Lookup(form spider.Form, site string) (MediaParser, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.parsers[form][site]
	return p, ok
}

// VideoCrawlers names the feed config that parses each video site.
var VideoCrawlers = map[string]string{
	"58be81943deaeb61dd2e28a6": "video_meipai",
	"583bc5155d272cd5c47a7668": "video_weibo",
	"57a43ec2da083a1c19957a64": "video_thepaper",
	"591ebb17ccb1365d651a43b8": "video_autohome",
	"598bd600921e6d6f9aa02667": "video_yingtu",
	"598bd839921e6d6f9aa0266b": "video_miaopai",
	"598bf7f5921e6d6faaa025f1": "video_budejie",
	"598bf9c9921e6d6faaa025f9": "video_4399pk",
	"598bfa8a921e6d6faaa025fd": "video_gifcool",
	"598c02ed921e6d6f9aa026b0": "video_pearvideo",
	"57bc0afeda083a1c19957b29": "video_duowan",
	"57c64e49fe8eca2b7946609a": "video_ifeng",
}

// JokeCrawlers names the feed config that parses each joke site.
var JokeCrawlers = map[string]string{
	"591ebfd8ccb1365d651a43c2": "joke_waduanzi",
	"591ebf14ccb1365d651a43bf": "joke_pengfu",
	"59781274921e6d3682fab08c": "joke_neihan",
	"598bf748921e6d6f9aa02678": "joke_caoegg",
	"598bf7f5921e6d6faaa025f1": "joke_budejie",
	"598bfc10921e6d6faaa02601": "joke_duanzidao",
	"598bfd90921e6d6f9aa02692": "joke_3jy",
	"598bfe3e921e6d6faaa02605": "joke_360wa",
	"598bfec8921e6d6f9aa0269c": "joke_fun48",
	"598bff24921e6d6faaa02609": "joke_biedoul",
	"598bffa4921e6d6f9aa0269d": "joke_nbsw",
	"598c00da921e6d6faaa02610": "joke_helegehe",
	"598c0241921e6d6f9aa026ac": "joke_khdx",
}

// RegisterFeedParsers registers a FeedParser for every site in crawlers.
func RegisterFeedParsers(m *MediaRegistry, form spider.Form, crawlers map[string]string, feeds *feed.Engine, f spider.Fetcher) {
	for site, crawler := range crawlers {
		m.Register(form, site, FeedParser{Feeds: feeds, Fetcher: f, Crawler: crawler})
	}
}

// FeedParser reads media listings with a feed config whose items carry the
// media fields.
type FeedParser struct {
	Feeds   *feed.Engine
	Fetcher spider.Fetcher
	Crawler string
}

// Parse implements MediaParser.
func (p FeedParser) Parse(ctx context.Context, url string) ([]spider.Fields, error) {
	if !p.Feeds.Supports(p.Crawler) {
		return nil, spider.NotSupported("feed crawler %s not configured", p.Crawler)
	}
	resp, err := p.Fetcher.Fetch(ctx, fetcher.Get(url, fetcher.RandomBrowser(), ""))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	items, err := p.Feeds.Parse(ctx, p.Crawler, resp.Text, toPage(resp, url).URL)
	if err != nil {
		return nil, err
	}
	out := make([]spider.Fields, 0, len(items))
	for _, item := range items {
		out = append(out, mediaFields(item))
	}
	return out, nil
}

func mediaFields(item feed.Item) spider.Fields {
	f := spider.Fields{
		Title:          item.Title,
		PublishTime:    item.PublishTime,
		PublishOriName: item.PublishSite,
		PublishOriURL:  item.URL,
		Abstract:       item.Abstract,
		Tags:           item.Keywords,
		Text:           item.Text,
		Src:            item.Src,
		Thumbnail:      item.Thumb,
		Duration:       atoi(item.Duration),
		NLike:          atoi(item.NLike),
		NDislike:       atoi(item.NDislike),
		NComment:       atoi(item.NComment),
	}
	if f.PublishOriName == "" {
		f.PublishOriName = item.Author
	}
	return f
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// Video parses the videos listed by a config into records at the detail
// code.
func (s *Stages) Video(ctx context.Context, id string) ([]string, error) {
	return s.media(ctx, id, spider.FormVideo)
}

// Joke parses the jokes listed by a config into records at the detail code.
func (s *Stages) Joke(ctx context.Context, id string) ([]string, error) {
	return s.media(ctx, id, spider.FormJoke)
}

func (s *Stages) media(ctx context.Context, id string, form spider.Form) ([]string, error) {
	cfg, ch, err := s.configAndChannel(ctx, id)
	if err != nil {
		return nil, err
	}
	parser, ok := s.deps.Media.Lookup(form, ch.Site)
	if !ok {
		return nil, spider.NotSupported("not support parse %s channel: %s", form, cfg.Channel)
	}
	url := cfg.Request.URL
	if len(cfg.Request.Params) > 0 {
		url = textutil.RebuildURL(url, cfg.Request.Params)
	}
	list, err := parser.Parse(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("parse %s listing %s: %w", form, url, err)
	}

	now := s.now()
	var ids []string
	for _, fields := range list {
		r := spider.NewRecord(cfg, ch, now)
		r.Fields = fields
		r.Unique = mediaUnique(form, fields)
		r.Procedure = spider.ProcedureDetail
		if newID, ok := s.insert(ctx, r); ok {
			ids = append(ids, newID)
		}
	}
	return ids, nil
}

func mediaUnique(form spider.Form, f spider.Fields) string {
	if form == spider.FormJoke {
		return textutil.MD5(f.Text)
	}
	return f.PublishOriURL
}
