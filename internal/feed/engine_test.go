package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhidu-qidian/Spiders/internal/spider"
	"github.com/zhidu-qidian/Spiders/internal/textutil"
)

const feedConfigs = `{"list": [
  {
    "crawler": "qq_html",
    "list": {"method": "select", "params": {"selector": "ul.news > li"}},
    "title": {"params": {"name": "a"}},
    "url": {"params": {"name": "a"}, "attribute": "href"},
    "thumb": {"params": {"name": "img"}, "attribute": "src"},
    "publish_time": {"params": {"name": "span", "class_": "time"}},
    "filter": "/video/",
    "abstract": null
  },
  {
    "crawler": "sina_ajax",
    "type": "ajax",
    "list": "result|data",
    "skip": [6, -1],
    "title": "title",
    "url": "link",
    "publish_time": "ctime",
    "keywords": "tags",
    "comment_id": "meta|cid"
  },
  {
    "crawler": "ifeng_ajax",
    "type": "ajax",
    "list": 0,
    "title": "name",
    "url": "http://news.ifeng.com/a/{}/{}.shtml",
    "fields": ["date", "id"]
  }
]}`

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2017, 5, 4, 10, 0, 0, 0, time.Local)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	snap, err := ParseSnapshot([]byte(feedConfigs))
	require.NoError(t, err)
	opts = append([]Option{WithClock(fixedClock{testNow})}, opts...)
	return NewEngine(NewStaticStore(snap), opts...)
}

func TestParseHTMLListing(t *testing.T) {
	t.Parallel()

	document := `<?xml version="1.0" encoding="utf-8"?><html><body><ul class="news">
<li><a href="/a/1.htm"> First </a><img src="/i/1.jpg"><span class="time">2017-05-03 08:00:00</span></li>
<li><a href="/video/2.htm">Video</a></li>
<li><a href="http://baijiahao.baidu.com/s?id=3">Baijia</a></li>
<li><span class="time">no link</span></li>
</ul></body></html>`

	items, err := newTestEngine(t).Parse(context.Background(), "qq_html", document, "http://news.qq.com/list.htm")
	require.NoError(t, err)
	require.Equal(t, []Item{
		{
			URL:         "http://news.qq.com/a/1.htm",
			Title:       "First",
			PublishTime: "2017-05-03 08:00:00",
			Thumb:       "http://news.qq.com/i/1.jpg",
		},
		{URL: "https://baijia.baidu.com/s?id=3", Title: "Baijia"},
	}, items)
}

func TestParseStructuredListing(t *testing.T) {
	t.Parallel()

	document := `  var x={"result": {"data": [
  {"title": "A", "link": "http://sina.com.cn/a.html", "ctime": 1493863200, "tags": ["x", "y"], "meta": "{\"cid\": \"c-1\"}"},
  {"title": "", "link": "http://sina.com.cn/b.html"}
]}};`

	items, err := newTestEngine(t).Parse(context.Background(), "sina_ajax", document, "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "A", items[0].Title)
	require.Equal(t, "http://sina.com.cn/a.html", items[0].URL)
	require.Equal(t, "x;y", items[0].Keywords)
	require.Equal(t, "c-1", items[0].CommentID)
	require.Equal(t, time.Unix(1493863200, 0).In(time.Local).Format("2006-01-02 15:04:05"), items[0].PublishTime)
}

func TestParseStructuredFirstArrayAndTemplate(t *testing.T) {
	t.Parallel()

	document := `{"meta": {"n": 1}, "items": [{"name": "B", "date": "20170504", "id": 7}], "more": []}`
	items, err := newTestEngine(t).Parse(context.Background(), "ifeng_ajax", document, "")
	require.NoError(t, err)
	require.Equal(t, []Item{{Title: "B", URL: "http://news.ifeng.com/a/20170504/7.shtml"}}, items)
}

func TestParseJSLiteralListing(t *testing.T) {
	t.Parallel()

	document := `[{name: 'C', date: '20170505', id: 8}]`
	items, err := newTestEngine(t).Parse(context.Background(), "ifeng_ajax", document, "")
	require.NoError(t, err)
	require.Equal(t, []Item{{Title: "C", URL: "http://news.ifeng.com/a/20170505/8.shtml"}}, items)
}

func TestParseUnknownCrawler(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	items, err := e.Parse(context.Background(), "nope", "<html></html>", "")
	require.NoError(t, err)
	require.Empty(t, items)
	require.False(t, e.Supports("nope"))
	require.True(t, e.Supports("qq_html"))
	require.True(t, e.Supports(BaiduCrawler))
}

func TestParseMalformedStructuredListing(t *testing.T) {
	t.Parallel()

	_, err := newTestEngine(t).Parse(context.Background(), "ifeng_ajax", `{"broken": `, "")
	require.Error(t, err)
}

func TestParseSnapshotRejectsBadConfigs(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"no crawler": `{"list": [{"type": "html"}]}`,
		"bad type":   `{"list": [{"crawler": "a", "type": "xml"}]}`,
		"bad skip":   `{"list": [{"crawler": "a", "skip": [1]}]}`,
		"bad filter": `{"list": [{"crawler": "a", "filter": "("}]}`,
		"bad field":  `{"list": [{"crawler": "a", "title": 3}]}`,
		"not a file": `[]`,
	}
	for name, doc := range cases {
		_, err := ParseSnapshot([]byte(doc))
		require.Error(t, err, name)
	}

	snap, err := ParseSnapshot([]byte(`{"list": [{"crawler": "a"}, {"crawler": "a", "type": "ajax"}]}`))
	require.NoError(t, err)
	cfg, ok := snap.Lookup("a")
	require.True(t, ok)
	require.Equal(t, ModeAjax, cfg.Mode)
	require.Equal(t, []string{"a"}, snap.Names())
}

func TestFormatTemplate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a/1/2", formatTemplate("a/{}/{}", []string{"1", "2"}))
	require.Equal(t, "2-1", formatTemplate("{1}-{0}", []string{"1", "2"}))
	require.Equal(t, "{x}-", formatTemplate("{{x}}-{5}", []string{"1"}))
	require.Equal(t, "open{", formatTemplate("open{", nil))
}

func TestSliceRunes(t *testing.T) {
	t.Parallel()

	require.Equal(t, "中文", sliceRunes("(中文)", 1, -1))
	require.Equal(t, "", sliceRunes("abc", 2, 1))
	require.Equal(t, "abc", sliceRunes("abc", -10, 10))
}

func TestParseBaidu(t *testing.T) {
	t.Parallel()

	document := `{"data": {"news": [
  {"title": "百度新闻", "site": "新华网", "ts": "1493863200000", "long_abs": "摘要",
   "content": [{"type": "text", "data": "第一段"}, {"type": "image", "data": {"big": {"url": "http://b.com/1.jpg", "width": 640, "height": 480}}}]},
  {"title": "no content", "content": []}
]}}`

	items, err := newTestEngine(t).Parse(context.Background(), BaiduCrawler, document, "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	item := items[0]
	require.Equal(t, "百度新闻", item.Title)
	require.Equal(t, "http://www.lieying-fakebaidu.com/"+textutil.MD5("百度新闻"), item.URL)
	require.Equal(t, "新华网", item.PublishSite)
	require.Equal(t, "摘要", item.Abstract)
	require.NotEmpty(t, item.PublishTime)
	require.Contains(t, item.HTML, `<div id="content"><p>第一段</p>`+"\n"+`<img src = "http://b.com/1.jpg" width =640 height =480 /></div>`)
	require.Contains(t, item.HTML, "<title>百度新闻</title>")
}

type stubFetcher struct {
	bodies map[string]string
}

func (f stubFetcher) Fetch(_ context.Context, req spider.FetchRequest) (spider.FetchResponse, error) {
	body, ok := f.bodies[req.URL]
	if !ok {
		return spider.FetchResponse{}, errors.New("unexpected url " + req.URL)
	}
	return spider.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(body), Text: body}, nil
}

func TestHaowai(t *testing.T) {
	t.Parallel()

	bodies := map[string]string{}
	bodies[fmt.Sprintf(haowaiArticleAPI, "11")] = `{"article_info": {"title": "号外", "content_url": "http://h.com/c/11", "nickname": "作者", "pubtime": "2017-05-04 09:00:00"}}`
	bodies["http://h.com/c/11"] = `{"content": "<p>正文</p>"}`
	bodies[fmt.Sprintf(haowaiArticleAPI, "12")] = `{"article_info": {"title": "空", "content_url": "http://h.com/c/12"}}`
	bodies["http://h.com/c/12"] = `{"content": ""}`
	fetcher := stubFetcher{bodies: bodies}
	h := Haowai{Fetcher: fetcher, Now: func() time.Time { return testNow }}
	e := newTestEngine(t, WithSpecial(HaowaiCrawler, h))

	items, err := e.Parse(context.Background(), HaowaiCrawler, `{"result": {"code": "0"}, "contentList": [{"aid": 11}, {"aid": 12}, {}]}`, "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "号外", items[0].Title)
	require.Equal(t, "http://h.com/c/11", items[0].URL)
	require.Equal(t, "作者", items[0].PublishSite)
	require.Equal(t, "2017-05-04 09:00:00", items[0].PublishTime)
	require.True(t, strings.Contains(items[0].HTML, `<div id="content"><p>正文</p></div>`))

	items, err = e.Parse(context.Background(), HaowaiCrawler, `{"result": {"code": "1"}, "contentList": [{"aid": 11}]}`, "")
	require.NoError(t, err)
	require.Empty(t, items)

	_, err = e.Parse(context.Background(), HaowaiCrawler, `{"result": {}, "contentList": [{"aid": 99}]}`, "")
	require.Error(t, err)
}
