package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhidu-qidian/Spiders/internal/dom"
	"github.com/zhidu-qidian/Spiders/internal/spider"
)

func extractWith(t *testing.T, name string, page Page, cfg Config) Result {
	t.Helper()
	res, err := NewRegistry().Lookup(name).Extract(context.Background(), page, cfg)
	require.NoError(t, err)
	return res
}

func TestNews163TextareaGallery(t *testing.T) {
	t.Parallel()

	page := Page{URL: "http://news.163.com/photoview/1.html", HTML: `<html><body><form><textarea name="gallery-data">
<ul><li><h2>Slide one</h2><i title="img">http://img.163.com/1.jpg</i><p> caption </p></li>
<li><i title="img">http://img.163.com/2.jpg</i></li></ul>
</textarea></form></body></html>`}
	cfg := Config{Content: Rule{Selectors: []dom.Selector{{Params: map[string]any{"name": "textarea"}}}}}

	res := extractWith(t, "news163", page, cfg)
	require.Equal(t, []spider.ContentItem{
		{Tag: "p", Text: "Slide one"},
		{Tag: "img", Src: "http://img.163.com/1.jpg"},
		{Tag: "p", Text: "caption"},
		{Tag: "img", Src: "http://img.163.com/2.jpg"},
	}, res.Content)
}

func TestG3163JSON(t *testing.T) {
	t.Parallel()

	page := Page{
		URL: "http://3g.163.com/touch/article/ABC123/full.html",
		HTML: `{"ABC123": {"title": "标题", "ptime": "2017-05-04 15:22:01", "source": "网易",
			"body": "<p>第一段</p><!--IMG#0--><p>第二段</p>",
			"img": [{"ref": "<!--IMG#0-->", "src": "http://img.163.com/a.jpg"}]}}`,
	}
	res := extractWith(t, "g3163", page, Config{})
	require.Equal(t, "标题", res.Title)
	require.Equal(t, "2017-05-04 15:22:01", res.Date)
	require.Equal(t, "网易", res.Source)
	require.False(t, res.Missing)
	require.Equal(t, []spider.ContentItem{
		{Tag: "p", Text: "第一段"},
		{Tag: "img", Src: "http://img.163.com/a.jpg"},
		{Tag: "p", Text: "第二段"},
	}, res.Content)

	require.True(t, g3163Missing("客户端版本需要升级", "<p>x</p>", nil))
	require.True(t, g3163Missing("t", "<p>x</p>", []any{map[string]any{"url": "v"}}))
	require.False(t, g3163Missing("t", "", []any{1}))
}

func TestScriptGalleries(t *testing.T) {
	t.Parallel()

	ifeng := Page{URL: "http://news.ifeng.com/a/1.shtml", HTML: `<html><body><script>var G_listdata=[{title:'one', big_img:'http://i.com/1.jpg'}];</script></body></html>`}
	res := extractWith(t, "ifengphoto", ifeng, Config{})
	require.Equal(t, []spider.ContentItem{
		{Tag: "p", Text: "one"},
		{Tag: "img", Src: "http://i.com/1.jpg"},
	}, res.Content)

	netease := Page{URL: "http://news.163.com/photoset/1.html", HTML: `<html><body><textarea name="gallery-data" style="display:none;">{"list": [{"note": "n", "oimg": "http://i.com/2.jpg"}]}</textarea></body></html>`}
	res = extractWith(t, "neteasepic", netease, Config{})
	require.Equal(t, []spider.ContentItem{
		{Tag: "p", Text: "n"},
		{Tag: "img", Src: "http://i.com/2.jpg"},
	}, res.Content)
}

func TestGalleryStrategyRewritesSources(t *testing.T) {
	t.Parallel()

	page := Page{URL: "http://pic.pclady.com.cn/1.html", HTML: `<html><body>
<p class="picCont"><span class="pic-txt">lead</span></p>
<div class="pic-scroll"><ul><li><a href="#"><img src="http://i.com/a_small.jpg"></a></li><li><a href="#"><img src="http://i.com/b_medium.jpg"></a></li></ul></div>
</body></html>`}
	res := extractWith(t, "pclady", page, Config{})
	require.Equal(t, []spider.ContentItem{
		{Tag: "p", Text: "lead"},
		{Tag: "img", Src: "http://i.com/a.jpg"},
		{Tag: "img", Src: "http://i.com/b.jpg"},
	}, res.Content)
}

func TestSinaPhotoTitle(t *testing.T) {
	t.Parallel()

	page := Page{URL: "http://slide.news.sina.com.cn/1.html", HTML: `<html><head><title>图集_新浪图片_新浪网</title></head><body></body></html>`}
	cfg := Config{Title: Rule{Selectors: []dom.Selector{{Params: map[string]any{"name": "title"}}}}}
	res := extractWith(t, "sinaphoto", page, cfg)
	require.Equal(t, "图集", res.Title)
}

func TestUnquoteJS(t *testing.T) {
	t.Parallel()

	require.Equal(t, "中文", unquoteJS(` "中文" `))
	require.Equal(t, "plain", unquoteJS(`'plain'`))
	require.Equal(t, "", unquoteJS(`""`))
}
