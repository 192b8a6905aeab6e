package extract

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/zhidu-qidian/Spiders/internal/dom"
	"github.com/zhidu-qidian/Spiders/internal/jsobj"
	"github.com/zhidu-qidian/Spiders/internal/spider"
	"github.com/zhidu-qidian/Spiders/internal/textutil"
)

func registerBuiltins(r *Registry) {
	def := AdjustStrategy()
	def.Locate = ScoreStrategy().Locate
	r.Register(DefaultExtractor, StrategyExtractor{Strategy: def})
	r.Register("adjust", StrategyExtractor{Strategy: AdjustStrategy()})
	r.Register("score", StrategyExtractor{Strategy: ScoreStrategy()})
	r.Register("separate", StrategyExtractor{Strategy: SeparateStrategy()})
	r.Register("news163", StrategyExtractor{Strategy: news163Strategy()})
	r.Register("moviesoon", StrategyExtractor{Strategy: moviesoonStrategy()})
	r.Register("myzaker", StrategyExtractor{Strategy: myzakerStrategy()})
	r.Register("toutiaogallery", StrategyExtractor{Strategy: toutiaoGalleryStrategy()})
	r.Register("sinaphoto", StrategyExtractor{Strategy: sinaPhotoStrategy()})
	r.Register("pclady", StrategyExtractor{Strategy: galleryStrategy("p.picCont span.pic-txt", "div.pic-scroll > ul > li > a > img", strings.NewReplacer("_small", "", "_medium", ""))})
	r.Register("sohupic", StrategyExtractor{Strategy: galleryStrategy("p.explain", "div.roll > div > ul > li  img", strings.NewReplacer("stn", "n"))})
	r.Register("ifengphoto", StrategyExtractor{Strategy: scriptGalleryStrategy(ifengListData, "", "title", "big_img")})
	r.Register("neteasepic", StrategyExtractor{Strategy: scriptGalleryStrategy(neteaseGalleryData, "list", "note", "oimg")})
	r.Register("huanqiuphoto", StrategyExtractor{Strategy: huanqiuStrategy()})
	r.Register("guinness", StrategyExtractor{Strategy: guinnessStrategy()})
	r.Register("xinshipu", xinshipuExtractor{})
	r.Register("g3163", g3163Extractor{})
}

func selectAll(d *Document, css string) []*html.Node {
	return d.Strict.Find(css).Nodes
}

func selectText(d *Document, css string) string {
	return dom.AttrText(d.Strict.Find(css), "text")
}

// news163 keeps gallery slides inside a <textarea>.
func news163Strategy() Strategy {
	s := AdjustStrategy()
	s.Strict = dom.StrictWith("textarea")
	s.ContentRoot = func(d *Document, root *html.Node) []spider.ContentItem {
		if !dom.IsElement(root, "textarea") {
			return MosaicWalker{}.Walk(d.URL, root)
		}
		return textareaSlides(dom.Text(root))
	}
	return s
}

func textareaSlides(markup string) []spider.ContentItem {
	doc, err := dom.ParseDocument(markup)
	if err != nil {
		return nil
	}
	var items []spider.ContentItem
	for _, li := range doc.Find("li").Nodes {
		for c := li.FirstChild; c != nil; c = c.NextSibling {
			switch {
			case dom.IsElement(c, "p", "h2"):
				if text := strings.TrimSpace(dom.Text(c)); text != "" {
					items = append(items, spider.ContentItem{Tag: "p", Text: text})
				}
			case dom.IsElement(c, "i"):
				if title, _ := dom.Attr(c, "title"); title == "img" {
					if src := strings.TrimSpace(dom.Text(c)); src != "" {
						items = append(items, spider.ContentItem{Tag: "img", Src: src})
					}
				}
			}
		}
	}
	return items
}

var chineseMonths = map[string]string{
	"一": "01", "二": "02", "三": "03", "四": "04", "五": "05", "六": "06",
	"七": "07", "八": "08", "九": "09", "十": "10", "十一": "11", "十二": "12",
}

func moviesoonStrategy() Strategy {
	s := SeparateStrategy()
	s.Fallback.Date = func(d *Document) string {
		text := func(class string) string {
			return dom.AttrText(d.Loose.Find("span."+class), "text")
		}
		year, month, day := text("year"), text("month"), text("gun")
		if len(year) != 4 {
			return ""
		}
		if len(day) == 1 {
			day = "0" + day
		}
		m, ok := chineseMonths[month]
		if !ok {
			return ""
		}
		clock := dom.AttrText(d.Loose.Find("div.postAyrinti"), "text")
		return year + "-" + m + "-" + day + clock
	}
	return s
}

func myzakerStrategy() Strategy {
	s := SeparateStrategy()
	strip := func(d *Document, v string) string {
		span := dom.AttrText(d.Loose.Find("div#news_template_03_AuthorAndTime > span"), "text")
		if span == "" {
			return v
		}
		return strings.ReplaceAll(v, span, "")
	}
	s.Clean.Source = strip
	s.Clean.Author = strip
	return s
}

var subAbstracts = regexp.MustCompile(`'sub_abstracts': \[(.*)\],`)

// toutiaoGalleryStrategy pairs slide images with captions embedded in an
// inline script.
func toutiaoGalleryStrategy() Strategy {
	s := SeparateStrategy()
	s.Loose = dom.LooseKeepScripts()
	s.Content = func(d *Document, _ Config) ([]spider.ContentItem, error) {
		var images []string
		d.Loose.Find("div#tt-slide div.img-wrap").Each(func(_ int, sel *goquery.Selection) {
			images = append(images, dom.AttrText(sel, "data-src"))
		})
		var texts []string
		if m := subAbstracts.FindStringSubmatch(d.LooseHTML); m != nil && m[1] != "" {
			for _, part := range strings.Split(m[1], ",") {
				if t := unquoteJS(part); t != "" {
					texts = append(texts, t)
				}
			}
		}
		var items []spider.ContentItem
		for i, src := range images {
			items = append(items, spider.ContentItem{Tag: "img", Src: src})
			if i < len(texts) {
				items = append(items, spider.ContentItem{Tag: "p", Text: texts[i]})
			}
		}
		return items, nil
	}
	return s
}

// unquoteJS strips quotes from a JS string literal and decodes escapes.
func unquoteJS(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	if u, err := strconv.Unquote(`"` + strings.ReplaceAll(s, `"`, `\"`) + `"`); err == nil {
		s = u
	}
	return strings.TrimSpace(s)
}

func sinaPhotoStrategy() Strategy {
	s := AdjustStrategy()
	s.Clean.Title = func(_ *Document, title string) string {
		words := strings.Split(title, "_")
		if len(words) >= 3 {
			return strings.Join(words[:len(words)-2], "_")
		}
		return title
	}
	s.Content = func(d *Document, _ Config) ([]spider.ContentItem, error) {
		var items []spider.ContentItem
		for _, dl := range selectAll(d, "div#eData > dl") {
			sel := selectionOf(dl)
			src := dom.AttrText(sel.Find("dd:nth-of-type(1)"), "text")
			if !strings.HasPrefix(src, "http") || !strings.HasSuffix(src, ".jpg") {
				continue
			}
			items = append(items, spider.ContentItem{Tag: "img", Src: src})
			text := dom.AttrText(sel.Find("dd:nth-of-type(5)"), "text")
			text = strings.TrimSpace(strings.ReplaceAll(text, "<br />", " "))
			if text != "" {
				items = append(items, spider.ContentItem{Tag: "p", Text: text})
			}
		}
		return items, nil
	}
	return s
}

// galleryStrategy reads a lead caption followed by a list of images whose
// sources are rewritten to the full-size variant.
func galleryStrategy(captionCSS, imagesCSS string, fullSize *strings.Replacer) Strategy {
	s := AdjustStrategy()
	s.Content = func(d *Document, _ Config) ([]spider.ContentItem, error) {
		var items []spider.ContentItem
		if text := selectText(d, captionCSS); text != "" {
			items = append(items, spider.ContentItem{Tag: "p", Text: text})
		}
		for _, img := range selectAll(d, imagesCSS) {
			if src := attrValue(img, "src"); src != "" {
				items = append(items, spider.ContentItem{Tag: "img", Src: fullSize.Replace(src)})
			}
		}
		return items, nil
	}
	return s
}

var (
	ifengListData      = regexp.MustCompile(`(?s)var G_listdata=(.*?);`)
	neteaseGalleryData = regexp.MustCompile(`(?s)<textarea name="gallery-data" style="display:none;">(.*?)</textarea>`)
)

// scriptGalleryStrategy decodes a JS literal embedded in the raw page and
// emits caption/image pairs. listKey selects a nested array when set.
func scriptGalleryStrategy(pattern *regexp.Regexp, listKey, textKey, srcKey string) Strategy {
	s := AdjustStrategy()
	s.Content = func(d *Document, _ Config) ([]spider.ContentItem, error) {
		m := pattern.FindStringSubmatch(d.HTML)
		if m == nil {
			return nil, nil
		}
		data, err := jsobj.Decode(m[1])
		if err != nil {
			return nil, nil
		}
		if listKey != "" {
			data = jsobj.Lookup(data, listKey)
		}
		list, _ := data.([]any)
		var items []spider.ContentItem
		for _, raw := range list {
			entry, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			text, _ := entry[textKey].(string)
			src, _ := entry[srcKey].(string)
			items = append(items,
				spider.ContentItem{Tag: "p", Text: text},
				spider.ContentItem{Tag: "img", Src: src},
			)
		}
		return items, nil
	}
	return s
}

var (
	huanqiuTitle = regexp.MustCompile(`"title":"(.*)",`)
	huanqiuImage = regexp.MustCompile(`"img_url":"(.*)"}`)
)

func huanqiuStrategy() Strategy {
	s := AdjustStrategy()
	s.Loose = dom.LooseKeepScripts()
	s.Content = func(d *Document, _ Config) ([]spider.ContentItem, error) {
		texts := huanqiuTitle.FindAllStringSubmatch(d.LooseHTML, -1)
		images := huanqiuImage.FindAllStringSubmatch(d.LooseHTML, -1)
		if len(texts) != len(images) {
			return nil, nil
		}
		var items []spider.ContentItem
		for i, img := range images {
			items = append(items, spider.ContentItem{Tag: "img", Src: textutil.Unescape(img[1])})
			if texts[i][1] != "" {
				items = append(items, spider.ContentItem{Tag: "p", Text: textutil.Unescape(texts[i][1])})
			}
		}
		return items, nil
	}
	return s
}

func guinnessStrategy() Strategy {
	s := AdjustStrategy()
	s.Content = func(d *Document, _ Config) ([]spider.ContentItem, error) {
		var items []spider.ContentItem
		if top := d.Strict.Find("div.region-inner > figure > img"); top.Length() > 0 {
			if src := dom.AttrText(top, "src"); src != "" {
				items = append(items, spider.ContentItem{Tag: "img", Src: textutil.Resolve(d.URL, src)})
			}
		}
		for _, block := range selectAll(d, "div.body-copy > div") {
			sel := selectionOf(block)
			if src := dom.AttrText(sel.Find("img"), "src"); src != "" {
				items = append(items, spider.ContentItem{Tag: "img", Src: textutil.Resolve(d.URL, src)})
				continue
			}
			text := strings.TrimSpace(dom.Text(block))
			if strings.TrimSpace(strings.ReplaceAll(text, "\u00a0", "")) != "" {
				items = append(items, spider.ContentItem{Tag: "p", Text: text})
			}
		}
		return items, nil
	}
	return s
}

var (
	ldJSON     = regexp.MustCompile(`(?s)<script type="application/ld\+json">(.*?)</script>`)
	whitespace = regexp.MustCompile(`\s`)
)

// xinshipuExtractor reads recipes from their JSON-LD block.
type xinshipuExtractor struct{}

func (xinshipuExtractor) Extract(_ context.Context, page Page, cfg Config) (Result, error) {
	var data map[string]any
	if m := ldJSON.FindStringSubmatch(page.HTML); m != nil {
		data, _ = jsobj.DecodeObject(whitespace.ReplaceAllString(m[1], ""))
	}
	str := func(key string) string {
		v, _ := data[key].(string)
		return v
	}
	r := Result{Title: str("name"), Summary: str("description")}
	if author, ok := jsobj.Lookup(data, "author|name").(string); ok {
		r.Author = author
	}
	if data == nil {
		return r, nil
	}
	var ingredients []string
	if list, ok := data["recipeIngredient"].([]any); ok {
		for _, v := range list {
			if s, ok := v.(string); ok {
				ingredients = append(ingredients, s)
			}
		}
	}
	r.Content = append(r.Content,
		spider.ContentItem{Tag: "img", Src: str("image")},
		spider.ContentItem{Tag: "p", Text: "简介:"},
		spider.ContentItem{Tag: "p", Text: str("description")},
		spider.ContentItem{Tag: "p", Text: "材料:"},
		spider.ContentItem{Tag: "p", Text: strings.Join(ingredients, ",")},
		spider.ContentItem{Tag: "p", Text: "做法:"},
	)
	for _, step := range strings.Split(str("recipeInstructions"), "。") {
		r.Content = append(r.Content, spider.ContentItem{Tag: "p", Text: step + "。"})
	}
	return r, nil
}

// g3163Extractor reads the mobile news JSON API, keyed by article id.
type g3163Extractor struct{}

func (g3163Extractor) Extract(_ context.Context, page Page, _ Config) (Result, error) {
	var all map[string]any
	if err := json.Unmarshal([]byte(page.HTML), &all); err != nil {
		return Result{}, nil
	}
	data := all
	for key, value := range all {
		if strings.Contains(page.URL, key) {
			if m, ok := value.(map[string]any); ok {
				data = m
			}
			break
		}
	}
	str := func(key string) string {
		v, _ := data[key].(string)
		return v
	}
	r := Result{Title: str("title"), Source: str("source")}
	if ptime := str("ptime"); ptime != "" {
		r.Date = textutil.CleanDateTime(ptime, page.Now)
	}
	body := str("body")
	r.Missing = g3163Missing(r.Title, body, data["video"])

	images, _ := data["img"].([]any)
	if body == "" && len(images) == 0 {
		return r, nil
	}
	for _, raw := range images {
		img, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		ref, _ := img["ref"].(string)
		src, _ := img["src"].(string)
		if ref != "" {
			body = strings.ReplaceAll(body, ref, "<img src='"+src+"' />")
		}
	}
	root, err := dom.Parse("<div id='hello_article'>" + body + "</div>")
	if err != nil {
		return r, nil
	}
	wrapper := dom.FindDescendant(root, dom.Set("div"))
	r.Content = MosaicWalker{}.Walk(page.URL, wrapper)
	return r, nil
}

func g3163Missing(title, body string, video any) bool {
	if body == "" {
		return false
	}
	if strings.Contains(body, "安卓用户点这里") || strings.Contains(body, "最新版本客户端可获得更流畅体验") {
		return true
	}
	if strings.Contains(title, "客户端版本需要升级") {
		return true
	}
	switch v := video.(type) {
	case nil:
		return false
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	case string:
		return v != ""
	case bool:
		return v
	default:
		return true
	}
}
