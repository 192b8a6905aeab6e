package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zhidu-qidian/Spiders/internal/spider"
	"github.com/zhidu-qidian/Spiders/internal/textutil"
)

// Special crawler names.
const (
	BaiduCrawler  = "s_baidu"
	HaowaiCrawler = "haowai"
)

const (
	baiduFakeHost    = "http://www.lieying-fakebaidu.com/"
	haowaiArticleAPI = "http://api.myhaowai.com/api/article/get_article_by_aid?aid=%s&readFrom=app"
)

// wrapArticle renders a minimal article page around body.
func wrapArticle(title, body string) string {
	return fmt.Sprintf(`
<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>%s</title></head>
<body><div id="content">%s</div></body></html>
`, title, body)
}

type baiduPayload struct {
	Data struct {
		News []baiduFeed `json:"news"`
		List []baiduFeed `json:"list"`
	} `json:"data"`
}

type baiduFeed struct {
	Title   string       `json:"title"`
	Site    string       `json:"site"`
	TS      any          `json:"ts"`
	LongAbs string       `json:"long_abs"`
	Content []baiduBlock `json:"content"`
}

type baiduBlock struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type baiduImage struct {
	Big struct {
		URL    string `json:"url"`
		Width  any    `json:"width"`
		Height any    `json:"height"`
	} `json:"big"`
}

// ParseBaidu reads the baidu news app feed. Each entry carries its article
// as typed blocks, which are rendered into the item's html so the detail
// stage can skip the download.
func ParseBaidu(document string, now time.Time) ([]Item, error) {
	var payload baiduPayload
	if err := json.Unmarshal([]byte(document), &payload); err != nil {
		return nil, fmt.Errorf("decode baidu feed: %w", err)
	}
	feeds := payload.Data.News
	if len(feeds) == 0 {
		feeds = payload.Data.List
	}
	var items []Item
	for _, f := range feeds {
		if f.Title == "" || len(f.Content) == 0 {
			continue
		}
		blocks := make([]string, 0, len(f.Content))
		for _, block := range f.Content {
			switch block.Type {
			case "image":
				var img baiduImage
				if err := json.Unmarshal(block.Data, &img); err != nil {
					continue
				}
				blocks = append(blocks, fmt.Sprintf(`<img src = "%s" width =%s height =%s />`,
					img.Big.URL, stringify(img.Big.Width), stringify(img.Big.Height)))
			case "text":
				var text string
				if err := json.Unmarshal(block.Data, &text); err != nil {
					continue
				}
				blocks = append(blocks, "<p>"+text+"</p>")
			}
		}
		items = append(items, Item{
			Title:       f.Title,
			URL:         baiduFakeHost + textutil.MD5(f.Title),
			PublishSite: f.Site,
			PublishTime: textutil.CleanDateTime(stringify(f.TS), now),
			Abstract:    f.LongAbs,
			HTML:        wrapArticle(f.Title, strings.Join(blocks, "\n")),
		})
	}
	return items, nil
}

// Haowai reads the haowai listing, which only carries article ids. Every
// article and its body are downloaded while parsing.
type Haowai struct {
	Fetcher spider.Fetcher
	Now     func() time.Time
}

type haowaiListing struct {
	Result struct {
		Code any `json:"code"`
	} `json:"result"`
	ContentList []struct {
		AID any `json:"aid"`
	} `json:"contentList"`
}

type haowaiArticle struct {
	ArticleInfo struct {
		Title      string `json:"title"`
		ContentURL string `json:"content_url"`
		Nickname   string `json:"nickname"`
		Pubtime    any    `json:"pubtime"`
	} `json:"article_info"`
}

type haowaiContent struct {
	Content string `json:"content"`
}

// Parse implements Special.
func (h Haowai) Parse(ctx context.Context, document, _ string) ([]Item, error) {
	var listing haowaiListing
	if err := json.Unmarshal([]byte(document), &listing); err != nil {
		return nil, fmt.Errorf("decode haowai listing: %w", err)
	}
	if stringify(listing.Result.Code) == "1" {
		return nil, nil
	}
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	var items []Item
	for _, entry := range listing.ContentList {
		aid := stringify(entry.AID)
		if aid == "" {
			continue
		}
		var article haowaiArticle
		if err := h.getJSON(ctx, fmt.Sprintf(haowaiArticleAPI, aid), &article); err != nil {
			return nil, err
		}
		info := article.ArticleInfo
		var content haowaiContent
		if err := h.getJSON(ctx, info.ContentURL, &content); err != nil {
			return nil, err
		}
		if content.Content == "" || info.Title == "" {
			continue
		}
		items = append(items, Item{
			Title:       info.Title,
			URL:         info.ContentURL,
			PublishSite: info.Nickname,
			PublishTime: textutil.CleanDateTime(stringify(info.Pubtime), now()),
			HTML:        wrapArticle(info.Title, content.Content),
		})
	}
	return items, nil
}

func (h Haowai) getJSON(ctx context.Context, url string, v any) error {
	resp, err := h.Fetcher.Fetch(ctx, spider.FetchRequest{URL: url, Method: http.MethodGet})
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
