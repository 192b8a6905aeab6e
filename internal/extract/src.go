package extract

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/zhidu-qidian/Spiders/internal/dom"
	"github.com/zhidu-qidian/Spiders/internal/textutil"
)

var videoSuffixes = []string{"swf", "flv", "mp4", "f4v"}

// TagSrc resolves the media source of an img or iframe. Lazy-loading pages
// keep the real address in non-standard attributes, so those are tried
// before src. The first candidate that is absolute, root/relative, or ends
// in an image extension wins; otherwise "" is returned.
func TagSrc(base string, n *html.Node) string {
	var candidates []string
	for _, a := range n.Attr {
		key := strings.ToLower(a.Key)
		if commonAttributes[key] || imgContentAttributes[key] {
			continue
		}
		if v := strings.TrimSpace(a.Val); v != "" {
			candidates = append(candidates, v)
		}
	}
	src, _ := dom.Attr(n, "src")
	candidates = append(candidates, strings.TrimSpace(src))

	for _, c := range candidates {
		lower := strings.ToLower(c)
		switch {
		case strings.HasPrefix(lower, "http"):
			return c
		case strings.HasPrefix(lower, "./"), strings.HasPrefix(lower, "/"), strings.HasPrefix(lower, "../"):
			return textutil.Resolve(base, c)
		case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".png"),
			strings.HasSuffix(lower, ".gif"), strings.HasSuffix(lower, ".jpeg"):
			return textutil.Resolve(base, c)
		}
	}
	return ""
}

// VideoSrc resolves the playable source of an embed element.
func VideoSrc(base string, n *html.Node) string {
	resolve := func(v string) string {
		if base == "" {
			return v
		}
		return textutil.Resolve(base, v)
	}
	src, _ := dom.Attr(n, "src")
	src = strings.TrimSpace(src)
	if src != "" {
		if hasVideoSuffix(src) {
			return resolve(src)
		}
		if strings.HasPrefix(src, "http") {
			return src
		}
	}
	for _, a := range n.Attr {
		if hasVideoSuffix(a.Val) {
			return resolve(a.Val)
		}
		if strings.HasPrefix(a.Val, "http") {
			return a.Val
		}
	}
	return ""
}

func hasVideoSuffix(v string) bool {
	for _, s := range videoSuffixes {
		if strings.HasSuffix(v, s) {
			return true
		}
	}
	return false
}
