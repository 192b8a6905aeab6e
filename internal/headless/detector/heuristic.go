// Package detector decides when a plainly fetched page has to be rendered
// in a browser before it can be parsed.
package detector

import (
	"bytes"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/zhidu-qidian/Spiders/internal/spider"
)

// DefaultMinText is the visible character count below which a script
// driven page is promoted.
const DefaultMinText = 200

// shellMarkers are left in the markup by client-side frameworks and by the
// state blobs news apps embed for hydration.
var shellMarkers = [][]byte{
	[]byte(`id="__next"`),
	[]byte(`id="app"`),
	[]byte(`id="root"`),
	[]byte("data-reactroot"),
	[]byte("ng-app"),
	[]byte("v-cloak"),
	[]byte("__INITIAL_STATE__"),
	[]byte("__NUXT__"),
}

// Heuristic promotes HTML pages that carry little visible text but ship
// scripts or a framework shell.
type Heuristic struct {
	MinText int
}

// NewHeuristic builds a detector. minText <= 0 uses DefaultMinText.
func NewHeuristic(minText int) *Heuristic {
	if minText <= 0 {
		minText = DefaultMinText
	}
	return &Heuristic{MinText: minText}
}

// ShouldPromote implements fetcher.Promoter. Only 200 HTML responses that
// were not rendered already are candidates; JSON listing APIs never are.
func (h *Heuristic) ShouldPromote(resp spider.FetchResponse) bool {
	if resp.StatusCode != http.StatusOK || resp.UsedHeadless || !looksLikeHTML(resp) {
		return false
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return true
	}
	text, scripts := measure(resp.Body)
	if text >= h.MinText {
		return false
	}
	if scripts > 0 {
		return true
	}
	for _, marker := range shellMarkers {
		if bytes.Contains(resp.Body, marker) {
			return true
		}
	}
	return false
}

// measure counts the visible non-space characters of a page and its script
// elements.
func measure(body []byte) (text, scripts int) {
	z := html.NewTokenizer(bytes.NewReader(body))
	hidden := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return text, scripts
		case html.StartTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Script:
				scripts++
				hidden++
			case atom.Style, atom.Noscript, atom.Template:
				hidden++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				if hidden > 0 {
					hidden--
				}
			}
		case html.TextToken:
			if hidden == 0 {
				text += visible(z.Text())
			}
		}
	}
}

func visible(b []byte) int {
	n := 0
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if !unicode.IsSpace(r) {
			n++
		}
		b = b[size:]
	}
	return n
}

func looksLikeHTML(resp spider.FetchResponse) bool {
	if ct := resp.Headers.Get("Content-Type"); ct != "" {
		return strings.Contains(strings.ToLower(ct), "html")
	}
	trimmed := bytes.TrimSpace(resp.Body)
	return len(trimmed) == 0 || trimmed[0] == '<'
}
