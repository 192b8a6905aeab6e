package extract

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"github.com/zhidu-qidian/Spiders/internal/dom"
	"github.com/zhidu-qidian/Spiders/internal/spider"
)

// DefaultMaxDepth bounds walker descent. Deeper subtrees are flattened into
// a single paragraph of their text.
const DefaultMaxDepth = 256

// Walker turns a located content root into ordered content items.
type Walker interface {
	Walk(base string, root *html.Node) []spider.ContentItem
}

// MosaicWalker is the default walker. Block-level elements split
// paragraphs, runs of inline content collapse into one paragraph, and
// structural elements without media are kept as atoms.
type MosaicWalker struct {
	MaxDepth int
}

type mosaicFrame struct {
	next *html.Node
	text []string
}

// Walk implements Walker. The tree under root may be edited: tables, lists
// and definition lists holding images are unwrapped before descent.
func (w MosaicWalker) Walk(base string, root *html.Node) []spider.ContentItem {
	c := &collector{base: base}
	if root == nil {
		return nil
	}
	limit := w.MaxDepth
	if limit <= 0 {
		limit = DefaultMaxDepth
	}
	stack := []*mosaicFrame{{next: root.FirstChild}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		child := top.next
		if child == nil {
			c.paragraph(top.text)
			stack = stack[:len(stack)-1]
			continue
		}
		top.next = child.NextSibling

		switch child.Type {
		case html.TextNode:
			top.text = append(top.text, child.Data)
		case html.ElementNode:
			if !w.visit(c, top, child) {
				continue
			}
			if len(stack) >= limit {
				c.paragraph([]string{dom.Text(child)})
				continue
			}
			stack = append(stack, &mosaicFrame{next: child.FirstChild})
		default:
			c.paragraph(top.text)
			top.text = nil
		}
	}
	return c.items
}

// visit handles one element child and reports whether the walk should
// descend into it.
func (w MosaicWalker) visit(c *collector, top *mosaicFrame, n *html.Node) bool {
	name := n.Data
	if dropTags[name] {
		return false
	}
	if !newlineTags[name] {
		if dom.FindDescendant(n, newlineTags) != nil {
			c.paragraph(top.text)
			top.text = nil
			return true
		}
		if text := dom.Text(n); strings.TrimSpace(text) != "" {
			top.text = append(top.text, text)
		}
		return false
	}

	c.paragraph(top.text)
	top.text = nil
	hasImg := dom.HasDescendant(n, "img")
	switch {
	case name == "img":
		c.image(n)
		return false
	case name == "table" && hasImg:
		dom.UnwrapDescendants(n, tableTags)
		return true
	case (name == "blockquote" || name == "pre") && hasImg:
		return true
	case (name == "ul" || name == "ol") && hasImg:
		dom.UnwrapDescendants(n, dom.Set("li"))
		return true
	case name == "dl" && hasImg:
		dom.UnwrapDescendants(n, dom.Set("dd", "dt"))
		return true
	case atomTags[name]:
		if dom.FindDescendant(n, mediaTags) != nil {
			return true
		}
		c.atom(n)
		return false
	default:
		return true
	}
}

// SeparateWalker is the legacy walker: every text node becomes its own
// paragraph, purely inline elements are merged, containers are descended
// and anything else with text is kept as an atom.
type SeparateWalker struct {
	MaxDepth int
}

// Walk implements Walker.
func (w SeparateWalker) Walk(base string, root *html.Node) []spider.ContentItem {
	c := &collector{base: base}
	if root == nil {
		return nil
	}
	limit := w.MaxDepth
	if limit <= 0 {
		limit = DefaultMaxDepth
	}
	stack := []*html.Node{root.FirstChild}
	for len(stack) > 0 {
		child := stack[len(stack)-1]
		if child == nil {
			stack = stack[:len(stack)-1]
			continue
		}
		stack[len(stack)-1] = child.NextSibling

		switch child.Type {
		case html.TextNode:
			c.paragraph([]string{child.Data})
		case html.ElementNode:
			switch {
			case child.Data == "img":
				c.image(child)
			case child.Data == "iframe":
				if src := TagSrc(base, child); src != "" {
					c.items = append(c.items, spider.ContentItem{Tag: "iframe", Src: src})
				}
			case onlyInline(child):
				if text := dom.Text(child); strings.TrimSpace(text) != "" {
					c.paragraph([]string{text})
				}
			case dom.IsElement(child, "div", "section", "textarea") ||
				dom.FindDescendant(child, dom.Set("img", "br", "iframe")) != nil:
				if len(stack) >= limit {
					c.paragraph([]string{dom.Text(child)})
					continue
				}
				stack = append(stack, child.FirstChild)
			case strings.TrimSpace(dom.Text(child)) != "":
				c.atom(child)
			}
		}
	}
	return c.items
}

// onlyInline reports whether n holds nothing but inline phrasing elements.
// A single leading or trailing <br> is dropped; any other <br> disqualifies.
func onlyInline(n *html.Node) bool {
	var (
		index, last = -1, 0
		br          *html.Node
		brs         int
		i           int
	)
	ok := true
	walkDescendants(n, func(d *html.Node) bool {
		last = i
		pos := i
		i++
		if d.Type != html.ElementNode {
			return true
		}
		if d.Data == "br" {
			index = pos
			br = d
			brs++
			return true
		}
		if !inlineTags[d.Data] {
			ok = false
			return false
		}
		return true
	})
	if !ok {
		return false
	}
	if br != nil && (index == 0 || index == last) {
		dom.Remove(br)
		brs--
	}
	return brs == 0
}

// walkDescendants visits n's descendants in document order until fn
// returns false.
func walkDescendants(n *html.Node, fn func(*html.Node) bool) {
	stack := make([]*html.Node, 0, 8)
	for c := n.LastChild; c != nil; c = c.PrevSibling {
		stack = append(stack, c)
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(cur) {
			return
		}
		for c := cur.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, c)
		}
	}
}

type collector struct {
	base  string
	items []spider.ContentItem
}

func (c *collector) paragraph(parts []string) {
	if text := JoinInline(parts); text != "" {
		c.items = append(c.items, spider.ContentItem{Tag: "p", Text: text})
	}
}

func (c *collector) image(n *html.Node) {
	if src := TagSrc(c.base, n); src != "" {
		c.items = append(c.items, spider.ContentItem{Tag: "img", Src: src})
	}
}

func (c *collector) atom(n *html.Node) {
	attrs := map[string]string{}
	switch n.Data {
	case "iframe":
		if src := TagSrc(c.base, n); src != "" {
			attrs["src"] = src
		}
	case "video":
		for _, key := range []string{"src", "controls", "poster"} {
			if v := attrValue(n, key); v != "" {
				attrs[key] = v
			}
		}
	case "object":
		if v := attrValue(n, "data"); v != "" {
			attrs["data"] = v
		}
	case "ol":
		for _, key := range []string{"type", "reversed"} {
			if v := attrValue(n, key); v != "" {
				attrs[key] = v
			}
		}
	case "embed":
		if src := VideoSrc(c.base, n); src != "" {
			for _, a := range n.Attr {
				key := strings.ToLower(a.Key)
				switch key {
				case "width", "height", "id", "name", "src":
					continue
				}
				attrs[key] = a.Val
			}
			attrs["src"] = src
		}
	}
	if len(attrs) == 0 && (n.Data == "video" || n.Data == "iframe" || n.Data == "embed") {
		return
	}
	item := spider.ContentItem{Tag: n.Data, Text: strings.TrimSpace(dom.InnerHTML(n))}
	if src, ok := attrs["src"]; ok {
		item.Src = src
		delete(attrs, "src")
	}
	if len(attrs) > 0 {
		item.Attrs = attrs
	}
	if item.Text == "" && item.Src == "" && item.Attrs == nil {
		return
	}
	c.items = append(c.items, item)
}

func attrValue(n *html.Node, key string) string {
	v, _ := dom.Attr(n, key)
	return strings.TrimSpace(v)
}

// JoinInline concatenates inline fragments into one paragraph. Whitespace
// runs collapse to a single space, or vanish between two CJK characters,
// and the result is trimmed.
func JoinInline(parts []string) string {
	raw := strings.Join(parts, "")
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	runes := []rune(raw)
	var b strings.Builder
	b.Grow(len(raw))
	var prev rune
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
			prev = r
			continue
		}
		j := i
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if prev != 0 && j < len(runes) && !(isWide(prev) && isWide(runes[j])) {
			b.WriteByte(' ')
		}
		i = j - 1
	}
	return b.String()
}

func isWide(r rune) bool {
	switch {
	case unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul):
		return true
	case r >= 0x3000 && r <= 0x303f, r >= 0xff00 && r <= 0xffef:
		return true
	}
	return false
}
