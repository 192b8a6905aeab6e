package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Cleaner removes unwanted markup from a parsed tree. Killed tags are removed
// with their content, unwrapped tags keep their children, and when Allow is
// set every element outside it is unwrapped.
type Cleaner struct {
	Scripts    bool
	JavaScript bool
	Comments   bool
	Style      bool
	Links      bool
	Meta       bool
	Embedded   bool
	Frames     bool
	Forms      bool
	Allow      map[string]bool
}

// AllowTags is the HTML5 element list kept by the strict cleaner.
var AllowTags = Set(
	"html",
	"head", "title",
	"body", "article", "section",
	"h1", "h2", "h3", "h4", "h5", "h6", "header", "footer", "address",
	"p", "hr", "pre", "blockquote", "ol", "ul", "li", "dl", "dt", "dd",
	"figure", "figcaption", "div",
	"a", "em", "strong", "small", "s", "cite", "q", "dfn", "abbr", "data",
	"time", "code", "var", "samp", "kbd", "sub", "sup", "i", "b", "u", "mark",
	"ruby", "rt", "rp", "bdi", "bdo", "span", "br", "wbr",
	"del", "ins",
	"img", "iframe", "embed", "object", "param", "video", "audio", "source",
	"track", "canvas", "map", "area", "svg", "math",
	"table", "caption", "colgroup", "col", "tbody", "thead", "tfoot", "tr",
	"td", "th",
	"noscript",
)

// newsAllowTags is the narrower list used with the separate walker.
var newsAllowTags = Set(
	"html", "head", "title", "body", "header",
	"div", "article", "section", "figure", "figcaption",
	"p", "h1", "h2", "h3", "h4", "h5", "h6",
	"a", "img", "br", "font",
	"b", "blod", "big", "i", "em", "italic", "small", "strike", "sub",
	"strong", "sup", "tt", "u",
	"textarea",
)

// Loose strips scripts, script attributes, comments, styles and stylesheet links.
func Loose() Cleaner {
	return Cleaner{Scripts: true, JavaScript: true, Comments: true, Style: true, Links: true}
}

// LooseKeepScripts is Loose without script removal, for pages that embed
// their payload in inline scripts.
func LooseKeepScripts() Cleaner {
	c := Loose()
	c.Scripts = false
	return c
}

// Strict is Loose plus meta/frame/form removal restricted to AllowTags.
func Strict() Cleaner {
	c := Loose()
	c.Meta = true
	c.Frames = true
	c.Forms = true
	c.Allow = AllowTags
	return c
}

// StrictWith is Strict with extra allowed tags and form controls kept.
func StrictWith(extra ...string) Cleaner {
	c := Strict()
	c.Forms = false
	allow := make(map[string]bool, len(AllowTags)+len(extra))
	for k := range AllowTags {
		allow[k] = true
	}
	for _, e := range extra {
		allow[e] = true
	}
	c.Allow = allow
	return c
}

// News is the legacy cleaner used with the separate walker. Embedded
// objects are unwrapped.
func News() Cleaner {
	c := Strict()
	c.Embedded = true
	c.Allow = newsAllowTags
	return c
}

func (c Cleaner) sets() (kill, unwrap map[string]bool) {
	kill = map[string]bool{}
	unwrap = map[string]bool{}
	if c.Scripts {
		kill["script"] = true
	}
	if c.Style {
		kill["style"] = true
	}
	if c.Links {
		kill["link"] = true
	}
	if c.Meta {
		kill["meta"] = true
	}
	if c.Embedded {
		kill["applet"] = true
		for _, t := range []string{"iframe", "embed", "layer", "object", "param"} {
			unwrap[t] = true
		}
	}
	if c.Frames {
		kill["frameset"] = true
		kill["frame"] = true
	}
	if c.Forms {
		unwrap["form"] = true
		for _, t := range []string{"button", "input", "select", "textarea"} {
			kill[t] = true
		}
	}
	return kill, unwrap
}

// Clean edits root in place.
func (c Cleaner) Clean(root *html.Node) {
	kill, unwrap := c.sets()
	var killed, unwrapped []*html.Node
	walk(root, func(n *html.Node) bool {
		switch n.Type {
		case html.CommentNode:
			if c.Comments {
				killed = append(killed, n)
			}
			return false
		case html.ElementNode:
			if kill[n.Data] {
				killed = append(killed, n)
				return false
			}
			if !c.Style && c.JavaScript && n.Data == "link" && strings.Contains(strings.ToLower(attrOf(n, "rel")), "stylesheet") {
				killed = append(killed, n)
				return false
			}
			if unwrap[n.Data] {
				unwrapped = append(unwrapped, n)
			}
			c.cleanAttributes(n)
		}
		return true
	})
	for _, n := range killed {
		Remove(n)
	}
	for _, n := range unwrapped {
		Unwrap(n)
	}
	if c.Allow == nil {
		return
	}
	var bad []*html.Node
	walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && !c.Allow[n.Data] {
			bad = append(bad, n)
		}
		return true
	})
	for _, n := range bad {
		Unwrap(n)
	}
}

func (c Cleaner) cleanAttributes(n *html.Node) {
	if !c.JavaScript && !c.Style {
		return
	}
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		key := strings.ToLower(a.Key)
		if c.JavaScript && strings.HasPrefix(key, "on") {
			continue
		}
		if c.Style && key == "style" {
			continue
		}
		if c.JavaScript && isLinkAttr(key) && isJavaScriptURL(a.Val) {
			a.Val = ""
		}
		kept = append(kept, a)
	}
	n.Attr = kept
}

func isLinkAttr(key string) bool {
	switch key {
	case "href", "src", "action", "data", "background", "poster", "formaction":
		return true
	}
	return false
}

func isJavaScriptURL(v string) bool {
	v = strings.ToLower(strings.Join(strings.Fields(v), ""))
	return strings.HasPrefix(v, "javascript:") || strings.HasPrefix(v, "vbscript:")
}

func attrOf(n *html.Node, key string) string {
	v, _ := Attr(n, key)
	return v
}

// walk visits nodes in document order; fn returns false to skip children.
func walk(root *html.Node, fn func(*html.Node) bool) {
	stack := []*html.Node{root}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(cur) {
			continue
		}
		for c := cur.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, c)
		}
	}
}
