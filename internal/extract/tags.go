package extract

import "github.com/zhidu-qidian/Spiders/internal/dom"

// Element classes used by the content walker.
var (
	// newlineTags end the current paragraph.
	newlineTags = dom.Set(
		"article", "section", "header", "footer", "address",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"p", "pre", "blockquote", "ol", "ul", "dl", "figure", "div",
		"br", "hr",
		"img", "iframe", "object", "embed", "video", "math",
		"table",
		"figcaption",
		"form",
	)
	// atomTags are kept whole when they hold no media.
	atomTags = dom.Set(
		"h1", "h2", "h3", "h4", "h5", "h6",
		"pre", "blockquote", "ol", "ul", "dl",
		"iframe", "video", "code", "object", "embed",
		"math",
		"table",
		"figcaption",
	)
	tableTags = dom.Set("table", "caption", "colgroup", "col", "tbody", "thead", "tfoot", "tr", "td", "th")
	dropTags  = dom.Set("noscript")
	mediaTags = dom.Set("img", "video", "iframe")

	// inlineTags are the phrasing elements the separate walker merges.
	inlineTags = dom.Set(
		"a", "strong", "sup", "tt", "u",
		"b", "blod", "big", "i", "em", "italic", "small", "strike", "sub",
	)

	commonAttributes = dom.Set(
		"accesskey", "contenteditable", "contextmenu", "dir", "draggable",
		"dropzone", "hidden", "is", "itemid", "itemprop", "itemref", "itemscope",
		"lang", "spellcheck", "styple", "tabindex", "title", "translate", "class",
		"id",
	)
	imgContentAttributes = dom.Set(
		"alt", "src", "srcset", "sizes", "crossorigin", "usemap", "ismap", "width",
		"height", "referrerpolicy",
	)
)
