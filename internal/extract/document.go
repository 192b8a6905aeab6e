package extract

import (
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/zhidu-qidian/Spiders/internal/dom"
	"github.com/zhidu-qidian/Spiders/internal/textutil"
)

// Page is the input of a site extractor.
type Page struct {
	URL  string
	HTML string
	// Now anchors relative dates.
	Now time.Time
}

// Document holds the cleaned variants of a page. Scalar fields are read off
// Loose; content is read off Strict, whose links are absolute.
type Document struct {
	Page
	LooseHTML string
	Loose     *goquery.Document
	Strict    *goquery.Document
}

// NewDocument parses page twice and applies the cleaners.
func NewDocument(page Page, loose, strict dom.Cleaner) (*Document, error) {
	looseRoot, err := dom.Parse(page.HTML)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	loose.Clean(looseRoot)

	strictRoot, err := dom.Parse(page.HTML)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	loose.Clean(strictRoot)
	strict.Clean(strictRoot)
	absoluteLinks(strictRoot, page.URL)

	return &Document{
		Page:      page,
		LooseHTML: dom.Render(looseRoot),
		Loose:     goquery.NewDocumentFromNode(looseRoot),
		Strict:    goquery.NewDocumentFromNode(strictRoot),
	}, nil
}

func absoluteLinks(root *html.Node, base string) {
	if base == "" {
		return
	}
	walkDescendants(root, func(n *html.Node) bool {
		if dom.IsElement(n, "a") {
			href, _ := dom.Attr(n, "href")
			dom.SetAttr(n, "href", textutil.Resolve(base, href))
		}
		return true
	})
}

// Body returns the strict <body> node, or nil.
func (d *Document) Body() *html.Node {
	body := d.Strict.Find("body")
	if body.Length() == 0 {
		return nil
	}
	return body.Get(0)
}

// Extract reads the rule from the loose document: a literal wins, otherwise
// selectors are tried in order until one yields a non-empty value.
func (d *Document) Extract(rule Rule) (string, error) {
	if rule.Literal != "" {
		return rule.Literal, nil
	}
	for _, sel := range rule.Selectors {
		v, err := sel.Extract(d.Loose.Selection)
		if err != nil {
			return "", err
		}
		if v != "" {
			return v, nil
		}
	}
	return "", nil
}

// Matches reports whether any selector of rule finds an element in the
// loose document.
func (d *Document) Matches(rule Rule) (bool, error) {
	for _, sel := range rule.Selectors {
		found, err := sel.Find(d.Loose.Selection)
		if err != nil {
			return false, err
		}
		if found.Length() > 0 {
			return true, nil
		}
	}
	return false, nil
}

// selectionOf wraps a node so selectors search its descendants.
func selectionOf(n *html.Node) *goquery.Selection {
	return goquery.NewDocumentFromNode(n).Selection
}
