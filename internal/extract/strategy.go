package extract

import (
	"context"

	"golang.org/x/net/html"

	"github.com/zhidu-qidian/Spiders/internal/dom"
	"github.com/zhidu-qidian/Spiders/internal/spider"
	"github.com/zhidu-qidian/Spiders/internal/textutil"
)

// Result is the outcome of a detail extraction.
type Result struct {
	Title   string               `json:"title"`
	Date    string               `json:"date"`
	Source  string               `json:"source"`
	Author  string               `json:"author"`
	Editor  string               `json:"editor"`
	Summary string               `json:"summary"`
	Tags    string               `json:"tags"`
	Missing bool                 `json:"missing"`
	Content []spider.ContentItem `json:"content"`
	// Support reports whether any config matched the URL.
	Support bool `json:"support"`
}

// Has reports whether the named field is non-empty.
func (r Result) Has(field string) bool {
	switch field {
	case "title":
		return r.Title != ""
	case "date":
		return r.Date != ""
	case "source":
		return r.Source != ""
	case "author":
		return r.Author != ""
	case "editor":
		return r.Editor != ""
	case "summary":
		return r.Summary != ""
	case "tags":
		return r.Tags != ""
	case "missing":
		return r.Missing
	case "content":
		return len(r.Content) > 0
	default:
		return false
	}
}

// SiteExtractor extracts one page with one config.
type SiteExtractor interface {
	Extract(ctx context.Context, page Page, cfg Config) (Result, error)
}

// FieldHooks supply values for fields the config leaves unset.
type FieldHooks struct {
	Title, Date, Source, Author, Editor, Summary, Tags func(d *Document) string
}

// CleanHooks post-process extracted values. Editor shares the author hook.
type CleanHooks struct {
	Title, Source, Author func(d *Document, v string) string
}

// Strategy composes the behaviour of a site extractor.
type Strategy struct {
	Loose  dom.Cleaner
	Strict dom.Cleaner
	Walker Walker
	// Locate finds the content root when the config has no content rule.
	Locate func(d *Document) *html.Node
	// Content replaces root-based content extraction entirely.
	Content func(d *Document, cfg Config) ([]spider.ContentItem, error)
	// ContentRoot replaces the walker for individual roots.
	ContentRoot func(d *Document, root *html.Node) []spider.ContentItem
	Fallback    FieldHooks
	Clean       CleanHooks
}

// AdjustStrategy is the recommended strategy: strict HTML5 allow-list,
// mosaic walker, no content fallback.
func AdjustStrategy() Strategy {
	return Strategy{Loose: dom.Loose(), Strict: dom.Strict(), Walker: MosaicWalker{}}
}

// ScoreStrategy is AdjustStrategy with the scoring locator and <title>
// fallback.
func ScoreStrategy() Strategy {
	s := AdjustStrategy()
	s.Locate = func(d *Document) *html.Node { return ScoreContent(d.Body()) }
	s.Fallback.Title = func(d *Document) string {
		return textutil.Unescape(dom.AttrText(d.Loose.Find("title"), "text"))
	}
	return s
}

// SeparateStrategy is the legacy strategy built on the separate walker.
func SeparateStrategy() Strategy {
	return Strategy{Loose: dom.Loose(), Strict: dom.News(), Walker: SeparateWalker{}}
}

// StrategyExtractor runs a Strategy.
type StrategyExtractor struct {
	Strategy Strategy
}

// Extract implements SiteExtractor.
func (e StrategyExtractor) Extract(_ context.Context, page Page, cfg Config) (Result, error) {
	s := e.Strategy
	d, err := NewDocument(page, s.Loose, s.Strict)
	if err != nil {
		return Result{}, err
	}
	var r Result
	if r.Title, err = e.scalar(d, cfg.Title, s.Fallback.Title, s.Clean.Title); err != nil {
		return Result{}, err
	}
	date, err := e.scalar(d, cfg.Date, s.Fallback.Date, nil)
	if err != nil {
		return Result{}, err
	}
	r.Date = textutil.CleanDateTime(date, page.Now)
	if cfg.Source.Literal != "" {
		r.Source = cfg.Source.Literal
	} else if r.Source, err = e.scalar(d, cfg.Source, s.Fallback.Source, s.Clean.Source); err != nil {
		return Result{}, err
	}
	if r.Author, err = e.scalar(d, cfg.Author, s.Fallback.Author, s.Clean.Author); err != nil {
		return Result{}, err
	}
	if r.Editor, err = e.scalar(d, cfg.Editor, s.Fallback.Editor, s.Clean.Author); err != nil {
		return Result{}, err
	}
	if r.Summary, err = e.scalar(d, cfg.Summary, s.Fallback.Summary, nil); err != nil {
		return Result{}, err
	}
	if r.Tags, err = e.scalar(d, cfg.Tags, s.Fallback.Tags, nil); err != nil {
		return Result{}, err
	}
	if r.Missing, err = d.Matches(cfg.Missing); err != nil {
		return Result{}, err
	}
	if s.Content != nil {
		r.Content, err = s.Content(d, cfg)
	} else {
		r.Content, err = e.content(d, cfg)
	}
	if err != nil {
		return Result{}, err
	}
	return r, nil
}

func (e StrategyExtractor) scalar(d *Document, rule Rule, fallback func(*Document) string, clean func(*Document, string) string) (string, error) {
	if rule.IsZero() {
		if fallback == nil {
			return "", nil
		}
		return fallback(d), nil
	}
	v, err := d.Extract(rule)
	if err != nil {
		return "", err
	}
	if clean != nil {
		v = clean(d, v)
	}
	return textutil.Unescape(v), nil
}

func (e StrategyExtractor) content(d *Document, cfg Config) ([]spider.ContentItem, error) {
	s := e.Strategy
	var roots []*html.Node
	if cfg.Content.IsZero() {
		if s.Locate != nil {
			if n := s.Locate(d); n != nil {
				roots = append(roots, n)
			}
		}
	} else {
		seen := map[*html.Node]bool{}
		for _, sel := range cfg.Content.Selectors {
			found, err := sel.Find(d.Strict.Selection)
			if err != nil {
				return nil, err
			}
			if found.Length() == 0 {
				continue
			}
			n := found.Get(0)
			if seen[n] {
				continue
			}
			seen[n] = true
			roots = append(roots, n)
		}
	}

	var items []spider.ContentItem
	for _, root := range roots {
		if err := prune(root, cfg); err != nil {
			return nil, err
		}
		if s.ContentRoot != nil {
			items = append(items, s.ContentRoot(d, root)...)
			continue
		}
		walker := s.Walker
		if walker == nil {
			walker = MosaicWalker{}
		}
		items = append(items, walker.Walk(d.URL, root)...)
	}
	return items, nil
}

// prune applies the before/after/clean rules to a content root.
func prune(root *html.Node, cfg Config) error {
	sel := selectionOf(root)
	if before, ok := cfg.Before.First(); ok {
		found, err := before.Find(sel)
		if err != nil {
			return err
		}
		if found.Length() > 0 {
			n := found.Get(0)
			for p := n.PrevSibling; p != nil; {
				prev := p.PrevSibling
				dom.Remove(p)
				p = prev
			}
			dom.Remove(n)
		}
	}
	if after, ok := cfg.After.First(); ok {
		found, err := after.Find(sel)
		if err != nil {
			return err
		}
		if found.Length() > 0 {
			n := found.Get(0)
			for p := n.NextSibling; p != nil; {
				next := p.NextSibling
				dom.Remove(p)
				p = next
			}
			dom.Remove(n)
		}
	}
	for _, c := range cfg.Clean.Selectors {
		found, err := c.FindAll(sel)
		if err != nil {
			return err
		}
		for _, n := range found.Nodes {
			dom.Remove(n)
		}
	}
	return nil
}
