// Package pagination discovers the continuation pages of a multi-page
// article from per-domain configs.
package pagination

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/zhidu-qidian/Spiders/internal/confdir"
	"github.com/zhidu-qidian/Spiders/internal/dom"
	"github.com/zhidu-qidian/Spiders/internal/textutil"
)

// MaxPages caps the page number read off a document.
const MaxPages = 200

// Number kinds.
const (
	// NumberSum counts the matched elements.
	NumberSum = "sum"
	// NumberLast reads the last matched element carrying a number.
	NumberLast = "last"
)

// Number locates the page count. Without a Type the single element the
// selector points at is read.
type Number struct {
	dom.Selector
	Type string `json:"type,omitempty"`
}

// Template builds continuation URLs from a page number. Pattern holds one
// %d (or %s) verb. With Join the filled pattern is resolved against the
// article URL; otherwise it replaces everything from the last Separator on.
type Template struct {
	Pattern   string
	Join      bool
	Separator string
	// Minus drops that many URLs from the end.
	Minus int
}

// UnmarshalJSON reads {"template", "join", "separator", "minus"}. An absent
// separator means "."; an explicit null or empty one appends to the URL.
func (t *Template) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*t = Template{Separator: "."}
	fields := []struct {
		key string
		dst any
	}{
		{"template", &t.Pattern},
		{"join", &t.Join},
		{"separator", &t.Separator},
		{"minus", &t.Minus},
	}
	for _, f := range fields {
		v, ok := raw[f.key]
		if !ok {
			continue
		}
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			if f.key == "separator" {
				t.Separator = ""
			}
			continue
		}
		if err := json.Unmarshal(v, f.dst); err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
	}
	return nil
}

// Config is the pagination recipe of one domain.
type Config struct {
	Domain   string
	Number   *Number
	Start    int
	Template Template
}

type configFile struct {
	Domain string `json:"domain"`
	Conf   struct {
		Number   *Number  `json:"NUMBER"`
		Start    *int     `json:"START"`
		Template Template `json:"TEMPLATE"`
	} `json:"conf"`
}

// Snapshot is an immutable set of configs keyed by domain suffix.
type Snapshot struct {
	configs map[string]*Config
}

// ParseSnapshot decodes one config file per document.
func ParseSnapshot(documents ...[]byte) (*Snapshot, error) {
	snap := &Snapshot{configs: map[string]*Config{}}
	for _, doc := range documents {
		var file configFile
		if err := json.Unmarshal(doc, &file); err != nil {
			return nil, fmt.Errorf("decode pagination config: %w", err)
		}
		if file.Domain == "" {
			return nil, errors.New("pagination config without domain")
		}
		cfg := &Config{Domain: file.Domain, Number: file.Conf.Number, Start: 2, Template: file.Conf.Template}
		if file.Conf.Start != nil {
			cfg.Start = *file.Conf.Start
		}
		snap.configs[cfg.Domain] = cfg
	}
	return snap, nil
}

// Len returns the number of domains.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.configs)
}

// Match returns the config with the longest domain that host ends with.
func (s *Snapshot) Match(host string) (*Config, bool) {
	if s == nil {
		return nil, false
	}
	var best *Config
	for domain, cfg := range s.configs {
		if !strings.HasSuffix(host, domain) {
			continue
		}
		if best == nil || len(domain) > len(best.Domain) || (len(domain) == len(best.Domain) && domain < best.Domain) {
			best = cfg
		}
	}
	return best, best != nil
}

// Store publishes pagination config snapshots.
type Store = confdir.Store[Snapshot]

// NewStore loads the pagination configs under dir.
func NewStore(dir string) (*Store, error) {
	return confdir.New[Snapshot](dir, ParseSnapshot)
}

// NewStaticStore wraps a fixed snapshot.
func NewStaticStore(snap *Snapshot) *Store {
	return confdir.Static(snap)
}

// Judge finds continuation pages.
type Judge struct {
	configs *Store
}

// NewJudge builds a judge over configs.
func NewJudge(configs *Store) *Judge {
	return &Judge{configs: configs}
}

// Configs returns the judge's config store.
func (j *Judge) Configs() *Store {
	return j.configs
}

// Pages returns the URLs of the pages following the article at pageURL, in
// order. Unknown domains and single-page articles yield none.
func (j *Judge) Pages(document, pageURL string) ([]string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil
	}
	cfg, ok := j.configs.Current().Match(u.Host)
	if !ok {
		return nil, nil
	}
	n, err := pageCount(dom.StripXMLDeclaration(document), cfg.Number)
	if err != nil {
		return nil, fmt.Errorf("page count for %s: %w", cfg.Domain, err)
	}
	if n == 0 {
		return nil, nil
	}
	return pageURLs(pageURL, min(n, MaxPages), cfg.Start, cfg.Template), nil
}

func pageCount(document string, number *Number) (int, error) {
	if number == nil || number.Empty() {
		return 0, nil
	}
	doc, err := dom.ParseDocument(document)
	if err != nil {
		return 0, err
	}
	if number.Type == "" {
		tag, err := number.Find(doc.Selection)
		if err != nil {
			return 0, err
		}
		return tagNumber(tag, number.Attribute), nil
	}
	tags, err := number.FindAll(doc.Selection)
	if err != nil {
		return 0, err
	}
	switch number.Type {
	case NumberSum:
		return tags.Length(), nil
	case NumberLast:
		for i := tags.Length() - 1; i >= 0; i-- {
			if n := tagNumber(tags.Eq(i), number.Attribute); n > 0 {
				return n, nil
			}
		}
	}
	return 0, nil
}

// tagNumber reads the last run of ASCII digits in the element's attribute.
func tagNumber(sel *goquery.Selection, attribute string) int {
	if sel.Length() == 0 {
		return 0
	}
	text := dom.AttrText(sel, attribute)
	end := strings.LastIndexFunc(text, isDigit)
	if end < 0 {
		return 0
	}
	start := end
	for start > 0 && isDigit(rune(text[start-1])) {
		start--
	}
	n, err := strconv.Atoi(text[start : end+1])
	if err != nil {
		return math.MaxInt
	}
	return n
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func pageURLs(pageURL string, n, start int, t Template) []string {
	var urls []string
	for page := start; page <= n; page++ {
		tail := fill(t.Pattern, page)
		switch {
		case t.Join:
			urls = append(urls, textutil.Resolve(pageURL, tail))
		case t.Separator != "":
			i := strings.LastIndex(pageURL, t.Separator)
			if i < 0 {
				return nil
			}
			urls = append(urls, pageURL[:i]+tail)
		default:
			urls = append(urls, pageURL+tail)
		}
	}
	minus := max(0, min(t.Minus, len(urls)))
	return urls[:len(urls)-minus]
}

func fill(pattern string, page int) string {
	p := strconv.Itoa(page)
	return strings.NewReplacer("%d", p, "%s", p).Replace(pattern)
}
