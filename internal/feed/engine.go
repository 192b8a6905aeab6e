package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhidu-qidian/Spiders/internal/dom"
	"github.com/zhidu-qidian/Spiders/internal/jsobj"
	"github.com/zhidu-qidian/Spiders/internal/spider"
	"github.com/zhidu-qidian/Spiders/internal/textutil"
)

const (
	baijiahaoPrefix = "http://baijiahao.baidu.com"
	baijiaPrefix    = "https://baijia.baidu.com"
)

// Special parses the listing of a crawler that configs cannot describe.
// Its items are returned as-is, without the generic post-processing.
type Special interface {
	Parse(ctx context.Context, document, url string) ([]Item, error)
}

// SpecialFunc adapts a function to Special.
type SpecialFunc func(ctx context.Context, document, url string) ([]Item, error)

// Parse implements Special.
func (f SpecialFunc) Parse(ctx context.Context, document, url string) ([]Item, error) {
	return f(ctx, document, url)
}

// Engine parses listing documents by crawler name.
type Engine struct {
	configs  *Store
	specials map[string]Special
	now      func() time.Time
	logger   *zap.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithSpecial registers a special parser under crawler, replacing any
// built-in of the same name.
func WithSpecial(crawler string, s Special) Option {
	return func(e *Engine) { e.specials[crawler] = s }
}

// WithClock sets the time source for relative dates.
func WithClock(c spider.Clock) Option {
	return func(e *Engine) { e.now = c.Now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine builds an engine over configs with the s_baidu special
// registered.
func NewEngine(configs *Store, opts ...Option) *Engine {
	e := &Engine{
		configs:  configs,
		specials: map[string]Special{},
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	e.specials[BaiduCrawler] = SpecialFunc(func(_ context.Context, document, _ string) ([]Item, error) {
		return ParseBaidu(document, e.now())
	})
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Configs returns the engine's config store.
func (e *Engine) Configs() *Store {
	return e.configs
}

// Supports reports whether crawler has a config or a special parser.
func (e *Engine) Supports(crawler string) bool {
	if _, ok := e.specials[crawler]; ok {
		return true
	}
	_, ok := e.configs.Current().Lookup(crawler)
	return ok
}

// Parse returns the valid items of document. url is the address the
// document was fetched from and is used to resolve relative links. An
// unknown crawler yields no items.
func (e *Engine) Parse(ctx context.Context, crawler, document, url string) ([]Item, error) {
	if s, ok := e.specials[crawler]; ok {
		return s.Parse(ctx, document, url)
	}
	cfg, ok := e.configs.Current().Lookup(crawler)
	if !ok {
		e.logger.Debug("feed crawler not configured", zap.String("crawler", crawler))
		return nil, nil
	}
	var (
		items []Item
		err   error
	)
	if cfg.Mode == ModeAjax {
		items, err = parseStructured(document, cfg)
	} else {
		items, err = parseHTML(document, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s listing: %w", crawler, err)
	}
	return e.finish(items, cfg, url), nil
}

func (e *Engine) finish(items []Item, cfg *Config, base string) []Item {
	out := make([]Item, 0, len(items))
	now := e.now()
	for _, item := range items {
		if !item.Valid() {
			continue
		}
		if cfg.Filter != nil && cfg.Filter.MatchString(item.URL) {
			continue
		}
		if item.PublishTime != "" {
			item.PublishTime = textutil.CleanDateTime(item.PublishTime, now)
		}
		if base != "" {
			item.URL = textutil.Resolve(base, item.URL)
			if item.Thumb != "" {
				item.Thumb = textutil.Resolve(base, item.Thumb)
			}
		}
		if strings.HasPrefix(item.URL, baijiahaoPrefix) {
			item.URL = baijiaPrefix + strings.TrimPrefix(item.URL, baijiahaoPrefix)
		}
		out = append(out, item)
	}
	return out
}

func parseHTML(document string, cfg *Config) ([]Item, error) {
	if cfg.List.Selector == nil {
		return nil, nil
	}
	doc, err := dom.ParseDocument(dom.StripXMLDeclaration(document))
	if err != nil {
		return nil, err
	}
	tags, err := cfg.List.Selector.FindAll(doc.Selection)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, tags.Length())
	for i := range tags.Nodes {
		tag := tags.Eq(i)
		var item Item
		for _, name := range fieldNames {
			f, ok := cfg.Fields[name]
			if !ok || f.Selector == nil {
				continue
			}
			v, err := f.Selector.Extract(tag)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			item.set(name, v)
		}
		items = append(items, item)
	}
	return items, nil
}

func parseStructured(document string, cfg *Config) ([]Item, error) {
	if len(cfg.Skip) == 2 {
		document = sliceRunes(strings.TrimSpace(document), cfg.Skip[0], cfg.Skip[1])
	}
	data, err := jsobj.Decode(document)
	if err != nil {
		return nil, err
	}
	var elements []any
	switch list := data.(type) {
	case []any:
		elements = list
	default:
		switch {
		case cfg.List.IsZero():
		case cfg.List.Index:
			elements = firstArray(document, data)
		default:
			elements, _ = jsobj.Lookup(data, cfg.List.Path).([]any)
		}
	}

	items := make([]Item, 0, len(elements))
	for _, raw := range elements {
		element, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		var item Item
		for _, name := range fieldNames {
			f, ok := cfg.Fields[name]
			if !ok || name == "url" {
				continue
			}
			value := jsobj.Lookup(element, f.Path)
			if name == "keywords" {
				if list, ok := value.([]any); ok {
					item.Keywords = joinValues(list, ";")
					continue
				}
			}
			item.set(name, stringify(value))
		}
		url := cfg.Fields["url"].Path
		if len(cfg.URLFields) > 0 {
			args := make([]string, len(cfg.URLFields))
			for i, path := range cfg.URLFields {
				args[i] = stringify(jsobj.Lookup(element, path))
			}
			item.URL = formatTemplate(url, args)
		} else {
			item.URL = stringify(jsobj.Lookup(element, url))
		}
		items = append(items, item)
	}
	return items, nil
}

// firstArray returns the first array-valued member of an object payload, in
// document order when the payload is JSON.
func firstArray(document string, data any) []any {
	obj, ok := data.(map[string]any)
	if !ok {
		return nil
	}
	for _, key := range objectKeys(document, obj) {
		if list, ok := obj[key].([]any); ok {
			return list
		}
	}
	return nil
}

func objectKeys(document string, obj map[string]any) []string {
	dec := json.NewDecoder(strings.NewReader(document))
	if tok, err := dec.Token(); err == nil && tok == json.Delim('{') {
		var keys []string
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				break
			}
			key, _ := tok.(string)
			keys = append(keys, key)
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				break
			}
		}
		if len(keys) == len(obj) {
			return keys
		}
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sliceRunes slices s like a Python string slice: negative bounds count from
// the end and out-of-range bounds are clamped.
func sliceRunes(s string, start, end int) string {
	r := []rune(s)
	n := len(r)
	clamp := func(i int) int {
		if i < 0 {
			i += n
		}
		return max(0, min(i, n))
	}
	start, end = clamp(start), clamp(end)
	if start >= end {
		return ""
	}
	return string(r[start:end])
}

// stringify renders a decoded value the way it reads in the payload.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}

func joinValues(list []any, sep string) string {
	parts := make([]string, 0, len(list))
	for _, v := range list {
		parts = append(parts, stringify(v))
	}
	return strings.Join(parts, sep)
}

// formatTemplate substitutes args into "{}" (sequential) and "{N}" (indexed)
// placeholders. "{{" and "}}" are literal braces; missing arguments render
// empty.
func formatTemplate(tmpl string, args []string) string {
	var b strings.Builder
	next := 0
	arg := func(i int) string {
		if i < 0 || i >= len(args) {
			return ""
		}
		return args[i]
	}
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				b.WriteString(tmpl[i:])
				return b.String()
			}
			field := tmpl[i+1 : i+end]
			if field == "" {
				b.WriteString(arg(next))
				next++
			} else if n, err := strconv.Atoi(field); err == nil {
				b.WriteString(arg(n))
			} else {
				b.WriteString(tmpl[i : i+end+1])
			}
			i += end
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
