package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/zhidu-qidian/Spiders/internal/confdir"
	"github.com/zhidu-qidian/Spiders/internal/dom"
)

// Parsing modes.
const (
	ModeHTML = "html"
	ModeAjax = "ajax"
)

// Field locates one item value. HTML configs use Selector; structured
// configs use a "|"-separated Path. For the url field of a structured config
// with URLFields, Path is a "{}" template.
type Field struct {
	Path     string
	Selector *dom.Selector
}

// UnmarshalJSON accepts a path string, a selector object or null.
func (f *Field) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = Field{}
		return nil
	case len(b) > 0 && b[0] == '"':
		*f = Field{}
		return json.Unmarshal(b, &f.Path)
	case len(b) > 0 && b[0] == '{':
		var sel dom.Selector
		if err := json.Unmarshal(b, &sel); err != nil {
			return err
		}
		*f = Field{Selector: &sel}
		return nil
	default:
		return fmt.Errorf("feed field must be a string, an object or null, got %s", b)
	}
}

// ListRule locates the item list. Structured configs use Path, or Index to
// take the first array-valued member of the payload; HTML configs use
// Selector.
type ListRule struct {
	Path     string
	Index    bool
	Selector *dom.Selector
}

// UnmarshalJSON accepts a path string, an integer, a selector object or null.
func (l *ListRule) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*l = ListRule{}
	switch {
	case bytes.Equal(b, []byte("null")):
		return nil
	case len(b) > 0 && b[0] == '"':
		return json.Unmarshal(b, &l.Path)
	case len(b) > 0 && b[0] == '{':
		var sel dom.Selector
		if err := json.Unmarshal(b, &sel); err != nil {
			return err
		}
		l.Selector = &sel
		return nil
	default:
		var n int
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("feed list must be a string, an integer, an object or null, got %s", b)
		}
		l.Index = true
		return nil
	}
}

// IsZero reports whether the rule is unset.
func (l ListRule) IsZero() bool {
	return l.Path == "" && !l.Index && l.Selector == nil
}

// Config is the parse recipe of one crawler.
type Config struct {
	Crawler string
	Mode    string
	List    ListRule
	// Skip slices the trimmed document, in runes, before decoding. Negative
	// bounds count from the end.
	Skip []int
	// Filter drops items whose url matches.
	Filter *regexp.Regexp
	// URLFields are the paths substituted into the url template.
	URLFields []string
	Fields    map[string]Field
}

// Snapshot is an immutable set of configs keyed by crawler name.
type Snapshot struct {
	configs map[string]*Config
}

// Lookup returns the config of crawler.
func (s *Snapshot) Lookup(crawler string) (*Config, bool) {
	if s == nil {
		return nil, false
	}
	c, ok := s.configs[crawler]
	return c, ok
}

// Len returns the number of crawlers.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.configs)
}

// Names returns the crawler names in sorted order.
func (s *Snapshot) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.configs))
	for name := range s.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type configFile struct {
	List []map[string]json.RawMessage `json:"list"`
}

// ParseSnapshot decodes config files of the form {"list": [...]}. A crawler
// defined twice keeps its last definition.
func ParseSnapshot(documents ...[]byte) (*Snapshot, error) {
	snap := &Snapshot{configs: map[string]*Config{}}
	for _, doc := range documents {
		var file configFile
		if err := json.Unmarshal(doc, &file); err != nil {
			return nil, fmt.Errorf("decode feed config: %w", err)
		}
		for _, raw := range file.List {
			cfg, err := parseConfig(raw)
			if err != nil {
				return nil, err
			}
			snap.configs[cfg.Crawler] = cfg
		}
	}
	return snap, nil
}

func parseConfig(raw map[string]json.RawMessage) (*Config, error) {
	for k, v := range raw {
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			delete(raw, k)
		}
	}
	cfg := &Config{Mode: ModeHTML, Fields: map[string]Field{}}
	if err := decodeMember(raw, "crawler", &cfg.Crawler); err != nil {
		return nil, err
	}
	if cfg.Crawler == "" {
		return nil, errors.New("feed config without crawler")
	}
	wrap := func(err error) error {
		return fmt.Errorf("feed config %s: %w", cfg.Crawler, err)
	}
	if err := decodeMember(raw, "type", &cfg.Mode); err != nil {
		return nil, wrap(err)
	}
	if cfg.Mode != ModeHTML && cfg.Mode != ModeAjax {
		return nil, wrap(fmt.Errorf("unknown type %q", cfg.Mode))
	}
	if err := decodeMember(raw, "list", &cfg.List); err != nil {
		return nil, wrap(err)
	}
	if err := decodeMember(raw, "skip", &cfg.Skip); err != nil {
		return nil, wrap(err)
	}
	if len(cfg.Skip) != 0 && len(cfg.Skip) != 2 {
		return nil, wrap(errors.New("skip must hold two bounds"))
	}
	var filter string
	if err := decodeMember(raw, "filter", &filter); err != nil {
		return nil, wrap(err)
	}
	if filter != "" {
		re, err := regexp.Compile(filter)
		if err != nil {
			return nil, wrap(err)
		}
		cfg.Filter = re
	}
	if err := decodeMember(raw, "fields", &cfg.URLFields); err != nil {
		return nil, wrap(err)
	}
	for _, name := range fieldNames {
		var f Field
		if err := decodeMember(raw, name, &f); err != nil {
			return nil, wrap(err)
		}
		if f.Path != "" || f.Selector != nil {
			cfg.Fields[name] = f
		}
	}
	return cfg, nil
}

func decodeMember(raw map[string]json.RawMessage, key string, v any) error {
	b, ok := raw[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// Store publishes feed config snapshots.
type Store = confdir.Store[Snapshot]

// NewStore loads the feed configs under dir.
func NewStore(dir string) (*Store, error) {
	return confdir.New[Snapshot](dir, ParseSnapshot)
}

// NewStaticStore wraps a fixed snapshot.
func NewStaticStore(snap *Snapshot) *Store {
	return confdir.Static(snap)
}
