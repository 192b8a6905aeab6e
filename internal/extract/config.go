package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/zhidu-qidian/Spiders/internal/dom"
)

// Rule is a field rule. A JSON string is a literal value, an object is a
// single selector and an array is an ordered list of selectors tried until
// one yields a value.
type Rule struct {
	Literal   string
	Selectors []dom.Selector
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Rule) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*r = Rule{}
	case b[0] == '"':
		return json.Unmarshal(b, &r.Literal)
	case b[0] == '[':
		return json.Unmarshal(b, &r.Selectors)
	case b[0] == '{':
		var s dom.Selector
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		r.Selectors = []dom.Selector{s}
	default:
		return fmt.Errorf("rule must be a string, object or array")
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r Rule) MarshalJSON() ([]byte, error) {
	switch {
	case r.Literal != "":
		return json.Marshal(r.Literal)
	case len(r.Selectors) == 1:
		return json.Marshal(r.Selectors[0])
	case len(r.Selectors) > 1:
		return json.Marshal(r.Selectors)
	default:
		return []byte("null"), nil
	}
}

// IsZero reports whether the rule is absent.
func (r Rule) IsZero() bool {
	return r.Literal == "" && len(r.Selectors) == 0
}

// First returns the first selector of the rule.
func (r Rule) First() (dom.Selector, bool) {
	if len(r.Selectors) == 0 {
		return dom.Selector{}, false
	}
	return r.Selectors[0], true
}

// Config is one extraction recipe.
type Config struct {
	Name      string `json:"-"`
	Extractor string `json:"extractor,omitempty"`
	Title     Rule   `json:"title"`
	Date      Rule   `json:"date"`
	Source    Rule   `json:"source"`
	Author    Rule   `json:"author"`
	Editor    Rule   `json:"editor"`
	Summary   Rule   `json:"summary"`
	Tags      Rule   `json:"tags"`
	Content   Rule   `json:"content"`
	Clean     Rule   `json:"clean"`
	Before    Rule   `json:"before"`
	After     Rule   `json:"after"`
	Missing   Rule   `json:"missing"`
}

// siteFile is the on-disk shape of one domain entry:
//
//	{"qq.com": {"configs": {"1": {...}}, "match": {"qq.com": ["1"], "qq.com/a/$": ["1"]}, "outer": {"kw": ["1"]}}}
type siteFile struct {
	Configs map[string]Config   `json:"configs"`
	Match   map[string][]string `json:"match"`
	Outer   map[string][]string `json:"outer"`
}

type matchKey struct {
	path   string
	domain []string
	refs   []string
}

type site struct {
	domain  []string
	configs map[string]Config
	matches []matchKey
}

type outerRule struct {
	keyword string
	configs []Config
}

// Snapshot is an immutable set of extraction configs. It is safe for
// concurrent use.
type Snapshot struct {
	sites  []site
	outers []outerRule
}

// ParseSnapshot builds a snapshot from one or more config documents.
func ParseSnapshot(documents ...[]byte) (*Snapshot, error) {
	snap := &Snapshot{}
	for i, doc := range documents {
		var raw map[string]siteFile
		if err := json.Unmarshal(doc, &raw); err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		if err := snap.add(raw); err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
	}
	snap.sort()
	return snap, nil
}

func (s *Snapshot) add(raw map[string]siteFile) error {
	for domain, file := range raw {
		for name, cfg := range file.Configs {
			cfg.Name = name
			file.Configs[name] = cfg
		}
		if len(file.Match) > 0 {
			st := site{domain: reverseDomain(domain), configs: file.Configs}
			for key, refs := range file.Match {
				if err := checkRefs(file.Configs, refs); err != nil {
					return fmt.Errorf("%s match %q: %w", domain, key, err)
				}
				mk := matchKey{refs: refs}
				host := key
				if idx := strings.Index(key, "/"); idx >= 0 {
					host, mk.path = key[:idx], key[idx:]
				}
				mk.domain = reverseDomain(host)
				st.matches = append(st.matches, mk)
			}
			s.sites = append(s.sites, st)
		}
		for keyword, refs := range file.Outer {
			if err := checkRefs(file.Configs, refs); err != nil {
				return fmt.Errorf("%s outer %q: %w", domain, keyword, err)
			}
			rule := outerRule{keyword: keyword}
			for _, ref := range refs {
				rule.configs = append(rule.configs, file.Configs[ref])
			}
			s.outers = append(s.outers, rule)
		}
	}
	return nil
}

func checkRefs(configs map[string]Config, refs []string) error {
	for _, ref := range refs {
		if _, ok := configs[ref]; !ok {
			return fmt.Errorf("unknown config %q", ref)
		}
	}
	return nil
}

// sort orders sites most specific first and keeps map-derived slices
// deterministic.
func (s *Snapshot) sort() {
	sort.SliceStable(s.sites, func(i, j int) bool {
		if len(s.sites[i].domain) != len(s.sites[j].domain) {
			return len(s.sites[i].domain) > len(s.sites[j].domain)
		}
		return strings.Join(s.sites[i].domain, ".") < strings.Join(s.sites[j].domain, ".")
	})
	for i := range s.sites {
		m := s.sites[i].matches
		sort.SliceStable(m, func(a, b int) bool {
			if m[a].path != m[b].path {
				return m[a].path < m[b].path
			}
			return strings.Join(m[a].domain, ".") < strings.Join(m[b].domain, ".")
		})
	}
	sort.SliceStable(s.outers, func(i, j int) bool { return s.outers[i].keyword < s.outers[j].keyword })
}

// Len returns the number of domain entries.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.sites)
}

// Match returns the configs applicable to rawURL, most specific first:
// outer-link keyword configs, then path-specific matches, then plain
// domain matches, each ordered by domain length descending.
func (s *Snapshot) Match(rawURL string) []Config {
	if s == nil {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	var out []Config
	for _, rule := range s.outers {
		if isOuterLink(u, rule.keyword) {
			out = append(out, rule.configs...)
			break
		}
	}
	return append(out, s.normalMatch(u)...)
}

func isOuterLink(u *url.URL, keyword string) bool {
	return strings.Contains(u.Path, keyword) || strings.Contains(u.RawQuery, keyword)
}

func (s *Snapshot) normalMatch(u *url.URL) []Config {
	domain := reverseDomain(u.Host)
	var st *site
	for i := range s.sites {
		if domainMatch(domain, s.sites[i].domain) {
			st = &s.sites[i]
			break
		}
	}
	if st == nil {
		return nil
	}
	var pathMatches, plainMatches []matchKey
	for _, mk := range st.matches {
		if !domainMatch(domain, mk.domain) {
			continue
		}
		if mk.path == "" {
			plainMatches = append(plainMatches, mk)
		} else if pathMatch(u.Path, mk.path) {
			pathMatches = append(pathMatches, mk)
		}
	}
	byLength := func(m []matchKey) {
		sort.SliceStable(m, func(i, j int) bool { return len(m[i].domain) > len(m[j].domain) })
	}
	byLength(pathMatches)
	byLength(plainMatches)
	var out []Config
	for _, mk := range append(pathMatches, plainMatches...) {
		for _, ref := range mk.refs {
			out = append(out, st.configs[ref])
		}
	}
	return out
}

// reverseDomain splits a host into labels, top-level first. Ports are dropped.
func reverseDomain(host string) []string {
	if idx := strings.LastIndex(host, ":"); idx >= 0 && !strings.Contains(host[idx:], "]") {
		host = host[:idx]
	}
	labels := strings.Split(strings.ToLower(host), ".")
	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}
	return labels
}

// domainMatch reports whether d starts with prefix, label by label.
func domainMatch(d, prefix []string) bool {
	if len(prefix) > len(d) {
		return false
	}
	for i, label := range prefix {
		if d[i] != label {
			return false
		}
	}
	return true
}

// pathMatch matches a prefix, or a suffix when pattern ends with "$".
func pathMatch(path, pattern string) bool {
	if strings.HasSuffix(pattern, "$") {
		return strings.HasSuffix(path, strings.TrimSuffix(pattern, "$"))
	}
	return strings.HasPrefix(path, pattern)
}
