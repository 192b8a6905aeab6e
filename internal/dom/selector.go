package dom

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Selection methods.
const (
	MethodFind    = "find"
	MethodFindAll = "find_all"
	MethodSelect  = "select"
	MethodXPath   = "xpath"
)

// Selector locates elements. Params follow the find-style keys: "name"
// (string or list), "id", "class_", "attrs" (object) and any other key as an
// attribute filter; "selector" carries the CSS for MethodSelect and "xpath"
// the expression for MethodXPath. "recursive": false limits matching to
// direct children. Attribute names what Extract reads from the match.
type Selector struct {
	Method    string         `json:"method,omitempty" mapstructure:"method"`
	Params    map[string]any `json:"params,omitempty" mapstructure:"params"`
	Nth       int            `json:"nth,omitempty" mapstructure:"nth"`
	Attribute string         `json:"attribute,omitempty" mapstructure:"attribute"`
}

// Empty reports whether the selector carries no criteria.
func (s Selector) Empty() bool {
	return s.Method == "" && len(s.Params) == 0
}

// Extract locates the element (or uses root itself when the selector has no
// params) and reads the configured attribute, "text" by default.
func (s Selector) Extract(root *goquery.Selection) (string, error) {
	target := root
	if len(s.Params) > 0 {
		found, err := s.Find(root)
		if err != nil {
			return "", err
		}
		target = found
	}
	return AttrText(target, s.Attribute), nil
}

func (s Selector) method(def string) string {
	if s.Method == "" {
		return def
	}
	return s.Method
}

// Find returns the single element s points at within root, honouring Nth
// for list methods. The returned selection may be empty.
func (s Selector) Find(root *goquery.Selection) (*goquery.Selection, error) {
	method := s.method(MethodFind)
	all, err := s.match(root, method)
	if err != nil {
		return nil, err
	}
	if method == MethodFind {
		return all.First(), nil
	}
	if s.Nth < 0 || s.Nth >= all.Length() {
		return all.Slice(0, 0), nil
	}
	return all.Eq(s.Nth), nil
}

// FindAll returns every element s matches. MethodFind yields at most one.
func (s Selector) FindAll(root *goquery.Selection) (*goquery.Selection, error) {
	method := s.method(MethodFindAll)
	all, err := s.match(root, method)
	if err != nil {
		return nil, err
	}
	if method == MethodFind {
		return all.First(), nil
	}
	return all, nil
}

func (s Selector) match(root *goquery.Selection, method string) (*goquery.Selection, error) {
	switch method {
	case MethodXPath:
		expr, _ := s.Params["xpath"].(string)
		if expr == "" {
			return nil, fmt.Errorf("xpath selector without expression")
		}
		var nodes []*html.Node
		for _, n := range root.Nodes {
			found, err := htmlquery.QueryAll(n, expr)
			if err != nil {
				return nil, fmt.Errorf("xpath %q: %w", expr, err)
			}
			nodes = append(nodes, found...)
		}
		return root.FindNodes(nodes...), nil
	case MethodSelect:
		css, _ := s.Params["selector"].(string)
		if css == "" {
			return nil, fmt.Errorf("select selector without css")
		}
		return safeFind(root, css, true)
	case MethodFind, MethodFindAll:
		css, err := s.CSS()
		if err != nil {
			return nil, err
		}
		recursive := true
		if r, ok := s.Params["recursive"].(bool); ok {
			recursive = r
		}
		return safeFind(root, css, recursive)
	default:
		return nil, fmt.Errorf("unknown selector method %q", method)
	}
}

// safeFind validates css with cascadia before matching so that malformed
// selectors surface as errors instead of empty selections.
func safeFind(root *goquery.Selection, css string, recursive bool) (*goquery.Selection, error) {
	group, err := cascadia.Compile(css)
	if err != nil {
		return nil, fmt.Errorf("invalid css %q: %w", css, err)
	}
	if recursive {
		return root.FindMatcher(group), nil
	}
	return root.ChildrenMatcher(group), nil
}

var reservedParams = map[string]bool{
	"name": true, "attrs": true, "class_": true, "selector": true, "xpath": true,
	"recursive": true, "limit": true, "text": true, "string": true,
}

// CSS translates find-style params into a CSS selector group.
func (s Selector) CSS() (string, error) {
	names, err := stringList(s.Params["name"])
	if err != nil {
		return "", fmt.Errorf("name: %w", err)
	}
	if len(names) == 0 {
		names = []string{"*"}
	}
	var filters []string
	if class, ok := s.Params["class_"]; ok {
		f, err := classFilter(class)
		if err != nil {
			return "", err
		}
		filters = append(filters, f)
	}
	attrs := map[string]any{}
	if raw, ok := s.Params["attrs"]; ok {
		m, ok := raw.(map[string]any)
		if !ok {
			return "", fmt.Errorf("attrs must be an object")
		}
		for k, v := range m {
			attrs[k] = v
		}
	}
	for k, v := range s.Params {
		if !reservedParams[k] {
			attrs[k] = v
		}
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "class" {
			f, err := classFilter(attrs[k])
			if err != nil {
				return "", err
			}
			filters = append(filters, f)
			continue
		}
		f, err := attrFilter(k, attrs[k])
		if err != nil {
			return "", err
		}
		filters = append(filters, f)
	}
	suffix := strings.Join(filters, "")
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + suffix
	}
	return strings.Join(parts, ","), nil
}

func classFilter(v any) (string, error) {
	switch c := v.(type) {
	case string:
		if strings.ContainsAny(c, " \t") {
			return fmt.Sprintf(`[class=%s]`, quote(c)), nil
		}
		return fmt.Sprintf(`[class~=%s]`, quote(c)), nil
	case bool:
		if c {
			return "[class]", nil
		}
		return ":not([class])", nil
	default:
		return "", fmt.Errorf("class_ must be a string")
	}
}

func attrFilter(key string, v any) (string, error) {
	switch val := v.(type) {
	case string:
		return fmt.Sprintf(`[%s=%s]`, key, quote(val)), nil
	case bool:
		if val {
			return "[" + key + "]", nil
		}
		return ":not([" + key + "])", nil
	case float64, int:
		return fmt.Sprintf(`[%s="%v"]`, key, val), nil
	default:
		return "", fmt.Errorf("attribute %s has unsupported value %T", key, v)
	}
}

func quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

func stringList(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{val}, nil
	case []string:
		return val, nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string or list, got %T", v)
	}
}

// AttrText reads attribute name from the first element of sel. "text" (or
// an empty name) returns the trimmed text content; "class" joins the class
// tokens with commas.
func AttrText(sel *goquery.Selection, name string) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	first := sel.First()
	switch name {
	case "", "text":
		return strings.TrimSpace(first.Text())
	case "class":
		v, _ := first.Attr("class")
		return strings.Join(strings.Fields(v), ",")
	default:
		v, _ := first.Attr(name)
		return strings.TrimSpace(v)
	}
}
