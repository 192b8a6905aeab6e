package textutil

import (
	"net/url"
	"strings"
)

// Resolve joins ref onto base. Invalid inputs return ref unchanged.
func Resolve(base, ref string) string {
	if base == "" {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// RebuildURL merges params into the query string of raw.
func RebuildURL(raw string, params map[string][]string) string {
	if len(params) == 0 {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	for k, vs := range params {
		q.Del(k)
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// EncodeParams url-encodes params for a form body.
func EncodeParams(params map[string][]string) string {
	return url.Values(params).Encode()
}
