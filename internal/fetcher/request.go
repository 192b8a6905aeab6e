package fetcher

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/zhidu-qidian/Spiders/internal/spider"
	"github.com/zhidu-qidian/Spiders/internal/textutil"
)

// userAgentHeader is the key site configs use to pin an agent.
const userAgentHeader = "user_agent"

// NewRequest turns a stored request recipe into a fetch request. GET merges
// the params into the URL and POST sends them form-encoded.
func NewRequest(spec spider.RequestSpec) (spider.FetchRequest, error) {
	req := spider.FetchRequest{Headers: http.Header{}}
	for key, value := range spec.Headers {
		if strings.EqualFold(key, userAgentHeader) || strings.EqualFold(key, "User-Agent") {
			req.UserAgent = value
			continue
		}
		req.Headers.Set(key, value)
	}
	if req.UserAgent == "" {
		req.UserAgent = DefaultFor(spec.UserAgentType)
	}

	switch method := strings.ToUpper(spec.Method); method {
	case "", http.MethodGet:
		req.Method = http.MethodGet
		req.URL = textutil.RebuildURL(spec.URL, spec.Params)
	case http.MethodPost:
		req.Method = http.MethodPost
		req.URL = spec.URL
		req.Body = []byte(textutil.EncodeParams(spec.Params))
		if req.Headers.Get("Content-Type") == "" {
			req.Headers.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	default:
		return spider.FetchRequest{}, fmt.Errorf("only support GET or POST, got %q", spec.Method)
	}
	return req, nil
}

// Get builds a GET for url with the given agent and referer.
func Get(url, userAgent, referer string) spider.FetchRequest {
	return spider.FetchRequest{
		URL:       url,
		Method:    http.MethodGet,
		UserAgent: userAgent,
		Referer:   referer,
	}
}
