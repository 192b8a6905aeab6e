package stage

import (
	"maps"
	"strconv"
	"time"

	"github.com/zhidu-qidian/Spiders/internal/spider"
)

// Site ids with behaviour of their own.
const (
	SiteBaidu   = "585b6f3f3deaeb61dd2e288b"
	SiteHaowai  = "5862342c3deaeb61dd2e2890"
	SiteUmei    = "5875f46e3deaeb61dd2e2898"
	SiteSina    = "57a4092eda083a0e80a709c1"
	SiteToutiao = "579ee39fda083a625d1f4ad5"
	SiteWeixin  = "57bab42eda083a1c19957b1f"
	SiteKuaibao = "57b2c182da083a1c19957b1e"
	SiteNews163 = "57736f7c1100840aa214dbee"
	SiteWeibo   = "583bc5155d272cd5c47a7668"
)

const toutiaoAppCrawler = "toutiaoapp"

// Sina hot news channels need the day as top_time.
var sinaHotChannels = map[string]bool{
	"594b9a07921e6d1615df7afb": true,
	"594b99b6921e6d1615df7af9": true,
	"594b9985921e6d1615df7af7": true,
	"594b9951921e6d1615df7af5": true,
	"594b98fd921e6d1615df7af3": true,
}

// listParams returns the request params of cfg with the per-site values
// that must change on every fetch.
func listParams(cfg spider.SiteConfig, ch spider.Channel, now time.Time) map[string][]string {
	params := maps.Clone(cfg.Request.Params)
	if params == nil {
		params = map[string][]string{}
	}
	set := func(key, value string) { params[key] = []string{value} }
	unix := strconv.FormatInt(now.Unix(), 10)

	switch {
	case ch.Site == SiteBaidu:
		set("ts", unix)
	case ch.Site == SiteHaowai:
		set("lastTime", now.Format("20060102150405"))
	case ch.Site == SiteUmei:
		set("_", unix)
	case ch.Site == SiteSina && sinaHotChannels[cfg.Channel]:
		set("top_time", now.Format("20060102"))
	case ch.Site == SiteToutiao && cfg.Crawler == toutiaoAppCrawler:
		ms := now.UnixMilli()
		sec := ms / 1000
		set("_rticket", strconv.FormatInt(ms, 10))
		set("last_refresh_sub_entrance_interval", strconv.FormatInt(sec, 10))
		set("min_behot_time", strconv.FormatInt(sec-7200, 10))
	}
	return params
}
