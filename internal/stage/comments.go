package stage

import "strings"

const (
	weixinNewsPrefix    = "http://mp.weixin.qq.com/s"
	weixinCommentPrefix = "http://mp.weixin.qq.com/mp/getcomment"
)

// CommentLinker builds the descriptor a comment crawler needs to fetch the
// comments of an item. An empty result means the site has none.
type CommentLinker interface {
	Link(site, ref string) map[string]string
}

// SiteComments knows the comment descriptors of kuaibao, news163, weibo and
// weixin.
type SiteComments struct{}

// Link implements CommentLinker. ref is the listing's comment id, or the
// article url for weixin.
func (SiteComments) Link(site, ref string) map[string]string {
	switch site {
	case SiteKuaibao, SiteNews163, SiteWeibo:
		return map[string]string{"id": ref}
	case SiteWeixin:
		if !strings.HasPrefix(ref, weixinNewsPrefix) {
			return nil
		}
		return map[string]string{"url": strings.ReplaceAll(ref, weixinNewsPrefix, weixinCommentPrefix)}
	default:
		return nil
	}
}
