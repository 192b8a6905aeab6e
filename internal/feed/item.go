// Package feed parses listing pages into feed items, driven by per-crawler
// configs for HTML and structured (JSON or JS literal) responses.
package feed

// Item is one entry read off a listing page.
type Item struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	PublishTime string `json:"publish_time"`
	PublishSite string `json:"publish_site"`
	Author      string `json:"author"`
	Abstract    string `json:"abstract"`
	Keywords    string `json:"keywords"`
	CommentID   string `json:"comment_id"`
	HTML        string `json:"html"`
	Thumb       string `json:"thumb"`

	// Media listings (video and joke channels).
	Text     string `json:"text,omitempty"`
	Src      string `json:"src,omitempty"`
	Duration string `json:"duration,omitempty"`
	NLike    string `json:"n_like,omitempty"`
	NDislike string `json:"n_dislike,omitempty"`
	NComment string `json:"n_comment,omitempty"`
}

// Valid reports whether the item carries both a title and a url.
func (i Item) Valid() bool {
	return i.Title != "" && i.URL != ""
}

// fieldNames lists the configurable item fields in evaluation order.
var fieldNames = []string{
	"url", "title", "publish_time", "publish_site", "author", "abstract",
	"keywords", "comment_id", "html", "thumb",
	"text", "src", "duration", "n_like", "n_dislike", "n_comment",
}

func (i *Item) set(name, value string) {
	switch name {
	case "url":
		i.URL = value
	case "title":
		i.Title = value
	case "publish_time":
		i.PublishTime = value
	case "publish_site":
		i.PublishSite = value
	case "author":
		i.Author = value
	case "abstract":
		i.Abstract = value
	case "keywords":
		i.Keywords = value
	case "comment_id":
		i.CommentID = value
	case "html":
		i.HTML = value
	case "thumb":
		i.Thumb = value
	case "text":
		i.Text = value
	case "src":
		i.Src = value
	case "duration":
		i.Duration = value
	case "n_like":
		i.NLike = value
	case "n_dislike":
		i.NDislike = value
	case "n_comment":
		i.NComment = value
	}
}
