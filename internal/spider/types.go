package spider

import (
	"net/http"
	"time"
)

// Form is the content category of a record.
type Form string

// Supported forms.
const (
	FormNews    Form = "news"
	FormAtlas   Form = "atlas"
	FormVideo   Form = "video"
	FormJoke    Form = "joke"
	FormPicture Form = "picture"
)

// Page is one fetched document. Page 0 is the primary page, later entries are
// pagination continuations.
type Page struct {
	URL  string `bson:"url" json:"url"`
	HTML string `bson:"html" json:"html"`
}

// ImageMeta describes an image after it was re-hosted.
type ImageMeta struct {
	Src    string `bson:"src" json:"src"`
	Width  int    `bson:"width" json:"width"`
	Height int    `bson:"height" json:"height"`
	QR     bool   `bson:"qr" json:"qr"`
	Gray   bool   `bson:"gray" json:"gray"`
	MD5    string `bson:"md5" json:"md5"`
	Org    string `bson:"org" json:"org"`
	Ad     bool   `bson:"ad" json:"ad"`
}

// FeedImage is a cropped listing thumbnail.
type FeedImage struct {
	Src    string `bson:"src" json:"src"`
	Width  int    `bson:"width" json:"width"`
	Height int    `bson:"height" json:"height"`
}

// ContentItem is one element of an extracted article body. Tag is "p" for
// text paragraphs, "img" for images, or the name of any other preserved tag.
type ContentItem struct {
	Tag   string            `bson:"tag" json:"tag"`
	Text  string            `bson:"text,omitempty" json:"text,omitempty"`
	Src   string            `bson:"src,omitempty" json:"src,omitempty"`
	Attrs map[string]string `bson:"attrs,omitempty" json:"attrs,omitempty"`

	// Populated by the resource stage for images.
	Width  int    `bson:"width,omitempty" json:"width,omitempty"`
	Height int    `bson:"height,omitempty" json:"height,omitempty"`
	QR     bool   `bson:"qr,omitempty" json:"qr,omitempty"`
	Gray   bool   `bson:"gray,omitempty" json:"gray,omitempty"`
	MD5    string `bson:"md5,omitempty" json:"md5,omitempty"`
	Org    string `bson:"org,omitempty" json:"org,omitempty"`
	Ad     bool   `bson:"ad,omitempty" json:"ad,omitempty"`
}

// ApplyImage copies re-hosted image metadata onto an img item.
func (c *ContentItem) ApplyImage(meta ImageMeta) {
	c.Src = meta.Src
	c.Width = meta.Width
	c.Height = meta.Height
	c.QR = meta.QR
	c.Gray = meta.Gray
	c.MD5 = meta.MD5
	c.Org = meta.Org
	c.Ad = meta.Ad
}

// ListFields holds the attributes read cheaply off a listing page.
type ListFields struct {
	URL            string            `bson:"url" json:"url"`
	Title          string            `bson:"title" json:"title"`
	PublishTime    string            `bson:"publish_time" json:"publish_time"`
	PublishOriName string            `bson:"publish_ori_name" json:"publish_ori_name"`
	Abstract       string            `bson:"abstract" json:"abstract"`
	Tags           string            `bson:"tags" json:"tags"`
	HTML           string            `bson:"html,omitempty" json:"html,omitempty"`
	Thumbs         []ImageMeta       `bson:"thumbs" json:"thumbs"`
	Comment        map[string]string `bson:"comment,omitempty" json:"comment,omitempty"`
}

// ThumbURLs returns the thumbnail sources in order.
func (l ListFields) ThumbURLs() []string {
	urls := make([]string, 0, len(l.Thumbs))
	for _, thumb := range l.Thumbs {
		if thumb.Src != "" {
			urls = append(urls, thumb.Src)
		}
	}
	return urls
}

// Fields is the structured payload of a record. News and atlas records use the
// article fields; video and joke records use the media fields.
type Fields struct {
	Title          string            `bson:"title" json:"title"`
	PublishTime    string            `bson:"publish_time" json:"publish_time"`
	PublishOriName string            `bson:"publish_ori_name" json:"publish_ori_name"`
	PublishOriURL  string            `bson:"publish_ori_url" json:"publish_ori_url"`
	PublishOriIcon string            `bson:"publish_ori_icon,omitempty" json:"publish_ori_icon,omitempty"`
	Abstract       string            `bson:"abstract" json:"abstract"`
	Tags           string            `bson:"tags" json:"tags"`
	Comment        map[string]string `bson:"comment,omitempty" json:"comment,omitempty"`
	Content        []ContentItem     `bson:"content" json:"content"`

	NImages  int `bson:"n_images" json:"n_images"`
	NVideos  int `bson:"n_videos" json:"n_videos"`
	NAudios  int `bson:"n_audios" json:"n_audios"`
	NLike    int `bson:"n_like" json:"n_like"`
	NDislike int `bson:"n_dislike" json:"n_dislike"`
	NComment int `bson:"n_comment" json:"n_comment"`
	NRead    int `bson:"n_read" json:"n_read"`

	GenFeeds []FeedImage `bson:"gen_feeds" json:"gen_feeds"`
	OriFeeds []FeedImage `bson:"ori_feeds" json:"ori_feeds"`

	// Video and joke payloads.
	Text      string `bson:"text,omitempty" json:"text,omitempty"`
	Src       string `bson:"src,omitempty" json:"src,omitempty"`
	Thumbnail string `bson:"thumbnail,omitempty" json:"thumbnail,omitempty"`
	Duration  int    `bson:"duration,omitempty" json:"duration,omitempty"`
}

// Record is the unit of work flowing through the pipeline. It is created by
// the list (or video/joke) stage and mutated in place by every later stage.
type Record struct {
	ID         string     `bson:"-" json:"id"`
	Channel    string     `bson:"channel" json:"channel"`
	Config     string     `bson:"config" json:"config"`
	Site       string     `bson:"site" json:"site"`
	Form       Form       `bson:"form" json:"form"`
	Unique     string     `bson:"unique" json:"unique"`
	Procedure  Procedure  `bson:"procedure" json:"procedure"`
	Pages      []Page     `bson:"pages" json:"pages"`
	ListFields ListFields `bson:"list_fields" json:"list_fields"`
	Fields     Fields     `bson:"fields" json:"fields"`
	Error      string     `bson:"error,omitempty" json:"error,omitempty"`
	StoreID    string     `bson:"store_id,omitempty" json:"store_id,omitempty"`
	Time       time.Time  `bson:"time" json:"time"`
}

// Patch is a partial update of a record. Nil members are left untouched.
type Patch struct {
	Procedure  *Procedure
	Error      *string
	Pages      []Page
	ListFields *ListFields
	Fields     *Fields
	StoreID    *string
}

// Apply mutates r with the members set on p.
func (p Patch) Apply(r *Record) {
	if p.Procedure != nil {
		r.Procedure = *p.Procedure
	}
	if p.Error != nil {
		r.Error = *p.Error
	}
	if p.Pages != nil {
		r.Pages = append([]Page(nil), p.Pages...)
	}
	if p.ListFields != nil {
		r.ListFields = *p.ListFields
	}
	if p.Fields != nil {
		r.Fields = *p.Fields
	}
	if p.StoreID != nil {
		r.StoreID = *p.StoreID
	}
}

// SetProcedure returns a patch that only moves the procedure.
func SetProcedure(p Procedure) Patch {
	return Patch{Procedure: &p}
}

// Failure returns a patch moving the record to a failure sentinel with a message.
func Failure(p Procedure, message string) Patch {
	return Patch{Procedure: &p, Error: &message}
}

// Channel is a category or section on a site.
type Channel struct {
	ID        string `bson:"-" json:"id"`
	Site      string `bson:"site" json:"site"`
	Form      Form   `bson:"form" json:"form"`
	Category1 string `bson:"category1" json:"category1"`
	Category2 string `bson:"category2" json:"category2"`
	Priority  int    `bson:"priority" json:"priority"`
}

// RequestSpec is the fetch recipe stored on a site config.
type RequestSpec struct {
	URL           string              `bson:"url" json:"url"`
	Method        string              `bson:"method" json:"method"`
	Params        map[string][]string `bson:"params" json:"params"`
	Headers       map[string]string   `bson:"headers" json:"headers"`
	UserAgentType string              `bson:"user_agent_type" json:"user_agent_type"`
}

// SiteConfig is one concrete fetch recipe for a channel.
type SiteConfig struct {
	ID      string      `bson:"-" json:"id"`
	Channel string      `bson:"channel" json:"channel"`
	Crawler string      `bson:"crawler" json:"crawler"`
	Request RequestSpec `bson:"request" json:"request"`
}

// NewRecord builds the skeleton record shared by every record-creating stage.
func NewRecord(cfg SiteConfig, ch Channel, now time.Time) *Record {
	return &Record{
		Channel:   cfg.Channel,
		Config:    cfg.ID,
		Site:      ch.Site,
		Form:      ch.Form,
		Procedure: ProcedureNew,
		Time:      now.UTC(),
	}
}

// StoreDocument is the terminal document written to a per-form collection.
type StoreDocument struct {
	Fields    `bson:",inline"`
	Site      string `bson:"site" json:"site"`
	Channel   string `bson:"channel" json:"channel"`
	Config    string `bson:"config" json:"config"`
	Request   string `bson:"request" json:"request"`
	Category1 string `bson:"category1" json:"category1"`
	Category2 string `bson:"category2" json:"category2"`
	Priority  int    `bson:"priority" json:"priority"`
}

// FetchRequest describes an HTTP request issued by a stage. Render asks for
// a browser-rendered DOM instead of the raw response.
type FetchRequest struct {
	URL       string
	Method    string
	Headers   http.Header
	Body      []byte
	UserAgent string
	Referer   string
	Render    bool
}

// FetchResponse is the decoded result of a fetch.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Text         string
	Duration     time.Duration
	UsedHeadless bool
}
