package stage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zhidu-qidian/Spiders/internal/feed"
	"github.com/zhidu-qidian/Spiders/internal/fetcher"
	"github.com/zhidu-qidian/Spiders/internal/spider"
	"github.com/zhidu-qidian/Spiders/internal/textutil"
)

// List fetches the listing page of a config and creates one record per item.
// It returns the ids of the records it inserted.
func (s *Stages) List(ctx context.Context, id string) ([]string, error) {
	cfg, ch, err := s.configAndChannel(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	spec := cfg.Request
	spec.Params = listParams(cfg, ch, now)
	req, err := fetcher.NewRequest(spec)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", id, err)
	}
	req.Render = s.render[cfg.Crawler]

	resp, err := s.deps.Fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch list %s: %w", id, err)
	}
	base := resp.URL
	if base == "" {
		base = req.URL
	}
	crawler := cfg.Crawler
	if ch.Site == SiteHaowai {
		crawler = feed.HaowaiCrawler
	}
	items, err := s.deps.Feeds.Parse(ctx, crawler, resp.Text, base)
	if err != nil {
		return nil, fmt.Errorf("parse list %s: %w", id, err)
	}
	if len(items) == 0 {
		s.logger.Error("list parse error",
			zap.String("channel", cfg.Channel),
			zap.String("config", id),
		)
		return nil, nil
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		if newID, ok := s.insert(ctx, s.listRecord(cfg, ch, item, now)); ok {
			ids = append(ids, newID)
		}
	}
	s.logger.Debug("list parsed",
		zap.String("config", id),
		zap.Int("items", len(items)),
		zap.Int("inserted", len(ids)),
	)
	return ids, nil
}

func (s *Stages) listRecord(cfg spider.SiteConfig, ch spider.Channel, item feed.Item, now time.Time) *spider.Record {
	fields := spider.ListFields{
		URL:            item.URL,
		Title:          item.Title,
		PublishTime:    textutil.FormatDateTime(item.PublishTime, now),
		PublishOriName: item.PublishSite,
		Abstract:       item.Abstract,
		Tags:           item.Keywords,
		HTML:           item.HTML,
		Thumbs:         []spider.ImageMeta{},
	}
	if fields.PublishOriName == "" {
		fields.PublishOriName = item.Author
	}
	if item.Thumb != "" {
		fields.Thumbs = append(fields.Thumbs, spider.ImageMeta{Src: item.Thumb})
	}
	if item.CommentID != "" {
		fields.Comment = s.comments.Link(ch.Site, item.CommentID)
	}

	r := spider.NewRecord(cfg, ch, now)
	r.ListFields = fields
	r.Pages = []spider.Page{{URL: item.URL}}
	r.Unique = item.URL
	r.Procedure = spider.ProcedureList
	return r
}
