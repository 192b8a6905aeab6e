package stage

import (
	"context"
	"fmt"

	"github.com/zhidu-qidian/Spiders/internal/images"
	"github.com/zhidu-qidian/Spiders/internal/spider"
)

// Prepare picks the feed thumbnails of an article: ori_feeds from the
// listing thumbnails as they are, gen_feeds from the scored body images.
func (s *Stages) Prepare(ctx context.Context, id string) ([]string, error) {
	r, err := s.record(ctx, id)
	if err != nil {
		return nil, err
	}
	procedure := spider.ProcedurePrepare
	patch := spider.Patch{Procedure: &procedure}

	if isArticle(r.Form) {
		ori := []spider.FeedImage{}
		if urls := r.ListFields.ThumbURLs(); len(urls) > 0 {
			if ori, err = s.deps.Images.ChooseFeeds(ctx, urls, false); err != nil {
				return nil, fmt.Errorf("choose list feeds of %s: %w", id, err)
			}
		}
		gen := []spider.FeedImage{}
		if urls := feedCandidates(r.Fields.Content); len(urls) > 0 {
			if gen, err = s.deps.Images.ChooseFeeds(ctx, urls, true); err != nil {
				return nil, fmt.Errorf("choose body feeds of %s: %w", id, err)
			}
		}
		fields := r.Fields
		fields.GenFeeds = gen
		fields.OriFeeds = ori
		patch.Fields = &fields
	}

	if err := s.update(ctx, id, patch); err != nil {
		return nil, err
	}
	return []string{id}, nil
}

// feedCandidates lists body images large enough for a feed that are not
// QR codes, grayscale or advertisements.
func feedCandidates(content []spider.ContentItem) []string {
	var urls []string
	for _, item := range content {
		if item.Tag != "img" {
			continue
		}
		w, h := images.FeedSize(item.Width, item.Height)
		if w == 0 || h == 0 || item.QR || item.Gray || item.Ad {
			continue
		}
		urls = append(urls, item.Src)
	}
	return urls
}
