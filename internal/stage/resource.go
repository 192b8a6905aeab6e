package stage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zhidu-qidian/Spiders/internal/spider"
)

// Resource re-hosts the listing thumbnails and the body images of an
// article. Thumbnail failures are logged and leave no thumbnails; body image
// failures mark the record with the download or upload failure code.
func (s *Stages) Resource(ctx context.Context, id string) ([]string, error) {
	r, err := s.record(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isArticle(r.Form) {
		if err := s.update(ctx, id, spider.SetProcedure(spider.ProcedureResource)); err != nil {
			return nil, err
		}
		return []string{id}, nil
	}

	referer := ""
	if strings.HasPrefix(r.Unique, "http") {
		referer = r.Unique
	}
	if urls := r.ListFields.ThumbURLs(); len(urls) > 0 {
		if err := s.rehostThumbs(ctx, id, r.ListFields, urls, referer); err != nil {
			return nil, err
		}
	}

	fields := r.Fields
	content := append([]spider.ContentItem(nil), fields.Content...)
	var (
		positions []int
		urls      []string
		nVideos   int
		nAudios   int
	)
	for i := range content {
		switch content[i].Tag {
		case "img":
			positions = append(positions, i)
			urls = append(urls, content[i].Src)
			content[i].Org = content[i].Src
			content[i].Src = ""
		case "video", "object":
			nVideos++
		case "audio":
			nAudios++
		}
	}

	procedure := spider.ProcedureResource
	var failure error
	if len(urls) > 0 {
		metas, err := s.deps.Images.FetchAndUpload(ctx, urls, referer)
		if err == nil && len(metas) != len(urls) {
			err = spider.UploadError("rehost images", fmt.Errorf("got %d results for %d images", len(metas), len(urls)))
		}
		switch {
		case err == nil:
			for j, meta := range metas {
				meta.Ad = s.isAdvertisement(ctx, meta.MD5, urls[j])
				item := &content[positions[j]]
				org := item.Org
				item.ApplyImage(meta)
				if item.Org == "" {
					item.Org = org
				}
			}
		case errors.Is(err, spider.ErrDownload):
			procedure, failure = spider.ProcedureResourceDownloadError, err
		case errors.Is(err, spider.ErrUpload):
			procedure, failure = spider.ProcedureResourceUploadError, err
		default:
			procedure, failure = spider.ProcedureResourceUploadError, spider.UploadError("rehost images", err)
		}
	}

	fields.Content = content
	fields.NImages = len(urls)
	if r.Form == spider.FormNews {
		fields.NVideos = nVideos
		fields.NAudios = nAudios
	}
	patch := spider.Patch{Procedure: &procedure, Fields: &fields}
	if failure != nil {
		msg := failure.Error()
		patch.Error = &msg
	}
	if err := s.update(ctx, id, patch); err != nil {
		return nil, err
	}
	if failure != nil {
		return nil, spider.WithProcedure(failure, procedure)
	}
	return []string{id}, nil
}

func (s *Stages) rehostThumbs(ctx context.Context, id string, list spider.ListFields, urls []string, referer string) error {
	thumbs, err := s.deps.Images.FetchAndUpload(ctx, urls, referer)
	if err != nil {
		s.logger.Error("rehost list thumbnails failed", zap.String("id", id), zap.Error(err))
		thumbs = []spider.ImageMeta{}
	}
	list.Thumbs = thumbs
	return s.update(ctx, id, spider.Patch{ListFields: &list})
}

func (s *Stages) isAdvertisement(ctx context.Context, md5, url string) bool {
	if s.deps.Ads == nil {
		return false
	}
	ad, err := s.deps.Ads.IsAdvertisement(ctx, md5, url)
	if err != nil {
		s.logger.Warn("advertisement lookup failed", zap.String("url", url), zap.Error(err))
		return false
	}
	return ad
}
