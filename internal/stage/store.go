package stage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhidu-qidian/Spiders/internal/spider"
)

// Collections maps forms to their output collections.
var Collections = map[spider.Form]string{
	spider.FormNews:    "v1_news",
	spider.FormVideo:   "v1_video",
	spider.FormJoke:    "v1_joke",
	spider.FormAtlas:   "v1_atlas",
	spider.FormPicture: "v1_picture",
}

// Notification announces a stored document downstream.
type Notification struct {
	Collection string `json:"col"`
	ID         string `json:"_id"`
}

// Store writes the finished record to its form's collection and announces
// it. The record keeps the id of the stored document.
func (s *Stages) Store(ctx context.Context, id string) ([]string, error) {
	r, err := s.record(ctx, id)
	if err != nil {
		return nil, err
	}
	collection, ok := Collections[r.Form]
	if !ok {
		return nil, spider.NotSupported("not support store form %s", r.Form)
	}
	ch, err := s.deps.Configs.Channel(ctx, r.Channel)
	if err != nil {
		return nil, fmt.Errorf("load channel %s: %w", r.Channel, err)
	}

	fields := mergeListFields(r.Fields, r.ListFields)
	// Dislike counts are stored unsigned.
	if fields.NDislike < 0 {
		fields.NDislike = -fields.NDislike
	}
	doc := spider.StoreDocument{
		Fields:    fields,
		Site:      ch.Site,
		Channel:   r.Channel,
		Config:    r.Config,
		Request:   id,
		Category1: ch.Category1,
		Category2: ch.Category2,
		Priority:  ch.Priority,
	}

	storeID, err := s.deps.Outputs.InsertDocument(ctx, collection, doc)
	if err != nil {
		return nil, s.fail(ctx, id, spider.ProcedureStoreError, spider.StoreError("store "+collection, err))
	}
	procedure := spider.ProcedureStore
	if err := s.update(ctx, id, spider.Patch{Procedure: &procedure, StoreID: &storeID}); err != nil {
		return nil, err
	}
	s.logger.Info("stored record",
		zap.String("id", id),
		zap.String("form", string(r.Form)),
		zap.String("store_id", storeID),
	)
	s.notify(ctx, collection, storeID)
	return nil, nil
}

func (s *Stages) notify(ctx context.Context, collection, storeID string) {
	if s.deps.Publisher == nil {
		return
	}
	msg := Notification{Collection: collection, ID: storeID}
	if _, err := s.deps.Publisher.Publish(ctx, s.topic, msg); err != nil {
		s.logger.Warn("notify stored document failed",
			zap.String("collection", collection),
			zap.String("store_id", storeID),
			zap.Error(err),
		)
	}
}

// mergeListFields prefers non-empty listing values over the extracted ones,
// except for the title.
func mergeListFields(f spider.Fields, l spider.ListFields) spider.Fields {
	if l.PublishTime != "" {
		f.PublishTime = l.PublishTime
	}
	if l.PublishOriName != "" {
		f.PublishOriName = l.PublishOriName
	}
	if l.Abstract != "" {
		f.Abstract = l.Abstract
	}
	if l.Tags != "" {
		f.Tags = l.Tags
	}
	if len(l.Comment) > 0 {
		f.Comment = l.Comment
	}
	return f
}
