package stage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhidu-qidian/Spiders/internal/spider"
	"github.com/zhidu-qidian/Spiders/internal/textutil"
)

// Detail extracts the article fields of a downloaded news or atlas record.
// Content of continuation pages is appended to the first page's.
func (s *Stages) Detail(ctx context.Context, id string) ([]string, error) {
	r, err := s.record(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isArticle(r.Form) {
		return nil, spider.NotSupported("run detail task not support %s", r.Form)
	}
	if len(r.Pages) == 0 {
		return nil, fmt.Errorf("record %s has no pages", id)
	}

	first := r.Pages[0]
	result, err := s.deps.Details.Parse(ctx, first.URL, first.HTML)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", first.URL, err)
	}
	if !result.Support {
		return nil, s.fail(ctx, id, spider.ProcedureDetailNotSupport,
			spider.NotSupported("detail domain not supported: %s", first.URL))
	}
	if result.Missing {
		return nil, s.fail(ctx, id, spider.ProcedureDetailMissField,
			spider.MissingField("detail missing fields: %s", first.URL))
	}

	fields := spider.Fields{
		Title:          result.Title,
		PublishTime:    textutil.FormatDateTime(result.Date, s.now()),
		PublishOriName: result.Source,
		PublishOriURL:  first.URL,
		Content:        result.Content,
	}
	if fields.PublishOriName == "" {
		fields.PublishOriName = result.Author
	}
	if result.Summary != "" {
		fields.Abstract = result.Summary
	}
	if result.Tags != "" {
		fields.Tags = result.Tags
	}
	for _, page := range r.Pages[1:] {
		more, err := s.deps.Details.Parse(ctx, page.URL, page.HTML)
		if err != nil {
			s.logger.Warn("extract continuation page failed",
				zap.String("id", id),
				zap.String("url", page.URL),
				zap.Error(err),
			)
			continue
		}
		fields.Content = append(fields.Content, more.Content...)
	}

	procedure := spider.ProcedureDetail
	if err := s.update(ctx, id, spider.Patch{Procedure: &procedure, Fields: &fields}); err != nil {
		return nil, err
	}
	return []string{id}, nil
}
