package stage

import (
	"context"

	"github.com/zhidu-qidian/Spiders/internal/spider"
	"github.com/zhidu-qidian/Spiders/internal/textutil"
)

// minParagraphRunes is the paragraph length that alone makes an article
// worth keeping.
const minParagraphRunes = 30

// Clean normalises article titles and paragraph text and drops articles too
// thin to publish. Video and joke records pass through.
func (s *Stages) Clean(ctx context.Context, id string) ([]string, error) {
	r, err := s.record(ctx, id)
	if err != nil {
		return nil, err
	}
	switch r.Form {
	case spider.FormNews, spider.FormAtlas:
	case spider.FormVideo, spider.FormJoke:
		if err := s.update(ctx, id, spider.SetProcedure(spider.ProcedureClean)); err != nil {
			return nil, err
		}
		return []string{id}, nil
	default:
		return nil, spider.NotSupported("not support clean request id: %s", id)
	}

	fields := r.Fields
	fields.Title = textutil.CleanTitle(fields.Title)
	fields.Content = cleanContent(fields.Content)
	list := r.ListFields
	if list.Title != "" {
		list.Title = textutil.CleanTitle(list.Title)
	}

	patch := spider.Patch{Fields: &fields, ListFields: &list}
	if !Valid(fields) {
		procedure := spider.ProcedureCleanInvalid
		msg := "not valid news"
		patch.Procedure, patch.Error = &procedure, &msg
		if err := s.update(ctx, id, patch); err != nil {
			return nil, err
		}
		return nil, spider.WithProcedure(spider.Invalid("not valid news: %s", id), procedure)
	}
	procedure := spider.ProcedureClean
	patch.Procedure = &procedure
	if err := s.update(ctx, id, patch); err != nil {
		return nil, err
	}
	return []string{id}, nil
}

func cleanContent(content []spider.ContentItem) []spider.ContentItem {
	out := make([]spider.ContentItem, len(content))
	for i, item := range content {
		if item.Tag == "p" {
			item.Text = textutil.Unescape(item.Text)
		}
		out[i] = item
	}
	return out
}

// Valid reports whether an article is worth keeping: its title must be
// longer than seven characters, and its body must hold more than three
// items, a paragraph longer than thirty characters, an image with a source,
// or any other kind of block.
func Valid(f spider.Fields) bool {
	if textutil.RuneLen(f.Title) <= 7 {
		return false
	}
	if len(f.Content) > 3 {
		return true
	}
	for _, item := range f.Content {
		switch item.Tag {
		case "p":
			if textutil.RuneLen(textutil.ExtractText(item.Text)) > minParagraphRunes {
				return true
			}
		case "img":
			if item.Src != "" {
				return true
			}
		default:
			return true
		}
	}
	return false
}
