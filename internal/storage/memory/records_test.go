package memory

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhidu-qidian/Spiders/internal/spider"
)

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NewID() (string, error) {
	return "id-" + strconv.FormatInt(s.n.Add(1), 10), nil
}

func TestRecordStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRecordStore(&seqIDs{})
	rec := &spider.Record{Unique: "http://a.com/1", Procedure: spider.ProcedureList, Pages: []spider.Page{{URL: "http://a.com/1"}}}

	id, err := store.Insert(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, "id-1", id)

	_, err = store.Insert(ctx, &spider.Record{Unique: "http://a.com/1"})
	require.ErrorIs(t, err, spider.ErrDuplicate)
	require.Equal(t, 1, store.Len())

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	got.Pages[0].URL = "mutated"
	again, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "http://a.com/1", again.Pages[0].URL)

	require.NoError(t, store.Update(ctx, id, spider.SetProcedure(spider.ProcedureDownload)))
	err = store.Update(ctx, id, spider.SetProcedure(spider.ProcedureList))
	require.ErrorIs(t, err, spider.ErrProcedureRegression)

	require.NoError(t, store.Update(ctx, id, spider.Failure(spider.ProcedureDetailMissField, "content")))
	err = store.Update(ctx, id, spider.SetProcedure(spider.ProcedureClean))
	require.ErrorIs(t, err, spider.ErrProcedureRegression)

	final, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, spider.ProcedureDetailMissField, final.Procedure)
	require.Equal(t, "content", final.Error)

	_, err = store.Get(ctx, "nope")
	require.ErrorIs(t, err, spider.ErrNotFound)
	require.ErrorIs(t, store.Update(ctx, "nope", spider.Patch{}), spider.ErrNotFound)
}

func TestConfigSource(t *testing.T) {
	t.Parallel()

	src := NewConfigSource()
	src.PutConfig(spider.SiteConfig{ID: "c1", Channel: "ch1", Crawler: "html"})
	src.PutChannel(spider.Channel{ID: "ch1", Site: "s1", Form: spider.FormNews})

	cfg, err := src.Config(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, "ch1", cfg.Channel)
	ch, err := src.Channel(context.Background(), cfg.Channel)
	require.NoError(t, err)
	require.Equal(t, spider.FormNews, ch.Form)

	_, err = src.Config(context.Background(), "c2")
	require.ErrorIs(t, err, spider.ErrNotFound)
	_, err = src.Channel(context.Background(), "ch2")
	require.ErrorIs(t, err, spider.ErrNotFound)
}

func TestOutputStoreAndAds(t *testing.T) {
	t.Parallel()

	out := NewOutputStore(&seqIDs{})
	id, err := out.InsertDocument(context.Background(), "v1_news", spider.StoreDocument{Site: "s1"})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Len(t, out.Documents("v1_news"), 1)

	boom := errors.New("write concern")
	out.FailWith(boom)
	_, err = out.InsertDocument(context.Background(), "v1_news", spider.StoreDocument{})
	require.ErrorIs(t, err, boom)

	ads := NewAdRegistry()
	ads.Add("abc", "")
	ads.Add("", "http://ads.example.com/banner.jpg")
	ok, err := ads.IsAdvertisement(context.Background(), "abc", "")
	require.NoError(t, err)
	require.True(t, ok)
	ok, _ = ads.IsAdvertisement(context.Background(), "", "http://ads.example.com/banner.jpg")
	require.True(t, ok)
	ok, _ = ads.IsAdvertisement(context.Background(), "", "")
	require.False(t, ok)
}
