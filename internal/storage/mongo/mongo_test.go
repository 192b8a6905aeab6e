package mongo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/zhidu-qidian/Spiders/internal/spider"
)

func TestRecordStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("insert", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		id, err := NewRecordStore(mt.Coll).Insert(context.Background(), &spider.Record{Unique: "http://a.com/1"})
		require.NoError(mt, err)
		_, err = primitive.ObjectIDFromHex(id)
		require.NoError(mt, err)
	})

	mt.Run("insert duplicate", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error",
		}))
		_, err := NewRecordStore(mt.Coll).Insert(context.Background(), &spider.Record{Unique: "http://a.com/1"})
		require.ErrorIs(mt, err, spider.ErrDuplicate)
	})

	mt.Run("get", func(mt *mtest.T) {
		oid := primitive.NewObjectID()
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: oid},
			{Key: "unique", Value: "http://a.com/1"},
			{Key: "form", Value: "news"},
			{Key: "procedure", Value: 20000},
			{Key: "pages", Value: bson.A{bson.D{{Key: "url", Value: "http://a.com/1"}, {Key: "html", Value: "<p>x</p>"}}}},
		}))
		rec, err := NewRecordStore(mt.Coll).Get(context.Background(), oid.Hex())
		require.NoError(mt, err)
		require.Equal(mt, oid.Hex(), rec.ID)
		require.Equal(mt, spider.FormNews, rec.Form)
		require.Equal(mt, spider.ProcedureDetail, rec.Procedure)
		require.Len(mt, rec.Pages, 1)
	})

	mt.Run("get missing", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))
		_, err := NewRecordStore(mt.Coll).Get(context.Background(), primitive.NewObjectID().Hex())
		require.ErrorIs(mt, err, spider.ErrNotFound)

		_, err = NewRecordStore(mt.Coll).Get(context.Background(), "not-hex")
		require.ErrorIs(mt, err, spider.ErrNotFound)
	})

	mt.Run("update advances", func(mt *mtest.T) {
		oid := primitive.NewObjectID()
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "_id", Value: oid}, {Key: "procedure", Value: 10000}}),
			bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 1}, {Key: "nModified", Value: 1}},
		)
		err := NewRecordStore(mt.Coll).Update(context.Background(), oid.Hex(), spider.SetProcedure(spider.ProcedureDetail))
		require.NoError(mt, err)
	})

	mt.Run("update regression", func(mt *mtest.T) {
		oid := primitive.NewObjectID()
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "_id", Value: oid}, {Key: "procedure", Value: 31000}}),
		)
		err := NewRecordStore(mt.Coll).Update(context.Background(), oid.Hex(), spider.SetProcedure(spider.ProcedureResource))
		require.ErrorIs(mt, err, spider.ErrProcedureRegression)
	})

	mt.Run("update without procedure", func(mt *mtest.T) {
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 1}, {Key: "nModified", Value: 1}})
		storeID := "5912c3a1e1382306c8d9a1b2"
		err := NewRecordStore(mt.Coll).Update(context.Background(), primitive.NewObjectID().Hex(), spider.Patch{StoreID: &storeID})
		require.NoError(mt, err)
	})
}

func TestConfigSourceAndOutputs(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("config and channel", func(mt *mtest.T) {
		cfgID := primitive.NewObjectID()
		chID := primitive.NewObjectID()
		configs := mt.DB.Collection(DefaultConfigs)
		channels := mt.DB.Collection(DefaultChannels)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, mt.DB.Name()+"."+DefaultConfigs, mtest.FirstBatch, bson.D{
				{Key: "_id", Value: cfgID},
				{Key: "channel", Value: chID.Hex()},
				{Key: "crawler", Value: "html"},
				{Key: "request", Value: bson.D{{Key: "url", Value: "http://a.com/list"}, {Key: "method", Value: "GET"}}},
			}),
			mtest.CreateCursorResponse(0, mt.DB.Name()+"."+DefaultChannels, mtest.FirstBatch, bson.D{
				{Key: "_id", Value: chID},
				{Key: "site", Value: "s1"},
				{Key: "form", Value: "atlas"},
				{Key: "category1", Value: "news"},
				{Key: "priority", Value: 3},
			}),
		)
		src := NewConfigSource(configs, channels)
		cfg, err := src.Config(context.Background(), cfgID.Hex())
		require.NoError(mt, err)
		require.Equal(mt, cfgID.Hex(), cfg.ID)
		require.Equal(mt, "http://a.com/list", cfg.Request.URL)

		ch, err := src.Channel(context.Background(), cfg.Channel)
		require.NoError(mt, err)
		require.Equal(mt, spider.FormAtlas, ch.Form)
		require.Equal(mt, 3, ch.Priority)
	})

	mt.Run("output insert", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		id, err := NewOutputStore(mt.DB).InsertDocument(context.Background(), "v1_news", spider.StoreDocument{Site: "s1"})
		require.NoError(mt, err)
		require.Len(mt, id, 24)
	})

	mt.Run("ads", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: int32(1)}}))
		ok, err := NewAdRegistry(mt.Coll).IsAdvertisement(context.Background(), "abc", "http://ads/1.jpg")
		require.NoError(mt, err)
		require.True(mt, ok)
	})
}
