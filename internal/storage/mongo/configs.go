package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/zhidu-qidian/Spiders/internal/spider"
)

type configDoc struct {
	ID                primitive.ObjectID `bson:"_id"`
	spider.SiteConfig `bson:",inline"`
}

type channelDoc struct {
	ID             primitive.ObjectID `bson:"_id"`
	spider.Channel `bson:",inline"`
}

// ConfigSource reads site configs and channels.
type ConfigSource struct {
	configs  *mongo.Collection
	channels *mongo.Collection
}

var _ spider.ConfigSource = (*ConfigSource)(nil)

// NewConfigSource wraps the two collections.
func NewConfigSource(configs, channels *mongo.Collection) *ConfigSource {
	return &ConfigSource{configs: configs, channels: channels}
}

// Config loads a site config by hex id.
func (s *ConfigSource) Config(ctx context.Context, id string) (spider.SiteConfig, error) {
	oid, err := objectID(id)
	if err != nil {
		return spider.SiteConfig{}, err
	}
	var doc configDoc
	if err := s.configs.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return spider.SiteConfig{}, fmt.Errorf("config %s: %w", id, spider.ErrNotFound)
		}
		return spider.SiteConfig{}, fmt.Errorf("find config %s: %w", id, err)
	}
	cfg := doc.SiteConfig
	cfg.ID = doc.ID.Hex()
	return cfg, nil
}

// Channel loads a channel by hex id.
func (s *ConfigSource) Channel(ctx context.Context, id string) (spider.Channel, error) {
	oid, err := objectID(id)
	if err != nil {
		return spider.Channel{}, err
	}
	var doc channelDoc
	if err := s.channels.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return spider.Channel{}, fmt.Errorf("channel %s: %w", id, spider.ErrNotFound)
		}
		return spider.Channel{}, fmt.Errorf("find channel %s: %w", id, err)
	}
	ch := doc.Channel
	ch.ID = doc.ID.Hex()
	return ch, nil
}

// OutputStore inserts terminal documents into per-form collections.
type OutputStore struct {
	db *mongo.Database
}

var _ spider.OutputStore = (*OutputStore)(nil)

// NewOutputStore wraps db.
func NewOutputStore(db *mongo.Database) *OutputStore {
	return &OutputStore{db: db}
}

// InsertDocument inserts doc into collection and returns the new hex id.
func (s *OutputStore) InsertDocument(ctx context.Context, collection string, doc spider.StoreDocument) (string, error) {
	res, err := s.db.Collection(collection).InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("insert into %s: %w", collection, err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return fmt.Sprint(res.InsertedID), nil
	}
	return oid.Hex(), nil
}

// AdRegistry looks images up in the advertisement collection by url or md5.
type AdRegistry struct {
	coll *mongo.Collection
}

var _ spider.AdRegistry = (*AdRegistry)(nil)

// NewAdRegistry wraps coll.
func NewAdRegistry(coll *mongo.Collection) *AdRegistry {
	return &AdRegistry{coll: coll}
}

// IsAdvertisement reports whether any entry matches url or md5.
func (r *AdRegistry) IsAdvertisement(ctx context.Context, md5, url string) (bool, error) {
	filter := bson.M{"$or": bson.A{bson.M{"url": url}, bson.M{"md5": md5}}}
	n, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return false, fmt.Errorf("count advertisements: %w", err)
	}
	return n > 0, nil
}
