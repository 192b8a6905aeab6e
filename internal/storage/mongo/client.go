// Package mongo implements the record, config, output and advertisement
// stores on MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Collection names used when Config leaves them empty.
const (
	DefaultRecords  = "v1_request"
	DefaultConfigs  = "spider_configs"
	DefaultChannels = "spider_channels"
	DefaultAds      = "spider_advertisements"
)

// Config describes the Mongo deployment. ThirdParty names the database
// holding the advertisement registry and defaults to Database.
type Config struct {
	URI        string        `mapstructure:"uri"`
	Database   string        `mapstructure:"database"`
	ThirdParty string        `mapstructure:"third_party"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Records    string        `mapstructure:"records"`
	Configs    string        `mapstructure:"configs"`
	Channels   string        `mapstructure:"channels"`
	Ads        string        `mapstructure:"ads"`
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.ThirdParty == "" {
		c.ThirdParty = c.Database
	}
	if c.Records == "" {
		c.Records = DefaultRecords
	}
	if c.Configs == "" {
		c.Configs = DefaultConfigs
	}
	if c.Channels == "" {
		c.Channels = DefaultChannels
	}
	if c.Ads == "" {
		c.Ads = DefaultAds
	}
}

// Client owns the connection and hands out the stores.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
	third  *mongo.Database
	cfg    Config
	logger *zap.Logger
}

// Open connects, pings, and ensures the unique index on records.unique.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo.uri is required")
	}
	if cfg.Database == "" {
		return nil, errors.New("mongo.database is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	c := &Client{
		client: client,
		db:     client.Database(cfg.Database),
		third:  client.Database(cfg.ThirdParty),
		cfg:    cfg,
		logger: logger,
	}
	if err := EnsureIndexes(connectCtx, c.db.Collection(cfg.Records)); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return c, nil
}

// EnsureIndexes creates the unique index on the records collection.
func EnsureIndexes(ctx context.Context, records *mongo.Collection) error {
	_, err := records.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "unique", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "procedure", Value: 1}, {Key: "time", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create record indexes: %w", err)
	}
	return nil
}

// Records returns the work record store.
func (c *Client) Records() *RecordStore {
	return NewRecordStore(c.db.Collection(c.cfg.Records))
}

// Configs returns the site config source.
func (c *Client) Configs() *ConfigSource {
	return NewConfigSource(c.db.Collection(c.cfg.Configs), c.db.Collection(c.cfg.Channels))
}

// Outputs returns the terminal document store.
func (c *Client) Outputs() *OutputStore {
	return NewOutputStore(c.db)
}

// Ads returns the advertisement registry.
func (c *Client) Ads() *AdRegistry {
	return NewAdRegistry(c.third.Collection(c.cfg.Ads))
}

// Ping checks connectivity; used by readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}
