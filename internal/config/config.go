// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/zhidu-qidian/Spiders/internal/queue/redis"
	"github.com/zhidu-qidian/Spiders/internal/storage/gcs"
	"github.com/zhidu-qidian/Spiders/internal/storage/local"
	"github.com/zhidu-qidian/Spiders/internal/storage/mongo"
)

// Backend names shared by the storage, image and publisher sections.
const (
	BackendMemory = "memory"
	BackendMongo  = "mongo"
	BackendRedis  = "redis"
	BackendPubSub = "pubsub"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Redis     redis.Config    `mapstructure:"redis"`
	Mongo     mongo.Config    `mapstructure:"mongo"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Images    ImagesConfig    `mapstructure:"images"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// StorageConfig selects where records and configs live and which broker
// carries the queues.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Broker  string `mapstructure:"broker"`
}

// PostgresConfig configures the stage failure audit table. An empty DSN
// disables the audit sink.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// HTTPConfig configures the page fetcher.
type HTTPConfig struct {
	TimeoutSeconds        int          `mapstructure:"timeout_seconds"`
	ConnectTimeoutSeconds int          `mapstructure:"connect_timeout_seconds"`
	UserAgent             string       `mapstructure:"user_agent"`
	Concurrency           int          `mapstructure:"concurrency"`
	RatePerSecond         float64      `mapstructure:"rate_per_second"`
	Burst                 int          `mapstructure:"burst"`
	DomainRates           []DomainRate `mapstructure:"domain_rates"`
}

// DomainRate overrides the request rate of one domain. Domains are kept out
// of map keys because viper splits keys on dots.
type DomainRate struct {
	Domain string  `mapstructure:"domain"`
	RPS    float64 `mapstructure:"rps"`
}

// DomainRPS returns the overrides keyed by domain.
func (h HTTPConfig) DomainRPS() map[string]float64 {
	out := make(map[string]float64, len(h.DomainRates))
	for _, r := range h.DomainRates {
		out[strings.ToLower(r.Domain)] = r.RPS
	}
	return out
}

// HeadlessConfig configures browser rendering. Crawlers lists the listing
// crawlers whose pages are always rendered.
type HeadlessConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	MaxParallel     int      `mapstructure:"max_parallel"`
	NavTimeoutSec   int      `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int      `mapstructure:"promotion_threshold"`
	WaitSelector    string   `mapstructure:"wait_selector"`
	Scrolls         int      `mapstructure:"scrolls"`
	BlockMedia      bool     `mapstructure:"block_media"`
	Crawlers        []string `mapstructure:"crawlers"`
}

// ImagesConfig configures image re-hosting.
type ImagesConfig struct {
	Backend        string       `mapstructure:"backend"`
	Prefix         string       `mapstructure:"prefix"`
	BatchSize      int          `mapstructure:"batch_size"`
	UploadAttempts int          `mapstructure:"upload_attempts"`
	Local          local.Config `mapstructure:"local"`
	GCS            gcs.Config   `mapstructure:"gcs"`
}

// PublisherConfig selects where stored-document notifications go.
type PublisherConfig struct {
	Backend   string `mapstructure:"backend"`
	Topic     string `mapstructure:"topic"`
	ProjectID string `mapstructure:"project_id"`
}

// SchedulerConfig bounds the idle sleep between empty polls.
type SchedulerConfig struct {
	MinIdleSeconds int `mapstructure:"min_idle_seconds"`
	MaxIdleSeconds int `mapstructure:"max_idle_seconds"`
}

// ProgressConfig tunes the stage event hub.
type ProgressConfig struct {
	BufferSize     int `mapstructure:"buffer_size"`
	MaxBatchEvents int `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int `mapstructure:"max_batch_wait_ms"`
}

// ExtractConfig points at the detail, feed and pagination config
// directories.
type ExtractConfig struct {
	DetailDir     string `mapstructure:"detail_dir"`
	FeedDir       string `mapstructure:"feed_dir"`
	PaginationDir string `mapstructure:"pagination_dir"`
}

// ServerConfig controls the extraction API.
type ServerConfig struct {
	Port                int    `mapstructure:"port"`
	APIKey              string `mapstructure:"api_key"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
}

// LoggingConfig toggles zap development features and the rotating file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
	Compress    bool   `mapstructure:"compress"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SPIDERS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.broker", BackendMemory)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("mongo.database", "spiders")
	v.SetDefault("mongo.timeout", "10s")
	v.SetDefault("postgres.table", "stage_failures")
	v.SetDefault("postgres.max_conns", 4)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.connect_timeout_seconds", 10)
	v.SetDefault("http.concurrency", 5)
	v.SetDefault("http.rate_per_second", 2.0)
	v.SetDefault("http.burst", 4)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 200)
	v.SetDefault("headless.block_media", true)
	v.SetDefault("images.backend", BackendMemory)
	v.SetDefault("images.prefix", "spiders")
	v.SetDefault("images.batch_size", 5)
	v.SetDefault("images.upload_attempts", 3)
	v.SetDefault("images.local.base_dir", "images")
	v.SetDefault("publisher.backend", BackendMemory)
	v.SetDefault("publisher.topic", "spiders-stored")
	v.SetDefault("scheduler.min_idle_seconds", 3)
	v.SetDefault("scheduler.max_idle_seconds", 8)
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.max_batch_events", 500)
	v.SetDefault("progress.max_batch_wait_ms", 2000)
	v.SetDefault("extract.detail_dir", "configs/detail")
	v.SetDefault("extract.feed_dir", "configs/feed")
	v.SetDefault("extract.pagination_dir", "configs/pagination")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 60)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 15)
	v.SetDefault("logging.max_age_days", 30)
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", field, strings.Join(allowed, ", "), value)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := oneOf("storage.backend", c.Storage.Backend, BackendMemory, BackendMongo); err != nil {
		return err
	}
	if err := oneOf("storage.broker", c.Storage.Broker, BackendMemory, BackendRedis); err != nil {
		return err
	}
	if err := oneOf("images.backend", c.Images.Backend, BackendMemory, BackendLocal, BackendGCS); err != nil {
		return err
	}
	if err := oneOf("publisher.backend", c.Publisher.Backend, BackendMemory, BackendRedis, BackendPubSub); err != nil {
		return err
	}
	if strings.EqualFold(c.Storage.Backend, BackendMongo) && c.Mongo.URI == "" {
		return fmt.Errorf("mongo.uri must be set when storage.backend is mongo")
	}
	if strings.EqualFold(c.Images.Backend, BackendGCS) && c.Images.GCS.Bucket == "" {
		return fmt.Errorf("images.gcs.bucket must be set when images.backend is gcs")
	}
	if strings.EqualFold(c.Publisher.Backend, BackendPubSub) && c.Publisher.ProjectID == "" {
		return fmt.Errorf("publisher.project_id must be set when publisher.backend is pubsub")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.Concurrency <= 0 {
		return fmt.Errorf("http.concurrency must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Images.BatchSize <= 0 {
		return fmt.Errorf("images.batch_size must be > 0")
	}
	if c.Scheduler.MinIdleSeconds <= 0 || c.Scheduler.MaxIdleSeconds < c.Scheduler.MinIdleSeconds {
		return fmt.Errorf("scheduler idle range must satisfy 0 < min_idle_seconds <= max_idle_seconds")
	}
	return nil
}

// FetchTimeout is the per-request fetch budget.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// IdleRange returns the scheduler idle bounds.
func (c Config) IdleRange() (time.Duration, time.Duration) {
	return time.Duration(c.Scheduler.MinIdleSeconds) * time.Second,
		time.Duration(c.Scheduler.MaxIdleSeconds) * time.Second
}

// LogFile returns the log file for a service name: logging.file when set,
// with "{name}" replaced, or "" when file logging is off.
func (c Config) LogFile(name string) string {
	if c.Logging.File == "" {
		return ""
	}
	return strings.ReplaceAll(c.Logging.File, "{name}", name)
}
