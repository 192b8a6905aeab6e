package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
storage:
  backend: mongo
  broker: redis
redis:
  addr: redis:6379
  db: 2
mongo:
  uri: mongodb://mongo:27017
  database: news
  timeout: 3s
postgres:
  dsn: postgres://audit
http:
  timeout_seconds: 45
  concurrency: 8
  domain_rates:
    - domain: sina.com.cn
      rps: 0.5
headless:
  enabled: true
  max_parallel: 2
  crawlers: ["toutiao_news", "weibo_hot"]
images:
  backend: gcs
  gcs:
    bucket: spiders-img
publisher:
  backend: pubsub
  project_id: proj
  topic: stored
scheduler:
  min_idle_seconds: 1
  max_idle_seconds: 2
server:
  port: 9090
  api_key: secret
logging:
  development: false
  file: /var/log/spiders/log-{name}.log
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.APIKey != "secret" {
		t.Fatalf("expected server overrides, got %+v", cfg.Server)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 2 {
		t.Fatalf("expected redis overrides, got %+v", cfg.Redis)
	}
	if cfg.Mongo.Timeout != 3*time.Second || cfg.Mongo.Database != "news" {
		t.Fatalf("expected mongo overrides, got %+v", cfg.Mongo)
	}
	if got := cfg.HTTP.DomainRPS()["sina.com.cn"]; got != 0.5 {
		t.Fatalf("expected domain rate 0.5, got %v", got)
	}
	if len(cfg.Headless.Crawlers) != 2 || cfg.Headless.Crawlers[1] != "weibo_hot" {
		t.Fatalf("expected headless crawlers, got %v", cfg.Headless.Crawlers)
	}
	if cfg.Images.GCS.Bucket != "spiders-img" || cfg.Images.BatchSize != 5 {
		t.Fatalf("expected images config, got %+v", cfg.Images)
	}
	if got := cfg.FetchTimeout(); got != 45*time.Second {
		t.Fatalf("expected fetch timeout 45s, got %v", got)
	}
	lo, hi := cfg.IdleRange()
	if lo != time.Second || hi != 2*time.Second {
		t.Fatalf("expected idle 1s-2s, got %v-%v", lo, hi)
	}
	if got := cfg.LogFile("short"); got != "/var/log/spiders/log-short.log" {
		t.Fatalf("unexpected log file %q", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Backend != BackendMemory || cfg.Publisher.Topic != "spiders-stored" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if lo, hi := cfg.IdleRange(); lo != 3*time.Second || hi != 8*time.Second {
		t.Fatalf("expected idle 3s-8s, got %v-%v", lo, hi)
	}
	if cfg.Logging.MaxBackups != 15 || cfg.LogFile("long") != "" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"storage backend", func(c *Config) { c.Storage.Backend = "sqlite" }, "storage.backend"},
		{"mongo uri", func(c *Config) { c.Storage.Backend = BackendMongo }, "mongo.uri"},
		{"gcs bucket", func(c *Config) { c.Images.Backend = BackendGCS }, "images.gcs.bucket"},
		{"pubsub project", func(c *Config) { c.Publisher.Backend = BackendPubSub }, "publisher.project_id"},
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"idle", func(c *Config) { c.Scheduler.MaxIdleSeconds = 1 }, "idle"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tc.want)
			}
		})
	}
}
