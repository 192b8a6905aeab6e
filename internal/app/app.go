// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/zhidu-qidian/Spiders/internal/api"
	"github.com/zhidu-qidian/Spiders/internal/clock/system"
	"github.com/zhidu-qidian/Spiders/internal/config"
	"github.com/zhidu-qidian/Spiders/internal/extract"
	"github.com/zhidu-qidian/Spiders/internal/feed"
	"github.com/zhidu-qidian/Spiders/internal/fetcher"
	collyfetcher "github.com/zhidu-qidian/Spiders/internal/fetcher/colly"
	headlessfetcher "github.com/zhidu-qidian/Spiders/internal/fetcher/headless"
	"github.com/zhidu-qidian/Spiders/internal/headless/detector"
	idgen "github.com/zhidu-qidian/Spiders/internal/id/uuid"
	"github.com/zhidu-qidian/Spiders/internal/images"
	"github.com/zhidu-qidian/Spiders/internal/metrics"
	"github.com/zhidu-qidian/Spiders/internal/pagination"
	"github.com/zhidu-qidian/Spiders/internal/policy/ratelimit"
	"github.com/zhidu-qidian/Spiders/internal/progress"
	"github.com/zhidu-qidian/Spiders/internal/progress/sinks"
	pubmemory "github.com/zhidu-qidian/Spiders/internal/publisher/memory"
	pubsubpublisher "github.com/zhidu-qidian/Spiders/internal/publisher/pubsub"
	redispublisher "github.com/zhidu-qidian/Spiders/internal/publisher/redis"
	queuememory "github.com/zhidu-qidian/Spiders/internal/queue/memory"
	redisqueue "github.com/zhidu-qidian/Spiders/internal/queue/redis"
	"github.com/zhidu-qidian/Spiders/internal/scheduler"
	"github.com/zhidu-qidian/Spiders/internal/spider"
	"github.com/zhidu-qidian/Spiders/internal/stage"
	"github.com/zhidu-qidian/Spiders/internal/storage"
	"github.com/zhidu-qidian/Spiders/internal/storage/memory"
	"github.com/zhidu-qidian/Spiders/internal/storage/mongo"
	"github.com/zhidu-qidian/Spiders/internal/storage/postgres"
	"github.com/zhidu-qidian/Spiders/internal/store"
)

const closeTimeout = 15 * time.Second

// App holds all the shared, long-lived services for the application.
// It is initialized once at startup; commands take what they need from it
// and call Close on the way out.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	runID  uuid.UUID

	broker    spider.Broker
	fetcher   spider.Fetcher
	publisher spider.Publisher
	stages    *stage.Stages
	details   *extract.Engine
	feeds     *feed.Engine
	pages     *pagination.Judge
	hub       *progress.Hub
	audit     store.AuditRepository
	ready     map[string]api.Pinger

	closers []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// Option customises New.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	broker     spider.Broker
	fetcher    spider.Fetcher
	publisher  spider.Publisher
}

// WithRegisterer registers the stage metrics on reg instead of the default
// registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithBroker replaces the configured queue broker.
func WithBroker(b spider.Broker) Option {
	return func(o *options) { o.broker = b }
}

// WithFetcher replaces the fetch stack built from the http and headless
// sections.
func WithFetcher(f spider.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithPublisher replaces the configured notification publisher.
func WithPublisher(p spider.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// New creates and initializes the services described by cfg. It fails fast
// when a configured backend cannot be reached; anything opened before the
// failure is closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}
	metrics.Init()

	ids := idgen.New()
	runID, err := ids.NewRunID()
	if err != nil {
		return nil, err
	}
	a := &App{
		cfg:    cfg,
		logger: logger.With(zap.String("run_id", runID.String())),
		runID:  runID,
		ready:  map[string]api.Pinger{},
	}
	defer func() {
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
			defer cancel()
			if cerr := a.Close(closeCtx); cerr != nil {
				a.logger.Warn("cleanup after failed init", zap.Error(cerr))
			}
		}
	}()
	a.logger.Info("initializing application services",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("broker", cfg.Storage.Broker),
		zap.String("images", cfg.Images.Backend),
		zap.String("publisher", cfg.Publisher.Backend),
	)
	clock := system.New()

	deps, err := a.openRecords(ctx, ids)
	if err != nil {
		return nil, err
	}
	deps.Clock = clock

	redisClient, err := a.openBroker(ctx, o.broker)
	if err != nil {
		return nil, err
	}
	deps.Broker = a.broker

	a.fetcher = o.fetcher
	if a.fetcher == nil {
		a.fetcher = a.buildFetcher()
	}
	deps.Fetcher = a.fetcher

	blobs, err := storage.Open(ctx, storage.Config{
		Backend: cfg.Images.Backend,
		Local:   cfg.Images.Local,
		GCS:     cfg.Images.GCS,
	}, nil, a.logger.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("open image storage: %w", err)
	}
	a.onClose("blobs", func(context.Context) error { return blobs.Close() })
	deps.Images = images.NewService(a.fetcher, blobs,
		images.WithRetryPolicy(spider.NewExponentialRetryPolicy(cfg.Images.UploadAttempts)),
		images.WithBatchSize(cfg.Images.BatchSize),
		images.WithPrefix(cfg.Images.Prefix),
		images.WithClock(clock),
		images.WithLogger(a.logger.Named("images")),
	)

	a.publisher = o.publisher
	if a.publisher == nil {
		if a.publisher, err = a.openPublisher(ctx, redisClient); err != nil {
			return nil, err
		}
	}
	deps.Publisher = a.publisher

	if err := a.loadEngines(clock); err != nil {
		return nil, err
	}
	deps.Details = a.details
	deps.Feeds = a.feeds
	deps.Pages = a.pages
	deps.Media = stage.NewMediaRegistry()
	stage.RegisterFeedParsers(deps.Media, spider.FormVideo, stage.VideoCrawlers, a.feeds, a.fetcher)
	stage.RegisterFeedParsers(deps.Media, spider.FormJoke, stage.JokeCrawlers, a.feeds, a.fetcher)

	a.stages, err = stage.New(deps,
		stage.WithLogger(a.logger.Named("stage")),
		stage.WithNotifyTopic(cfg.Publisher.Topic),
		stage.WithRenderCrawlers(cfg.Headless.Crawlers...),
		stage.WithConcurrency(cfg.HTTP.Concurrency),
	)
	if err != nil {
		return nil, fmt.Errorf("build stages: %w", err)
	}

	if err := a.startProgress(ctx, o.registerer); err != nil {
		return nil, err
	}
	a.logger.Info("application services initialized")
	return a, nil
}

func (a *App) openRecords(ctx context.Context, ids spider.IDGenerator) (stage.Deps, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendMongo:
		client, err := mongo.Open(ctx, a.cfg.Mongo, a.logger.Named("mongo"))
		if err != nil {
			return stage.Deps{}, fmt.Errorf("open mongo: %w", err)
		}
		a.onClose("mongo", client.Close)
		a.ready["mongo"] = client
		return stage.Deps{
			Records: client.Records(),
			Configs: client.Configs(),
			Outputs: client.Outputs(),
			Ads:     client.Ads(),
		}, nil
	default:
		a.logger.Warn("using in-memory record store; records are lost on exit")
		return stage.Deps{
			Records: memory.NewRecordStore(ids),
			Configs: memory.NewConfigSource(),
			Outputs: memory.NewOutputStore(ids),
			Ads:     memory.NewAdRegistry(),
		}, nil
	}
}

// openBroker returns the redis client when the broker is redis-backed so the
// publisher can share it.
func (a *App) openBroker(ctx context.Context, override spider.Broker) (redisqueue.Cmdable, error) {
	if override != nil {
		a.broker = override
		return nil, nil
	}
	switch a.cfg.Storage.Broker {
	case config.BackendRedis:
		client, err := redisqueue.NewClient(ctx, a.cfg.Redis)
		if err != nil {
			return nil, err
		}
		broker := redisqueue.New(client)
		a.onClose("redis", func(context.Context) error { return broker.Close() })
		a.ready["redis"] = broker
		a.broker = broker
		return client, nil
	default:
		broker := queuememory.NewBroker()
		a.onClose("queue", func(context.Context) error { return broker.Close() })
		a.broker = broker
		return nil, nil
	}
}

func (a *App) buildFetcher() spider.Fetcher {
	cfg := a.cfg
	plain := collyfetcher.New(collyfetcher.Config{
		UserAgent:      cfg.HTTP.UserAgent,
		ConnectTimeout: time.Duration(cfg.HTTP.ConnectTimeoutSeconds) * time.Second,
		Timeout:        cfg.FetchTimeout(),
	})
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.HTTP.RatePerSecond,
		DefaultBurst: cfg.HTTP.Burst,
		DomainRPS:    cfg.HTTP.DomainRPS(),
	})
	routerOpts := []fetcher.RouterOption{
		fetcher.WithLimiter(limiter),
		fetcher.WithLogger(a.logger.Named("fetcher")),
	}
	if cfg.Headless.Enabled {
		browser, err := headlessfetcher.New(headlessfetcher.Config{
			Slots:         cfg.Headless.MaxParallel,
			UserAgent:     cfg.HTTP.UserAgent,
			Timeout:       time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			ReadySelector: cfg.Headless.WaitSelector,
			Scrolls:       cfg.Headless.Scrolls,
			BlockMedia:    cfg.Headless.BlockMedia,
		})
		if err != nil {
			a.logger.Warn("headless fetcher init failed; rendering disabled", zap.Error(err))
		} else {
			a.onClose("headless", func(context.Context) error {
				browser.Close()
				return nil
			})
			routerOpts = append(routerOpts,
				fetcher.WithHeadless(browser),
				fetcher.WithPromoter(detector.NewHeuristic(cfg.Headless.PromotionThresh)),
			)
		}
	}
	return fetcher.NewRouter(plain, routerOpts...)
}

func (a *App) openPublisher(ctx context.Context, redisClient redisqueue.Cmdable) (spider.Publisher, error) {
	switch a.cfg.Publisher.Backend {
	case config.BackendPubSub:
		p, err := pubsubpublisher.Open(ctx, a.cfg.Publisher.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("open pubsub publisher: %w", err)
		}
		a.onClose("pubsub", func(context.Context) error { return p.Close() })
		return p, nil
	case config.BackendRedis:
		client, ok := redisClient.(redispublisher.Client)
		if !ok {
			c, err := redisqueue.NewClient(ctx, a.cfg.Redis)
			if err != nil {
				return nil, fmt.Errorf("open redis publisher: %w", err)
			}
			a.onClose("redis-publisher", func(context.Context) error { return c.Close() })
			client = c
		}
		return redispublisher.New(client), nil
	default:
		return pubmemory.New(), nil
	}
}

func (a *App) loadEngines(clock spider.Clock) error {
	detailStore, err := extract.NewConfigStore(a.cfg.Extract.DetailDir)
	if err != nil {
		return fmt.Errorf("load detail configs: %w", err)
	}
	feedStore, err := feed.NewStore(a.cfg.Extract.FeedDir)
	if err != nil {
		return fmt.Errorf("load feed configs: %w", err)
	}
	pageStore, err := pagination.NewStore(a.cfg.Extract.PaginationDir)
	if err != nil {
		return fmt.Errorf("load pagination configs: %w", err)
	}
	a.details = extract.NewEngine(detailStore, nil,
		extract.WithFetcher(a.fetcher),
		extract.WithClock(clock),
		extract.WithLogger(a.logger.Named("extract")),
	)
	a.feeds = feed.NewEngine(feedStore,
		feed.WithSpecial(feed.HaowaiCrawler, feed.Haowai{Fetcher: a.fetcher, Now: clock.Now}),
		feed.WithClock(clock),
		feed.WithLogger(a.logger.Named("feed")),
	)
	a.pages = pagination.NewJudge(pageStore)
	return nil
}

func (a *App) startProgress(ctx context.Context, reg prometheus.Registerer) error {
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("register stage metrics: %w", err)
	}
	all := []progress.Sink{sinks.NewLogSink(a.logger.Named("progress")), promSink}

	if a.cfg.Postgres.DSN != "" {
		auditStore, err := postgres.NewAuditStore(ctx, postgres.AuditStoreConfig{
			DSN:      a.cfg.Postgres.DSN,
			Table:    a.cfg.Postgres.Table,
			MaxConns: a.cfg.Postgres.MaxConns,
			MinConns: a.cfg.Postgres.MinConns,
		})
		if err != nil {
			return fmt.Errorf("open audit store: %w", err)
		}
		a.onClose("postgres", func(context.Context) error {
			auditStore.Close()
			return nil
		})
		if err := auditStore.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure audit schema: %w", err)
		}
		a.audit = auditStore
		a.ready["postgres"] = auditStore
		all = append(all, sinks.NewAuditSink(auditStore, a.logger.Named("audit")))
	}

	a.hub = progress.NewHub(progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   time.Duration(a.cfg.Progress.MaxBatchWaitMs) * time.Millisecond,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         a.logger.Named("hub"),
	}, all...)
	// Registered last so it closes first and the sinks are flushed while
	// their backends are still open.
	a.onClose("progress", a.hub.Close)
	return nil
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config { return a.cfg }

// RunID identifies this process in stage events.
func (a *App) RunID() uuid.UUID { return a.runID }

// Broker returns the queue broker.
func (a *App) Broker() spider.Broker { return a.broker }

// Stages returns the pipeline handlers.
func (a *App) Stages() *stage.Stages { return a.stages }

// Details returns the detail extraction engine.
func (a *App) Details() *extract.Engine { return a.details }

// Feeds returns the listing parser.
func (a *App) Feeds() *feed.Engine { return a.feeds }

// Events returns the stage event emitter.
func (a *App) Events() progress.Emitter { return a.hub }

// Scheduler builds the scheduler for a queue group (long, middle or short).
func (a *App) Scheduler(name string) (*scheduler.Scheduler, error) {
	group, err := scheduler.GroupFor(name, a.stages)
	if err != nil {
		return nil, err
	}
	minIdle, maxIdle := a.cfg.IdleRange()
	s, err := scheduler.New(name, group, a.broker,
		scheduler.WithLogger(a.logger.Named("scheduler")),
		scheduler.WithEmitter(a.hub),
		scheduler.WithRunID(a.runID),
		scheduler.WithIdle(minIdle, maxIdle),
	)
	if err != nil {
		return nil, fmt.Errorf("build %s scheduler: %w", name, err)
	}
	return s, nil
}

// APIServer builds the HTTP handlers over the engines and audit store.
func (a *App) APIServer() *api.Server {
	return api.NewServer(api.Deps{
		Extractor: a.details,
		Lister:    a.feeds,
		Reloaders: map[string]api.Reloader{
			"detail":     a.details.Configs(),
			"feed":       a.feeds.Configs(),
			"pagination": a.pages.Configs(),
		},
		Ready:  a.ready,
		Audit:  a.audit,
		Logger: a.logger.Named("api"),
	}, api.Options{APIKey: a.cfg.Server.APIKey})
}

// HTTPServer wraps APIServer in an http.Server listening on server.port.
func (a *App) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.APIServer().Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(a.cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(a.cfg.Server.WriteTimeoutSeconds) * time.Second,
	}
}

// Close shuts the services down in reverse order of creation and flushes the
// logger. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("error closing service", zap.String("service", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	// Sync fails on stdout/stderr on some platforms; nothing useful to do then.
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
