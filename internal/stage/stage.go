// Package stage implements the pipeline stage handlers. Each handler takes
// the id popped from its queue and returns the ids to push to the next one.
// Failures come back as *spider.StageError values; when a failure code
// applies it is written to the record before the handler returns.
package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zhidu-qidian/Spiders/internal/extract"
	"github.com/zhidu-qidian/Spiders/internal/feed"
	"github.com/zhidu-qidian/Spiders/internal/pagination"
	"github.com/zhidu-qidian/Spiders/internal/spider"
)

// DefaultNotifyTopic is where stored documents are announced.
const DefaultNotifyTopic = "spiders-stored"

// DefaultConcurrency bounds continuation page downloads.
const DefaultConcurrency = 5

// Deps are the collaborators shared by the handlers. Records and Configs
// are required; the rest are only needed by the stages that use them.
type Deps struct {
	Records   spider.RecordStore
	Configs   spider.ConfigSource
	Outputs   spider.OutputStore
	Ads       spider.AdRegistry
	Broker    spider.Broker
	Fetcher   spider.Fetcher
	Images    spider.ImageService
	Publisher spider.Publisher
	Feeds     *feed.Engine
	Details   *extract.Engine
	Pages     *pagination.Judge
	Media     *MediaRegistry
	Clock     spider.Clock
}

// Stages holds every handler of the pipeline.
type Stages struct {
	deps        Deps
	comments    CommentLinker
	topic       string
	render      map[string]bool
	concurrency int
	logger      *zap.Logger
}

// Option customises Stages.
type Option func(*Stages)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Stages) { s.logger = l }
}

// WithNotifyTopic sets the topic stored documents are published to.
func WithNotifyTopic(topic string) Option {
	return func(s *Stages) { s.topic = topic }
}

// WithRenderCrawlers makes the list stage render these crawlers' pages in a
// browser.
func WithRenderCrawlers(crawlers ...string) Option {
	return func(s *Stages) {
		for _, c := range crawlers {
			s.render[c] = true
		}
	}
}

// WithCommentLinker replaces the built-in comment descriptors.
func WithCommentLinker(c CommentLinker) Option {
	return func(s *Stages) { s.comments = c }
}

// WithConcurrency bounds parallel continuation downloads.
func WithConcurrency(n int) Option {
	return func(s *Stages) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New validates deps and builds the handlers.
func New(deps Deps, opts ...Option) (*Stages, error) {
	if deps.Records == nil {
		return nil, errors.New("stage: record store is required")
	}
	if deps.Configs == nil {
		return nil, errors.New("stage: config source is required")
	}
	if deps.Media == nil {
		deps.Media = NewMediaRegistry()
	}
	s := &Stages{
		deps:        deps,
		comments:    SiteComments{},
		topic:       DefaultNotifyTopic,
		render:      map[string]bool{},
		concurrency: DefaultConcurrency,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Stages) now() time.Time {
	if s.deps.Clock != nil {
		return s.deps.Clock.Now()
	}
	return time.Now()
}

func (s *Stages) record(ctx context.Context, id string) (*spider.Record, error) {
	r, err := s.deps.Records.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load record %s: %w", id, err)
	}
	return r, nil
}

func (s *Stages) update(ctx context.Context, id string, patch spider.Patch) error {
	if err := s.deps.Records.Update(ctx, id, patch); err != nil {
		return fmt.Errorf("update record %s: %w", id, err)
	}
	return nil
}

// fail writes p onto the record and returns err tagged with it.
func (s *Stages) fail(ctx context.Context, id string, p spider.Procedure, err error) error {
	tagged := spider.WithProcedure(err, p)
	if uerr := s.update(ctx, id, spider.Failure(p, err.Error())); uerr != nil {
		return errors.Join(tagged, uerr)
	}
	return tagged
}

func (s *Stages) configAndChannel(ctx context.Context, id string) (spider.SiteConfig, spider.Channel, error) {
	cfg, err := s.deps.Configs.Config(ctx, id)
	if err != nil {
		return spider.SiteConfig{}, spider.Channel{}, fmt.Errorf("load config %s: %w", id, err)
	}
	ch, err := s.deps.Configs.Channel(ctx, cfg.Channel)
	if err != nil {
		return spider.SiteConfig{}, spider.Channel{}, fmt.Errorf("load channel %s: %w", cfg.Channel, err)
	}
	return cfg, ch, nil
}

// insert stores a new record and reports its id. Duplicates are skipped
// silently and other failures are logged.
func (s *Stages) insert(ctx context.Context, r *spider.Record) (string, bool) {
	id, err := s.deps.Records.Insert(ctx, r)
	switch {
	case errors.Is(err, spider.ErrDuplicate):
		return "", false
	case err != nil:
		s.logger.Error("insert record failed",
			zap.String("config", r.Config),
			zap.String("unique", r.Unique),
			zap.Error(err),
		)
		return "", false
	}
	return id, true
}

func isArticle(f spider.Form) bool {
	return f == spider.FormNews || f == spider.FormAtlas
}
