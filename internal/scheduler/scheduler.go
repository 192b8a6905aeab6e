// Package scheduler runs the pop-dispatch loop that moves record ids from
// one shared queue to the next.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhidu-qidian/Spiders/internal/metrics"
	"github.com/zhidu-qidian/Spiders/internal/progress"
	"github.com/zhidu-qidian/Spiders/internal/queue"
	"github.com/zhidu-qidian/Spiders/internal/spider"
)

// Idle bounds used when every queue is empty.
const (
	DefaultMinIdle = 3 * time.Second
	DefaultMaxIdle = 8 * time.Second
)

// Scheduler services one queue group.
type Scheduler struct {
	name    string
	group   Group
	keys    []string
	broker  spider.Broker
	events  progress.Emitter
	runID   [16]byte
	minIdle time.Duration
	maxIdle time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEmitter sends one progress event per dispatch to e.
func WithEmitter(e progress.Emitter) Option {
	return func(s *Scheduler) { s.events = e }
}

// WithIdle sets the random sleep range used when every queue is empty.
func WithIdle(minIdle, maxIdle time.Duration) Option {
	return func(s *Scheduler) {
		if minIdle > 0 {
			s.minIdle = minIdle
		}
		if maxIdle > 0 {
			s.maxIdle = maxIdle
		}
	}
}

// WithRunID overrides the generated run id.
func WithRunID(id uuid.UUID) Option {
	return func(s *Scheduler) { s.runID = progress.UUIDToBytes(id) }
}

// WithClock sets the time source for event timestamps.
func WithClock(c spider.Clock) Option {
	return func(s *Scheduler) { s.now = c.Now }
}

// New builds a scheduler for group. name only labels logs.
func New(name string, group Group, broker spider.Broker, opts ...Option) (*Scheduler, error) {
	if broker == nil {
		return nil, errors.New("scheduler: broker is required")
	}
	if len(group) == 0 {
		return nil, errors.New("scheduler: group has no queues")
	}
	s := &Scheduler{
		name:    name,
		group:   group,
		broker:  broker,
		runID:   progress.UUIDToBytes(uuid.New()),
		minIdle: DefaultMinIdle,
		maxIdle: DefaultMaxIdle,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for key, route := range group {
		if route.Handler == nil {
			return nil, fmt.Errorf("scheduler: queue %s has no handler", key)
		}
		s.keys = append(s.keys, key)
	}
	slices.Sort(s.keys)
	for _, opt := range opts {
		opt(s)
	}
	if s.maxIdle < s.minIdle {
		s.maxIdle = s.minIdle
	}
	return s, nil
}

// Run pops and dispatches until ctx is cancelled. Cancellation is observed
// between dispatches only; a running handler always finishes.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		zap.String("group", s.name),
		zap.Strings("queues", s.keys),
		zap.String("run_id", uuid.UUID(s.runID).String()),
	)
	defer s.logger.Info("scheduler stopped", zap.String("group", s.name))
	for {
		dispatched, err := s.Step(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			s.logger.Error("queue pop failed", zap.String("group", s.name), zap.Error(err))
		}
		if !dispatched {
			s.idle(ctx)
		}
	}
}

// Step tries the group's queues in random order and dispatches the first id
// it pops. It reports whether a handler ran.
func (s *Scheduler) Step(ctx context.Context) (bool, error) {
	keys := slices.Clone(s.keys)
	rand.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		id, ok, err := s.broker.Pop(ctx, key)
		if err != nil {
			return false, fmt.Errorf("pop %s: %w", key, err)
		}
		metrics.ObserveQueuePop(queue.Stage(key), ok)
		if !ok {
			continue
		}
		s.dispatch(ctx, key, id)
		return true, nil
	}
	return false, nil
}

func (s *Scheduler) dispatch(ctx context.Context, key, id string) {
	route := s.group[key]
	stage := queue.Stage(key)
	// Handlers outlive the signal context so a record is never left half
	// written.
	run := context.WithoutCancel(ctx)

	metrics.IncActiveHandlers()
	start := s.now()
	ids, err := call(run, route.Handler, id)
	dur := s.now().Sub(start)
	metrics.DecActiveHandlers()

	ids = slices.DeleteFunc(ids, func(v string) bool { return v == "" })
	pushed := 0
	switch {
	case err != nil:
		s.report(stage, id, err)
	case route.Next != "" && len(ids) > 0:
		if addErr := s.broker.Add(run, route.Next, ids...); addErr != nil {
			s.logger.Error("push results failed",
				zap.String("stage", stage),
				zap.String("id", id),
				zap.String("next", route.Next),
				zap.Strings("ids", ids),
				zap.Error(addErr),
			)
			err = addErr
		} else {
			pushed = len(ids)
		}
	}
	s.emit(stage, id, ids, pushed, dur, err)
}

func call(ctx context.Context, h Handler, id string) (ids []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			ids, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, id)
}

func (s *Scheduler) report(stage, id string, err error) {
	switch spider.KindOf(err) {
	case spider.KindNotSupported:
		s.logger.Error("stage not supported", zap.String("stage", stage), zap.String("id", id), zap.Error(err))
	case spider.KindMissingField, spider.KindInvalid:
		s.logger.Warn("stage rejected record", zap.String("stage", stage), zap.String("id", id), zap.Error(err))
	default:
		s.logger.Error("stage failed",
			zap.String("group", s.name),
			zap.String("stage", stage),
			zap.String("id", id),
			zap.Stringer("kind", spider.KindOf(err)),
			zap.Stringer("procedure", progress.ProcedureOf(err)),
			zap.Error(err),
		)
	}
}

func (s *Scheduler) emit(stage, id string, ids []string, pushed int, dur time.Duration, err error) {
	if s.events == nil {
		return
	}
	evt := progress.Event{
		RunID:     s.runID,
		TS:        s.now(),
		Stage:     stage,
		RecordID:  id,
		Outcome:   progress.Classify(err, len(ids)),
		Procedure: progress.ProcedureOf(err),
		Returned:  pushed,
		Dur:       max(dur, 0),
	}
	if err != nil {
		evt.Note = err.Error()
	}
	s.events.Emit(evt)
}

func (s *Scheduler) idle(ctx context.Context) {
	d := s.minIdle
	if span := s.maxIdle - s.minIdle; span > 0 {
		d += rand.N(span + 1)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
