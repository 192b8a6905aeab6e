package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Hub defaults.
const (
	DefaultBufferSize     = 4096
	DefaultMaxBatchEvents = 500
	DefaultMaxBatchWait   = 2 * time.Second
	DefaultSinkTimeout    = 10 * time.Second
	DefaultFailureWait    = 50 * time.Millisecond
)

// Config tunes a Hub. Zero values take the defaults. FailureWait is how
// long Emit may wait for buffer space before dropping a failed dispatch;
// other events are dropped at once. BaseContext parents every sink call.
type Config struct {
	BufferSize     int
	MaxBatchEvents int
	MaxBatchWait   time.Duration
	SinkTimeout    time.Duration
	FailureWait    time.Duration
	BaseContext    context.Context
	Logger         *zap.Logger
}

func (c *Config) applyDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.MaxBatchEvents <= 0 {
		c.MaxBatchEvents = DefaultMaxBatchEvents
	}
	if c.MaxBatchWait <= 0 {
		c.MaxBatchWait = DefaultMaxBatchWait
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = DefaultSinkTimeout
	}
	if c.FailureWait <= 0 {
		c.FailureWait = DefaultFailureWait
	}
	if c.BaseContext == nil {
		c.BaseContext = context.Background()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Hub collects stage events from every scheduler goroutine, batches them by
// size and age, and hands each batch to the sinks in order.
type Hub struct {
	cfg   Config
	sinks []Sink
	queue chan Event
	quit  chan struct{}
	done  chan struct{}

	closing  atomic.Bool
	dropped  atomic.Int64
	pending  atomic.Int64
	dropLog  rate.Sometimes
	stopOnce sync.Once
	stopCtx  context.Context
}

// NewHub starts the batching goroutine. Nil sinks are ignored.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	cfg.applyDefaults()
	h := &Hub{
		cfg:     cfg,
		queue:   make(chan Event, cfg.BufferSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		dropLog: rate.Sometimes{Interval: 5 * time.Second},
	}
	for _, s := range sinks {
		if s != nil {
			h.sinks = append(h.sinks, s)
		}
	}
	go h.loop()
	return h
}

// Emit queues evt for the sinks. Invalid events and events emitted after
// Close are discarded.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closing.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.cfg.Logger.Debug("discarding invalid stage event",
			zap.String("stage", evt.Stage),
			zap.String("record_id", evt.RecordID),
			zap.Error(err),
		)
		return
	}
	select {
	case h.queue <- evt:
		return
	default:
	}
	if evt.Failed() {
		t := time.NewTimer(h.cfg.FailureWait)
		defer t.Stop()
		select {
		case h.queue <- evt:
			return
		case <-t.C:
		}
	}
	h.drop()
}

// Dropped returns how many events were lost to a full buffer.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

func (h *Hub) drop() {
	h.dropped.Add(1)
	h.pending.Add(1)
	h.dropLog.Do(func() {
		h.cfg.Logger.Warn("stage event buffer full, events dropped",
			zap.Int64("dropped", h.pending.Swap(0)),
			zap.Int64("total_dropped", h.dropped.Load()),
		)
	})
}

// Close stops intake, flushes what is buffered, closes the sinks and waits
// for all of it or for ctx. Calling it again only waits.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.stopOnce.Do(func() {
		h.closing.Store(true)
		h.stopCtx = ctx
		close(h.quit)
	})
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close stage event hub: %w", ctx.Err())
	}
}

func (h *Hub) loop() {
	defer close(h.done)
	ticker := time.NewTicker(h.cfg.MaxBatchWait)
	defer ticker.Stop()

	batch := make([]Event, 0, h.cfg.MaxBatchEvents)
	add := func(evt Event) {
		batch = append(batch, evt)
		if len(batch) >= h.cfg.MaxBatchEvents {
			h.deliver(batch)
			batch = batch[:0]
		}
	}
	for {
		select {
		case evt := <-h.queue:
			add(evt)
		case <-ticker.C:
			if len(batch) > 0 {
				h.deliver(batch)
				batch = batch[:0]
			}
		case <-h.quit:
			for len(h.queue) > 0 {
				add(<-h.queue)
			}
			if len(batch) > 0 {
				h.deliver(batch)
			}
			h.closeSinks()
			return
		}
	}
}

// deliver passes a copy of batch to every sink, each under its own
// timeout. A failing sink does not stop the others.
func (h *Hub) deliver(batch []Event) {
	events := append([]Event(nil), batch...)
	for _, s := range h.sinks {
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := s.Consume(ctx, events); err != nil {
			h.cfg.Logger.Warn("stage event sink failed",
				zap.String("sink", fmt.Sprintf("%T", s)),
				zap.Int("events", len(events)),
				zap.Error(err),
			)
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	for _, s := range h.sinks {
		if err := s.Close(h.stopCtx); err != nil {
			h.cfg.Logger.Warn("stage event sink close failed",
				zap.String("sink", fmt.Sprintf("%T", s)),
				zap.Error(err),
			)
		}
	}
}
