package progress

import "context"

// Sink persists or reports batches of stage events: the log, prometheus
// and postgres audit sinks in package sinks. Consume is called from the
// hub goroutine only, in emit order, under a SinkTimeout deadline; batch
// is shared across sinks and must be treated as read-only. Close runs once
// after the final flush.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter accepts single events. The scheduler emits one per dispatch,
// stages never emit directly.
type Emitter interface {
	Emit(evt Event)
}
