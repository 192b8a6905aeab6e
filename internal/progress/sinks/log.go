package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zhidu-qidian/Spiders/internal/progress"
)

// LogSink writes one entry per stage event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink logs through logger; nil discards.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// levelFor keeps routine dispatches at debug. Unsupported sites and forms
// are expected in normal operation and log at info; other failures warn.
func levelFor(o progress.Outcome) zapcore.Level {
	switch o {
	case progress.OutcomeOK, progress.OutcomeEmpty:
		return zapcore.DebugLevel
	case progress.OutcomeNotSupported:
		return zapcore.InfoLevel
	default:
		return zapcore.WarnLevel
	}
}

// Consume implements progress.Sink. Fields are only built for enabled
// levels.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		ce := s.logger.Check(levelFor(evt.Outcome), "stage "+evt.Stage)
		if ce == nil {
			continue
		}
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("id", evt.RecordID),
			zap.String("outcome", string(evt.Outcome)),
			zap.Int("returned", evt.Returned),
			zap.Duration("dur", evt.Dur),
		}
		if evt.Procedure != 0 {
			fields = append(fields, zap.Stringer("procedure", evt.Procedure))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		ce.Write(fields...)
	}
	return nil
}

// Close implements progress.Sink. The logger belongs to the caller.
func (s *LogSink) Close(context.Context) error {
	return nil
}
