package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhidu-qidian/Spiders/internal/progress"
	"github.com/zhidu-qidian/Spiders/internal/store"
)

// AuditSink persists failed dispatches via a store.AuditRepository.
// Successful and empty dispatches are ignored.
type AuditSink struct {
	repo   store.AuditRepository
	logger *zap.Logger
}

// NewAuditSink constructs an AuditSink for the provided repository.
func NewAuditSink(repo store.AuditRepository, logger *zap.Logger) *AuditSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditSink{repo: repo, logger: logger}
}

// Consume forwards the failures in batch as a single write. It respects ctx
// deadlines and returns repository errors wrapped.
func (s *AuditSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	var failures []store.Failure
	for _, evt := range batch {
		if !evt.Failed() {
			continue
		}
		failures = append(failures, store.Failure{
			RunID:      evt.RunUUID(),
			Stage:      evt.Stage,
			RecordID:   evt.RecordID,
			Outcome:    string(evt.Outcome),
			Procedure:  int(evt.Procedure),
			Message:    evt.Note,
			OccurredAt: evt.TS,
		})
	}
	if len(failures) == 0 {
		return nil
	}
	if err := s.repo.RecordFailures(ctx, failures); err != nil {
		return fmt.Errorf("record %d failures: %w", len(failures), err)
	}
	s.logger.Debug("audit failures recorded", zap.Int("count", len(failures)))
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *AuditSink) Close(context.Context) error {
	return nil
}
