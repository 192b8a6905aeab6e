package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Failure is one failed stage dispatch as persisted in the audit table.
type Failure struct {
	// RunID identifies the scheduler process that saw the failure.
	RunID uuid.UUID
	// Stage is the handler name (detail, clean, resource, ...).
	Stage string
	// RecordID is the record (or config, for redistribute) being processed.
	RecordID string
	// Outcome is the classified failure, e.g. not_supported.
	Outcome string
	// Procedure is the failure code written to the record, 0 when none.
	Procedure int
	// Message holds the error text.
	Message    string
	OccurredAt time.Time
}

// OutcomeCount aggregates failures per stage and outcome.
type OutcomeCount struct {
	Stage    string
	Outcome  string
	Count    int64
	LastSeen time.Time
}

// FailureFilter narrows ListFailures. Zero values mean "any".
type FailureFilter struct {
	Stage  string
	RunID  *uuid.UUID
	Limit  int
	Offset int
}

// AuditRepository persists failed stage dispatches.
type AuditRepository interface {
	// RecordFailures appends failures in one round trip where possible.
	RecordFailures(ctx context.Context, failures []Failure) error
	// ListFailures returns failures newest first.
	ListFailures(ctx context.Context, filter FailureFilter) ([]Failure, error)
	// SummarizeFailures counts failures per stage and outcome since the given time.
	SummarizeFailures(ctx context.Context, since time.Time) ([]OutcomeCount, error)
}
