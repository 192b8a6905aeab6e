package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zhidu-qidian/Spiders/internal/spider"
)

// Outcome classifies one stage dispatch.
type Outcome string

// Dispatch outcomes. Everything but OK and Empty is a failure.
const (
	OutcomeOK           Outcome = "ok"
	OutcomeEmpty        Outcome = "empty"
	OutcomeNotSupported Outcome = "not_supported"
	OutcomeMissingField Outcome = "missing_field"
	OutcomeInvalid      Outcome = "invalid"
	OutcomeDownload     Outcome = "download_error"
	OutcomeUpload       Outcome = "upload_error"
	OutcomeStore        Outcome = "store_error"
	OutcomeError        Outcome = "error"
)

var knownOutcomes = map[Outcome]bool{
	OutcomeOK:           true,
	OutcomeEmpty:        true,
	OutcomeNotSupported: true,
	OutcomeMissingField: true,
	OutcomeInvalid:      true,
	OutcomeDownload:     true,
	OutcomeUpload:       true,
	OutcomeStore:        true,
	OutcomeError:        true,
}

// Event records one handler invocation for one record id.
type Event struct {
	// RunID identifies the scheduler process that dispatched the record.
	RunID [16]byte
	// TS is when the handler returned.
	TS time.Time
	// Stage is the handler name (list, download, detail, ...).
	Stage string
	// RecordID is the popped id: a config id for redistribute, a record id
	// everywhere else.
	RecordID string
	Outcome  Outcome
	// Procedure is the failure code written to the record, when any.
	Procedure spider.Procedure
	// Returned counts the ids pushed to the next queues.
	Returned int
	Dur      time.Duration
	// Note carries the error text for failures.
	Note string
}

// Failed reports whether the dispatch ended in an error.
func (e Event) Failed() bool {
	return e.Outcome != OutcomeOK && e.Outcome != OutcomeEmpty
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Stage == "" {
		return errors.New("stage is required")
	}
	if !knownOutcomes[e.Outcome] {
		return fmt.Errorf("unknown outcome %q", e.Outcome)
	}
	if e.Returned < 0 {
		return errors.New("returned must be >= 0")
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// Classify maps a handler result onto an outcome.
func Classify(err error, returned int) Outcome {
	if err == nil {
		if returned == 0 {
			return OutcomeEmpty
		}
		return OutcomeOK
	}
	switch spider.KindOf(err) {
	case spider.KindNotSupported:
		return OutcomeNotSupported
	case spider.KindMissingField:
		return OutcomeMissingField
	case spider.KindInvalid:
		return OutcomeInvalid
	case spider.KindDownload:
		return OutcomeDownload
	case spider.KindUpload:
		return OutcomeUpload
	case spider.KindStore:
		return OutcomeStore
	default:
		return OutcomeError
	}
}

// ProcedureOf returns the failure code carried by err, if any.
func ProcedureOf(err error) spider.Procedure {
	var se *spider.StageError
	if errors.As(err, &se) {
		return se.Procedure
	}
	return 0
}
