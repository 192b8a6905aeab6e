package spider

import (
	"errors"
	"fmt"
)

// ErrorKind classifies stage failures.
type ErrorKind int

// Stage error kinds.
const (
	KindUnknown ErrorKind = iota
	KindNotSupported
	KindMissingField
	KindInvalid
	KindDownload
	KindUpload
	KindStore
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotSupported:
		return "not_supported"
	case KindMissingField:
		return "missing_field"
	case KindInvalid:
		return "invalid"
	case KindDownload:
		return "download"
	case KindUpload:
		return "upload"
	case KindStore:
		return "store"
	default:
		return "unknown"
	}
}

var (
	// ErrDuplicate is returned when an insert collides on the unique key.
	ErrDuplicate = errors.New("duplicate unique key")
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrProcedureRegression is returned when an update would move a record backwards.
	ErrProcedureRegression = errors.New("procedure regression")

	// Kind sentinels for errors.Is.
	ErrNotSupported = &StageError{Kind: KindNotSupported}
	ErrMissingField = &StageError{Kind: KindMissingField}
	ErrDownload     = &StageError{Kind: KindDownload}
	ErrUpload       = &StageError{Kind: KindUpload}
	ErrInvalid      = &StageError{Kind: KindInvalid}
	ErrStore        = &StageError{Kind: KindStore}
)

// StageError is the typed failure returned by stage handlers and collaborators.
// Procedure is the failure code recorded on the record, when one applies.
type StageError struct {
	Kind      ErrorKind
	Procedure Procedure
	Msg       string
	Err       error
}

func (e *StageError) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *StageError) Unwrap() error { return e.Err }

// Is matches any StageError of the same kind.
func (e *StageError) Is(target error) bool {
	var other *StageError
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// NotSupported builds a KindNotSupported error.
func NotSupported(format string, args ...any) error {
	return &StageError{Kind: KindNotSupported, Msg: fmt.Sprintf(format, args...)}
}

// MissingField builds a KindMissingField error.
func MissingField(format string, args ...any) error {
	return &StageError{Kind: KindMissingField, Msg: fmt.Sprintf(format, args...)}
}

// DownloadError wraps err as a KindDownload error.
func DownloadError(msg string, err error) error {
	return &StageError{Kind: KindDownload, Msg: msg, Err: err}
}

// UploadError wraps err as a KindUpload error.
func UploadError(msg string, err error) error {
	return &StageError{Kind: KindUpload, Msg: msg, Err: err}
}

// Invalid builds a KindInvalid error.
func Invalid(format string, args ...any) error {
	return &StageError{Kind: KindInvalid, Msg: fmt.Sprintf(format, args...)}
}

// StoreError wraps err as a KindStore error.
func StoreError(msg string, err error) error {
	return &StageError{Kind: KindStore, Msg: msg, Err: err}
}

// WithProcedure attaches the failure code p to err when it is a StageError.
func WithProcedure(err error, p Procedure) error {
	var se *StageError
	if errors.As(err, &se) {
		cp := *se
		cp.Procedure = p
		return &cp
	}
	return &StageError{Kind: KindUnknown, Procedure: p, Err: err}
}

// KindOf returns the kind of the first StageError in err's chain.
func KindOf(err error) ErrorKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}
