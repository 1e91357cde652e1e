package cortex

import "errors"

// Kind is the closed set of error categories callers can switch on via
// errors.Is. Soft-failure kinds (ExtractorError, GraphError) never abort
// an orchestration; they are reported in the event stream instead.
type Kind string

const (
	KindValidation         Kind = "validation_error"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindIsolationViolation Kind = "isolation_violation"
	KindEmbeddingShape     Kind = "embedding_shape"
	KindOverloaded         Kind = "overloaded"
	KindTransientStorage   Kind = "transient_storage_error"
	KindExtractor          Kind = "extractor_error"
	KindGraph              Kind = "graph_error"
	KindDependencyCycle    Kind = "dependency_cycle"
)

// Error is the engine's wrapped error type. Wrap existing errors with
// %w through NewError so errors.Is/As keep working across the storage
// boundary.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an *Error of the given kind, optionally wrapping a
// lower-level cause (typically a Storage Runtime error).
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// Is lets errors.Is(err, cortex.ErrNotFound) style sentinels work by
// comparing kinds rather than pointer identity.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// sentinel returns a zero-cause *Error usable as an errors.Is target,
// e.g. errors.Is(err, ErrNotFound).
func sentinel(kind Kind) *Error { return &Error{Kind: kind, Message: string(kind)} }

var (
	ErrValidation         = sentinel(KindValidation)
	ErrNotFound           = sentinel(KindNotFound)
	ErrConflict           = sentinel(KindConflict)
	ErrIsolationViolation = sentinel(KindIsolationViolation)
	ErrEmbeddingShape     = sentinel(KindEmbeddingShape)
	ErrOverloaded         = sentinel(KindOverloaded)
	ErrTransientStorage   = sentinel(KindTransientStorage)
	ErrExtractor          = sentinel(KindExtractor)
	ErrGraph              = sentinel(KindGraph)
	ErrDependencyCycle    = sentinel(KindDependencyCycle)
)
