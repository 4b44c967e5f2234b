package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseValue     Phase = "value"     // Value access and editing
	PhaseArchive   Phase = "archive"   // Value to bytes
	PhaseUnarchive Phase = "unarchive" // bytes to Value
	PhaseTransact  Phase = "transact"  // Transact dispatch
	PhaseLink      Phase = "link"      // death notification
	PhaseSync      Phase = "sync"      // blocking primitives
	PhaseTransport Phase = "transport" // moving parcels between processes
	PhaseConfig    Phase = "config"    // configuration loading
	PhaseLoad      Phase = "load"      // component loading
	PhaseParse     Phase = "parse"     // signature parsing
	PhaseRuntime   Phase = "runtime"   // runtime operations
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch       Kind = "type_mismatch"
	KindNotFound           Kind = "not_found"
	KindOutOfRange         Kind = "out_of_range"
	KindWouldBlock         Kind = "would_block"
	KindUnreachable        Kind = "unreachable"
	KindUnsupported        Kind = "unsupported"
	KindUnknownTransaction Kind = "unknown_transaction"
	KindBadArgument        Kind = "bad_argument"
	KindTimedOut           Kind = "timed_out"
	KindInvalidData        Kind = "invalid_data"
	KindTruncated          Kind = "truncated"
	KindClosed             Kind = "closed"
	KindInvalidInput       Kind = "invalid_input"
	KindFailed             Kind = "failed"
)

// Error is the structured error type used throughout binderkit
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target without a phase
// matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// IsKind reports whether any error in err's chain is an *Error of kind.
func IsKind(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}

// KindOf returns the kind of the first *Error in err's chain, or KindFailed
// for foreign errors. A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFailed
}

// As is errors.As re-exported so callers importing this package under the
// name errors keep access to it.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, have, want string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Detail: fmt.Sprintf("have %s, want %s", have, want),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %s not found", what, name),
	}
}

// OutOfRange creates an out of range error
func OutOfRange(phase Phase, value any, target string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfRange,
		Detail: fmt.Sprintf("value %v out of range for %s", value, target),
		Value:  value,
	}
}

// IndexOutOfRange creates an out of range error for positional access
func IndexOutOfRange(phase Phase, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfRange,
		Detail: fmt.Sprintf("index %d out of range (length %d)", index, length),
		Value:  index,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Unreachable reports that the target object's process is gone or the
// handle is no longer valid.
func Unreachable(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnreachable,
		Detail: detail,
	}
}

// UnknownTransaction reports an opcode the target does not understand.
func UnknownTransaction(code fmt.Stringer) *Error {
	return &Error{
		Phase:  PhaseTransact,
		Kind:   KindUnknownTransaction,
		Detail: fmt.Sprintf("method %s not understood", code),
		Value:  code,
	}
}

// BadArgument wraps an argument decoding failure for a Transact call.
func BadArgument(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseTransact,
		Kind:   KindBadArgument,
		Detail: detail,
		Cause:  cause,
	}
}

// Truncated reports input that ended before a complete record.
func Truncated(phase Phase, need, have int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTruncated,
		Detail: fmt.Sprintf("need %d bytes, have %d", need, have),
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Closed reports use of a closed process, transport or table.
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: what + " closed",
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Load creates a component loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}
