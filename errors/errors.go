package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the bridge the error occurred
type Phase string

const (
	PhaseBootstrap Phase = "bootstrap" // foreign runtime start and thread attach
	PhaseMarshal   Phase = "marshal"   // host input to foreign buffer
	PhaseParse     Phase = "parse"     // foreign document builder
	PhasePin       Phase = "pin"       // lifetime anchoring
	PhaseAccess    Phase = "access"    // handle accessors
	PhaseRuntime   Phase = "runtime"   // foreign heap and collector
)

// Kind categorizes the error
type Kind string

const (
	KindInitialization   Kind = "initialization"
	KindInvalidInput     Kind = "invalid_input"
	KindForeignException Kind = "foreign_exception"
	KindDisposed         Kind = "disposed"
	KindAlreadyPinned    Kind = "already_pinned"
	KindNotPinned        Kind = "not_pinned"
	KindAllocation       Kind = "allocation"
	KindOutOfBounds      Kind = "out_of_bounds"
	KindNotFound         Kind = "not_found"
	KindTooLarge         Kind = "too_large"
	KindIO               Kind = "io"
)

// Sentinels for errors.Is. Matching uses Phase and Kind only.
var (
	ErrInitialization   = &Error{Phase: PhaseBootstrap, Kind: KindInitialization}
	ErrInvalidInputKind = &Error{Phase: PhaseMarshal, Kind: KindInvalidInput}
	ErrForeignParse     = &Error{Phase: PhaseParse, Kind: KindForeignException}
	ErrDisposed         = &Error{Phase: PhaseAccess, Kind: KindDisposed}
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	GoType  string
	Foreign string // class name of the foreign exception, if any
	Detail  string
	Path    []string
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

	if e.GoType != "" || e.Foreign != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.Foreign != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", foreign ")
			b.WriteString(e.Foreign)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString(e.Foreign)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.Foreign != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
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

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
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

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// Foreign sets the foreign exception class name
func (b *Builder) Foreign(class string) *Builder {
	b.err.Foreign = class
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

// Initialization creates a fatal bootstrap error
func Initialization(detail string, cause error) *Error {
	return New(PhaseBootstrap, KindInitialization).Detail("%s", detail).Cause(cause).Build()
}

// InvalidInputKind reports a parse input that is neither bytes nor readable
func InvalidInputKind(v any) *Error {
	return New(PhaseMarshal, KindInvalidInput).
		GoType(fmt.Sprintf("%T", v)).
		Value(v).
		Detail("input must be a byte sequence or an io.Reader").
		Build()
}

// TooLarge reports input exceeding the configured materialization limit
func TooLarge(phase Phase, size, limit int64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTooLarge,
		Detail: fmt.Sprintf("input exceeds %d bytes (read %d)", limit, size),
		Value:  size,
	}
}

// ReadFailed reports a host reader that failed while being drained
func ReadFailed(phase Phase, cause error) *Error {
	return New(phase, KindIO).Detail("reading input").Cause(cause).Build()
}

// ForeignException wraps a foreign exception class and message.
// The foreign object itself is never retained.
func ForeignException(phase Phase, class, message string) *Error {
	return New(phase, KindForeignException).Foreign(class).Detail("%s", message).Build()
}

// Disposed reports use of a released handle
func Disposed(what string) *Error {
	return &Error{
		Phase:  PhaseAccess,
		Kind:   KindDisposed,
		Detail: fmt.Sprintf("%s already closed", what),
	}
}

// AlreadyPinned reports a second anchor for the same identity
func AlreadyPinned(id any) *Error {
	return &Error{
		Phase:  PhasePin,
		Kind:   KindAlreadyPinned,
		Detail: fmt.Sprintf("object %v is already pinned", id),
		Value:  id,
	}
}

// NotPinned reports an unpin of an unknown entry
func NotPinned(id any) *Error {
	return &Error{
		Phase:  PhasePin,
		Kind:   KindNotPinned,
		Detail: fmt.Sprintf("object %v is not pinned", id),
		Value:  id,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, offset, length uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("access [%d, %d) out of bounds", offset, uint64(offset)+uint64(length)),
		Value:  offset,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what string, id any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %v not found", what, id),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return New(phase, kind).Detail("%s", detail).Cause(cause).Build()
}

// KindOf returns the Kind of err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return "", false
		}
		err = u.Unwrap()
	}
	return "", false
}
