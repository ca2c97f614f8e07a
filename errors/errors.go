package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	goerrors "github.com/go-errors/errors"
)

// Phase indicates which stage of the module pipeline failed.
type Phase string

const (
	PhaseResolve Phase = "resolve" // specifier resolution
	PhaseLoad    Phase = "load"    // descriptor lookup and load hooks
	PhaseCompile Phase = "compile" // source to record
	PhaseLink    Phase = "link"    // namespace construction and wiring
	PhaseExecute Phase = "execute" // module initialization
	PhaseSuspend Phase = "suspend" // synchronous entry point would block
	PhaseRuntime Phase = "runtime" // everything else
)

// Kind categorizes the error
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindInvalidResult     Kind = "invalid_result"
	KindInvalidDescriptor Kind = "invalid_descriptor"
	KindInvalidBinding    Kind = "invalid_binding"
	KindInvalidInput      Kind = "invalid_input"
	KindHookFailed        Kind = "hook_failed"
	KindMissingExport     Kind = "missing_export"
	KindAmbiguousExport   Kind = "ambiguous_export"
	KindAliasCycle        Kind = "alias_cycle"
	KindUninitialized     Kind = "uninitialized"
	KindReadOnly          Kind = "read_only"
	KindPanic             Kind = "panic"
	KindFailed            Kind = "failed"
	KindDependency        Kind = "dependency"
	KindPending           Kind = "pending"
	KindUnsupported       Kind = "unsupported"
)

// Sentinels for errors.Is matching on phase alone.
var (
	ErrResolution = &Error{Phase: PhaseResolve}
	ErrLoad       = &Error{Phase: PhaseLoad}
	ErrCompile    = &Error{Phase: PhaseCompile}
	ErrLink       = &Error{Phase: PhaseLink}
	ErrExecution  = &Error{Phase: PhaseExecute}
	ErrSuspension = &Error{Phase: PhaseSuspend}
)

// Error is the structured error type used throughout the module engine
type Error struct {
	Value     any
	Cause     error
	Phase     Phase
	Kind      Kind
	Specifier string
	Referrer  string
	Name      string
	Detail    string
	Stack     string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Specifier != "" {
		b.WriteString(" ")
		b.WriteString(e.Specifier)
	}

	if e.Referrer != "" {
		b.WriteString(" (from ")
		b.WriteString(e.Referrer)
		b.WriteByte(')')
	}

	if e.Name != "" {
		fmt.Fprintf(&b, " binding %q", e.Name)
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

// Is reports whether target matches this error.
// A target without a Kind matches every error of the same phase.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Phase != t.Phase {
		return false
	}
	return t.Kind == "" || e.Kind == t.Kind
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

// Specifier sets the module specifier the error is about
func (b *Builder) Specifier(s string) *Builder {
	b.err.Specifier = s
	return b
}

// Referrer sets the referring module
func (b *Builder) Referrer(s string) *Builder {
	b.err.Referrer = s
	return b
}

// Name sets the binding name
func (b *Builder) Name(n string) *Builder {
	b.err.Name = n
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

// PhaseOf returns the phase of the outermost *Error in err's chain, or "".
func PhaseOf(err error) Phase {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Phase
	}
	return ""
}

// As is errors.As re-exported so callers need a single import.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Is is errors.Is re-exported so callers need a single import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// Convenience constructors for the taxonomy

// Resolution creates a resolution error
func Resolution(specifier, referrer string, cause error) *Error {
	return &Error{
		Phase:     PhaseResolve,
		Kind:      KindHookFailed,
		Specifier: specifier,
		Referrer:  referrer,
		Cause:     cause,
	}
}

// NotFound creates a load error for a specifier nothing could provide
func NotFound(specifier string) *Error {
	return &Error{
		Phase:     PhaseLoad,
		Kind:      KindNotFound,
		Specifier: specifier,
		Detail:    "no module descriptor",
	}
}

// Load creates a module loading error
func Load(specifier, detail string, cause error) *Error {
	return &Error{
		Phase:     PhaseLoad,
		Kind:      KindHookFailed,
		Specifier: specifier,
		Detail:    detail,
		Cause:     cause,
	}
}

// InvalidDescriptor creates a load error for an unrecognized descriptor shape
func InvalidDescriptor(specifier string, desc any) *Error {
	return &Error{
		Phase:     PhaseLoad,
		Kind:      KindInvalidDescriptor,
		Specifier: specifier,
		Detail:    fmt.Sprintf("unrecognized descriptor %T", desc),
		Value:     desc,
	}
}

// Compile creates a compile error for malformed source
func Compile(specifier, detail string, cause error) *Error {
	return &Error{
		Phase:     PhaseCompile,
		Kind:      KindInvalidInput,
		Specifier: specifier,
		Detail:    detail,
		Cause:     cause,
	}
}

// InvalidBinding creates a compile error for a malformed binding
func InvalidBinding(detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindInvalidBinding,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// MissingExport creates a link error for an import naming no export
func MissingExport(specifier, referrer, name string) *Error {
	return &Error{
		Phase:     PhaseLink,
		Kind:      KindMissingExport,
		Specifier: specifier,
		Referrer:  referrer,
		Name:      name,
		Detail:    "no such export",
	}
}

// AliasCycle creates a link error for an alias chain that cannot terminate
func AliasCycle(specifier string) *Error {
	return &Error{
		Phase:     PhaseLink,
		Kind:      KindAliasCycle,
		Specifier: specifier,
		Detail:    "alias chain does not terminate",
	}
}

// Execution wraps a fault raised by a module's execute step
func Execution(specifier string, cause error) *Error {
	return &Error{
		Phase:     PhaseExecute,
		Kind:      KindFailed,
		Specifier: specifier,
		Cause:     cause,
	}
}

// Suspension creates a synchronous suspension error
func Suspension(specifier, detail string) *Error {
	return &Error{
		Phase:     PhaseSuspend,
		Kind:      KindPending,
		Specifier: specifier,
		Detail:    detail,
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

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// FromPanic converts a recovered panic value into an error carrying the
// goroutine stack at the point of the panic.
func FromPanic(phase Phase, specifier string, recovered any) *Error {
	wrapped := goerrors.Wrap(recovered, 2)
	var cause error = wrapped
	if err, ok := recovered.(error); ok {
		cause = err
	}
	return &Error{
		Phase:     phase,
		Kind:      KindPanic,
		Specifier: specifier,
		Detail:    fmt.Sprintf("panic: %v", recovered),
		Cause:     cause,
		Value:     recovered,
		Stack:     string(wrapped.Stack()),
	}
}
