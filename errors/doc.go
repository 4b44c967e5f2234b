// Package errors provides structured error types for binderkit.
//
// Errors come in two tiers. Recoverable errors are *Error values categorized
// by Phase (where the error occurred) and Kind (error category) and are
// returned to the caller. Contract violations are bugs in the caller and
// panic with a *Violation through Fatalf.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseValue, errors.KindTypeMismatch).
//		Path("args", "count").
//		Detail("cannot convert string to int32").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TypeMismatch(errors.PhaseValue, "string", "int32")
//	err := errors.UnknownTransaction(code)
//
// Check a kind without caring about the phase:
//
//	if errors.IsKind(err, errors.KindUnreachable) { ... }
//
// Kinds travel between processes as a Status in reply frames; StatusOf and
// FromStatus convert in both directions.
package errors
