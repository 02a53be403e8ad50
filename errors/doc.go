// Package errors provides structured error types for the xml-bridge library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the offending Go type, the foreign exception class and a
// cause chain. Foreign exception objects are never stored; only their class name and
// message survive the boundary.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseParse, errors.KindForeignException).
//		Foreign("ParseException").
//		Detail("element <b> closed by </a>").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidInputKind(42)
//	err := errors.Disposed("document")
//
// Sentinels (ErrInvalidInputKind, ErrForeignParse, ErrInitialization, ErrDisposed)
// match any error of the same Phase and Kind with errors.Is.
package errors
