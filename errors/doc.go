// Package errors provides structured error types for the module engine.
//
// Errors are categorized by Phase (which pipeline stage failed) and Kind
// (error category). Each phase corresponds to one member of the error
// taxonomy: resolution, load, compile, link, execution and synchronous
// suspension. The Error type carries the offending specifier, its referrer,
// the binding name, and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLink, errors.KindMissingExport).
//		Specifier("file:///lib.js").
//		Referrer("file:///main.js").
//		Name("helper").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.MissingExport(dep, referrer, "helper")
//	err := errors.Suspension(spec, "load hook has not settled")
//
// Phase sentinels match any error of that phase:
//
//	if errors.Is(err, errors.ErrLink) { ... }
package errors
