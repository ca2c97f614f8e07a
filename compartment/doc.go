// Package compartment loads, links and executes graphs of modules inside
// isolated compartments.
//
// A compartment maps full specifiers to module descriptors through a static
// module table and an asynchronous load hook. Loading memoizes one record per
// specifier and fans out to dependencies concurrently; linking wires every
// import to the cell that backs the corresponding export, following
// re-exports and export-all bindings; execution runs each module once,
// dependencies first.
//
// # Lifecycle
//
// Each specifier moves through the following states:
//
//	Unlinked -> Loading -> Loaded -> Linking -> Executing -> Executed
//	                 \                   \            \
//	                  +-> Errored         +-> Errored  +-> Errored
//
// Errored and Executed are final. A failed load is evicted from the record
// memo unless Options.CacheLoadFailures is set, so the next load retries it.
//
// # Concurrency
//
// Load, Import, LoadNow and ImportNow may be called from any goroutine. Two
// overlapping loads of one specifier share a single descriptor lookup. Each
// top-level import links the unlinked part of its graph atomically and
// executes it; an import that reaches modules linked by an earlier import
// waits for that import to finish them. Dynamic imports made while a module
// executes continue the import that is executing it.
//
// # Descriptors
//
//	RecordDescriptor     compiled static record
//	SourceDescriptor     virtual module source
//	TextDescriptor       source text for Options.Compiler
//	AliasDescriptor      same source as a specifier in another compartment
//	InstanceDescriptor   same instance as a specifier in another compartment
//	NamespaceDescriptor  instance owning a namespace
//	ObjectDescriptor     frozen snapshot of a map
//
// A record, source or text descriptor whose Specifier differs from the
// requested key redirects the key: both specifiers share one instance.
package compartment
