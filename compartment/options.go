package compartment

import (
	"context"

	"github.com/wippyai/modgraph/module"
)

// ResolveHook maps an import specifier written in the module at referrer to
// a full specifier. It must be synchronous and deterministic.
type ResolveHook func(importSpecifier, referrer string) (string, error)

// LoadHook produces the descriptor for a full specifier missing from the
// static module table. Returning a nil descriptor and nil error means the
// hook does not know the specifier. The hook runs on its own goroutine and is
// never cancelled once issued. Hooks for the dependencies of one module are
// called one after another in the order the module declares them, so a hook
// must not wait for the load of a later sibling.
type LoadHook func(ctx context.Context, specifier string) (Descriptor, error)

// ImportMetaHook lets the host populate a module's meta object lazily. It is
// only called for modules that declare they read their meta object.
type ImportMetaHook func(specifier string, meta module.Meta)

// Compiler turns module source text into a static record.
type Compiler interface {
	Compile(ctx context.Context, specifier string, text []byte) (*module.StaticRecord, error)
}

// CompilerFunc adapts a function to Compiler.
type CompilerFunc func(ctx context.Context, specifier string, text []byte) (*module.StaticRecord, error)

// Compile calls f.
func (f CompilerFunc) Compile(ctx context.Context, specifier string, text []byte) (*module.StaticRecord, error) {
	return f(ctx, specifier, text)
}

// Evaluator runs inline source text in the context of a compartment.
type Evaluator interface {
	Evaluate(ctx context.Context, c *Compartment, source string) (any, error)
}

// Options configures a compartment.
type Options struct {
	// Resolve maps import specifiers to full specifiers. Defaults to
	// specifier.Resolve.
	Resolve ResolveHook

	// Modules is the static descriptor table, consulted before Load.
	Modules map[string]Descriptor

	// Load is the miss handler for specifiers absent from Modules.
	Load LoadHook

	// ImportMeta populates meta objects of modules that read them.
	ImportMeta ImportMetaHook

	// Compiler compiles TextDescriptor sources.
	Compiler Compiler

	// Evaluator backs Evaluate.
	Evaluator Evaluator

	// Parent is the default target of alias descriptors without an
	// explicit compartment.
	Parent *Compartment

	Name string

	// CacheLoadFailures keeps failed record memo entries instead of
	// evicting them, so later loads replay the failure without calling
	// hooks again.
	CacheLoadFailures bool
}

// DefaultOptions returns default compartment configuration.
func DefaultOptions() Options {
	return Options{
		Name: "compartment",
	}
}
