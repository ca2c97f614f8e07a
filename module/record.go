package module

import (
	"context"
)

// Meta is the per-instance import.meta property bag.
type Meta map[string]any

// Clone returns a shallow copy of m.
func (m Meta) Clone() Meta {
	out := make(Meta, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ImportFunc imports a module relative to the calling module and returns its
// namespace once it has executed.
type ImportFunc func(ctx context.Context, specifier string) (*Namespace, error)

// ExecContext is handed to a module's execute step. Import is only set when
// the module declares NeedsImport; ImportMeta only when it declares
// NeedsImportMeta.
type ExecContext struct {
	Import     ImportFunc
	ImportMeta Meta
	Specifier  string
}

// ExecuteFunc runs a module's initialization against its environment. It is
// called at most once per instance. An ExecuteFunc of a module declared
// Async may block until its work settles; dependents wait for it.
type ExecuteFunc func(ctx context.Context, env *Environment, ec ExecContext) error

// VirtualSource is a non-native module implementing the bindings/execute
// protocol. Nil Bindings means no bindings; nil Execute is a no-op.
type VirtualSource struct {
	Execute         ExecuteFunc
	Bindings        []Binding
	NeedsImport     bool
	NeedsImportMeta bool
	Async           bool
}

// StaticRecord is an immutable compiled module: a bindings list plus the
// initialization behavior produced by a compiler. A record can be shared by
// any number of compartments; each gets its own instance.
type StaticRecord struct {
	execute         ExecuteFunc
	bindings        []Binding
	needsImport     bool
	needsImportMeta bool
	async           bool
}

// RecordOption configures a StaticRecord at construction.
type RecordOption func(*StaticRecord)

// WithImport marks the record as using dynamic import.
func WithImport() RecordOption {
	return func(r *StaticRecord) { r.needsImport = true }
}

// WithImportMeta marks the record as reading its meta object.
func WithImportMeta() RecordOption {
	return func(r *StaticRecord) { r.needsImportMeta = true }
}

// WithAsync marks the record's initialization as able to suspend.
func WithAsync() RecordOption {
	return func(r *StaticRecord) { r.async = true }
}

// NewStaticRecord validates bindings and freezes them into a record.
func NewStaticRecord(bindings []Binding, execute ExecuteFunc, opts ...RecordOption) (*StaticRecord, error) {
	if err := ValidateBindings(bindings); err != nil {
		return nil, err
	}
	r := &StaticRecord{
		bindings: append([]Binding(nil), bindings...),
		execute:  execute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Bindings returns a copy of the record's bindings.
func (r *StaticRecord) Bindings() []Binding {
	return append([]Binding(nil), r.bindings...)
}

// Execute returns the initialization function, possibly nil.
func (r *StaticRecord) Execute() ExecuteFunc {
	return r.execute
}

// NeedsImport reports whether execution receives a dynamic import function.
func (r *StaticRecord) NeedsImport() bool { return r.needsImport }

// NeedsImportMeta reports whether execution receives the import meta object.
func (r *StaticRecord) NeedsImportMeta() bool { return r.needsImportMeta }

// Async reports whether execution may wait, which rules out synchronous
// import of any graph containing the record.
func (r *StaticRecord) Async() bool { return r.async }
