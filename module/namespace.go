package module

import (
	"sort"

	"github.com/wippyai/modgraph/errors"
)

// Namespace is the exports object of one module instance. It exposes exactly
// the instance's export names as read-only views onto live cells. A
// namespace is created once per instance and keeps its identity for the
// lifetime of the instance, including while the instance is still executing.
//
// Namespaces are built by the linker: Define adds names, Seal freezes the
// name set. After Seal all methods are safe for concurrent use.
type Namespace struct {
	owner     any
	cells     map[string]*Cell
	specifier string
	names     []string
	sealed    bool
	snapshot  bool
}

// NewNamespace creates an empty namespace for the instance owner.
func NewNamespace(specifier string, owner any) *Namespace {
	return &Namespace{
		specifier: specifier,
		owner:     owner,
		cells:     make(map[string]*Cell),
	}
}

// NewSnapshot creates a sealed namespace holding a frozen copy of values.
// Snapshot namespaces are not live-linked to anything.
func NewSnapshot(specifier string, owner any, values map[string]any) *Namespace {
	ns := NewNamespace(specifier, owner)
	for name, v := range values {
		ns.cells[name] = ConstCell(v)
	}
	ns.snapshot = true
	ns.Seal()
	return ns
}

// Define binds name to cell. It fails once the namespace is sealed.
func (ns *Namespace) Define(name string, cell *Cell) error {
	if ns.sealed {
		return errors.New(errors.PhaseLink, errors.KindReadOnly).
			Specifier(ns.specifier).
			Name(name).
			Detail("namespace is sealed").
			Build()
	}
	ns.cells[name] = cell
	return nil
}

// Seal freezes the set of export names.
func (ns *Namespace) Seal() {
	if ns.sealed {
		return
	}
	ns.names = make([]string, 0, len(ns.cells))
	for name := range ns.cells {
		ns.names = append(ns.names, name)
	}
	sort.Strings(ns.names)
	ns.sealed = true
}

// Sealed reports whether the name set is frozen.
func (ns *Namespace) Sealed() bool {
	return ns.sealed
}

// Snapshot reports whether the namespace is a frozen copy of a plain object.
func (ns *Namespace) Snapshot() bool {
	return ns.snapshot
}

// Owner returns the instance that owns the namespace. The engine uses it to
// brand-check namespaces passed back in as module descriptors.
func (ns *Namespace) Owner() any {
	return ns.owner
}

// Specifier returns the full specifier of the owning instance.
func (ns *Namespace) Specifier() string {
	return ns.specifier
}

// Keys returns the export names in sorted order.
func (ns *Namespace) Keys() []string {
	if !ns.sealed {
		ns.Seal()
	}
	out := make([]string, len(ns.names))
	copy(out, ns.names)
	return out
}

// Has reports whether name is exported.
func (ns *Namespace) Has(name string) bool {
	_, ok := ns.cells[name]
	return ok
}

// Cell returns the live cell behind an export.
func (ns *Namespace) Cell(name string) (*Cell, bool) {
	c, ok := ns.cells[name]
	return c, ok
}

// Get reads an export. Missing and not-yet-initialized exports are errors.
func (ns *Namespace) Get(name string) (any, error) {
	c, ok := ns.cells[name]
	if !ok {
		return nil, errors.New(errors.PhaseRuntime, errors.KindNotFound).
			Specifier(ns.specifier).
			Name(name).
			Detail("no such export").
			Build()
	}
	v, set := c.Load()
	if !set {
		return nil, errors.New(errors.PhaseRuntime, errors.KindUninitialized).
			Specifier(ns.specifier).
			Name(name).
			Detail("export accessed before initialization").
			Build()
	}
	return v, nil
}

// Lookup reads an export, reporting false when it is missing or not yet
// initialized.
func (ns *Namespace) Lookup(name string) (any, bool) {
	c, ok := ns.cells[name]
	if !ok {
		return nil, false
	}
	return c.Load()
}

// Values returns a copy of every initialized export.
func (ns *Namespace) Values() map[string]any {
	out := make(map[string]any, len(ns.cells))
	for name, c := range ns.cells {
		if v, ok := c.Load(); ok {
			out[name] = v
		}
	}
	return out
}
