package module

import (
	"sort"

	"github.com/wippyai/modgraph/errors"
)

// Environment maps every name bound in a module, local or imported, to its
// live cell. Local names are writable by the module's own execution; import
// names are read-only views onto a dependency's cells.
//
// The name set is fixed during linking. After that Get and Set are safe for
// concurrent use.
type Environment struct {
	cells     map[string]*Cell
	imports   map[string]struct{}
	specifier string
}

// NewEnvironment creates an empty environment for the module at specifier.
func NewEnvironment(specifier string) *Environment {
	return &Environment{
		specifier: specifier,
		cells:     make(map[string]*Cell),
		imports:   make(map[string]struct{}),
	}
}

// Specifier returns the full specifier of the owning module.
func (e *Environment) Specifier() string {
	return e.specifier
}

// Declare returns the local cell for name, creating it on first use.
func (e *Environment) Declare(name string) *Cell {
	if c, ok := e.cells[name]; ok {
		return c
	}
	c := NewCell()
	e.cells[name] = c
	return c
}

// BindImport makes name a read-only alias of cell.
func (e *Environment) BindImport(name string, cell *Cell) {
	e.cells[name] = cell
	e.imports[name] = struct{}{}
}

// Cell returns the cell bound to name.
func (e *Environment) Cell(name string) (*Cell, bool) {
	c, ok := e.cells[name]
	return c, ok
}

// IsImport reports whether name is an import binding.
func (e *Environment) IsImport(name string) bool {
	_, ok := e.imports[name]
	return ok
}

// Has reports whether name is bound.
func (e *Environment) Has(name string) bool {
	_, ok := e.cells[name]
	return ok
}

// Names returns all bound names, sorted.
func (e *Environment) Names() []string {
	names := make([]string, 0, len(e.cells))
	for name := range e.cells {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get reads name. Reading a binding that has not been assigned yet is an
// error, as is reading an unbound name.
func (e *Environment) Get(name string) (any, error) {
	c, ok := e.cells[name]
	if !ok {
		return nil, errors.New(errors.PhaseRuntime, errors.KindNotFound).
			Specifier(e.specifier).
			Name(name).
			Detail("name is not bound in module environment").
			Build()
	}
	v, set := c.Load()
	if !set {
		return nil, errors.New(errors.PhaseRuntime, errors.KindUninitialized).
			Specifier(e.specifier).
			Name(name).
			Detail("binding accessed before initialization").
			Build()
	}
	return v, nil
}

// Set assigns a local binding.
func (e *Environment) Set(name string, v any) error {
	c, ok := e.cells[name]
	if !ok {
		return errors.New(errors.PhaseRuntime, errors.KindNotFound).
			Specifier(e.specifier).
			Name(name).
			Detail("name is not bound in module environment").
			Build()
	}
	if e.IsImport(name) {
		return errors.New(errors.PhaseRuntime, errors.KindReadOnly).
			Specifier(e.specifier).
			Name(name).
			Detail("cannot assign to import binding").
			Build()
	}
	c.Store(v)
	return nil
}

// MustSet is Set for callers that know name is a local binding.
func (e *Environment) MustSet(name string, v any) {
	if err := e.Set(name, v); err != nil {
		panic(err)
	}
}
