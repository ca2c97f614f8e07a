package compartment

import (
	"sort"

	"github.com/wippyai/modgraph/module"
)

// unit is the linkable form shared by static records, virtual sources and
// object snapshots. A unit is immutable once built and may back instances in
// several compartments.
type unit struct {
	execute         module.ExecuteFunc
	snapshot        map[string]any
	bindings        []module.Binding
	deps            []string
	needsImport     bool
	needsImportMeta bool
	async           bool
}

func unitFromRecord(r *module.StaticRecord) *unit {
	b := r.Bindings()
	return &unit{
		execute:         r.Execute(),
		bindings:        b,
		deps:            module.Dependencies(b),
		needsImport:     r.NeedsImport(),
		needsImportMeta: r.NeedsImportMeta(),
		async:           r.Async(),
	}
}

func unitFromSource(s *module.VirtualSource) (*unit, error) {
	if err := module.ValidateBindings(s.Bindings); err != nil {
		return nil, err
	}
	b := make([]module.Binding, len(s.Bindings))
	copy(b, s.Bindings)
	return &unit{
		execute:         s.Execute,
		bindings:        b,
		deps:            module.Dependencies(b),
		needsImport:     s.NeedsImport,
		needsImportMeta: s.NeedsImportMeta,
		async:           s.Async,
	}, nil
}

// unitFromObject freezes obj into a snapshot unit whose exports are the
// object's keys at the time of the call.
func unitFromObject(obj map[string]any) *unit {
	values := make(map[string]any, len(obj))
	names := make([]string, 0, len(obj))
	for k, v := range obj {
		values[k] = v
		names = append(names, k)
	}
	sort.Strings(names)

	bindings := make([]module.Binding, len(names))
	for i, n := range names {
		bindings[i] = module.Export(n)
	}
	return &unit{
		snapshot: values,
		bindings: bindings,
	}
}
