package compartment

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/modgraph/errors"
	"github.com/wippyai/modgraph/module"
)

// linkMu serializes link passes across all compartments. Claiming a set of
// instances for a session is atomic with respect to every other session.
var linkMu sync.Mutex

// link claims every unlinked instance reachable from root for sess, builds
// their environments and namespaces, and wires imports to exports. With
// syncOnly set, it fails before claiming anything if the closure contains
// an async module or an instance claimed by another session.
func link(root *instance, sess *session, syncOnly bool) error {
	linkMu.Lock()
	defer linkMu.Unlock()

	if syncOnly {
		if err := checkSync(root, sess); err != nil {
			return err
		}
	}

	var claimed []*instance
	if err := claim(root, sess, &claimed); err != nil {
		release(claimed)
		return err
	}
	if len(claimed) == 0 {
		return nil
	}

	for _, inst := range claimed {
		inst.build()
	}

	var failed []*instance
	var first error
	for _, inst := range claimed {
		if err := inst.wire(); err != nil {
			inst.err = err
			failed = append(failed, inst)
			if first == nil {
				first = err
			}
		}
	}

	if first == nil {
		Logger().Debug("linked",
			zap.String("compartment", root.c.id),
			zap.String("specifier", root.spec),
			zap.Int("instances", len(claimed)))
		return nil
	}

	for _, inst := range failed {
		inst.linkErr = inst.err
		inst.mu.Lock()
		inst.state = StateErrored
		inst.session = nil
		close(inst.done)
		inst.mu.Unlock()
	}
	var rest []*instance
	for _, inst := range claimed {
		if inst.currentState() == StateLinking {
			rest = append(rest, inst)
		}
	}
	release(rest)
	return first
}

// claim marks the unlinked closure of inst as owned by sess. Instances that
// are already linked are not traversed.
func claim(inst *instance, sess *session, claimed *[]*instance) error {
	inst.mu.Lock()
	if inst.state != StateLoaded {
		inst.mu.Unlock()
		return nil
	}
	inst.state = StateLinking
	inst.session = sess
	inst.done = make(chan struct{})
	inst.mu.Unlock()
	*claimed = append(*claimed, inst)
	sess.track(inst)

	inst.linked = make(map[string]*instance, len(inst.unit.deps))
	inst.order = inst.order[:0]
	for _, d := range inst.unit.deps {
		dep, err := inst.dependency(d)
		if err != nil {
			return err
		}
		inst.linked[d] = dep
		inst.order = append(inst.order, dep)
		if err := claim(dep, sess, claimed); err != nil {
			return err
		}
	}
	return nil
}

// release returns claimed instances to the loaded state, discarding their
// unobserved environments and namespaces.
func release(insts []*instance) {
	for _, inst := range insts {
		inst.mu.Lock()
		inst.state = StateLoaded
		inst.session = nil
		inst.done = nil
		inst.env = nil
		inst.ns = nil
		inst.linked = nil
		inst.order = nil
		inst.nested = nil
		inst.mu.Unlock()
	}
}

// checkSync reports a suspension error if executing root's closure
// synchronously could block.
func checkSync(root *instance, sess *session) error {
	seen := make(map[*instance]struct{})
	var visit func(inst *instance) error
	visit = func(inst *instance) error {
		if _, ok := seen[inst]; ok {
			return nil
		}
		seen[inst] = struct{}{}

		inst.mu.Lock()
		state, owner := inst.state, inst.session
		inst.mu.Unlock()

		switch state {
		case StateExecuted, StateErrored:
			return nil
		case StateLinking, StateExecuting:
			if owner != sess {
				return errors.Suspension(inst.spec, "module is being executed by another import")
			}
		}
		if inst.unit.async {
			return errors.Suspension(inst.spec, "module executes asynchronously")
		}

		deps := inst.order
		if state == StateLoaded {
			deps = deps[:0:0]
			for _, d := range inst.unit.deps {
				dep, err := inst.dependency(d)
				if err != nil {
					return err
				}
				deps = append(deps, dep)
			}
		}
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}
	return visit(root)
}

// build creates the environment and namespace. Local export cells are
// declared up front so that cyclic importers can bind to them.
func (inst *instance) build() {
	if inst.unit.snapshot != nil {
		inst.env = module.NewEnvironment(inst.spec)
		inst.ns = module.NewSnapshot(inst.spec, inst, inst.unit.snapshot)
		return
	}
	inst.env = module.NewEnvironment(inst.spec)
	inst.ns = module.NewNamespace(inst.spec, inst)
	for _, b := range inst.unit.bindings {
		if b.Kind() == module.BindingExport {
			inst.env.Declare(b.Export)
		}
	}
}

// wire binds imports into the environment and defines every exported name
// in the namespace, then seals it.
func (inst *instance) wire() error {
	if inst.ns.Sealed() {
		return nil
	}
	defer inst.ns.Seal()

	var first error
	record := func(err error) {
		if first == nil {
			first = err
		}
	}

	for _, b := range inst.unit.bindings {
		switch b.Kind() {
		case module.BindingImport:
			dep := inst.linked[b.From]
			cell, err := dep.resolveExport(b.Import, make(map[exportKey]struct{}))
			if err != nil {
				record(withReferrer(err, inst.spec))
				continue
			}
			if cell == nil {
				record(errors.MissingExport(dep.spec, inst.spec, b.Import))
				continue
			}
			inst.env.BindImport(b.LocalName(), cell)
		case module.BindingImportAll:
			inst.env.BindImport(b.As, module.ConstCell(inst.linked[b.ImportAllFrom].ns))
		}
	}

	explicit := make(map[string]struct{})
	for _, b := range inst.unit.bindings {
		if n := b.ExportedName(); n != "" {
			explicit[n] = struct{}{}
		}
	}

	for _, name := range inst.exportedNames(make(map[*instance]struct{})) {
		cell, err := inst.resolveExport(name, make(map[exportKey]struct{}))
		_, isExplicit := explicit[name]
		switch {
		case err != nil && isExplicit:
			record(err)
			continue
		case err != nil, cell == nil && !isExplicit:
			// ambiguous or unresolvable star exports are omitted
			continue
		case cell == nil:
			record(errors.MissingExport(inst.spec, inst.spec, name))
			continue
		}
		if err := inst.ns.Define(name, cell); err != nil {
			record(err)
		}
	}
	return first
}

type exportKey struct {
	inst *instance
	name string
}

// resolveExport finds the cell backing export name of inst. It returns a nil
// cell and nil error when the name is not exported or the request is
// circular, and an ambiguous-export error when star exports conflict.
func (inst *instance) resolveExport(name string, seen map[exportKey]struct{}) (*module.Cell, error) {
	if inst.linkErr != nil {
		return nil, inst.linkErr
	}
	if inst.ns != nil && inst.ns.Sealed() {
		cell, _ := inst.ns.Cell(name)
		return cell, nil
	}

	k := exportKey{inst, name}
	if _, ok := seen[k]; ok {
		return nil, nil
	}
	seen[k] = struct{}{}

	for _, b := range inst.unit.bindings {
		if b.ExportedName() != name {
			continue
		}
		switch b.Kind() {
		case module.BindingExport:
			if cell, ok, err := inst.importedCell(b.Export, seen); ok {
				return cell, err
			}
			cell, _ := inst.env.Cell(b.Export)
			return cell, nil
		case module.BindingReexport:
			dep := inst.linked[b.From]
			cell, err := dep.resolveExport(b.Export, seen)
			if err != nil {
				return nil, err
			}
			if cell == nil {
				return nil, errors.MissingExport(dep.spec, inst.spec, b.Export)
			}
			return cell, nil
		case module.BindingExportAll:
			return inst.nestedCell(b.As, inst.linked[b.ExportAllFrom]), nil
		}
	}

	if name == "default" {
		return nil, nil
	}

	var star *module.Cell
	for _, b := range inst.unit.bindings {
		if b.Kind() != module.BindingExportAll || b.As != "" {
			continue
		}
		cell, err := inst.linked[b.ExportAllFrom].resolveExport(name, seen)
		if err != nil {
			return nil, err
		}
		if cell == nil {
			continue
		}
		if star != nil && star != cell {
			return nil, errors.New(errors.PhaseLink, errors.KindAmbiguousExport).
				Specifier(inst.spec).
				Name(name).
				Detail("export is provided by more than one export-all binding").
				Build()
		}
		star = cell
	}
	return star, nil
}

// importedCell resolves local through the import binding that declares it,
// so that exporting an imported name shares the source cell. ok is false
// when local is not imported.
func (inst *instance) importedCell(local string, seen map[exportKey]struct{}) (*module.Cell, bool, error) {
	for _, b := range inst.unit.bindings {
		switch b.Kind() {
		case module.BindingImport:
			if b.LocalName() != local {
				continue
			}
			dep := inst.linked[b.From]
			cell, err := dep.resolveExport(b.Import, seen)
			if err != nil {
				return nil, true, err
			}
			if cell == nil {
				return nil, true, errors.MissingExport(dep.spec, inst.spec, b.Import)
			}
			return cell, true, nil
		case module.BindingImportAll:
			if b.As == local {
				return module.ConstCell(inst.linked[b.ImportAllFrom].ns), true, nil
			}
		}
	}
	return nil, false, nil
}

// nestedCell returns the memoized cell holding dep's namespace under alias.
func (inst *instance) nestedCell(alias string, dep *instance) *module.Cell {
	if cell, ok := inst.nested[alias]; ok {
		return cell
	}
	if inst.nested == nil {
		inst.nested = make(map[string]*module.Cell)
	}
	cell := module.ConstCell(dep.ns)
	inst.nested[alias] = cell
	return cell
}

// exportedNames lists the names inst exports. Names reached through
// export-all bindings exclude "default".
func (inst *instance) exportedNames(seen map[*instance]struct{}) []string {
	if inst.ns != nil && inst.ns.Sealed() {
		return inst.ns.Keys()
	}
	if _, ok := seen[inst]; ok {
		return nil
	}
	seen[inst] = struct{}{}

	var names []string
	have := make(map[string]struct{})
	add := func(n string) {
		if _, ok := have[n]; !ok {
			have[n] = struct{}{}
			names = append(names, n)
		}
	}

	for _, b := range inst.unit.bindings {
		if n := b.ExportedName(); n != "" {
			add(n)
		}
	}
	for _, b := range inst.unit.bindings {
		if b.Kind() != module.BindingExportAll || b.As != "" {
			continue
		}
		for _, n := range inst.linked[b.ExportAllFrom].exportedNames(seen) {
			if n != "default" {
				add(n)
			}
		}
	}
	return names
}

func withReferrer(err error, referrer string) error {
	var e *errors.Error
	if errors.As(err, &e) && e.Referrer == "" {
		cp := *e
		cp.Referrer = referrer
		return &cp
	}
	return err
}
