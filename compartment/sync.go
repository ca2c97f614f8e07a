package compartment

import (
	"context"

	"github.com/wippyai/modgraph/errors"
	"github.com/wippyai/modgraph/module"
)

// LoadNow is the synchronous form of Load. It never waits: if completing the
// load would require a load hook, an in-flight record lookup or any other
// asynchronous step, it fails with a suspension error and leaves the memo
// unchanged. Descriptors from the static module table are settled and
// committed together once the whole closure is known to be available.
func (c *Compartment) LoadNow(spec string) error {
	return c.loadNow(spec, false)
}

// loadNow stages and commits the closure of spec. With execSync set it also
// fails, before committing anything, when the closure holds an async module
// or an instance another import is executing.
func (c *Compartment) loadNow(spec string, execSync bool) error {
	if spec == "" {
		return errors.InvalidInput(errors.PhaseLoad, "empty specifier")
	}
	st := &stager{
		staged:   make(map[memoKey]*recordEntry),
		visited:  make(map[memoKey]struct{}),
		settling: make(map[memoKey]struct{}),
		execSync: execSync,
	}
	if err := st.walk(c, spec); err != nil {
		return err
	}
	st.commit()
	return nil
}

// ImportNow is the synchronous form of Import. It fails with a suspension
// error when the module graph is not fully available without waiting, when
// it contains an async module, or when another import is executing part of
// it.
func (c *Compartment) ImportNow(spec string) (*module.Namespace, error) {
	if inst := c.cachedInstance(spec); inst != nil {
		if ns, done, err := inst.settled(); done {
			return ns, err
		}
	}

	if err := c.loadNow(spec, true); err != nil {
		return nil, err
	}
	root, err := c.lookupInstance(spec)
	if err != nil {
		return nil, err
	}

	sess := newSession()
	defer sess.finish()
	ctx := withSession(context.Background(), sess)

	if err := link(root, sess, true); err != nil {
		return nil, err
	}
	if err := root.run(ctx, sess); err != nil {
		return nil, err
	}
	return root.namespace(), nil
}

// stager settles record memo slots off to the side so that a failed
// synchronous load has no visible effect.
type stager struct {
	staged   map[memoKey]*recordEntry
	visited  map[memoKey]struct{}
	settling map[memoKey]struct{}
	order    []memoKey
	execSync bool
}

func (st *stager) walk(c *Compartment, spec string) error {
	k := memoKey{c, spec}
	if _, ok := st.visited[k]; ok {
		return nil
	}
	st.visited[k] = struct{}{}

	if inst := c.cachedInstance(spec); inst != nil && inst.currentState() > StateLoaded {
		return st.checkInstance(inst)
	}

	e, err := st.entry(c, spec)
	if err != nil {
		return err
	}

	switch e.kind {
	case entryForward:
		return st.walk(e.target, e.targetSpec)
	case entryInstance:
		return st.checkInstance(e.inst)
	}
	if st.execSync && e.unit.async {
		return errors.Suspension(spec, "module executes asynchronously")
	}

	c.mu.Lock()
	deps := e.resolved
	c.mu.Unlock()
	if deps == nil {
		deps, err = c.resolveAll(e.unit, spec)
		if err != nil {
			return err
		}
		if _, ok := st.staged[k]; ok {
			e.resolved = deps
		}
	}

	for _, d := range e.unit.deps {
		if err := st.walk(c, deps[d]); err != nil {
			return err
		}
	}
	return nil
}

// checkInstance reports whether a synchronous import could use inst as it is.
// Instances past loading already have a linked closure and are not walked.
func (st *stager) checkInstance(inst *instance) error {
	if !st.execSync {
		return nil
	}
	switch inst.currentState() {
	case StateExecuted, StateErrored:
		return nil
	case StateLinking, StateExecuting:
		return errors.Suspension(inst.spec, "module is being executed by another import")
	}
	if inst.unit.async {
		return errors.Suspension(inst.spec, "module executes asynchronously")
	}
	return nil
}

// entry returns the committed slot for spec, a slot staged earlier in this
// call, or a newly staged slot built from the static module table.
func (st *stager) entry(c *Compartment, spec string) (*recordEntry, error) {
	k := memoKey{c, spec}
	if e, ok := st.staged[k]; ok {
		return e, nil
	}

	c.mu.Lock()
	e, ok := c.records[spec]
	c.mu.Unlock()
	if ok {
		if !e.settled() {
			return nil, errors.Suspension(spec, "module is still loading")
		}
		if e.err != nil {
			return nil, e.err
		}
		return e, nil
	}

	desc, ok := c.opts.Modules[spec]
	if !ok {
		if c.opts.Load != nil {
			return nil, errors.Suspension(spec, "module requires the load hook")
		}
		return nil, errors.NotFound(spec)
	}

	if _, ok := st.settling[k]; ok {
		return nil, errors.AliasCycle(spec)
	}
	st.settling[k] = struct{}{}
	defer delete(st.settling, k)

	e = newEntry()
	if err := st.settle(c, spec, desc, e); err != nil {
		return nil, err
	}
	e.complete()
	st.stage(k, e)
	return e, nil
}

func (st *stager) stage(k memoKey, e *recordEntry) {
	st.staged[k] = e
	st.order = append(st.order, k)
}

// settle mirrors Compartment.settle without waiting on anything.
func (st *stager) settle(c *Compartment, spec string, desc Descriptor, e *recordEntry) error {
	switch d := normalize(desc).(type) {
	case RecordDescriptor:
		if d.Record == nil {
			return errors.InvalidDescriptor(spec, desc)
		}
		return st.settleUnit(c, spec, d.Specifier, unitFromRecord(d.Record), d.ImportMeta, e)

	case SourceDescriptor:
		if d.Source == nil {
			return errors.InvalidDescriptor(spec, desc)
		}
		u, err := unitFromSource(d.Source)
		if err != nil {
			return err
		}
		return st.settleUnit(c, spec, d.Specifier, u, d.ImportMeta, e)

	case TextDescriptor:
		canonical := spec
		if d.Specifier != "" {
			canonical = d.Specifier
		}
		if canonical != spec && st.has(c, canonical) {
			e.kind, e.target, e.targetSpec = entryForward, c, canonical
			return nil
		}
		rec, err := c.compile(context.Background(), canonical, d.Text)
		if err != nil {
			return err
		}
		return st.settleUnit(c, spec, d.Specifier, unitFromRecord(rec), d.ImportMeta, e)

	case AliasDescriptor:
		target, err := c.aliasTarget(spec, d.Compartment)
		if err != nil {
			return err
		}
		u, meta, err := st.source(target, d.Specifier, make(map[memoKey]struct{}))
		if err != nil {
			return err
		}
		e.kind, e.unit, e.meta = entryUnit, u, meta
		return nil

	default:
		// the remaining descriptors never wait
		return c.settle(context.Background(), spec, desc, e)
	}
}

func (st *stager) settleUnit(c *Compartment, spec, canonical string, u *unit, meta module.Meta, e *recordEntry) error {
	if canonical == "" || canonical == spec {
		e.kind, e.unit, e.meta = entryUnit, u, meta
		return nil
	}
	if !st.has(c, canonical) {
		st.stage(memoKey{c, canonical}, settledEntry(u, meta))
	}
	e.kind, e.target, e.targetSpec = entryForward, c, canonical
	return nil
}

func (st *stager) has(c *Compartment, spec string) bool {
	if _, ok := st.staged[memoKey{c, spec}]; ok {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.records[spec]
	return ok
}

// source finds the unit behind spec in c for an alias descriptor, staging
// slots along the way.
func (st *stager) source(c *Compartment, spec string, seen map[memoKey]struct{}) (*unit, module.Meta, error) {
	k := memoKey{c, spec}
	if _, ok := seen[k]; ok {
		return nil, nil, errors.AliasCycle(spec)
	}
	seen[k] = struct{}{}

	e, err := st.entry(c, spec)
	if err != nil {
		return nil, nil, err
	}
	switch e.kind {
	case entryUnit:
		return e.unit, e.meta, nil
	case entryInstance:
		return e.inst.unit, e.inst.descMeta, nil
	default:
		return st.source(e.target, e.targetSpec, seen)
	}
}

// commit publishes staged slots. Slots filled concurrently by an
// asynchronous load win.
func (st *stager) commit() {
	for _, k := range st.order {
		e := st.staged[k]
		k.c.mu.Lock()
		if _, ok := k.c.records[k.spec]; !ok {
			k.c.records[k.spec] = e
		}
		k.c.mu.Unlock()
	}
}
