package compartment

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/modgraph/errors"
	"github.com/wippyai/modgraph/module"
)

type entryKind uint8

const (
	entryUnit     entryKind = iota // owns a unit; instantiated lazily
	entryForward                   // resolves through another (compartment, specifier)
	entryInstance                  // shares an existing instance
)

// memoKey identifies a record memo slot across compartments.
type memoKey struct {
	c    *Compartment
	spec string
}

// recordEntry is a single-flight record memo slot. Fields other than done
// are written once before done is closed and are read-only afterwards, except
// resolved which is guarded by the owning compartment's mutex. issued is
// closed once the slot's load hook call has returned, or as soon as it is
// known that no hook call is needed.
type recordEntry struct {
	err        error
	unit       *unit
	meta       module.Meta
	target     *Compartment
	inst       *instance
	resolved   map[string]string
	done       chan struct{}
	issued     chan struct{}
	targetSpec string
	kind       entryKind
}

func newEntry() *recordEntry {
	return &recordEntry{done: make(chan struct{}), issued: make(chan struct{})}
}

// settledEntry builds an already-completed unit entry.
func settledEntry(u *unit, meta module.Meta) *recordEntry {
	e := newEntry()
	e.kind, e.unit, e.meta = entryUnit, u, meta
	e.complete()
	return e
}

// complete closes the channels of a slot settled without a fill.
func (e *recordEntry) complete() {
	close(e.issued)
	close(e.done)
}

func (e *recordEntry) settled() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

func (e *recordEntry) wait(ctx context.Context) error {
	select {
	case <-e.done:
		return e.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// entry returns the record memo slot for spec, starting the descriptor
// lookup if the slot is new. It never blocks on the lookup.
func (c *Compartment) entry(ctx context.Context, spec string) *recordEntry {
	return c.entryAfter(ctx, spec, nil)
}

// entryAfter is entry for one of several sibling dependencies. A new slot
// calls the load hook only after the hook call of the slot owning after has
// returned, so sibling hooks are called in the order their slots were
// requested.
func (c *Compartment) entryAfter(ctx context.Context, spec string, after <-chan struct{}) *recordEntry {
	c.mu.Lock()
	if e, ok := c.records[spec]; ok {
		c.mu.Unlock()
		return e
	}
	e := newEntry()
	c.records[spec] = e
	c.mu.Unlock()

	// Hooks run to completion even if every waiter gives up.
	go c.fill(context.WithoutCancel(ctx), spec, e, after)
	return e
}

// record returns the settled record memo slot for spec.
func (c *Compartment) record(ctx context.Context, spec string) (*recordEntry, error) {
	e := c.entry(ctx, spec)
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (c *Compartment) fill(ctx context.Context, spec string, e *recordEntry, after <-chan struct{}) {
	issued := sync.OnceFunc(func() { close(e.issued) })
	defer close(e.done)
	defer issued()
	defer func() {
		if r := recover(); r != nil {
			e.err = errors.FromPanic(errors.PhaseLoad, spec, r)
			c.evict(spec, e)
		}
	}()

	desc, err := c.descriptor(ctx, spec, after, issued)
	if err == nil {
		err = c.settle(ctx, spec, desc, e)
	}
	if err != nil {
		Logger().Debug("load failed",
			zap.String("compartment", c.id),
			zap.String("specifier", spec),
			zap.Error(err))
		e.err = err
		c.evict(spec, e)
	}
}

// evict drops a failed slot so a later load retries it.
func (c *Compartment) evict(spec string, e *recordEntry) {
	if c.opts.CacheLoadFailures {
		return
	}
	c.mu.Lock()
	if c.records[spec] == e {
		delete(c.records, spec)
	}
	c.mu.Unlock()
}

// descriptor consults the static module table, then the load hook. The hook
// is called once after is closed; issued is called when it returns.
func (c *Compartment) descriptor(ctx context.Context, spec string, after <-chan struct{}, issued func()) (Descriptor, error) {
	if d, ok := c.opts.Modules[spec]; ok {
		return d, nil
	}
	if c.opts.Load == nil {
		return nil, errors.NotFound(spec)
	}
	if after != nil {
		<-after
	}

	Logger().Debug("invoking load hook",
		zap.String("compartment", c.id),
		zap.String("specifier", spec))

	d, err := c.callLoad(ctx, spec)
	issued()
	if err != nil {
		if errors.PhaseOf(err) == errors.PhaseLoad || errors.PhaseOf(err) == errors.PhaseCompile {
			return nil, err
		}
		return nil, errors.Load(spec, "load hook failed", err)
	}
	if d == nil {
		return nil, errors.NotFound(spec)
	}
	return d, nil
}

func (c *Compartment) callLoad(ctx context.Context, spec string) (d Descriptor, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.FromPanic(errors.PhaseLoad, spec, r)
		}
	}()
	return c.opts.Load(ctx, spec)
}

// settle turns a descriptor into the contents of slot e.
func (c *Compartment) settle(ctx context.Context, spec string, desc Descriptor, e *recordEntry) error {
	switch d := normalize(desc).(type) {
	case RecordDescriptor:
		if d.Record == nil {
			return errors.InvalidDescriptor(spec, desc)
		}
		return c.settleUnit(spec, d.Specifier, unitFromRecord(d.Record), d.ImportMeta, e)

	case SourceDescriptor:
		if d.Source == nil {
			return errors.InvalidDescriptor(spec, desc)
		}
		u, err := unitFromSource(d.Source)
		if err != nil {
			return err
		}
		return c.settleUnit(spec, d.Specifier, u, d.ImportMeta, e)

	case TextDescriptor:
		if d.Specifier == "" || d.Specifier == spec {
			rec, err := c.compile(ctx, spec, d.Text)
			if err != nil {
				return err
			}
			e.kind, e.unit, e.meta = entryUnit, unitFromRecord(rec), d.ImportMeta
			return nil
		}
		return c.settleRedirect(ctx, spec, d, e)

	case AliasDescriptor:
		target, err := c.aliasTarget(spec, d.Compartment)
		if err != nil {
			return err
		}
		te := target.entry(ctx, d.Specifier)
		if err := awaitAlias(ctx, e, te, spec); err != nil {
			return err
		}
		u, meta, err := sourceOf(ctx, e, te, spec)
		if err != nil {
			return err
		}
		e.kind, e.unit, e.meta = entryUnit, u, meta
		return nil

	case InstanceDescriptor:
		target, err := c.aliasTarget(spec, d.Compartment)
		if err != nil {
			return err
		}
		if target == c && d.Specifier == spec {
			return errors.AliasCycle(spec)
		}
		e.kind, e.target, e.targetSpec = entryForward, target, d.Specifier
		return nil

	case NamespaceDescriptor:
		if d.Namespace == nil {
			return errors.InvalidDescriptor(spec, desc)
		}
		owner, ok := d.Namespace.Owner().(*instance)
		if !ok {
			return errors.New(errors.PhaseLoad, errors.KindInvalidDescriptor).
				Specifier(spec).
				Detail("namespace was not produced by a compartment").
				Build()
		}
		e.kind, e.inst = entryInstance, owner
		return nil

	case ObjectDescriptor:
		e.kind, e.unit = entryUnit, unitFromObject(d.Object)
		return nil

	default:
		return errors.InvalidDescriptor(spec, desc)
	}
}

// settleUnit stores u in e, or for a redirect installs u under the canonical
// specifier and forwards e to it. An existing canonical entry wins.
func (c *Compartment) settleUnit(spec, canonical string, u *unit, meta module.Meta, e *recordEntry) error {
	if canonical == "" || canonical == spec {
		e.kind, e.unit, e.meta = entryUnit, u, meta
		return nil
	}

	c.mu.Lock()
	if _, ok := c.records[canonical]; !ok {
		c.records[canonical] = settledEntry(u, meta)
	}
	c.mu.Unlock()

	Logger().Debug("redirect",
		zap.String("compartment", c.id),
		zap.String("specifier", spec),
		zap.String("canonical", canonical))

	e.kind, e.target, e.targetSpec = entryForward, c, canonical
	return nil
}

// settleRedirect forwards e to the canonical slot of a redirecting text
// descriptor. The first redirect to reach a missing canonical slot claims it
// and compiles; later ones wait for that slot instead of compiling again.
func (c *Compartment) settleRedirect(ctx context.Context, spec string, d TextDescriptor, e *recordEntry) error {
	canonical := d.Specifier
	c.mu.Lock()
	ce, exists := c.records[canonical]
	if !exists {
		ce = newEntry()
		c.records[canonical] = ce
	}
	c.mu.Unlock()

	if exists {
		if err := awaitAlias(ctx, e, ce, spec); err != nil {
			return err
		}
	} else {
		rec, err := c.compile(ctx, canonical, d.Text)
		if err != nil {
			ce.err = err
			ce.complete()
			c.evict(canonical, ce)
			return err
		}
		ce.kind, ce.unit, ce.meta = entryUnit, unitFromRecord(rec), d.ImportMeta
		ce.complete()

		Logger().Debug("redirect",
			zap.String("compartment", c.id),
			zap.String("specifier", spec),
			zap.String("canonical", canonical))
	}

	e.kind, e.target, e.targetSpec = entryForward, c, canonical
	return nil
}

func (c *Compartment) compile(ctx context.Context, spec string, text []byte) (rec *module.StaticRecord, err error) {
	if c.opts.Compiler == nil {
		return nil, errors.Unsupported(errors.PhaseCompile, "compartment has no compiler for source text")
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.FromPanic(errors.PhaseCompile, spec, r)
		}
	}()

	rec, err = c.opts.Compiler.Compile(ctx, spec, text)
	if err != nil {
		if errors.PhaseOf(err) == errors.PhaseCompile {
			return nil, err
		}
		return nil, errors.Compile(spec, "compile failed", err)
	}
	if rec == nil {
		return nil, errors.New(errors.PhaseCompile, errors.KindInvalidResult).
			Specifier(spec).
			Detail("compiler returned no record").
			Build()
	}
	return rec, nil
}

func (c *Compartment) aliasTarget(spec string, target *Compartment) (*Compartment, error) {
	if target != nil {
		return target, nil
	}
	if c.parent == nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidDescriptor).
			Specifier(spec).
			Detail("alias descriptor without compartment in a compartment with no parent").
			Build()
	}
	return c.parent, nil
}

// sourceOf follows forwards from the settled slot e to the unit that backs it
// on behalf of the aliasing slot from.
func sourceOf(ctx context.Context, from, e *recordEntry, spec string) (*unit, module.Meta, error) {
	seen := make(map[*recordEntry]struct{})
	for {
		if _, ok := seen[e]; ok {
			return nil, nil, errors.AliasCycle(spec)
		}
		seen[e] = struct{}{}

		switch e.kind {
		case entryUnit:
			return e.unit, e.meta, nil
		case entryInstance:
			return e.inst.unit, e.inst.descMeta, nil
		default:
			next := e.target.entry(ctx, e.targetSpec)
			if err := awaitAlias(ctx, from, next, spec); err != nil {
				return nil, nil, err
			}
			e = next
		}
	}
}

// aliasWaits records which slot each aliasing slot is waiting for, so that
// mutually aliasing slots fail instead of waiting on each other forever.
var aliasWaits = struct {
	m map[*recordEntry]*recordEntry
	sync.Mutex
}{m: make(map[*recordEntry]*recordEntry)}

func awaitAlias(ctx context.Context, from, to *recordEntry, spec string) error {
	aliasWaits.Lock()
	for cur := to; cur != nil; cur = aliasWaits.m[cur] {
		if cur == from {
			aliasWaits.Unlock()
			return errors.AliasCycle(spec)
		}
	}
	aliasWaits.m[from] = to
	aliasWaits.Unlock()

	defer func() {
		aliasWaits.Lock()
		delete(aliasWaits.m, from)
		aliasWaits.Unlock()
	}()
	return to.wait(ctx)
}

// lookupInstance follows the memo from spec to its instance, creating the
// instance for a loaded unit on first use. All slots on the path must
// already be settled.
func (c *Compartment) lookupInstance(spec string) (*instance, error) {
	seen := make(map[memoKey]struct{})
	cur, s := c, spec
	for {
		k := memoKey{cur, s}
		if _, ok := seen[k]; ok {
			return nil, errors.AliasCycle(spec)
		}
		seen[k] = struct{}{}

		cur.mu.Lock()
		if inst, ok := cur.instances[s]; ok {
			cur.mu.Unlock()
			return inst, nil
		}
		e, ok := cur.records[s]
		if !ok || !e.settled() {
			cur.mu.Unlock()
			return nil, errors.New(errors.PhaseLoad, errors.KindPending).
				Specifier(s).
				Detail("module is not loaded").
				Build()
		}
		if e.err != nil {
			cur.mu.Unlock()
			return nil, e.err
		}
		switch e.kind {
		case entryUnit:
			inst := newInstance(cur, s, e.unit, e.meta)
			cur.instances[s] = inst
			cur.mu.Unlock()
			return inst, nil
		case entryInstance:
			cur.mu.Unlock()
			return e.inst, nil
		default:
			next, nextSpec := e.target, e.targetSpec
			cur.mu.Unlock()
			cur, s = next, nextSpec
		}
	}
}

// resolvedDeps returns the dependency map recorded for spec's slot.
func (c *Compartment) resolvedDeps(spec string) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.records[spec]; ok {
		return e.resolved
	}
	return nil
}
