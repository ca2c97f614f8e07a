package compartment

import (
	"context"
	"sync"

	uuid "github.com/satori/go.uuid"
	"go.uber.org/zap"

	"github.com/wippyai/modgraph/errors"
	"github.com/wippyai/modgraph/module"
	"github.com/wippyai/modgraph/specifier"
)

// Compartment is an isolated module namespace. It owns a record memo (one
// entry per full specifier, filled from the static module table or the load
// hook) and an instance memo (one instance per full specifier). All methods
// are safe for concurrent use.
type Compartment struct {
	records   map[string]*recordEntry
	instances map[string]*instance
	parent    *Compartment
	opts      Options
	id        string
	mu        sync.Mutex
}

// New creates a compartment.
func New(opts Options) *Compartment {
	if opts.Name == "" {
		opts.Name = DefaultOptions().Name
	}
	modules := make(map[string]Descriptor, len(opts.Modules))
	for k, v := range opts.Modules {
		modules[k] = v
	}
	opts.Modules = modules

	c := &Compartment{
		records:   make(map[string]*recordEntry),
		instances: make(map[string]*instance),
		parent:    opts.Parent,
		opts:      opts,
		id:        uuid.NewV4().String(),
	}
	Logger().Debug("compartment created",
		zap.String("compartment", c.id),
		zap.String("name", opts.Name),
		zap.Int("modules", len(modules)))
	return c
}

// ID returns the compartment's unique identifier.
func (c *Compartment) ID() string { return c.id }

// Name returns the configured name.
func (c *Compartment) Name() string { return c.opts.Name }

// Parent returns the parent compartment, or nil.
func (c *Compartment) Parent() *Compartment { return c.parent }

// Load ensures the record for spec and the records of its transitive
// dependencies are in the record memo. It does not link or execute anything.
func (c *Compartment) Load(ctx context.Context, spec string) error {
	if spec == "" {
		return errors.InvalidInput(errors.PhaseLoad, "empty specifier")
	}
	w := &walker{visited: make(map[memoKey]struct{})}
	return w.walk(ctx, c, spec)
}

// Import loads, links and executes spec and its dependencies and returns its
// namespace. Calling Import again for the same specifier returns the same
// namespace, or the same error if execution failed.
func (c *Compartment) Import(ctx context.Context, spec string) (*module.Namespace, error) {
	if inst := c.cachedInstance(spec); inst != nil {
		if ns, done, err := inst.settled(); done {
			return ns, err
		}
	}

	if err := c.Load(ctx, spec); err != nil {
		return nil, err
	}
	root, err := c.lookupInstance(spec)
	if err != nil {
		return nil, err
	}

	sess := sessionFrom(ctx)
	if sess == nil {
		sess = newSession()
		ctx = withSession(ctx, sess)
		defer sess.finish()
	}
	if err := link(root, sess, false); err != nil {
		return nil, err
	}
	if err := root.run(ctx, sess); err != nil {
		return nil, err
	}
	return root.namespace(), nil
}

// Evaluate runs source with the configured Evaluator.
func (c *Compartment) Evaluate(ctx context.Context, source string) (any, error) {
	if c.opts.Evaluator == nil {
		return nil, errors.Unsupported(errors.PhaseRuntime, "compartment has no evaluator")
	}
	return c.opts.Evaluator.Evaluate(ctx, c, source)
}

// State reports the lifecycle state of spec in this compartment.
func (c *Compartment) State(spec string) State {
	seen := make(map[memoKey]struct{})
	cur, s := c, spec
	for {
		k := memoKey{cur, s}
		if _, ok := seen[k]; ok {
			return StateErrored
		}
		seen[k] = struct{}{}

		cur.mu.Lock()
		if inst, ok := cur.instances[s]; ok {
			cur.mu.Unlock()
			return inst.currentState()
		}
		e, ok := cur.records[s]
		cur.mu.Unlock()
		if !ok {
			return StateUnlinked
		}
		if !e.settled() {
			return StateLoading
		}
		if e.err != nil {
			return StateErrored
		}
		switch e.kind {
		case entryForward:
			cur, s = e.target, e.targetSpec
		case entryInstance:
			return e.inst.currentState()
		default:
			return StateLoaded
		}
	}
}

// resolve maps importSpec written in referrer to a full specifier.
func (c *Compartment) resolve(importSpec, referrer string) (full string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.FromPanic(errors.PhaseResolve, importSpec, r)
		}
	}()

	hook := c.opts.Resolve
	if hook == nil {
		hook = specifier.Resolve
	}
	full, err = hook(importSpec, referrer)
	if err != nil {
		if errors.PhaseOf(err) == errors.PhaseResolve {
			return "", err
		}
		return "", errors.Resolution(importSpec, referrer, err)
	}
	if full == "" {
		return "", errors.Resolution(importSpec, referrer,
			errors.New(errors.PhaseResolve, errors.KindInvalidResult).Detail("resolve hook returned an empty specifier").Build())
	}
	return full, nil
}

// resolveAll resolves every dependency of u written in referrer.
func (c *Compartment) resolveAll(u *unit, referrer string) (map[string]string, error) {
	out := make(map[string]string, len(u.deps))
	for _, d := range u.deps {
		full, err := c.resolve(d, referrer)
		if err != nil {
			return nil, err
		}
		out[d] = full
	}
	return out, nil
}

func (c *Compartment) cachedInstance(spec string) *instance {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.instances[spec]
}
