package compartment

import (
	"sync"

	"github.com/wippyai/modgraph/module"
)

// State is the lifecycle state of a module in a compartment.
type State uint8

const (
	StateUnlinked State = iota // nothing known about the specifier
	StateLoading               // record lookup in flight
	StateLoaded                // record available, not linked
	StateLinking               // namespace wired, awaiting execution
	StateExecuting
	StateExecuted
	StateErrored
)

var stateNames = [...]string{
	StateUnlinked:  "unlinked",
	StateLoading:   "loading",
	StateLoaded:    "loaded",
	StateLinking:   "linking",
	StateExecuting: "executing",
	StateExecuted:  "executed",
	StateErrored:   "errored",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// instance is a unit instantiated in one compartment: its environment, its
// exports namespace and its execution state. The namespace is the owner
// handle checked by NamespaceDescriptor. linkErr is only accessed under
// linkMu.
type instance struct {
	err      error
	c        *Compartment
	unit     *unit
	descMeta module.Meta
	env      *module.Environment
	ns       *module.Namespace
	linked   map[string]*instance
	nested   map[string]*module.Cell
	order    []*instance
	session  *session
	linkErr  error
	done     chan struct{}
	meta     module.Meta
	spec     string
	metaOnce sync.Once
	mu       sync.Mutex
	state    State
}

func newInstance(c *Compartment, spec string, u *unit, meta module.Meta) *instance {
	return &instance{
		c:        c,
		spec:     spec,
		unit:     u,
		descMeta: meta,
		state:    StateLoaded,
	}
}

func (inst *instance) currentState() State {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.state
}

// settled returns the memoized result of an instance that finished executing.
func (inst *instance) settled() (*module.Namespace, bool, error) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	switch inst.state {
	case StateExecuted:
		return inst.ns, true, nil
	case StateErrored:
		return nil, true, inst.err
	default:
		return nil, false, nil
	}
}

func (inst *instance) namespace() *module.Namespace {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.ns
}

// dependency returns the instance an import specifier of inst refers to.
func (inst *instance) dependency(importSpec string) (*instance, error) {
	full, ok := inst.c.resolvedDeps(inst.spec)[importSpec]
	if !ok {
		var err error
		full, err = inst.c.resolve(importSpec, inst.spec)
		if err != nil {
			return nil, err
		}
	}
	return inst.c.lookupInstance(full)
}

// importMeta builds the meta object on first use: descriptor properties
// first, then the import meta hook.
func (inst *instance) importMeta() module.Meta {
	inst.metaOnce.Do(func() {
		inst.meta = inst.descMeta.Clone()
		if hook := inst.c.opts.ImportMeta; hook != nil {
			hook(inst.spec, inst.meta)
		}
	})
	return inst.meta
}
