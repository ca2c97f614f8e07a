package jsmodule

import (
	"context"
	"sync"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/modgraph/compartment"
)

// Evaluator runs script source against a compartment. Each compartment gets
// one runtime that persists between calls, so globals set by one script are
// visible to the next. Scripts reach the module graph through two globals:
//
//	importNow(specifier)     synchronous import, fails on async graphs
//	importModule(specifier)  import that may wait for async modules
//
// The runtime refers to its compartment, so an Evaluator keeps every
// compartment it has evaluated in reachable until Forget is called for it.
type Evaluator struct {
	mu       sync.Mutex
	runtimes map[*compartment.Compartment]*scriptRuntime
	log      *zap.Logger
}

var _ compartment.Evaluator = (*Evaluator)(nil)

type scriptRuntime struct {
	mu  sync.Mutex
	rt  *goja.Runtime
	b   *bridge
	ctx context.Context
}

// NewEvaluator creates an evaluator. A nil logger discards events. Callers
// that discard compartments must Forget them, or the evaluator retains them
// along with their module graphs.
func NewEvaluator(log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{
		runtimes: make(map[*compartment.Compartment]*scriptRuntime),
		log:      log,
	}
}

// Evaluate runs source in c's runtime and returns the completion value.
func (e *Evaluator) Evaluate(ctx context.Context, c *compartment.Compartment, source string) (any, error) {
	r := e.runtime(c)
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ctx = ctx
	r.rt.ClearInterrupt()
	stop := context.AfterFunc(ctx, func() { r.rt.Interrupt(ctx.Err()) })
	defer stop()

	v, err := r.rt.RunString(source)
	if err != nil {
		e.log.Debug("script failed", zap.String("compartment", c.Name()), zap.Error(err))
		return nil, convert(c.Name(), err)
	}
	return r.b.fromJS(v), nil
}

// Forget drops the runtime kept for c and with it the evaluator's reference
// to c. A later Evaluate starts from a fresh runtime.
func (e *Evaluator) Forget(c *compartment.Compartment) {
	e.mu.Lock()
	delete(e.runtimes, c)
	e.mu.Unlock()
}

func (e *Evaluator) runtime(c *compartment.Compartment) *scriptRuntime {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.runtimes[c]; ok {
		return r
	}

	rt := goja.New()
	r := &scriptRuntime{rt: rt, b: newBridge(rt), ctx: context.Background()}
	_ = rt.Set("importNow", func(spec string) goja.Value {
		ns, err := c.ImportNow(spec)
		if err != nil {
			panic(rt.NewGoError(err))
		}
		return r.b.namespace(ns)
	})
	_ = rt.Set("importModule", func(spec string) goja.Value {
		ns, err := c.Import(r.ctx, spec)
		if err != nil {
			panic(rt.NewGoError(err))
		}
		return r.b.namespace(ns)
	})
	e.runtimes[c] = r
	e.log.Debug("created script runtime", zap.String("compartment", c.ID()))
	return r
}
