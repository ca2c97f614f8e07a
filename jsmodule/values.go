package jsmodule

import (
	"github.com/dop251/goja"

	"github.com/wippyai/modgraph/errors"
	"github.com/wippyai/modgraph/module"
)

// Func is how a JavaScript function crosses module boundaries. Each module
// runs in its own runtime; a Func calls back into the runtime that defined
// it. Runtimes are not safe for concurrent use, so a Func must not be called
// concurrently with other code of its defining module.
type Func func(args ...any) (any, error)

// bridge converts values between a runtime and module cells. Namespace
// objects are cached so that a namespace has one identity per runtime.
type bridge struct {
	rt    *goja.Runtime
	byNS  map[*module.Namespace]*goja.Object
	byObj map[*goja.Object]*module.Namespace
}

func newBridge(rt *goja.Runtime) *bridge {
	return &bridge{
		rt:    rt,
		byNS:  make(map[*module.Namespace]*goja.Object),
		byObj: make(map[*goja.Object]*module.Namespace),
	}
}

// fromJS converts a value assigned by JavaScript code into a Go value that
// can be stored in a module cell.
func (b *bridge) fromJS(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	if obj, ok := v.(*goja.Object); ok {
		if ns, ok := b.byObj[obj]; ok {
			return ns
		}
	}
	if fn, ok := goja.AssertFunction(v); ok {
		return Func(func(args ...any) (any, error) {
			in := make([]goja.Value, len(args))
			for i, a := range args {
				in[i] = b.toJS(a)
			}
			out, err := fn(goja.Undefined(), in...)
			if err != nil {
				return nil, err
			}
			return b.fromJS(out), nil
		})
	}
	return v.Export()
}

// toJS converts a cell value for use inside the runtime.
func (b *bridge) toJS(v any) goja.Value {
	switch x := v.(type) {
	case nil:
		return goja.Undefined()
	case *module.Namespace:
		return b.namespace(x)
	case Func:
		return b.rt.ToValue(func(call goja.FunctionCall) goja.Value {
			args := make([]any, len(call.Arguments))
			for i, a := range call.Arguments {
				args[i] = b.fromJS(a)
			}
			out, err := x(args...)
			if err != nil {
				panic(b.rt.NewGoError(err))
			}
			return b.toJS(out)
		})
	default:
		return b.rt.ToValue(v)
	}
}

func (b *bridge) namespace(ns *module.Namespace) *goja.Object {
	if obj, ok := b.byNS[ns]; ok {
		return obj
	}
	obj := b.rt.NewDynamicObject(&namespaceObject{b: b, ns: ns})
	b.byNS[ns] = obj
	b.byObj[obj] = ns
	return obj
}

// envObject exposes a module environment to its code. Reads of bindings
// that are not yet initialized throw; writes to imports are rejected.
type envObject struct {
	b   *bridge
	env *module.Environment
}

func (o *envObject) Get(key string) goja.Value {
	v, err := o.env.Get(key)
	if err != nil {
		var e *errors.Error
		if errors.As(err, &e) && e.Kind == errors.KindUninitialized {
			panic(o.b.rt.NewGoError(err))
		}
		return goja.Undefined()
	}
	return o.b.toJS(v)
}

func (o *envObject) Set(key string, val goja.Value) bool {
	return o.env.Set(key, o.b.fromJS(val)) == nil
}

func (o *envObject) Has(key string) bool    { return o.env.Has(key) }
func (o *envObject) Delete(key string) bool { return false }
func (o *envObject) Keys() []string         { return o.env.Names() }

// namespaceObject is a read-only view of a namespace.
type namespaceObject struct {
	b  *bridge
	ns *module.Namespace
}

func (o *namespaceObject) Get(key string) goja.Value {
	v, ok := o.ns.Lookup(key)
	if !ok {
		return goja.Undefined()
	}
	return o.b.toJS(v)
}

func (o *namespaceObject) Set(key string, val goja.Value) bool { return false }
func (o *namespaceObject) Has(key string) bool                 { return o.ns.Has(key) }
func (o *namespaceObject) Delete(key string) bool              { return false }
func (o *namespaceObject) Keys() []string                      { return o.ns.Keys() }
