package wasmmodule

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/modgraph/errors"
	"github.com/wippyai/modgraph/module"
)

// HostFunc is a Go function a non-WebAssembly module can export for
// WebAssembly importers. Parameters and results use wazero's uint64 encoding.
type HostFunc func(ctx context.Context, params []uint64) ([]uint64, error)

// Function is the value a WebAssembly module binds for each exported
// function.
type Function struct {
	fn   api.Function
	name string
}

// Name returns the export name.
func (f *Function) Name() string { return f.name }

// Definition returns the function signature.
func (f *Function) Definition() api.FunctionDefinition { return f.fn.Definition() }

// Call invokes the function.
func (f *Function) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	return f.fn.Call(ctx, params...)
}

// callable converts an imported binding's value into something a host
// function can invoke.
func callable(v any) (func(ctx context.Context, params []uint64) ([]uint64, error), error) {
	switch fn := v.(type) {
	case *Function:
		return func(ctx context.Context, params []uint64) ([]uint64, error) {
			return fn.fn.Call(ctx, params...)
		}, nil
	case api.Function:
		return func(ctx context.Context, params []uint64) ([]uint64, error) {
			return fn.Call(ctx, params...)
		}, nil
	case HostFunc:
		return fn, nil
	case func(ctx context.Context, params []uint64) ([]uint64, error):
		return fn, nil
	default:
		return nil, fmt.Errorf("imported value of type %T is not callable", v)
	}
}

// importHandler reads cell on every call so that the import stays live.
func importHandler(spec, local string, cell *module.Cell, params, results int) api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		v, ok := cell.Load()
		if !ok {
			panic(errors.New(errors.PhaseRuntime, errors.KindUninitialized).
				Specifier(spec).
				Name(local).
				Detail("imported function called before initialization").
				Build())
		}
		call, err := callable(v)
		if err != nil {
			panic(errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
				Specifier(spec).
				Name(local).
				Cause(err).
				Build())
		}
		in := make([]uint64, params)
		copy(in, stack[:params])
		out, err := call(ctx, in)
		if err != nil {
			panic(err)
		}
		if len(out) < results {
			panic(errors.New(errors.PhaseRuntime, errors.KindInvalidResult).
				Specifier(spec).
				Name(local).
				Detail("imported function returned %d results, want %d", len(out), results).
				Build())
		}
		copy(stack, out[:results])
	}
}
