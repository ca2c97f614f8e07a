package jsmodule

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/dop251/goja"

	"github.com/wippyai/modgraph/compartment"
	"github.com/wippyai/modgraph/errors"
	"github.com/wippyai/modgraph/module"
)

// Module describes a JavaScript module body.
type Module struct {
	// Name labels the code in stack traces.
	Name            string
	Code            string
	Bindings        []module.Binding
	NeedsImport     bool
	NeedsImportMeta bool
}

// Source compiles m into a virtual module source. Each instance runs the code
// in a fresh runtime as the body of a strict-mode function with two
// parameters: module, a view of the module environment through which imports
// are read and local exports assigned, and ctx, which carries specifier and,
// when requested, import(specifier) and meta.
func Source(m Module) (*module.VirtualSource, error) {
	if err := module.ValidateBindings(m.Bindings); err != nil {
		return nil, err
	}
	prog, err := goja.Compile(m.Name, "(function(module, ctx) {\n"+m.Code+"\n})", true)
	if err != nil {
		return nil, errors.Compile(m.Name, "javascript syntax error", err)
	}

	bindings := make([]module.Binding, len(m.Bindings))
	copy(bindings, m.Bindings)
	return &module.VirtualSource{
		Bindings:        bindings,
		NeedsImport:     m.NeedsImport,
		NeedsImportMeta: m.NeedsImportMeta,
		Execute:         execute(prog),
	}, nil
}

func execute(prog *goja.Program) module.ExecuteFunc {
	return func(ctx context.Context, env *module.Environment, ec module.ExecContext) error {
		rt := goja.New()
		b := newBridge(rt)
		stop := context.AfterFunc(ctx, func() { rt.Interrupt(ctx.Err()) })
		defer stop()

		fnVal, err := rt.RunProgram(prog)
		if err != nil {
			return convert(ec.Specifier, err)
		}
		fn, ok := goja.AssertFunction(fnVal)
		if !ok {
			return errors.New(errors.PhaseExecute, errors.KindInvalidResult).
				Specifier(ec.Specifier).
				Detail("module body did not evaluate to a function").
				Build()
		}

		c := rt.NewObject()
		_ = c.Set("specifier", ec.Specifier)
		if ec.Import != nil {
			_ = c.Set("import", func(spec string) goja.Value {
				ns, err := ec.Import(ctx, spec)
				if err != nil {
					panic(rt.NewGoError(err))
				}
				return b.namespace(ns)
			})
		}
		if ec.ImportMeta != nil {
			_ = c.Set("meta", rt.ToValue(map[string]any(ec.ImportMeta)))
		}

		_, err = fn(goja.Undefined(), rt.NewDynamicObject(&envObject{b: b, env: env}), c)
		return convert(ec.Specifier, err)
	}
}

// convert maps a goja failure to an execution error, unwrapping Go errors
// thrown through the runtime.
func convert(spec string, err error) error {
	if err == nil {
		return nil
	}

	var ie *goja.InterruptedError
	if errors.As(err, &ie) {
		if cause, ok := ie.Value().(error); ok {
			return errors.Execution(spec, cause)
		}
		return errors.Execution(spec, err)
	}

	var ex *goja.Exception
	if errors.As(err, &ex) {
		if obj, ok := ex.Value().(*goja.Object); ok {
			if v := obj.Get("value"); v != nil {
				if goErr, ok := v.Export().(error); ok {
					return errors.Execution(spec, goErr)
				}
			}
		}
		return errors.New(errors.PhaseExecute, errors.KindFailed).
			Specifier(spec).
			Detail("uncaught exception: %s", ex.Value().String()).
			Value(ex.Value().Export()).
			Cause(ex).
			Build()
	}
	return errors.Execution(spec, err)
}

const directivePrefix = "//@"

// Compiler compiles JavaScript module text. The text starts with directive
// comments that declare what the module body cannot express by itself:
//
//	//@binding {"import": "x", "from": "./b.js"}
//	//@binding {"export": "y"}
//	//@needs import
//	//@needs meta
//
// The rest of the text is the module body as accepted by Source.
type Compiler struct{}

var _ compartment.Compiler = Compiler{}

// Compile parses the directives and compiles the body.
func (Compiler) Compile(_ context.Context, spec string, text []byte) (*module.StaticRecord, error) {
	m, err := Parse(spec, text)
	if err != nil {
		return nil, err
	}
	src, err := Source(m)
	if err != nil {
		return nil, err
	}

	var opts []module.RecordOption
	if src.NeedsImport {
		opts = append(opts, module.WithImport())
	}
	if src.NeedsImportMeta {
		opts = append(opts, module.WithImportMeta())
	}
	return module.NewStaticRecord(src.Bindings, src.Execute, opts...)
}

// Parse splits module text into its directives and body.
func Parse(name string, text []byte) (Module, error) {
	m := Module{Name: name, Code: string(text)}
	sc := bufio.NewScanner(bytes.NewReader(text))
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" {
			continue
		}
		if !strings.HasPrefix(s, directivePrefix) {
			break
		}

		directive, arg, _ := strings.Cut(strings.TrimPrefix(s, directivePrefix), " ")
		arg = strings.TrimSpace(arg)
		switch directive {
		case "binding":
			var b module.Binding
			if err := json.Unmarshal([]byte(arg), &b); err != nil {
				return Module{}, errors.New(errors.PhaseCompile, errors.KindInvalidBinding).
					Specifier(name).
					Detail("binding directive on line %d", line).
					Cause(err).
					Build()
			}
			m.Bindings = append(m.Bindings, b)
		case "needs":
			switch arg {
			case "import":
				m.NeedsImport = true
			case "meta":
				m.NeedsImportMeta = true
			default:
				return Module{}, errors.Compile(name, "unknown capability "+arg, nil)
			}
		default:
			return Module{}, errors.Compile(name, "unknown directive "+directive, nil)
		}
	}
	if err := sc.Err(); err != nil {
		return Module{}, errors.Compile(name, "read module text", err)
	}
	return m, nil
}
