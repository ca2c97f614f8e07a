package wasmmodule

import (
	"context"
	"sort"
	"sync"

	uuid "github.com/satori/go.uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/modgraph/compartment"
	"github.com/wippyai/modgraph/errors"
	"github.com/wippyai/modgraph/module"
	"github.com/wippyai/modgraph/wasmmodule/internal/rewrite"
)

// Config holds configuration for compiler creation
type Config struct {
	// Cache shares compiled machine code between compilers. A private
	// cache is used when nil.
	Cache wazero.CompilationCache

	// Logger receives compile and instantiate events. Defaults to a no-op
	// logger.
	Logger *zap.Logger

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32
}

// Compiler compiles WebAssembly binaries into static records. Each instance
// of a record is instantiated in the compiler's wazero runtime with its own
// host modules, so one record can back instances in many compartments.
type Compiler struct {
	runtime wazero.Runtime
	log     *zap.Logger
	mu      sync.Mutex
	closed  bool
}

var _ compartment.Compiler = (*Compiler)(nil)

// New creates a compiler with default configuration.
func New(ctx context.Context) (*Compiler, error) {
	return NewWithConfig(ctx, nil)
}

// NewWithConfig creates a compiler with custom configuration.
func NewWithConfig(ctx context.Context, cfg *Config) (*Compiler, error) {
	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	log := zap.NewNop()
	cache := wazero.NewCompilationCache()

	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.Cache != nil {
			cache = cfg.Cache
		}
		if cfg.Logger != nil {
			log = cfg.Logger
		}
	}
	runtimeCfg = runtimeCfg.WithCompilationCache(cache)

	return &Compiler{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		log:     log,
	}, nil
}

// Runtime returns the underlying wazero runtime.
func (c *Compiler) Runtime() wazero.Runtime {
	return c.runtime
}

// Close releases the runtime and every module instantiated in it.
func (c *Compiler) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.runtime.Close(ctx)
}

type importDef struct {
	module  string
	name    string
	local   string
	params  []api.ValueType
	results []api.ValueType
}

type shape struct {
	imports  []importDef
	funcs    []string
	memories []string
}

// Compile validates wasm and derives its bindings: one import per imported
// function, bound locally as "module#name", and one export per exported
// function or memory.
func (c *Compiler) Compile(ctx context.Context, spec string, wasm []byte) (*module.StaticRecord, error) {
	compiled, err := c.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Compile(spec, "invalid wasm module", err)
	}
	defer compiled.Close(ctx)

	if mems := compiled.ImportedMemories(); len(mems) > 0 {
		mod, name, _ := mems[0].Import()
		return nil, errors.New(errors.PhaseCompile, errors.KindUnsupported).
			Specifier(spec).
			Detail("memory import %s.%s is not supported", mod, name).
			Build()
	}

	s := &shape{}
	var bindings []module.Binding
	seen := make(map[string]bool)
	for _, fn := range compiled.ImportedFunctions() {
		mod, name, _ := fn.Import()
		if mod == "" {
			return nil, errors.Compile(spec, "import with empty module name", nil)
		}
		local := mod + "#" + name
		s.imports = append(s.imports, importDef{
			module:  mod,
			name:    name,
			local:   local,
			params:  fn.ParamTypes(),
			results: fn.ResultTypes(),
		})
		if !seen[local] {
			seen[local] = true
			bindings = append(bindings, module.ImportAs(name, local, mod))
		}
	}

	for name := range compiled.ExportedFunctions() {
		s.funcs = append(s.funcs, name)
	}
	for name := range compiled.ExportedMemories() {
		s.memories = append(s.memories, name)
	}
	sort.Strings(s.funcs)
	sort.Strings(s.memories)
	for _, name := range s.funcs {
		bindings = append(bindings, module.Export(name))
	}
	for _, name := range s.memories {
		bindings = append(bindings, module.Export(name))
	}

	c.log.Debug("compiled wasm module",
		zap.String("specifier", spec),
		zap.Int("imports", len(s.imports)),
		zap.Int("exports", len(s.funcs)+len(s.memories)))

	src := make([]byte, len(wasm))
	copy(src, wasm)
	return module.NewStaticRecord(bindings, func(ctx context.Context, env *module.Environment, ec module.ExecContext) error {
		return c.instantiate(ctx, ec.Specifier, src, s, env)
	})
}

// instantiate renames the binary's import modules to names private to this
// instance, provides host modules that forward to the environment's import
// cells, and binds the exports.
func (c *Compiler) instantiate(ctx context.Context, spec string, src []byte, s *shape, env *module.Environment) error {
	prefix := spec + "@" + uuid.NewV4().String()
	hostName := func(m string) string { return prefix + "|" + m }

	bin := src
	if len(s.imports) > 0 {
		var err error
		bin, err = rewrite.RenameImportModules(src, hostName)
		if err != nil {
			return errors.Compile(spec, "rewrite imports", err)
		}
	}

	compiled, err := c.runtime.CompileModule(ctx, bin)
	if err != nil {
		return errors.Compile(spec, "invalid wasm module", err)
	}

	groups := make(map[string][]importDef)
	var order []string
	for _, imp := range s.imports {
		if _, ok := groups[imp.module]; !ok {
			order = append(order, imp.module)
		}
		groups[imp.module] = append(groups[imp.module], imp)
	}

	for _, mod := range order {
		b := c.runtime.NewHostModuleBuilder(hostName(mod))
		exported := make(map[string]bool)
		for _, imp := range groups[mod] {
			if exported[imp.name] {
				continue
			}
			exported[imp.name] = true
			cell, ok := env.Cell(imp.local)
			if !ok {
				return errors.New(errors.PhaseExecute, errors.KindNotFound).
					Specifier(spec).
					Name(imp.local).
					Detail("import is not bound").
					Build()
			}
			b.NewFunctionBuilder().
				WithGoModuleFunction(importHandler(spec, imp.local, cell, len(imp.params), len(imp.results)), imp.params, imp.results).
				Export(imp.name)
		}
		if _, err := b.Instantiate(ctx); err != nil {
			return errors.New(errors.PhaseExecute, errors.KindFailed).
				Specifier(spec).
				Detail("instantiate host module for %s", mod).
				Cause(err).
				Build()
		}
	}

	inst, err := c.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(prefix))
	if err != nil {
		return errors.Execution(spec, err)
	}

	for _, name := range s.funcs {
		if err := env.Set(name, &Function{fn: inst.ExportedFunction(name), name: name}); err != nil {
			return err
		}
	}
	for _, name := range s.memories {
		if err := env.Set(name, inst.ExportedMemory(name)); err != nil {
			return err
		}
	}

	c.log.Debug("instantiated wasm module",
		zap.String("specifier", spec),
		zap.String("instance", prefix))
	return nil
}
