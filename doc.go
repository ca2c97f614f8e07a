// Package modgraph loads, links and executes graphs of modules inside
// compartments.
//
// A compartment owns a module table: it maps full specifiers to descriptors,
// loads each module's record once, links imports to the live cells that back
// exports, and runs every module once with its dependencies first. Modules
// come from compiled static records, Go virtual sources, text compiled on
// demand, plain objects, or other compartments.
//
// # Packages
//
//	modgraph/
//	├── compartment/   Compartment, descriptors, loading, linking, execution
//	├── module/        Bindings, cells, environments, namespaces, records
//	├── specifier/     Default specifier resolution
//	├── errors/        Structured errors by phase and kind
//	├── wasmmodule/    Core WebAssembly modules on wazero
//	├── jsmodule/      JavaScript modules and evaluation on goja
//	└── fsloader/      Resolve and load hooks over an afero filesystem
//
// # Quick Start
//
//	c := compartment.New(compartment.Options{
//	    Modules: map[string]compartment.Descriptor{
//	        "/config.js": compartment.ObjectDescriptor{Object: map[string]any{"port": 8080}},
//	        "/main.js": compartment.SourceDescriptor{Source: &module.VirtualSource{
//	            Bindings: []module.Binding{
//	                module.ImportFrom("port", "./config.js"),
//	                module.Export("addr"),
//	            },
//	            Execute: func(ctx context.Context, env *module.Environment, ec module.ExecContext) error {
//	                port, err := env.Get("port")
//	                if err != nil {
//	                    return err
//	                }
//	                return env.Set("addr", fmt.Sprintf(":%v", port))
//	            },
//	        }},
//	    },
//	})
//
//	ns, err := c.Import(ctx, "/main.js")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	addr, _ := ns.Get("addr")
//
// # Thread Safety
//
// Compartments are safe for concurrent use. Concurrent imports of one
// specifier share a single load and a single execution. Values stored in
// cells are shared as-is; values that are not safe for concurrent use, such
// as JavaScript functions, must be synchronized by the host.
package modgraph
