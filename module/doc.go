// Package module defines the data model shared by compilers, virtual module
// authors and the compartment engine.
//
// # Main Types
//
//   - Binding: one declared import or export, in one of the JSON wire shapes
//   - StaticRecord: immutable compiled module (bindings + initialization)
//   - VirtualSource: foreign module implementing the bindings/execute protocol
//   - Environment: name to live Cell mapping of one instance
//   - Namespace: identity-stable exports object of one instance
//
// # Binding Shapes
//
//	{"import": "x", "from": "./a"}             import cell x <- a.x
//	{"import": "x", "as": "y", "from": "./a"}  import cell y <- a.x
//	{"importAllFrom": "./a", "as": "a"}        import cell a <- namespace of a
//	{"export": "x"}                            export x <- own cell x
//	{"export": "x", "as": "y"}                 export y <- own cell x
//	{"export": "x", "from": "./a"}             export x <- a.x
//	{"export": "x", "as": "y", "from": "./a"}  export y <- a.x
//	{"exportAllFrom": "./a"}                   every non-default export of a
//	{"exportAllFrom": "./a", "as": "a"}        export a <- namespace of a
//
// # Example
//
//	src := &module.VirtualSource{
//		Bindings: []module.Binding{module.Export("default")},
//		Execute: func(ctx context.Context, env *module.Environment, ec module.ExecContext) error {
//			return env.Set("default", 42)
//		},
//	}
package module
