// Package wasmmodule compiles core WebAssembly binaries into static module
// records backed by wazero.
//
// Each imported function becomes an import binding: function "name" of
// import module "mod" binds local "mod#name" from the specifier "mod", which
// the compartment resolves like any other import. Exported functions and
// memories become export bindings.
//
// Executing a record instantiates the binary. The import section of each
// instance is rewritten to point at host modules private to that instance,
// and the host functions read their import cells on every call, so one
// compiled record can back instances in many compartments.
package wasmmodule
