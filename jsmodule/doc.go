// Package jsmodule implements JavaScript modules on top of the goja runtime.
//
// Source wraps a module body and its declared bindings into a
// module.VirtualSource; Compiler does the same for module text that declares
// its bindings in leading directive comments, so a compartment can load
// JavaScript files through TextDescriptor. Every instance of a module runs in
// a runtime of its own. Values cross runtimes through module cells:
// functions become Func values, namespaces keep one object identity per
// runtime, and everything else is exported to plain Go values.
//
// Evaluator gives each compartment a persistent script runtime for
// Compartment.Evaluate.
package jsmodule
