package fsloader

import (
	"context"
	"path"

	"github.com/wippyai/modgraph/compartment"
	"github.com/wippyai/modgraph/errors"
	"github.com/wippyai/modgraph/module"
)

// Compilers dispatches module text to a compiler by the specifier's file
// extension, for example ".wasm" and ".js".
type Compilers map[string]compartment.Compiler

var _ compartment.Compiler = Compilers(nil)

// Compile implements compartment.Compiler.
func (m Compilers) Compile(ctx context.Context, spec string, text []byte) (*module.StaticRecord, error) {
	ext := path.Ext(spec)
	c, ok := m[ext]
	if !ok {
		return nil, errors.New(errors.PhaseCompile, errors.KindUnsupported).
			Specifier(spec).
			Detail("no compiler for %q files", ext).
			Build()
	}
	return c.Compile(ctx, spec, text)
}
