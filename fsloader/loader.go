package fsloader

import (
	"context"
	"encoding/json"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/wippyai/modgraph/compartment"
	"github.com/wippyai/modgraph/errors"
	"github.com/wippyai/modgraph/module"
	"github.com/wippyai/modgraph/specifier"
)

const fileScheme = "file://"

// Options configures a Loader.
type Options struct {
	// Fs is the filesystem modules are read from. Defaults to the OS
	// filesystem.
	Fs afero.Fs

	// Extensions are appended, in order, to a specifier whose file does not
	// exist. A match redirects the specifier to the file that was found.
	Extensions []string

	// ModulesDir maps bare specifiers to files below it. Bare specifiers are
	// unknown to the loader when empty.
	ModulesDir string

	// Logger receives load events. Defaults to a no-op logger.
	Logger *zap.Logger
}

// DefaultOptions returns options reading the OS filesystem with ".js" and
// ".wasm" extension fallback.
func DefaultOptions() Options {
	return Options{
		Fs:         afero.NewOsFs(),
		Extensions: []string{".js", ".wasm"},
	}
}

// Loader serves module descriptors from a filesystem. Specifiers are
// absolute slash-separated paths, optionally with a file:// prefix.
//
// JSON files load as data modules exporting the parsed document as
// "default". Any other file loads as a TextDescriptor for the compartment's
// compiler; Compilers selects one by extension.
type Loader struct {
	fs   afero.Fs
	opts Options
	log  *zap.Logger
}

// New creates a loader.
func New(opts Options) *Loader {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{fs: opts.Fs, opts: opts, log: log}
}

// Resolve resolves like specifier.Resolve and maps bare specifiers into
// ModulesDir when one is set.
func (l *Loader) Resolve(importSpec, referrer string) (string, error) {
	if l.opts.ModulesDir != "" && importSpec != "" && !specifier.IsRelative(importSpec) && !specifier.HasScheme(importSpec) {
		return path.Join("/", l.opts.ModulesDir, importSpec), nil
	}
	return specifier.Resolve(importSpec, referrer)
}

// Load implements compartment.LoadHook. It returns a nil descriptor for
// specifiers that name no file.
func (l *Loader) Load(ctx context.Context, spec string) (compartment.Descriptor, error) {
	name, ok := filePath(spec)
	if !ok {
		return nil, nil
	}

	found, data, err := l.read(name)
	if err != nil {
		return nil, errors.Load(spec, "read module file", err)
	}
	if found == "" {
		l.log.Debug("module file not found", zap.String("specifier", spec))
		return nil, nil
	}

	canonical := ""
	if found != name {
		canonical = found
		if strings.HasPrefix(spec, fileScheme) {
			canonical = fileScheme + found
		}
	}
	meta := module.Meta{"url": fileScheme + found, "filename": found}

	l.log.Debug("loaded module file",
		zap.String("specifier", spec),
		zap.String("path", found),
		zap.Int("size", len(data)))

	if path.Ext(found) == ".json" {
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, errors.Compile(spec, "invalid json module", err)
		}
		return compartment.SourceDescriptor{
			Source:     jsonSource(doc),
			ImportMeta: meta,
			Specifier:  canonical,
		}, nil
	}
	return compartment.TextDescriptor{Text: data, ImportMeta: meta, Specifier: canonical}, nil
}

// Options returns compartment options using l for resolution and loading.
func (l *Loader) Options(base compartment.Options) compartment.Options {
	base.Resolve = l.Resolve
	base.Load = l.Load
	return base
}

// read returns the first existing file among name and name plus each
// configured extension. found is empty when none exists.
func (l *Loader) read(name string) (string, []byte, error) {
	candidates := []string{name}
	for _, ext := range l.opts.Extensions {
		candidates = append(candidates, name+ext)
	}

	for _, c := range candidates {
		fi, err := l.fs.Stat(c)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", nil, err
		}
		if fi.IsDir() {
			continue
		}
		data, err := afero.ReadFile(l.fs, c)
		if err != nil {
			return "", nil, err
		}
		return c, data, nil
	}
	return "", nil, nil
}

func filePath(spec string) (string, bool) {
	spec = strings.TrimPrefix(spec, fileScheme)
	if !strings.HasPrefix(spec, "/") {
		return "", false
	}
	return path.Clean(spec), true
}

func jsonSource(doc any) *module.VirtualSource {
	return &module.VirtualSource{
		Bindings: []module.Binding{module.Export("default")},
		Execute: func(ctx context.Context, env *module.Environment, ec module.ExecContext) error {
			return env.Set("default", doc)
		},
	}
}
