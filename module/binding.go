package module

import (
	"bytes"
	"encoding/json"

	"github.com/wippyai/modgraph/errors"
)

// BindingKind classifies a Binding by the linking effect it has.
type BindingKind uint8

const (
	BindingInvalid   BindingKind = iota
	BindingImport                // {import, from} or {import, as, from}
	BindingImportAll             // {importAllFrom, as}
	BindingExport                // {export} or {export, as}
	BindingReexport              // {export, from} or {export, as, from}
	BindingExportAll             // {exportAllFrom} or {exportAllFrom, as}
)

func (k BindingKind) String() string {
	switch k {
	case BindingImport:
		return "import"
	case BindingImportAll:
		return "importAll"
	case BindingExport:
		return "export"
	case BindingReexport:
		return "reexport"
	case BindingExportAll:
		return "exportAll"
	default:
		return "invalid"
	}
}

// Binding declares one import or export relationship of a module.
// Exactly one of Import, Export, ImportAllFrom and ExportAllFrom is set.
type Binding struct {
	Import        string `json:"import,omitempty"`
	Export        string `json:"export,omitempty"`
	As            string `json:"as,omitempty"`
	From          string `json:"from,omitempty"`
	ImportAllFrom string `json:"importAllFrom,omitempty"`
	ExportAllFrom string `json:"exportAllFrom,omitempty"`
}

// ImportFrom returns {import: name, from: specifier}.
func ImportFrom(name, specifier string) Binding {
	return Binding{Import: name, From: specifier}
}

// ImportAs returns {import: name, as: alias, from: specifier}.
func ImportAs(name, alias, specifier string) Binding {
	return Binding{Import: name, As: alias, From: specifier}
}

// ImportAll returns {importAllFrom: specifier, as: alias}.
func ImportAll(specifier, alias string) Binding {
	return Binding{ImportAllFrom: specifier, As: alias}
}

// Export returns {export: name}.
func Export(name string) Binding {
	return Binding{Export: name}
}

// ExportAs returns {export: name, as: alias}.
func ExportAs(name, alias string) Binding {
	return Binding{Export: name, As: alias}
}

// ExportFrom returns {export: name, from: specifier}.
func ExportFrom(name, specifier string) Binding {
	return Binding{Export: name, From: specifier}
}

// ExportAsFrom returns {export: name, as: alias, from: specifier}.
func ExportAsFrom(name, alias, specifier string) Binding {
	return Binding{Export: name, As: alias, From: specifier}
}

// ExportAll returns {exportAllFrom: specifier}.
func ExportAll(specifier string) Binding {
	return Binding{ExportAllFrom: specifier}
}

// ExportAllAs returns {exportAllFrom: specifier, as: alias}.
func ExportAllAs(specifier, alias string) Binding {
	return Binding{ExportAllFrom: specifier, As: alias}
}

// Kind reports the binding shape, or BindingInvalid for malformed bindings.
func (b Binding) Kind() BindingKind {
	set := 0
	for _, s := range []string{b.Import, b.Export, b.ImportAllFrom, b.ExportAllFrom} {
		if s != "" {
			set++
		}
	}
	if set != 1 {
		return BindingInvalid
	}

	switch {
	case b.Import != "":
		if b.From == "" {
			return BindingInvalid
		}
		return BindingImport
	case b.ImportAllFrom != "":
		if b.As == "" || b.From != "" {
			return BindingInvalid
		}
		return BindingImportAll
	case b.Export != "":
		if b.From != "" {
			return BindingReexport
		}
		return BindingExport
	default:
		if b.From != "" {
			return BindingInvalid
		}
		return BindingExportAll
	}
}

// Validate reports a compile error for malformed bindings.
func (b Binding) Validate() error {
	if b.Kind() == BindingInvalid {
		return errors.InvalidBinding("malformed binding %s", b.String())
	}
	return nil
}

// Dependency returns the specifier this binding depends on, or "".
func (b Binding) Dependency() string {
	switch {
	case b.ImportAllFrom != "":
		return b.ImportAllFrom
	case b.ExportAllFrom != "":
		return b.ExportAllFrom
	default:
		return b.From
	}
}

// LocalName returns the environment name the binding occupies in its own
// module, or "" for bindings that bypass the environment.
func (b Binding) LocalName() string {
	switch b.Kind() {
	case BindingImport:
		if b.As != "" {
			return b.As
		}
		return b.Import
	case BindingImportAll:
		return b.As
	case BindingExport:
		return b.Export
	default:
		return ""
	}
}

// ExportedName returns the name the binding contributes to the exports
// namespace, or "" for imports and flattened export-all bindings.
func (b Binding) ExportedName() string {
	switch b.Kind() {
	case BindingExport, BindingReexport:
		if b.As != "" {
			return b.As
		}
		return b.Export
	case BindingExportAll:
		return b.As
	default:
		return ""
	}
}

// String renders the binding in its JSON wire shape.
func (b Binding) String() string {
	data, err := json.Marshal(b)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// UnmarshalJSON decodes one of the binding wire shapes, rejecting unknown keys.
func (b *Binding) UnmarshalJSON(data []byte) error {
	type wire Binding
	var w wire
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return errors.New(errors.PhaseCompile, errors.KindInvalidBinding).
			Detail("decode binding").
			Cause(err).
			Build()
	}
	candidate := Binding(w)
	if err := candidate.Validate(); err != nil {
		return err
	}
	*b = candidate
	return nil
}

// ParseBindings decodes a JSON array of bindings.
func ParseBindings(data []byte) ([]Binding, error) {
	var bindings []Binding
	if err := json.Unmarshal(data, &bindings); err != nil {
		var e *errors.Error
		if errors.As(err, &e) {
			return nil, e
		}
		return nil, errors.New(errors.PhaseCompile, errors.KindInvalidBinding).
			Detail("decode bindings").
			Cause(err).
			Build()
	}
	return bindings, nil
}

// ValidateBindings checks every binding and returns the first failure.
func ValidateBindings(bindings []Binding) error {
	for i, b := range bindings {
		if err := b.Validate(); err != nil {
			return errors.New(errors.PhaseCompile, errors.KindInvalidBinding).
				Detail("binding %d: %s", i, b.String()).
				Cause(err).
				Build()
		}
	}
	return nil
}

// Dependencies returns the distinct dependency specifiers of bindings in
// declaration order.
func Dependencies(bindings []Binding) []string {
	seen := make(map[string]struct{}, len(bindings))
	var deps []string
	for _, b := range bindings {
		dep := b.Dependency()
		if dep == "" {
			continue
		}
		if _, ok := seen[dep]; ok {
			continue
		}
		seen[dep] = struct{}{}
		deps = append(deps, dep)
	}
	return deps
}
