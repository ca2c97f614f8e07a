package compartment

import (
	"github.com/wippyai/modgraph/module"
)

// Descriptor tells a compartment how to obtain the module for a full
// specifier. The variants are RecordDescriptor, SourceDescriptor,
// TextDescriptor, AliasDescriptor, InstanceDescriptor, NamespaceDescriptor
// and ObjectDescriptor.
type Descriptor interface {
	isDescriptor()
}

// RecordDescriptor supplies a compiled static record. A non-empty Specifier
// that differs from the requested key names the canonical specifier (for
// example the target of a redirect); both keys then share one instance.
type RecordDescriptor struct {
	Record     *module.StaticRecord
	ImportMeta module.Meta
	Specifier  string
}

// SourceDescriptor supplies a virtual module source.
type SourceDescriptor struct {
	Source     *module.VirtualSource
	ImportMeta module.Meta
	Specifier  string
}

// TextDescriptor supplies uncompiled source text for the compartment's
// Compiler.
type TextDescriptor struct {
	ImportMeta module.Meta
	Specifier  string
	Text       []byte
}

// AliasDescriptor reuses the module source that Specifier loads to in
// Compartment (the parent when nil) and instantiates it in this compartment.
type AliasDescriptor struct {
	Compartment *Compartment
	Specifier   string
}

// InstanceDescriptor shares the instance of Specifier in Compartment (the
// parent when nil).
type InstanceDescriptor struct {
	Compartment *Compartment
	Specifier   string
}

// NamespaceDescriptor shares the instance owning Namespace. Only namespaces
// produced by a compartment pass the brand check.
type NamespaceDescriptor struct {
	Namespace *module.Namespace
}

// ObjectDescriptor exposes a frozen snapshot of Object as a namespace. The
// snapshot is taken when the descriptor is loaded and is not live-linked.
type ObjectDescriptor struct {
	Object map[string]any
}

func (RecordDescriptor) isDescriptor()    {}
func (SourceDescriptor) isDescriptor()    {}
func (TextDescriptor) isDescriptor()      {}
func (AliasDescriptor) isDescriptor()     {}
func (InstanceDescriptor) isDescriptor()  {}
func (NamespaceDescriptor) isDescriptor() {}
func (ObjectDescriptor) isDescriptor()    {}

// normalize dereferences pointer descriptors so the loader dispatches on
// value types only.
func normalize(d Descriptor) Descriptor {
	switch v := d.(type) {
	case *RecordDescriptor:
		if v != nil {
			return *v
		}
	case *SourceDescriptor:
		if v != nil {
			return *v
		}
	case *TextDescriptor:
		if v != nil {
			return *v
		}
	case *AliasDescriptor:
		if v != nil {
			return *v
		}
	case *InstanceDescriptor:
		if v != nil {
			return *v
		}
	case *NamespaceDescriptor:
		if v != nil {
			return *v
		}
	case *ObjectDescriptor:
		if v != nil {
			return *v
		}
	default:
		return d
	}
	return nil
}
