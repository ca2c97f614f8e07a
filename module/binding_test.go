package module

import (
	"testing"

	"github.com/wippyai/modgraph/errors"
)

func TestBindingKind(t *testing.T) {
	tests := []struct {
		name    string
		binding Binding
		want    BindingKind
		local   string
		export  string
		dep     string
	}{
		{"import", ImportFrom("x", "./a"), BindingImport, "x", "", "./a"},
		{"import as", ImportAs("x", "y", "./a"), BindingImport, "y", "", "./a"},
		{"import all", ImportAll("./a", "a"), BindingImportAll, "a", "", "./a"},
		{"export", Export("x"), BindingExport, "x", "x", ""},
		{"export as", ExportAs("x", "y"), BindingExport, "x", "y", ""},
		{"export from", ExportFrom("x", "./a"), BindingReexport, "", "x", "./a"},
		{"export as from", ExportAsFrom("x", "y", "./a"), BindingReexport, "", "y", "./a"},
		{"export all", ExportAll("./a"), BindingExportAll, "", "", "./a"},
		{"export all as", ExportAllAs("./a", "a"), BindingExportAll, "", "a", "./a"},
		{"empty", Binding{}, BindingInvalid, "", "", ""},
		{"import without from", Binding{Import: "x"}, BindingInvalid, "", "", ""},
		{"import all without as", Binding{ImportAllFrom: "./a"}, BindingInvalid, "", "", "./a"},
		{"import and export", Binding{Import: "x", Export: "x", From: "./a"}, BindingInvalid, "", "", "./a"},
		{"export all with from", Binding{ExportAllFrom: "./a", From: "./b"}, BindingInvalid, "", "", "./a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.binding.Kind(); got != tt.want {
				t.Errorf("Kind() = %v, want %v", got, tt.want)
			}
			if got := tt.binding.LocalName(); got != tt.local {
				t.Errorf("LocalName() = %q, want %q", got, tt.local)
			}
			if got := tt.binding.ExportedName(); got != tt.export {
				t.Errorf("ExportedName() = %q, want %q", got, tt.export)
			}
			if got := tt.binding.Dependency(); got != tt.dep {
				t.Errorf("Dependency() = %q, want %q", got, tt.dep)
			}
			err := tt.binding.Validate()
			if (err != nil) != (tt.want == BindingInvalid) {
				t.Errorf("Validate() = %v", err)
			}
		})
	}
}

func TestParseBindings(t *testing.T) {
	data := []byte(`[
		{"import": "x", "from": "./a"},
		{"import": "x", "as": "y", "from": "./a"},
		{"export": "z"},
		{"export": "z", "from": "./b"},
		{"export": "z", "as": "w", "from": "./b"},
		{"importAllFrom": "./c", "as": "c"},
		{"exportAllFrom": "./d"},
		{"exportAllFrom": "./d", "as": "d"}
	]`)

	bindings, err := ParseBindings(data)
	if err != nil {
		t.Fatalf("ParseBindings failed: %v", err)
	}
	if len(bindings) != 8 {
		t.Fatalf("got %d bindings, want 8", len(bindings))
	}

	want := []BindingKind{
		BindingImport, BindingImport, BindingExport, BindingReexport,
		BindingReexport, BindingImportAll, BindingExportAll, BindingExportAll,
	}
	for i, b := range bindings {
		if b.Kind() != want[i] {
			t.Errorf("binding %d kind = %v, want %v", i, b.Kind(), want[i])
		}
	}
}

func TestParseBindings_Rejects(t *testing.T) {
	tests := []string{
		`[{"import": "x"}]`,
		`[{"export": "x", "bogus": 1}]`,
		`[{}]`,
		`{"export": "x"}`,
		`not json`,
	}

	for _, data := range tests {
		_, err := ParseBindings([]byte(data))
		if err == nil {
			t.Errorf("ParseBindings(%s) expected error", data)
			continue
		}
		if !errors.Is(err, errors.ErrCompile) {
			t.Errorf("ParseBindings(%s) error %v is not a compile error", data, err)
		}
	}
}

func TestBindingString(t *testing.T) {
	b := ImportAs("x", "y", "./a")
	if s := b.String(); s != `{"import":"x","as":"y","from":"./a"}` {
		t.Errorf("String() = %s", s)
	}
}

func TestDependencies(t *testing.T) {
	deps := Dependencies([]Binding{
		ImportFrom("x", "./b"),
		Export("y"),
		ImportFrom("z", "./a"),
		ExportAll("./b"),
		ImportAll("./c", "c"),
	})

	want := []string{"./b", "./a", "./c"}
	if len(deps) != len(want) {
		t.Fatalf("Dependencies = %v, want %v", deps, want)
	}
	for i := range want {
		if deps[i] != want[i] {
			t.Errorf("Dependencies[%d] = %q, want %q", i, deps[i], want[i])
		}
	}
}

func TestNewStaticRecord(t *testing.T) {
	bindings := []Binding{Export("x")}
	r, err := NewStaticRecord(bindings, nil, WithAsync(), WithImportMeta())
	if err != nil {
		t.Fatalf("NewStaticRecord failed: %v", err)
	}

	bindings[0] = Export("mutated")
	if got := r.Bindings()[0].Export; got != "x" {
		t.Errorf("record bindings aliased caller slice: %q", got)
	}
	if !r.Async() || !r.NeedsImportMeta() || r.NeedsImport() {
		t.Error("options not applied")
	}

	if _, err := NewStaticRecord([]Binding{{Import: "x"}}, nil); !errors.Is(err, errors.ErrCompile) {
		t.Errorf("expected compile error for malformed binding, got %v", err)
	}
}
