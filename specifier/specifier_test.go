package specifier

import (
	"testing"

	"github.com/wippyai/modgraph/errors"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		spec     string
		referrer string
		want     string
	}{
		{"./b.js", "/src/a.js", "/src/b.js"},
		{"../lib/b.js", "/src/app/a.js", "/src/lib/b.js"},
		{"/abs.js", "/src/a.js", "/abs.js"},
		{"./b.js", "src/a.js", "src/b.js"},
		{"./b.js", "a.js", "b.js"},
		{"./b.js", "https://example.com/pkg/a.js", "https://example.com/pkg/b.js"},
		{"../b.js", "https://example.com/pkg/sub/a.js", "https://example.com/pkg/b.js"},
		{"/b.js", "https://example.com/pkg/a.js", "https://example.com/b.js"},
		{"https://cdn.example/x.js", "/src/a.js", "https://cdn.example/x.js"},
		{"lodash", "/src/a.js", "lodash"},
		{"./b.js", "", "b.js"},
	}

	for _, tt := range tests {
		got, err := Resolve(tt.spec, tt.referrer)
		if err != nil {
			t.Errorf("Resolve(%q, %q) error: %v", tt.spec, tt.referrer, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Resolve(%q, %q) = %q, want %q", tt.spec, tt.referrer, got, tt.want)
		}
	}
}

func TestResolve_Empty(t *testing.T) {
	_, err := Resolve("", "/a.js")
	if !errors.Is(err, errors.ErrResolution) {
		t.Errorf("expected resolution error, got %v", err)
	}
}

func TestHasScheme(t *testing.T) {
	tests := []struct {
		s    string
		want bool
	}{
		{"https://x", true},
		{"file:///a", true},
		{"node:fs", true},
		{"c:/windows", false},
		{"./a", false},
		{"a", false},
		{"1x:y", false},
	}
	for _, tt := range tests {
		if got := HasScheme(tt.s); got != tt.want {
			t.Errorf("HasScheme(%q) = %v, want %v", tt.s, got, tt.want)
		}
	}
}
