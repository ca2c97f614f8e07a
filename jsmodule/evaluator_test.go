package jsmodule

import (
	"context"
	"testing"

	"github.com/wippyai/modgraph/compartment"
	"github.com/wippyai/modgraph/errors"
	"github.com/wippyai/modgraph/module"
)

func TestEvaluator(t *testing.T) {
	ev := NewEvaluator(nil)
	c := compartment.New(compartment.Options{
		Evaluator: ev,
		Modules: map[string]compartment.Descriptor{
			"/a.js": mustSource(t, Module{
				Name:     "/a.js",
				Bindings: []module.Binding{module.Export("greet")},
				Code:     `module.greet = function(who) { return "hello " + who; };`,
			}),
		},
	})
	ctx := context.Background()

	tests := []struct {
		name   string
		source string
		want   any
	}{
		{"completion value", "1 + 2", int64(3)},
		{"globals persist", "var total = 40; total + 2", int64(42)},
		{"reads earlier globals", "total", int64(40)},
		{"importNow", `importNow("/a.js").greet("sync")`, "hello sync"},
		{"importModule", `importModule("/a.js").greet("async")`, "hello async"},
		{"undefined", "undefined", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Evaluate(ctx, tt.source)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %v (%T), want %v", tt.source, got, got, tt.want)
			}
		})
	}
}

func TestEvaluator_Errors(t *testing.T) {
	ev := NewEvaluator(nil)
	c := compartment.New(compartment.Options{Evaluator: ev})
	ctx := context.Background()

	if _, err := c.Evaluate(ctx, `throw new Error("nope")`); err == nil {
		t.Error("expected thrown error")
	}

	_, err := c.Evaluate(ctx, `importNow("/missing.js")`)
	if !errors.Is(err, errors.ErrLoad) {
		t.Errorf("expected load error, got %v", err)
	}

	if _, err := c.Evaluate(ctx, "var kept = 1"); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	ev.Forget(c)
	got, err := c.Evaluate(ctx, "typeof kept")
	if err != nil {
		t.Fatalf("Evaluate after Forget: %v", err)
	}
	if got != "undefined" {
		t.Errorf("typeof kept after Forget = %v, want undefined", got)
	}
	ev.mu.Lock()
	n := len(ev.runtimes)
	ev.mu.Unlock()
	if n != 1 {
		t.Errorf("runtimes kept = %d, want 1", n)
	}
	ev.Forget(c)
	ev.mu.Lock()
	n = len(ev.runtimes)
	ev.mu.Unlock()
	if n != 0 {
		t.Errorf("runtimes kept after Forget = %d, want 0", n)
	}
}

func TestEvaluator_PerCompartment(t *testing.T) {
	ev := NewEvaluator(nil)
	c1 := compartment.New(compartment.Options{Evaluator: ev})
	c2 := compartment.New(compartment.Options{Evaluator: ev})
	ctx := context.Background()

	if _, err := c1.Evaluate(ctx, "var shared = 1"); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	got, err := c2.Evaluate(ctx, "typeof shared")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got != "undefined" {
		t.Errorf("typeof shared = %v, want undefined", got)
	}
}
