package compartment

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// walker drives one load call over the module graph. The visited set is per
// call so that import cycles terminate.
type walker struct {
	visited map[memoKey]struct{}
}

func (w *walker) walk(ctx context.Context, c *Compartment, spec string) error {
	k := memoKey{c, spec}
	if _, ok := w.visited[k]; ok {
		return nil
	}
	w.visited[k] = struct{}{}

	if inst := c.cachedInstance(spec); inst != nil && inst.currentState() > StateLoaded {
		// linked instances have a fully loaded closure
		return nil
	}

	e, err := c.record(ctx, spec)
	if err != nil {
		return err
	}

	switch e.kind {
	case entryForward:
		return w.walk(ctx, e.target, e.targetSpec)
	case entryInstance:
		return nil
	}

	deps := c.resolvedDeps(spec)
	if deps == nil {
		deps, err = c.resolveAll(e.unit, spec)
		if err != nil {
			return err
		}
		c.mu.Lock()
		e.resolved = deps
		c.mu.Unlock()
	}

	// Start every shallow dependency before descending so that independent
	// loads overlap. Slots are requested, and their load hooks called, in
	// declaration order.
	g, gctx := errgroup.WithContext(ctx)
	var prev <-chan struct{}
	for _, d := range e.unit.deps {
		de := c.entryAfter(gctx, deps[d], prev)
		prev = de.issued
		g.Go(func() error {
			return de.wait(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, d := range e.unit.deps {
		if err := w.walk(ctx, c, deps[d]); err != nil {
			return err
		}
	}
	return nil
}
