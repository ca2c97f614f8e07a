package module

import "sync"

// Cell is a live storage slot shared between the environment that owns a
// binding and every namespace or importer linked to it.
type Cell struct {
	value any
	set   bool
	mu    sync.RWMutex
}

// NewCell returns an uninitialized cell.
func NewCell() *Cell {
	return &Cell{}
}

// ConstCell returns a cell already holding v.
func ConstCell(v any) *Cell {
	return &Cell{value: v, set: true}
}

// Load returns the current value and whether the cell has been assigned.
func (c *Cell) Load() (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.set
}

// Store assigns v.
func (c *Cell) Store(v any) {
	c.mu.Lock()
	c.value = v
	c.set = true
	c.mu.Unlock()
}

// Initialized reports whether the cell has been assigned.
func (c *Cell) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.set
}
