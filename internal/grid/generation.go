package grid

import "sync/atomic"

// Generation is the request epoch. It only moves forward; a fetch compares
// the value it captured at issue time with Current before touching state.
type Generation struct {
	n atomic.Uint64
}

// Current returns the live generation.
func (g *Generation) Current() uint64 {
	return g.n.Load()
}

// Advance increments the generation and returns the new value.
func (g *Generation) Advance() uint64 {
	return g.n.Add(1)
}

// IsCurrent reports whether captured is still the live generation.
func (g *Generation) IsCurrent(captured uint64) bool {
	return g.n.Load() == captured
}
