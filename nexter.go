package canopy

import (
	"sync/atomic"
)

// Nexter hands out increasing ids, starting at 0. It is safe for concurrent
// use.
type Nexter struct {
	id uint64
}

// NewNexter creates a new id generator.
func NewNexter() *Nexter {
	return &Nexter{}
}

// Next returns the next id.
func (n *Nexter) Next() uint64 {
	return atomic.AddUint64(&n.id, 1) - 1
}
