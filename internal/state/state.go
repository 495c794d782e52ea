package state

import (
	"sync"

	"github.com/yunbug/forward-optimal/internal/target"
)

// Cell holds the current best target. It is written by the selection engine
// at the end of a successful round and read by the accept loop on every
// incoming connection. Readers never observe a partially written value:
// Replace swaps the whole value under the write lock.
type Cell struct {
	mutex sync.RWMutex
	best  target.Best
	set   bool
}

func NewCell() *Cell {
	return &Cell{}
}

// Snapshot returns a copy of the current best target. The second return
// value is false until the first successful round has completed.
func (c *Cell) Snapshot() (target.Best, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.best, c.set
}

// Replace installs a new best target, discarding the previous one.
// Returns true if the winning target name changed (or was set for the
// first time), false when the same target was re-confirmed.
func (c *Cell) Replace(best target.Best) (changed bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	changed = !c.set || c.best.Name != best.Name
	c.best = best
	c.set = true
	return changed
}
