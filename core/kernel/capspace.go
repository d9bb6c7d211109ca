package kernel

import (
	"github.com/zeroos/zeroos/core/capability"
	"github.com/zeroos/zeroos/pkg/ids"
)

// capSpace is a per-process mapping from CapSlot to Capability, created
// with the process and destroyed atomically on termination. Slots are
// dense; a freed slot may be reused.
type capSpace struct {
	slots    map[ids.CapSlot]capability.Capability
	nextSlot ids.CapSlot
	freed    []ids.CapSlot
}

func newCapSpace() *capSpace {
	return &capSpace{slots: make(map[ids.CapSlot]capability.Capability)}
}

// allocSlot returns a slot to insert a capability into, reusing a freed
// slot if one is available.
func (c *capSpace) allocSlot() ids.CapSlot {
	if n := len(c.freed); n > 0 {
		slot := c.freed[n-1]
		c.freed = c.freed[:n-1]
		return slot
	}
	slot := c.nextSlot
	c.nextSlot++
	return slot
}

func (c *capSpace) insert(slot ids.CapSlot, cap capability.Capability) {
	c.slots[slot] = cap
}

func (c *capSpace) free(slot ids.CapSlot) {
	delete(c.slots, slot)
	c.freed = append(c.freed, slot)
}

func (c *capSpace) lookup(slot ids.CapSlot) (capability.Capability, bool) {
	cap, ok := c.slots[slot]
	return cap, ok
}
