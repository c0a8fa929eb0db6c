package ring

// Collection is the immutable per-queue aggregate of the named rings a queue
// drives. It is assembled once during queue initialization and read-only
// afterwards, so every descriptor access path may share it without
// synchronization.
type Collection struct {
	rings [NumTypes]*Ring
}

// NewCollection builds a collection from the given rings. A queue always has
// a packet ring; the fragment ring is optional.
func NewCollection(rings ...*Ring) *Collection {
	c := &Collection{}
	for _, r := range rings {
		c.rings[r.RingType()] = r
	}
	return c
}

// Get returns the ring filling the given role, or nil if the queue was
// created without one.
func (c *Collection) Get(t Type) *Ring {
	if int(t) >= NumTypes {
		return nil
	}
	return c.rings[t]
}

// Packet returns the packet ring.
func (c *Collection) Packet() *Ring {
	return c.rings[TypePacket]
}

// Fragment returns the fragment ring, or nil if the queue has none.
func (c *Collection) Fragment() *Ring {
	return c.rings[TypeFragment]
}
