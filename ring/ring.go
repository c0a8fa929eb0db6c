// Package ring implements the fixed-capacity circular descriptor rings at the
// heart of the datapath. A Ring holds packet descriptors, never payload
// memory, and is driven concurrently by two execution contexts that must not
// block on each other:
//
//   - the OS-facing context produces descriptors at the end cursor and later
//     collects completed ones through its own progress cursor,
//   - the NIC-facing context drains descriptors from the begin cursor,
//     advancing it as the hardware finishes with each slot.
//
// The two boundary cursors are the only shared state; they are published with
// atomic stores and observed with atomic loads. Capacity is always a power of
// two so index arithmetic reduces to masking, and one slot is always kept
// empty so a full ring is never index-equal to an empty one.
package ring

import (
	"sync/atomic"

	"github.com/netqx/netqx/verifier"
)

// Type names the role a ring plays inside a queue.
type Type uint8

const (
	// TypePacket holds one descriptor per packet.
	TypePacket Type = iota
	// TypeFragment holds one descriptor per payload fragment.
	TypeFragment

	NumTypes = int(TypeFragment) + 1
)

func (t Type) String() string {
	switch t {
	case TypePacket:
		return "packet"
	case TypeFragment:
		return "fragment"
	}
	return "unknown"
}

// Ring is a circular buffer of descriptors with independent producer and
// consumer boundary cursors plus a private OS-side progress cursor.
//
// Slot ownership at any instant:
//
//	[begin, end)   owned by the NIC-facing context, waiting to be drained
//	[end, begin-1) free, available to the OS-facing producer
//	[osNext, begin) completed by the NIC, not yet collected by the OS
type Ring struct {
	rtype        Type
	elementCount uint32
	mask         uint32

	// begin is advanced only by the NIC-facing context, end only by the
	// OS-facing context. Each side reads the other's cursor with an
	// atomic load.
	begin atomic.Uint32
	end   atomic.Uint32

	// osNext tracks how far the OS-facing context has collected completed
	// descriptors. It trails begin and is touched by one context only.
	osNext uint32

	slots []Descriptor

	counters Counters
}

// New allocates a ring of elementCount descriptor slots, each carrying
// extensionSize bytes of extension storage. elementCount must be a nonzero
// power of two; anything else is a driver programming error.
func New(rtype Type, elementCount uint32, extensionSize uint32) *Ring {
	verifier.VerifyPowerOfTwo(nil, elementCount, "ring element count")

	r := &Ring{
		rtype:        rtype,
		elementCount: elementCount,
		mask:         elementCount - 1,
	}
	r.Initialize(makeSlots(elementCount, extensionSize))
	return r
}

func makeSlots(elementCount, extensionSize uint32) []Descriptor {
	slots := make([]Descriptor, elementCount)
	if extensionSize > 0 {
		// One backing array for all slots keeps the extension regions
		// contiguous, the way a hardware descriptor table lays out.
		backing := make([]byte, uint64(elementCount)*uint64(extensionSize))
		for i := range slots {
			off := uint64(i) * uint64(extensionSize)
			slots[i].ext = backing[off : off+uint64(extensionSize) : off+uint64(extensionSize)]
		}
	}
	return slots
}

// Initialize binds the ring to previously allocated slot storage. Binding nil
// storage is a contract violation.
func (r *Ring) Initialize(slots []Descriptor) {
	verifier.Verify(nil, slots != nil, verifier.FailureCodeRingStorageMissing,
		"ring %s", r.rtype)
	r.slots = slots
}

// RingType returns the role this ring plays in its queue.
func (r *Ring) RingType() Type {
	return r.rtype
}

// Count returns the total slot capacity of the ring.
func (r *Ring) Count() uint32 {
	return r.elementCount
}

// Depth returns the number of descriptors currently owned by the NIC-facing
// side. It is always in [0, Count()-1]; the producer gate in NextSlotForNIC
// keeps one slot permanently free.
func (r *Ring) Depth() uint32 {
	return (r.end.Load() + r.elementCount - r.begin.Load()) & r.mask
}

// available returns the number of free slots the producer may still fill,
// reserving the one empty slot that disambiguates full from empty.
func (r *Ring) available() uint32 {
	return r.elementCount - 1 - r.Depth()
}

// NextSlotForNIC returns the next descriptor the OS-facing producer may fill
// before handing it to the NIC, or nil when the ring is full. No cursor
// moves; the slot becomes visible to the NIC only on CommitSlotToNIC.
func (r *Ring) NextSlotForNIC() *Descriptor {
	if r.available() == 0 {
		return nil
	}
	return &r.slots[r.end.Load()&r.mask]
}

// CommitSlotToNIC publishes the slot last returned by NextSlotForNIC,
// advancing the producer boundary by one. Calling it without a free slot is
// a contract violation.
func (r *Ring) CommitSlotToNIC() {
	verifier.Verify(nil, r.available() != 0, verifier.FailureCodeRingOverrun,
		"commit on full %s ring", r.rtype)
	// The atomic store orders all descriptor writes before the cursor
	// publish; the NIC side pairs it with the atomic load in Depth.
	r.end.Store((r.end.Load() + 1) & r.mask)
}

// NextSlotToComplete returns the descriptor at the front of the NIC-owned
// region, or nil when the NIC has drained everything committed so far. The
// NIC-facing context fills in completion state and then calls CompleteSlot.
func (r *Ring) NextSlotToComplete() *Descriptor {
	if r.Depth() == 0 {
		return nil
	}
	return &r.slots[r.begin.Load()&r.mask]
}

// CompleteSlot returns the slot at the consumer boundary to the OS, advancing
// the boundary by one. Calling it on an empty ring is a contract violation.
func (r *Ring) CompleteSlot() {
	verifier.Verify(nil, r.Depth() != 0, verifier.FailureCodeRingOverrun,
		"complete on empty %s ring", r.rtype)
	r.begin.Store((r.begin.Load() + 1) & r.mask)
}

// TakeSlotFromNIC returns the next descriptor the NIC has completed since the
// last call, or nil when the OS progress cursor has caught up with the
// consumer boundary. The progress cursor advances on success; it is private
// to the OS-facing context, so the two sides drain at independent rates.
func (r *Ring) TakeSlotFromNIC() *Descriptor {
	if r.osNext == r.begin.Load() {
		return nil
	}
	d := &r.slots[r.osNext&r.mask]
	r.osNext = (r.osNext + 1) & r.mask
	return d
}

// Slot returns the descriptor at the given absolute index. Used by layout
// probing and tests; index arithmetic is masked, not bounds checked.
func (r *Ring) Slot(index uint32) *Descriptor {
	return &r.slots[index&r.mask]
}
