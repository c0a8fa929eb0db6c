package ring

// DescriptorFlags carries the intrinsic per-packet state bits.
type DescriptorFlags uint16

const (
	// DescriptorValid marks a descriptor whose intrinsic fields have been
	// fully written by the producer.
	DescriptorValid DescriptorFlags = 1 << iota
	// DescriptorIgnore marks a descriptor the consumer should skip, used
	// when a producer has to abandon a slot it already claimed.
	DescriptorIgnore
	// DescriptorCompleted marks a descriptor the NIC-facing side has
	// finished with.
	DescriptorCompleted
)

// Descriptor is one ring slot: a fixed-layout record describing a packet (or
// one fragment of it) plus an extension region whose internal layout is
// negotiated per queue at creation time. The descriptor references payload
// memory by offset; it never owns it.
type Descriptor struct {
	// FrameOffset and FrameLength locate the payload in the externally
	// supplied frame memory.
	FrameOffset uint32
	FrameLength uint32

	// FragmentIndex and FragmentCount link a packet descriptor to its run
	// of fragment descriptors in the fragment ring.
	FragmentIndex uint32
	FragmentCount uint16

	Flags DescriptorFlags

	ext []byte
}

// Extension returns the byte region of this descriptor's extension block at
// [offset, offset+size). Offsets come from the queue's resolved extension
// layout and are trusted; a region outside the block means the layout and the
// ring were sized inconsistently, which is unrecoverable anyway, so the slice
// expression is left to panic.
func (d *Descriptor) Extension(offset, size uint32) []byte {
	return d.ext[offset : offset+size : offset+size]
}

// ExtensionCapacity returns the size of the extension block carried by this
// descriptor.
func (d *Descriptor) ExtensionCapacity() uint32 {
	return uint32(len(d.ext))
}

// Reset clears the intrinsic fields for slot reuse. Extension contents are
// left alone; their meaning is owned by whichever side writes them next.
func (d *Descriptor) Reset() {
	d.FrameOffset = 0
	d.FrameLength = 0
	d.FragmentIndex = 0
	d.FragmentCount = 0
	d.Flags = 0
}
