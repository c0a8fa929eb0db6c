// Package extension implements the per-packet metadata negotiation for a
// queue: which optional extension blocks (checksum, LSO, vendor-private) are
// active, and at which byte offset each one lives inside a packet
// descriptor's extension region. The final layout is computed once at queue
// creation and is immutable afterwards.
package extension

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/netqx/netqx/verifier"
)

const (
	// NaturalAlignment is the alignment of a packet descriptor itself; no
	// extension may demand more.
	NaturalAlignment = 16

	// MaxExtensionSize bounds a single extension block.
	MaxExtensionSize = 64

	// ReservedPrefix marks extension names owned by the framework. Only
	// the well-known triples below may use it.
	ReservedPrefix = "ms_"

	ChecksumName     = "ms_packet_checksum"
	ChecksumVersion1 = 1
	ChecksumV1Size   = 4

	LSOName     = "ms_packet_lso"
	LSOVersion1 = 1
	LSOV1Size   = 8
)

// Extension describes one optional per-packet metadata block, identified by
// (name, version). Alignment is a power of two bounded by NaturalAlignment.
type Extension struct {
	Name      string
	Version   uint32
	Size      uint32
	Alignment uint32
}

// Checksum returns the well-known checksum extension descriptor.
func Checksum() Extension {
	return Extension{Name: ChecksumName, Version: ChecksumVersion1, Size: ChecksumV1Size, Alignment: 4}
}

// LSO returns the well-known large-send-offload extension descriptor.
func LSO() Extension {
	return Extension{Name: LSOName, Version: LSOVersion1, Size: LSOV1Size, Alignment: 8}
}

// reservedSizes maps a reserved (name, version) pair to the only size it may
// carry.
var reservedSizes = map[string]map[uint32]uint32{
	ChecksumName: {ChecksumVersion1: ChecksumV1Size},
	LSOName:      {LSOVersion1: LSOV1Size},
}

func isReservedName(name string) bool {
	return len(name) >= len(ReservedPrefix) && name[:len(ReservedPrefix)] == ReservedPrefix
}

// Validate checks the extension descriptor against the registration
// contract. Violations are programming errors and halt through the verifier.
func Validate(l logrus.FieldLogger, e Extension) {
	verifier.Verify(l, e.Name != "", verifier.FailureCodeInvalidExtensionName,
		"extension name is empty")
	verifier.Verify(l, e.Version != 0, verifier.FailureCodeInvalidExtensionVersion,
		"extension %q", e.Name)
	verifier.Verify(l,
		verifier.IsPowerOfTwo(e.Alignment) && e.Alignment <= NaturalAlignment,
		verifier.FailureCodeInvalidExtensionAlignment,
		"extension %q alignment %d", e.Name, e.Alignment)
	verifier.Verify(l, e.Size != 0 && e.Size <= MaxExtensionSize,
		verifier.FailureCodeInvalidExtensionSize,
		"extension %q size %d", e.Name, e.Size)

	if isReservedName(e.Name) {
		versions, known := reservedSizes[e.Name]
		verifier.Verify(l, known, verifier.FailureCodeInvalidExtensionName,
			"extension %q uses the reserved prefix", e.Name)

		wantSize, knownVersion := versions[e.Version]
		if !knownVersion || e.Size != wantSize {
			verifier.Report(l, verifier.FailureCodeExtensionVersionedSizeMismatch,
				"extension %q version %d size %d", e.Name, e.Version, e.Size)
		}
	}
}

// ValidateQuery checks the fields a lookup needs: a query carries no size or
// alignment, only identity.
func ValidateQuery(l logrus.FieldLogger, name string, version uint32) {
	verifier.Verify(l, name != "", verifier.FailureCodeInvalidExtensionName,
		"extension query name is empty")
	if isReservedName(name) {
		_, known := reservedSizes[name]
		verifier.Verify(l, known, verifier.FailureCodeInvalidExtensionName,
			"extension query %q uses the reserved prefix", name)
	}
	verifier.Verify(l, version != 0, verifier.FailureCodeInvalidExtensionVersion,
		"extension query %q", name)
}

// Registry accumulates validated extensions ahead of layout resolution. The
// adapter keeps one for its advertised set; a queue creation context keeps one
// for client-requested additions.
type Registry struct {
	l       logrus.FieldLogger
	entries []Extension
}

// NewRegistry returns an empty registry logging through l.
func NewRegistry(l logrus.FieldLogger) *Registry {
	return &Registry{l: l}
}

// Register validates the extension and adds it to the set. Registering the
// same (name, version) twice is a no-op when the descriptors agree and a
// contract violation when they conflict.
func (r *Registry) Register(e Extension) {
	Validate(r.l, e)

	for _, have := range r.entries {
		if have.Name == e.Name && have.Version == e.Version {
			verifier.Verify(r.l, have == e,
				verifier.FailureCodeInvalidExtensionSize,
				"extension %q version %d registered twice with conflicting layout",
				e.Name, e.Version)
			return
		}
	}
	r.entries = append(r.entries, e)
}

// Extensions returns a copy of the registered set.
func (r *Registry) Extensions() []Extension {
	out := make([]Extension, len(r.entries))
	copy(out, r.entries)
	return out
}

// ResolvedExtension is one entry of a resolved layout: the extension plus its
// assigned byte offset inside the descriptor extension region.
type ResolvedExtension struct {
	Extension
	Offset uint32
}

// Layout is the immutable offset table shared read-only by every descriptor
// access path of a queue.
type Layout struct {
	entries []ResolvedExtension
	size    uint32
}

// ResolveLayout merges the adapter-advertised set with the client-requested
// set and assigns each resulting extension a non-overlapping,
// alignment-respecting byte offset. Resolution is deterministic: extensions
// are packed in descending alignment order (ties broken by size, then name),
// so independent resolutions of the same sets agree.
func ResolveLayout(l logrus.FieldLogger, advertised, requested []Extension) *Layout {
	merged := NewRegistry(l)
	for _, e := range advertised {
		merged.Register(e)
	}
	for _, e := range requested {
		merged.Register(e)
	}

	entries := merged.entries
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Alignment != b.Alignment {
			return a.Alignment > b.Alignment
		}
		if a.Size != b.Size {
			return a.Size > b.Size
		}
		return a.Name < b.Name
	})

	layout := &Layout{}
	var offset uint32
	for _, e := range entries {
		offset = alignUp(offset, e.Alignment)
		layout.entries = append(layout.entries, ResolvedExtension{Extension: e, Offset: offset})
		offset += e.Size
	}
	layout.size = offset
	return layout
}

func alignUp(v, align uint32) uint32 {
	return (v + align - 1) &^ (align - 1)
}

// Size returns the total extension region size a descriptor must carry for
// this layout.
func (l *Layout) Size() uint32 {
	return l.size
}

// Entries returns a copy of the resolved offset table.
func (l *Layout) Entries() []ResolvedExtension {
	out := make([]ResolvedExtension, len(l.entries))
	copy(out, l.entries)
	return out
}

// Get looks up the resolved entry for (name, version).
func (l *Layout) Get(name string, version uint32) (ResolvedExtension, bool) {
	for _, e := range l.entries {
		if e.Name == name && e.Version == version {
			return e, true
		}
	}
	return ResolvedExtension{}, false
}
