package extension

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netqx/netqx/util"
)

func TestValidateRejectsMalformedExtensions(t *testing.T) {
	l := util.NewTestLogger()

	valid := Extension{Name: "vendor_timestamp", Version: 1, Size: 8, Alignment: 8}
	assert.NotPanics(t, func() { Validate(l, valid) })

	cases := []struct {
		name string
		e    Extension
	}{
		{"empty name", Extension{Version: 1, Size: 4, Alignment: 4}},
		{"zero version", Extension{Name: "vendor_x", Size: 4, Alignment: 4}},
		{"zero alignment", Extension{Name: "vendor_x", Version: 1, Size: 4}},
		{"non power of two alignment", Extension{Name: "vendor_x", Version: 1, Size: 4, Alignment: 3}},
		{"alignment above natural", Extension{Name: "vendor_x", Version: 1, Size: 4, Alignment: 32}},
		{"zero size", Extension{Name: "vendor_x", Version: 1, Alignment: 4}},
		{"size above maximum", Extension{Name: "vendor_x", Version: 1, Size: MaxExtensionSize + 1, Alignment: 4}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Panics(t, func() { Validate(l, tc.e) })
		})
	}
}

func TestValidateReservedTriples(t *testing.T) {
	l := util.NewTestLogger()

	assert.NotPanics(t, func() { Validate(l, Checksum()) })
	assert.NotPanics(t, func() { Validate(l, LSO()) })

	// A reserved-prefixed name that is not a recognized extension.
	assert.Panics(t, func() {
		Validate(l, Extension{Name: "ms_vendor_thing", Version: 1, Size: 4, Alignment: 4})
	})

	// Recognized name, wrong size for the version.
	bad := Checksum()
	bad.Size = 8
	assert.Panics(t, func() { Validate(l, bad) })

	// Recognized name, unknown version.
	bad = LSO()
	bad.Version = 7
	assert.Panics(t, func() { Validate(l, bad) })
}

func TestRegistryDuplicateHandling(t *testing.T) {
	l := util.NewTestLogger()
	r := NewRegistry(l)

	r.Register(Checksum())
	r.Register(Checksum())
	assert.Len(t, r.Extensions(), 1)

	conflicting := Checksum()
	conflicting.Alignment = 2
	assert.Panics(t, func() { r.Register(conflicting) })
}

func TestResolveLayoutChecksumAndLso(t *testing.T) {
	l := util.NewTestLogger()

	// Size 8 / alignment 8 packs at offset 0, size 4 / alignment 4 after
	// it; no overlap, both aligned.
	layout := ResolveLayout(l, []Extension{Checksum()}, []Extension{LSO()})

	lso, ok := layout.Get(LSOName, LSOVersion1)
	require.True(t, ok)
	csum, ok := layout.Get(ChecksumName, ChecksumVersion1)
	require.True(t, ok)

	assert.EqualValues(t, 0, lso.Offset)
	assert.EqualValues(t, 8, csum.Offset)
	assert.EqualValues(t, 12, layout.Size())
}

func TestResolveLayoutDeterministic(t *testing.T) {
	l := util.NewTestLogger()

	exts := []Extension{
		{Name: "vendor_a", Version: 1, Size: 2, Alignment: 2},
		{Name: "vendor_b", Version: 1, Size: 16, Alignment: 16},
		{Name: "vendor_c", Version: 1, Size: 1, Alignment: 1},
		{Name: "vendor_d", Version: 1, Size: 4, Alignment: 4},
	}
	reversed := []Extension{exts[3], exts[2], exts[1], exts[0]}

	a := ResolveLayout(l, exts, nil)
	b := ResolveLayout(l, nil, reversed)
	assert.Equal(t, a.Entries(), b.Entries())
}

func TestResolveLayoutAlignmentAndOverlap(t *testing.T) {
	l := util.NewTestLogger()

	exts := []Extension{
		{Name: "vendor_a", Version: 1, Size: 3, Alignment: 1},
		{Name: "vendor_b", Version: 2, Size: 8, Alignment: 8},
		{Name: "vendor_c", Version: 1, Size: 5, Alignment: 4},
		{Name: "vendor_d", Version: 1, Size: 2, Alignment: 2},
		{Name: "vendor_e", Version: 3, Size: 16, Alignment: 16},
	}
	layout := ResolveLayout(l, exts[:2], exts[2:])

	entries := layout.Entries()
	require.Len(t, entries, 5)

	type span struct{ lo, hi uint32 }
	var spans []span
	for _, e := range entries {
		assert.Zerof(t, e.Offset%e.Alignment, "extension %q offset %d alignment %d", e.Name, e.Offset, e.Alignment)
		assert.LessOrEqual(t, e.Offset+e.Size, layout.Size())
		spans = append(spans, span{e.Offset, e.Offset + e.Size})
	}

	for i := range spans {
		for j := i + 1; j < len(spans); j++ {
			overlap := spans[i].lo < spans[j].hi && spans[j].lo < spans[i].hi
			assert.Falsef(t, overlap, "extensions %q and %q overlap", entries[i].Name, entries[j].Name)
		}
	}
}

func TestLayoutGetMissing(t *testing.T) {
	l := util.NewTestLogger()
	layout := ResolveLayout(l, []Extension{Checksum()}, nil)

	_, ok := layout.Get(LSOName, LSOVersion1)
	assert.False(t, ok)
	_, ok = layout.Get(ChecksumName, 2)
	assert.False(t, ok)
}

func TestValidateQuery(t *testing.T) {
	l := util.NewTestLogger()

	assert.NotPanics(t, func() { ValidateQuery(l, ChecksumName, 1) })
	assert.NotPanics(t, func() { ValidateQuery(l, "vendor_x", 3) })
	assert.Panics(t, func() { ValidateQuery(l, "", 1) })
	assert.Panics(t, func() { ValidateQuery(l, "vendor_x", 0) })
	assert.Panics(t, func() { ValidateQuery(l, "ms_other", 1) })
}
