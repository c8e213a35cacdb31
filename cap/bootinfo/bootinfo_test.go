package bootinfo

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/capkit/pkg/types"
)

const sampleJSON = `{
  "arch": "aarch32",
  "cnode_size_bits": 12,
  "empty": {"first": 64, "count": 4032},
  "untyped": [
    {"cap": 12, "size_bits": 16, "paddr": "0x1000_0000"},
    {"cap": 13, "size_bits": 20, "paddr": 3221225472, "device": true}
  ]
}`

func TestParse(t *testing.T) {
	b, err := Parse(strings.NewReader(sampleJSON))
	require.NoError(t, err)

	assert.Equal(t, "aarch32", b.Arch)
	assert.Equal(t, uint(12), b.CNodeSizeBits)
	assert.Equal(t, types.CapRange{First: 64, Count: 4032}, b.Empty)
	require.Len(t, b.Untyped, 2)

	assert.Equal(t, UntypedDesc{Cap: 12, SizeBits: 16, Paddr: 0x1000_0000}, b.Untyped[0])
	assert.Equal(t, types.Word(0xC000_0000), b.Untyped[1].Paddr)
	assert.True(t, b.Untyped[1].IsDevice)

	require.NoError(t, b.Validate(256))
	assert.Equal(t, uint64(1<<16), b.TotalBytes(false))
	assert.Equal(t, uint64(1<<16+1<<20), b.TotalBytes(true))
	assert.Equal(t, types.CPtr(2), b.InitCap(types.InitThreadCNode))
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse(strings.NewReader(`{"arch":"aarch32","bogus":1}`))
	require.Error(t, err)
}

func TestParse_BadAddress(t *testing.T) {
	_, err := Parse(strings.NewReader(`{"untyped":[{"cap":12,"size_bits":16,"paddr":"zz"}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zz")
}

func TestEncodeRoundTrip(t *testing.T) {
	b, err := Parse(strings.NewReader(sampleJSON))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, b))
	assert.Contains(t, buf.String(), `"0x10000000"`)

	again, err := Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, b, again)
}

func TestValidate(t *testing.T) {
	base := func() *BootInfo {
		return &BootInfo{
			CNodeSizeBits: 12,
			Empty:         types.CapRange{First: 64, Count: 100},
			Untyped:       []UntypedDesc{{Cap: 12, SizeBits: 16, Paddr: 0x1000_0000}},
		}
	}

	tests := []struct {
		name   string
		mutate func(b *BootInfo)
		want   string
	}{
		{"too many items", func(b *BootInfo) {
			b.Untyped = append(b.Untyped, UntypedDesc{Cap: 13, SizeBits: 12, Paddr: 0x2000_0000})
		}, "exceed the limit"},
		{"size too small", func(b *BootInfo) { b.Untyped[0].SizeBits = 3 }, "size bits 3"},
		{"misaligned base", func(b *BootInfo) { b.Untyped[0].Paddr = 0x1000_1000 }, "not aligned"},
		{"cap inside empty window", func(b *BootInfo) { b.Untyped[0].Cap = 70 }, "inside the empty window"},
		{"window past table", func(b *BootInfo) { b.Empty.Count = 5000 }, "exceeds a 12-bit"},
		{"window over init caps", func(b *BootInfo) { b.Empty.First = 3 }, "initial capabilities"},
		{"duplicate cap", func(b *BootInfo) {
			b.Untyped = append(b.Untyped, UntypedDesc{Cap: 12, SizeBits: 12, Paddr: 0x2000_0000})
		}, "listed twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := base()
			tt.mutate(b)
			limit := 256
			if tt.name == "too many items" {
				limit = 1
			}
			err := b.Validate(limit)
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestUntypedDesc_Contains(t *testing.T) {
	d := UntypedDesc{SizeBits: 16, Paddr: 0x1000_0000}
	assert.True(t, d.Contains(0x1000_0000))
	assert.True(t, d.Contains(0x1000_FFFF))
	assert.False(t, d.Contains(0x1001_0000))
	assert.False(t, d.Contains(0x0FFF_FFFF))
}
