// Package bootinfo models the one-shot boot input of the allocators: the
// untyped capabilities the kernel granted to the initial thread, the window
// of empty capability slots, and the well-known initial capability slots.
//
// Discovering this information from the kernel's boot-info frame is outside
// capkit; callers either fill in a BootInfo directly or load the JSON form
// with Parse.
package bootinfo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/joshuapare/capkit/pkg/types"
)

const (
	// MinUntypedBits is the smallest untyped size exponent the kernel creates.
	MinUntypedBits = 4
	// MaxUntypedBits bounds the size exponent accepted in a descriptor.
	MaxUntypedBits = 47
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("bootinfo: invalid boot description")

// UntypedDesc describes one boot-granted untyped capability.
type UntypedDesc struct {
	Cap      types.CPtr
	SizeBits uint
	Paddr    types.Word
	IsDevice bool
}

// Size returns the region size in bytes.
func (d UntypedDesc) Size() uint64 { return uint64(1) << d.SizeBits }

// Contains reports whether paddr lies inside the region.
func (d UntypedDesc) Contains(paddr types.Word) bool {
	return paddr >= d.Paddr && uint64(paddr-d.Paddr) < d.Size()
}

// BootInfo is the complete boot input. It is read-only once handed to the
// allocator.
type BootInfo struct {
	// Arch names the architecture descriptor ("aarch32" or "aarch64").
	Arch string
	// CNodeSizeBits is the radix of the initial capability table.
	CNodeSizeBits uint
	// Empty is the window of unused slots in the initial capability table.
	Empty types.CapRange
	// Untyped lists the granted untyped capabilities in kernel order.
	Untyped []UntypedDesc
}

// InitCap returns the slot of a well-known initial capability.
func (b *BootInfo) InitCap(c types.InitCap) types.CPtr { return c.CPtr() }

// TotalBytes sums the sizes of the untyped regions, optionally including
// device memory.
func (b *BootInfo) TotalBytes(includeDevice bool) uint64 {
	var total uint64
	for _, d := range b.Untyped {
		if d.IsDevice && !includeDevice {
			continue
		}
		total += d.Size()
	}
	return total
}

// Validate checks the description against the kernel's invariants and a
// maximum inventory size.
func (b *BootInfo) Validate(maxItems int) error {
	if len(b.Untyped) > maxItems {
		return fmt.Errorf("%w: %d untyped items exceed the limit of %d", ErrInvalid, len(b.Untyped), maxItems)
	}
	if b.CNodeSizeBits != 0 && uint64(b.Empty.End()) > uint64(1)<<b.CNodeSizeBits {
		return fmt.Errorf("%w: empty window %s exceeds a %d-bit capability table", ErrInvalid, b.Empty, b.CNodeSizeBits)
	}
	if b.Empty.Count > 0 && b.Empty.First < types.CPtr(types.NumInitialCaps) {
		return fmt.Errorf("%w: empty window %s overlaps the initial capabilities", ErrInvalid, b.Empty)
	}

	seen := make(map[types.CPtr]struct{}, len(b.Untyped))
	for i, d := range b.Untyped {
		if d.SizeBits < MinUntypedBits || d.SizeBits > MaxUntypedBits {
			return fmt.Errorf("%w: untyped[%d] size bits %d outside [%d, %d]",
				ErrInvalid, i, d.SizeBits, MinUntypedBits, MaxUntypedBits)
		}
		if uint64(d.Paddr)&(d.Size()-1) != 0 {
			return fmt.Errorf("%w: untyped[%d] base %#x not aligned to its size %#x", ErrInvalid, i, d.Paddr, d.Size())
		}
		if b.Empty.Contains(d.Cap) {
			return fmt.Errorf("%w: untyped[%d] cap %d lies inside the empty window", ErrInvalid, i, d.Cap)
		}
		if _, dup := seen[d.Cap]; dup {
			return fmt.Errorf("%w: untyped[%d] cap %d listed twice", ErrInvalid, i, d.Cap)
		}
		seen[d.Cap] = struct{}{}
	}
	return nil
}

// -----------------------------------------------------------------------------
// JSON form
// -----------------------------------------------------------------------------

// addr decodes a physical address given either as a JSON number or as a
// string in any strconv base-0 syntax ("0x1000_0000").
type addr uint64

func (a *addr) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, perr := strconv.ParseUint(s, 0, 64)
		if perr != nil {
			return fmt.Errorf("address %q: %w", s, perr)
		}
		*a = addr(v)
		return nil
	}
	var v uint64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("address %s: %w", data, err)
	}
	*a = addr(v)
	return nil
}

func (a addr) MarshalJSON() ([]byte, error) {
	return json.Marshal(fmt.Sprintf("%#x", uint64(a)))
}

type untypedJSON struct {
	Cap      uint64 `json:"cap"`
	SizeBits uint   `json:"size_bits"`
	Paddr    addr   `json:"paddr"`
	Device   bool   `json:"device,omitempty"`
}

type bootInfoJSON struct {
	Arch          string         `json:"arch"`
	CNodeSizeBits uint           `json:"cnode_size_bits"`
	Empty         types.CapRange `json:"empty"`
	Untyped       []untypedJSON  `json:"untyped"`
}

// Parse decodes the JSON boot description. Unknown fields are rejected.
//
// Example:
//
//	{
//	  "arch": "aarch32",
//	  "cnode_size_bits": 12,
//	  "empty": {"first": 64, "count": 4032},
//	  "untyped": [{"cap": 12, "size_bits": 16, "paddr": "0x1000_0000"}]
//	}
func Parse(r io.Reader) (*BootInfo, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var raw bootInfoJSON
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("bootinfo: decode: %w", err)
	}

	b := &BootInfo{
		Arch:          raw.Arch,
		CNodeSizeBits: raw.CNodeSizeBits,
		Empty:         raw.Empty,
		Untyped:       make([]UntypedDesc, 0, len(raw.Untyped)),
	}
	for _, u := range raw.Untyped {
		b.Untyped = append(b.Untyped, UntypedDesc{
			Cap:      types.CPtr(u.Cap),
			SizeBits: u.SizeBits,
			Paddr:    types.Word(u.Paddr),
			IsDevice: u.Device,
		})
	}
	return b, nil
}

// Encode writes b in the JSON form accepted by Parse.
func Encode(w io.Writer, b *BootInfo) error {
	raw := bootInfoJSON{
		Arch:          b.Arch,
		CNodeSizeBits: b.CNodeSizeBits,
		Empty:         b.Empty,
		Untyped:       make([]untypedJSON, 0, len(b.Untyped)),
	}
	for _, d := range b.Untyped {
		raw.Untyped = append(raw.Untyped, untypedJSON{
			Cap:      uint64(d.Cap),
			SizeBits: d.SizeBits,
			Paddr:    addr(d.Paddr),
			Device:   d.IsDevice,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(raw)
}
