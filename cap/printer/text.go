package printer

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/capkit/cap/alloc"
	"github.com/joshuapare/capkit/cap/bootinfo"
)

var sizeUnits = []string{"B", "KiB", "MiB", "GiB", "TiB"}

// FormatSize renders 2^bits bytes with a binary unit, e.g. 16 -> "64 KiB".
func FormatSize(bits uint) string {
	unit := min(int(bits/10), len(sizeUnits)-1)
	return message.NewPrinter(language.English).Sprintf("%d %s", uint64(1)<<(bits-uint(unit)*10), sizeUnits[unit])
}

func (p *Printer) printer() *message.Printer {
	return message.NewPrinter(p.opts.Language)
}

func (p *Printer) indent(depth int) string {
	return strings.Repeat(" ", depth*p.opts.IndentSize)
}

// printStatsText prints allocator statistics in human-readable text format.
func (p *Printer) printStatsText(s alloc.Stats) error {
	mp := p.printer()
	in := p.indent(1)

	mp.Fprintf(p.writer, "Architecture: %s\n", s.Arch)

	mp.Fprintf(p.writer, "Slots:\n")
	mp.Fprintf(p.writer, "%sFree window: %s\n", in, s.FreeWindow)
	mp.Fprintf(p.writer, "%sUsed: %d, Free: %d\n", in, s.UsedSlots, s.FreeSlots)
	if s.IgnoredFrees > 0 {
		mp.Fprintf(p.writer, "%sIgnored frees: %d\n", in, s.IgnoredFrees)
	}

	if p.opts.ShowUntyped {
		mp.Fprintf(p.writer, "Untyped (%d):\n", len(s.Untyped))
		for _, it := range s.Untyped {
			kind := "ram"
			if it.Device {
				kind = "device"
			}
			mp.Fprintf(p.writer, "%scap %d  %#x  %s  %-6s  %-9s  used %d bytes\n",
				in, it.Cap, uint64(it.Paddr), FormatSize(it.SizeBits), kind, it.State, it.Watermark)
		}
	}

	if p.opts.ShowClasses && len(s.Classes) > 0 {
		mp.Fprintf(p.writer, "Leftover untyped:\n")
		for _, c := range s.Classes {
			mp.Fprintf(p.writer, "%s%s x %d (%d runs)\n", in, FormatSize(c.SizeBits), c.Count, c.Runs)
		}
	}
	if s.LostSplits > 0 {
		mp.Fprintf(p.writer, "Lost splits: %d\n", s.LostSplits)
	}

	mp.Fprintf(p.writer, "VSpace:\n")
	mp.Fprintf(p.writer, "%sRoot: %d, Cursor: %#x, Last page table: %d\n", in, s.Root, uint64(s.Cursor), s.LastPageTable)

	mp.Fprintf(p.writer, "Kernel calls:\n")
	mp.Fprintf(p.writer, "%sRetypes: %d, Splits: %d, Halvings: %d\n", in, s.Retypes, s.Splits, s.Halvings)
	_, err := mp.Fprintf(p.writer, "%sPage tables: %d, Pages mapped: %d, Minted: %d\n", in, s.PageTables, s.PagesMapped, s.Minted)
	return err
}

// printBootInfoText prints a boot description in human-readable text format.
func (p *Printer) printBootInfoText(bi *bootinfo.BootInfo) error {
	mp := p.printer()
	in := p.indent(1)

	mp.Fprintf(p.writer, "Architecture: %s\n", bi.Arch)
	mp.Fprintf(p.writer, "Capability table: %d slots\n", uint64(1)<<bi.CNodeSizeBits)
	mp.Fprintf(p.writer, "Empty window: %s (%d slots)\n", bi.Empty, bi.Empty.Count)
	mp.Fprintf(p.writer, "Memory: %d bytes RAM, %d bytes total\n", bi.TotalBytes(false), bi.TotalBytes(true))

	_, err := mp.Fprintf(p.writer, "Untyped (%d):\n", len(bi.Untyped))
	for _, d := range bi.Untyped {
		kind := "ram"
		if d.IsDevice {
			kind = "device"
		}
		if _, err = mp.Fprintf(p.writer, "%scap %d  %#x  %s  %s\n", in, d.Cap, uint64(d.Paddr), FormatSize(d.SizeBits), kind); err != nil {
			return err
		}
	}
	return err
}
