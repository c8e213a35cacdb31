package printer

import (
	"io"

	"golang.org/x/text/language"

	"github.com/joshuapare/capkit/cap/alloc"
	"github.com/joshuapare/capkit/cap/bootinfo"
)

const (
	DefaultIndentSize = 2
)

// Format specifies the output format for printing.
type Format string

const (
	// FormatText outputs human-readable text format.
	FormatText Format = "text"

	// FormatJSON outputs JSON format.
	FormatJSON Format = "json"
)

// Options controls printing behavior.
type Options struct {
	// Format specifies output format (text, json).
	// Default: FormatText
	Format Format

	// IndentSize is the number of spaces per indent level (text format only).
	// Default: 2
	IndentSize int

	// ShowUntyped lists every boot untyped item.
	// Default: true
	ShowUntyped bool

	// ShowClasses lists the non-empty size classes of leftover untyped.
	// Default: true
	ShowClasses bool

	// Language selects digit grouping for counts and byte sizes (text
	// format only).
	// Default: language.English
	Language language.Tag
}

// DefaultOptions returns sensible defaults for printing.
func DefaultOptions() Options {
	return Options{
		Format:      FormatText,
		IndentSize:  DefaultIndentSize,
		ShowUntyped: true,
		ShowClasses: true,
		Language:    language.English,
	}
}

// Source is anything that can report allocator statistics.
type Source interface {
	Stats() alloc.Stats
}

// Printer handles formatted output of allocator state.
type Printer struct {
	opts   Options
	writer io.Writer
	src    Source
}

// New creates a new Printer.
//
// The Source supplies allocator statistics, the Writer receives the output,
// and Options controls formatting behavior.
//
// Example:
//
//	a, _ := alloc.New(k, bi, nil)
//	p := printer.New(a, os.Stdout, printer.DefaultOptions())
//	p.PrintStats()
func New(src Source, w io.Writer, opts Options) *Printer {
	return &Printer{
		src:    src,
		writer: w,
		opts:   opts,
	}
}

// PrintStats prints a snapshot of the allocator: slot window, untyped
// inventory, size classes, vspace cursor and kernel activity counters.
func (p *Printer) PrintStats() error {
	s := p.src.Stats()
	switch p.opts.Format {
	case FormatJSON:
		return p.printStatsJSON(s)
	default:
		return p.printStatsText(s)
	}
}

// PrintBootInfo prints a boot description without building an allocator.
func PrintBootInfo(w io.Writer, bi *bootinfo.BootInfo, opts Options) error {
	p := &Printer{writer: w, opts: opts}
	switch opts.Format {
	case FormatJSON:
		return bootinfo.Encode(w, bi)
	default:
		return p.printBootInfoText(bi)
	}
}
