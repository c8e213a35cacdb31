package printer

import (
	"encoding/json"

	"github.com/joshuapare/capkit/cap/alloc"
)

// printStatsJSON prints allocator statistics as one indented JSON document.
func (p *Printer) printStatsJSON(s alloc.Stats) error {
	if !p.opts.ShowUntyped {
		s.Untyped = nil
	}
	if !p.opts.ShowClasses {
		s.Classes = nil
	}
	enc := json.NewEncoder(p.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
