package alloc

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joshuapare/capkit/cap/arch"
	"github.com/joshuapare/capkit/cap/kernel"
	"github.com/joshuapare/capkit/internal/format"
	"github.com/joshuapare/capkit/pkg/types"
)

const (
	// DefaultVSpaceStart is the first virtual address handed out by the
	// vspace manager. Everything below it is left to the program image.
	DefaultVSpaceStart types.Word = 0x1000_0000

	// DefaultMaxPagesPerCall bounds the frames one mapping call may create.
	DefaultMaxPagesPerCall = 64

	// maxPagesPerCallLimit is the capacity of the per-call frame buffer.
	maxPagesPerCallLimit = 256
)

// logAlloc enables debug logging to stderr when no logger is configured,
// controlled by the CAPKIT_LOG_ALLOC env var.
var logAlloc = os.Getenv("CAPKIT_LOG_ALLOC") != ""

// Options controls allocator behavior.
type Options struct {
	// Arch selects the architecture descriptor.
	// Default: resolved from BootInfo.Arch, falling back to arch.AArch32.
	Arch *arch.Arch

	// VSpaceStart is the initial mapping cursor. Must be page aligned.
	// Default: 0x1000_0000
	VSpaceStart types.Word

	// VSpaceRoot is the capability of the vspace root.
	// Default: the initial thread's vspace.
	VSpaceRoot types.CPtr

	// MaxPagesPerCall bounds a single MapPages/MapPagesAt request.
	// Default: 64, maximum 256.
	MaxPagesPerCall int

	// DefaultAttributes are used for ordinary pages, stacks and IPC buffers.
	// Default: types.VMDefaultAttributes
	DefaultAttributes types.VMAttributes

	// DMAAttributes are used by NewDMAPage.
	// Default: types.VMNoAttributes (uncached)
	DMAAttributes types.VMAttributes

	// Memory writes into mapped pages (IPC buffer set-up).
	// Default: the kernel itself when it implements kernel.Memory,
	// otherwise kernel.Direct.
	Memory kernel.Memory

	// Logger receives allocation events.
	// Default: discard, or a stderr debug logger when CAPKIT_LOG_ALLOC is set.
	Logger *slog.Logger
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		VSpaceStart:       DefaultVSpaceStart,
		VSpaceRoot:        types.InitThreadVSpace.CPtr(),
		MaxPagesPerCall:   DefaultMaxPagesPerCall,
		DefaultAttributes: types.VMDefaultAttributes,
		DMAAttributes:     types.VMNoAttributes,
	}
}

// withDefaults fills unset fields that have no meaningful zero value.
func (o Options) withDefaults(k kernel.Kernel, archName string) Options {
	if o.Arch == nil {
		if a, ok := arch.ByName(archName); ok {
			o.Arch = a
		} else {
			o.Arch = arch.AArch32
		}
	}
	if o.VSpaceStart == 0 {
		o.VSpaceStart = DefaultVSpaceStart
	}
	if o.VSpaceRoot == types.NullCap {
		o.VSpaceRoot = types.InitThreadVSpace.CPtr()
	}
	if o.MaxPagesPerCall == 0 {
		o.MaxPagesPerCall = DefaultMaxPagesPerCall
	}
	if o.Memory == nil {
		if m, ok := k.(kernel.Memory); ok {
			o.Memory = m
		} else {
			o.Memory = kernel.Direct{}
		}
	}
	if o.Logger == nil {
		o.Logger = defaultLogger()
	}
	return o
}

func (o Options) validate() error {
	if !format.IsAligned(uint64(o.VSpaceStart), o.Arch.PageSize()) {
		return fmt.Errorf("alloc: vspace start %#x is not page aligned", uint64(o.VSpaceStart))
	}
	if o.MaxPagesPerCall < 0 || o.MaxPagesPerCall > maxPagesPerCallLimit {
		return fmt.Errorf("alloc: max pages per call %d outside [1, %d]", o.MaxPagesPerCall, maxPagesPerCallLimit)
	}
	return nil
}

func defaultLogger() *slog.Logger {
	if logAlloc {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
