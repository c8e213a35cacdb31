package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuapare/capkit/cap/alloc"
	"github.com/joshuapare/capkit/cap/arch"
	"github.com/joshuapare/capkit/cap/bootinfo"
	"github.com/joshuapare/capkit/cap/kernel"
	"github.com/joshuapare/capkit/cap/printer"
	"github.com/joshuapare/capkit/pkg/types"
)

var (
	simEndpoints int
	simTCBs      int
	simPages     int
	simStack     int
	simIPC       bool
	simDMA       int
	simAt        []string
	simMint      int
)

func init() {
	cmd := newSimulateCmd()
	cmd.Flags().IntVar(&simEndpoints, "endpoints", 0, "Endpoints to allocate")
	cmd.Flags().IntVar(&simTCBs, "tcbs", 0, "Thread control blocks to allocate")
	cmd.Flags().IntVar(&simPages, "pages", 0, "Small pages to map")
	cmd.Flags().IntVar(&simStack, "stack", 0, "Stack size in pages (0 = no stack)")
	cmd.Flags().BoolVar(&simIPC, "ipc", false, "Map an IPC buffer")
	cmd.Flags().IntVar(&simDMA, "dma", 0, "Uncached DMA pages to map")
	cmd.Flags().StringSliceVar(&simAt, "at", nil, "Map pages at a physical address, as paddr:count (repeatable)")
	cmd.Flags().IntVar(&simMint, "mint", 0, "Badged copies of the first endpoint")
	rootCmd.AddCommand(cmd)
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate <bootinfo.json>",
		Short: "Run an allocation sequence against a simulated kernel",
		Long: `The simulate command grants the untyped regions of a boot description
to a simulated kernel, builds the allocators on top of it and runs the
requested allocations in a fixed order: objects, badged copies, stack, IPC
buffer, pages, DMA pages, then physically addressed pages. It reports the
allocator state afterwards.

Boot untyped capabilities are renumbered from the first free initial slot,
so capability numbers may differ from the description.

Example:
  capctl simulate boot.json --endpoints 2 --stack 4 --ipc
  capctl simulate boot.json --at 0x10008000:2 --dma 1 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(args)
		},
	}
	return cmd
}

// physRequest is one --at argument.
type physRequest struct {
	paddr types.Word
	count int
}

func parsePhysRequest(s string) (physRequest, error) {
	addrStr, countStr, found := strings.Cut(s, ":")
	if !found {
		countStr = "1"
	}
	paddr, err := strconv.ParseUint(addrStr, 0, 64)
	if err != nil {
		return physRequest{}, fmt.Errorf("invalid physical address %q: %w", addrStr, err)
	}
	count, err := strconv.Atoi(countStr)
	if err != nil || count <= 0 {
		return physRequest{}, fmt.Errorf("invalid page count %q", countStr)
	}
	return physRequest{paddr: types.Word(paddr), count: count}, nil
}

// newSimulatedAllocator grants bi's untyped regions to a fresh simulated
// kernel and builds an allocator over it.
func newSimulatedAllocator(bi *bootinfo.BootInfo) (*alloc.Allocator, *kernel.Sim, error) {
	a, ok := arch.ByName(bi.Arch)
	if !ok {
		return nil, nil, fmt.Errorf("unknown architecture %q", bi.Arch)
	}
	sim := kernel.NewSim(a, kernel.SimOptions{CNodeSizeBits: bi.CNodeSizeBits})
	for _, d := range bi.Untyped {
		sim.AddUntyped(d.Paddr, d.SizeBits, d.IsDevice)
	}

	opts := alloc.DefaultOptions()
	if verbose && !jsonOut {
		opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	al, err := alloc.New(sim, sim.BootInfo(), &opts)
	if err != nil {
		sim.Close()
		return nil, nil, err
	}
	return al, sim, nil
}

func runSimulate(args []string) error {
	var reqs []physRequest
	for _, s := range simAt {
		r, err := parsePhysRequest(s)
		if err != nil {
			return err
		}
		reqs = append(reqs, r)
	}

	printVerbose("Loading boot description: %s\n", args[0])
	bi, err := loadBootInfo(args[0])
	if err != nil {
		return err
	}

	al, sim, err := newSimulatedAllocator(bi)
	if err != nil {
		return err
	}
	defer sim.Close()

	if err := simulateSequence(al, reqs); err != nil {
		return err
	}

	opts := printer.DefaultOptions()
	if jsonOut {
		opts.Format = printer.FormatJSON
	}
	if quiet && !jsonOut {
		return nil
	}
	return printer.New(al, os.Stdout, opts).PrintStats()
}

func simulateSequence(al *alloc.Allocator, reqs []physRequest) error {
	var firstEP types.CPtr
	for i := range simEndpoints {
		ep, err := al.AllocEndpoint()
		if err != nil {
			return fmt.Errorf("endpoint %d: %w", i, err)
		}
		if i == 0 {
			firstEP = ep.Cap
		}
		printVerbose("Endpoint in slot %d\n", ep.Cap)
	}
	for i := range simTCBs {
		tcb, err := al.AllocTCB()
		if err != nil {
			return fmt.Errorf("tcb %d: %w", i, err)
		}
		printVerbose("TCB in slot %d\n", tcb.Cap)
	}
	if simMint > 0 && firstEP == types.NullCap {
		return fmt.Errorf("--mint needs at least one endpoint")
	}
	for i := range simMint {
		slot, err := al.Mint(firstEP, types.RightWrite|types.RightGrant, types.Word(i+1))
		if err != nil {
			return fmt.Errorf("mint %d: %w", i, err)
		}
		printVerbose("Badge %d in slot %d\n", i+1, slot)
	}
	if simStack > 0 {
		top, err := al.NewStack(simStack)
		if err != nil {
			return fmt.Errorf("stack: %w", err)
		}
		printVerbose("Stack top at %#x\n", uint64(top))
	}
	if simIPC {
		vaddr, err := al.NewIPCBuffer(nil)
		if err != nil {
			return fmt.Errorf("ipc buffer: %w", err)
		}
		printVerbose("IPC buffer at %#x\n", uint64(vaddr))
	}
	if simPages > 0 {
		vaddr, err := al.MapPages(simPages, al.Arch().PageBits, types.VMDefaultAttributes, nil)
		if err != nil {
			return fmt.Errorf("pages: %w", err)
		}
		printVerbose("%d pages at %#x\n", simPages, uint64(vaddr))
	}
	for i := range simDMA {
		pm, err := al.NewDMAPage(nil)
		if err != nil {
			return fmt.Errorf("dma page %d: %w", i, err)
		}
		printVerbose("DMA page %#x -> %#x\n", uint64(pm.Vaddr), uint64(pm.Paddr))
	}
	for _, r := range reqs {
		region, err := al.NewPagesAtPhysicalAddress(r.paddr, r.count, types.VMNoAttributes)
		if err != nil {
			return fmt.Errorf("pages at %#x: %w", uint64(r.paddr), err)
		}
		printVerbose("%d pages %#x -> %#x\n", region.NumPages, uint64(region.Vaddr), uint64(region.Paddr))
	}
	return nil
}
