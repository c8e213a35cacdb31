package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/capkit/cap/arch"
	"github.com/joshuapare/capkit/cap/bootinfo"
	"github.com/joshuapare/capkit/cap/printer"
	"github.com/joshuapare/capkit/pkg/types"
)

var (
	objsizeArch     string
	objsizeSizeBits uint
)

func init() {
	cmd := newObjsizeCmd()
	cmd.Flags().StringVar(&objsizeArch, "arch", "aarch32", "Architecture (aarch32, aarch64)")
	cmd.Flags().UintVar(&objsizeSizeBits, "size-bits", 0, "Size exponent for untyped objects and slot-count exponent for capability tables")
	rootCmd.AddCommand(cmd)
}

func newObjsizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "objsize [type...]",
		Short: "Show how much untyped memory each object type needs",
		Long: `The objsize command prints the untyped size exponent needed to retype
each object type on an architecture. With no arguments every type the
architecture provides is listed.

Example:
  capctl objsize
  capctl objsize --arch aarch64 PageTable TCB
  capctl objsize CapTable --size-bits 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runObjsize(args)
		},
	}
	return cmd
}

type objectSize struct {
	Type     string `json:"type"`
	SizeBits uint   `json:"size_bits"`
	Size     string `json:"size"`
}

func runObjsize(args []string) error {
	a, ok := arch.ByName(objsizeArch)
	if !ok {
		return fmt.Errorf("unknown architecture %q", objsizeArch)
	}

	var list []types.ObjectType
	if len(args) == 0 {
		list = types.ObjectTypes()
	}
	for _, name := range args {
		t, err := types.ParseObjectType(name)
		if err != nil {
			return err
		}
		list = append(list, t)
	}

	var out []objectSize
	for _, t := range list {
		bits, ok := a.LookupObjectSizeBits(t, objsizeSizeBits)
		if !ok {
			if len(args) > 0 {
				return fmt.Errorf("%s has no %s objects", a.Name, t)
			}
			continue
		}
		if bits < bootinfo.MinUntypedBits {
			if len(args) > 0 {
				return fmt.Errorf("%s needs --size-bits of at least %d", t, bootinfo.MinUntypedBits)
			}
			continue
		}
		out = append(out, objectSize{Type: t.String(), SizeBits: bits, Size: printer.FormatSize(bits)})
	}

	if jsonOut {
		return printJSON(out)
	}
	printVerbose("Architecture: %s\n", a.Name)
	for _, o := range out {
		printInfo("%-20s %2d bits  %s\n", o.Type, o.SizeBits, o.Size)
	}
	return nil
}
