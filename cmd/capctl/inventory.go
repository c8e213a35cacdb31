package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/capkit/cap/alloc"
	"github.com/joshuapare/capkit/cap/printer"
)

func init() {
	rootCmd.AddCommand(newInventoryCmd())
}

func newInventoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory <bootinfo.json>",
		Short: "Validate a boot description and list its untyped memory",
		Long: `The inventory command validates a boot description and lists the
untyped regions it grants, with sizes, physical addresses and whether they
are device memory.

Example:
  capctl inventory boot.json
  capctl inventory boot.json --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInventory(args)
		},
	}
	return cmd
}

func runInventory(args []string) error {
	printVerbose("Loading boot description: %s\n", args[0])

	bi, err := loadBootInfo(args[0])
	if err != nil {
		return err
	}
	if err := bi.Validate(alloc.MaxUntypedItems); err != nil {
		return err
	}

	opts := printer.DefaultOptions()
	if jsonOut {
		opts.Format = printer.FormatJSON
	}
	if quiet && !jsonOut {
		return nil
	}
	return printer.PrintBootInfo(os.Stdout, bi, opts)
}
