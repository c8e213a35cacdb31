package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/capkit/cap/arch"
	"github.com/joshuapare/capkit/cap/bootinfo"
)

var (
	// Global flags
	verbose bool
	quiet   bool
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "capctl",
	Short: "Inspect boot inventories and rehearse capability allocation",
	Long: `capctl reads the boot description a capability-based microkernel hands
its initial thread (untyped memory regions and the free slot window) and runs
the userspace allocators against a simulated kernel, reporting how slots,
untyped memory and virtual address space get consumed.`,
	Version: "0.1.0",
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// loadBootInfo reads and validates a JSON boot description.
func loadBootInfo(path string) (*bootinfo.BootInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open boot description: %w", err)
	}
	defer f.Close()

	bi, err := bootinfo.Parse(f)
	if err != nil {
		return nil, err
	}
	if _, ok := arch.ByName(bi.Arch); !ok {
		return nil, fmt.Errorf("unknown architecture %q", bi.Arch)
	}
	return bi, nil
}
