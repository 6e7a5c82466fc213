// Command fexjitctl is an inspection tool for the AArch64 JIT core: it
// lists the raw instruction words of a code-buffer dump (no mnemonic
// decoding) and reports lookup-cache occupancy, grounded on the ambient CLI tooling other repos in this
// corpus build with github.com/spf13/cobra.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fexjitctl",
		Short:         "Inspect AArch64 JIT code buffers and the lookup cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newDisasmCmd())
	root.AddCommand(newDumpCacheCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fexjitctl:", err)
		os.Exit(1)
	}
}
