package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "zkrent",
		Short:         "Operator and renter tooling for zero-knowledge rental applications",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newKeygenCmd(),
		newSetupCmd(),
		newTokenCmd(),
		newApplyCmd(),
		newStatusCmd(),
		newProveHistoryCmd(),
	)
	return root
}
