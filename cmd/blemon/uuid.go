package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/srg/blemon/internal/bledb"
)

var uuidCmd = &cobra.Command{
	Use:   "uuid <uuid>...",
	Short: "Normalize and name Bluetooth UUIDs",
	Long: `Print the normalized short form, the full 128-bit form and the
Bluetooth SIG name of each UUID.`,
	Example: `  blemon uuid 0x181A 00002a6e-0000-1000-8000-00805f9b34fb`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runUUID,
}

func runUUID(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INPUT\tUUID\tFULL\tKIND\tNAME")

	var firstErr error
	for _, arg := range args {
		full, err := bledb.ExpandUUID(arg)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			fmt.Fprintf(w, "%s\t-\t-\t-\tinvalid\n", arg)
			continue
		}
		name, kind := bledb.Lookup(arg)
		if kind == "" {
			kind, name = "-", "unknown"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", arg, bledb.NormalizeUUID(arg), full, kind, name)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if firstErr != nil {
		cmd.SilenceUsage = true
	}
	return firstErr
}
