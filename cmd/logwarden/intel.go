package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newIntelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "intel",
		Short: "Manage the threat-intelligence reputation set",
	}
	cmd.AddCommand(newIntelUpdateCmd())
	return cmd
}

func newIntelUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Refresh the reputation feeds (subject to the refresh throttle)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			before := a.intel.LastUpdated()
			a.intel.Update(cmd.Context())
			a.metrics.IOCSetSize.Set(float64(a.intel.Size()))

			out := cmd.OutOrStdout()
			after := a.intel.LastUpdated()
			switch {
			case after.Equal(before):
				fmt.Fprintln(out, "Reputation set unchanged (throttled or feeds unavailable)")
			default:
				fmt.Fprintf(out, "Reputation set refreshed at %s\n", after.UTC().Format(time.RFC3339))
			}
			fmt.Fprintf(out, "Addresses in set: %d\n", a.intel.Size())
			return nil
		},
	}
}
