package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <logfile>",
		Short: "Run the batch pipeline over a log file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			summary, err := a.pipeline.AnalyzeFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Lines analyzed:  %d\n", summary.Lines)
			fmt.Fprintf(out, "Detections:      %d\n", summary.Detections)
			fmt.Fprintf(out, "Incidents:       %d\n", len(summary.Incidents))
			for _, inc := range summary.Incidents {
				fmt.Fprintf(out, "  [%s] %s from %s (%d events)\n",
					inc.Severity, inc.Type, inc.IP, inc.Count)
			}
			fmt.Fprintf(out, "Blocked:         %d\n", summary.Blocked)
			fmt.Fprintf(out, "Alerted:         %d\n", summary.Alerted)
			fmt.Fprintf(out, "Suppressed:      %d\n", summary.Suppressed)
			if summary.ReportPath != "" {
				fmt.Fprintf(out, "Report:          %s\n", summary.ReportPath)
			}
			return nil
		},
	}
}
