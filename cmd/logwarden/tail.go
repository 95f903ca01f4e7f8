package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"logwarden/internal/intel"
	"logwarden/internal/tail"
)

func newTailCmd() *cobra.Command {
	var refreshInterval int

	cmd := &cobra.Command{
		Use:   "tail <logfile>",
		Short: "Follow a live log file and respond to detections as they appear",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if refreshInterval > 0 {
				scheduler := intel.NewScheduler(a.intel, time.Duration(refreshInterval)*time.Hour, a.logger)
				scheduler.Start()
				defer scheduler.Stop()
			}

			tailer := tail.NewTailer(args[0], a.cfg.Tail.Interval, a.logger)
			go tailer.Run(cmd.Context())
			defer tailer.Stop()

			a.logger.Info("live monitoring started", zap.String("path", args[0]))
			out := cmd.OutOrStdout()
			for line := range tailer.Lines() {
				for _, det := range a.pipeline.ProcessLine(cmd.Context(), line) {
					fmt.Fprintf(out, "[%s] %s from %s: %s\n",
						det.Severity, det.Rule, det.IP, det.Payload)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&refreshInterval, "intel-refresh-hours", 0,
		"refresh reputation feeds every N hours while tailing (0 disables)")
	return cmd
}
