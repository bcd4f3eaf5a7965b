package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"faultctl/internal/metrics"
)

var metricsFile string

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Inspect exported metrics snapshots",
}

var metricsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize a snapshot file",
	RunE: func(cmd *cobra.Command, args []string) error {
		snaps, err := metrics.ReadSnapshots(metricsFile)
		if err != nil {
			return fmt.Errorf("read snapshots: %w", err)
		}
		summary := metrics.Summarize(snaps)
		out, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(out))
		return nil
	},
}

func init() {
	metricsSummaryCmd.Flags().StringVar(&metricsFile, "file", "", "snapshot file written by a campaign")
	_ = metricsSummaryCmd.MarkFlagRequired("file")

	metricsCmd.AddCommand(metricsSummaryCmd)
	rootCmd.AddCommand(metricsCmd)
}
