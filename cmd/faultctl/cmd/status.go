package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"faultctl/internal/probe"
	"faultctl/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show registered nodes and whether they are alive",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := store.Load(cfg.RegistryPath)
		if err != nil {
			return err
		}
		if len(reg.Nodes) == 0 {
			fmt.Println("no nodes registered")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tDATADIR\tPORT\tFAULT_PROB\tRUNNING")
		for _, n := range reg.Nodes {
			running := probe.IsRunning(n.DataDir)
			prob := "-"
			if n.FaultProbability > 0 {
				prob = fmt.Sprintf("%g", n.FaultProbability)
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%t\n", n.Name, n.DataDir, n.Port, prob, running)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
