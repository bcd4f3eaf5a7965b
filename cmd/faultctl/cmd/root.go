package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"faultctl/internal/config"
	"faultctl/internal/logx"
)

var (
	cfgFile string
	cfg     config.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "faultctl",
	Short: "Drive Bitcoin Core robustness tests under injected I/O faults",
	Long: `faultctl starts and stops Bitcoin Core regtest nodes, injects random
POSIX I/O faults into a victim node via libfiu, retries fault-killed
startups, and samples node health while a campaign runs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
		} else {
			cfg = config.Default()
		}
		if err := config.Validate(cfg); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		logger, err = logx.New(cfg.LogDir, "faultctl")
		if err != nil {
			return fmt.Errorf("init logging: %w", err)
		}
		return nil
	},
}

func Execute() error {
	defer func() {
		if logger != nil {
			_ = logger.Sync()
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to YAML config file (defaults apply without one)")
}
