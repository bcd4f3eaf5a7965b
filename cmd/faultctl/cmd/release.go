package cmd

import (
	"github.com/spf13/cobra"

	"faultctl/internal/release"
)

var releaseVersion string

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Provision Bitcoin Core and the fault injector",
}

var releaseFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download, verify and extract a Bitcoin Core release",
	RunE: func(cmd *cobra.Command, args []string) error {
		version := releaseVersion
		if version == "" {
			version = cfg.BitcoinVersion
		}
		f := release.NewFetcher(nil, logger, cfg.DownloadTimeoutSec)
		return f.Fetch(version)
	},
}

var releaseInstallFIUCmd = &cobra.Command{
	Use:   "install-fiu",
	Short: "Install libfiu and the fiu-run launcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := release.NewFetcher(nil, logger, cfg.DownloadTimeoutSec)
		return f.InstallFaultInjector()
	},
}

func init() {
	releaseFetchCmd.Flags().StringVar(&releaseVersion, "version", "", "release version (default from config)")

	releaseCmd.AddCommand(releaseFetchCmd, releaseInstallFIUCmd)
	rootCmd.AddCommand(releaseCmd)
}
