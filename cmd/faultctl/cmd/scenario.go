package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"faultctl/internal/config"
	"faultctl/internal/metrics"
	"faultctl/internal/node"
	"faultctl/internal/retry"
)

var scenarioProb float64

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Run fault-injection campaigns",
}

var scenarioRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the block-sync-under-faults campaign",
	Long: `Starts a generator node, mines an initial chain, then starts a victim
node under libfiu fault injection and checks it syncs the chain while its
I/O calls randomly fail. Both nodes are sampled throughout; summaries and
snapshot exports land in the log directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScenario(cfg, logger, scenarioProb)
	},
}

func runScenario(cfg config.Config, log *zap.Logger, probability float64) error {
	if probability == 0 {
		probability = cfg.FaultProbabilityLow
	}

	mgr := node.NewManager(cfg.BitcoinVersion, nil, log)
	collector := metrics.NewCollector(log)
	startTimeout := time.Duration(cfg.NodeStartTimeoutSec) * time.Second
	interval := time.Duration(cfg.MetricsIntervalSec) * time.Second

	log.Info("scenario starting",
		zap.Float64("fault_probability", probability),
		zap.Int("initial_blocks", cfg.InitialBlockCount))

	for _, dir := range []string{cfg.GeneratorDir, cfg.VictimDir} {
		if err := node.CleanDataDir(dir); err != nil {
			return err
		}
	}

	// Generator: a healthy node that mines the chain the victim must sync.
	if err := mgr.Start(cfg.GeneratorDir, cfg.GeneratorPort, node.StartOptions{}); err != nil {
		return err
	}
	defer mgr.Stop(cfg.GeneratorDir)
	if err := mgr.WaitForStart(cfg.GeneratorDir, 0, startTimeout); err != nil {
		return err
	}
	if err := mgr.CreateWallet(cfg.GeneratorDir, cfg.WalletName, 0); err != nil {
		return err
	}
	if err := mgr.GenerateBlocks(cfg.GeneratorDir, cfg.WalletName, cfg.InitialBlockCount, 0); err != nil {
		return err
	}

	if config.MetricsOn(cfg) {
		collector.Start("generator", cfg.GeneratorDir, mgr, interval, 0)
	}
	defer collector.StopAll()

	// Victim: fault-injected, connecting to the generator. Startup retries
	// absorb launches killed by injected faults.
	policy := retry.Policy{
		MaxRetries: cfg.RetryMax,
		Wait:       time.Duration(cfg.RetryWaitSec) * time.Second,
	}
	connect := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.GeneratorPort)
	if err := mgr.StartVictim(cfg.VictimDir, cfg.VictimPort, cfg.VictimRPCPort, connect, probability, policy); err != nil {
		tail, _ := mgr.TailDebugLog(cfg.VictimDir, 50)
		log.Error("victim never came up", zap.String("debug_log_tail", tail))
		return err
	}
	defer mgr.Stop(cfg.VictimDir)
	if err := mgr.WaitForStart(cfg.VictimDir, cfg.VictimRPCPort, startTimeout); err != nil {
		return err
	}

	if config.MetricsOn(cfg) {
		collector.Start("victim", cfg.VictimDir, mgr, interval, cfg.VictimRPCPort)
	}

	// Mine more blocks while faults are firing, then require full sync.
	if err := mgr.GenerateBlocks(cfg.GeneratorDir, cfg.WalletName, cfg.AdditionalBlockCount, 0); err != nil {
		return err
	}
	if err := waitForSync(mgr, cfg, log); err != nil {
		tail, _ := mgr.TailDebugLog(cfg.VictimDir, 50)
		log.Error("victim failed to sync", zap.String("debug_log_tail", tail))
		return err
	}

	collector.StopAll()
	for _, name := range []string{"generator", "victim"} {
		summary := collector.Summary(name)
		log.Info("campaign summary",
			zap.String("node", name),
			zap.Int("total_snapshots", summary.TotalSnapshots),
			zap.Int("blocks_synced", summary.BlocksSynced),
			zap.Float64("avg_peer_count", summary.AvgPeerCount),
			zap.Int("max_peer_count", summary.MaxPeerCount))
		path := filepath.Join(cfg.LogDir, "metrics_"+name+".json")
		if err := collector.SaveToFile(name, path); err != nil {
			return err
		}
	}

	if err := mgr.CopyDebugLog(cfg.VictimDir, filepath.Join(cfg.LogDir, "victim_debug.log")); err != nil {
		return err
	}

	log.Info("scenario completed")
	return nil
}

// waitForSync polls until the victim's height reaches the generator's, or
// the sync timeout elapses.
func waitForSync(mgr *node.Manager, cfg config.Config, log *zap.Logger) error {
	timeout := time.Duration(cfg.SyncTimeoutSec) * time.Second
	deadline := time.Now().Add(timeout)

	target, err := mgr.BlockCount(cfg.GeneratorDir, 0)
	if err != nil {
		return err
	}

	for time.Now().Before(deadline) {
		height, err := mgr.BlockCount(cfg.VictimDir, cfg.VictimRPCPort)
		if err == nil && height >= target {
			log.Info("victim synced", zap.Int("height", height))
			return nil
		}
		if err == nil {
			log.Debug("sync progress", zap.Int("height", height), zap.Int("target", target))
		}
		time.Sleep(time.Second)
	}
	return &node.TimeoutError{DataDir: cfg.VictimDir, Timeout: timeout}
}

func init() {
	scenarioRunCmd.Flags().Float64Var(&scenarioProb, "probability", 0, "fault probability (default from config)")

	scenarioCmd.AddCommand(scenarioRunCmd)
	rootCmd.AddCommand(scenarioCmd)
}
