package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"faultctl/internal/node"
	"faultctl/internal/retry"
	"faultctl/internal/store"
)

var (
	nodeName    string
	nodeDataDir string
	nodePort    int
	nodeRPCPort int
	nodeConnect string
	nodeProb    float64
	nodeClean   bool
	waitTimeout int
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage regtest nodes",
}

var nodeStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a plain regtest node",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := node.NewManager(cfg.BitcoinVersion, nil, logger)
		if nodeClean {
			if err := node.CleanDataDir(nodeDataDir); err != nil {
				return err
			}
		}
		if err := mgr.Start(nodeDataDir, nodePort, node.StartOptions{
			RPCPort: nodeRPCPort,
			Connect: nodeConnect,
		}); err != nil {
			return err
		}
		return registerNode(store.NodeInfo{
			Name:    nodeName,
			DataDir: nodeDataDir,
			Port:    nodePort,
			RPCPort: nodeRPCPort,
			Connect: nodeConnect,
		})
	},
}

var nodeStartVictimCmd = &cobra.Command{
	Use:   "start-victim",
	Short: "Start a node under libfiu fault injection, retrying fault-killed launches",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := node.NewManager(cfg.BitcoinVersion, nil, logger)
		if nodeClean {
			if err := node.CleanDataDir(nodeDataDir); err != nil {
				return err
			}
		}
		prob := nodeProb
		if prob == 0 {
			prob = cfg.FaultProbabilityLow
		}
		policy := retry.Policy{
			MaxRetries: cfg.RetryMax,
			Wait:       time.Duration(cfg.RetryWaitSec) * time.Second,
		}
		if err := mgr.StartVictim(nodeDataDir, nodePort, nodeRPCPort, nodeConnect, prob, policy); err != nil {
			return err
		}
		return registerNode(store.NodeInfo{
			Name:             nodeName,
			DataDir:          nodeDataDir,
			Port:             nodePort,
			RPCPort:          nodeRPCPort,
			Connect:          nodeConnect,
			FaultProbability: prob,
		})
	},
}

var nodeStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a node by name or data directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir := nodeDataDir
		reg, err := store.Load(cfg.RegistryPath)
		if err != nil {
			return err
		}
		if dataDir == "" && nodeName != "" {
			info, ok := reg.Find(nodeName)
			if !ok {
				return fmt.Errorf("node %q not found in registry", nodeName)
			}
			dataDir = info.DataDir
		}
		if dataDir == "" {
			return fmt.Errorf("either --name or --datadir is required")
		}

		mgr := node.NewManager(cfg.BitcoinVersion, nil, logger)
		mgr.Stop(dataDir)

		if reg.Remove(dataDir) {
			return store.Save(cfg.RegistryPath, reg)
		}
		return nil
	},
}

var nodeWaitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait until a node answers RPC queries",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := node.NewManager(cfg.BitcoinVersion, nil, logger)
		timeout := time.Duration(waitTimeout) * time.Second
		if waitTimeout == 0 {
			timeout = time.Duration(cfg.NodeStartTimeoutSec) * time.Second
		}
		return mgr.WaitForStart(nodeDataDir, nodeRPCPort, timeout)
	},
}

func registerNode(info store.NodeInfo) error {
	reg, err := store.Load(cfg.RegistryPath)
	if err != nil {
		return err
	}
	info.StartedAt = time.Now().UTC()
	reg.Add(info)
	return store.Save(cfg.RegistryPath, reg)
}

func init() {
	for _, c := range []*cobra.Command{nodeStartCmd, nodeStartVictimCmd, nodeStopCmd, nodeWaitCmd} {
		c.Flags().StringVar(&nodeName, "name", "", "node name")
		c.Flags().StringVar(&nodeDataDir, "datadir", "", "node data directory")
	}
	for _, c := range []*cobra.Command{nodeStartCmd, nodeStartVictimCmd} {
		c.Flags().IntVar(&nodePort, "port", 0, "P2P port")
		c.Flags().IntVar(&nodeRPCPort, "rpcport", 0, "RPC port")
		c.Flags().StringVar(&nodeConnect, "connect", "", "peer address to connect to")
		c.Flags().BoolVar(&nodeClean, "clean", false, "wipe the data directory first")
		_ = c.MarkFlagRequired("datadir")
		_ = c.MarkFlagRequired("port")
	}
	nodeStartVictimCmd.Flags().Float64Var(&nodeProb, "probability", 0, "fault probability (default from config)")
	nodeWaitCmd.Flags().IntVar(&waitTimeout, "timeout", 0, "seconds to wait (default from config)")
	nodeWaitCmd.Flags().IntVar(&nodeRPCPort, "rpcport", 0, "RPC port")
	_ = nodeWaitCmd.MarkFlagRequired("datadir")

	nodeCmd.AddCommand(nodeStartCmd, nodeStartVictimCmd, nodeStopCmd, nodeWaitCmd)
	rootCmd.AddCommand(nodeCmd)
}
