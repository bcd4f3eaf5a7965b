package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBitcoinVersion     = "30.2"
	DefaultDownloadTimeoutSec = 300

	DefaultGeneratorPort = 18444
	DefaultVictimPort    = 18445
	DefaultVictimRPCPort = 18446
	DefaultBindAddress   = "127.0.0.1"

	DefaultNodeStartTimeoutSec       = 30
	DefaultNodeStopTimeoutSec        = 10
	DefaultBlockGenerationTimeoutSec = 60
	DefaultSyncTimeoutSec            = 120

	DefaultFaultProbabilityLow  = 0.005
	DefaultFaultProbabilityHigh = 0.01
	DefaultRetryMax             = 3
	DefaultRetryWaitSec         = 5

	DefaultInitialBlockCount    = 150
	DefaultAdditionalBlockCount = 10

	DefaultMetricsIntervalSec = 10

	DefaultGeneratorDir = "/tmp/node_generator"
	DefaultVictimDir    = "/tmp/node_victim"
	DefaultLogDir       = "results/logs"
	DefaultWalletName   = "miner"
)

// Config holds every knob of a fault-injection campaign.
type Config struct {
	BitcoinVersion     string `yaml:"bitcoin_version"`
	DownloadTimeoutSec int    `yaml:"download_timeout_sec"`

	GeneratorPort int    `yaml:"generator_port"`
	VictimPort    int    `yaml:"victim_port"`
	VictimRPCPort int    `yaml:"victim_rpc_port"`
	BindAddress   string `yaml:"bind_address"`

	NodeStartTimeoutSec       int `yaml:"node_start_timeout_sec"`
	NodeStopTimeoutSec        int `yaml:"node_stop_timeout_sec"`
	BlockGenerationTimeoutSec int `yaml:"block_generation_timeout_sec"`
	SyncTimeoutSec            int `yaml:"sync_timeout_sec"`

	FaultProbabilityLow  float64 `yaml:"fault_probability_low"`
	FaultProbabilityHigh float64 `yaml:"fault_probability_high"`
	RetryMax             int     `yaml:"retry_max"`
	RetryWaitSec         int     `yaml:"retry_wait_sec"`

	InitialBlockCount    int `yaml:"initial_block_count"`
	AdditionalBlockCount int `yaml:"additional_block_count"`

	MetricsIntervalSec int   `yaml:"metrics_interval_sec"`
	MetricsEnabled     *bool `yaml:"metrics_enabled,omitempty"`

	GeneratorDir string `yaml:"generator_dir"`
	VictimDir    string `yaml:"victim_dir"`
	LogDir       string `yaml:"log_dir"`
	RegistryPath string `yaml:"registry_path"`
	WalletName   string `yaml:"wallet_name"`
}

// Default returns a config with every field at its default value.
func Default() Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return cfg
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate performs minimal validation for required fields.
func Validate(cfg Config) error {
	if cfg.BitcoinVersion == "" {
		return fmt.Errorf("bitcoin_version is required")
	}
	if cfg.GeneratorPort <= 0 || cfg.VictimPort <= 0 || cfg.VictimRPCPort <= 0 {
		return fmt.Errorf("ports must be positive")
	}
	if cfg.GeneratorPort == cfg.VictimPort {
		return fmt.Errorf("generator_port and victim_port must differ")
	}
	if cfg.FaultProbabilityLow <= 0 || cfg.FaultProbabilityLow > 1 {
		return fmt.Errorf("fault_probability_low must be in (0, 1]")
	}
	if cfg.FaultProbabilityHigh <= 0 || cfg.FaultProbabilityHigh > 1 {
		return fmt.Errorf("fault_probability_high must be in (0, 1]")
	}
	if cfg.RetryMax < 0 {
		return fmt.Errorf("retry_max must be >= 0")
	}
	if cfg.RetryWaitSec < 0 {
		return fmt.Errorf("retry_wait_sec must be >= 0")
	}
	return nil
}

// MetricsOn reports whether background metrics collection is enabled.
func MetricsOn(cfg Config) bool {
	return cfg.MetricsEnabled == nil || *cfg.MetricsEnabled
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.BitcoinVersion == "" {
		cfg.BitcoinVersion = DefaultBitcoinVersion
	}
	if cfg.DownloadTimeoutSec == 0 {
		cfg.DownloadTimeoutSec = DefaultDownloadTimeoutSec
	}
	if cfg.GeneratorPort == 0 {
		cfg.GeneratorPort = DefaultGeneratorPort
	}
	if cfg.VictimPort == 0 {
		cfg.VictimPort = DefaultVictimPort
	}
	if cfg.VictimRPCPort == 0 {
		cfg.VictimRPCPort = DefaultVictimRPCPort
	}
	if cfg.BindAddress == "" {
		cfg.BindAddress = DefaultBindAddress
	}
	if cfg.NodeStartTimeoutSec == 0 {
		cfg.NodeStartTimeoutSec = DefaultNodeStartTimeoutSec
	}
	if cfg.NodeStopTimeoutSec == 0 {
		cfg.NodeStopTimeoutSec = DefaultNodeStopTimeoutSec
	}
	if cfg.BlockGenerationTimeoutSec == 0 {
		cfg.BlockGenerationTimeoutSec = DefaultBlockGenerationTimeoutSec
	}
	if cfg.SyncTimeoutSec == 0 {
		cfg.SyncTimeoutSec = DefaultSyncTimeoutSec
	}
	if cfg.FaultProbabilityLow == 0 {
		cfg.FaultProbabilityLow = DefaultFaultProbabilityLow
	}
	if cfg.FaultProbabilityHigh == 0 {
		cfg.FaultProbabilityHigh = DefaultFaultProbabilityHigh
	}
	if cfg.RetryMax == 0 {
		cfg.RetryMax = DefaultRetryMax
	}
	if cfg.RetryWaitSec == 0 {
		cfg.RetryWaitSec = DefaultRetryWaitSec
	}
	if cfg.InitialBlockCount == 0 {
		cfg.InitialBlockCount = DefaultInitialBlockCount
	}
	if cfg.AdditionalBlockCount == 0 {
		cfg.AdditionalBlockCount = DefaultAdditionalBlockCount
	}
	if cfg.MetricsIntervalSec == 0 {
		cfg.MetricsIntervalSec = DefaultMetricsIntervalSec
	}
	if cfg.GeneratorDir == "" {
		cfg.GeneratorDir = DefaultGeneratorDir
	}
	if cfg.VictimDir == "" {
		cfg.VictimDir = DefaultVictimDir
	}
	if cfg.LogDir == "" {
		cfg.LogDir = DefaultLogDir
	}
	if cfg.RegistryPath == "" {
		cfg.RegistryPath = filepath.Join(cfg.LogDir, "nodes.yaml")
	}
	if cfg.WalletName == "" {
		cfg.WalletName = DefaultWalletName
	}
}
