// Package node starts, stops and queries Bitcoin Core regtest nodes, plain
// or wrapped in a fault-injection harness. All process interaction goes
// through an execx.Runner so tests can fake the binaries.
package node

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"faultctl/internal/execx"
	"faultctl/internal/probe"
	"faultctl/internal/retry"
)

const (
	defaultStartSettle  = 2 * time.Second
	defaultVictimSettle = 3 * time.Second
	defaultStopSettle   = 1 * time.Second

	// posix/io/* is the libfiu fault class covering read/write/open/close.
	faultClass = "posix/io/*"
)

// Manager drives bitcoind and bitcoin-cli for one Bitcoin Core install.
type Manager struct {
	r        execx.Runner
	log      *zap.Logger
	bitcoind string
	cli      string

	// Bind is the address plain nodes listen on.
	Bind string

	// Settle delays give a launched (or killed) daemon time to come up or
	// tear down; tests shrink them to zero.
	StartSettle  time.Duration
	VictimSettle time.Duration
	StopSettle   time.Duration

	// PollInterval is the cadence of WaitForStart probing.
	PollInterval time.Duration

	mu     sync.Mutex
	states map[string]State
}

// NewManager returns a manager for the bitcoin-<version> install in the
// working directory. A nil runner executes on the host; a nil logger is
// replaced with a no-op.
func NewManager(version string, r execx.Runner, log *zap.Logger) *Manager {
	if r == nil {
		r = execx.NewOSRunner(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	dir := "bitcoin-" + version
	return &Manager{
		r:            r,
		log:          log,
		bitcoind:     filepath.Join(dir, "bin", "bitcoind"),
		cli:          filepath.Join(dir, "bin", "bitcoin-cli"),
		Bind:         "127.0.0.1",
		StartSettle:  defaultStartSettle,
		VictimSettle: defaultVictimSettle,
		StopSettle:   defaultStopSettle,
		PollInterval: time.Second,
		states:       make(map[string]State),
	}
}

// StartOptions carries the optional arguments of a plain node launch.
type StartOptions struct {
	RPCPort int
	Connect string
}

// Start launches a regtest daemon without fault injection and waits the
// start settle delay.
func (m *Manager) Start(dataDir string, port int, opts StartOptions) error {
	m.log.Info("starting node",
		zap.String("datadir", dataDir),
		zap.Int("port", port))

	if probe.IsRunning(dataDir) {
		return &LaunchError{DataDir: dataDir, Cause: errors.New("a node is already running in this datadir")}
	}
	m.setState(dataDir, StateStarting)

	args := []string{
		"-regtest",
		"-datadir=" + dataDir,
		fmt.Sprintf("-port=%d", port),
		"-bind=" + m.Bind,
	}
	if opts.RPCPort > 0 {
		args = append(args, fmt.Sprintf("-rpcport=%d", opts.RPCPort))
	}
	if opts.Connect != "" {
		args = append(args, "-connect="+opts.Connect)
	}
	args = append(args, "-daemon")

	if err := m.r.Run(m.bitcoind, args...); err != nil {
		m.setState(dataDir, StateFailed)
		m.log.Error("failed to start node", zap.String("datadir", dataDir), zap.Error(err))
		return &LaunchError{DataDir: dataDir, Cause: err}
	}

	time.Sleep(m.StartSettle)
	m.setState(dataDir, StateRunning)
	m.log.Debug("node started", zap.String("datadir", dataDir))
	return nil
}

// StartVictim launches a node through fiu-run with random POSIX I/O faults
// at the given probability. The whole sequence runs under the retry policy:
// an early exit surfaces as TransientLaunchError and triggers a relaunch.
func (m *Manager) StartVictim(dataDir string, port, rpcPort int, connect string, probability float64, policy retry.Policy) error {
	err := retry.Run(m.log, "start victim node", policy, func() error {
		return m.startVictimOnce(dataDir, port, rpcPort, connect, probability)
	})
	if err != nil {
		m.setState(dataDir, StateFailed)
		return err
	}
	return nil
}

func (m *Manager) startVictimOnce(dataDir string, port, rpcPort int, connect string, probability float64) error {
	m.log.Info("starting victim node with fault injection",
		zap.String("datadir", dataDir),
		zap.Float64("probability", probability))
	m.setState(dataDir, StateStarting)

	spec := fmt.Sprintf("enable_random name=%s,probability=%g", faultClass, probability)
	args := []string{
		"-x", "-c", spec,
		m.bitcoind,
		"-regtest",
		"-datadir=" + dataDir,
		fmt.Sprintf("-port=%d", port),
		fmt.Sprintf("-rpcport=%d", rpcPort),
		"-connect=" + connect,
		"-daemon",
	}

	if err := m.r.Run("fiu-run", args...); err != nil {
		m.setState(dataDir, StateUnstarted)
		m.log.Error("failed to start victim node", zap.String("datadir", dataDir), zap.Error(err))
		return &LaunchError{DataDir: dataDir, Cause: err}
	}

	time.Sleep(m.VictimSettle)

	if probe.HasExited(dataDir) {
		m.setState(dataDir, StateUnstarted)
		m.log.Warn("victim node exited shortly after start, likely fault injection",
			zap.String("datadir", dataDir))
		return &TransientLaunchError{DataDir: dataDir}
	}

	m.setState(dataDir, StateRunning)
	m.log.Info("victim node started", zap.String("datadir", dataDir))
	return nil
}

// Stop terminates the node via its PID file. Stopping an already-stopped
// node is not an error; the stop settle delay applies either way.
func (m *Manager) Stop(dataDir string) {
	m.log.Info("stopping node", zap.String("datadir", dataDir))
	m.setState(dataDir, StateStopping)

	pidFile := probe.PIDFile(dataDir)
	if _, err := os.Stat(pidFile); err == nil {
		if err := m.r.Run("pkill", "-F", pidFile); err != nil {
			m.log.Debug("pkill reported no matching process", zap.Error(err))
		}
	}

	time.Sleep(m.StopSettle)
	m.setState(dataDir, StateStopped)
}

// CLIOptions carries the optional arguments of a bitcoin-cli invocation.
type CLIOptions struct {
	RPCPort int
	Wallet  string
}

// CLI runs one bitcoin-cli command and returns its trimmed stdout.
func (m *Manager) CLI(dataDir, command string, opts CLIOptions) (string, error) {
	args := []string{"-regtest", "-datadir=" + dataDir}
	if opts.RPCPort > 0 {
		args = append(args, fmt.Sprintf("-rpcport=%d", opts.RPCPort))
	}
	if opts.Wallet != "" {
		args = append(args, "-rpcwallet="+opts.Wallet)
	}
	args = append(args, strings.Fields(command)...)

	out, err := m.r.Output(m.cli, args...)
	if err != nil {
		var exit *execx.ExitError
		if errors.As(err, &exit) {
			return "", &CommandError{Command: command, Stderr: strings.TrimSpace(exit.Stderr), Cause: err}
		}
		return "", &CommandError{Command: command, Cause: err}
	}
	return out, nil
}

// BlockCount returns the node's current block height.
func (m *Manager) BlockCount(dataDir string, rpcPort int) (int, error) {
	out, err := m.CLI(dataDir, "getblockcount", CLIOptions{RPCPort: rpcPort})
	if err != nil {
		return 0, err
	}
	count, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("parse block count %q: %w", out, err)
	}
	return count, nil
}

// CreateWallet creates a wallet on the node.
func (m *Manager) CreateWallet(dataDir, wallet string, rpcPort int) error {
	out, err := m.CLI(dataDir, "createwallet "+wallet, CLIOptions{RPCPort: rpcPort})
	if err != nil {
		return err
	}
	m.log.Info("wallet created", zap.String("wallet", wallet), zap.String("result", out))
	return nil
}

// GenerateBlocks mines count blocks to a fresh address of the wallet.
func (m *Manager) GenerateBlocks(dataDir, wallet string, count, rpcPort int) error {
	addr, err := m.CLI(dataDir, "getnewaddress", CLIOptions{RPCPort: rpcPort, Wallet: wallet})
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf("generatetoaddress %d %s", count, strings.TrimSpace(addr))
	if _, err := m.CLI(dataDir, cmd, CLIOptions{RPCPort: rpcPort, Wallet: wallet}); err != nil {
		return err
	}
	m.log.Info("generated blocks", zap.Int("count", count), zap.String("datadir", dataDir))
	return nil
}

// WaitForStart polls getblockchaininfo once per PollInterval until the node
// answers or the timeout elapses.
func (m *Manager) WaitForStart(dataDir string, rpcPort int, timeout time.Duration) error {
	attempts := int(timeout / m.PollInterval)
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if _, err := m.CLI(dataDir, "getblockchaininfo", CLIOptions{RPCPort: rpcPort}); err == nil {
			return nil
		}
		time.Sleep(m.PollInterval)
	}
	m.log.Error("node did not become responsive",
		zap.String("datadir", dataDir),
		zap.Duration("timeout", timeout))
	return &TimeoutError{DataDir: dataDir, Timeout: timeout}
}

// DebugLogPath returns the path of the node's debug.log.
func DebugLogPath(dataDir string) string {
	return filepath.Join(dataDir, "regtest", "debug.log")
}

// TailDebugLog returns the last n lines of the node's debug.log, or a
// placeholder when the log does not exist yet.
func (m *Manager) TailDebugLog(dataDir string, lines int) (string, error) {
	path := DebugLogPath(dataDir)
	if _, err := os.Stat(path); err != nil {
		return "debug log not found", nil
	}
	return m.r.Output("tail", "-n", strconv.Itoa(lines), path)
}

// CopyDebugLog copies the node's debug.log to dest for artifact collection.
// A missing log is logged and skipped.
func (m *Manager) CopyDebugLog(dataDir, dest string) error {
	data, err := os.ReadFile(DebugLogPath(dataDir))
	if err != nil {
		if os.IsNotExist(err) {
			m.log.Warn("debug log not found", zap.String("datadir", dataDir))
			return nil
		}
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return err
	}
	m.log.Info("copied debug log", zap.String("dest", dest))
	return nil
}

// CleanDataDir removes and recreates a node's data directory.
func CleanDataDir(dataDir string) error {
	if err := os.RemoveAll(dataDir); err != nil {
		return err
	}
	return os.MkdirAll(dataDir, 0o755)
}
