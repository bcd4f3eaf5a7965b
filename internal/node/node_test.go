package node

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"faultctl/internal/execx"
	"faultctl/internal/retry"
)

// fakeRunner records commands and delegates behavior to optional hooks.
type fakeRunner struct {
	mu       sync.Mutex
	runs     []string
	outputs  []string
	runFn    func(name string, args []string) error
	outputFn func(name string, args []string) (string, error)
}

func (f *fakeRunner) Run(name string, args ...string) error {
	f.mu.Lock()
	f.runs = append(f.runs, name+" "+strings.Join(args, " "))
	f.mu.Unlock()
	if f.runFn != nil {
		return f.runFn(name, args)
	}
	return nil
}

func (f *fakeRunner) Output(name string, args ...string) (string, error) {
	f.mu.Lock()
	f.outputs = append(f.outputs, name+" "+strings.Join(args, " "))
	f.mu.Unlock()
	if f.outputFn != nil {
		return f.outputFn(name, args)
	}
	return "", nil
}

var _ execx.Runner = (*fakeRunner)(nil)

func newTestManager(r execx.Runner) *Manager {
	m := NewManager("30.2", r, nil)
	m.StartSettle = 0
	m.VictimSettle = 0
	m.StopSettle = 0
	m.PollInterval = 5 * time.Millisecond
	return m
}

func writePIDFile(t *testing.T, dataDir string, pid int) {
	t.Helper()
	dir := filepath.Join(dataDir, "regtest")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bitcoind.pid"), []byte(strconv.Itoa(pid)), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestStart_BuildsExpectedCommand(t *testing.T) {
	t.Parallel()

	rr := &fakeRunner{}
	m := newTestManager(rr)
	dataDir := t.TempDir()

	if err := m.Start(dataDir, 18444, StartOptions{RPCPort: 18446, Connect: "127.0.0.1:18445"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	want := filepath.Join("bitcoin-30.2", "bin", "bitcoind") +
		" -regtest -datadir=" + dataDir +
		" -port=18444 -bind=127.0.0.1 -rpcport=18446 -connect=127.0.0.1:18445 -daemon"
	if len(rr.runs) != 1 || rr.runs[0] != want {
		t.Fatalf("runs=%v\nwant %q", rr.runs, want)
	}
	if got := m.State(dataDir); got != StateRunning {
		t.Fatalf("state=%s", got)
	}
}

func TestStart_LaunchFailure(t *testing.T) {
	t.Parallel()

	rr := &fakeRunner{runFn: func(string, []string) error {
		return &execx.ExitError{Name: "bitcoind", Code: 1, Stderr: "bad option"}
	}}
	m := newTestManager(rr)
	dataDir := t.TempDir()

	err := m.Start(dataDir, 18444, StartOptions{})
	var launch *LaunchError
	if !errors.As(err, &launch) {
		t.Fatalf("expected LaunchError, got %v", err)
	}
	if got := m.State(dataDir); got != StateFailed {
		t.Fatalf("state=%s", got)
	}
}

func TestStart_RefusesSecondProcessPerDataDir(t *testing.T) {
	t.Parallel()

	rr := &fakeRunner{}
	m := newTestManager(rr)
	dataDir := t.TempDir()
	writePIDFile(t, dataDir, os.Getpid())

	err := m.Start(dataDir, 18444, StartOptions{})
	var launch *LaunchError
	if !errors.As(err, &launch) {
		t.Fatalf("expected LaunchError, got %v", err)
	}
	if len(rr.runs) != 0 {
		t.Fatalf("no launch expected, runs=%v", rr.runs)
	}
}

func TestStartVictim_RetriesUntilNodeSurvives(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	launches := 0
	rr := &fakeRunner{}
	rr.runFn = func(name string, args []string) error {
		if name != "fiu-run" {
			t.Fatalf("unexpected command %s", name)
		}
		launches++
		// Attempts 1-2: the injected faults kill the daemon before it can
		// write a PID file. Attempt 3 survives.
		if launches == 3 {
			writePIDFile(t, dataDir, os.Getpid())
		}
		return nil
	}
	m := newTestManager(rr)

	policy := retry.Policy{MaxRetries: 3, Wait: time.Millisecond}
	if err := m.StartVictim(dataDir, 18445, 18446, "127.0.0.1:18444", 0.01, policy); err != nil {
		t.Fatalf("StartVictim: %v", err)
	}
	if launches != 3 {
		t.Fatalf("launches=%d", launches)
	}
	if got := m.State(dataDir); got != StateRunning {
		t.Fatalf("state=%s", got)
	}

	spec := "enable_random name=posix/io/*,probability=0.01"
	if !strings.Contains(rr.runs[0], spec) {
		t.Fatalf("missing fault spec in %q", rr.runs[0])
	}
}

func TestStartVictim_RetriesExhausted(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	rr := &fakeRunner{} // never writes a PID file: every launch "dies"
	m := newTestManager(rr)

	policy := retry.Policy{MaxRetries: 2, Wait: time.Millisecond}
	err := m.StartVictim(dataDir, 18445, 18446, "127.0.0.1:18444", 0.01, policy)

	var transient *TransientLaunchError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientLaunchError, got %v", err)
	}
	if len(rr.runs) != 3 {
		t.Fatalf("launches=%d", len(rr.runs))
	}
	if got := m.State(dataDir); got != StateFailed {
		t.Fatalf("state=%s", got)
	}
}

func TestStop_Idempotent(t *testing.T) {
	t.Parallel()

	rr := &fakeRunner{}
	m := newTestManager(rr)
	dataDir := t.TempDir()

	// No PID file: nothing to kill, still not an error.
	m.Stop(dataDir)
	if len(rr.runs) != 0 {
		t.Fatalf("unexpected commands %v", rr.runs)
	}
	if got := m.State(dataDir); got != StateStopped {
		t.Fatalf("state=%s", got)
	}

	writePIDFile(t, dataDir, os.Getpid())
	m.Stop(dataDir)
	want := "pkill -F " + filepath.Join(dataDir, "regtest", "bitcoind.pid")
	if len(rr.runs) != 1 || rr.runs[0] != want {
		t.Fatalf("runs=%v", rr.runs)
	}
}

func TestCLI_BuildsArgsAndTrims(t *testing.T) {
	t.Parallel()

	rr := &fakeRunner{outputFn: func(name string, args []string) (string, error) {
		return "150", nil
	}}
	m := newTestManager(rr)

	out, err := m.CLI("/tmp/dd", "generatetoaddress 10 addr1", CLIOptions{RPCPort: 18446, Wallet: "miner"})
	if err != nil {
		t.Fatalf("CLI: %v", err)
	}
	if out != "150" {
		t.Fatalf("out=%q", out)
	}

	want := filepath.Join("bitcoin-30.2", "bin", "bitcoin-cli") +
		" -regtest -datadir=/tmp/dd -rpcport=18446 -rpcwallet=miner generatetoaddress 10 addr1"
	if rr.outputs[0] != want {
		t.Fatalf("cmd=%q\nwant %q", rr.outputs[0], want)
	}
}

func TestCLI_FailureCarriesStderr(t *testing.T) {
	t.Parallel()

	rr := &fakeRunner{outputFn: func(string, []string) (string, error) {
		return "", &execx.ExitError{Name: "bitcoin-cli", Code: 1, Stderr: "error: couldn't connect to server\n"}
	}}
	m := newTestManager(rr)

	_, err := m.CLI("/tmp/dd", "getblockcount", CLIOptions{})
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	if cmdErr.Stderr != "error: couldn't connect to server" {
		t.Fatalf("stderr=%q", cmdErr.Stderr)
	}
}

func TestBlockCount(t *testing.T) {
	t.Parallel()

	rr := &fakeRunner{outputFn: func(string, []string) (string, error) {
		return "151", nil
	}}
	m := newTestManager(rr)

	count, err := m.BlockCount("/tmp/dd", 0)
	if err != nil {
		t.Fatalf("BlockCount: %v", err)
	}
	if count != 151 {
		t.Fatalf("count=%d", count)
	}
}

func TestGenerateBlocks_MinesToFreshAddress(t *testing.T) {
	t.Parallel()

	rr := &fakeRunner{outputFn: func(name string, args []string) (string, error) {
		if args[len(args)-1] == "getnewaddress" {
			return "bcrt1qaddr", nil
		}
		return `["hash1"]`, nil
	}}
	m := newTestManager(rr)

	if err := m.GenerateBlocks("/tmp/dd", "miner", 10, 0); err != nil {
		t.Fatalf("GenerateBlocks: %v", err)
	}
	if len(rr.outputs) != 2 {
		t.Fatalf("calls=%v", rr.outputs)
	}
	if !strings.HasSuffix(rr.outputs[1], "generatetoaddress 10 bcrt1qaddr") {
		t.Fatalf("mine cmd=%q", rr.outputs[1])
	}
}

func TestWaitForStart_SucceedsAfterRetries(t *testing.T) {
	t.Parallel()

	calls := 0
	rr := &fakeRunner{outputFn: func(string, []string) (string, error) {
		calls++
		if calls < 3 {
			return "", &execx.ExitError{Name: "bitcoin-cli", Code: 1, Stderr: "connection refused"}
		}
		return `{"chain":"regtest"}`, nil
	}}
	m := newTestManager(rr)

	if err := m.WaitForStart("/tmp/dd", 0, time.Second); err != nil {
		t.Fatalf("WaitForStart: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestWaitForStart_Timeout(t *testing.T) {
	t.Parallel()

	rr := &fakeRunner{outputFn: func(string, []string) (string, error) {
		return "", &execx.ExitError{Name: "bitcoin-cli", Code: 1, Stderr: "connection refused"}
	}}
	m := newTestManager(rr)

	err := m.WaitForStart("/tmp/dd", 0, 20*time.Millisecond)
	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
}

func TestTailDebugLog_MissingLog(t *testing.T) {
	t.Parallel()

	m := newTestManager(&fakeRunner{})
	out, err := m.TailDebugLog(t.TempDir(), 50)
	if err != nil {
		t.Fatalf("TailDebugLog: %v", err)
	}
	if out != "debug log not found" {
		t.Fatalf("out=%q", out)
	}
}

func TestCopyDebugLog(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	logDir := filepath.Join(dataDir, "regtest")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(logDir, "debug.log"), []byte("line1\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "artifacts", "debug.log")
	m := newTestManager(&fakeRunner{})
	if err := m.CopyDebugLog(dataDir, dest); err != nil {
		t.Fatalf("CopyDebugLog: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "line1\n" {
		t.Fatalf("data=%q", data)
	}
}
