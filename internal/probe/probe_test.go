package probe

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func writePIDFile(t *testing.T, dataDir, content string) {
	t.Helper()
	dir := filepath.Join(dataDir, "regtest")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bitcoind.pid"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestIsRunning_NoPIDFile(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	if IsRunning(dataDir) {
		t.Fatal("expected not running without a PID file")
	}
	if !HasExited(dataDir) {
		t.Fatal("expected HasExited without a PID file")
	}
}

func TestIsRunning_GarbledPIDFile(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	writePIDFile(t, dataDir, "not-a-pid\n")
	if IsRunning(dataDir) {
		t.Fatal("expected not running with garbled PID file")
	}
}

func TestIsRunning_LiveProcess(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	writePIDFile(t, dataDir, strconv.Itoa(os.Getpid())+"\n")
	if !IsRunning(dataDir) {
		t.Fatal("expected running for our own PID")
	}
	if HasExited(dataDir) {
		t.Fatal("expected HasExited false for our own PID")
	}
}

func TestIsRunning_DeadPID(t *testing.T) {
	t.Parallel()

	// Beyond the kernel's default pid_max, so no process can own it.
	dataDir := t.TempDir()
	writePIDFile(t, dataDir, "999999999")
	if IsRunning(dataDir) {
		t.Fatal("expected not running for a dead PID")
	}
}

func TestReadPID(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	writePIDFile(t, dataDir, "  4242\n")
	pid, ok := ReadPID(dataDir)
	if !ok || pid != 4242 {
		t.Fatalf("pid=%d ok=%t", pid, ok)
	}

	if got := PIDFile(dataDir); got != filepath.Join(dataDir, "regtest", "bitcoind.pid") {
		t.Fatalf("PIDFile=%q", got)
	}
}
