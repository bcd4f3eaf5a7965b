// Package probe answers one question: is the node that owns a data
// directory still alive? bitcoind records its PID under
// <datadir>/regtest/bitcoind.pid; the file disappearing or pointing at a
// dead PID is the normal steady state after a crash, never an error.
package probe

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const pidFileName = "bitcoind.pid"

// PIDFile returns the path of the PID record for a regtest node.
func PIDFile(dataDir string) string {
	return filepath.Join(dataDir, "regtest", pidFileName)
}

// ReadPID reads the PID record. ok is false when the record is absent or
// unparsable.
func ReadPID(dataDir string) (pid int, ok bool) {
	data, err := os.ReadFile(PIDFile(dataDir))
	if err != nil {
		return 0, false
	}
	pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// IsRunning reports whether a live process is associated with dataDir.
func IsRunning(dataDir string) bool {
	pid, ok := ReadPID(dataDir)
	if !ok {
		return false
	}
	return alive(pid)
}

// HasExited is the negation convenience used after fault-injected launches.
func HasExited(dataDir string) bool {
	return !IsRunning(dataDir)
}

func alive(pid int) bool {
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	// EPERM: the PID exists but belongs to another user.
	return errors.Is(err, unix.EPERM)
}
