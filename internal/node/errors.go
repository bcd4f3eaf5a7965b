package node

import (
	"fmt"
	"time"
)

// LaunchError reports a node process that failed to launch.
type LaunchError struct {
	DataDir string
	Cause   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch node datadir=%s: %v", e.DataDir, e.Cause)
}

func (e *LaunchError) Unwrap() error { return e.Cause }

// TransientLaunchError reports a fault-injected node that exited right
// after launch. It is retryable: injected I/O faults legitimately kill some
// startups, and a clean relaunch is the expected recovery.
type TransientLaunchError struct {
	DataDir string
}

func (e *TransientLaunchError) Error() string {
	return fmt.Sprintf("node datadir=%s exited shortly after start (likely fault injection)", e.DataDir)
}

// CommandError reports a bitcoin-cli invocation that returned non-zero.
type CommandError struct {
	Command string
	Stderr  string
	Cause   error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("cli command %q failed: %s", e.Command, e.Stderr)
	}
	return fmt.Sprintf("cli command %q failed: %v", e.Command, e.Cause)
}

func (e *CommandError) Unwrap() error { return e.Cause }

// TimeoutError reports a deadline that elapsed before the node responded.
type TimeoutError struct {
	DataDir string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("node datadir=%s did not respond within %s", e.DataDir, e.Timeout)
}
