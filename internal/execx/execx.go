package execx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Runner abstracts command execution so node control and release fetching
// can be unit-tested without bitcoind, fiu-run or network access.
type Runner interface {
	Run(name string, args ...string) error
	Output(name string, args ...string) (string, error)
}

// ExitError carries the exit code and captured stderr of a failed command.
type ExitError struct {
	Name   string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s: exit status %d", e.Name, e.Code)
	}
	return fmt.Sprintf("%s: exit status %d: %s", e.Name, e.Code, msg)
}

// OSRunner executes commands on the host via os/exec.
type OSRunner struct {
	Stdout io.Writer
}

func NewOSRunner(stdout io.Writer) *OSRunner {
	if stdout == nil {
		stdout = os.Stdout
	}
	return &OSRunner{Stdout: stdout}
}

func (r *OSRunner) Run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = r.Stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return wrapExit(name, err, stderr.String())
	}
	return nil
}

// Output runs the command and returns its trimmed stdout. Stdout is returned
// even on failure: some tools (gpg --status-fd 1) report status there
// alongside a non-zero exit.
func (r *OSRunner) Output(name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	out := strings.TrimSpace(stdout.String())
	if err != nil {
		return out, wrapExit(name, err, stderr.String())
	}
	return out, nil
}

func wrapExit(name string, err error, stderr string) error {
	var exit *exec.ExitError
	if errors.As(err, &exit) {
		return &ExitError{Name: name, Code: exit.ExitCode(), Stderr: stderr}
	}
	return fmt.Errorf("%s: %w", name, err)
}
