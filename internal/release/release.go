// Package release downloads and verifies Bitcoin Core release artifacts,
// and provisions the fault-injection tooling. Everything runs through an
// execx.Runner (wget, gpg, sha256sum, tar, apt-get) so the flow is testable
// without network access.
package release

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"faultctl/internal/execx"
)

// Fetcher downloads and verifies one Bitcoin Core release. Dir is where
// artifacts are expected to land; commands themselves run in the process
// working directory, so Dir only differs in tests.
type Fetcher struct {
	r          execx.Runner
	log        *zap.Logger
	TimeoutSec int
	Dir        string
}

func NewFetcher(r execx.Runner, log *zap.Logger, timeoutSec int) *Fetcher {
	if r == nil {
		r = execx.NewOSRunner(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{r: r, log: log, TimeoutSec: timeoutSec, Dir: "."}
}

// Tarball returns the release tarball filename for a version.
func Tarball(version string) string {
	return fmt.Sprintf("bitcoin-%s-x86_64-linux-gnu.tar.gz", version)
}

// InstallDir returns the directory the tarball extracts to.
func InstallDir(version string) string {
	return "bitcoin-" + version
}

func baseURL(version string) string {
	return "https://bitcoincore.org/bin/bitcoin-core-" + version
}

// Fetch downloads the tarball plus SHA256SUMS and SHA256SUMS.asc, verifies
// the GPG signature and the checksum, then extracts the release.
func (f *Fetcher) Fetch(version string) error {
	tarball := Tarball(version)
	base := baseURL(version)

	f.log.Info("downloading Bitcoin Core", zap.String("version", version))
	if err := f.download(base + "/" + tarball); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(f.Dir, tarball)); err != nil {
		return fmt.Errorf("download file %s not found", tarball)
	}

	f.log.Info("downloading SHA256SUMS")
	if err := f.download(base + "/SHA256SUMS"); err != nil {
		return err
	}
	f.log.Info("downloading SHA256SUMS.asc")
	if err := f.download(base + "/SHA256SUMS.asc"); err != nil {
		return err
	}

	if err := f.verifySignature(); err != nil {
		return err
	}
	if err := f.verifyChecksum(tarball); err != nil {
		return err
	}

	f.log.Info("extracting Bitcoin Core")
	if err := f.r.Run("tar", "-xzf", tarball); err != nil {
		return fmt.Errorf("extract %s: %w", tarball, err)
	}
	if _, err := os.Stat(filepath.Join(f.Dir, InstallDir(version))); err != nil {
		return fmt.Errorf("directory %s not found after extraction", InstallDir(version))
	}
	return nil
}

func (f *Fetcher) download(url string) error {
	err := f.r.Run("wget", "--timeout", strconv.Itoa(f.TimeoutSec), url)
	if err == nil {
		return nil
	}
	var exit *execx.ExitError
	// wget exit code 4 is a network failure, in practice a timeout.
	if errors.As(err, &exit) && exit.Code == 4 {
		f.log.Error("download timed out",
			zap.String("url", url),
			zap.Int("timeout_sec", f.TimeoutSec))
		return fmt.Errorf("download timeout after %d seconds: %s", f.TimeoutSec, url)
	}
	f.log.Error("download failed", zap.String("url", url), zap.Error(err))
	return fmt.Errorf("download %s: %w", url, err)
}

// verifySignature checks SHA256SUMS.asc against SHA256SUMS. The gpg
// machine-readable status stream (--status-fd 1) is the only reliable
// signal; exit codes conflate missing keys with bad signatures.
func (f *Fetcher) verifySignature() error {
	f.log.Info("verifying GPG signature of SHA256SUMS")
	out, err := f.r.Output("gpg", "--status-fd", "1", "--verify", "SHA256SUMS.asc", "SHA256SUMS")

	var goodSig, validSig, missingKey bool
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "[GNUPG:] GOODSIG"):
			goodSig = true
		case strings.HasPrefix(line, "[GNUPG:] VALIDSIG"):
			validSig = true
		case strings.HasPrefix(line, "[GNUPG:] NO_PUBKEY"):
			missingKey = true
		}
	}

	if missingKey {
		f.log.Warn("builder keys not imported; fetch them from https://github.com/bitcoin-core/guix.sigs/tree/main/builder-keys")
		return errors.New("gpg verification failed: Bitcoin Core builder keys not found in keyring")
	}
	if err != nil && !goodSig {
		return fmt.Errorf("gpg verification failed: %w", err)
	}
	if !goodSig || !validSig {
		return errors.New("no valid signature found in SHA256SUMS.asc")
	}

	f.log.Info("GPG signature verification successful")
	return nil
}

func (f *Fetcher) verifyChecksum(tarball string) error {
	f.log.Info("verifying SHA256 checksum")
	out, err := f.r.Output("sha256sum", "--check", "--ignore-missing", "SHA256SUMS")
	if err != nil {
		return fmt.Errorf("sha256 checksum verification failed: %w", err)
	}

	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, tarball) && strings.Contains(line, "OK") {
			f.log.Info("SHA256 checksum verification successful")
			return nil
		}
	}
	return fmt.Errorf("tarball %s not verified in SHA256SUMS", tarball)
}

// InstallFaultInjector installs the libfiu development package and the
// fiu-run launcher via apt-get.
func (f *Fetcher) InstallFaultInjector() error {
	f.log.Info("installing libfiu-dev and fiu-utils")
	_ = f.r.Run("sudo", "apt-get", "update", "-qq")
	if err := f.r.Run("sudo", "apt-get", "install", "-y", "libfiu-dev", "fiu-utils"); err != nil {
		return fmt.Errorf("install libfiu: %w", err)
	}
	f.log.Info("libfiu installed successfully")
	return nil
}
