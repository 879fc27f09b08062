package certs

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hollyvale/mqttdash/config"
	"github.com/hollyvale/mqttdash/log"
)

// File modes Mosquitto expects: the certificate is world readable, the
// key is not.
const (
	certMode = 0o644
	keyMode  = 0o600
)

// Paths returns the destination certificate and key paths for domain
// under the configured directory.
func Paths(cfg config.CertsConfig, domain string) (certPath, keyPath string) {
	return filepath.Join(cfg.Dir, domain+".crt"), filepath.Join(cfg.Dir, domain+".key")
}

// Install places the certificate and key for domain into the configured
// directory with the correct modes and ownership. Files are written to a
// temporary name and renamed, so a reader never sees a partial file.
func Install(cfg config.CertsConfig, domain, certSrc, keySrc string) (string, string, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return "", "", fmt.Errorf("creating %s: %w", cfg.Dir, err)
	}

	uid, gid, err := lookupOwner(cfg.Owner)
	if err != nil {
		return "", "", err
	}

	certPath, keyPath := Paths(cfg, domain)

	if err := installFile(certSrc, certPath, certMode, uid, gid); err != nil {
		return "", "", err
	}

	if err := installFile(keySrc, keyPath, keyMode, uid, gid); err != nil {
		return "", "", err
	}

	log.Info("Installed certificate", "domain", domain, "cert", certPath, "key", keyPath)

	return certPath, keyPath, nil
}

// Reload runs the configured reload command so the broker picks up the
// new files.
func Reload(ctx context.Context, cfg config.CertsConfig) error {
	if cfg.ReloadCmd == "" {
		return nil
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", cfg.ReloadCmd)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("reload command: %w: %s", err, strings.TrimSpace(string(out)))
	}

	log.Info("Reloaded broker", "command", cfg.ReloadCmd)

	return nil
}

// lookupOwner resolves owner to uid and gid. An empty owner means no
// ownership change (-1 per os.Chown).
func lookupOwner(owner string) (int, int, error) {
	if owner == "" {
		return -1, -1, nil
	}

	u, err := user.Lookup(owner)
	if err != nil {
		return 0, 0, fmt.Errorf("looking up user %s: %w", owner, err)
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing uid %q: %w", u.Uid, err)
	}

	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing gid %q: %w", u.Gid, err)
	}

	return uid, gid, nil
}

func installFile(src, dst string, mode os.FileMode, uid, gid int) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}

	tmp := dst + ".tmp"

	if err := os.WriteFile(tmp, data, mode); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}

	// WriteFile modes are masked by umask.
	if err := os.Chmod(tmp, mode); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("setting mode on %s: %w", tmp, err)
	}

	if uid >= 0 {
		if err := os.Chown(tmp, uid, gid); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("setting owner on %s: %w", tmp, err)
		}
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming to %s: %w", dst, err)
	}

	return nil
}
