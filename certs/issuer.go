// Package certs automates the broker's TLS certificate lifecycle:
// issuing via acme.sh with a Hetzner DNS-01 challenge, installing the
// files with the modes and ownership Mosquitto expects, and verifying
// what a listener actually serves.
package certs

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/hollyvale/mqttdash/config"
	"github.com/hollyvale/mqttdash/log"
)

// DNS provider names accepted in the configuration, with their acme.sh
// dns hook and token environment variable.
const (
	ProviderConsole = "hetzner"
	ProviderCloud   = "hetznercloud"
)

// A runFunc executes an external command. Tests substitute a recorder.
type runFunc func(ctx context.Context, env []string, name string, args ...string) error

// Issuer obtains certificates through acme.sh using DNS-01 validation
// against a Hetzner DNS provider.
type Issuer struct {
	cfg config.CertsConfig
	run runFunc
}

// NewIssuer returns an Issuer configured by cfg.
func NewIssuer(cfg config.CertsConfig) *Issuer {
	return &Issuer{cfg: cfg, run: runCommand}
}

// dnsHook maps the configured provider to acme.sh's hook name and the
// environment variable carrying the API token.
func (i *Issuer) dnsHook() (hook, tokenEnv, token string, err error) {
	switch i.cfg.Provider {
	case ProviderConsole:
		return "dns_hetzner", "HETZNER_Token", i.cfg.ConsoleToken, nil
	case ProviderCloud:
		return "dns_hetznercloud", "HCLOUD_TOKEN", i.cfg.CloudToken, nil
	}

	return "", "", "", fmt.Errorf("unknown dns provider %q", i.cfg.Provider)
}

// Issue runs the DNS-01 issuance for domain. acme.sh keeps the issued
// certificate in its own state directory; use Export to copy it out.
func (i *Issuer) Issue(ctx context.Context, domain string) error {
	hook, tokenEnv, token, err := i.dnsHook()
	if err != nil {
		return err
	}

	if token == "" {
		return fmt.Errorf("no API token configured for provider %q", i.cfg.Provider)
	}

	args := []string{"--issue", "--dns", hook, "-d", domain}
	if i.cfg.Staging {
		args = append(args, "--staging")
	}

	env := append(os.Environ(), tokenEnv+"="+token)

	log.Info("Issuing certificate", "domain", domain, "provider", i.cfg.Provider, "staging", i.cfg.Staging)

	if err := i.run(ctx, env, i.cfg.AcmePath, args...); err != nil {
		return fmt.Errorf("acme.sh issue for %s: %w", domain, err)
	}

	return nil
}

// Export copies the issued certificate and key out of acme.sh's state
// directory to certFile and keyFile.
func (i *Issuer) Export(ctx context.Context, domain, certFile, keyFile string) error {
	args := []string{
		"--install-cert", "-d", domain,
		"--fullchain-file", certFile,
		"--key-file", keyFile,
	}

	if err := i.run(ctx, os.Environ(), i.cfg.AcmePath, args...); err != nil {
		return fmt.Errorf("acme.sh install-cert for %s: %w", domain, err)
	}

	return nil
}

func runCommand(ctx context.Context, env []string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
	}

	log.Debug("Command finished", "command", name, "args", strings.Join(args, " "))

	return nil
}
