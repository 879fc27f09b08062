package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hollyvale/mqttdash/certs"
	"github.com/hollyvale/mqttdash/hetzner"
	"github.com/hollyvale/mqttdash/log"
)

// NewCmdCert returns the cert command and its subcommands for issuing,
// installing, and verifying TLS certificates through acme.sh with a
// Hetzner DNS-01 challenge.
func NewCmdCert() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cert <command> [flags]",
		Short:   "Manage TLS certificates",
		GroupID: "commands",
		Args:    cobra.NoArgs,

		DisableFlagsInUseLine: true,
	}

	cmd.AddCommand(
		newCmdCertIssue(),
		newCmdCertInstall(),
		newCmdCertVerify(),
	)

	return cmd
}

func newCmdCertIssue() *cobra.Command {
	var domain string

	cmd := &cobra.Command{
		Use:   "issue --domain <domain> [flags]",
		Short: "Issue and install a certificate",
		Long: `Issue a certificate for a domain over a DNS-01 challenge and install it.

The configured API token is validated against the DNS provider and the
responsible zone is resolved before acme.sh is invoked. On success the
certificate and key are exported from the acme.sh store and installed
with the configured ownership, and the reload command is run if one is
set.`,
		Example: `  mqttdash cert issue --domain mqtt.example.com
  mqttdash cert issue --domain mqtt.example.com --provider hetznercloud --staging`,
		Args:    cobra.NoArgs,
		PreRunE: loadConfig,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCertIssue(cmd.Context(), domain)
		},

		DisableFlagsInUseLine: true,
	}

	addCertFlags(cmd, &domain)
	cmd.Flags().BoolVar(&cfgCerts.staging, "staging", false, "Use the Let's Encrypt staging environment")
	cmd.Flags().StringVar(&cfgCerts.owner, "owner", "", "user[:group] that owns the installed files")
	cmd.Flags().StringVar(&cfgCerts.reloadCmd, "reload", "", "Command to run after installing")
	cmd.Flags().StringVar(&cfgCerts.acmePath, "acme-path", "", "Path to the acme.sh script")

	return cmd
}

func newCmdCertInstall() *cobra.Command {
	var (
		domain   string
		certFile string
		keyFile  string
	)

	cmd := &cobra.Command{
		Use:   "install --domain <domain> --cert <path> --key <path> [flags]",
		Short: "Install an already issued certificate",
		Long: `Install a certificate and key that were issued elsewhere.

The files are copied into the certificate directory with the configured
ownership and the standard modes, and the reload command is run if one
is set.`,
		Example: `  mqttdash cert install --domain mqtt.example.com --cert fullchain.pem --key key.pem`,
		Args:    cobra.NoArgs,
		PreRunE: loadConfig,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCertInstall(cmd.Context(), domain, certFile, keyFile)
		},

		DisableFlagsInUseLine: true,
	}

	addCertFlags(cmd, &domain)
	cmd.Flags().StringVar(&certFile, "cert", "", "Path to the certificate chain")
	cmd.Flags().StringVar(&keyFile, "key", "", "Path to the private key")
	_ = cmd.MarkFlagFilename("cert", "pem", "crt")
	_ = cmd.MarkFlagFilename("key", "pem", "key")
	_ = cmd.MarkFlagRequired("cert")
	_ = cmd.MarkFlagRequired("key")
	cmd.Flags().StringVar(&cfgCerts.owner, "owner", "", "user[:group] that owns the installed files")
	cmd.Flags().StringVar(&cfgCerts.reloadCmd, "reload", "", "Command to run after installing")

	return cmd
}

func runCertInstall(ctx context.Context, domain, certFile, keyFile string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	applyCertFlags()

	certPath, keyPath, err := certs.Install(cfg.Certs, domain, certFile, keyFile)
	if err != nil {
		return &ExitError{err, 1}
	}

	log.Info("Installed certificate", "cert", certPath, "key", keyPath)

	if err := certs.Reload(ctx, cfg.Certs); err != nil {
		return &ExitError{err, 1}
	}

	return nil
}

func newCmdCertVerify() *cobra.Command {
	var (
		domain string
		addr   string
		file   string
	)

	cmd := &cobra.Command{
		Use:   "verify --domain <domain> [--addr <host:port> | --file <path>] [flags]",
		Short: "Verify an installed or served certificate",
		Long: `Verify the certificate served on an address or stored in a PEM file.

Without --addr or --file the certificate installed for the domain is
checked. The subject, validity window, and name coverage are reported,
and a non-zero exit status is returned when the certificate is expired,
expires within 30 days, or does not cover the domain.`,
		Example: `  mqttdash cert verify --domain mqtt.example.com
  mqttdash cert verify --domain mqtt.example.com --addr mqtt.example.com:8883`,
		Args:    cobra.NoArgs,
		PreRunE: loadConfig,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCertVerify(cmd, domain, addr, file)
		},

		DisableFlagsInUseLine: true,
	}

	addCertFlags(cmd, &domain)
	cmd.Flags().StringVar(&addr, "addr", "", "host:port serving the certificate")
	cmd.Flags().StringVar(&file, "file", "", "Path to a PEM certificate")
	_ = cmd.MarkFlagFilename("file", "pem", "crt")
	cmd.MarkFlagsMutuallyExclusive("addr", "file")

	return cmd
}

// cfgCerts holds the cert flag values merged over the certs config
// section by applyCertFlags.
var cfgCerts struct {
	provider  string
	dir       string
	owner     string
	reloadCmd string
	acmePath  string
	staging   bool
}

func addCertFlags(cmd *cobra.Command, domain *string) {
	cmd.Flags().SortFlags = false
	cmd.Flags().StringVarP(domain, "domain", "d", "", "Domain to operate on")
	_ = cmd.MarkFlagRequired("domain")
	cmd.Flags().StringVar(&cfgCerts.provider, "provider", "", "DNS provider, either hetzner or hetznercloud")
	cmd.Flags().StringVar(&cfgCerts.dir, "dir", "", "Directory certificates are installed into")
	_ = cmd.MarkFlagDirname("dir")

	addConnectionFlags(cmd)
}

func applyCertFlags() {
	if cfgCerts.provider != "" {
		cfg.Certs.Provider = cfgCerts.provider
	}
	if cfgCerts.dir != "" {
		cfg.Certs.Dir = cfgCerts.dir
	}
	if cfgCerts.owner != "" {
		cfg.Certs.Owner = cfgCerts.owner
	}
	if cfgCerts.reloadCmd != "" {
		cfg.Certs.ReloadCmd = cfgCerts.reloadCmd
	}
	if cfgCerts.acmePath != "" {
		cfg.Certs.AcmePath = cfgCerts.acmePath
	}
	if cfgCerts.staging {
		cfg.Certs.Staging = true
	}
}

func runCertIssue(ctx context.Context, domain string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	applyCertFlags()

	zone, err := resolveZone(ctx, domain)
	if err != nil {
		log.Error("Unable to resolve DNS zone", err, "domain", domain)
		return &ExitError{err, 1}
	}

	log.Info("Resolved DNS zone", "zone", zone.Name, "domain", domain)

	issuer := certs.NewIssuer(cfg.Certs)

	if err := issuer.Issue(ctx, domain); err != nil {
		return &ExitError{err, 1}
	}

	staged, err := os.MkdirTemp("", "mqttdash-cert-")
	if err != nil {
		return &ExitError{err, 1}
	}
	defer func() { _ = os.RemoveAll(staged) }()

	certSrc := filepath.Join(staged, "fullchain.pem")
	keySrc := filepath.Join(staged, "key.pem")

	if err := issuer.Export(ctx, domain, certSrc, keySrc); err != nil {
		return &ExitError{err, 1}
	}

	certPath, keyPath, err := certs.Install(cfg.Certs, domain, certSrc, keySrc)
	if err != nil {
		return &ExitError{err, 1}
	}

	log.Info("Installed certificate", "cert", certPath, "key", keyPath)

	if err := certs.Reload(ctx, cfg.Certs); err != nil {
		return &ExitError{err, 1}
	}

	return nil
}

// resolveZone validates the provider token by listing zones and returns
// the zone responsible for domain.
func resolveZone(ctx context.Context, domain string) (hetzner.Zone, error) {
	var finder hetzner.ZoneFinder

	switch cfg.Certs.Provider {
	case certs.ProviderConsole:
		finder = hetzner.NewConsoleClient(cfg.Certs.ConsoleToken)
	case certs.ProviderCloud:
		finder = hetzner.NewCloudClient(cfg.Certs.CloudToken)
	default:
		return hetzner.Zone{}, fmt.Errorf("unknown DNS provider %q", cfg.Certs.Provider)
	}

	zone, err := finder.FindZone(ctx, domain)
	if errors.Is(err, hetzner.ErrUnauthorized) {
		return hetzner.Zone{}, fmt.Errorf("%s token rejected: %w", cfg.Certs.Provider, err)
	}

	return zone, err
}

func runCertVerify(cmd *cobra.Command, domain, addr, file string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	applyCertFlags()

	var (
		report *certs.Report
		err    error
	)

	switch {
	case addr != "":
		report, err = certs.Verify(ctx, domain, addr, false)
	case file != "":
		report, err = certs.VerifyFile(file, domain)
	default:
		certPath, _ := certs.Paths(cfg.Certs, domain)
		report, err = certs.VerifyFile(certPath, domain)
	}

	if err != nil {
		return &ExitError{err, 1}
	}

	printReport(cmd, report)

	if report.Expired || report.ExpiringSoon || !report.MatchesDomain {
		return &ExitError{errors.New("certificate check failed"), 2}
	}

	return nil
}

func printReport(cmd *cobra.Command, r *certs.Report) {
	cmd.Printf("Subject:    %s\n", r.Subject)
	cmd.Printf("Issuer:     %s\n", r.Issuer)
	cmd.Printf("Names:      %s\n", strings.Join(r.DNSNames, ", "))
	cmd.Printf("Not before: %s\n", r.NotBefore.Format("2006-01-02 15:04:05 MST"))
	cmd.Printf("Not after:  %s (%d days)\n", r.NotAfter.Format("2006-01-02 15:04:05 MST"), r.DaysLeft)

	switch {
	case r.Expired:
		cmd.Println("Status:     EXPIRED")
	case r.ExpiringSoon:
		cmd.Println("Status:     expiring soon")
	case !r.MatchesDomain:
		cmd.Println("Status:     does not cover domain")
	default:
		cmd.Println("Status:     ok")
	}
}
