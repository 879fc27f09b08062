package certs

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/hollyvale/mqttdash/log"
)

// expiryWarning is how close to expiry a certificate may get before the
// report flags it for renewal.
const expiryWarning = 30 * 24 * time.Hour

// Report describes a certificate checked by Verify or VerifyFile.
type Report struct {
	Subject       string
	Issuer        string
	DNSNames      []string
	NotBefore     time.Time
	NotAfter      time.Time
	DaysLeft      int
	Expired       bool
	ExpiringSoon  bool
	MatchesDomain bool
}

// Verify connects to addr over TLS and reports on the certificate the
// listener presents. insecure skips chain validation, which is needed
// for staging or self-signed certificates.
func Verify(ctx context.Context, domain, addr string, insecure bool) (*Report, error) {
	dialer := &tls.Dialer{
		Config: &tls.Config{
			ServerName:         domain,
			InsecureSkipVerify: insecure,
		},
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil, fmt.Errorf("no certificate presented by %s", addr)
	}

	return report(state.PeerCertificates[0], domain), nil
}

// VerifyFile reports on a PEM certificate file on disk.
func VerifyFile(certPath, domain string) (*Report, error) {
	data, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", certPath, err)
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("%s is not a PEM certificate", certPath)
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", certPath, err)
	}

	return report(cert, domain), nil
}

func report(cert *x509.Certificate, domain string) *Report {
	now := time.Now()
	left := cert.NotAfter.Sub(now)

	r := &Report{
		Subject:       cert.Subject.CommonName,
		Issuer:        cert.Issuer.CommonName,
		DNSNames:      cert.DNSNames,
		NotBefore:     cert.NotBefore,
		NotAfter:      cert.NotAfter,
		DaysLeft:      int(left.Hours() / 24),
		Expired:       now.After(cert.NotAfter) || now.Before(cert.NotBefore),
		ExpiringSoon:  left > 0 && left < expiryWarning,
		MatchesDomain: cert.VerifyHostname(domain) == nil,
	}

	if r.Expired {
		log.Warn("Certificate is outside its validity window", "domain", domain, "not_after", cert.NotAfter)
	} else if r.ExpiringSoon {
		log.Warn("Certificate expires soon", "domain", domain, "days_left", r.DaysLeft)
	}

	return r
}

// WaitTXT polls DNS until fqdn has a TXT record containing value, the
// usual propagation wait before completing a DNS-01 challenge.
func WaitTXT(ctx context.Context, fqdn, value string, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	resolver := &net.Resolver{}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		records, err := resolver.LookupTXT(ctx, fqdn)
		if err == nil {
			for _, txt := range records {
				if txt == value {
					return nil
				}
			}
		}

		log.Debug("Waiting for TXT propagation", "fqdn", fqdn)

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for TXT record %s: %w", fqdn, ctx.Err())
		case <-ticker.C:
		}
	}
}
