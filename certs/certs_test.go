package certs

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hollyvale/mqttdash/config"
)

type recordedRun struct {
	name string
	args []string
	env  []string
}

func recordingIssuer(cfg config.CertsConfig) (*Issuer, *[]recordedRun) {
	var runs []recordedRun

	i := NewIssuer(cfg)
	i.run = func(_ context.Context, env []string, name string, args ...string) error {
		runs = append(runs, recordedRun{name: name, args: args, env: env})
		return nil
	}

	return i, &runs
}

func hasEnv(env []string, kv string) bool {
	for _, e := range env {
		if e == kv {
			return true
		}
	}

	return false
}

func TestIssuerConsoleProvider(t *testing.T) {
	i, runs := recordingIssuer(config.CertsConfig{
		Provider:     ProviderConsole,
		ConsoleToken: "console-token",
		AcmePath:     "acme.sh",
	})

	if err := i.Issue(context.Background(), "mqtt.example.com"); err != nil {
		t.Fatal(err)
	}

	if len(*runs) != 1 {
		t.Fatalf("ran %d commands, want 1", len(*runs))
	}

	run := (*runs)[0]
	want := "--issue --dns dns_hetzner -d mqtt.example.com"

	if run.name != "acme.sh" || strings.Join(run.args, " ") != want {
		t.Errorf("command = %s %v", run.name, run.args)
	}

	if !hasEnv(run.env, "HETZNER_Token=console-token") {
		t.Error("expected HETZNER_Token in environment")
	}
}

func TestIssuerCloudProviderStaging(t *testing.T) {
	i, runs := recordingIssuer(config.CertsConfig{
		Provider:   ProviderCloud,
		CloudToken: "cloud-token",
		AcmePath:   "acme.sh",
		Staging:    true,
	})

	if err := i.Issue(context.Background(), "mqtt.example.com"); err != nil {
		t.Fatal(err)
	}

	run := (*runs)[0]
	joined := strings.Join(run.args, " ")

	if !strings.Contains(joined, "--dns dns_hetznercloud") || !strings.Contains(joined, "--staging") {
		t.Errorf("args = %v", run.args)
	}

	if !hasEnv(run.env, "HCLOUD_TOKEN=cloud-token") {
		t.Error("expected HCLOUD_TOKEN in environment")
	}
}

func TestIssuerMissingToken(t *testing.T) {
	i, _ := recordingIssuer(config.CertsConfig{Provider: ProviderConsole, AcmePath: "acme.sh"})

	if err := i.Issue(context.Background(), "mqtt.example.com"); err == nil {
		t.Error("expected an error without a token")
	}

	i, _ = recordingIssuer(config.CertsConfig{Provider: "route53", AcmePath: "acme.sh"})

	if err := i.Issue(context.Background(), "mqtt.example.com"); err == nil {
		t.Error("expected an error for an unknown provider")
	}
}

func TestIssuerExport(t *testing.T) {
	i, runs := recordingIssuer(config.CertsConfig{
		Provider:     ProviderConsole,
		ConsoleToken: "x",
		AcmePath:     "acme.sh",
	})

	err := i.Export(context.Background(), "mqtt.example.com", "/tmp/c.crt", "/tmp/c.key")
	if err != nil {
		t.Fatal(err)
	}

	joined := strings.Join((*runs)[0].args, " ")
	if !strings.Contains(joined, "--install-cert") || !strings.Contains(joined, "--fullchain-file /tmp/c.crt") {
		t.Errorf("args = %v", (*runs)[0].args)
	}
}

func TestInstall(t *testing.T) {
	dir := t.TempDir()
	src := t.TempDir()

	certSrc := filepath.Join(src, "fullchain.pem")
	keySrc := filepath.Join(src, "key.pem")

	if err := os.WriteFile(certSrc, []byte("CERT"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(keySrc, []byte("KEY"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.CertsConfig{Dir: dir}

	certPath, keyPath, err := Install(cfg, "mqtt.example.com", certSrc, keySrc)
	if err != nil {
		t.Fatal(err)
	}

	if certPath != filepath.Join(dir, "mqtt.example.com.crt") {
		t.Errorf("certPath = %s", certPath)
	}

	certInfo, err := os.Stat(certPath)
	if err != nil {
		t.Fatal(err)
	}

	if certInfo.Mode().Perm() != 0o644 {
		t.Errorf("cert mode = %o, want 644", certInfo.Mode().Perm())
	}

	keyInfo, err := os.Stat(keyPath)
	if err != nil {
		t.Fatal(err)
	}

	if keyInfo.Mode().Perm() != 0o600 {
		t.Errorf("key mode = %o, want 600", keyInfo.Mode().Perm())
	}

	data, err := os.ReadFile(certPath)
	if err != nil {
		t.Fatal(err)
	}

	if string(data) != "CERT" {
		t.Errorf("cert content = %q", data)
	}
}

func TestInstallMissingSource(t *testing.T) {
	cfg := config.CertsConfig{Dir: t.TempDir()}

	_, _, err := Install(cfg, "mqtt.example.com", "/nonexistent.crt", "/nonexistent.key")
	if err == nil {
		t.Error("expected an error for a missing source file")
	}
}

// selfSigned generates a certificate for domain valid for the given
// duration, returning PEM bytes and the TLS pair.
func selfSigned(t *testing.T, domain string, validFor time.Duration) ([]byte, tls.Certificate) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: domain},
		DNSNames:     []string{domain},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(validFor),
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		t.Fatal(err)
	}

	return certPEM, pair
}

func TestVerifyFile(t *testing.T) {
	certPEM, _ := selfSigned(t, "mqtt.example.com", 90*24*time.Hour)

	path := filepath.Join(t.TempDir(), "cert.pem")
	if err := os.WriteFile(path, certPEM, 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := VerifyFile(path, "mqtt.example.com")
	if err != nil {
		t.Fatal(err)
	}

	if !r.MatchesDomain {
		t.Error("expected domain match")
	}

	if r.Expired || r.ExpiringSoon {
		t.Errorf("report = %+v, want valid and not expiring soon", r)
	}

	if r.DaysLeft < 88 || r.DaysLeft > 90 {
		t.Errorf("DaysLeft = %d, want about 90", r.DaysLeft)
	}
}

func TestVerifyFileExpiringSoon(t *testing.T) {
	certPEM, _ := selfSigned(t, "mqtt.example.com", 5*24*time.Hour)

	path := filepath.Join(t.TempDir(), "cert.pem")
	if err := os.WriteFile(path, certPEM, 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := VerifyFile(path, "mqtt.example.com")
	if err != nil {
		t.Fatal(err)
	}

	if !r.ExpiringSoon {
		t.Errorf("report = %+v, want expiring soon", r)
	}

	other, err := VerifyFile(path, "other.example.net")
	if err != nil {
		t.Fatal(err)
	}

	if other.MatchesDomain {
		t.Error("wrong domain should not match")
	}
}

func TestVerifyListener(t *testing.T) {
	_, pair := selfSigned(t, "mqtt.example.com", 90*24*time.Hour)

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{pair}})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ln.Close() }()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}

			// Drive the handshake so the client sees the certificate.
			_, _ = conn.Read(make([]byte, 1))
			_ = conn.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r, err := Verify(ctx, "mqtt.example.com", ln.Addr().String(), true)
	if err != nil {
		t.Fatal(err)
	}

	if !r.MatchesDomain || r.Expired {
		t.Errorf("report = %+v", r)
	}

	if len(r.DNSNames) != 1 || r.DNSNames[0] != "mqtt.example.com" {
		t.Errorf("DNSNames = %v", r.DNSNames)
	}
}
