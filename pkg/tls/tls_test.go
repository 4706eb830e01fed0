package tls

import (
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
	"testing"
	"time"
)

// writeTestCert writes a self-signed certificate and its key into dir. The
// certificate doubles as its own CA for round-trip tests.
func writeTestCert(t *testing.T, dir string) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "pipeline-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}

	certFile = filepath.Join(dir, "cert.pem")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(certFile, certPEM, 0o600); err != nil {
		t.Fatal(err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	keyFile = filepath.Join(dir, "key.pem")
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(keyFile, keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}

	return certFile, keyFile
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{}).Validate(); err != nil {
		t.Errorf("disabled config should validate, got %v", err)
	}

	err := Config{Enabled: true}.Validate()
	if err == nil {
		t.Error("enabled config without files should fail validation")
	}

	err = Config{Enabled: true, CertFile: "absent.pem", KeyFile: "absent.pem", CAFile: "absent.pem"}.Validate()
	if err == nil {
		t.Error("enabled config with missing files should fail validation")
	}

	certFile, keyFile := writeTestCert(t, t.TempDir())
	cfg := Config{Enabled: true, CertFile: certFile, KeyFile: keyFile, CAFile: certFile}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestNewServerConfig(t *testing.T) {
	certFile, keyFile := writeTestCert(t, t.TempDir())

	cfg, err := NewServerConfig(certFile, keyFile, certFile)
	if err != nil {
		t.Fatalf("NewServerConfig() error = %v", err)
	}

	if cfg.MinVersion != tls.VersionTLS13 {
		t.Errorf("MinVersion = %x, want TLS 1.3", cfg.MinVersion)
	}
	if cfg.ClientAuth != tls.RequireAndVerifyClientCert {
		t.Errorf("ClientAuth = %v, want RequireAndVerifyClientCert", cfg.ClientAuth)
	}
	if cfg.ClientCAs == nil {
		t.Error("ClientCAs not set")
	}
}

func TestNewServerConfig_BadCA(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeTestCert(t, dir)

	notPEM := filepath.Join(dir, "ca.pem")
	if err := os.WriteFile(notPEM, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewServerConfig(certFile, keyFile, notPEM); err == nil {
		t.Error("expected error for a CA file without PEM certificates")
	}
}

func TestNewClientConfig(t *testing.T) {
	certFile, keyFile := writeTestCert(t, t.TempDir())

	cfg, err := NewClientConfig(certFile, keyFile, certFile)
	if err != nil {
		t.Fatalf("NewClientConfig() error = %v", err)
	}

	if cfg.MinVersion != tls.VersionTLS13 {
		t.Errorf("MinVersion = %x, want TLS 1.3", cfg.MinVersion)
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("Certificates = %d, want 1", len(cfg.Certificates))
	}
	if cfg.RootCAs == nil {
		t.Error("RootCAs not set")
	}
}

func TestNewClientConfig_MissingFiles(t *testing.T) {
	if _, err := NewClientConfig("", "", ""); err == nil {
		t.Error("expected error for empty paths")
	}
	if _, err := NewClientConfig("a.pem", "b.pem", "c.pem"); err == nil {
		t.Error("expected error for missing files")
	}
}
