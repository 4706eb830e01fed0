// Package tls loads mutual-TLS configurations for the pipeline's HTTP
// surfaces. Both directions enforce a TLS 1.3 floor and verify the peer
// against a configured CA; at that version the cipher suite set is fixed by
// the protocol and not configurable.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// Config holds the certificate material for one side of an mTLS connection.
type Config struct {
	Enabled  bool
	CertFile string
	KeyFile  string
	CAFile   string
}

// Validate checks that an enabled configuration names readable certificate
// files. A disabled configuration is always valid.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.CertFile == "" || c.KeyFile == "" || c.CAFile == "" {
		return errors.New("tls enabled but cert/key/ca files not specified")
	}

	return requireFiles(c.CertFile, c.KeyFile, c.CAFile)
}

// NewServerConfig builds a server-side mTLS configuration: the server
// presents certFile/keyFile and requires client certificates signed by the
// CA in caFile.
func NewServerConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	if err := requireFiles(certFile, keyFile, caFile); err != nil {
		return nil, err
	}

	pool, err := loadCertPool(caFile)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		ClientCAs:  pool,
		ClientAuth: tls.RequireAndVerifyClientCert,
		MinVersion: tls.VersionTLS13,
	}, nil
}

// NewClientConfig builds a client-side mTLS configuration: the client
// presents certFile/keyFile and verifies the server against the CA in
// caFile.
func NewClientConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	if err := requireFiles(certFile, keyFile, caFile); err != nil {
		return nil, err
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load client certificate: %w", err)
	}

	pool, err := loadCertPool(caFile)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

func loadCertPool(caFile string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("parse CA certificate %s: no PEM certificates found", caFile)
	}

	return pool, nil
}

func requireFiles(paths ...string) error {
	for _, path := range paths {
		if path == "" {
			return errors.New("certificate file path cannot be empty")
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("certificate file %q: %w", path, err)
		}
	}
	return nil
}
