// Package tlsutil loads the certificate material ringdb's listeners and
// delegated connections use. The TLS library itself is an external
// collaborator whose contract is fixed (spec §1); this package is
// limited to loading and configuring it the way the teacher's
// pkg/security does for its own node certificates.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// Config names the certificate material for one node's listeners and
// outbound replica connections.
type Config struct {
	CertFile string
	KeyFile  string
	CAFile   string
	// ServerName overrides the expected peer certificate name on
	// outbound dials; useful when peers are addressed by IP.
	ServerName string
	// InsecureSkipVerify disables certificate verification — only ever
	// meant for local development clusters without a shared CA.
	InsecureSkipVerify bool
}

// ServerConfig builds a *tls.Config for listener sockets: it presents
// this node's certificate and, when a CA file is given, requires and
// verifies client certificates (mutual TLS between replicas).
func (c Config) ServerConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load node certificate: %w", err)
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if c.CAFile != "" {
		pool, err := loadCAPool(c.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg, nil
}

// DialConfig builds a *tls.Config for outbound connections to peers:
// this node's certificate is presented for mutual TLS, and the peer's
// certificate is verified against the shared CA when one is configured.
func (c Config) DialConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load node certificate: %w", err)
	}
	cfg := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		MinVersion:         tls.VersionTLS12,
		ServerName:         c.ServerName,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}
	if c.CAFile != "" {
		pool, err := loadCAPool(c.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

func loadCAPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}
