package tlsutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// writeSelfSignedCert generates a throwaway self-signed cert/key pair for
// exercising Config's loading paths.
func writeSelfSignedCert(t *testing.T, dir string) (certPath, keyPath string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "ringdb-test-node"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	certPath = filepath.Join(dir, "node.crt")
	keyPath = filepath.Join(dir, "node.key")

	certOut, err := os.Create(certPath)
	require.NoError(t, err)
	defer certOut.Close()
	require.NoError(t, pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der}))

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	keyOut, err := os.Create(keyPath)
	require.NoError(t, err)
	defer keyOut.Close()
	require.NoError(t, pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}))
	return certPath, keyPath
}

func TestServerConfigLoadsCertificate(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSignedCert(t, dir)

	cfg := Config{CertFile: certPath, KeyFile: keyPath}
	tlsCfg, err := cfg.ServerConfig()
	require.NoError(t, err)
	require.Len(t, tlsCfg.Certificates, 1)
	require.Nil(t, tlsCfg.ClientCAs)
}

func TestDialConfigWithServerName(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSignedCert(t, dir)

	cfg := Config{CertFile: certPath, KeyFile: keyPath, ServerName: "peer-1"}
	tlsCfg, err := cfg.DialConfig()
	require.NoError(t, err)
	require.Equal(t, "peer-1", tlsCfg.ServerName)
}

func TestServerConfigMissingCertFails(t *testing.T) {
	cfg := Config{CertFile: "/nonexistent/node.crt", KeyFile: "/nonexistent/node.key"}
	_, err := cfg.ServerConfig()
	require.Error(t, err)
}
