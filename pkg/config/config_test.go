package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testTimeout() <-chan time.Time {
	return time.After(2 * time.Second)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ringdb.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const validConfig = `
node_id = "node-1"
bind_ip = "127.0.0.1"
base_port = 9042
data_dir = "/var/lib/ringdb"
replication_factor = 3
seeds = ["10.0.0.1:9042", "10.0.0.2:9042"]

[tls]
cert_file = "/etc/ringdb/node.crt"
key_file = "/etc/ringdb/node.key"
ca_file = "/etc/ringdb/ca.crt"
`

func TestLoadParsesAndValidatesAWellFormedConfig(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "node-1", cfg.NodeID)
	require.Equal(t, 9042, cfg.BasePort)
	require.Equal(t, 3, cfg.ReplicationFactor)
	require.Equal(t, []string{"10.0.0.1:9042", "10.0.0.2:9042"}, cfg.Seeds)
	require.Equal(t, "/etc/ringdb/node.crt", cfg.TLS.CertFile)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
node_id = "node-1"
data_dir = "/var/lib/ringdb"

[tls]
cert_file = "/etc/ringdb/node.crt"
key_file = "/etc/ringdb/node.key"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", cfg.BindIP)
	require.Equal(t, 9042, cfg.BasePort)
	require.Equal(t, 3, cfg.ReplicationFactor)
	require.Equal(t, "127.0.0.1:9090", cfg.MetricsAddr)
}

func TestLoadRejectsMissingNodeID(t *testing.T) {
	path := writeConfig(t, `
data_dir = "/var/lib/ringdb"

[tls]
cert_file = "/etc/ringdb/node.crt"
key_file = "/etc/ringdb/node.key"
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsReplicationFactorOutOfRange(t *testing.T) {
	path := writeConfig(t, `
node_id = "node-1"
data_dir = "/var/lib/ringdb"
replication_factor = 0

[tls]
cert_file = "/etc/ringdb/node.crt"
key_file = "/etc/ringdb/node.key"
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingTLSCertFile(t *testing.T) {
	path := writeConfig(t, `
node_id = "node-1"
data_dir = "/var/lib/ringdb"

[tls]
key_file = "/etc/ringdb/node.key"
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsBasePortWithoutRoomForListeners(t *testing.T) {
	cfg := &Config{
		NodeID:            "node-1",
		BindIP:            "0.0.0.0",
		BasePort:          65535,
		DataDir:           "/var/lib/ringdb",
		ReplicationFactor: 3,
		TLS:               TLS{CertFile: "a", KeyFile: "b"},
	}

	err := cfg.Validate()
	require.Error(t, err)
}

func TestWatchSeedsInvokesCallbackOnFileChange(t *testing.T) {
	path := writeConfig(t, validConfig)

	changed := make(chan []string, 1)
	require.NoError(t, WatchSeeds(path, func(seeds []string) {
		changed <- seeds
	}))

	updated := validConfig + "\n# trigger a reload\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	select {
	case seeds := <-changed:
		require.Equal(t, []string{"10.0.0.1:9042", "10.0.0.2:9042"}, seeds)
	case <-testTimeout():
		t.Skip("filesystem watch did not fire within the test window (fsnotify backend/CI dependent)")
	}
}
