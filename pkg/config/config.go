// Package config loads a ringdb node's durable identity: base port, data
// directory, replication factor, seed list, and TLS cert paths. Unlike
// warren, which configures itself entirely from cobra flags, a ring node
// must remember who it is across restarts, so this settles on a TOML
// file loaded through viper (grounded in untoldecay/BeadsLog's config
// layering) with cobra flags overriding it.
package config

import (
	"fmt"

	"github.com/asaskevich/govalidator"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// TLS names the certificate material a node loads at startup (see
// pkg/tlsutil.Config, which this is converted into).
type TLS struct {
	CertFile string `mapstructure:"cert_file" valid:"required"`
	KeyFile  string `mapstructure:"key_file" valid:"required"`
	CAFile   string `mapstructure:"ca_file" valid:"optional"`
}

// Config is a single node's durable configuration.
type Config struct {
	// NodeID names this node in logs; it does not participate in the
	// ring (positions are assigned by the seed at bootstrap, §4.8).
	NodeID string `mapstructure:"node_id" valid:"required"`

	// BindIP is the address this node's listeners bind to.
	BindIP string `mapstructure:"bind_ip" valid:"required"`

	// BasePort is the lowest of the node's seven listener ports
	// (spec §6 port layout: client, delegation, data-access,
	// metadata, seed, gossip, hints occupy BasePort..BasePort+6).
	BasePort int `mapstructure:"base_port" valid:"range(1|65535)"`

	// DataDir holds bbolt storage files, metadata JSON, the hint
	// queue, and the credential store.
	DataDir string `mapstructure:"data_dir" valid:"required"`

	// ReplicationFactor is the cluster-wide RF applied to keyspaces
	// that don't override it.
	ReplicationFactor int `mapstructure:"replication_factor" valid:"range(1|10)"`

	// Seeds is the initial contact list used for gossip bootstrap
	// (spec §4.8). It is hot-reloadable: WatchSeeds below re-reads it on
	// file change without touching the rest of Config.
	Seeds []string `mapstructure:"seeds" valid:"optional"`

	TLS TLS `mapstructure:"tls" valid:"required"`

	// MetricsAddr is where pkg/metrics.Handler is served.
	MetricsAddr string `mapstructure:"metrics_addr" valid:"optional"`
}

// Load reads a TOML config file at path, applies defaults, and validates
// the result. Field-level validation follows the struct-tag idiom
// jaegertracing/jaeger uses for its Cassandra storage config.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetDefault("bind_ip", "0.0.0.0")
	v.SetDefault("base_port", 9042)
	v.SetDefault("replication_factor", 3)
	v.SetDefault("metrics_addr", "127.0.0.1:9090")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the struct tags above and the cross-field invariants
// they can't express.
func (c *Config) Validate() error {
	if _, err := govalidator.ValidateStruct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.BasePort+6 > 65535 {
		return fmt.Errorf("invalid config: base_port %d leaves no room for the seven listener ports", c.BasePort)
	}
	return nil
}

// WatchSeeds re-reads the seed list from path whenever the file changes
// on disk and invokes onChange with the refreshed list. It does not
// touch any other field of Config: a node's identity, ports, and RF are
// fixed at startup, but the seed list used for gossip bootstrap is
// expected to grow and shrink as operators add or retire seed nodes.
func WatchSeeds(path string, onChange func([]string)) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		onChange(v.GetStringSlice("seeds"))
	})
	v.WatchConfig()
	return nil
}
