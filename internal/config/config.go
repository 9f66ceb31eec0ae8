// Package config loads and validates the control plane configuration from
// environment variables. All settings have sensible defaults so the binary
// works out of the box for local development without any .env file.
//
// Both binaries (cmd/apiserver, cmd/worker) call Load() once at startup and
// treat the returned Config as immutable afterwards.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration shared by the API server and the
// worker. Values are loaded once at startup via Load().
type Config struct {
	// APIAddr is the HTTP listen address for the management API.
	APIAddr string

	// RedisHost/RedisPort address the external store (§4.2). The four
	// logical namespaces (queue, snapshot, EP-index, SV-index) are DB
	// indices 0..3 on the same Redis instance.
	RedisHost string
	RedisPort int

	// LDSPath, CDSPath, EDSPath are the on-disk locations of the three
	// proxy configuration documents the worker rewrites after every
	// changed apply (§6.4).
	LDSPath string
	CDSPath string
	EDSPath string
}

// Redis DB indices, fixed by the store contract (§4.2) — not configurable,
// since the proxy and any operational tooling assume this layout.
const (
	RedisQueueDB    = 0
	RedisSnapshotDB = 1
	RedisEPIndexDB  = 2
	RedisSVIndexDB  = 3
)

// RedisAddr returns "host:port" for dialing Redis.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// Load reads configuration from environment variables via viper, falling
// back to defaults suitable for local development. An error is returned
// only if a value fails to parse (currently only REDIS_PORT can fail).
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	v.SetDefault("API_ADDR", ":8888")
	v.SetDefault("REDIS_SERVER", "127.0.0.1")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("LDS_JSON", "/etc/envoy/lds.json")
	v.SetDefault("CDS_JSON", "/etc/envoy/cds.json")
	v.SetDefault("EDS_JSON", "/etc/envoy/eds.json")

	cfg := &Config{
		APIAddr:   v.GetString("API_ADDR"),
		RedisHost: v.GetString("REDIS_SERVER"),
		RedisPort: v.GetInt("REDIS_PORT"),
		LDSPath:   v.GetString("LDS_JSON"),
		CDSPath:   v.GetString("CDS_JSON"),
		EDSPath:   v.GetString("EDS_JSON"),
	}
	if cfg.RedisPort <= 0 {
		return nil, fmt.Errorf("invalid REDIS_PORT %d", cfg.RedisPort)
	}
	return cfg, nil
}
