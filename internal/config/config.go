// Package config decodes the daemon's and the LCP server's on-disk
// configuration into the structures their respective commands need,
// layered on top of the viper setup the cand and lcpd commands share (see
// cmd's bindViper).
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"go.lab.dev/cand/internal/hook"
)

// TLSConfig is the optional deterministic-TLS stanza attachable to any
// listener: the daemon's client "listen" entries and the LCP listener.
type TLSConfig struct {
	Token string `mapstructure:"token"`
}

// BackendConfig selects and configures the daemon's uplink.
type BackendConfig struct {
	Kind      string `mapstructure:"kind"`    // "socketcan" or "net"
	Interface string `mapstructure:"interface"`
	Connect   string `mapstructure:"connect"`
}

// ListenConfig is one client-facing TCP listener.
type ListenConfig struct {
	Kind string     `mapstructure:"kind"` // "tcp"
	Bind string     `mapstructure:"bind"`
	TLS  *TLSConfig `mapstructure:"tls"`
}

// DaemonConfig is the cand daemon's full configuration.
type DaemonConfig struct {
	Backend BackendConfig  `mapstructure:"backend"`
	Listen  []ListenConfig `mapstructure:"listen"`
	Hook    []hook.Rule    `mapstructure:"hook"`
}

// LoadDaemonConfig decodes a DaemonConfig from v, which must already have
// its config file read and flags bound (see the cmd package's bindViper).
func LoadDaemonConfig(v *viper.Viper) (*DaemonConfig, error) {
	var cfg DaemonConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode daemon config: %w", err)
	}
	if cfg.Backend.Kind == "" {
		return nil, fmt.Errorf("config: backend.kind is required")
	}
	return &cfg, nil
}

// ChannelConfig is one channel's static configuration within a device.
type ChannelConfig struct {
	ID            string         `mapstructure:"id"`
	DisplayName   string         `mapstructure:"display_name"`
	Room          string         `mapstructure:"room"`
	Kind          string         `mapstructure:"kind"`
	Driver        string         `mapstructure:"driver"`
	DriverOptions map[string]any `mapstructure:"driver_options"`
}

// DeviceConfig is one device's static configuration.
type DeviceConfig struct {
	ID          string          `mapstructure:"id"`
	DisplayName string          `mapstructure:"display_name"`
	WikiURL     string          `mapstructure:"wiki_url"`
	Channels    []ChannelConfig `mapstructure:"channels"`
}

// RoomConfig names one room in the topology.
type RoomConfig struct {
	ID          string `mapstructure:"id"`
	DisplayName string `mapstructure:"display_name"`
}

// LCPConfig is the lcpd server's full configuration.
type LCPConfig struct {
	Rooms   []RoomConfig   `mapstructure:"rooms"`
	Devices []DeviceConfig `mapstructure:"devices"`
	Listen  string         `mapstructure:"listen"`
	TLS     *TLSConfig     `mapstructure:"tls"`
}

// LoadLCPConfig decodes an LCPConfig from v.
func LoadLCPConfig(v *viper.Viper) (*LCPConfig, error) {
	var cfg LCPConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode lcp config: %w", err)
	}
	return &cfg, nil
}
