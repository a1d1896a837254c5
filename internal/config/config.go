// Package config loads the server's runtime configuration from a YAML
// file into a Constants value, applying defaults for anything omitted.
// A Constants is built once at startup and passed by reference into
// every component that needs it; nothing in this server reads from a
// process-wide global.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Constants holds every tunable named in the configuration table. Each
// field's yaml tag gives its lower_snake_case key in the config file.
type Constants struct {
	ServerPort              int      `yaml:"server_port"`
	SecureServerPort        int      `yaml:"secure_server_port"`
	HostName                string   `yaml:"host_name"`
	MaxReadLineSizeBytes    int      `yaml:"max_read_line_size_bytes"`
	MaxReadSizeBytes        int64    `yaml:"max_read_size_bytes"`
	SocketTimeoutMillis     int      `yaml:"socket_timeout_millis"`
	KeepAliveTimeoutSeconds int      `yaml:"keep_alive_timeout_seconds"`
	VulnSeekingJailDuration int      `yaml:"vuln_seeking_jail_duration_millis"`
	IsTheBrigEnabled        bool     `yaml:"is_the_brig_enabled"`
	DBDirectory             string   `yaml:"db_directory"`
	StaticFilesDirectory    string   `yaml:"static_files_directory"`
	SuspiciousPaths         []string `yaml:"suspicious_paths"`
	MaxConcurrentConns      int      `yaml:"max_concurrent_connections"`
	ShutdownGraceMillis     int      `yaml:"shutdown_grace_millis"`
	BrigSweepIntervalMillis int      `yaml:"brig_sweep_interval_millis"`
}

// defaults mirrors the original's Constants class: every field gets a
// hard-coded fallback, overridden by whatever the config file sets.
func defaults() Constants {
	return Constants{
		ServerPort:              8080,
		SecureServerPort:        0,
		HostName:                "0.0.0.0",
		MaxReadLineSizeBytes:    1024,
		MaxReadSizeBytes:        10 * 1024 * 1024,
		SocketTimeoutMillis:     60_000,
		KeepAliveTimeoutSeconds: 20,
		VulnSeekingJailDuration: 600_000,
		IsTheBrigEnabled:        true,
		DBDirectory:             "",
		StaticFilesDirectory:    "",
		SuspiciousPaths: []string{
			".php", ".env", "wp-login", "admin.cgi", "/cgi-bin/",
		},
		MaxConcurrentConns:      512,
		ShutdownGraceMillis:     5_000,
		BrigSweepIntervalMillis: 30_000,
	}
}

// SocketTimeout returns SocketTimeoutMillis as a time.Duration.
func (c Constants) SocketTimeout() time.Duration {
	return time.Duration(c.SocketTimeoutMillis) * time.Millisecond
}

// ShutdownGrace returns ShutdownGraceMillis as a time.Duration.
func (c Constants) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceMillis) * time.Millisecond
}

// VulnSeekingJailTTL returns VulnSeekingJailDuration as a time.Duration.
func (c Constants) VulnSeekingJailTTL() time.Duration {
	return time.Duration(c.VulnSeekingJailDuration) * time.Millisecond
}

// BrigSweepInterval returns BrigSweepIntervalMillis as a time.Duration.
func (c Constants) BrigSweepInterval() time.Duration {
	return time.Duration(c.BrigSweepIntervalMillis) * time.Millisecond
}

// Load reads path as YAML into a Constants, starting from defaults so
// any key the file omits keeps its default value.
func Load(path string) (Constants, error) {
	c := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return Constants{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Constants{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return c, nil
}

// Default returns the built-in defaults, for callers running without a
// config file.
func Default() Constants {
	return defaults()
}
