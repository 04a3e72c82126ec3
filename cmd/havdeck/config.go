package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the havdeck daemon.
//
// The config file is the primary configuration surface; flags exist for small
// overrides and environments where a file is awkward. Defaults and validation
// are centralized here so the rest of the code can assume a well-formed
// config.
type Config struct {
	// Device connection and credentials
	Device DeviceConfig `yaml:"device"`

	// Session retry/reboot policy
	Session SessionConfig `yaml:"session"`

	// Preview thumbnail polling
	Preview PreviewConfig `yaml:"preview"`

	// Host-facing websocket surface
	Surface SurfaceConfig `yaml:"surface"`

	// IPC configuration (used by havdeck-ctl and scripting)
	IPC IPCConfig `yaml:"ipc"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type DeviceConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	HTTPS    bool   `yaml:"https"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// LoginTimeoutMS bounds a single login request. This is deliberately
	// much shorter than the reconnect interval.
	LoginTimeoutMS int `yaml:"login_timeout_ms"`
}

type SessionConfig struct {
	// AutoRetry keeps reconnecting after failures until a login succeeds
	// or the daemon shuts down.
	AutoRetry bool `yaml:"auto_retry"`

	RetryIntervalSec int `yaml:"retry_interval_sec"`

	// RebootWaitSec sizes the post-reboot retry wait to the device's
	// typical reboot duration.
	RebootWaitSec int `yaml:"reboot_wait_sec"`
}

type PreviewConfig struct {
	Enabled    bool   `yaml:"enabled"`
	IntervalMS int    `yaml:"interval_ms"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	Path       string `yaml:"path,omitempty"` // override for the default screenshot path
}

type SurfaceConfig struct {
	Port int `yaml:"port"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go defaults and current CLI defaults.
func DefaultConfig() Config {
	return Config{
		Device: DeviceConfig{
			Host:           "",
			Port:           defaultDevicePort,
			HTTPS:          false,
			Username:       "haiadmin",
			Password:       "",
			LoginTimeoutMS: defaultLoginTimeoutMS,
		},
		Session: SessionConfig{
			AutoRetry:        true,
			RetryIntervalSec: defaultRetryIntervalSec,
			RebootWaitSec:    defaultRebootWaitSec,
		},
		Preview: PreviewConfig{
			Enabled:    true,
			IntervalMS: defaultPreviewIntervalMS,
			Width:      defaultPreviewWidth,
			Height:     defaultPreviewHeight,
			Path:       defaultPreviewPath,
		},
		Surface: SurfaceConfig{
			Port: defaultSurfacePort,
		},
		IPC: IPCConfig{
			SocketPath: defaultIPCSocket,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file.
//
// Notes:
//   - Unknown fields are rejected (helps catch typos) via KnownFields(true).
//   - A trailing second YAML document is rejected.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides applies overrides from flags on top of a loaded config.
// Flags pass pointers; each override is only applied if the pointer is
// non-nil.
type FlagOverrides struct {
	DeviceHost     *string
	DevicePort     *int
	DeviceHTTPS    *bool
	DeviceUsername *string
	DevicePassword *string

	RetryIntervalSec *int
	RebootWaitSec    *int

	PreviewEnabled    *bool
	PreviewIntervalMS *int

	SurfacePort   *int
	IPCSocketPath *string

	LogLevel *string
}

// Apply merges the overrides into cfg. Nil pointers are ignored.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.DeviceHost != nil {
		cfg.Device.Host = *o.DeviceHost
	}
	if o.DevicePort != nil {
		cfg.Device.Port = *o.DevicePort
	}
	if o.DeviceHTTPS != nil {
		cfg.Device.HTTPS = *o.DeviceHTTPS
	}
	if o.DeviceUsername != nil {
		cfg.Device.Username = *o.DeviceUsername
	}
	if o.DevicePassword != nil {
		cfg.Device.Password = *o.DevicePassword
	}
	if o.RetryIntervalSec != nil {
		cfg.Session.RetryIntervalSec = *o.RetryIntervalSec
	}
	if o.RebootWaitSec != nil {
		cfg.Session.RebootWaitSec = *o.RebootWaitSec
	}
	if o.PreviewEnabled != nil {
		cfg.Preview.Enabled = *o.PreviewEnabled
	}
	if o.PreviewIntervalMS != nil {
		cfg.Preview.IntervalMS = *o.PreviewIntervalMS
	}
	if o.SurfacePort != nil {
		cfg.Surface.Port = *o.SurfacePort
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	if c.Device.Host == "" {
		return errors.New("device.host must not be empty")
	}
	if c.Device.Port <= 0 || c.Device.Port > 65535 {
		return errors.New("device.port must be between 1 and 65535")
	}
	if c.Device.Username == "" {
		return errors.New("device.username must not be empty")
	}
	if c.Device.LoginTimeoutMS <= 0 {
		return errors.New("device.login_timeout_ms must be > 0")
	}

	if c.Session.RetryIntervalSec <= 0 {
		return errors.New("session.retry_interval_sec must be > 0")
	}
	if c.Session.RebootWaitSec <= 0 {
		return errors.New("session.reboot_wait_sec must be > 0")
	}

	if c.Preview.Enabled {
		if c.Preview.IntervalMS <= 0 {
			return errors.New("preview.interval_ms must be > 0")
		}
		if c.Preview.Width <= 0 || c.Preview.Height <= 0 {
			return errors.New("preview.width and preview.height must be > 0")
		}
	}

	if c.Surface.Port <= 0 || c.Surface.Port > 65535 {
		return errors.New("surface.port must be between 1 and 65535")
	}
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// ToReducerConfig converts file config into the reducer's policy knobs.
func (c *Config) ToReducerConfig() ReducerConfig {
	path := c.Preview.Path
	if path == "" {
		path = defaultPreviewPath
	}
	return ReducerConfig{
		AutoRetry:          c.Session.AutoRetry,
		RetryInterval:      time.Duration(c.Session.RetryIntervalSec) * time.Second,
		RebootWait:         time.Duration(c.Session.RebootWaitSec) * time.Second,
		PreviewEnabled:     c.Preview.Enabled,
		PreviewInterval:    time.Duration(c.Preview.IntervalMS) * time.Millisecond,
		DefaultPreviewPath: path,
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
