// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file for Load.
const EnvironmentVariable = "DHBRIDGE_CONFIG"

// Allocator names accepted in buffers.allocator.
const (
	AllocatorHeap   = "heap"
	AllocatorLocked = "locked"
)

// Config is the configuration shared by dhbridge-responder and the
// dhbridge CLI.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Responder ResponderConfig `yaml:"responder"`
	Initiator InitiatorConfig `yaml:"initiator"`
	Limits    LimitsConfig    `yaml:"limits"`
	Buffers   BuffersConfig   `yaml:"buffers"`
	Identity  IdentityConfig  `yaml:"identity"`
}

// ResponderConfig configures the responder daemon.
type ResponderConfig struct {
	// SocketPath is where the envelope protocol is served.
	SocketPath string `yaml:"socket_path"`

	// ControlSocketPath is where the CBOR status and admin protocol is
	// served.
	ControlSocketPath string `yaml:"control_socket_path"`

	// MaxSessions caps live sessions. Zero means no limit.
	MaxSessions int `yaml:"max_sessions"`

	// IdleTimeout is how long a session may go without traffic before
	// it is reaped. Zero disables reaping.
	IdleTimeout Duration `yaml:"idle_timeout"`

	// ReadTimeout and WriteTimeout bound each connection's I/O.
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`

	// AllowedUIDs restricts which peers may connect. Empty allows any
	// local user that can reach the socket.
	AllowedUIDs []uint32 `yaml:"allowed_uids"`
}

// InitiatorConfig configures the dhbridge CLI's client side.
type InitiatorConfig struct {
	// SocketPath is the responder socket to dial.
	SocketPath string `yaml:"socket_path"`

	// Timeout bounds each round trip.
	Timeout Duration `yaml:"timeout"`

	// MaxResponseSize is the largest plaintext reply accepted.
	MaxResponseSize ByteSize `yaml:"max_response_size"`
}

// LimitsConfig holds protocol limits.
type LimitsConfig struct {
	// MaxBodySize caps envelope bodies read from a stream.
	MaxBodySize ByteSize `yaml:"max_body_size"`
}

// BuffersConfig selects the envelope buffer allocator.
type BuffersConfig struct {
	// Allocator is "heap" or "locked".
	Allocator string `yaml:"allocator"`

	// Limit is the largest single allocation. Zero means no limit.
	Limit ByteSize `yaml:"limit"`
}

// IdentityConfig locates this process's long-term key and the keys it
// trusts.
type IdentityConfig struct {
	// KeyFile is the age-sealed ed25519 seed.
	KeyFile string `yaml:"key_file"`

	// AgeIdentityFile holds the age private key that unseals KeyFile.
	AgeIdentityFile string `yaml:"age_identity_file"`

	// Trusted lists hex-encoded ed25519 public keys of acceptable
	// peers.
	Trusted []string `yaml:"trusted"`
}

// Default returns the default configuration. Identity paths have no
// default; a config that needs them must name them.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Responder: ResponderConfig{
			SocketPath:        "${DHBRIDGE_RUNTIME_DIR:-/run/dhbridge}/responder.sock",
			ControlSocketPath: "${DHBRIDGE_RUNTIME_DIR:-/run/dhbridge}/control.sock",
			MaxSessions:       256,
			IdleTimeout:       Duration(5 * time.Minute),
			ReadTimeout:       Duration(10 * time.Second),
			WriteTimeout:      Duration(10 * time.Second),
		},
		Initiator: InitiatorConfig{
			SocketPath:      "${DHBRIDGE_RUNTIME_DIR:-/run/dhbridge}/responder.sock",
			Timeout:         Duration(30 * time.Second),
			MaxResponseSize: 64 * KiB,
		},
		Limits: LimitsConfig{
			MaxBodySize: 1 * MiB,
		},
		Buffers: BuffersConfig{
			Allocator: AllocatorHeap,
		},
	}
}

// Load loads configuration from the file named by DHBRIDGE_CONFIG.
// There is no fallback if it is unset.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your dhbridge.yaml config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path over the defaults and expands
// path variables. It does not validate.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	for _, field := range []*string{
		&c.Responder.SocketPath,
		&c.Responder.ControlSocketPath,
		&c.Initiator.SocketPath,
		&c.Identity.KeyFile,
		&c.Identity.AgeIdentityFile,
	} {
		*field = expandVars(*field, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// Validate checks the configuration for errors and reports all of them.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}

	if c.Responder.SocketPath == "" {
		errs = append(errs, fmt.Errorf("responder.socket_path is required"))
	}
	if c.Responder.ControlSocketPath == "" {
		errs = append(errs, fmt.Errorf("responder.control_socket_path is required"))
	}
	if c.Responder.SocketPath != "" && c.Responder.SocketPath == c.Responder.ControlSocketPath {
		errs = append(errs, fmt.Errorf("responder.socket_path and responder.control_socket_path must differ"))
	}
	if c.Responder.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("responder.max_sessions must not be negative"))
	}
	if c.Responder.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("responder.idle_timeout must not be negative"))
	}
	if c.Responder.ReadTimeout < 0 || c.Responder.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("responder read and write timeouts must not be negative"))
	}

	if c.Initiator.SocketPath == "" {
		errs = append(errs, fmt.Errorf("initiator.socket_path is required"))
	}
	if c.Initiator.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("initiator.timeout must be positive"))
	}
	if c.Initiator.MaxResponseSize == 0 {
		errs = append(errs, fmt.Errorf("initiator.max_response_size must be positive"))
	}

	if c.Limits.MaxBodySize == 0 {
		errs = append(errs, fmt.Errorf("limits.max_body_size must be positive"))
	} else if c.Initiator.MaxResponseSize >= c.Limits.MaxBodySize {
		errs = append(errs, fmt.Errorf("initiator.max_response_size (%s) must be below limits.max_body_size (%s)",
			c.Initiator.MaxResponseSize, c.Limits.MaxBodySize))
	}

	allocators := []string{AllocatorHeap, AllocatorLocked}
	if !slices.Contains(allocators, c.Buffers.Allocator) {
		errs = append(errs, fmt.Errorf("buffers.allocator must be one of: %v", allocators))
	}

	if (c.Identity.KeyFile == "") != (c.Identity.AgeIdentityFile == "") {
		errs = append(errs, fmt.Errorf("identity.key_file and identity.age_identity_file must be set together"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
