package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"Pnode/pkg/util"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Default configuration constants. See [Config] for field descriptions.
const (
	DefaultIPBin       = "ip"
	DefaultMountBin    = "mount"
	DefaultUmountBin   = "umount"
	DefaultShell       = "/bin/sh"
	DefaultSessionRoot = "/tmp/pnode"

	// DefaultCommandTimeout of zero leaves synchronous commands unbounded.
	DefaultCommandTimeout = time.Duration(0)

	DefaultLogLevel = util.InfoLevel
)

// Config contains runtime configuration for the bridge.
type Config struct {
	IPBin          string        // iproute2 binary used for link and address changes
	MountBin       string        // mount binary used for bind mounts
	UmountBin      string        // umount binary used for lazy unmounts
	Shell          string        // shell used by ShCmd and terminals
	SessionRoot    string        // parent directory of session directories
	CommandTimeout time.Duration // upper bound for synchronous commands; 0 disables
	LogLevel       util.LogLevel
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
type ConfigOverride struct {
	IPBin          *string `yaml:"ip_bin,omitempty" json:"ip_bin,omitempty" toml:"ip_bin,omitempty"`
	MountBin       *string `yaml:"mount_bin,omitempty" json:"mount_bin,omitempty" toml:"mount_bin,omitempty"`
	UmountBin      *string `yaml:"umount_bin,omitempty" json:"umount_bin,omitempty" toml:"umount_bin,omitempty"`
	Shell          *string `yaml:"shell,omitempty" json:"shell,omitempty" toml:"shell,omitempty"`
	SessionRoot    *string `yaml:"session_root,omitempty" json:"session_root,omitempty" toml:"session_root,omitempty"`
	CommandTimeout *string `yaml:"command_timeout,omitempty" json:"command_timeout,omitempty" toml:"command_timeout,omitempty"`
	LogLevel       *string `yaml:"log_level,omitempty" json:"log_level,omitempty" toml:"log_level,omitempty"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		IPBin:          DefaultIPBin,
		MountBin:       DefaultMountBin,
		UmountBin:      DefaultUmountBin,
		Shell:          DefaultShell,
		SessionRoot:    DefaultSessionRoot,
		CommandTimeout: DefaultCommandTimeout,
		LogLevel:       DefaultLogLevel,
	}
}

// Merge applies non-nil values from override onto this Config.
func (c *Config) Merge(override *ConfigOverride) error {
	if override == nil {
		return nil
	}
	if override.IPBin != nil {
		c.IPBin = *override.IPBin
	}
	if override.MountBin != nil {
		c.MountBin = *override.MountBin
	}
	if override.UmountBin != nil {
		c.UmountBin = *override.UmountBin
	}
	if override.Shell != nil {
		c.Shell = *override.Shell
	}
	if override.SessionRoot != nil {
		c.SessionRoot = *override.SessionRoot
	}
	if override.CommandTimeout != nil {
		d, err := time.ParseDuration(strings.TrimSpace(*override.CommandTimeout))
		if err != nil {
			return fmt.Errorf("failed to parse command_timeout: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("command_timeout must not be negative: %s", d)
		}
		c.CommandTimeout = d
	}
	if override.LogLevel != nil {
		lvl, ok := util.ParseLogLevel(*override.LogLevel)
		if !ok {
			return fmt.Errorf("unknown log_level %q", *override.LogLevel)
		}
		c.LogLevel = lvl
	}
	return nil
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// The format is chosen by extension: .yaml/.yml, .json or .toml.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile merges file overrides onto the defaults. An empty path yields the defaults.
func NewConfigFromFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	if path == "" {
		return cfg, nil
	}
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Merge(override); err != nil {
		return nil, err
	}
	return cfg, nil
}
