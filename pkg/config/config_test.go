package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"Pnode/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestNewConfigFromFile_EmptyPath(t *testing.T) {
	t.Parallel()

	cfg, err := NewConfigFromFile("")
	require.NoError(t, err)
	assert.Equal(t, NewDefaultConfig(), cfg, "must use default values when no config provided")
}

func TestNewConfigFromFile_Formats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		data string
	}{
		{"yaml", "cfg.yaml", "ip_bin: /sbin/ip\ncommand_timeout: 5s\nlog_level: debug\n"},
		{"json", "cfg.json", `{"ip_bin": "/sbin/ip", "command_timeout": "5s", "log_level": "debug"}`},
		{"toml", "cfg.toml", "ip_bin = \"/sbin/ip\"\ncommand_timeout = \"5s\"\nlog_level = \"debug\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewConfigFromFile(writeFile(t, tt.file, tt.data))
			require.NoError(t, err)

			assert.Equal(t, "/sbin/ip", cfg.IPBin)
			assert.Equal(t, 5*time.Second, cfg.CommandTimeout)
			assert.Equal(t, util.DebugLevel, cfg.LogLevel)
			// untouched fields keep their defaults
			assert.Equal(t, DefaultMountBin, cfg.MountBin)
			assert.Equal(t, DefaultShell, cfg.Shell)
		})
	}
}

func TestNewConfigFromFile_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewConfigFromFile(writeFile(t, "cfg.ini", "x=1"))
	assert.ErrorContains(t, err, "unknown config file extension")

	_, err = NewConfigFromFile(writeFile(t, "cfg.yaml", "command_timeout: soon\n"))
	assert.ErrorContains(t, err, "command_timeout")

	_, err = NewConfigFromFile(writeFile(t, "cfg.yaml", "log_level: loud\n"))
	assert.ErrorContains(t, err, "log_level")

	_, err = NewConfigFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_MergeNil(t *testing.T) {
	t.Parallel()

	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Merge(nil))
	assert.Equal(t, NewDefaultConfig(), cfg)
}
