package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDefaults(t *testing.T) {
	result := Check(Defaults())
	assert.True(t, result.Passed, result.Errors)
	assert.Len(t, result.Warnings, 1)
}

func TestCheckFindings(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Config)
		wantPassed bool
		wantWarns  int
	}{
		{name: "unknown transport", mutate: func(c *Config) { c.Transport = "zeromq" }},
		{name: "unknown role", mutate: func(c *Config) { c.Role = "proxy" }},
		{name: "lane without id", mutate: func(c *Config) {
			c.Transport = TransportLane
			c.ID = ""
		}},
		{name: "lane as master", mutate: func(c *Config) {
			c.Transport = TransportLane
			c.ID = "m1"
			c.Role = KindMaster
		}},
		{name: "missing module dir", mutate: func(c *Config) { c.Modules.Dirs = []string{"/nonexistent/warden-modules"} }},
		{name: "unknown collector warns", mutate: func(c *Config) { c.Return = "sqlite,kafka" }, wantPassed: true, wantWarns: 1},
		{name: "lane as caller", mutate: func(c *Config) {
			c.Transport = TransportLane
			c.ID = "web01"
			c.Role = KindCaller
		}, wantPassed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.SourcePath = "" // skip integrity
			tt.mutate(cfg)
			result := Check(cfg)
			assert.Equal(t, tt.wantPassed, result.Passed, result.Errors)
			// one warning always comes from running without a file
			assert.Len(t, result.Warnings, tt.wantWarns+1)
		})
	}
}

func TestCheckIntegrity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minion.yaml")
	require.NoError(t, os.WriteFile(path, []byte("id: web01\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	result := Check(cfg)
	assert.True(t, result.Passed)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "config lock")

	_, err = Lock(path)
	require.NoError(t, err)
	result = Check(cfg)
	assert.True(t, result.Passed, result.Errors)
	assert.Empty(t, result.Warnings)

	require.NoError(t, os.WriteFile(path, []byte("id: web02\n"), 0o600))
	result = Check(cfg)
	assert.False(t, result.Passed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "hash mismatch")
}
