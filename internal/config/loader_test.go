package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr bool
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "minimal valid config keeps defaults",
			yaml: `
id: alpha
cache_dir: /tmp/warden-cache
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.ID != "alpha" {
					t.Errorf("id = %q, want alpha", cfg.ID)
				}
				if cfg.CacheDir != "/tmp/warden-cache" {
					t.Error("cache_dir not parsed")
				}
				if cfg.SockDir != "/var/run/warden" {
					t.Errorf("sock_dir default not applied, got %q", cfg.SockDir)
				}
				if cfg.Lane.PollInterval != 100*time.Millisecond {
					t.Errorf("lane.poll_interval default = %v", cfg.Lane.PollInterval)
				}
				if cfg.Lane.SettleDelay != 7*time.Second {
					t.Errorf("lane.settle_delay default = %v", cfg.Lane.SettleDelay)
				}
				if !cfg.Lane.ProbeEnabled() {
					t.Error("lane.probe should default to enabled")
				}
				if cfg.SourcePath == "" {
					t.Error("SourcePath not recorded")
				}
			},
		},
		{
			name: "lane tuning and nested transport",
			yaml: `
id: alpha
role: caller
master:
  address: http://master.example:4506
  transport: lane
  timeout: 10s
lane:
  poll_interval: 50ms
  settle_delay: 0s
  rendezvous_timeout: 0s
  probe: false
return: sqlite, redis
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.TransportSelector() != TransportLane {
					t.Errorf("selector = %q, want lane", cfg.TransportSelector())
				}
				if cfg.Master.Timeout != 10*time.Second {
					t.Error("master.timeout not parsed")
				}
				if cfg.Lane.RendezvousTimeout != 0 {
					t.Error("lane.rendezvous_timeout not parsed")
				}
				if cfg.Lane.ProbeEnabled() {
					t.Error("lane.probe: false not honored")
				}
				names := cfg.CollectorNames()
				if len(names) != 2 || names[0] != "sqlite" || names[1] != "redis" {
					t.Errorf("collector names = %v", names)
				}
			},
		},
		{
			name: "env interpolation",
			yaml: `
id: ${WARDEN_TEST_ID}
collectors:
  redis:
    password: ${WARDEN_TEST_REDIS_PW}
`,
			env: map[string]string{"WARDEN_TEST_ID": "beta", "WARDEN_TEST_REDIS_PW": "s3cret"},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.ID != "beta" {
					t.Errorf("id = %q, want beta", cfg.ID)
				}
				if cfg.Collectors.Redis.Password != "s3cret" {
					t.Error("redis password not interpolated")
				}
			},
		},
		{
			name: "unresolved redis password",
			yaml: `
collectors:
  redis:
    password: ${WARDEN_TEST_UNSET_PW}
`,
			wantErr: true,
		},
		{
			name:    "bad log format",
			yaml:    "log_format: xml\n",
			wantErr: true,
		},
		{
			name:    "negative rendezvous timeout",
			yaml:    "lane:\n  rendezvous_timeout: -1s\n",
			wantErr: true,
		},
		{
			name:    "invalid yaml",
			yaml:    "id: [unterminated\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := filepath.Join(t.TempDir(), "minion.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}

			cfg, err := Load(path)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoadDirectoryUsesMinionYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "minion.yaml"), []byte("id: gamma\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load(dir) error = %v", err)
	}
	if cfg.ID != "gamma" {
		t.Fatalf("id = %q, want gamma", cfg.ID)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestTransportSelector(t *testing.T) {
	cfg := Defaults()
	if got := cfg.TransportSelector(); got != TransportBroker {
		t.Fatalf("default selector = %q, want broker", got)
	}

	cfg.Master.Transport = "lane"
	if got := cfg.TransportSelector(); got != TransportLane {
		t.Fatalf("nested selector = %q, want lane", got)
	}

	cfg.Transport = "broker"
	if got := cfg.TransportSelector(); got != TransportBroker {
		t.Fatalf("explicit selector = %q, want broker", got)
	}
}

func TestIsLocal(t *testing.T) {
	cfg := Defaults()
	if cfg.IsLocal() {
		t.Fatal("defaults should not be local")
	}
	cfg.FileClient = "local"
	if !cfg.IsLocal() {
		t.Fatal("file_client: local should imply local mode")
	}
	cfg.FileClient = ""
	cfg.Local = true
	if !cfg.IsLocal() {
		t.Fatal("local: true should imply local mode")
	}
}

func TestCollectorNamesSkipsEmpty(t *testing.T) {
	cfg := Defaults()
	if names := cfg.CollectorNames(); len(names) != 0 {
		t.Fatalf("empty return list produced %v", names)
	}
	cfg.Return = ",sqlite,,"
	names := cfg.CollectorNames()
	if len(names) != 1 || names[0] != "sqlite" {
		t.Fatalf("CollectorNames() = %v, want [sqlite]", names)
	}
}

func TestLoadOrDefaultsWithoutFile(t *testing.T) {
	t.Setenv(EnvConfigPath, filepath.Join(t.TempDir(), "absent.yaml"))
	t.Chdir(t.TempDir())

	cfg, err := LoadOrDefaults("")
	if err != nil {
		t.Fatalf("LoadOrDefaults() error = %v", err)
	}
	if cfg.SourcePath != "" {
		t.Fatalf("SourcePath = %q, want empty for defaults", cfg.SourcePath)
	}
	if host, err := os.Hostname(); err == nil && cfg.ID != host {
		t.Fatalf("id = %q, want hostname %q", cfg.ID, host)
	}
}
