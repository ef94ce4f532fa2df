package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Transport selectors understood by the caller factory.
const (
	TransportBroker = "broker"
	TransportLane   = "lane"
)

// Application kinds a process may run as.
const (
	KindMaster = "master"
	KindMinion = "minion"
	KindSyndic = "syndic"
	KindCaller = "caller"
)

// Kinds lists every recognized application kind.
var Kinds = []string{KindMaster, KindMinion, KindSyndic, KindCaller}

// Config represents the complete warden agent configuration.
type Config struct {
	// ID is the minion identity; it doubles as the lane role identifier.
	ID string `yaml:"id"`
	// Role is the application kind this process runs as.
	Role string `yaml:"role"`
	// Transport explicitly selects the return transport. Empty means
	// fall back to Master.Transport, then broker.
	Transport string       `yaml:"transport,omitempty"`
	Master    MasterConfig `yaml:"master"`

	CacheDir string `yaml:"cache_dir"`
	SockDir  string `yaml:"sock_dir"`

	Local      bool   `yaml:"local"`
	FileClient string `yaml:"file_client,omitempty"`
	// Return is the comma-separated collector list.
	Return             string `yaml:"return,omitempty"`
	RetcodePassthrough bool   `yaml:"retcode_passthrough"`
	Metadata           bool   `yaml:"metadata"`
	Output             string `yaml:"output,omitempty"`
	NoColor            bool   `yaml:"no_color"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Lane         LaneConfig         `yaml:"lane"`
	Collectors   CollectorsConfig   `yaml:"collectors"`
	MasterServer MasterServerConfig `yaml:"master_server"`
	Modules      ModulesConfig      `yaml:"modules"`

	// SourcePath is the file this config was loaded from, if any.
	SourcePath string `yaml:"-"`
}

// MasterConfig describes the remote endpoint results are relayed to.
type MasterConfig struct {
	Address   string        `yaml:"address"`
	Transport string        `yaml:"transport,omitempty"`
	Timeout   time.Duration `yaml:"timeout"`
}

// LaneConfig tunes the peer-lane bootstrap.
type LaneConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	// SettleDelay is the grace period applied after the rendezvous endpoint
	// is observed and probed.
	SettleDelay time.Duration `yaml:"settle_delay"`
	// RendezvousTimeout bounds the wait for the peer endpoint. Zero waits forever.
	RendezvousTimeout time.Duration `yaml:"rendezvous_timeout"`
	Probe             *bool         `yaml:"probe,omitempty"`
	ProbeTimeout      time.Duration `yaml:"probe_timeout"`
	SendTimeout       time.Duration `yaml:"send_timeout"`
	// PeerCommand overrides the companion process command line.
	PeerCommand []string `yaml:"peer_command,omitempty"`
}

// ProbeEnabled reports whether the readiness probe runs after rendezvous.
func (l LaneConfig) ProbeEnabled() bool {
	return l.Probe == nil || *l.Probe
}

// CollectorsConfig configures the named collectors.
type CollectorsConfig struct {
	SQLite SQLiteCollectorConfig `yaml:"sqlite"`
	Redis  RedisCollectorConfig  `yaml:"redis"`
}

// SQLiteCollectorConfig configures the local job cache collector.
type SQLiteCollectorConfig struct {
	Path string `yaml:"path"`
}

// RedisCollectorConfig configures the redis collector.
type RedisCollectorConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password,omitempty"`
	DB        int           `yaml:"db"`
	TTL       time.Duration `yaml:"ttl"`
	KeyPrefix string        `yaml:"key_prefix"`
}

// MasterServerConfig configures `warden master serve`.
type MasterServerConfig struct {
	Listen string `yaml:"listen"`
	DBPath string `yaml:"db_path"`
}

// ModulesConfig controls which modules load.
type ModulesConfig struct {
	Disabled []string `yaml:"disabled,omitempty"`
	// Dirs are roots scanned for external modules (manifest.yaml + entrypoint).
	Dirs []string `yaml:"dirs,omitempty"`
}

// defaultID names the host when no id is configured.
func defaultID() string {
	host, err := os.Hostname()
	if err != nil {
		return ""
	}
	return host
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	probe := true
	return &Config{
		ID:   defaultID(),
		Role: KindMinion,
		Master: MasterConfig{
			Address: "http://127.0.0.1:4506",
			Timeout: 30 * time.Second,
		},
		CacheDir:  "/var/cache/warden",
		SockDir:   "/var/run/warden",
		LogLevel:  "warning",
		LogFormat: "text",
		Lane: LaneConfig{
			PollInterval:      100 * time.Millisecond,
			SettleDelay:       7 * time.Second,
			RendezvousTimeout: 5 * time.Minute,
			Probe:             &probe,
			ProbeTimeout:      2 * time.Second,
			SendTimeout:       5 * time.Second,
		},
		Collectors: CollectorsConfig{
			Redis: RedisCollectorConfig{
				Addr:      "127.0.0.1:6379",
				TTL:       24 * time.Hour,
				KeyPrefix: "warden:",
			},
		},
		MasterServer: MasterServerConfig{
			Listen: "127.0.0.1:4506",
		},
	}
}

// TransportSelector resolves the configured transport: the explicit field,
// else the master's transport, else broker.
func (c *Config) TransportSelector() string {
	if t := strings.TrimSpace(c.Transport); t != "" {
		return t
	}
	if t := strings.TrimSpace(c.Master.Transport); t != "" {
		return t
	}
	return TransportBroker
}

// IsLocal reports local-only mode: no relay to the master.
func (c *Config) IsLocal() bool {
	return c.Local || c.FileClient == "local"
}

// CollectorNames splits the return list, dropping empty entries.
func (c *Config) CollectorNames() []string {
	var out []string
	for _, name := range strings.Split(c.Return, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// ProcDir is the scratch directory holding in-flight job markers.
func (c *Config) ProcDir() string {
	return filepath.Join(c.CacheDir, "proc")
}

// JobCachePath is the SQLite job cache used by the sqlite collector.
func (c *Config) JobCachePath() string {
	if c.Collectors.SQLite.Path != "" {
		return c.Collectors.SQLite.Path
	}
	return filepath.Join(c.CacheDir, "jobs.db")
}

// MasterDBPath is the SQLite store of the master receiver.
func (c *Config) MasterDBPath() string {
	if c.MasterServer.DBPath != "" {
		return c.MasterServer.DBPath
	}
	return filepath.Join(c.CacheDir, "master.db")
}

// ModuleDisabled reports whether a built-in module is switched off.
func (c *Config) ModuleDisabled(name string) bool {
	for _, d := range c.Modules.Disabled {
		if strings.TrimSpace(d) == name {
			return true
		}
	}
	return false
}
