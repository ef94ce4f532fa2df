package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable consulted by Discover.
const EnvConfigPath = "WARDEN_CONFIG"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file, applies defaults for
// unset keys, verifies the file against a sibling .checksums manifest when
// one exists, and validates the result.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "minion.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but minion.yaml not found: %s", absPath)
		}
	}

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg.SourcePath = absPath

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Discover finds the config file by checking standard locations.
// Priority order: explicit path, $WARDEN_CONFIG, /etc/warden/minion.yaml, ./minion.yaml.
// An empty result with nil error means no file exists and defaults apply.
func Discover(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	for _, candidate := range []string{"/etc/warden/minion.yaml", "./minion.yaml"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

// LoadOrDefaults loads the discovered config, or returns validated defaults
// when no file is found.
func LoadOrDefaults(explicit string) (*Config, error) {
	path, err := Discover(explicit)
	if err != nil {
		return nil, err
	}
	if path == "" {
		cfg := Defaults()
		if err := validate(cfg); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}
	return Load(path)
}

// loadConfigFile parses a single file on top of Defaults, so keys absent from
// the file keep their default value.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return parseConfig(data)
}

// parseConfig interpolates ${VAR} references and decodes data over Defaults.
func parseConfig(data []byte) (*Config, error) {
	interpolated := interpolateEnv(string(data))

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

// verifyConfigHash checks path against the .checksums manifest in its
// directory. A missing manifest skips verification.
func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)
	checksums, err := LoadChecksums(dir)
	if err != nil {
		return nil
	}

	basename := filepath.Base(path)
	expectedHash, ok := checksums.Hashes[basename]
	if !ok {
		return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
			"Run: warden config lock --config %s", basename, dir, path)
	}
	if err := VerifyFileHash(path, expectedHash); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"This indicates tampering or unauthorized modification.\n"+
			"If you edited this file intentionally, run: warden config lock --config %s", path, err, path)
	}
	return nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}
