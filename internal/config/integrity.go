package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// KnownCollectors lists the collector names `return` may reference.
var KnownCollectors = []string{"sqlite", "redis", "log"}

// CheckResult collects the findings of Check. Errors make a call fail;
// warnings only degrade it.
type CheckResult struct {
	Passed   bool     `json:"passed"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func (r *CheckResult) fail(format string, args ...any) {
	r.Passed = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *CheckResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Check inspects a loaded configuration beyond what Load validates: file
// integrity, the transport selector, the application kind, collectors and
// module directories.
func Check(cfg *Config) *CheckResult {
	result := &CheckResult{Passed: true}

	if cfg.SourcePath == "" {
		result.warn("no configuration file found; running on defaults")
	} else {
		checkIntegrity(cfg.SourcePath, result)
	}

	switch sel := cfg.TransportSelector(); sel {
	case TransportBroker, TransportLane:
	default:
		result.fail("transport %q is not one of: %s, %s", sel, TransportBroker, TransportLane)
	}

	if !slices.Contains(Kinds, cfg.Role) {
		result.fail("role %q is not a known application kind", cfg.Role)
	}
	if cfg.TransportSelector() == TransportLane {
		if cfg.ID == "" {
			result.fail("id is required for the lane transport")
		}
		if cfg.Role != KindMinion && cfg.Role != KindCaller {
			result.fail("role %q cannot use the lane transport", cfg.Role)
		}
	}

	for _, name := range cfg.CollectorNames() {
		if !slices.Contains(KnownCollectors, name) {
			result.warn("collector %q is not known and will be skipped", name)
		}
	}

	for _, dir := range cfg.Modules.Dirs {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			result.fail("modules.dirs entry %s is not a directory", dir)
		}
	}

	return result
}

// checkIntegrity compares path against the .checksums manifest next to it.
// A missing manifest is a warning, a mismatch an error.
func checkIntegrity(path string, result *CheckResult) {
	dir := filepath.Dir(path)
	manifest, err := LoadChecksums(dir)
	if err != nil {
		result.warn("no .checksums manifest at %s; run 'warden config lock' to enable integrity verification", dir)
		return
	}

	expectedHash, ok := manifest.Hashes[filepath.Base(path)]
	if !ok {
		result.fail("file %s not in .checksums manifest", path)
		return
	}
	actualHash, err := ComputeBlake3Hash(path)
	if err != nil {
		result.fail("failed to hash %s: %v", path, err)
		return
	}
	if actualHash != expectedHash {
		result.fail("hash mismatch for %s (expected %s, got %s)", path, expectedHash, actualHash)
	}
}
