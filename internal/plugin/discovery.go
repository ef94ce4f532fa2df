// Package plugin loads external execution modules: directories holding a
// manifest.yaml and an executable entrypoint that implements the module's
// functions over a JSON stdin/stdout exchange.
package plugin

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/warden/internal/log"
)

const (
	supportedProtocol = 1
	manifestFilename  = "manifest.yaml"
)

// Catalog holds discovered modules by name, plus the modules that failed to
// load and why.
type Catalog struct {
	plugins map[string]*Plugin
	failed  map[string]error
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		plugins: make(map[string]*Plugin),
		failed:  make(map[string]error),
	}
}

// Get retrieves a module by name.
func (c *Catalog) Get(name string) (*Plugin, bool) {
	p, ok := c.plugins[name]
	return p, ok
}

// All returns the loaded modules sorted by name.
func (c *Catalog) All() []*Plugin {
	out := make([]*Plugin, 0, len(c.plugins))
	for _, p := range c.plugins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Failed returns module name → load error.
func (c *Catalog) Failed() map[string]error {
	return c.failed
}

// Add registers a module in the catalog.
func (c *Catalog) Add(p *Plugin) error {
	if _, exists := c.plugins[p.Name]; exists {
		return fmt.Errorf("module %q already loaded", p.Name)
	}
	c.plugins[p.Name] = p
	return nil
}

// Discover scans module roots for manifest.yaml files and validates them.
// Roots are processed in input order; duplicate module names keep the first
// discovered module. Invalid modules are recorded in Failed, not returned as
// errors.
func Discover(roots []string) (*Catalog, error) {
	logger := log.WithComponent("plugin")

	absRoots := make([]string, 0, len(roots))
	seenRoots := make(map[string]struct{}, len(roots))
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve module root %q: %w", root, err)
		}
		info, err := os.Stat(absRoot)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("module root does not exist: %s", absRoot)
			}
			return nil, fmt.Errorf("failed to stat module root %s: %w", absRoot, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("module root is not a directory: %s", absRoot)
		}
		if _, ok := seenRoots[absRoot]; ok {
			continue
		}
		seenRoots[absRoot] = struct{}{}
		absRoots = append(absRoots, absRoot)
	}

	catalog := NewCatalog()
	for _, root := range absRoots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() || d.Name() != manifestFilename {
				return nil
			}

			modPath := filepath.Dir(path)
			p, name, err := loadPlugin(modPath, root)
			if err != nil {
				logger.Warn("failed to load module", "module", name, "path", modPath, "error", err)
				if _, loaded := catalog.plugins[name]; !loaded {
					catalog.failed[name] = err
				}
				return nil
			}

			if existing, ok := catalog.Get(p.Name); ok {
				logger.Warn("duplicate module ignored (keeping first discovered)",
					"module", p.Name, "ignored_path", p.Path, "kept_path", existing.Path)
				return nil
			}
			_ = catalog.Add(p)
			delete(catalog.failed, p.Name)
			logger.Debug("loaded module", "module", p.Name, "path", p.Path, "version", p.Version)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan module root %s: %w", root, err)
		}
	}

	return catalog, nil
}

// loadPlugin reads and validates a single module. The returned name is the
// manifest name when readable, else the directory name, so load errors can
// be attributed to a module.
func loadPlugin(modPath, root string) (*Plugin, string, error) {
	name := filepath.Base(modPath)

	data, err := os.ReadFile(filepath.Join(modPath, manifestFilename))
	if err != nil {
		return nil, name, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, name, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}
	if manifest.Name != "" && !strings.Contains(manifest.Name, ".") {
		name = manifest.Name
	}

	if err := validateManifest(&manifest); err != nil {
		return nil, name, fmt.Errorf("invalid manifest: %w", err)
	}
	if manifest.Protocol != supportedProtocol {
		return nil, name, fmt.Errorf("unsupported protocol version %d (supported: %d)", manifest.Protocol, supportedProtocol)
	}

	entrypoint := filepath.Join(modPath, manifest.Entrypoint)
	if err := validateTrust(entrypoint, modPath, root); err != nil {
		return nil, name, fmt.Errorf("trust validation failed: %w", err)
	}

	return &Plugin{
		Name:        manifest.Name,
		Path:        modPath,
		Entrypoint:  entrypoint,
		Version:     manifest.Version,
		Description: manifest.Description,
		Timeout:     manifest.Timeout,
		Functions:   manifest.Functions,
	}, name, nil
}

// validateTrust requires the entrypoint to resolve inside both the module
// root and the module directory, to be executable, and the module directory
// not to be world-writable.
func validateTrust(entrypointPath, modPath, root string) error {
	resolvedEntrypoint, err := filepath.EvalSymlinks(entrypointPath)
	if err != nil {
		return fmt.Errorf("failed to resolve entrypoint symlink: %w", err)
	}
	resolvedModPath, err := filepath.EvalSymlinks(modPath)
	if err != nil {
		return fmt.Errorf("failed to resolve module path symlink: %w", err)
	}
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return fmt.Errorf("failed to resolve module root symlink %s: %w", root, err)
	}

	if !strings.HasPrefix(resolvedEntrypoint, resolvedRoot+string(os.PathSeparator)) {
		return fmt.Errorf("entrypoint %s is not under module root %s", resolvedEntrypoint, resolvedRoot)
	}
	if !strings.HasPrefix(resolvedEntrypoint, resolvedModPath+string(os.PathSeparator)) {
		return fmt.Errorf("entrypoint %s is not under module directory %s", resolvedEntrypoint, resolvedModPath)
	}

	info, err := os.Stat(resolvedEntrypoint)
	if err != nil {
		return fmt.Errorf("entrypoint not found: %w", err)
	}
	if info.Mode()&0o111 == 0 {
		return fmt.Errorf("entrypoint is not executable: %s", resolvedEntrypoint)
	}

	modInfo, err := os.Stat(resolvedModPath)
	if err != nil {
		return fmt.Errorf("module directory not found: %w", err)
	}
	if modInfo.Mode().Perm()&0o002 != 0 {
		return fmt.Errorf("module directory is world-writable: %s", resolvedModPath)
	}
	return nil
}
