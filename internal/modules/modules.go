// Package modules provides the built-in execution modules and loads the
// external ones into a function registry.
package modules

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattjoyce/warden/internal/config"
	"github.com/mattjoyce/warden/internal/log"
	"github.com/mattjoyce/warden/internal/plugin"
	"github.com/mattjoyce/warden/internal/registry"
	"github.com/mattjoyce/warden/internal/transport"
)

// ErrDisabled is recorded as the load error of a module switched off in
// configuration.
var ErrDisabled = errors.New("module disabled in configuration")

// Deps are what the built-in modules need from the host.
type Deps struct {
	Config *config.Config
	// Channel opens the channel event.fire_master sends through. The call
	// context carries any lane binding the channel needs.
	Channel func(ctx context.Context) (transport.ReturnChannel, error)
	Version string
}

// module is one built-in module: its name and a constructor for its entries.
type module struct {
	name    string
	entries func(d Deps, reg *registry.Registry) []registry.Entry
}

func builtins() []module {
	return []module{
		{name: "test", entries: testEntries},
		{name: "cmd", entries: cmdEntries},
		{name: "event", entries: eventEntries},
		{name: "sys", entries: sysEntries},
		{name: "grains", entries: grainsEntries},
	}
}

// Load registers the enabled built-in modules, then the external modules
// found under modules.dirs.
func Load(reg *registry.Registry, d Deps) error {
	if d.Config == nil {
		return fmt.Errorf("modules: config is required")
	}
	logger := log.WithComponent("modules")

	for _, m := range builtins() {
		if d.Config.ModuleDisabled(m.name) {
			reg.SetLoadError(m.name, ErrDisabled)
			logger.Debug("module disabled", "module", m.name)
			continue
		}
		for _, e := range m.entries(d, reg) {
			if err := reg.Register(e); err != nil {
				return fmt.Errorf("register %s: %w", e.Name, err)
			}
		}
	}

	if len(d.Config.Modules.Dirs) == 0 {
		return nil
	}
	catalog, err := plugin.Discover(d.Config.Modules.Dirs)
	if err != nil {
		return fmt.Errorf("discover external modules: %w", err)
	}
	for _, name := range plugin.Register(reg, catalog, d.Config.ModuleDisabled) {
		reg.SetLoadError(name, ErrDisabled)
		logger.Debug("module disabled", "module", name)
	}
	logger.Debug("external modules loaded", "count", len(catalog.All()), "failed", len(catalog.Failed()))
	return nil
}
