package modules

import (
	"context"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/mattjoyce/warden/internal/registry"
)

func prefixParam() registry.Signature {
	return registry.Signature{Params: []registry.Param{{Name: "prefix", Default: "", Optional: true}}}
}

func sysEntries(_ Deps, reg *registry.Registry) []registry.Entry {
	return []registry.Entry{
		{
			Name:      "sys.doc",
			Doc:       "Return the documentation of every function starting with prefix.\n\n    warden call sys.doc test.",
			Stateless: true,
			Signature: prefixParam(),
			Func: func(_ context.Context, inv *registry.Invocation) (any, error) {
				prefix, err := inv.StringArg("prefix")
				if err != nil {
					return nil, err
				}
				out := make(map[string]any)
				for name, doc := range reg.Docs(prefix) {
					out[name] = doc
				}
				return out, nil
			},
		},
		{
			Name:      "sys.list_functions",
			Doc:       "List the functions starting with prefix.",
			Stateless: true,
			Signature: prefixParam(),
			Func: func(_ context.Context, inv *registry.Invocation) (any, error) {
				prefix, err := inv.StringArg("prefix")
				if err != nil {
					return nil, err
				}
				out := []any{}
				for _, name := range reg.Names() {
					if strings.HasPrefix(name, prefix) {
						out = append(out, name)
					}
				}
				return out, nil
			},
		},
		{
			Name:      "sys.list_modules",
			Doc:       "List the loaded modules.",
			Stateless: true,
			Func: func(context.Context, *registry.Invocation) (any, error) {
				seen := make(map[string]bool)
				var mods []string
				for _, name := range reg.Names() {
					mod := registry.ModuleOf(name)
					if !seen[mod] {
						seen[mod] = true
						mods = append(mods, mod)
					}
				}
				sort.Strings(mods)
				out := make([]any, 0, len(mods))
				for _, m := range mods {
					out = append(out, m)
				}
				return out, nil
			},
		},
	}
}

func grainsEntries(d Deps, _ *registry.Registry) []registry.Entry {
	return []registry.Entry{
		{
			Name:      "grains.items",
			Doc:       "Return static facts about this host.",
			Stateless: true,
			Func: func(context.Context, *registry.Invocation) (any, error) {
				host, _ := os.Hostname()
				return map[string]any{
					"id":         d.Config.ID,
					"role":       d.Config.Role,
					"host":       host,
					"os":         runtime.GOOS,
					"arch":       runtime.GOARCH,
					"num_cpus":   runtime.NumCPU(),
					"go_version": runtime.Version(),
					"version":    d.Version,
				}, nil
			},
		},
	}
}
