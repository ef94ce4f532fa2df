package plugin

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mattjoyce/warden/internal/registry"
)

var functionName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Param declares one parameter of an external function.
type Param struct {
	Name     string `yaml:"name"`
	Default  any    `yaml:"default,omitempty"`
	Optional bool   `yaml:"optional,omitempty"`
}

// Function declares one callable of an external module.
type Function struct {
	Name      string  `yaml:"name"`
	Doc       string  `yaml:"doc,omitempty"`
	Output    string  `yaml:"output,omitempty"`
	Params    []Param `yaml:"params,omitempty"`
	VarArgs   bool    `yaml:"varargs,omitempty"`
	VarKwargs bool    `yaml:"kwargs,omitempty"`
}

// Signature converts the declared parameters for argument binding. A
// parameter with a default is optional.
func (f Function) Signature() registry.Signature {
	sig := registry.Signature{VarArgs: f.VarArgs, VarKwargs: f.VarKwargs}
	for _, p := range f.Params {
		sig.Params = append(sig.Params, registry.Param{
			Name:     p.Name,
			Default:  p.Default,
			Optional: p.Optional || p.Default != nil,
		})
	}
	return sig
}

// Manifest defines the structure of a module's manifest.yaml file.
type Manifest struct {
	Name        string        `yaml:"name"`
	Version     string        `yaml:"version"`
	Protocol    int           `yaml:"protocol"`
	Entrypoint  string        `yaml:"entrypoint"`
	Description string        `yaml:"description,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	Functions   []Function    `yaml:"functions"`
}

// Plugin represents a discovered and validated external module.
type Plugin struct {
	Name        string // Module name from manifest
	Path        string // Absolute path to module directory
	Entrypoint  string // Absolute path to entrypoint executable
	Version     string
	Description string
	Timeout     time.Duration
	Functions   []Function
}

// Function returns the declared function called name.
func (p *Plugin) Function(name string) (Function, bool) {
	for _, f := range p.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return Function{}, false
}

// QualifiedNames returns module.function for every declared function.
func (p *Plugin) QualifiedNames() []string {
	out := make([]string, 0, len(p.Functions))
	for _, f := range p.Functions {
		out = append(out, p.Name+"."+f.Name)
	}
	return out
}

// validateManifest checks required manifest fields.
func validateManifest(m *Manifest) error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if strings.Contains(m.Name, ".") {
		return fmt.Errorf("name %q must not contain '.'", m.Name)
	}
	if m.Protocol == 0 {
		return fmt.Errorf("protocol version is required")
	}
	if m.Entrypoint == "" {
		return fmt.Errorf("entrypoint is required")
	}
	if strings.Contains(m.Entrypoint, "..") {
		return fmt.Errorf("entrypoint contains path traversal: %s", m.Entrypoint)
	}
	if len(m.Functions) == 0 {
		return fmt.Errorf("at least one function must be declared")
	}

	seen := make(map[string]bool, len(m.Functions))
	for _, fn := range m.Functions {
		if !functionName.MatchString(fn.Name) {
			return fmt.Errorf("invalid function name %q", fn.Name)
		}
		if seen[fn.Name] {
			return fmt.Errorf("function %q declared twice", fn.Name)
		}
		seen[fn.Name] = true
		for _, p := range fn.Params {
			if !functionName.MatchString(p.Name) {
				return fmt.Errorf("function %q: invalid parameter name %q", fn.Name, p.Name)
			}
		}
	}
	return nil
}
