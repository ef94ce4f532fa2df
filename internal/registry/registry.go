// Package registry holds the callable capabilities of the agent, indexed by
// qualified name (`module.function`), together with the load-time errors of
// modules that failed to load and the per-module execution contexts.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrEntryExists   = errors.New("function already registered")
	ErrInvalidEntry  = errors.New("invalid registry entry")
	ErrUnknownModule = errors.New("unknown module")

	// ErrInvalidArgument marks argument shape errors (arity, unknown keyword,
	// wrong type) raised while binding or reading invocation arguments.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCommandNotFound marks a function whose required external command is
	// missing on this host.
	ErrCommandNotFound = errors.New("required command not found")
)

// Func is a capability implementation. It runs on the calling goroutine.
type Func func(ctx context.Context, inv *Invocation) (any, error)

// Param declares one named parameter of a function.
type Param struct {
	Name     string
	Default  any
	Optional bool
}

// Signature is the declared call shape of a function.
type Signature struct {
	Params    []Param
	VarArgs   bool
	VarKwargs bool
}

// Entry is a registered function. It is built once at load time.
type Entry struct {
	Name       string
	Func       Func
	OutputHint string
	Signature  Signature
	Doc        string
	// Stateless entries do not get a module execution context; their
	// retcode is always derived from the error they return.
	Stateless bool
}

// Module returns the owning module name.
func (e *Entry) Module() string {
	return ModuleOf(e.Name)
}

// ModuleOf returns the module part of a qualified function name.
func ModuleOf(fun string) string {
	mod, _, _ := strings.Cut(fun, ".")
	return mod
}

// Registry stores entries by qualified name.
type Registry struct {
	entries    map[string]*Entry
	loadErrors map[string]error
	contexts   map[string]*ModuleContext
	modules    map[string]struct{}
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entries:    make(map[string]*Entry),
		loadErrors: make(map[string]error),
		contexts:   make(map[string]*ModuleContext),
		modules:    make(map[string]struct{}),
	}
}

// Register adds an entry.
func (r *Registry) Register(e Entry) error {
	name := strings.TrimSpace(e.Name)
	mod, fn, ok := strings.Cut(name, ".")
	if !ok || mod == "" || fn == "" {
		return fmt.Errorf("%w: name %q must be module.function", ErrInvalidEntry, e.Name)
	}
	if e.Func == nil {
		return fmt.Errorf("%w: %s has no callable", ErrInvalidEntry, name)
	}
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%w: %s", ErrEntryExists, name)
	}
	e.Name = name
	r.entries[name] = &e
	r.modules[mod] = struct{}{}
	if !e.Stateless {
		if _, ok := r.contexts[mod]; !ok {
			r.contexts[mod] = &ModuleContext{}
		}
	}
	return nil
}

// Lookup returns the entry for a qualified function name.
func (r *Registry) Lookup(name string) (*Entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// SetLoadError records why module failed to load.
func (r *Registry) SetLoadError(module string, err error) {
	if err == nil {
		delete(r.loadErrors, module)
		return
	}
	r.loadErrors[module] = err
}

// LoadError returns the recorded load error of module, if any.
func (r *Registry) LoadError(module string) (error, bool) {
	err, ok := r.loadErrors[module]
	return err, ok
}

// ModuleContext returns the execution context of module. A known module
// without a context yields (nil, nil).
func (r *Registry) ModuleContext(module string) (*ModuleContext, error) {
	if _, ok := r.modules[module]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, module)
	}
	return r.contexts[module], nil
}

// Names returns every registered function name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Docs returns name → doc for entries whose name starts with prefix and that
// carry documentation.
func (r *Registry) Docs(prefix string) map[string]string {
	out := make(map[string]string)
	for name, e := range r.entries {
		if e.Doc == "" || !strings.HasPrefix(name, prefix) {
			continue
		}
		out[name] = e.Doc
	}
	return out
}

// ModuleContext is the per-module execution context. It carries the return
// code a function declares for the invocation in progress.
type ModuleContext struct {
	mu      sync.Mutex
	retcode int
}

// Begin resets the context for a new invocation.
func (m *ModuleContext) Begin() {
	m.mu.Lock()
	m.retcode = 0
	m.mu.Unlock()
}

// SetRetcode records the declared return code.
func (m *ModuleContext) SetRetcode(code int) {
	m.mu.Lock()
	m.retcode = code
	m.mu.Unlock()
}

// Retcode returns the declared return code.
func (m *ModuleContext) Retcode() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retcode
}
