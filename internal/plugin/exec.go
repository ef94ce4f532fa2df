package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/warden/internal/dispatch"
	"github.com/mattjoyce/warden/internal/log"
	"github.com/mattjoyce/warden/internal/registry"
)

const defaultTimeout = 60 * time.Second

// Error kinds an entrypoint may report.
const (
	ErrorKindArgument        = "argument"
	ErrorKindCommandNotFound = "command_not_found"
)

// Request is written to the entrypoint's stdin as one JSON document. The
// entrypoint is invoked with the function name as its only argument.
type Request struct {
	Fun     string         `json:"fun"`
	JID     string         `json:"jid"`
	PID     int            `json:"pid"`
	Target  string         `json:"tgt"`
	Args    map[string]any `json:"args"`
	VarArgs []any          `json:"varargs,omitempty"`
	Kwargs  map[string]any `json:"kwargs,omitempty"`
}

// Response is read from the entrypoint's stdout.
type Response struct {
	Return    any    `json:"return"`
	Retcode   int    `json:"retcode"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// Register adds every function of every loaded module to reg and records the
// load errors of the modules that failed. Modules for which skip reports true
// are left out and returned.
func Register(reg *registry.Registry, c *Catalog, skip func(name string) bool) []string {
	for name, err := range c.Failed() {
		reg.SetLoadError(name, err)
	}
	var skipped []string
	for _, p := range c.All() {
		if skip != nil && skip(p.Name) {
			skipped = append(skipped, p.Name)
			continue
		}
		RegisterPlugin(reg, p)
	}
	return skipped
}

// RegisterPlugin adds the functions of p to reg. Names already registered
// keep their existing entry.
func RegisterPlugin(reg *registry.Registry, p *Plugin) {
	logger := log.WithComponent("plugin")
	for _, fn := range p.Functions {
		err := reg.Register(registry.Entry{
			Name:       p.Name + "." + fn.Name,
			Func:       p.Func(fn),
			OutputHint: fn.Output,
			Signature:  fn.Signature(),
			Doc:        fn.Doc,
		})
		if err != nil {
			logger.Warn("skipping module function", "module", p.Name, "function", fn.Name, "error", err)
		}
	}
}

// Func returns the registry callable that runs fn through the entrypoint.
func (p *Plugin) Func(fn Function) registry.Func {
	return func(ctx context.Context, inv *registry.Invocation) (any, error) {
		return p.invoke(ctx, fn, inv)
	}
}

func (p *Plugin) invoke(ctx context.Context, fn Function, inv *registry.Invocation) (any, error) {
	req := Request{
		Fun:     inv.Fun,
		JID:     inv.JID,
		PID:     inv.PID,
		Target:  inv.Target,
		Args:    inv.Args,
		VarArgs: inv.VarArgs,
		Kwargs:  inv.Kwargs,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", registry.ErrInvalidArgument, err)
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	out, err := dispatch.Run(ctx, dispatch.Spec{
		Argv:    []string{p.Entrypoint, fn.Name},
		Dir:     p.Path,
		Stdin:   bytes.NewReader(body),
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("run module %s: %w", p.Name, err)
	}
	if out.TimedOut {
		return nil, fmt.Errorf("module %s timed out after %s", p.Name, timeout)
	}

	var resp Response
	if derr := json.Unmarshal(bytes.TrimSpace([]byte(out.Stdout)), &resp); derr != nil {
		if out.ExitCode != 0 {
			return nil, fmt.Errorf("module %s exited with status %d: %s", p.Name, out.ExitCode, strings.TrimSpace(out.Stderr))
		}
		return nil, fmt.Errorf("module %s returned an invalid response: %w", p.Name, derr)
	}

	if resp.Error != "" {
		switch resp.ErrorKind {
		case ErrorKindArgument:
			return nil, fmt.Errorf("%w: %s", registry.ErrInvalidArgument, resp.Error)
		case ErrorKindCommandNotFound:
			return nil, fmt.Errorf("%w: %s", registry.ErrCommandNotFound, resp.Error)
		default:
			return nil, errors.New(resp.Error)
		}
	}

	retcode := resp.Retcode
	if retcode == 0 && out.ExitCode != 0 {
		retcode = out.ExitCode
	}
	inv.SetRetcode(retcode)
	return resp.Return, nil
}
