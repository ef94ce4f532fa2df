package modules

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/mattjoyce/warden/internal/dispatch"
	"github.com/mattjoyce/warden/internal/registry"
)

var shell = "/bin/sh"

func cmdParams() registry.Signature {
	return registry.Signature{Params: []registry.Param{
		{Name: "cmd"},
		{Name: "cwd", Optional: true},
		{Name: "timeout", Default: 0, Optional: true},
	}}
}

func cmdEntries(Deps, *registry.Registry) []registry.Entry {
	return []registry.Entry{
		{
			Name:      "cmd.run",
			Doc:       "Run cmd through the shell and return its stdout. The exit status becomes the return code.\n\n    warden call cmd.run 'ls -l /etc'",
			Signature: cmdParams(),
			Func: func(ctx context.Context, inv *registry.Invocation) (any, error) {
				out, err := runShell(ctx, inv)
				if err != nil {
					return nil, err
				}
				inv.SetRetcode(out.ExitCode)
				return strings.TrimRight(out.Stdout, "\n"), nil
			},
		},
		{
			Name:      "cmd.run_all",
			Doc:       "Run cmd through the shell and return pid, retcode, stdout and stderr.\n\n    warden call cmd.run_all 'ls -l /etc' --out json",
			Signature: cmdParams(),
			Func: func(ctx context.Context, inv *registry.Invocation) (any, error) {
				out, err := runShell(ctx, inv)
				if err != nil {
					return nil, err
				}
				inv.SetRetcode(out.ExitCode)
				return map[string]any{
					"pid":     out.PID,
					"retcode": out.ExitCode,
					"stdout":  strings.TrimRight(out.Stdout, "\n"),
					"stderr":  strings.TrimRight(out.Stderr, "\n"),
				}, nil
			},
		},
		{
			Name:      "cmd.which",
			Doc:       "Return the full path of an executable, or null when it is not on PATH.\n\n    warden call cmd.which ls",
			Stateless: true,
			Signature: registry.Signature{Params: []registry.Param{{Name: "cmd"}}},
			Func: func(_ context.Context, inv *registry.Invocation) (any, error) {
				name, err := inv.StringArg("cmd")
				if err != nil {
					return nil, err
				}
				path, err := exec.LookPath(name)
				if err != nil {
					return nil, nil
				}
				return path, nil
			},
		},
	}
}

func runShell(ctx context.Context, inv *registry.Invocation) (*dispatch.Outcome, error) {
	cmd, err := inv.StringArg("cmd")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cmd) == "" {
		return nil, fmt.Errorf("%w: cmd is required", registry.ErrInvalidArgument)
	}
	cwd, err := inv.StringArg("cwd")
	if err != nil {
		return nil, err
	}
	secs, err := inv.IntArg("timeout")
	if err != nil {
		return nil, err
	}

	out, err := dispatch.Run(ctx, dispatch.Spec{
		Argv:    []string{shell, "-c", cmd},
		Dir:     cwd,
		Timeout: time.Duration(secs) * time.Second,
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", registry.ErrCommandNotFound, shell)
		}
		return nil, err
	}
	if out.TimedOut {
		return nil, fmt.Errorf("command timed out after %ds: %s", secs, cmd)
	}
	return out, nil
}
