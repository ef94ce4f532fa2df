package modules

import (
	"context"
	"errors"
	"time"

	"github.com/mattjoyce/warden/internal/registry"
)

func testEntries(d Deps, _ *registry.Registry) []registry.Entry {
	return []registry.Entry{
		{
			Name: "test.ping",
			Doc:  "Return true. Used to check that the agent answers.",
			Func: func(context.Context, *registry.Invocation) (any, error) {
				return true, nil
			},
		},
		{
			Name:      "test.echo",
			Doc:       "Return the string passed in.\n\n    warden call test.echo 'foo bar'",
			Signature: registry.Signature{Params: []registry.Param{{Name: "text"}}},
			Func: func(_ context.Context, inv *registry.Invocation) (any, error) {
				return inv.StringArg("text")
			},
		},
		{
			Name:      "test.arg",
			Doc:       "Return the positional and keyword arguments passed in.\n\n    warden call test.arg 1 two flag=true",
			Signature: registry.Signature{VarArgs: true, VarKwargs: true},
			Func: func(_ context.Context, inv *registry.Invocation) (any, error) {
				args := inv.VarArgs
				if args == nil {
					args = []any{}
				}
				return map[string]any{"args": args, "kwargs": inv.Kwargs}, nil
			},
		},
		{
			Name:      "test.retcode",
			Doc:       "Declare code as the return code of the call.\n\n    warden call test.retcode 42",
			Signature: registry.Signature{Params: []registry.Param{{Name: "code", Default: 42, Optional: true}}},
			Func: func(_ context.Context, inv *registry.Invocation) (any, error) {
				code, err := inv.IntArg("code")
				if err != nil {
					return nil, err
				}
				inv.SetRetcode(code)
				return code, nil
			},
		},
		{
			Name:      "test.exception",
			Doc:       "Fail with message.\n\n    warden call test.exception 'oh no'",
			Signature: registry.Signature{Params: []registry.Param{{Name: "message", Default: "test.exception failed", Optional: true}}},
			Func: func(_ context.Context, inv *registry.Invocation) (any, error) {
				msg, err := inv.StringArg("message")
				if err != nil {
					return nil, err
				}
				return nil, errors.New(msg)
			},
		},
		{
			Name:      "test.sleep",
			Doc:       "Sleep for length seconds and return true.\n\n    warden call test.sleep 2",
			Signature: registry.Signature{Params: []registry.Param{{Name: "length", Default: 1, Optional: true}}},
			Func: func(ctx context.Context, inv *registry.Invocation) (any, error) {
				n, err := inv.IntArg("length")
				if err != nil {
					return nil, err
				}
				timer := time.NewTimer(time.Duration(n) * time.Second)
				defer timer.Stop()
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-timer.C:
					return true, nil
				}
			},
		},
		{
			Name:      "test.version",
			Doc:       "Return the agent version.",
			Stateless: true,
			Func: func(context.Context, *registry.Invocation) (any, error) {
				return d.Version, nil
			},
		},
	}
}
