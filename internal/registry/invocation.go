package registry

import (
	"fmt"
	"strconv"

	"github.com/mattjoyce/warden/internal/job"
)

// Invocation is what a function receives: its bound arguments and the call
// descriptor (fun, pid, jid, tgt) so it can introspect its own invocation.
type Invocation struct {
	job.Descriptor

	// Args holds declared parameters by name, defaults applied.
	Args map[string]any
	// VarArgs holds surplus positional values for functions declaring VarArgs.
	VarArgs []any
	// Kwargs holds surplus keyword values for functions declaring VarKwargs.
	Kwargs map[string]any

	module *ModuleContext
}

// NewInvocation builds an invocation bound to the module context mc (which
// may be nil).
func NewInvocation(d job.Descriptor, args map[string]any, varArgs []any, kwargs map[string]any, mc *ModuleContext) *Invocation {
	if args == nil {
		args = make(map[string]any)
	}
	if kwargs == nil {
		kwargs = make(map[string]any)
	}
	return &Invocation{Descriptor: d, Args: args, VarArgs: varArgs, Kwargs: kwargs, module: mc}
}

// SetRetcode declares the function's return code for this invocation.
func (inv *Invocation) SetRetcode(code int) {
	if inv.module != nil {
		inv.module.SetRetcode(code)
	}
}

// Value returns a bound argument.
func (inv *Invocation) Value(name string) (any, bool) {
	v, ok := inv.Args[name]
	return v, ok
}

// StringArg returns a bound argument as a string. Scalars are formatted; other
// shapes are an argument error.
func (inv *Invocation) StringArg(name string) (string, error) {
	v, ok := inv.Args[name]
	if !ok || v == nil {
		return "", nil
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case int, int64, float64, bool:
		return fmt.Sprint(t), nil
	default:
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidArgument, name, v)
	}
}

// IntArg returns a bound argument as an int.
func (inv *Invocation) IntArg(name string) (int, error) {
	v, ok := inv.Args[name]
	if !ok || v == nil {
		return 0, nil
	}
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		if t == float64(int(t)) {
			return int(t), nil
		}
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: %s must be an integer, got %T", ErrInvalidArgument, name, v)
}

// BoolArg returns a bound argument as a bool.
func (inv *Invocation) BoolArg(name string) (bool, error) {
	v, ok := inv.Args[name]
	if !ok || v == nil {
		return false, nil
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		if b, err := strconv.ParseBool(t); err == nil {
			return b, nil
		}
	}
	return false, fmt.Errorf("%w: %s must be a boolean, got %T", ErrInvalidArgument, name, v)
}
