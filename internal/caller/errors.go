package caller

import (
	"errors"
	"fmt"
	"strings"
)

// Exit codes returned by Run.
const (
	ExitOK      = 0
	ExitGeneric = 1
)

// ErrCallerClosed is returned by Run on a caller that already ran.
var ErrCallerClosed = errors.New("caller already closed")

// ConfigurationError reports an unusable configuration value. It is raised
// before any resource is acquired.
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid configuration %s=%q: %s", e.Field, e.Value, e.Reason)
}

// FunctionNotAvailableError reports a function missing from the registry.
type FunctionNotAvailableError struct {
	Fun string
	// LoadErr is the load-time error of the owning module, if one was recorded.
	LoadErr error
}

func (e *FunctionNotAvailableError) Error() string {
	msg := fmt.Sprintf("Function %s is not available.", e.Fun)
	if e.LoadErr != nil {
		msg += " Possible reasons: " + e.LoadErr.Error()
	}
	return msg
}

func (e *FunctionNotAvailableError) Unwrap() error { return e.LoadErr }

// ArgumentError reports arguments that do not fit the function's signature.
type ArgumentError struct {
	Fun   string
	Err   error
	Usage string
	// Trace is set only when debug logging is enabled.
	Trace string
}

func (e *ArgumentError) Error() string {
	msg := "Passed invalid arguments: " + e.Err.Error()
	if usage := strings.TrimSpace(e.Usage); usage != "" {
		msg += "\n\nUsage:\n\n" + usage
	}
	return msg
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// ExecutionError reports an error raised by the function itself.
type ExecutionError struct {
	Fun             string
	Err             error
	CommandNotFound bool
	Trace           string
}

func (e *ExecutionError) Error() string {
	if e.CommandNotFound {
		return fmt.Sprintf("Command required for '%s' not found: %v", e.Fun, e.Err)
	}
	return fmt.Sprintf("Error running '%s': %v", e.Fun, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// trace returns the diagnostic trace carried by err, if any.
func trace(err error) string {
	var ae *ArgumentError
	if errors.As(err, &ae) {
		return ae.Trace
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Trace
	}
	return ""
}
