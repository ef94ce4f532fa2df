// Package caller runs one function call on the agent and hands its result to
// the configured collectors and the master.
package caller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/mattjoyce/warden/internal/args"
	"github.com/mattjoyce/warden/internal/collector"
	"github.com/mattjoyce/warden/internal/config"
	"github.com/mattjoyce/warden/internal/job"
	"github.com/mattjoyce/warden/internal/log"
	"github.com/mattjoyce/warden/internal/procdir"
	"github.com/mattjoyce/warden/internal/protocol"
	"github.com/mattjoyce/warden/internal/registry"
	"github.com/mattjoyce/warden/internal/transport"
)

// Delivery kinds.
const (
	DeliveryMarkerWrite  = "marker_write"
	DeliveryMarkerRemove = "marker_remove"
	DeliveryCollector    = "collector"
	DeliveryRelay        = "relay"
)

// CollectorSource resolves collectors by name.
type CollectorSource interface {
	Get(ctx context.Context, name string) (collector.Collector, error)
}

// ChannelFactory builds the return channel on first use.
type ChannelFactory func(ctx context.Context) (transport.ReturnChannel, error)

// Delivery records a best-effort step that failed without affecting the call.
type Delivery struct {
	Kind   string
	Target string
	Err    error
}

// Completion is the outcome of one successful call.
type Completion struct {
	Result     job.Result
	Deliveries []Delivery
}

// Failed returns the deliveries of the given kind.
func (c *Completion) Failed(kind string) []Delivery {
	var out []Delivery
	for _, d := range c.Deliveries {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// Executor resolves and runs one registered function per Call.
type Executor struct {
	Config     *config.Config
	Registry   *registry.Registry
	Markers    *procdir.Store
	Collectors CollectorSource
	Channel    ChannelFactory
	// Stderr receives operator hints for non-fatal problems.
	Stderr io.Writer
	Now    func() time.Time
	PID    int
}

// Call runs fun with the raw command line arguments. Function level failures
// come back as *FunctionNotAvailableError, *ArgumentError or *ExecutionError;
// collector and relay failures only show up as deliveries.
func (e *Executor) Call(ctx context.Context, fun string, rawArgs []string) (*Completion, error) {
	logger := log.WithFunction(fun)

	entry, ok := e.Registry.Lookup(fun)
	if !ok {
		nf := &FunctionNotAvailableError{Fun: fun}
		if loadErr, found := e.Registry.LoadError(registry.ModuleOf(fun)); found {
			nf.LoadErr = loadErr
		}
		return nil, nf
	}

	now := e.now()
	desc := job.Descriptor{
		Fun:       fun,
		PID:       e.pid(),
		JID:       job.NewID(now),
		Target:    job.TargetCaller,
		Arg:       rawArgs,
		StartedAt: now,
	}
	logger = logger.With("jid", desc.JID)

	pos, kw := args.Parse(rawArgs)
	bound, err := args.Bind(entry.Signature, pos, kw)
	if err != nil {
		return nil, &ArgumentError{Fun: fun, Err: err, Usage: entry.Doc, Trace: traceOf(err)}
	}

	mc, mcErr := e.Registry.ModuleContext(entry.Module())
	if mc != nil {
		mc.Begin()
	}

	comp := &Completion{}

	if _, err := e.Markers.Write(desc); err != nil {
		fmt.Fprintf(e.stderr(), "Cannot write to process directory %s. Do you have permissions to write there?\n", e.Markers.Dir())
		logger.Warn("failed to write proc marker", "error", err)
		comp.Deliveries = append(comp.Deliveries, Delivery{Kind: DeliveryMarkerWrite, Target: e.Markers.Dir(), Err: err})
	}

	inv := registry.NewInvocation(desc, bound.Args, bound.VarArgs, bound.Kwargs, mc)
	ret, callErr := invoke(ctx, entry, inv)

	if err := e.Markers.Remove(desc.JID); err != nil {
		logger.Warn("failed to remove proc marker", "error", err)
		comp.Deliveries = append(comp.Deliveries, Delivery{Kind: DeliveryMarkerRemove, Target: desc.JID, Err: err})
	}

	if callErr != nil {
		return nil, classify(fun, entry, callErr)
	}

	retcode := ExitOK
	switch {
	case mcErr != nil:
		logger.Warn("module context unavailable", "error", mcErr)
		retcode = ExitGeneric
	case mc != nil:
		retcode = mc.Retcode()
	}

	hint := entry.OutputHint
	if hint == "" {
		hint = job.DefaultOutput
	}

	result := job.Result{
		JID:     desc.JID,
		Return:  ret,
		Retcode: retcode,
		Out:     hint,
		Success: true,
	}

	collectors := e.Config.CollectorNames()
	local := e.Config.IsLocal()
	if !local || len(collectors) > 0 {
		result.ID = e.Config.ID
		result.Fun = fun
		result.FunArgs = append([]string{}, rawArgs...)
	}
	logger.Debug("call finished", "retcode", retcode)

	for _, name := range collectors {
		if err := e.collect(ctx, name, result); err != nil {
			logger.Warn("collector failed", "collector", name, "error", err)
			comp.Deliveries = append(comp.Deliveries, Delivery{Kind: DeliveryCollector, Target: name, Err: err})
		}
	}

	if !local {
		if err := e.relay(ctx, result); err != nil {
			logger.Warn("failed to relay return to master", "error", err)
			comp.Deliveries = append(comp.Deliveries, Delivery{Kind: DeliveryRelay, Target: e.Config.TransportSelector(), Err: err})
		}
	}

	comp.Result = result
	return comp, nil
}

// invoke runs the function on the calling goroutine, turning a panic into an error.
func invoke(ctx context.Context, entry *registry.Entry, inv *registry.Invocation) (ret any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return entry.Func(ctx, inv)
}

type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string { return fmt.Sprintf("panic: %v", p.value) }

// traceOf is empty unless debug logging is on. A recovered panic yields the
// stack of the goroutine that panicked; any other error yields its wrap chain,
// outermost first.
func traceOf(err error) string {
	if !log.Enabled(slog.LevelDebug) {
		return ""
	}
	var pe *panicError
	if errors.As(err, &pe) {
		return string(pe.stack)
	}
	var b strings.Builder
	for i := 0; err != nil; i++ {
		if i > 0 {
			b.WriteString("caused by: ")
		}
		fmt.Fprintf(&b, "%s (%T)\n", err.Error(), err)
		err = errors.Unwrap(err)
	}
	return b.String()
}

func classify(fun string, entry *registry.Entry, err error) error {
	tr := traceOf(err)
	if errors.Is(err, registry.ErrInvalidArgument) {
		return &ArgumentError{Fun: fun, Err: err, Usage: entry.Doc, Trace: tr}
	}
	return &ExecutionError{
		Fun:             fun,
		Err:             err,
		CommandNotFound: errors.Is(err, registry.ErrCommandNotFound),
		Trace:           tr,
	}
}

func (e *Executor) collect(ctx context.Context, name string, r job.Result) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("collector %s panicked: %v", name, p)
		}
	}()
	if e.Collectors == nil {
		return fmt.Errorf("%w: %s", collector.ErrUnknownCollector, name)
	}
	c, err := e.Collectors.Get(ctx, name)
	if err != nil {
		return err
	}
	return c.Collect(ctx, r)
}

func (e *Executor) relay(ctx context.Context, r job.Result) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("return channel panicked: %v", p)
		}
	}()
	if e.Channel == nil {
		return errors.New("no return channel configured")
	}
	ch, err := e.Channel(ctx)
	if err != nil {
		return fmt.Errorf("open return channel: %w", err)
	}
	return ch.Send(ctx, protocol.ReturnLoad(r))
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Executor) pid() int {
	if e.PID != 0 {
		return e.PID
	}
	return os.Getpid()
}

func (e *Executor) stderr() io.Writer {
	if e.Stderr != nil {
		return e.Stderr
	}
	return os.Stderr
}
