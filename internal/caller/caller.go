package caller

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mattjoyce/warden/internal/config"
	"github.com/mattjoyce/warden/internal/job"
	"github.com/mattjoyce/warden/internal/output"
	"github.com/mattjoyce/warden/internal/procdir"
	"github.com/mattjoyce/warden/internal/registry"
)

// displayKey wraps every rendered return.
const displayKey = "local"

// Request names the function to call and its raw arguments.
type Request struct {
	Fun  string
	Args []string
}

// Caller runs exactly one request and reports the process exit code.
type Caller interface {
	Run(ctx context.Context, req Request) (int, error)
}

// Deps are the collaborators shared by every caller variant.
type Deps struct {
	Registry   *registry.Registry
	Collectors CollectorSource
	// Channel overrides the return channel the variant would build.
	Channel ChannelFactory
	// Spawner starts the lane companion. Nil uses ExecSpawner.
	Spawner Spawner
	Stdout  io.Writer
	Stderr  io.Writer
	Now     func() time.Time
}

// New picks the caller variant for the configured transport. No resource is
// acquired before the selector is accepted.
func New(cfg *config.Config, deps Deps) (Caller, error) {
	if cfg == nil {
		return nil, &ConfigurationError{Field: "config", Reason: "missing"}
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("caller: registry is required")
	}
	switch sel := cfg.TransportSelector(); sel {
	case config.TransportBroker:
		return NewBroker(cfg, deps)
	case config.TransportLane:
		return NewLane(cfg, deps)
	default:
		return nil, &ConfigurationError{
			Field:  "transport",
			Value:  sel,
			Reason: fmt.Sprintf("callers are only defined for %s and %s", config.TransportBroker, config.TransportLane),
		}
	}
}

func newExecutor(cfg *config.Config, deps Deps, channel ChannelFactory) (*Executor, error) {
	markers, err := procdir.NewStore(cfg.ProcDir())
	if err != nil {
		return nil, &ConfigurationError{Field: "cache_dir", Value: cfg.CacheDir, Reason: err.Error()}
	}
	if deps.Channel != nil {
		channel = deps.Channel
	}
	return &Executor{
		Config:     cfg,
		Registry:   deps.Registry,
		Markers:    markers,
		Collectors: deps.Collectors,
		Channel:    channel,
		Stderr:     deps.Stderr,
		Now:        deps.Now,
	}, nil
}

// present prints a finished call and returns the exit code. Call errors are
// printed as diagnostics and become ExitGeneric.
func present(cfg *config.Config, stdout, stderr io.Writer, comp *Completion, err error) int {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		if tr := trace(err); tr != "" {
			fmt.Fprintln(stderr, strings.TrimRight(tr, "\n"))
		}
		return ExitGeneric
	}

	res := comp.Result
	format := res.Out
	var data any = res.Return
	if cfg.Metadata {
		format = output.Nested
		data = res.Map()
	} else if cfg.Output != "" {
		format = cfg.Output
	}
	if format == "" {
		format = job.DefaultOutput
	}

	opts := output.Options{Color: !cfg.NoColor}
	if rerr := output.Render(stdout, format, map[string]any{displayKey: data}, opts); rerr != nil {
		fmt.Fprintf(stderr, "failed to render output: %v\n", rerr)
	}

	if cfg.RetcodePassthrough {
		return res.Retcode
	}
	return ExitOK
}

// PrintDocs writes the documentation of every function whose name starts with
// prefix, sorted by name.
func PrintDocs(w io.Writer, reg *registry.Registry, prefix string) error {
	docs := reg.Docs(prefix)
	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := fmt.Fprintf(w, "%s:\n%s\n\n", name, strings.TrimSpace(docs[name])); err != nil {
			return err
		}
	}
	return nil
}
