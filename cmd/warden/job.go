package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/warden/internal/config"
	"github.com/mattjoyce/warden/internal/jobcache"
	"github.com/mattjoyce/warden/internal/procdir"
	"github.com/mattjoyce/warden/internal/tui/watch"
)

func runJobNoun(args []string) int {
	if len(args) < 1 {
		printJobNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printJobNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "list":
		return runJobList(actionArgs)
	case "lookup":
		return runJobLookup(actionArgs)
	case "events":
		return runJobEvents(actionArgs)
	case "prune":
		return runJobPrune(actionArgs)
	case "procs":
		return runJobProcs(actionArgs)
	case "watch":
		return runJobWatch(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown job action: %s\n", action)
		return 1
	}
}

func printJobNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: warden job <action> [--config PATH] [--json]")
	fmt.Fprintln(w, "Actions: list [--limit N], lookup <jid>, events [--tag PREFIX], prune --older-than DURATION, procs [--prune], watch [--interval D]")
}

// loadToolConfig resolves the configuration the same way `warden call` does.
func loadToolConfig(path string) (*config.Config, error) {
	return config.LoadOrDefaults(path)
}

func openJobCache(cfg *config.Config) (*jobcache.Store, error) {
	return jobcache.Open(context.Background(), cfg.JobCachePath())
}

func printJSON(v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}

func runJobList(args []string) int {
	fs := flag.NewFlagSet("job list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	limit := fs.Int("limit", 20, "Number of returns to show")
	jsonOut := fs.Bool("json", false, "Output JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadToolConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	store, err := openJobCache(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open job cache: %v\n", err)
		return 1
	}
	defer store.Close()

	records, err := store.Recent(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list returns: %v\n", err)
		return 1
	}
	if *jsonOut {
		return printJSON(records)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JID\tFUNCTION\tID\tRETCODE\tRECEIVED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.JID, r.Fun, r.ID, r.Retcode, r.ReceivedAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
	return 0
}

func runJobLookup(args []string) int {
	fs := flag.NewFlagSet("job lookup", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: warden job lookup <jid> [--config PATH]")
		return 1
	}

	cfg, err := loadToolConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	store, err := openJobCache(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open job cache: %v\n", err)
		return 1
	}
	defer store.Close()

	records, err := store.Returns(context.Background(), fs.Arg(0))
	if errors.Is(err, jobcache.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "No returns stored for job %s\n", fs.Arg(0))
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to look up job: %v\n", err)
		return 1
	}
	return printJSON(records)
}

func runJobEvents(args []string) int {
	fs := flag.NewFlagSet("job events", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	tag := fs.String("tag", "", "Only events whose tag starts with this prefix")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadToolConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	store, err := openJobCache(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open job cache: %v\n", err)
		return 1
	}
	defer store.Close()

	events, err := store.Events(context.Background(), *tag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list events: %v\n", err)
		return 1
	}
	return printJSON(events)
}

func runJobPrune(args []string) int {
	fs := flag.NewFlagSet("job prune", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	olderThan := fs.Duration("older-than", 0, "Drop returns received before now minus this duration")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *olderThan <= 0 {
		fmt.Fprintln(os.Stderr, "Usage: warden job prune --older-than DURATION [--config PATH]")
		return 1
	}

	cfg, err := loadToolConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	store, err := openJobCache(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open job cache: %v\n", err)
		return 1
	}
	defer store.Close()

	n, err := store.Prune(context.Background(), time.Now().Add(-*olderThan))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to prune: %v\n", err)
		return 1
	}
	fmt.Printf("pruned %d returns\n", n)
	return 0
}

func runJobProcs(args []string) int {
	fs := flag.NewFlagSet("job procs", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	prune := fs.Bool("prune", false, "Remove markers whose process is gone")
	jsonOut := fs.Bool("json", false, "Output JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadToolConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	store, err := procdir.NewStore(cfg.ProcDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid proc directory: %v\n", err)
		return 1
	}

	var entries []procdir.Entry
	if *prune {
		entries, err = store.Prune()
	} else {
		entries, err = store.List()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read proc directory: %v\n", err)
		return 1
	}
	if entries == nil {
		entries = []procdir.Entry{}
	}
	if *jsonOut {
		return printJSON(entries)
	}

	if *prune {
		fmt.Printf("pruned %d stale markers\n", len(entries))
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JID\tFUNCTION\tPID\tALIVE\tARGS")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%t\t%s\n", e.JID, e.Fun, e.PID, e.Alive, strings.Join(e.Arg, " "))
	}
	_ = tw.Flush()
	return 0
}

func runJobWatch(args []string) int {
	fs := flag.NewFlagSet("job watch", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	interval := fs.Duration("interval", time.Second, "Scan interval")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadToolConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	store, err := procdir.NewStore(cfg.ProcDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid proc directory: %v\n", err)
		return 1
	}

	p := tea.NewProgram(watch.New(store, store.Dir(), *interval))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}
