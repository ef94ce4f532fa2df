package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/mattjoyce/warden/internal/caller"
	"github.com/mattjoyce/warden/internal/collector"
	"github.com/mattjoyce/warden/internal/config"
	"github.com/mattjoyce/warden/internal/log"
	"github.com/mattjoyce/warden/internal/modules"
	"github.com/mattjoyce/warden/internal/output"
	"github.com/mattjoyce/warden/internal/registry"
	"github.com/mattjoyce/warden/internal/transport"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	// --- NOUNS ---
	case "job":
		return runJobNoun(args)
	case "config":
		return runConfigNoun(args)
	case "lane":
		return runLaneNoun(args)
	case "master":
		return runMasterNoun(args)

	// --- VERBS ---
	case "call":
		if hasHelpFlag(args) {
			printCallHelp()
			return 0
		}
		return runCall(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: warden version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("warden %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalized, ok := normalizeBuildTimeUTC(built); ok {
		info.BuildTime = normalized
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`warden - run execution module functions on this host

Usage:
  warden call [flags] <function> [arguments...]
  warden <noun> <action> [flags]

Call:
  call              Run one function and print its return

Job Commands:
  job list          Show recent returns from the local job cache
  job lookup <jid>  Show the stored returns of one job
  job events        Show stored minion events
  job prune         Drop cached returns older than a cutoff
  job procs         List in-flight job markers
  job watch         Live view of in-flight jobs

Config Commands:
  config check      Validate configuration and integrity
  config lock       Authorize current state (update integrity hashes)
  config show       Print the resolved configuration
  config get <path> Read one value
  config set <p>=<v> Change one value in the configuration file

Lane Commands:
  lane peer         Run the lane companion that forwards to the master

Master Commands:
  master serve      Receive relayed returns and events

General:
  version           Show version information
  help              Show this help message

Use 'warden <noun> help' for resource-specific flags.
`)
}

func printCallHelp() {
	fmt.Println("Usage: warden call [flags] <function> [arguments...]")
	fmt.Println()
	fmt.Println("Run one function locally. Arguments are positional values or key=value pairs.")
	fmt.Println("Flags may follow the function name; arguments after -- are never read as flags.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --config PATH            Configuration file (default: $WARDEN_CONFIG, /etc/warden/minion.yaml, ./minion.yaml)")
	fmt.Println("  --local                  Do not contact the master")
	fmt.Println("  --transport NAME         Return transport: broker or lane")
	fmt.Println("  --return LIST            Comma-separated collectors (sqlite, redis, log)")
	fmt.Println("  --retcode-passthrough    Exit with the function's retcode")
	fmt.Println("  --metadata               Print the full return document")
	fmt.Println("  --out FORMAT             Output format: nested, json, yaml, raw, txt, quiet")
	fmt.Println("  --log-level LEVEL        Log level (debug, info, warning, error)")
	fmt.Println("  --no-color               Disable colored output")
	fmt.Println("  --doc                    Print function documentation instead of calling")
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

// callFlags are the command-line overrides of `warden call`.
type callFlags struct {
	configPath  string
	local       bool
	transport   string
	ret         string
	passthrough bool
	metadata    bool
	out         string
	logLevel    string
	noColor     bool
	doc         bool
}

func (f *callFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "Path to configuration file")
	fs.BoolVar(&f.local, "local", false, "Do not contact the master")
	fs.StringVar(&f.transport, "transport", "", "Return transport (broker, lane)")
	fs.StringVar(&f.ret, "return", "", "Comma-separated collectors")
	fs.BoolVar(&f.passthrough, "retcode-passthrough", false, "Exit with the function's retcode")
	fs.BoolVar(&f.metadata, "metadata", false, "Print the full return document")
	fs.StringVar(&f.out, "out", "", "Output format")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level")
	fs.BoolVar(&f.noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&f.doc, "doc", false, "Print function documentation")
}

// hoistFlags moves the flags fs knows about in front of the function name so
// they may appear anywhere on the line. Everything after "--" and every
// token fs does not define stays a function argument.
func hoistFlags(fs *flag.FlagSet, args []string) []string {
	var flags, rest []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			rest = append(rest, args[i+1:]...)
			break
		}
		name := strings.TrimLeft(a, "-")
		if !strings.HasPrefix(a, "-") || name == "" {
			rest = append(rest, a)
			continue
		}
		name, _, hasValue := strings.Cut(name, "=")
		f := fs.Lookup(name)
		if f == nil {
			rest = append(rest, a)
			continue
		}
		flags = append(flags, a)
		if b, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && b.IsBoolFlag() {
			continue
		}
		if !hasValue && i+1 < len(args) {
			flags = append(flags, args[i+1])
			i++
		}
	}
	if len(rest) > 0 {
		flags = append(flags, "--")
	}
	return append(flags, rest...)
}

// apply layers the flags that were set over cfg.
func (f *callFlags) apply(cfg *config.Config) error {
	if f.local {
		cfg.Local = true
	}
	if f.transport != "" {
		cfg.Transport = f.transport
	}
	if f.ret != "" {
		cfg.Return = f.ret
	}
	if f.passthrough {
		cfg.RetcodePassthrough = true
	}
	if f.metadata {
		cfg.Metadata = true
	}
	if f.out != "" {
		if !output.Known(f.out) {
			return fmt.Errorf("unknown output format %q", f.out)
		}
		cfg.Output = f.out
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.noColor {
		cfg.NoColor = true
	}
	return nil
}

func runCall(args []string) int {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	var flags callFlags
	flags.register(fs)
	if err := fs.Parse(hoistFlags(fs, args)); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.LoadOrDefaults(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if err := flags.apply(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	log.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.New()
	err = modules.Load(reg, modules.Deps{
		Config:  cfg,
		Version: currentVersionInfo().Version,
		Channel: func(ctx context.Context) (transport.ReturnChannel, error) {
			return transport.New(ctx, cfg)
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load modules: %v\n", err)
		return 1
	}

	if flags.doc {
		if err := caller.PrintDocs(os.Stdout, reg, fs.Arg(0)); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to print docs: %v\n", err)
			return 1
		}
		return 0
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: warden call [flags] <function> [arguments...]")
		return 1
	}

	collectors := collector.NewSet(cfg)
	defer func() {
		if err := collectors.Close(); err != nil {
			log.Warn("closing collectors", "error", err)
		}
	}()

	c, err := caller.New(cfg, caller.Deps{
		Registry:   reg,
		Collectors: collectors,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return caller.ExitGeneric
	}

	code, err := c.Run(ctx, caller.Request{Fun: fs.Arg(0), Args: fs.Args()[1:]})
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
	}
	return code
}
