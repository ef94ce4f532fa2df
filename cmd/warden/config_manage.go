package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/warden/internal/config"
)

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		return runConfigCheck(actionArgs)
	case "lock":
		return runConfigLock(actionArgs)
	case "show":
		return runConfigShow(actionArgs)
	case "get":
		return runConfigGet(actionArgs)
	case "set":
		return runConfigSet(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: warden config <action> [--config PATH]")
	fmt.Fprintln(w, "Actions: check [--json], lock, show [--json], get <path> [--json], set <path>=<value> [--dry-run]")
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("config check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadToolConfig(*configPath)
	if err != nil {
		if *jsonOut {
			printJSON(config.CheckResult{Passed: false, Errors: []string{err.Error()}})
		} else {
			fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		}
		return 1
	}

	result := config.Check(cfg)
	if *jsonOut {
		printJSON(result)
	} else {
		for _, w := range result.Warnings {
			fmt.Printf("WARN  %s\n", w)
		}
		for _, e := range result.Errors {
			fmt.Printf("ERROR %s\n", e)
		}
		if result.Passed {
			fmt.Println("Configuration valid.")
		}
	}
	if !result.Passed {
		return 1
	}
	return 0
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("config lock", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path, err := config.Discover(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to find config: %v\n", err)
		return 1
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "No configuration file found; nothing to lock")
		return 1
	}

	checksumPath, err := config.Lock(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}
	fmt.Printf("Locked %s in %s\n", path, checksumPath)
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("config show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
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
	value, err := cfg.GetPath("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve config: %v\n", err)
		return 1
	}
	return printValue(value, *jsonOut)
}

func runConfigGet(args []string) int {
	fs := flag.NewFlagSet("config get", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output JSON")
	if err := fs.Parse(reorderFlags(args)); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: warden config get <path> [--config PATH] [--json]")
		return 1
	}

	cfg, err := loadToolConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	value, err := cfg.GetPath(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return printValue(value, *jsonOut)
}

func runConfigSet(args []string) int {
	fs := flag.NewFlagSet("config set", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	dryRun := fs.Bool("dry-run", false, "Validate the change without writing it")
	if err := fs.Parse(reorderFlags(args)); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 || !strings.Contains(fs.Arg(0), "=") {
		fmt.Fprintln(os.Stderr, "Usage: warden config set <path>=<value> [--config PATH] [--dry-run]")
		return 1
	}
	path, value, _ := strings.Cut(fs.Arg(0), "=")

	cfg, err := loadToolConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if err := cfg.SetPath(path, value, !*dryRun); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *dryRun {
		fmt.Printf("Dry run: %s=%s is valid\n", path, value)
		return 0
	}
	fmt.Printf("Set %s=%s in %s\n", path, value, cfg.SourcePath)
	if _, err := config.LoadChecksums(filepath.Dir(cfg.SourcePath)); err == nil {
		fmt.Println("Run 'warden config lock' to authorize the change.")
	}
	return 0
}

func printValue(value any, jsonOut bool) int {
	if jsonOut {
		return printJSON(value)
	}
	switch v := value.(type) {
	case string, bool, int, int64, float64:
		fmt.Println(v)
		return 0
	}
	data, err := yaml.Marshal(value)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render YAML: %v\n", err)
		return 1
	}
	fmt.Print(string(data))
	return 0
}

// reorderFlags moves positional arguments after the flags so that
// `get lane.poll_interval --json` parses like `get --json lane.poll_interval`.
func reorderFlags(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "-") {
			positional = append(positional, a)
			continue
		}
		flags = append(flags, a)
		if a == "--config" || a == "-config" {
			if i+1 < len(args) {
				flags = append(flags, args[i+1])
				i++
			}
		}
	}
	return append(flags, positional...)
}
