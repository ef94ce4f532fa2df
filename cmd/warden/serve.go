package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mattjoyce/warden/internal/config"
	"github.com/mattjoyce/warden/internal/jobcache"
	"github.com/mattjoyce/warden/internal/lane"
	"github.com/mattjoyce/warden/internal/lock"
	"github.com/mattjoyce/warden/internal/log"
	"github.com/mattjoyce/warden/internal/master"
	"github.com/mattjoyce/warden/internal/storage"
	"github.com/mattjoyce/warden/internal/transport"
)

func runLaneNoun(args []string) int {
	if len(args) < 1 {
		printLaneNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printLaneNounHelp(os.Stdout)
		return 0
	}

	switch args[0] {
	case "peer":
		return runLanePeer(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown lane action: %s\n", args[0])
		return 1
	}
}

func printLaneNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: warden lane peer [--config PATH]")
	fmt.Fprintln(w, "Run the lane companion: bind the rendezvous endpoint and forward every load to the master.")
}

// runLanePeer is what the lane caller spawns. It runs until signalled.
func runLanePeer(args []string) int {
	fs := flag.NewFlagSet("lane peer", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadToolConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	log.Setup(cfg.LogLevel, cfg.LogFormat)
	logger := log.WithComponent("lane")

	if cfg.ID == "" {
		logger.Error("id is required to name the lane")
		return 1
	}
	broker, err := transport.NewBroker(cfg.Master)
	if err != nil {
		logger.Error("invalid master address", "address", cfg.Master.Address, "error", err)
		return 1
	}

	if err := storage.RequireLocal(cfg.SockDir, "lane socket directory", "Point sock_dir at local disk."); err != nil && errors.Is(err, storage.ErrNetworkFilesystem) {
		logger.Error("cannot bind lane", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	peer := &lane.Peer{
		SockDir:     cfg.SockDir,
		Lane:        lane.Name(cfg.ID, cfg.Role),
		Forward:     broker.Send,
		ConnTimeout: cfg.Master.Timeout + cfg.Lane.SendTimeout,
	}
	logger.Info("lane peer starting", "lane", peer.Lane, "master", broker.Endpoint())
	if err := peer.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("lane peer failed", "error", err)
		return 1
	}
	logger.Info("lane peer stopped")
	return 0
}

func runMasterNoun(args []string) int {
	if len(args) < 1 {
		printMasterNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printMasterNounHelp(os.Stdout)
		return 0
	}

	switch args[0] {
	case "serve":
		return runMasterServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown master action: %s\n", args[0])
		return 1
	}
}

func printMasterNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: warden master serve [--config PATH] [--listen ADDR]")
	fmt.Fprintln(w, "Receive relayed returns and events and store them in the master job cache.")
}

func masterLockPath(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.MasterDBPath()), "master.pid")
}

func runMasterServe(args []string) int {
	fs := flag.NewFlagSet("master serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	listen := fs.String("listen", "", "Listen address (overrides master_server.listen)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadToolConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *listen != "" {
		cfg.MasterServer.Listen = *listen
	}
	log.Setup(cfg.LogLevel, cfg.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("warden master starting", "version", version, "db", cfg.MasterDBPath())

	pidLockPath := masterLockPath(cfg)
	if err := os.MkdirAll(filepath.Dir(pidLockPath), 0o755); err != nil {
		logger.Error("failed to create state directory", "path", filepath.Dir(pidLockPath), "error", err)
		return 1
	}
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another master may be running)", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := jobcache.Open(ctx, cfg.MasterDBPath())
	if err != nil {
		logger.Error("failed to open database", "path", cfg.MasterDBPath(), "error", err)
		return 1
	}
	defer store.Close()

	srv := master.New(master.Config{Listen: cfg.MasterServer.Listen}, store, log.WithComponent("master"))
	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("master server failed", "error", err)
		return 1
	}
	logger.Info("warden master stopped")
	return 0
}
