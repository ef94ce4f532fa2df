package caller

import (
	"context"
	"fmt"
	"os"

	"github.com/mattjoyce/warden/internal/config"
	"github.com/mattjoyce/warden/internal/dispatch"
)

// Companion is a spawned lane peer. Kill is its only lifecycle event.
type Companion interface {
	Kill() error
}

// Spawner starts the lane companion without waiting on it.
type Spawner interface {
	Spawn(ctx context.Context, cfg *config.Config) (Companion, error)
}

// ExecSpawner runs `warden lane peer` as a detached child process, or
// lane.peer_command when configured.
type ExecSpawner struct{}

// Spawn starts the companion.
func (ExecSpawner) Spawn(_ context.Context, cfg *config.Config) (Companion, error) {
	argv, err := peerCommand(cfg)
	if err != nil {
		return nil, err
	}
	proc, err := dispatch.StartDetached(argv, nil)
	if err != nil {
		return nil, err
	}
	return proc, nil
}

func peerCommand(cfg *config.Config) ([]string, error) {
	if len(cfg.Lane.PeerCommand) > 0 {
		return cfg.Lane.PeerCommand, nil
	}
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	argv := []string{self, "lane", "peer"}
	if cfg.SourcePath != "" {
		argv = append(argv, "--config", cfg.SourcePath)
	}
	return argv, nil
}
