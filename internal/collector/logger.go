package collector

import (
	"context"
	"log/slog"

	"github.com/mattjoyce/warden/internal/config"
	"github.com/mattjoyce/warden/internal/job"
	"github.com/mattjoyce/warden/internal/log"
)

// Log writes each result to the structured log.
type Log struct {
	logger *slog.Logger
}

func openLog(context.Context, *config.Config) (Collector, error) {
	return &Log{logger: log.WithComponent("collector")}, nil
}

// Name returns "log".
func (c *Log) Name() string { return "log" }

// Collect logs r at info level.
func (c *Log) Collect(ctx context.Context, r job.Result) error {
	c.logger.LogAttrs(ctx, slog.LevelInfo, "job return",
		slog.String("jid", r.JID),
		slog.String("id", r.ID),
		slog.String("fun", r.Fun),
		slog.Int("retcode", r.Retcode),
		slog.Bool("success", r.Success),
		slog.Any("return", r.Return),
	)
	return nil
}
