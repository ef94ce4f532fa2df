package collector

import (
	"context"

	"github.com/mattjoyce/warden/internal/config"
	"github.com/mattjoyce/warden/internal/job"
	"github.com/mattjoyce/warden/internal/jobcache"
)

// SQLite stores results in the local job cache.
type SQLite struct {
	store *jobcache.Store
}

func openSQLite(ctx context.Context, cfg *config.Config) (Collector, error) {
	store, err := jobcache.Open(ctx, cfg.JobCachePath())
	if err != nil {
		return nil, err
	}
	return &SQLite{store: store}, nil
}

// Name returns "sqlite".
func (c *SQLite) Name() string { return "sqlite" }

// Collect saves r in the job cache.
func (c *SQLite) Collect(ctx context.Context, r job.Result) error {
	return c.store.SaveReturn(ctx, r)
}

// Close closes the job cache.
func (c *SQLite) Close() error { return c.store.Close() }
