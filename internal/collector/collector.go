// Package collector implements the named result collectors a call hands its
// result to, in addition to (or instead of) relaying it to the master.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mattjoyce/warden/internal/config"
	"github.com/mattjoyce/warden/internal/job"
)

//go:generate mockgen -destination=../caller/mocks/mock_collector.go -package=mocks github.com/mattjoyce/warden/internal/collector Collector

// ErrUnknownCollector is returned for names with no registered factory.
var ErrUnknownCollector = errors.New("unknown collector")

// Collector receives one call result.
type Collector interface {
	Name() string
	Collect(ctx context.Context, r job.Result) error
}

// Factory opens a collector from configuration.
type Factory func(ctx context.Context, cfg *config.Config) (Collector, error)

// Set resolves collectors by name, opening each on first use.
type Set struct {
	cfg *config.Config

	mu        sync.Mutex
	factories map[string]Factory
	open      map[string]Collector
}

// NewSet returns a set with the built-in sqlite, redis and log collectors.
func NewSet(cfg *config.Config) *Set {
	s := &Set{
		cfg:       cfg,
		factories: make(map[string]Factory),
		open:      make(map[string]Collector),
	}
	s.Register("sqlite", openSQLite)
	s.Register("redis", openRedis)
	s.Register("log", openLog)
	return s
}

// Register adds or replaces a factory.
func (s *Set) Register(name string, f Factory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[name] = f
}

// Add installs an already opened collector under its own name.
func (s *Set) Add(c Collector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open[c.Name()] = c
}

// Names lists the registered and added collector names.
func (s *Set) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	for n := range s.factories {
		seen[n] = struct{}{}
	}
	for n := range s.open {
		seen[n] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Get returns the collector called name, opening it if needed.
func (s *Set) Get(ctx context.Context, name string) (Collector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.open[name]; ok {
		return c, nil
	}
	f, ok := s.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollector, name)
	}
	c, err := f(ctx, s.cfg)
	if err != nil {
		return nil, fmt.Errorf("open collector %s: %w", name, err)
	}
	s.open[name] = c
	return c, nil
}

// Close closes every opened collector that holds resources.
func (s *Set) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for name, c := range s.open {
		if cl, ok := c.(interface{ Close() error }); ok {
			if err := cl.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			}
		}
		delete(s.open, name)
	}
	return errors.Join(errs...)
}
