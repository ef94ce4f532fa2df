package caller

import (
	"context"
	"sync"

	"github.com/mattjoyce/warden/internal/config"
	"github.com/mattjoyce/warden/internal/log"
	"github.com/mattjoyce/warden/internal/transport"
)

// BrokerCaller relays results to the master over HTTP. It needs no bootstrap.
type BrokerCaller struct {
	cfg  *config.Config
	deps Deps
	exec *Executor

	mu   sync.Mutex
	used bool
}

// NewBroker builds a broker caller. The channel is opened on first relay.
func NewBroker(cfg *config.Config, deps Deps) (*BrokerCaller, error) {
	if cfg.ID == "" && !cfg.IsLocal() {
		return nil, &ConfigurationError{Field: "id", Reason: "required to relay returns to the master"}
	}
	exec, err := newExecutor(cfg, deps, func(context.Context) (transport.ReturnChannel, error) {
		return transport.NewBroker(cfg.Master)
	})
	if err != nil {
		return nil, err
	}
	return &BrokerCaller{cfg: cfg, deps: deps, exec: exec}, nil
}

// Executor exposes the underlying executor.
func (c *BrokerCaller) Executor() *Executor { return c.exec }

// Run performs the call, renders it and returns the exit code.
func (c *BrokerCaller) Run(ctx context.Context, req Request) (int, error) {
	c.mu.Lock()
	if c.used {
		c.mu.Unlock()
		return ExitGeneric, ErrCallerClosed
	}
	c.used = true
	c.mu.Unlock()

	log.WithComponent("caller").Debug("running call", "transport", config.TransportBroker, "fun", req.Fun)
	comp, err := c.exec.Call(ctx, req.Fun, req.Args)
	return present(c.cfg, c.deps.Stdout, c.deps.Stderr, comp, err), nil
}
