package caller

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/mattjoyce/warden/internal/config"
	"github.com/mattjoyce/warden/internal/lane"
	"github.com/mattjoyce/warden/internal/log"
	"github.com/mattjoyce/warden/internal/transport"
)

// LaneState is a step of the lane caller lifecycle.
type LaneState int

const (
	StateInit LaneState = iota
	StateSpawnPeer
	StateWaitRendezvous
	StateStackBound
	StateReady
	StateRunning
	StateDraining
	StateClosed
)

func (s LaneState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSpawnPeer:
		return "spawn_peer"
	case StateWaitRendezvous:
		return "wait_rendezvous"
	case StateStackBound:
		return "stack_bound"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("LaneState(%d)", int(s))
	}
}

// LaneCaller relays results through a local companion peer over a unix
// socket lane. It optionally spawns the companion, waits for its endpoint,
// binds its own stack for the duration of one call and tears everything down
// afterwards.
type LaneCaller struct {
	cfg     *config.Config
	deps    Deps
	exec    *Executor
	spawner Spawner
	binding *lane.Binding

	mu        sync.Mutex
	state     LaneState
	history   []LaneState
	stack     *lane.Stack
	companion Companion
}

// NewLane builds a lane caller in StateInit.
func NewLane(cfg *config.Config, deps Deps) (*LaneCaller, error) {
	exec, err := newExecutor(cfg, deps, func(context.Context) (transport.ReturnChannel, error) {
		return transport.NewLane(cfg.Lane.SendTimeout), nil
	})
	if err != nil {
		return nil, err
	}
	spawner := deps.Spawner
	if spawner == nil {
		spawner = ExecSpawner{}
	}
	return &LaneCaller{
		cfg:     cfg,
		deps:    deps,
		exec:    exec,
		spawner: spawner,
		binding: &lane.Binding{},
		state:   StateInit,
		history: []LaneState{StateInit},
	}, nil
}

// Executor exposes the underlying executor.
func (c *LaneCaller) Executor() *Executor { return c.exec }

// State returns the current lifecycle state.
func (c *LaneCaller) State() LaneState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// History returns every state entered so far, in order.
func (c *LaneCaller) History() []LaneState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.history)
}

// LaneName is the lane this caller rendezvous on.
func (c *LaneCaller) LaneName() string {
	return lane.Name(c.cfg.ID, c.cfg.Role)
}

func (c *LaneCaller) setState(s LaneState) {
	c.mu.Lock()
	c.state = s
	c.history = append(c.history, s)
	c.mu.Unlock()
	log.WithComponent("caller").Debug("lane state", "state", s.String())
}

// validate checks the lane identity before anything is spawned or bound.
func (c *LaneCaller) validate() error {
	if c.cfg.ID == "" {
		return &ConfigurationError{Field: "id", Reason: "missing role required to set up the lane"}
	}
	if !slices.Contains(config.Kinds, c.cfg.Role) {
		return &ConfigurationError{Field: "role", Value: c.cfg.Role, Reason: "invalid application kind"}
	}
	if c.cfg.Role != config.KindMinion && c.cfg.Role != config.KindCaller {
		return &ConfigurationError{Field: "role", Value: c.cfg.Role, Reason: "unsupported application kind for the lane transport"}
	}
	return nil
}

// Run bootstraps the lane, performs the call, renders it and tears the lane
// down. Bootstrap failures are returned as errors; call failures become a
// diagnostic and ExitGeneric.
func (c *LaneCaller) Run(ctx context.Context, req Request) (int, error) {
	c.mu.Lock()
	if c.state != StateInit {
		c.mu.Unlock()
		return ExitGeneric, ErrCallerClosed
	}
	c.mu.Unlock()

	if err := c.validate(); err != nil {
		c.setState(StateClosed)
		return ExitGeneric, err
	}

	defer c.drain()

	callCtx, err := c.bootstrap(ctx)
	if err != nil {
		return ExitGeneric, err
	}

	c.setState(StateRunning)
	comp, err := c.exec.Call(callCtx, req.Fun, req.Args)
	return present(c.cfg, c.deps.Stdout, c.deps.Stderr, comp, err), nil
}

func (c *LaneCaller) bootstrap(ctx context.Context) (context.Context, error) {
	logger := log.WithComponent("caller")
	laneName := c.LaneName()

	if c.cfg.Role == config.KindCaller {
		c.setState(StateSpawnPeer)
		comp, err := c.spawner.Spawn(ctx, c.cfg)
		if err != nil {
			return nil, fmt.Errorf("spawn lane peer: %w", err)
		}
		c.mu.Lock()
		c.companion = comp
		c.mu.Unlock()
	}

	c.setState(StateWaitRendezvous)
	peer := lane.PeerPath(c.cfg.SockDir, laneName)
	logger.Debug("waiting for lane peer", "path", peer)
	lc := c.cfg.Lane
	if err := lane.WaitRendezvous(ctx, peer, lane.WaitOptions{
		PollInterval: lc.PollInterval,
		Timeout:      lc.RendezvousTimeout,
		Probe:        lc.ProbeEnabled(),
		ProbeTimeout: lc.ProbeTimeout,
		Settle:       lc.SettleDelay,
	}); err != nil {
		return nil, fmt.Errorf("lane %s: %w", laneName, err)
	}

	stack, err := lane.NewStack(c.cfg.SockDir, laneName, lc.SendTimeout)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.stack = stack
	c.mu.Unlock()
	c.setState(StateStackBound)

	if err := c.binding.Bind(stack); err != nil {
		return nil, err
	}
	c.setState(StateReady)
	logger.Debug("lane ready", "lane", laneName, "stack", stack.Name())
	return lane.WithBinding(ctx, c.binding), nil
}

// drain closes the stack, clears the binding and kills the companion.
func (c *LaneCaller) drain() {
	c.setState(StateDraining)
	logger := log.WithComponent("caller")

	c.mu.Lock()
	stack, companion := c.stack, c.companion
	c.stack, c.companion = nil, nil
	c.mu.Unlock()

	if stack != nil {
		if err := stack.Close(); err != nil {
			logger.Warn("failed to close lane stack", "error", err)
		}
	}
	c.binding.Clear()
	if companion != nil {
		if err := companion.Kill(); err != nil {
			logger.Warn("failed to stop lane peer", "error", err)
		}
	}
	c.setState(StateClosed)
}
