package caller

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/warden/internal/config"
	"github.com/mattjoyce/warden/internal/lane"
	"github.com/mattjoyce/warden/internal/protocol"
)

// shortDir returns a temp dir short enough for unix socket paths.
func shortDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "wc")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

type fakeCompanion struct {
	mu     sync.Mutex
	killed int
}

func (f *fakeCompanion) Kill() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed++
	return nil
}

func (f *fakeCompanion) Killed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.killed
}

type fakeSpawner struct {
	mu        sync.Mutex
	spawned   int
	companion *fakeCompanion
	err       error
}

func (f *fakeSpawner) Spawn(context.Context, *config.Config) (Companion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawned++
	if f.err != nil {
		return nil, f.err
	}
	return f.companion, nil
}

func laneConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testConfig(t)
	cfg.Transport = config.TransportLane
	cfg.Role = config.KindCaller
	cfg.SockDir = shortDir(t)
	cfg.Lane.PollInterval = 10 * time.Millisecond
	cfg.Lane.SettleDelay = 0
	cfg.Lane.ProbeTimeout = 500 * time.Millisecond
	cfg.Lane.RendezvousTimeout = 2 * time.Second
	return cfg
}

func newLaneCaller(t *testing.T, cfg *config.Config, sp Spawner, stdout *bytes.Buffer) *LaneCaller {
	t.Helper()
	c, err := NewLane(cfg, Deps{Registry: testRegistry(t, nil), Spawner: sp, Stdout: stdout, Stderr: &bytes.Buffer{}})
	require.NoError(t, err)
	return c
}

func TestLaneValidationBeforeSpawn(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		role   string
		field  string
		reason string
	}{
		{name: "missing id", id: "", role: config.KindCaller, field: "id", reason: "missing role"},
		{name: "invalid kind", id: "web01", role: "toaster", field: "role", reason: "invalid application kind"},
		{name: "unsupported kind", id: "web01", role: config.KindMaster, field: "role", reason: "unsupported application kind"},
		{name: "syndic unsupported", id: "web01", role: config.KindSyndic, field: "role", reason: "unsupported application kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := laneConfig(t)
			cfg.ID = tt.id
			cfg.Role = tt.role
			sp := &fakeSpawner{companion: &fakeCompanion{}}
			c := newLaneCaller(t, cfg, sp, &bytes.Buffer{})

			code, err := c.Run(context.Background(), Request{Fun: "test.ping"})
			var ce *ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
			assert.Contains(t, ce.Reason, tt.reason)
			assert.Equal(t, ExitGeneric, code)
			assert.Equal(t, 0, sp.spawned)
			assert.Equal(t, []LaneState{StateInit, StateClosed}, c.History())

			entries, err := os.ReadDir(cfg.SockDir)
			require.NoError(t, err)
			assert.Empty(t, entries, "nothing bound")
		})
	}
}

func TestLaneWaitsUnboundedForRendezvous(t *testing.T) {
	cfg := laneConfig(t)
	cfg.Role = config.KindMinion
	cfg.Lane.RendezvousTimeout = 0
	sp := &fakeSpawner{companion: &fakeCompanion{}}
	c := newLaneCaller(t, cfg, sp, &bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Run(ctx, Request{Fun: "test.ping"})
		done <- err
	}()

	require.Eventually(t, func() bool { return c.State() == StateWaitRendezvous }, 2*time.Second, 5*time.Millisecond)

	// Well past poll interval and any internal timer: still waiting.
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, StateWaitRendezvous, c.State())
	select {
	case err := <-done:
		t.Fatalf("Run returned while no peer exists: %v", err)
	default:
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, 0, sp.spawned, "minion role never spawns")
}

func TestLaneRendezvousTimeout(t *testing.T) {
	cfg := laneConfig(t)
	cfg.Lane.RendezvousTimeout = 100 * time.Millisecond
	comp := &fakeCompanion{}
	sp := &fakeSpawner{companion: comp}
	c := newLaneCaller(t, cfg, sp, &bytes.Buffer{})

	_, err := c.Run(context.Background(), Request{Fun: "test.ping"})
	require.ErrorIs(t, err, lane.ErrRendezvousTimeout)
	assert.Equal(t, 1, sp.spawned)
	assert.Equal(t, 1, comp.Killed(), "companion killed on the failure path")
	assert.Equal(t, StateClosed, c.State())
}

func TestLaneSpawnFailure(t *testing.T) {
	cfg := laneConfig(t)
	sp := &fakeSpawner{err: errors.New("exec format error")}
	c := newLaneCaller(t, cfg, sp, &bytes.Buffer{})

	_, err := c.Run(context.Background(), Request{Fun: "test.ping"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spawn lane peer")
	assert.Equal(t, StateClosed, c.State())
}

func startPeer(t *testing.T, cfg *config.Config) <-chan *protocol.Load {
	t.Helper()
	loads := make(chan *protocol.Load, 4)
	ctx, cancel := context.WithCancel(context.Background())
	p := &lane.Peer{
		SockDir: cfg.SockDir,
		Lane:    lane.Name(cfg.ID, cfg.Role),
		Forward: func(_ context.Context, l *protocol.Load) error {
			loads <- l
			return nil
		},
		ConnTimeout: time.Second,
	}
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return loads
}

func TestLaneFullLifecycle(t *testing.T) {
	cfg := laneConfig(t)
	cfg.Local = false
	loads := startPeer(t, cfg)

	comp := &fakeCompanion{}
	sp := &fakeSpawner{companion: comp}
	var stdout bytes.Buffer
	c := newLaneCaller(t, cfg, sp, &stdout)
	assert.Equal(t, "web01_caller", c.LaneName())

	code, err := c.Run(context.Background(), Request{Fun: "test.echo", Args: []string{"via-lane"}})
	require.NoError(t, err)
	assert.Equal(t, ExitOK, code)
	assert.Equal(t, "local:\n    via-lane\n", stdout.String())

	select {
	case l := <-loads:
		assert.Equal(t, protocol.CmdReturn, l.Cmd)
		assert.Equal(t, "web01", l.ID)
		assert.Equal(t, "via-lane", l.Return)
	case <-time.After(2 * time.Second):
		t.Fatal("peer never received the return")
	}

	assert.Equal(t, []LaneState{
		StateInit, StateSpawnPeer, StateWaitRendezvous, StateStackBound,
		StateReady, StateRunning, StateDraining, StateClosed,
	}, c.History())
	assert.Equal(t, 1, comp.Killed())

	_, err = c.binding.Stack()
	assert.ErrorIs(t, err, lane.ErrNoStack, "binding cleared after teardown")

	// Only the peer's own yard remains.
	matches, err := os.ReadDir(cfg.SockDir)
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotContains(t, m.Name(), ".caller", "stack socket removed")
	}

	code, err = c.Run(context.Background(), Request{Fun: "test.ping"})
	assert.ErrorIs(t, err, ErrCallerClosed)
	assert.Equal(t, ExitGeneric, code)
}

func TestLaneCallErrorStillDrains(t *testing.T) {
	cfg := laneConfig(t)
	startPeer(t, cfg)

	comp := &fakeCompanion{}
	var stdout bytes.Buffer
	c := newLaneCaller(t, cfg, &fakeSpawner{companion: comp}, &stdout)

	code, err := c.Run(context.Background(), Request{Fun: "test.fail"})
	require.NoError(t, err)
	assert.Equal(t, ExitGeneric, code)
	assert.Empty(t, stdout.String())
	assert.Equal(t, 1, comp.Killed())
	assert.Equal(t, StateClosed, c.State())
}

func TestLaneStateString(t *testing.T) {
	assert.Equal(t, "wait_rendezvous", StateWaitRendezvous.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "LaneState(42)", LaneState(42).String())
}
