package lane

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/mattjoyce/warden/internal/lock"
	"github.com/mattjoyce/warden/internal/log"
	"github.com/mattjoyce/warden/internal/protocol"
)

// ForwardFunc delivers a load received on the lane.
type ForwardFunc func(ctx context.Context, l *protocol.Load) error

// Peer is the companion side of a lane: it holds the lane's PID lock, binds
// the manor yard and forwards every load it receives.
type Peer struct {
	SockDir string
	Lane    string
	Forward ForwardFunc
	// ConnTimeout bounds one request/reply exchange, forwarding included.
	ConnTimeout time.Duration
}

// Serve runs until ctx is done. It refuses to start if another peer holds
// the lane lock.
func (p *Peer) Serve(ctx context.Context) error {
	if p.Forward == nil {
		return fmt.Errorf("peer has no forwarder")
	}
	timeout := p.ConnTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := log.WithComponent("lane-peer").With("lane", p.Lane)

	lk, err := lock.AcquirePIDLock(LockPath(p.SockDir, p.Lane))
	if err != nil {
		return fmt.Errorf("lane %s: %w", p.Lane, err)
	}
	defer func() { _ = lk.Release() }()

	path := PeerPath(p.SockDir, p.Lane)
	// we hold the lock, so anything at path is left over from a dead peer
	if fi, err := os.Lstat(path); err == nil && !fi.IsDir() {
		logger.Info("removing stale peer socket", "path", path)
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove stale socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("bind peer %s: %w", path, err)
	}
	defer func() { _ = os.Remove(path) }()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	logger.Info("peer listening", "path", path, "pid", os.Getpid())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Info("peer stopped")
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go serveConn(ctx, conn, timeout, p.handle)
	}
}

func (p *Peer) handle(ctx context.Context, m *protocol.LaneMessage) error {
	switch m.Kind {
	case protocol.KindPing:
		return nil
	case protocol.KindLoad:
		logger := log.WithComponent("lane-peer").With("cmd", m.Load.Cmd, "id", m.Load.ID)
		if err := p.Forward(ctx, m.Load); err != nil {
			logger.Warn("forward failed", "error", err)
			return err
		}
		logger.Debug("load forwarded")
		return nil
	default:
		return fmt.Errorf("unsupported message kind %q", m.Kind)
	}
}
