package lane

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/mattjoyce/warden/internal/log"
	"github.com/mattjoyce/warden/internal/protocol"
)

const defaultSendTimeout = 5 * time.Second

// Stack is the caller's locally bound endpoint on a lane. It answers pings
// on its own yard and sends messages to the companion's yard.
type Stack struct {
	name        string
	lane        string
	path        string
	remote      string
	sendTimeout time.Duration

	ln        net.Listener
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewStack binds a fresh caller yard on lane under sockDir and registers the
// companion's yard as the remote.
func NewStack(sockDir, lane string, sendTimeout time.Duration) (*Stack, error) {
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	if err := os.MkdirAll(sockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}
	name := StackName()
	s := &Stack{
		name:        name,
		lane:        lane,
		path:        YardPath(sockDir, lane, name),
		remote:      PeerPath(sockDir, lane),
		sendTimeout: sendTimeout,
	}
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return nil, fmt.Errorf("bind stack %s: %w", s.path, err)
	}
	s.ln = ln

	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// Name is the stack name, "caller" plus a random suffix.
func (s *Stack) Name() string { return s.name }

// Lane is the lane the stack belongs to.
func (s *Stack) Lane() string { return s.lane }

// Path is the socket the stack listens on.
func (s *Stack) Path() string { return s.path }

// Remote is the yard socket Send delivers to.
func (s *Stack) Remote() string { return s.remote }

// Send delivers one message to the remote yard and waits for its reply.
func (s *Stack) Send(ctx context.Context, msg *protocol.LaneMessage) error {
	rep, err := exchange(ctx, s.remote, msg, s.sendTimeout)
	if err != nil {
		return err
	}
	if rep.Status != protocol.StatusOK {
		return fmt.Errorf("peer rejected %s: %s", msg.Kind, rep.Error)
	}
	return nil
}

// SendLoad wraps l in a load message and sends it.
func (s *Stack) SendLoad(ctx context.Context, l *protocol.Load) error {
	return s.Send(ctx, &protocol.LaneMessage{Kind: protocol.KindLoad, Load: l})
}

// Close stops the listener and removes the socket file. It is safe to call
// more than once.
func (s *Stack) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.ln.Close()
		s.wg.Wait()
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) && s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}

func (s *Stack) acceptLoop() {
	defer s.wg.Done()
	logger := log.WithComponent("lane").With("stack", s.name)
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				logger.Debug("stack accept failed", "error", err)
			}
			return
		}
		serveConn(context.Background(), conn, s.sendTimeout, func(_ context.Context, m *protocol.LaneMessage) error {
			if m.Kind != protocol.KindPing {
				return fmt.Errorf("caller stack does not accept %s messages", m.Kind)
			}
			return nil
		})
	}
}

// exchange sends msg to the yard at path and reads one reply.
func exchange(ctx context.Context, path string, msg *protocol.LaneMessage, timeout time.Duration) (*protocol.LaneReply, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := protocol.EncodeMessage(conn, msg); err != nil {
		return nil, err
	}
	rep, err := protocol.DecodeReply(conn)
	if err != nil {
		return nil, err
	}
	return rep, nil
}

// serveConn reads one message from conn, passes it to handle and writes the
// reply.
func serveConn(ctx context.Context, conn net.Conn, timeout time.Duration, handle func(context.Context, *protocol.LaneMessage) error) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	rep := &protocol.LaneReply{Status: protocol.StatusOK}
	msg, err := protocol.DecodeMessage(conn)
	if err == nil {
		err = handle(ctx, msg)
	}
	if err != nil {
		rep = &protocol.LaneReply{Status: protocol.StatusError, Error: err.Error()}
	}
	if werr := protocol.EncodeReply(conn, rep); werr != nil {
		log.WithComponent("lane").Debug("write reply failed", "error", werr)
	}
}
