package dispatch

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/mattjoyce/warden/internal/log"
)

// Process is a detached child started by StartDetached.
type Process struct {
	cmd  *exec.Cmd
	once sync.Once
	done chan struct{}
	err  error
}

// StartDetached starts argv in a new session with stdio detached. The child
// is reaped in the background so it never lingers as a zombie.
func StartDetached(argv []string, env []string) (*Process, error) {
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer devnull.Close()
	cmd.Stdin = devnull
	cmd.Stdout = devnull
	cmd.Stderr = devnull

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start process: %w", err)
	}
	log.WithComponent("dispatch").Debug("detached process started", "cmd", argv[0], "pid", cmd.Process.Pid)

	p := &Process{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// PID returns the child's process id.
func (p *Process) PID() int {
	if p == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Exited returns a channel closed once the child has been reaped.
func (p *Process) Exited() <-chan struct{} {
	return p.done
}

// Kill sends SIGKILL to the child and waits for it to be reaped. Killing an
// already exited child is not an error. Safe to call more than once.
func (p *Process) Kill() error {
	if p == nil {
		return nil
	}
	var err error
	p.once.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}
		if kerr := p.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			err = fmt.Errorf("kill pid %d: %w", p.cmd.Process.Pid, kerr)
			return
		}
		<-p.done
	})
	return err
}
