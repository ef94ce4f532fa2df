package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"github.com/mattjoyce/warden/internal/log"
)

const (
	// maxOutputBytes caps the amount of stdout/stderr captured per stream.
	maxOutputBytes = 64 * 1024

	// defaultGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	defaultGracePeriod = 5 * time.Second
)

// ErrEmptyCommand is returned when a spec has no argv.
var ErrEmptyCommand = errors.New("empty command")

// Spec describes one command run.
type Spec struct {
	Argv    []string
	Dir     string
	Env     []string
	Stdin   io.Reader
	Timeout time.Duration
	// Grace is the delay between SIGTERM and SIGKILL. Zero uses 5s.
	Grace time.Duration
}

// Outcome is the result of a completed run.
type Outcome struct {
	PID      int
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Duration time.Duration
}

// Run executes spec and waits for it. A non-zero exit is not an error; it
// is reported in Outcome.ExitCode. Errors mean the process could not be
// started or waited for.
func Run(ctx context.Context, spec Spec) (*Outcome, error) {
	if len(spec.Argv) == 0 {
		return nil, ErrEmptyCommand
	}
	grace := spec.Grace
	if grace <= 0 {
		grace = defaultGracePeriod
	}
	logger := log.WithComponent("dispatch").With("cmd", spec.Argv[0])

	// CommandContext would SIGKILL straight away; termination is escalated here.
	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	}
	cmd.Stdin = spec.Stdin
	// Background grandchildren must not hold the captured pipes open forever.
	cmd.WaitDelay = grace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start process: %w", err)
	}
	logger.Debug("process started", "pid", cmd.Process.Pid, "timeout", spec.Timeout)

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	var expired <-chan time.Time
	if spec.Timeout > 0 {
		timer := time.NewTimer(spec.Timeout)
		defer timer.Stop()
		expired = timer.C
	}

	out := &Outcome{PID: cmd.Process.Pid}
	var err error
	select {
	case err = <-waitErr:
	case <-expired:
		out.TimedOut = true
		err = terminate(cmd, waitErr, grace, logger)
	case <-ctx.Done():
		out.TimedOut = true
		err = terminate(cmd, waitErr, grace, logger)
	}

	out.Duration = time.Since(start)
	out.Stdout = truncate(stdout.String())
	out.Stderr = truncate(stderr.String())

	if errors.Is(err, exec.ErrWaitDelay) {
		err = nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return out, fmt.Errorf("wait for process: %w", err)
		}
		out.ExitCode = exitErr.ExitCode()
		if out.ExitCode < 0 {
			// killed by a signal
			out.ExitCode = 128 + int(signalOf(exitErr))
		}
		logger.Debug("process exited with non-zero status", "exit_code", out.ExitCode)
	}
	return out, nil
}

func terminate(cmd *exec.Cmd, waitErr <-chan error, grace time.Duration, logger *slog.Logger) error {
	logger.Warn("process timed out, sending SIGTERM")
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		logger.Error("failed to send SIGTERM", "error", err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case err := <-waitErr:
		return err
	case <-timer.C:
		logger.Warn("process did not exit after SIGTERM, sending SIGKILL")
		if err := cmd.Process.Kill(); err != nil {
			logger.Error("failed to send SIGKILL", "error", err)
		}
		return <-waitErr
	}
}

func signalOf(exitErr *exec.ExitError) syscall.Signal {
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ws.Signal()
	}
	return 0
}

// truncate caps s to maxOutputBytes.
func truncate(s string) string {
	if len(s) > maxOutputBytes {
		return s[:maxOutputBytes]
	}
	return s
}
