package lane

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mattjoyce/warden/internal/log"
	"github.com/mattjoyce/warden/internal/protocol"
)

// ErrRendezvousTimeout is returned when the peer endpoint does not appear
// within WaitOptions.Timeout.
var ErrRendezvousTimeout = errors.New("timed out waiting for lane peer")

// WaitOptions tunes WaitRendezvous.
type WaitOptions struct {
	// PollInterval between existence checks.
	PollInterval time.Duration
	// Timeout bounds the whole wait. Zero waits until ctx is done.
	Timeout time.Duration
	// Probe pings the endpoint once it exists and keeps polling until the
	// ping is answered.
	Probe        bool
	ProbeTimeout time.Duration
	// Settle is slept after the endpoint is observed (and probed).
	Settle time.Duration
}

// WaitRendezvous blocks until path exists as a non-regular, non-directory
// file (a bound socket), then applies the probe and settle steps.
func WaitRendezvous(ctx context.Context, path string, opts WaitOptions) error {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 2 * time.Second
	}
	logger := log.WithComponent("lane").With("path", path)

	var expired <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		expired = timer.C
	}
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		if endpointExists(path) {
			if !opts.Probe {
				break
			}
			err := Probe(ctx, path, opts.ProbeTimeout)
			if err == nil {
				break
			}
			logger.Debug("peer endpoint not answering yet", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-expired:
			return fmt.Errorf("%w after %s: %s", ErrRendezvousTimeout, opts.Timeout, path)
		case <-ticker.C:
		}
	}

	logger.Debug("peer endpoint ready", "settle", opts.Settle)
	if opts.Settle <= 0 {
		return nil
	}
	settle := time.NewTimer(opts.Settle)
	defer settle.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-settle.C:
		return nil
	}
}

// Probe pings the yard at path.
func Probe(ctx context.Context, path string, timeout time.Duration) error {
	rep, err := exchange(ctx, path, &protocol.LaneMessage{Kind: protocol.KindPing}, timeout)
	if err != nil {
		return err
	}
	if rep.Status != protocol.StatusOK {
		return fmt.Errorf("ping rejected: %s", rep.Error)
	}
	return nil
}

func endpointExists(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return !mode.IsRegular() && !mode.IsDir()
}
