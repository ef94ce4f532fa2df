package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/mattjoyce/warden/internal/lane"
	"github.com/mattjoyce/warden/internal/protocol"
)

// LaneChannel sends loads through the lane stack bound in the call context.
type LaneChannel struct {
	timeout time.Duration
}

// NewLane builds a lane channel whose sends are bounded by timeout.
func NewLane(timeout time.Duration) *LaneChannel {
	return &LaneChannel{timeout: timeout}
}

// Send resolves the bound stack from ctx and sends l to the companion.
func (c *LaneChannel) Send(ctx context.Context, l *protocol.Load) error {
	stack, err := lane.StackFromContext(ctx)
	if err != nil {
		return err
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := stack.SendLoad(ctx, l); err != nil {
		return fmt.Errorf("lane %s: %w", stack.Lane(), err)
	}
	return nil
}
