// Package transport provides the channels that relay loads from the agent to
// the master.
package transport

import (
	"context"
	"fmt"

	"github.com/mattjoyce/warden/internal/config"
	"github.com/mattjoyce/warden/internal/protocol"
)

//go:generate mockgen -destination=../caller/mocks/mock_return_channel.go -package=mocks github.com/mattjoyce/warden/internal/transport ReturnChannel

// ReturnChannel sends one load to the master. Implementations bound every
// send by their own timeout.
type ReturnChannel interface {
	Send(ctx context.Context, l *protocol.Load) error
}

// New builds the channel for the configured transport selector.
func New(ctx context.Context, cfg *config.Config) (ReturnChannel, error) {
	switch sel := cfg.TransportSelector(); sel {
	case config.TransportBroker:
		return NewBroker(cfg.Master)
	case config.TransportLane:
		return NewLane(cfg.Lane.SendTimeout), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", sel)
	}
}
