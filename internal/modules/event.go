package modules

import (
	"context"
	"fmt"

	"github.com/mattjoyce/warden/internal/log"
	"github.com/mattjoyce/warden/internal/protocol"
	"github.com/mattjoyce/warden/internal/registry"
)

func eventEntries(d Deps, _ *registry.Registry) []registry.Entry {
	return []registry.Entry{
		{
			Name: "event.fire_master",
			Doc: "Send an event with data under tag to the master. Returns false in local mode.\n\n" +
				"    warden call event.fire_master '{\"rev\": \"abc\"}' deploy/done",
			Signature: registry.Signature{Params: []registry.Param{{Name: "data"}, {Name: "tag"}}},
			Func: func(ctx context.Context, inv *registry.Invocation) (any, error) {
				return fireMaster(ctx, d, inv)
			},
		},
	}
}

func fireMaster(ctx context.Context, d Deps, inv *registry.Invocation) (any, error) {
	tag, err := inv.StringArg("tag")
	if err != nil {
		return nil, err
	}
	if tag == "" {
		return nil, fmt.Errorf("%w: tag is required", registry.ErrInvalidArgument)
	}

	var data map[string]any
	switch v := inv.Args["data"].(type) {
	case nil:
		data = map[string]any{}
	case map[string]any:
		data = v
	default:
		data = map[string]any{"data": v}
	}

	if d.Config.IsLocal() {
		log.WithFunction(inv.Fun).Warn("local mode, event not sent", "tag", tag)
		return false, nil
	}
	if d.Channel == nil {
		return nil, fmt.Errorf("no channel to the master")
	}
	ch, err := d.Channel(ctx)
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Send(ctx, protocol.EventLoad(d.Config.ID, tag, data)); err != nil {
		return nil, fmt.Errorf("fire event %s: %w", tag, err)
	}
	return true, nil
}
