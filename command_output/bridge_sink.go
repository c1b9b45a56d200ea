package command_output

import (
	"context"
	"fmt"

	"voice-drive/clients/input_bridge"
)

// BridgeSink forwards events to an input bridge over HTTP.
type BridgeSink struct {
	client input_bridge.InputBridgeAPI
}

func NewBridgeSink(client input_bridge.InputBridgeAPI) (*BridgeSink, error) {
	if client == nil {
		return nil, fmt.Errorf("input bridge client is nil")
	}

	return &BridgeSink{client: client}, nil
}

func (s *BridgeSink) Send(ctx context.Context, ev Event) error {
	return s.client.SendEvent(ctx, string(ev.Line), string(ev.Action))
}
