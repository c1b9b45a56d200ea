package input_bridge

import "context"

// InputBridgeAPI forwards line transitions to a host process that injects
// the matching key or gamepad events.
type InputBridgeAPI interface {
	SendEvent(ctx context.Context, line, action string) error
}
