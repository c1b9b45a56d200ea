package listener

import (
	"context"

	"voice-drive/calibration"
)

type Interface interface {
	ListenLoop(ctx context.Context) error
	ControlInterface
}

// ControlInterface is the host side: mode switches are safe to call from any
// goroutine while ListenLoop runs.
type ControlInterface interface {
	StartClassifying()
	StartCalibration(engine *calibration.Engine) error
	Halt()
	Mode() Mode
}
