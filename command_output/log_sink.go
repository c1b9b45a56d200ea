package command_output

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// LogSink writes every event to the log. It is the default sink when no
// input bridge is configured.
type LogSink struct{}

func (LogSink) Send(_ context.Context, ev Event) error {
	log.WithFields(log.Fields{
		"line":   string(ev.Line),
		"action": string(ev.Action),
	}).Info("command")

	return nil
}
