package logutil

import (
	"github.com/lthibault/log"
	"github.com/thejerf/suture/v4"
)

// NewEventHook adapts logger into a suture event hook.  Events are
// tagged with the flowmesh service that emitted them, so channel and
// gateway supervisors stay distinguishable in a shared log stream.
func NewEventHook(logger log.Logger, service string) suture.EventHook {
	return func(e suture.Event) {
		entry := logger.
			WithField("service", service).
			WithFields(e.Map())

		switch e.Type() {
		case suture.EventTypeServicePanic:
			entry.Error("service panicked")

		case suture.EventTypeServiceTerminate:
			entry.Warn("service terminated")

		case suture.EventTypeStopTimeout:
			entry.Warn("service failed to stop in time")

		case suture.EventTypeBackoff:
			entry.Debug("supervisor entered backoff")

		case suture.EventTypeResume:
			entry.Debug("supervisor resumed")

		default:
			entry.Debug(e.String())
		}
	}
}
