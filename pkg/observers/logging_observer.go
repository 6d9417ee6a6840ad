// Package observers provides fsm observers for logging, metrics and validation
package observers

import (
	"github.com/go-logr/logr"

	"github.com/anggasct/junction/pkg/fsm"
	"github.com/anggasct/junction/pkg/logging"
)

// LoggingObserver logs state machine events. The logger carried by the event
// context wins over the one the observer was created with.
type LoggingObserver struct {
	fsm.BaseObserver
	logger logr.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger logr.Logger) *LoggingObserver {
	return &LoggingObserver{logger: logger}
}

func (o *LoggingObserver) log(ctx fsm.Context) logr.Logger {
	if ctx != nil {
		if logger, err := logr.FromContext(ctx); err == nil {
			return logger
		}
	}
	return o.logger
}

func (o *LoggingObserver) OnStateEnter(state string, ctx fsm.Context) {
	o.log(ctx).V(logging.TRACE).Info("Entering state", "state", state)
}

func (o *LoggingObserver) OnStateExit(state string, ctx fsm.Context) {
	o.log(ctx).V(logging.TRACE).Info("Exiting state", "state", state)
}

func (o *LoggingObserver) OnTransition(from, to string, event fsm.Event, ctx fsm.Context) {
	name, id := "", ""
	if event != nil {
		name, id = event.Name(), event.ID()
	}
	o.log(ctx).V(logging.VERBOSE).Info("Transition", "from", from, "to", to, "event", name, "eventID", id)
}

func (o *LoggingObserver) OnEventRejected(event fsm.Event, reason string, ctx fsm.Context) {
	o.log(ctx).V(logging.DEBUG).Info("Event rejected", "event", event.Name(), "reason", reason)
}

func (o *LoggingObserver) OnError(err error, ctx fsm.Context) {
	o.log(ctx).Error(err, "State machine error")
}

func (o *LoggingObserver) OnMachineStarted(ctx fsm.Context) {
	o.log(ctx).V(logging.DEBUG).Info("Machine started", "state", ctx.CurrentState())
}

func (o *LoggingObserver) OnMachineStopped(ctx fsm.Context) {
	o.log(ctx).V(logging.DEBUG).Info("Machine stopped", "state", ctx.CurrentState())
}
