package agent

import (
	"journalagent/events"
	loggerv2 "journalagent/logger/v2"
)

// logObserver mirrors tool activity and terminal events into the log.
type logObserver struct {
	logger loggerv2.Logger
}

func (o logObserver) OnEvent(ev *events.Event) {
	switch d := ev.Data.(type) {
	case *events.ToolCallEvent:
		o.logger.Debug("tool call", loggerv2.String("tool", d.Name), loggerv2.Int("turn", d.Turn))
	case *events.ToolResultEvent:
		o.logger.Debug("tool result",
			loggerv2.String("tool", d.Name),
			loggerv2.Bool("succeeded", d.Succeeded),
			loggerv2.Any("duration_ms", d.DurationMs))
	case *events.ErrorEvent:
		o.logger.Warn("run error emitted", loggerv2.String("code", d.Code), loggerv2.Int("status", d.Status))
	case *events.DoneEvent:
		o.logger.Debug("done emitted", loggerv2.Bool("success", d.Success))
	}
}
