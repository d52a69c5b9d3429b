package agent

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"journalagent/events"
	loggerv2 "journalagent/logger/v2"
)

// DefaultRunTimeout bounds a detached streaming run.
const DefaultRunTimeout = 3 * time.Minute

// RunStream starts req in a background goroutine and returns at once. The
// run's context is detached from ctx, so a client disconnect does not abort
// in-flight tools; it only stops delivery through stream.Abandon. Every path
// ends with a done event and stream is closed exactly once. The returned
// channel is closed when the goroutine has finished.
func (a *Agent) RunStream(ctx context.Context, req Request, stream *events.Stream, timeout time.Duration) <-chan struct{} {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	finished := make(chan struct{})
	logger := a.logger.With(loggerv2.String("request_id", req.RequestID))

	go func() {
		defer close(finished)
		defer stream.Close()

		emitter := events.NewEventEmitter(req.RequestID, logger)
		emitter.AddObserver(stream)
		emitter.AddObserver(logObserver{logger: logger})

		defer func() {
			if r := recover(); r != nil {
				logger.Error("run panicked", fmt.Errorf("%v", r), loggerv2.String("stack", string(debug.Stack())))
				emitter.Emit(&events.ErrorEvent{
					Code:    CodeInternalError,
					Message: "An internal error occurred.",
					Status:  http.StatusInternalServerError,
				})
				emitter.Emit(&events.DoneEvent{
					Success:   false,
					Citations: []*events.CitationEvent{},
					Metadata:  map[string]any{"request_id": req.RequestID, "stop_reason": "panic"},
				})
			}
		}()

		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		out, err := a.Run(runCtx, req, emitter)
		if err != nil {
			emitter.Emit(&events.ErrorEvent{Code: ErrorCode(err), Message: PublicMessage(err), Status: ErrorStatus(err)})
		}
		emitter.Emit(out.DoneEvent())
	}()
	return finished
}
