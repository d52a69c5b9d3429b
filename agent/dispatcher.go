package agent

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"journalagent/llm"
	loggerv2 "journalagent/logger/v2"
	"journalagent/mcpcache"
	"journalagent/tools"
)

// Execution is the outcome of one dispatched tool call.
type Execution struct {
	Call      llm.ToolCall
	Result    llm.ToolResult
	Media     *llm.Media
	Citations []tools.Citation
	Handler   mcpcache.HandlerKind
	Duration  time.Duration
}

// Dispatcher routes a tool call to its local handler or to the gateway.
type Dispatcher struct {
	tools  *mcpcache.ToolSet
	remote RemoteCaller
	images *ImageFetcher
	output *ToolOutputHandler
	tracer trace.Tracer
	logger loggerv2.Logger
}

// NewDispatcher creates a dispatcher over one tool set snapshot.
func NewDispatcher(ts *mcpcache.ToolSet, remote RemoteCaller, images *ImageFetcher, tracer trace.Tracer, logger loggerv2.Logger) *Dispatcher {
	if logger == nil {
		logger = loggerv2.NewNoop()
	}
	if images == nil {
		images = NewImageFetcher(nil, 0)
	}
	return &Dispatcher{
		tools:  ts,
		remote: remote,
		images: images,
		output: NewToolOutputHandler(DefaultLargeToolOutputThreshold),
		tracer: tracer,
		logger: logger,
	}
}

// SetOutputHandler replaces the output cap; nil disables it.
func (d *Dispatcher) SetOutputHandler(h *ToolOutputHandler) {
	d.output = h
}

// Execute runs call. It never fails: errors become failed results.
func (d *Dispatcher) Execute(ctx context.Context, call llm.ToolCall, tc tools.Context) (ex Execution) {
	start := time.Now()
	ex = Execution{Call: call}
	if d.tracer != nil {
		var span trace.Span
		ctx, span = d.tracer.Start(ctx, "tool."+call.Name)
		defer func() {
			span.SetAttributes(
				attribute.String("tool.handler", ex.Handler.String()),
				attribute.Bool("tool.succeeded", ex.Result.Succeeded),
				attribute.Bool("tool.image", ex.Media != nil),
			)
			if !ex.Result.Succeeded {
				span.SetStatus(codes.Error, "tool failed")
			}
			span.End()
		}()
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool handler panicked", fmt.Errorf("%v", r), loggerv2.String("tool", call.Name))
			ex.Result = failedResult(call, fmt.Sprintf("Error: %s crashed", call.Name))
			ex.Media = nil
		}
		ex.Duration = time.Since(start)
	}()

	h, ok := d.tools.Lookup(call.Name)
	if !ok {
		ex.Result = failedResult(call, fmt.Sprintf("Error: %v: %q is not available; use one of the listed tools", ErrToolNotFound, call.Name))
		return ex
	}
	ex.Handler = h.Kind

	var res tools.Result
	switch h.Kind {
	case mcpcache.HandlerLocal:
		res = h.Local.Execute(ctx, call.Args, tc)
	case mcpcache.HandlerRemote:
		res = d.callRemote(ctx, call)
	}

	ex.Result = llm.ToolResult{
		CallID:    call.ID,
		Name:      call.Name,
		Args:      call.Args,
		Output:    res.Text,
		Succeeded: !res.Failed,
	}
	if out, cut := d.output.Limit(call.Name, ex.Result.Output); cut {
		d.logger.Info("tool output truncated",
			loggerv2.String("tool", call.Name), loggerv2.Int("chars", len(ex.Result.Output)))
		ex.Result.Output = out
	}
	ex.Citations = res.Citations
	if res.ImageURL != "" && !res.Failed {
		media, err := d.images.Fetch(ctx, res.ImageURL)
		if err != nil {
			d.logger.Warn("could not load tool image", loggerv2.String("tool", call.Name), loggerv2.Error(err))
			ex.Result.Output += "\n(The image could not be loaded: " + err.Error() + ")"
		} else {
			ex.Media = media
		}
	}
	return ex
}

func (d *Dispatcher) callRemote(ctx context.Context, call llm.ToolCall) tools.Result {
	if d.remote == nil {
		return tools.Failure("%s is unavailable: no tool gateway configured", call.Name)
	}
	r, err := d.remote.CallTool(ctx, call.Name, call.Args)
	if err != nil {
		d.logger.Warn("gateway tool call failed", loggerv2.String("tool", call.Name), loggerv2.Error(err))
		return tools.Failure("%s is temporarily unavailable: %v", call.Name, err)
	}
	if r.IsError {
		return tools.Result{Text: r.Text, Failed: true}
	}
	return tools.Result{Text: r.Text}
}

func failedResult(call llm.ToolCall, msg string) llm.ToolResult {
	return llm.ToolResult{CallID: call.ID, Name: call.Name, Args: call.Args, Output: msg}
}
