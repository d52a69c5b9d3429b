package agent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"journalagent/agent/prompt"
	"journalagent/events"
	"journalagent/llm"
	loggerv2 "journalagent/logger/v2"
	"journalagent/refs"
	"journalagent/store"
	"journalagent/tools"
)

// Request is one user turn to answer.
type Request struct {
	RequestID       string
	Message         string
	Images          []llm.Media
	CallerIdentity  string
	ScopeIdentifier string
	History         []llm.Message
}

func (r *Request) userMessage() llm.Message {
	m := llm.Message{Role: llm.RoleUser}
	for i := range r.Images {
		img := r.Images[i]
		m.Parts = append(m.Parts, llm.Part{Media: &img})
	}
	if r.Message != "" {
		m.Parts = append(m.Parts, llm.Part{Text: r.Message})
	}
	return m
}

// Metadata summarises a run for the done event.
type Metadata struct {
	RequestID          string     `json:"request_id"`
	Model              string     `json:"model"`
	Turns              int        `json:"turns"`
	ToolCalls          int        `json:"tool_calls"`
	CorrectionAttempts int        `json:"correction_attempts"`
	StrippedReferences int        `json:"stripped_references"`
	RecoveryAttempts   int        `json:"recovery_attempts"`
	CompactedResults   int        `json:"compacted_results"`
	WrapUp             bool       `json:"wrap_up"`
	DegradedTools      bool       `json:"degraded_tools"`
	StopReason         StopReason `json:"stop_reason"`
	InputTokens        int        `json:"input_tokens"`
	OutputTokens       int        `json:"output_tokens"`
	DurationMs         int64      `json:"duration_ms"`
}

// Map renders m for the done event payload.
func (m Metadata) Map() map[string]any {
	return map[string]any{
		"request_id":          m.RequestID,
		"model":               m.Model,
		"turns":               m.Turns,
		"tool_calls":          m.ToolCalls,
		"correction_attempts": m.CorrectionAttempts,
		"stripped_references": m.StrippedReferences,
		"recovery_attempts":   m.RecoveryAttempts,
		"compacted_results":   m.CompactedResults,
		"wrap_up":             m.WrapUp,
		"degraded_tools":      m.DegradedTools,
		"stop_reason":         string(m.StopReason),
		"input_tokens":        m.InputTokens,
		"output_tokens":       m.OutputTokens,
		"duration_ms":         m.DurationMs,
	}
}

// Outcome is the result of a run.
type Outcome struct {
	Success      bool
	FinalText    string
	Citations    []tools.Citation
	EmbeddedData map[store.Kind]map[string]any
	Metadata     Metadata
}

// DoneEvent renders o as the terminal stream event.
func (o *Outcome) DoneEvent() *events.DoneEvent {
	cits := make([]*events.CitationEvent, 0, len(o.Citations))
	for _, c := range o.Citations {
		cits = append(cits, &events.CitationEvent{Title: c.Title, URL: c.URL, Snippet: c.Snippet})
	}
	return &events.DoneEvent{Success: o.Success, FinalText: o.FinalText, Citations: cits, Metadata: o.Metadata.Map()}
}

// Run answers req. Tool, gateway and empty-reply failures are absorbed;
// an error is returned only for completion failures, cancellation and a
// security violation. The returned Outcome is never nil and carries the
// metadata gathered so far; on a security violation its text is empty.
func (a *Agent) Run(ctx context.Context, req Request, emitter *events.EventEmitter) (*Outcome, error) {
	start := time.Now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	out := &Outcome{Metadata: Metadata{RequestID: req.RequestID, Model: a.model.ModelID()}}
	defer func() { out.Metadata.DurationMs = time.Since(start).Milliseconds() }()

	ctx, span := a.tracer.Start(ctx, "agent.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.id", req.RequestID),
		attribute.Int("request.images", len(req.Images)),
		attribute.Int("request.history", len(req.History)),
	)
	logger := a.logger.With(loggerv2.String("request_id", req.RequestID))

	ts := a.tools.GetTools(ctx)
	out.Metadata.DegradedTools = ts.Degraded
	system := a.prompts.Build(ctx, prompt.Input{
		CallerIdentity:  req.CallerIdentity,
		ScopeIdentifier: req.ScopeIdentifier,
		Tools:           ts.Schemas,
		Now:             time.Now(),
	})
	conv := a.newConversation(&req, ts, system, emitter, &out.Metadata)

	fail := func(err error) (*Outcome, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, ErrorCode(err))
		out.Success = false
		out.FinalText = ""
		out.Citations = conv.citations
		logger.Error("run failed", err, loggerv2.String("code", ErrorCode(err)))
		return out, err
	}

	firstChoice := llm.ToolChoiceAny
	if len(req.Images) > 0 {
		firstChoice = llm.ToolChoiceAuto
	}
	text, stop, err := conv.pass(ctx, firstChoice, a.maxTurns)
	if err != nil {
		return fail(err)
	}
	out.Metadata.StopReason = stop
	success := true
	switch {
	case stop == StopEmptyResponse && text == "":
		text = apologyMessage
		success = false
	case stop == StopEmptyResponse:
		logger.Info("recovery exhausted, keeping earlier answer text")
	case text == "":
		text, err = conv.wrapUp(ctx)
		if err != nil {
			return fail(err)
		}
		if text == "" {
			text = fallbackMessage
			success = false
		}
	}

	if success {
		text, err = a.validateReferences(ctx, conv, text)
		if err != nil {
			return fail(err)
		}
	}

	if err := scanForeignIdentity(text, req.CallerIdentity); err != nil {
		var se *SecurityError
		if errors.As(err, &se) {
			logger.Warn("withholding answer that exposes another user's id",
				loggerv2.String("caller", req.CallerIdentity), loggerv2.String("exposed", se.Exposed))
		}
		return fail(err)
	}

	if a.resolver != nil && success {
		if data := a.resolver.Resolve(ctx, text, req.CallerIdentity); len(data) > 0 {
			out.EmbeddedData = data
			entities := make(map[string]map[string]any, len(data))
			for k, v := range data {
				entities[string(k)] = v
			}
			emitter.Emit(&events.EmbeddedDataEvent{Entities: entities})
		}
	}

	out.Success = success
	out.FinalText = text
	out.Citations = conv.citations
	span.SetAttributes(
		attribute.String("agent.stop_reason", string(out.Metadata.StopReason)),
		attribute.Int("agent.turns", out.Metadata.Turns),
		attribute.Int("agent.tool_calls", out.Metadata.ToolCalls),
		attribute.Bool("agent.success", success),
	)
	logger.Info("run finished",
		loggerv2.Bool("success", success),
		loggerv2.String("stop_reason", string(out.Metadata.StopReason)),
		loggerv2.Int("turns", out.Metadata.Turns),
		loggerv2.Int("tool_calls", out.Metadata.ToolCalls),
		loggerv2.Int("corrections", out.Metadata.CorrectionAttempts),
		loggerv2.Int("recovery_attempts", out.Metadata.RecoveryAttempts),
		loggerv2.Duration("took", time.Since(start)))
	return out, nil
}

// validateReferences runs the correction passes and strips whatever is
// still invalid afterwards.
func (a *Agent) validateReferences(ctx context.Context, conv *conversation, text string) (string, error) {
	if a.validator == nil {
		return text, nil
	}
	for attempt := 0; ; attempt++ {
		res := a.validator.Validate(ctx, text, conv.req.CallerIdentity)
		if !res.HasInvalid() {
			return text, nil
		}
		if attempt >= a.correctionAttempts {
			conv.meta.StrippedReferences = res.InvalidCount()
			conv.logger.Warn("stripping unverifiable references", loggerv2.Int("count", res.InvalidCount()))
			return refs.Strip(text, res.Invalid), nil
		}
		conv.meta.CorrectionAttempts++
		conv.logger.Info("answer references unknown records, requesting correction",
			loggerv2.Int("attempt", attempt+1),
			loggerv2.Int("invalid", res.InvalidCount()))
		corrected, err := conv.correct(ctx, refs.CorrectionPrompt(res))
		if err != nil {
			return "", err
		}
		if corrected != "" {
			text = corrected
		}
	}
}
