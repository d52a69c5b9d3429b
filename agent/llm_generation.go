// llm_generation.go
//
// Completion calls with streaming, tracing and a short retry for transient
// transport failures. Replies the provider reports as "no candidates" or
// "empty content" are surfaced as empty responses so the recovery ladder
// handles them.

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"journalagent/events"
	"journalagent/llm"
	loggerv2 "journalagent/logger/v2"
)

// errGeneration wraps every completion failure returned from a run.
var errGeneration = errors.New("completion failed")

const maxTransientRetries = 2

// isThrottlingError checks if an error is due to API throttling
func isThrottlingError(err error) bool {
	if err == nil || isContextCanceledError(err) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "throttled")
}

// isConnectionError checks if an error is due to connection issues
func isConnectionError(err error) bool {
	if err == nil || isContextCanceledError(err) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "unexpected EOF") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "UNAVAILABLE")
}

// isEmptyContentError checks if the provider reported a reply without content
func isEmptyContentError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if strings.Contains(msg, "MALFORMED_FUNCTION_CALL") {
		return false
	}
	return strings.Contains(msg, "zero candidates") ||
		strings.Contains(msg, "no candidates") ||
		strings.Contains(msg, "empty content") ||
		strings.Contains(msg, "empty response")
}

// classifyLLMError categorizes the given error into a known LLM error type
func classifyLLMError(err error) string {
	switch {
	case isContextCanceledError(err):
		return "context_canceled"
	case isThrottlingError(err):
		return "throttling_error"
	case isConnectionError(err):
		return "connection_error"
	case isEmptyContentError(err):
		return "empty_content_error"
	}
	return ""
}

// generate performs one completion, streaming text into text_chunk events
// through a chunkGuard. Transient failures are retried a bounded number of
// times.
func (c *conversation) generate(ctx context.Context, req *llm.Request, label string) (*llm.Response, error) {
	ctx, span := c.a.tracer.Start(ctx, "llm.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", c.a.model.ModelID()),
		attribute.String("llm.tool_choice", string(req.ToolChoice)),
		attribute.Int("llm.tools", len(req.Tools)),
		attribute.Int("agent.turn", c.turn),
		attribute.String("agent.phase", label),
	)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.a.recoveryDelay
	b.MaxInterval = c.a.recoveryMaxDelay
	b.MaxElapsedTime = 0
	b.Reset()

	emit := func(chunk string) {
		if chunk != "" {
			c.emitter.Emit(&events.TextChunkEvent{Text: chunk})
		}
	}

	start := time.Now()
	for attempt := 0; ; attempt++ {
		guard := &chunkGuard{caller: c.req.CallerIdentity, emit: emit}
		resp, err := c.a.model.GenerateStream(ctx, req, guard.write)
		if err == nil {
			guard.flush()
			c.recordUsage(resp)
			span.SetAttributes(
				attribute.Int("llm.tool_calls", len(resp.ToolCalls)),
				attribute.String("llm.finish_reason", resp.FinishReason),
			)
			c.logger.Debug("completion finished",
				loggerv2.String("phase", label),
				loggerv2.Int("turn", c.turn),
				loggerv2.Int("tool_calls", len(resp.ToolCalls)),
				loggerv2.Bool("empty", resp.IsEmpty()),
				loggerv2.Duration("took", time.Since(start)))
			return resp, nil
		}

		kind := classifyLLMError(err)
		if kind == "empty_content_error" {
			c.logger.Warn("provider reported an empty reply", loggerv2.Error(err), loggerv2.Int("turn", c.turn))
			return &llm.Response{FinishReason: "EMPTY"}, nil
		}
		retryable := kind == "throttling_error" || kind == "connection_error"
		if !retryable || attempt >= maxTransientRetries {
			span.RecordError(err)
			span.SetStatus(codes.Error, kind)
			if isContextCanceledError(err) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s: %w", errGeneration, label, err)
		}

		delay := b.NextBackOff()
		c.logger.Warn("transient completion error, retrying",
			loggerv2.String("error_type", kind),
			loggerv2.Int("attempt", attempt+1),
			loggerv2.Duration("delay", delay),
			loggerv2.Error(err))
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (c *conversation) recordUsage(resp *llm.Response) {
	if resp == nil {
		return
	}
	c.meta.InputTokens += resp.Usage.InputTokens
	c.meta.OutputTokens += resp.Usage.OutputTokens
}
